package domain

import "context"

// PermissionChecker is the external authorization contract. It must be
// consulted before any domain is admitted as a search or write target.
type PermissionChecker interface {
	Allowed(ctx context.Context, principal, domain, action string) bool
}

// Classifier maps free query text to a candidate domain. The second return
// is false when the classifier has no opinion; callers then keep the
// session-bound domain.
type Classifier interface {
	Classify(ctx context.Context, query string) (string, bool)
}
