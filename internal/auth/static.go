// Package auth implements permission checks for domain access based on
// statically configured grants.
package auth

import (
	"context"

	"go.uber.org/zap"

	"github.com/orbis-search/orbis/internal/domain"
)

// Wildcard grants a principal access to every domain for the granted action.
const Wildcard = "*"

// Grant names the domains and actions a principal may use.
type Grant struct {
	Domains []string
	Actions []string
}

// StaticChecker is a domain.PermissionChecker over a fixed grant table
// loaded from configuration. An empty table denies everything; the empty
// principal is treated as anonymous and also denied.
type StaticChecker struct {
	grants map[string]Grant
	logger *zap.Logger
}

// NewStatic builds a checker from the configured grants, keyed by principal.
func NewStatic(grants map[string]Grant, logger *zap.Logger) *StaticChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaticChecker{grants: grants, logger: logger}
}

// Allowed reports whether principal may perform action against dom.
func (c *StaticChecker) Allowed(_ context.Context, principal, dom, action string) bool {
	if principal == "" {
		return false
	}

	grant, ok := c.grants[principal]
	if !ok {
		c.logger.Debug("unknown principal denied",
			zap.String("principal", principal),
			zap.String("domain", dom))
		return false
	}

	if !matches(grant.Actions, action) {
		return false
	}
	return matches(grant.Domains, dom)
}

func matches(allowed []string, want string) bool {
	for _, a := range allowed {
		if a == Wildcard || a == want {
			return true
		}
	}
	return false
}

var _ domain.PermissionChecker = (*StaticChecker)(nil)
