// Package retrieval implements the confidence-scored two-phase retrieval
// strategy: primary-domain search first, cross-domain fallback when the
// primary phase is insufficient.
package retrieval

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/orbis-search/orbis/internal/domain"
	"github.com/orbis-search/orbis/internal/metrics"
)

// DefaultMinConfidence is the primary-phase sufficiency bar: when the best
// primary similarity falls below it, the fallback phase fires. It sits
// deliberately below typical per-domain admission thresholds.
const DefaultMinConfidence = 0.5

// Config holds retrieval policy knobs.
type Config struct {
	// AutoDetect classifies query text to a candidate domain and adopts it
	// when the caller is authorized for that domain.
	AutoDetect bool
	// MinConfidence is the primary-phase sufficiency threshold; 0 means
	// DefaultMinConfidence.
	MinConfidence float64
}

// Request is one retrieval query.
type Request struct {
	Principal string
	Domain    string // session-bound domain
	Query     string
	TopK      int
}

// Service executes the retrieval state machine. All failures degrade to a
// structured outcome; nothing propagates as a crash to the caller.
type Service struct {
	embed      Embedder
	searcher   Searcher
	domains    DomainLister
	perms      domain.PermissionChecker
	classifier domain.Classifier // nil disables auto-detection
	cfg        Config
	logger     *zap.Logger
}

// New creates a retrieval service. classifier may be nil; auto-detection
// then stays off regardless of config.
func New(
	embed Embedder,
	searcher Searcher,
	domains DomainLister,
	perms domain.PermissionChecker,
	classifier domain.Classifier,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embed:      embed,
		searcher:   searcher,
		domains:    domains,
		perms:      perms,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// Retrieve runs one query through determine-domain, primary search, and,
// when the primary phase is insufficient, the cross-domain fallback.
func (s *Service) Retrieve(ctx context.Context, req Request) domain.RetrievalOutcome {
	if strings.TrimSpace(req.Query) == "" {
		return degraded("empty query text")
	}

	primary := s.determineDomain(ctx, req)

	emb, err := s.embed.Embed(ctx, req.Query)
	if err != nil {
		s.logger.Warn("Query embedding failed", zap.Error(err))
		return degraded("query embedding unavailable, try again later")
	}

	var primaryResults []domain.SearchResult
	searched := []string{}
	if primary != "" && s.perms.Allowed(ctx, req.Principal, primary, domain.ActionSearch) {
		primaryResults, err = s.searcher.SearchDomain(ctx, primary, emb.Embedding, req.TopK)
		if err != nil {
			s.logger.Warn("Primary search failed",
				zap.String("domain", primary), zap.Error(err))
			return degraded("primary domain search failed")
		}
		searched = append(searched, primary)
	}

	if sufficient := len(primaryResults) > 0 &&
		maxSimilarity(primaryResults) >= s.cfg.MinConfidence; sufficient {
		return s.finish(primaryResults, searched, false)
	}

	trigger := "no_results"
	if len(primaryResults) > 0 {
		trigger = "low_confidence"
	}
	metrics.RetrievalFallbacks.WithLabelValues(trigger).Inc()

	fallbackDomains := s.allowedDomains(ctx, req.Principal)
	if len(fallbackDomains) == 0 {
		return s.finish(primaryResults, searched, false)
	}

	cross, err := s.searcher.SearchMultipleDomains(ctx, fallbackDomains, emb.Embedding, req.TopK)
	if err != nil {
		s.logger.Warn("Fallback search failed, keeping primary results", zap.Error(err))
		return s.finish(primaryResults, searched, false)
	}

	chosen, usedFallback := chooseResultSet(primaryResults, cross.Results)
	// The fan-out ran either way, so its domains count as searched even
	// when merge-or-keep retains the primary set.
	searched = mergeNames(searched, cross.SearchedDomains)
	return s.finish(chosen, searched, usedFallback)
}

// determineDomain picks the primary domain: the classifier's candidate if
// auto-detection is on and the caller is authorized for it, otherwise the
// session-bound domain.
func (s *Service) determineDomain(ctx context.Context, req Request) string {
	if !s.cfg.AutoDetect || s.classifier == nil {
		return req.Domain
	}
	candidate, ok := s.classifier.Classify(ctx, req.Query)
	if !ok || candidate == "" {
		return req.Domain
	}
	if !s.perms.Allowed(ctx, req.Principal, candidate, domain.ActionSearch) {
		s.logger.Debug("Classifier candidate rejected by permissions",
			zap.String("candidate", candidate), zap.String("principal", req.Principal))
		return req.Domain
	}
	return candidate
}

// allowedDomains filters the active domains down to those the principal
// may search.
func (s *Service) allowedDomains(ctx context.Context, principal string) []string {
	var out []string
	for _, name := range s.domains.ActiveDomains() {
		if s.perms.Allowed(ctx, principal, name, domain.ActionSearch) {
			out = append(out, name)
		}
	}
	return out
}

// chooseResultSet is the merge-or-keep policy between the primary and
// fallback result sets: prefer more entries, then the higher maximum
// similarity. The second return reports whether the fallback set won.
// This tie-break is a replaceable policy, not a tuned optimum.
func chooseResultSet(primary, fallback []domain.SearchResult) ([]domain.SearchResult, bool) {
	if len(fallback) > len(primary) {
		return fallback, true
	}
	if len(primary) > len(fallback) {
		return primary, false
	}
	if maxSimilarity(fallback) > maxSimilarity(primary) {
		return fallback, true
	}
	return primary, false
}

func (s *Service) finish(
	results []domain.SearchResult, searched []string, fallback bool,
) domain.RetrievalOutcome {
	if results == nil {
		results = []domain.SearchResult{}
	}
	out := domain.RetrievalOutcome{
		Results:         results,
		Confidence:      confidenceScore(results),
		SearchedDomains: searched,
		Fallback:        fallback,
	}
	if len(results) == 0 {
		out.Message = "no matching content found; rephrase the query or try another domain"
	}
	metrics.RetrievalConfidence.Observe(out.Confidence)
	return out
}

// degraded builds the zero-confidence, error-annotated outcome used when
// the query itself cannot be served.
func degraded(message string) domain.RetrievalOutcome {
	return domain.RetrievalOutcome{
		Results:         []domain.SearchResult{},
		Confidence:      0,
		SearchedDomains: []string{},
		Degraded:        true,
		Message:         message,
	}
}

// mergeNames appends names not already present, preserving order.
func mergeNames(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, n := range base {
		seen[n] = true
	}
	for _, n := range extra {
		if !seen[n] {
			base = append(base, n)
			seen[n] = true
		}
	}
	return base
}
