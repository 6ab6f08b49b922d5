// Package orchestrator owns the domain-name → index map. It routes
// single-domain calls and implements cross-domain fan-out and merge.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orbis-search/orbis/internal/domain"
	"github.com/orbis-search/orbis/internal/index"
	"github.com/orbis-search/orbis/internal/metrics"
)

// DefaultDomainTimeout bounds each per-domain search inside a fan-out.
const DefaultDomainTimeout = 2 * time.Second

// Config holds orchestrator construction parameters.
type Config struct {
	DataDir       string
	FlushEvery    int           // per-index snapshot cadence
	DomainTimeout time.Duration // per-domain bound inside cross-domain search; 0 = DefaultDomainTimeout
	Logger        *zap.Logger
}

// AddResult reports the outcome of an insertion.
type AddResult struct {
	ID        string
	Dimension int
	Inserted  bool // false when the id already existed (idempotent no-op)
}

// Orchestrator routes per-domain operations and merges cross-domain
// searches. One instance is constructed at startup and passed explicitly
// to all callers.
type Orchestrator struct {
	mu      sync.RWMutex
	indices map[string]*index.Index

	dataDir       string
	flushEvery    int
	domainTimeout time.Duration
	logger        *zap.Logger
}

// New creates an orchestrator with no indices. Call Initialize with a
// registry snapshot to construct them.
func New(cfg Config) *Orchestrator {
	timeout := cfg.DomainTimeout
	if timeout <= 0 {
		timeout = DefaultDomainTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		indices:       make(map[string]*index.Index),
		dataDir:       cfg.DataDir,
		flushEvery:    cfg.FlushEvery,
		domainTimeout: timeout,
		logger:        logger,
	}
}

// Initialize constructs and loads an index for every active domain in the
// snapshot. Individual load failures degrade to empty indices and are not
// fatal.
func (o *Orchestrator) Initialize(ctx context.Context, domains []domain.Domain) error {
	for _, d := range domains {
		if !d.Active {
			continue
		}
		if err := o.ensureIndex(ctx, d); err != nil {
			return fmt.Errorf("initialize domain %s: %w", d.Name, err)
		}
	}
	o.logger.Info("Orchestrator initialized", zap.Int("domains", len(o.indices)))
	return nil
}

// RefreshDomains picks up newly active domains from a fresh registry
// snapshot without a restart. Indices of domains that were deactivated are
// kept loaded but frozen: they reject writes and drop out of cross-domain
// search, while single-domain reads keep working.
func (o *Orchestrator) RefreshDomains(ctx context.Context, domains []domain.Domain) error {
	for _, d := range domains {
		o.mu.RLock()
		idx, known := o.indices[d.Name]
		o.mu.RUnlock()

		if known {
			idx.SetActive(d.Active)
			continue
		}
		if !d.Active {
			continue
		}
		if err := o.ensureIndex(ctx, d); err != nil {
			return fmt.Errorf("refresh domain %s: %w", d.Name, err)
		}
		o.logger.Info("Domain index added on refresh", zap.String("domain", d.Name))
	}
	return nil
}

func (o *Orchestrator) ensureIndex(ctx context.Context, d domain.Domain) error {
	o.mu.Lock()
	if _, exists := o.indices[d.Name]; exists {
		o.mu.Unlock()
		return nil
	}
	idx := index.New(index.Config{
		Domain:     d,
		Dir:        o.dataDir,
		FlushEvery: o.flushEvery,
		Logger:     o.logger,
	})
	o.indices[d.Name] = idx
	o.mu.Unlock()

	return idx.Initialize(ctx)
}

func (o *Orchestrator) get(name string) (*index.Index, bool) {
	o.mu.RLock()
	idx, ok := o.indices[name]
	o.mu.RUnlock()
	return idx, ok
}

// AddEmbedding inserts a vector into the named domain. An empty id gets a
// generated UUID. Unknown domains fail the call; inactive domains accept
// no new inserts.
func (o *Orchestrator) AddEmbedding(
	ctx context.Context, domainName, id string, vector []float32, metadata map[string]string,
) (AddResult, error) {
	idx, ok := o.get(domainName)
	if !ok {
		return AddResult{}, fmt.Errorf("%w: %s", domain.ErrDomainNotFound, domainName)
	}
	d := idx.Domain()
	if !d.Active {
		return AddResult{}, fmt.Errorf("%w: %s", domain.ErrDomainInactive, domainName)
	}

	if id == "" {
		id = uuid.NewString()
	}
	inserted, err := idx.Add(ctx, id, vector, metadata)
	if err != nil {
		return AddResult{}, err
	}
	return AddResult{ID: id, Dimension: d.Dimension, Inserted: inserted}, nil
}

// GetEmbedding returns one stored record. The false return covers both an
// unknown domain and an unknown id.
func (o *Orchestrator) GetEmbedding(domainName, id string) (domain.VectorRecord, bool) {
	idx, ok := o.get(domainName)
	if !ok {
		return domain.VectorRecord{}, false
	}
	return idx.Get(id)
}

// RemoveEmbedding tombstones a record. Returns false when the domain or
// the id is absent.
func (o *Orchestrator) RemoveEmbedding(domainName, id string) bool {
	idx, ok := o.get(domainName)
	if !ok {
		return false
	}
	return idx.Remove(id)
}

// SearchDomain searches one domain. An unknown domain yields an empty
// result rather than an error, keeping cross-domain callers resilient to
// partial unavailability.
func (o *Orchestrator) SearchDomain(
	ctx context.Context, domainName string, query []float32, topK int,
) ([]domain.SearchResult, error) {
	idx, ok := o.get(domainName)
	if !ok {
		return []domain.SearchResult{}, nil
	}
	return idx.Search(ctx, query, topK)
}

// SearchMultipleDomains fans the query out to each named domain
// concurrently, concatenates the per-domain results (each already filtered
// by its own domain's threshold), sorts globally by similarity descending,
// and truncates to topK. Thresholds are deliberately not harmonized. A
// domain that times out or fails contributes zero results and a warning
// instead of failing the query. Unknown and inactive domains are skipped.
func (o *Orchestrator) SearchMultipleDomains(
	ctx context.Context, domainNames []string, query []float32, topK int,
) (domain.CrossDomainResult, error) {
	out := domain.CrossDomainResult{
		Results:         []domain.SearchResult{},
		SearchedDomains: []string{},
	}

	var targets []*index.Index
	for _, name := range domainNames {
		idx, ok := o.get(name)
		if !ok {
			continue
		}
		if !idx.Domain().Active {
			continue
		}
		targets = append(targets, idx)
		out.SearchedDomains = append(out.SearchedDomains, name)
	}
	if len(targets) == 0 {
		return out, nil
	}

	perDomain := make([][]domain.SearchResult, len(targets))
	partial := false

	var g errgroup.Group
	var mu sync.Mutex
	for i, idx := range targets {
		g.Go(func() error {
			searchCtx, cancel := context.WithTimeout(ctx, o.domainTimeout)
			defer cancel()

			name := idx.Domain().Name
			results, err := searchWithContext(searchCtx, idx, query, topK)
			if err != nil {
				reason := "error"
				if errors.Is(err, context.DeadlineExceeded) {
					reason = "timeout"
				}
				metrics.DomainSearchFailures.WithLabelValues(name, reason).Inc()
				o.logger.Warn("Domain search dropped from merge",
					zap.String("domain", name), zap.String("reason", reason), zap.Error(err))
				mu.Lock()
				partial = true
				mu.Unlock()
				return nil
			}
			perDomain[i] = results
			return nil
		})
	}
	_ = g.Wait() // per-domain failures degrade, never propagate

	for _, results := range perDomain {
		out.Results = append(out.Results, results...)
	}
	sort.SliceStable(out.Results, func(a, b int) bool {
		return out.Results[a].Similarity > out.Results[b].Similarity
	})
	if topK > 0 && len(out.Results) > topK {
		out.Results = out.Results[:topK]
	}

	status := "success"
	if partial {
		status = "partial"
	}
	metrics.CrossDomainSearches.WithLabelValues(status).Inc()
	return out, nil
}

// searchWithContext runs an index search honoring the bounded per-domain
// timeout. The search itself is cheap and idempotent, so on timeout the
// in-flight scan is left to finish and its result is discarded.
func searchWithContext(
	ctx context.Context, idx *index.Index, query []float32, topK int,
) ([]domain.SearchResult, error) {
	type outcome struct {
		results []domain.SearchResult
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		results, err := idx.Search(ctx, query, topK)
		ch <- outcome{results: results, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case oc := <-ch:
		return oc.results, oc.err
	}
}

// Stats returns stats for one domain, or for all known domains when name
// is empty.
func (o *Orchestrator) Stats(name string) ([]index.Stats, error) {
	if name != "" {
		idx, ok := o.get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrDomainNotFound, name)
		}
		return []index.Stats{idx.Stats()}, nil
	}

	o.mu.RLock()
	all := make([]*index.Index, 0, len(o.indices))
	for _, idx := range o.indices {
		all = append(all, idx)
	}
	o.mu.RUnlock()

	stats := make([]index.Stats, 0, len(all))
	for _, idx := range all {
		stats = append(stats, idx.Stats())
	}
	sort.Slice(stats, func(a, b int) bool { return stats[a].Domain < stats[b].Domain })
	return stats, nil
}

// FlushAll persists every index. Individual failures are logged and the
// remaining indices still flush; the first error is returned.
func (o *Orchestrator) FlushAll(ctx context.Context) error {
	o.mu.RLock()
	all := make([]*index.Index, 0, len(o.indices))
	for _, idx := range o.indices {
		all = append(all, idx)
	}
	o.mu.RUnlock()

	var firstErr error
	for _, idx := range all {
		if err := idx.Flush(ctx); err != nil {
			o.logger.Warn("Flush failed", zap.String("domain", idx.Domain().Name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// CompactOver compacts every index whose tombstone ratio is at or above
// the given threshold. Returns the names of compacted domains.
func (o *Orchestrator) CompactOver(ctx context.Context, ratio float64) []string {
	o.mu.RLock()
	all := make([]*index.Index, 0, len(o.indices))
	for _, idx := range o.indices {
		all = append(all, idx)
	}
	o.mu.RUnlock()

	var compacted []string
	for _, idx := range all {
		if idx.TombstoneRatio() >= ratio && idx.TombstoneRatio() > 0 {
			idx.Compact(ctx)
			compacted = append(compacted, idx.Domain().Name)
		}
	}
	sort.Strings(compacted)
	return compacted
}
