// Package registry provides the cached, explicitly refreshable domain
// registry: the single authority on which domains exist and how each one
// is configured.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orbis-search/orbis/internal/domain"
)

// Repository is the persistence contract for domain definitions.
type Repository interface {
	Create(ctx context.Context, d domain.Domain) error
	Update(ctx context.Context, d domain.Domain) error
	Get(ctx context.Context, name string) (domain.Domain, error)
	List(ctx context.Context) ([]domain.Domain, error)
}

// Service caches domain definitions in memory. The cache is loaded once at
// startup and refreshed only on explicit Refresh or local mutation, so
// reads never touch the store.
type Service struct {
	repo   Repository
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]domain.Domain
}

// New creates a registry service with an empty cache. Call Refresh to load.
func New(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		logger: logger,
		cache:  make(map[string]domain.Domain),
	}
}

// Refresh replaces the cache with the persisted state.
func (s *Service) Refresh(ctx context.Context) error {
	domains, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("refresh registry: %w", err)
	}

	cache := make(map[string]domain.Domain, len(domains))
	for _, d := range domains {
		cache[d.Name] = d
	}

	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()

	s.logger.Info("Registry refreshed", zap.Int("domains", len(cache)))
	return nil
}

// Create validates and persists a new domain, then adds it to the cache.
func (s *Service) Create(ctx context.Context, d domain.Domain) (domain.Domain, error) {
	if err := d.Validate(); err != nil {
		return domain.Domain{}, err
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	if err := s.repo.Create(ctx, d); err != nil {
		return domain.Domain{}, err
	}

	s.mu.Lock()
	s.cache[d.Name] = d
	s.mu.Unlock()

	s.logger.Info("Domain created",
		zap.String("domain", d.Name),
		zap.Int("dimension", d.Dimension),
		zap.Float64("threshold", d.Threshold),
	)
	return d, nil
}

// SetActive flips a domain's active flag and persists the change.
func (s *Service) SetActive(ctx context.Context, name string, active bool) (domain.Domain, error) {
	s.mu.RLock()
	d, ok := s.cache[name]
	s.mu.RUnlock()
	if !ok {
		return domain.Domain{}, fmt.Errorf("%w: %s", domain.ErrDomainNotFound, name)
	}
	if d.Active == active {
		return d, nil
	}

	d.Active = active
	if err := s.repo.Update(ctx, d); err != nil {
		return domain.Domain{}, err
	}

	s.mu.Lock()
	s.cache[name] = d
	s.mu.Unlock()

	s.logger.Info("Domain active flag changed",
		zap.String("domain", name), zap.Bool("active", active))
	return d, nil
}

// Get returns a cached domain by name.
func (s *Service) Get(name string) (domain.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.cache[name]
	if !ok {
		return domain.Domain{}, fmt.Errorf("%w: %s", domain.ErrDomainNotFound, name)
	}
	return d, nil
}

// Snapshot returns all cached domains. The returned slice is a copy.
func (s *Service) Snapshot() []domain.Domain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Domain, 0, len(s.cache))
	for _, d := range s.cache {
		out = append(out, d)
	}
	return out
}

// ActiveDomains returns the names of all active cached domains.
func (s *Service) ActiveDomains() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for _, d := range s.cache {
		if d.Active {
			names = append(names, d.Name)
		}
	}
	return names
}
