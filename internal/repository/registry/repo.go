// Package registry persists domain definitions as hashes in the shared
// key-value store.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/orbis-search/orbis/internal/domain"
)

var keyPrefix = domain.KeyPrefix + "domain:"

// store is the consumer interface for domain definitions (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo implements registry persistence over a hash store.
type Repo struct {
	store store
}

// New creates a registry repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func metaKey(name string) string { return keyPrefix + name }

// Create stores a new domain definition. Duplicate names are rejected.
func (r *Repo) Create(ctx context.Context, d domain.Domain) error {
	key := metaKey(d.Name)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: domain %s", domain.ErrAlreadyExists, d.Name)
	}

	if err := r.store.HSet(ctx, key, domainToHash(d)); err != nil {
		return fmt.Errorf("hset domain %s: %w", d.Name, err)
	}
	return nil
}

// Update overwrites an existing domain definition.
func (r *Repo) Update(ctx context.Context, d domain.Domain) error {
	key := metaKey(d.Name)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrDomainNotFound, d.Name)
	}

	if err := r.store.HSet(ctx, key, domainToHash(d)); err != nil {
		return fmt.Errorf("hset domain %s: %w", d.Name, err)
	}
	return nil
}

// Get retrieves a domain by name.
func (r *Repo) Get(ctx context.Context, name string) (domain.Domain, error) {
	m, err := r.store.HGetAll(ctx, metaKey(name))
	if err != nil {
		return domain.Domain{}, fmt.Errorf("hgetall domain %s: %w", name, err)
	}
	if len(m) == 0 {
		return domain.Domain{}, fmt.Errorf("%w: %s", domain.ErrDomainNotFound, name)
	}
	return domainFromHash(m)
}

// List returns all domains sorted by name.
func (r *Repo) List(ctx context.Context) ([]domain.Domain, error) {
	keys, err := r.store.Scan(ctx, metaKey("*"))
	if err != nil {
		return nil, fmt.Errorf("scan domains: %w", err)
	}
	if len(keys) == 0 {
		return []domain.Domain{}, nil
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch domains: %w", err)
	}

	domains := make([]domain.Domain, 0, len(hashes))
	for i, m := range hashes {
		if len(m) == 0 {
			continue // deleted between SCAN and HGETALL
		}
		d, err := domainFromHash(m)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		domains = append(domains, d)
	}

	sort.Slice(domains, func(a, b int) bool { return domains[a].Name < domains[b].Name })
	return domains, nil
}
