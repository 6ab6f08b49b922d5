package domain

import (
	"fmt"
	"time"
)

// Action names checked against the permission subsystem.
const (
	ActionSearch = "search"
	ActionWrite  = "write"
)

// Domain describes one access-controlled knowledge partition. Each domain
// owns a similarity index with its own admission threshold and dimension.
type Domain struct {
	Name        string
	DisplayName string
	Threshold   float64 // minimum cosine similarity for a hit to be returned
	MaxResults  int
	Dimension   int
	StoragePath string // snapshot file, relative to the configured data dir
	Active      bool
	CreatedAt   time.Time
}

// Validate checks the domain definition. Dimension is a required contract:
// it is fixed at creation time and enforced on every insert.
func (d Domain) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: domain name is required", ErrInvalidDomain)
	}
	if d.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidDomain, d.Dimension)
	}
	if d.Threshold < 0 || d.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be in [0,1], got %g", ErrInvalidDomain, d.Threshold)
	}
	if d.MaxResults <= 0 {
		return fmt.Errorf("%w: max_results must be positive, got %d", ErrInvalidDomain, d.MaxResults)
	}
	return nil
}

// SnapshotFile returns the snapshot path for this domain, defaulting to
// <name>.snap when no explicit storage path was configured.
func (d Domain) SnapshotFile() string {
	if d.StoragePath != "" {
		return d.StoragePath
	}
	return d.Name + ".snap"
}
