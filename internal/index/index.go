// Package index implements the per-domain similarity index: a flat
// structure over unit-normalized vectors with id↔position maps, a metadata
// table, tombstoned removal, and atomic snapshot persistence.
package index

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orbis-search/orbis/internal/domain"
	"github.com/orbis-search/orbis/internal/metrics"
)

// DefaultFlushEvery is the default batch size between automatic snapshots.
const DefaultFlushEvery = 64

// Config holds construction parameters for one domain index.
type Config struct {
	Domain     domain.Domain
	Dir        string // data directory holding snapshot files
	FlushEvery int    // persist after this many additions; 0 = DefaultFlushEvery
	Logger     *zap.Logger
}

// recordMeta is the per-record metadata table entry.
type recordMeta struct {
	Fields    map[string]string
	CreatedAt time.Time
}

// Stats reports the state of one domain index.
type Stats struct {
	Domain         string
	VectorCount    int // live records
	TotalSlots     int // live + tombstones
	Dimension      int
	Threshold      float64
	TombstoneRatio float64
}

// Index is the similarity index for a single domain.
//
// Slots are append-only: a record's position is stable for its life and is
// only reclaimed by Compact. Removal blanks the id and metadata but leaves
// the slot allocated (tombstone). Reads take the read lock; writes and the
// in-memory part of a flush take the write lock; file I/O happens outside
// both, serialized by flushMu.
type Index struct {
	mu  sync.RWMutex
	dom domain.Domain

	vectors [][]float32 // slot → normalized vector (never mutated after insert)
	ids     []string    // slot → record id; "" marks a tombstone
	slots   map[string]uint32
	meta    map[string]recordMeta
	live    int

	dirty      int
	flushEvery int

	flushMu sync.Mutex
	path    string
	logger  *zap.Logger
}

// New creates an empty index for the given domain. Call Initialize to load
// persisted state.
func New(cfg Config) *Index {
	flushEvery := cfg.FlushEvery
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		dom:        cfg.Domain,
		slots:      make(map[string]uint32),
		meta:       make(map[string]recordMeta),
		flushEvery: flushEvery,
		path:       filepath.Join(cfg.Dir, cfg.Domain.SnapshotFile()),
		logger:     logger.With(zap.String("domain", cfg.Domain.Name)),
	}
}

// Domain returns the domain definition this index serves.
func (i *Index) Domain() domain.Domain {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dom
}

// SetActive updates the cached active flag after a registry refresh.
func (i *Index) SetActive(active bool) {
	i.mu.Lock()
	i.dom.Active = active
	i.mu.Unlock()
}

// Initialize loads the persisted snapshot. A missing file starts empty; a
// corrupt or mismatched file is logged and also starts empty. Load failure
// is never fatal.
func (i *Index) Initialize(ctx context.Context) error {
	snap, err := readSnapshot(i.path)
	if err != nil {
		if !isNotExist(err) {
			i.logger.Warn("Snapshot unreadable, starting with empty index",
				zap.String("path", i.path), zap.Error(err))
		}
		i.publishGauges()
		return nil
	}

	if err := i.restore(snap); err != nil {
		i.logger.Warn("Snapshot rejected, starting with empty index",
			zap.String("path", i.path), zap.Error(err))
		return nil
	}

	i.logger.Info("Index loaded",
		zap.Int("vectors", snap.liveCount()), zap.Int("slots", len(snap.IDs)))
	return nil
}

// Add inserts a record. Re-adding an existing id is an idempotent no-op
// (returns false). The vector is L2-normalized before storage; dimension
// mismatches and zero-norm vectors are rejected.
func (i *Index) Add(ctx context.Context, id string, vector []float32, metadata map[string]string) (bool, error) {
	if len(vector) != i.dom.Dimension {
		return false, fmt.Errorf("%w: domain %s expects %d, got %d",
			domain.ErrDimensionMismatch, i.dom.Name, i.dom.Dimension, len(vector))
	}
	normalized, err := normalize(vector)
	if err != nil {
		return false, err
	}

	fields := make(map[string]string, len(metadata))
	for k, v := range metadata {
		fields[k] = v
	}

	i.mu.Lock()
	if _, exists := i.slots[id]; exists {
		i.mu.Unlock()
		return false, nil
	}

	slot := uint32(len(i.ids))
	i.vectors = append(i.vectors, normalized)
	i.ids = append(i.ids, id)
	i.slots[id] = slot
	i.meta[id] = recordMeta{Fields: fields, CreatedAt: time.Now().UTC()}
	i.live++

	i.dirty++
	needFlush := i.dirty >= i.flushEvery
	if needFlush {
		i.dirty = 0
	}
	i.publishGaugesLocked()
	i.mu.Unlock()

	if needFlush {
		if err := i.Flush(ctx); err != nil {
			// In-memory state stays authoritative until the next flush.
			i.logger.Warn("Batch flush failed", zap.Error(err))
		}
	}
	return true, nil
}

// Search returns up to topK live records with similarity at or above the
// domain threshold, ordered by similarity descending with ties broken by
// earlier insertion position. An empty index yields an empty result, not
// an error.
func (i *Index) Search(ctx context.Context, query []float32, topK int) ([]domain.SearchResult, error) {
	if len(query) != i.dom.Dimension {
		return nil, fmt.Errorf("%w: domain %s expects %d, got %d",
			domain.ErrDimensionMismatch, i.dom.Name, i.dom.Dimension, len(query))
	}
	normalized, err := normalize(query)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	i.mu.RLock()
	type candidate struct {
		slot uint32
		sim  float64
	}
	var candidates []candidate
	for slot, id := range i.ids {
		if id == "" {
			continue // tombstone
		}
		sim := clampSimilarity(dot(normalized, i.vectors[slot]))
		if sim >= i.dom.Threshold {
			candidates = append(candidates, candidate{slot: uint32(slot), sim: sim})
		}
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].sim != candidates[b].sim {
			return candidates[a].sim > candidates[b].sim
		}
		return candidates[a].slot < candidates[b].slot
	})

	limit := topK
	if limit <= 0 || limit > i.dom.MaxResults {
		limit = i.dom.MaxResults
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]domain.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		id := i.ids[c.slot]
		m := i.meta[id]
		fields := make(map[string]string, len(m.Fields))
		for k, v := range m.Fields {
			fields[k] = v
		}
		results = append(results, domain.SearchResult{
			ID:         id,
			Domain:     i.dom.Name,
			Similarity: c.sim,
			Metadata:   fields,
		})
	}
	i.mu.RUnlock()

	metrics.SearchDuration.WithLabelValues(i.dom.Name).Observe(time.Since(start).Seconds())
	return results, nil
}

// Get returns the stored record for an id. The vector is the normalized
// form, copied so callers cannot mutate the slot.
func (i *Index) Get(id string) (domain.VectorRecord, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	slot, ok := i.slots[id]
	if !ok {
		return domain.VectorRecord{}, false
	}
	vec := make([]float32, len(i.vectors[slot]))
	copy(vec, i.vectors[slot])
	m := i.meta[id]
	return domain.VectorRecord{
		ID:        id,
		Domain:    i.dom.Name,
		Vector:    vec,
		Metadata:  m.Fields,
		CreatedAt: m.CreatedAt,
	}, true
}

// Remove tombstones a record: the id↔position mapping and metadata are
// erased, the slot stays allocated until Compact. Returns false when the
// id is unknown.
func (i *Index) Remove(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	slot, ok := i.slots[id]
	if !ok {
		return false
	}
	i.ids[slot] = ""
	delete(i.slots, id)
	delete(i.meta, id)
	i.live--
	i.dirty++
	i.publishGaugesLocked()
	return true
}

// Stats reports the current index state.
func (i *Index) Stats() Stats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return Stats{
		Domain:         i.dom.Name,
		VectorCount:    i.live,
		TotalSlots:     len(i.ids),
		Dimension:      i.dom.Dimension,
		Threshold:      i.dom.Threshold,
		TombstoneRatio: i.tombstoneRatioLocked(),
	}
}

// TombstoneRatio returns tombstoned slots over total slots.
func (i *Index) TombstoneRatio() float64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.tombstoneRatioLocked()
}

func (i *Index) tombstoneRatioLocked() float64 {
	if len(i.ids) == 0 {
		return 0
	}
	return float64(len(i.ids)-i.live) / float64(len(i.ids))
}

func (i *Index) publishGauges() {
	i.mu.RLock()
	defer i.mu.RUnlock()
	i.publishGaugesLocked()
}

func (i *Index) publishGaugesLocked() {
	metrics.IndexLiveVectors.WithLabelValues(i.dom.Name).Set(float64(i.live))
	metrics.IndexTombstoneRatio.WithLabelValues(i.dom.Name).Set(i.tombstoneRatioLocked())
}
