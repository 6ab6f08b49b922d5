package index

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/orbis-search/orbis/internal/domain"
	"github.com/orbis-search/orbis/internal/metrics"
)

// snapshotVersion guards against format drift between releases.
const snapshotVersion = 1

// snapshot is the on-disk form of an index. The similarity structure, the
// id↔position table, and the metadata table are logically coupled, so they
// travel as one gob blob: a reader either sees all three or none.
type snapshot struct {
	Version   int
	Domain    string
	Dimension int
	IDs       []string // slot → id, "" for tombstones
	Vectors   [][]float32
	Meta      map[string]recordMeta
	SavedAt   time.Time
}

func (s *snapshot) liveCount() int {
	n := 0
	for _, id := range s.IDs {
		if id != "" {
			n++
		}
	}
	return n
}

// Flush persists the current state. The in-memory copy is taken under the
// read lock; file I/O runs outside all index locks so searches are never
// blocked by disk writes.
func (i *Index) Flush(ctx context.Context) error {
	i.mu.RLock()
	snap := &snapshot{
		Version:   snapshotVersion,
		Domain:    i.dom.Name,
		Dimension: i.dom.Dimension,
		IDs:       append([]string(nil), i.ids...),
		// Vectors are immutable once inserted; sharing the inner slices is safe.
		Vectors: append([][]float32(nil), i.vectors...),
		Meta:    make(map[string]recordMeta, len(i.meta)),
		SavedAt: time.Now().UTC(),
	}
	for id, m := range i.meta {
		snap.Meta[id] = m
	}
	i.mu.RUnlock()

	i.flushMu.Lock()
	defer i.flushMu.Unlock()

	if err := writeSnapshot(i.path, snap); err != nil {
		metrics.SnapshotsTotal.WithLabelValues(i.dom.Name, "error").Inc()
		return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, i.path, err)
	}
	metrics.SnapshotsTotal.WithLabelValues(i.dom.Name, "success").Inc()
	i.logger.Debug("Snapshot written", zap.Int("slots", len(snap.IDs)))
	return nil
}

// restore replaces the in-memory state with a loaded snapshot.
func (i *Index) restore(snap *snapshot) error {
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Domain != i.dom.Name {
		return fmt.Errorf("snapshot belongs to domain %q, index is %q", snap.Domain, i.dom.Name)
	}
	if snap.Dimension != i.dom.Dimension {
		return fmt.Errorf("snapshot dimension %d does not match configured %d",
			snap.Dimension, i.dom.Dimension)
	}
	if len(snap.IDs) != len(snap.Vectors) {
		return fmt.Errorf("snapshot id table has %d slots, vector table %d",
			len(snap.IDs), len(snap.Vectors))
	}

	slots := make(map[string]uint32, len(snap.IDs))
	live := 0
	for slot, id := range snap.IDs {
		if id == "" {
			continue
		}
		if _, dup := slots[id]; dup {
			return fmt.Errorf("snapshot contains duplicate id %q", id)
		}
		slots[id] = uint32(slot)
		live++
	}

	i.mu.Lock()
	i.vectors = snap.Vectors
	i.ids = snap.IDs
	i.slots = slots
	i.meta = snap.Meta
	if i.meta == nil {
		i.meta = make(map[string]recordMeta)
	}
	i.live = live
	i.dirty = 0
	i.publishGaugesLocked()
	i.mu.Unlock()
	return nil
}

// writeSnapshot writes a gzip-compressed gob blob via temp-file-and-rename,
// so a partially written snapshot is never observable at the final path.
func writeSnapshot(path string, snap *snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	gz := gzip.NewWriter(tmp)
	if err := gob.NewEncoder(gz).Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("close gzip: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// readSnapshot loads and decodes a snapshot file.
func readSnapshot(path string) (*snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	var snap snapshot
	if err := gob.NewDecoder(gz).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &snap, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
