package index

import (
	"context"

	"go.uber.org/zap"

	"github.com/orbis-search/orbis/internal/metrics"
)

// Compact rebuilds the index from live records only, reclaiming tombstoned
// slots. Record positions change, which is the one sanctioned exception to
// position stability. The rebuilt state is flushed immediately so a crash
// cannot resurrect removed records from an older snapshot.
func (i *Index) Compact(ctx context.Context) int {
	i.mu.Lock()
	reclaimed := len(i.ids) - i.live
	if reclaimed == 0 {
		i.mu.Unlock()
		return 0
	}

	vectors := make([][]float32, 0, i.live)
	ids := make([]string, 0, i.live)
	slots := make(map[string]uint32, i.live)
	for slot, id := range i.ids {
		if id == "" {
			continue
		}
		slots[id] = uint32(len(ids))
		ids = append(ids, id)
		vectors = append(vectors, i.vectors[slot])
	}

	i.vectors = vectors
	i.ids = ids
	i.slots = slots
	i.dirty = 0
	i.publishGaugesLocked()
	i.mu.Unlock()

	if err := i.Flush(ctx); err != nil {
		i.logger.Warn("Post-compaction flush failed", zap.Error(err))
	}

	metrics.CompactionsTotal.WithLabelValues(i.dom.Name).Inc()
	i.logger.Info("Index compacted", zap.Int("reclaimed_slots", reclaimed))
	return reclaimed
}
