package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval and index Prometheus metrics.
var (
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orbis",
			Name:      "search_duration_seconds",
			Help:      "Single-domain search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"domain"},
	)

	CrossDomainSearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orbis",
			Name:      "cross_domain_searches_total",
			Help:      "Total cross-domain fan-out searches",
		},
		[]string{"status"}, // "success" / "partial"
	)

	DomainSearchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orbis",
			Name:      "domain_search_failures_total",
			Help:      "Per-domain failures excluded from cross-domain merges",
		},
		[]string{"domain", "reason"}, // "timeout" / "error"
	)

	RetrievalFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orbis",
			Name:      "retrieval_fallbacks_total",
			Help:      "Fallback cross-domain searches by trigger",
		},
		[]string{"trigger"}, // "no_results" / "low_confidence"
	)

	RetrievalConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "orbis",
			Name:      "retrieval_confidence",
			Help:      "Confidence score of completed retrievals",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.99},
		},
	)

	IndexLiveVectors = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "orbis",
			Name:      "index_live_vectors",
			Help:      "Live (non-tombstoned) records per domain index",
		},
		[]string{"domain"},
	)

	IndexTombstoneRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "orbis",
			Name:      "index_tombstone_ratio",
			Help:      "Tombstoned slots over total slots per domain index",
		},
		[]string{"domain"},
	)

	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orbis",
			Name:      "index_snapshots_total",
			Help:      "Snapshot writes per domain",
		},
		[]string{"domain", "status"},
	)

	CompactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orbis",
			Name:      "index_compactions_total",
			Help:      "Index compactions per domain",
		},
		[]string{"domain"},
	)
)

var retrievalRegistered bool

// RegisterRetrievalMetrics registers retrieval metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalRegistered {
		return
	}
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(CrossDomainSearches)
	prometheus.MustRegister(DomainSearchFailures)
	prometheus.MustRegister(RetrievalFallbacks)
	prometheus.MustRegister(RetrievalConfidence)
	prometheus.MustRegister(IndexLiveVectors)
	prometheus.MustRegister(IndexTombstoneRatio)
	prometheus.MustRegister(SnapshotsTotal)
	prometheus.MustRegister(CompactionsTotal)
	retrievalRegistered = true
}
