package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the aggregation pipeline.
type Metrics struct {
	// Sub-query fetches by provider and outcome
	Fetches *prometheus.CounterVec

	// Sub-query latency by provider, cache hits included
	FetchDuration *prometheus.HistogramVec

	// Overall resolution latency
	ResolveDuration prometheus.Histogram

	// Observations dropped by key dedup within one resolution
	DedupDropped prometheus.Counter
}

// New creates a Metrics instance with all aggregation metrics registered.
func New() *Metrics {
	return &Metrics{
		Fetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tellus_aggregate_fetches_total",
			Help: "Sub-query fetches by provider and outcome",
		}, []string{"provider", "outcome"}), // outcome: "hit", "success", "partial", "stale", "failure"

		FetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tellus_aggregate_fetch_duration_seconds",
			Help:    "Duration of per-provider sub-queries",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),

		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tellus_aggregate_resolve_duration_seconds",
			Help:    "Duration of full query resolutions across all providers",
			Buckets: []float64{0.01, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60},
		}),

		DedupDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tellus_aggregate_dedup_dropped_total",
			Help: "Observations dropped because a newer fetch carried the same key",
		}),
	}
}

// IncrementFetch records one sub-query by its outcome.
func (m *Metrics) IncrementFetch(provider, outcome string) {
	if m != nil {
		m.Fetches.WithLabelValues(provider, outcome).Inc()
	}
}

// ObserveFetchDuration records how long one sub-query took.
func (m *Metrics) ObserveFetchDuration(provider string, d time.Duration) {
	if m != nil {
		m.FetchDuration.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// ObserveResolveDuration records the total resolution duration.
func (m *Metrics) ObserveResolveDuration(d time.Duration) {
	if m != nil {
		m.ResolveDuration.Observe(d.Seconds())
	}
}

// AddDedupDropped records observations dropped by dedup.
func (m *Metrics) AddDedupDropped(n int) {
	if m != nil && n > 0 {
		m.DedupDropped.Add(float64(n))
	}
}
