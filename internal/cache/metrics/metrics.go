package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the cache layer.
type Metrics struct {
	Lookups     *prometheus.CounterVec
	StaleServed prometheus.Counter
	Coalesced   prometheus.Counter
}

// New creates a Metrics instance with all cache metrics registered.
func New() *Metrics {
	return &Metrics{
		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tellus_cache_lookups_total",
			Help: "Cache lookups by outcome",
		}, []string{"outcome"}), // outcome: "hit", "miss", "expired", "degraded"

		StaleServed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tellus_cache_stale_served_total",
			Help: "Times an expired entry was served because the refresh failed",
		}),

		Coalesced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tellus_cache_coalesced_fetches_total",
			Help: "Callers that shared another caller's in-flight fetch",
		}),
	}
}

// IncrementLookup records one cache consultation.
func (m *Metrics) IncrementLookup(outcome string) {
	if m != nil {
		m.Lookups.WithLabelValues(outcome).Inc()
	}
}

// IncrementStaleServed records a degraded, stale response.
func (m *Metrics) IncrementStaleServed() {
	if m != nil {
		m.StaleServed.Inc()
	}
}

// IncrementCoalesced records a fetch shared via single-flight.
func (m *Metrics) IncrementCoalesced() {
	if m != nil {
		m.Coalesced.Inc()
	}
}
