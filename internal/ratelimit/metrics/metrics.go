package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for outbound rate limiting.
type Metrics struct {
	Reservations *prometheus.CounterVec
	WaitDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with all limiter metrics registered.
func New() *Metrics {
	return &Metrics{
		Reservations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tellus_ratelimit_reservations_total",
			Help: "Rate limiter reservation attempts by provider and outcome",
		}, []string{"provider", "outcome"}), // outcome: "granted", "denied"

		WaitDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tellus_ratelimit_wait_seconds",
			Help:    "Time spent waiting for a rate slot by provider",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider"}),
	}
}

// IncrementReservation records one reservation attempt.
func (m *Metrics) IncrementReservation(provider, outcome string) {
	if m != nil {
		m.Reservations.WithLabelValues(provider, outcome).Inc()
	}
}

// ObserveWait records how long an Acquire blocked before a slot freed.
func (m *Metrics) ObserveWait(provider string, d time.Duration) {
	if m != nil {
		m.WaitDuration.WithLabelValues(provider).Observe(d.Seconds())
	}
}
