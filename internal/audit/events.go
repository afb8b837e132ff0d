// Package audit captures the fetch lifecycle as structured events. Events are
// emitted from the aggregation pipeline and fanned out over Kafka so operators
// can replay what was fetched, when, and why it degraded.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tellus/pkg/requestcontext"
)

// Kind classifies fetch lifecycle events.
type Kind string

const (
	// KindFetchStarted marks the beginning of one outbound provider fetch.
	KindFetchStarted Kind = "fetch_started"

	// KindFetchSucceeded marks a completed fetch, including partial ones.
	KindFetchSucceeded Kind = "fetch_succeeded"

	// KindFetchFailed marks a fetch that produced no usable observations.
	KindFetchFailed Kind = "fetch_failed"

	// KindServedStale marks a response answered from an expired cache entry
	// because the refresh failed.
	KindServedStale Kind = "served_stale"

	// KindRateLimited marks a fetch abandoned because the provider budget
	// was exhausted.
	KindRateLimited Kind = "rate_limited"
)

// Event is one fetch lifecycle record. Keep it transport-agnostic so sinks
// can fan out.
type Event struct {
	ID          uuid.UUID     `json:"id"`
	Kind        Kind          `json:"kind"`
	Provider    string        `json:"provider"`
	Indicators  []string      `json:"indicators,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Outcome     string        `json:"outcome,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns,omitempty"`
	At          time.Time     `json:"at"`
}

// normalize fills identity and timing fields left zero by the emitter.
func normalize(ctx context.Context, e Event) Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = requestcontext.Now(ctx)
	}
	return e
}
