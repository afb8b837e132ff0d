// Package store persists cache entries keyed by query fingerprint. Stores
// return sentinel.ErrNotFound on miss and never interpret TTLs; expiry is the
// service's call so stale entries stay available for degraded serving.
package store

import (
	"context"
	"time"

	"tellus/internal/domain"
)

// Entry is one cached resolution payload. An entry is written whole and
// replaced whole; no store mutates a stored payload in place.
type Entry struct {
	Fingerprint string               `json:"fingerprint"`
	Payload     []domain.Observation `json:"payload"`
	FetchedAt   time.Time            `json:"fetched_at"`
	TTL         time.Duration        `json:"ttl"`
}

// Expired reports whether the entry's TTL has lapsed at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.FetchedAt) >= e.TTL
}

// Clone returns a deep copy so callers can hold results without aliasing
// store-owned memory.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Payload = append([]domain.Observation(nil), e.Payload...)
	return &cp
}

// Store is the persistence contract for cache entries.
type Store interface {
	Get(ctx context.Context, fingerprint string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, fingerprint string) error
}
