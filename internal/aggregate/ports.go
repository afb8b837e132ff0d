// Package aggregate resolves queries across providers: it splits a query per
// owning provider, dispatches sub-queries concurrently through cache, retry,
// and rate limiting, and merges the results deterministically.
package aggregate

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"tellus/internal/audit"
	"tellus/internal/cache"
	"tellus/internal/domain"
	"tellus/internal/indicator"
)

// Fetcher memoizes sub-query payloads. Satisfied by the cache service.
type Fetcher interface {
	GetOrFetch(ctx context.Context, query domain.Query, classes []indicator.Class, fetch cache.FetchFunc) (*cache.Result, error)
	Invalidate(ctx context.Context, query domain.Query) error
}

// AuditPublisher emits fetch lifecycle events. Optional; nil means no events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
