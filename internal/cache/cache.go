// Package cache memoizes normalized fetch results keyed by query fingerprint.
// It owns entry lifecycle entirely: TTL policy, atomic replacement, stale
// serving on refresh failure, and single-flight coordination per fingerprint.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"tellus/internal/cache/metrics"
	"tellus/internal/cache/store"
	"tellus/internal/domain"
	"tellus/internal/indicator"
	"tellus/internal/platform/config"
	"tellus/pkg/platform/sentinel"
	"tellus/pkg/requestcontext"
)

// TTLPolicy assigns entry lifetimes by indicator class.
type TTLPolicy struct {
	economic     time.Duration
	health       time.Duration
	agricultural time.Duration
	climate      time.Duration
}

// NewTTLPolicy builds a policy from configuration.
func NewTTLPolicy(cfg config.TTL) TTLPolicy {
	return TTLPolicy{
		economic:     cfg.Economic,
		health:       cfg.Health,
		agricultural: cfg.Agricultural,
		climate:      cfg.Climate,
	}
}

// For returns the lifetime for a set of classes. A mixed sub-query takes the
// shortest lifetime among its classes, so no member outlives its own policy.
func (p TTLPolicy) For(classes ...indicator.Class) time.Duration {
	if len(classes) == 0 {
		classes = []indicator.Class{
			indicator.ClassEconomic, indicator.ClassHealth,
			indicator.ClassAgricultural, indicator.ClassClimate,
		}
	}
	min := time.Duration(0)
	for _, class := range classes {
		d := p.forOne(class)
		if min == 0 || d < min {
			min = d
		}
	}
	return min
}

func (p TTLPolicy) forOne(class indicator.Class) time.Duration {
	switch class {
	case indicator.ClassEconomic:
		return p.economic
	case indicator.ClassHealth:
		return p.health
	case indicator.ClassAgricultural:
		return p.agricultural
	default:
		return p.climate
	}
}

// FetchFunc produces a fresh payload for a query on cache miss or expiry.
type FetchFunc func(ctx context.Context) ([]domain.Observation, error)

// Result is what one cache consultation yields.
type Result struct {
	Observations []domain.Observation
	FromCache    bool      // payload came from a stored entry
	Stale        bool      // entry was past TTL, served because the refresh failed
	FetchedAt    time.Time // when the payload was originally fetched
	RefreshErr   error     // the failure behind a stale result, for reporting
}

// Service is the cache layer. The only mutable state shared across concurrent
// resolutions lives behind it.
type Service struct {
	store   store.Store
	ttl     TTLPolicy
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(entryStore store.Store, ttl TTLPolicy, opts ...Option) (*Service, error) {
	if entryStore == nil {
		return nil, errors.New("entry store is required")
	}

	s := &Service{
		store:  entryStore,
		ttl:    ttl,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// flightResult carries a completed fetch out of the single-flight group.
type flightResult struct {
	obs       []domain.Observation
	fetchedAt time.Time
	fromCache bool
}

// GetOrFetch returns the cached payload when fresh, otherwise runs fetch
// under single-flight and replaces the entry atomically. When the refresh
// fails and an older entry exists, that entry is served flagged stale instead
// of propagating the error; with no prior entry the error propagates.
func (s *Service) GetOrFetch(ctx context.Context, query domain.Query, classes []indicator.Class, fetch FetchFunc) (*Result, error) {
	fp := Fingerprint(query)
	now := requestcontext.Now(ctx)

	entry := s.lookup(ctx, fp)
	if entry != nil && !entry.Expired(now) {
		s.metrics.IncrementLookup("hit")
		return &Result{Observations: entry.Payload, FromCache: true, FetchedAt: entry.FetchedAt}, nil
	}
	if entry == nil {
		s.metrics.IncrementLookup("miss")
	} else {
		s.metrics.IncrementLookup("expired")
	}

	v, err, shared := s.group.Do(fp, func() (any, error) {
		// A caller that lost the lookup race may land here after the entry
		// was already refreshed; re-check before going upstream.
		if fresh := s.lookup(ctx, fp); fresh != nil && !fresh.Expired(requestcontext.Now(ctx)) {
			return flightResult{obs: fresh.Payload, fetchedAt: fresh.FetchedAt, fromCache: true}, nil
		}

		obs, fetchErr := fetch(ctx)
		if fetchErr != nil {
			return nil, fetchErr
		}

		fetchedAt := requestcontext.Now(ctx)
		e := &store.Entry{
			Fingerprint: fp,
			Payload:     obs,
			FetchedAt:   fetchedAt,
			TTL:         s.ttl.For(classes...),
		}
		if putErr := s.store.Put(ctx, e); putErr != nil {
			// A failed write degrades future hit rate, not this response.
			s.logger.Warn("cache put failed",
				"fingerprint", fp,
				"error", putErr,
			)
		}
		return flightResult{obs: obs, fetchedAt: fetchedAt}, nil
	})
	if shared {
		s.metrics.IncrementCoalesced()
	}
	if err != nil {
		if entry != nil {
			s.metrics.IncrementStaleServed()
			s.logger.Warn("refresh failed, serving stale entry",
				"fingerprint", fp,
				"age", now.Sub(entry.FetchedAt),
				"error", err,
			)
			return &Result{Observations: entry.Payload, FromCache: true, Stale: true, FetchedAt: entry.FetchedAt, RefreshErr: err}, nil
		}
		return nil, err
	}

	fr := v.(flightResult)
	return &Result{Observations: fr.obs, FromCache: fr.fromCache, FetchedAt: fr.fetchedAt}, nil
}

// Invalidate drops the entry for a query.
func (s *Service) Invalidate(ctx context.Context, query domain.Query) error {
	return s.store.Delete(ctx, Fingerprint(query))
}

// lookup fetches an entry, treating store failures as misses so a degraded
// backend slows us down instead of taking us down.
func (s *Service) lookup(ctx context.Context, fp string) *store.Entry {
	entry, err := s.store.Get(ctx, fp)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementLookup("degraded")
			s.logger.Warn("cache store lookup failed",
				"fingerprint", fp,
				"error", err,
			)
		}
		return nil
	}
	return entry
}
