// Package ratelimit bounds outbound request frequency per provider. One
// acquisition covers exactly one outbound call; retries re-acquire.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tellus/internal/platform/config"
	"tellus/internal/ratelimit/metrics"
	"tellus/internal/ratelimit/store"
	dErrors "tellus/pkg/domain-errors"
)

// WindowStore is the reservation backend.
type WindowStore interface {
	Reserve(ctx context.Context, key string, limit int, window time.Duration) (*store.Result, error)
	Reset(ctx context.Context, key string) error
	Count(ctx context.Context, key string) (int, error)
}

// Limiter enforces per-provider request budgets over a sliding window.
type Limiter struct {
	store   WindowStore
	rates   config.Rates
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func New(windowStore WindowStore, rates config.Rates, opts ...Option) (*Limiter, error) {
	if windowStore == nil {
		return nil, errors.New("window store is required")
	}

	l := &Limiter{
		store:  windowStore,
		rates:  rates,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Acquire blocks until a slot frees for the provider or the context deadline
// expires. The store's ResetAt tells us exactly when the next slot opens, so
// waiting is a timed sleep, not a poll loop.
func (l *Limiter) Acquire(ctx context.Context, providerID string) error {
	limit := l.rates.For(providerID)
	start := time.Now()

	for {
		res, err := l.store.Reserve(ctx, providerID, limit.MaxRequests, limit.Window)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "reserve rate slot")
		}
		if res.Allowed {
			l.metrics.IncrementReservation(providerID, "granted")
			l.metrics.ObserveWait(providerID, time.Since(start))
			return nil
		}

		wait := time.Until(res.ResetAt)
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		l.logger.Debug("rate slot busy, waiting",
			"provider", providerID,
			"wait", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.metrics.IncrementReservation(providerID, "denied")
			return dErrors.Wrapf(ctx.Err(), dErrors.CodeTimeout, "deadline while waiting for %s rate slot", providerID)
		case <-timer.C:
		}
	}
}

// TryAcquire takes a slot if one is free and fails immediately otherwise.
func (l *Limiter) TryAcquire(ctx context.Context, providerID string) error {
	limit := l.rates.For(providerID)

	res, err := l.store.Reserve(ctx, providerID, limit.MaxRequests, limit.Window)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "reserve rate slot")
	}
	if !res.Allowed {
		l.metrics.IncrementReservation(providerID, "denied")
		return dErrors.Newf(dErrors.CodeRateLimited, "rate limit exceeded for %s, next slot in %s",
			providerID, time.Until(res.ResetAt).Round(time.Millisecond))
	}
	l.metrics.IncrementReservation(providerID, "granted")
	return nil
}

// InFlight reports the current reservation count for a provider.
func (l *Limiter) InFlight(ctx context.Context, providerID string) (int, error) {
	return l.store.Count(ctx, providerID)
}
