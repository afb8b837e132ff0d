// Package retry wraps fetch operations with bounded exponential backoff.
// Only transient failures are retried; the classification comes from the
// coded error the operation returns.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"tellus/internal/platform/config"
	dErrors "tellus/pkg/domain-errors"
)

// Policy retries an operation according to configured bounds. The operation
// passed to Do must include rate-limiter acquisition, so every attempt
// re-acquires its slot.
type Policy struct {
	maxAttempts int
	base        time.Duration
	max         time.Duration
	logger      *slog.Logger

	// jitter perturbs a computed backoff. Swappable for deterministic tests.
	jitter func(d time.Duration) time.Duration
}

type Option func(*Policy)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

// WithJitter replaces the default ±25% random jitter.
func WithJitter(fn func(d time.Duration) time.Duration) Option {
	return func(p *Policy) {
		p.jitter = fn
	}
}

func New(cfg config.Retry, opts ...Option) (*Policy, error) {
	if cfg.MaxAttempts < 1 {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "retry needs at least 1 attempt, got %d", cfg.MaxAttempts)
	}
	if cfg.BaseBackoff <= 0 {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "base backoff must be positive, got %s", cfg.BaseBackoff)
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "max backoff %s below base %s", cfg.MaxBackoff, cfg.BaseBackoff)
	}

	p := &Policy{
		maxAttempts: cfg.MaxAttempts,
		base:        cfg.BaseBackoff,
		max:         cfg.MaxBackoff,
		logger:      slog.Default(),
		jitter:      randomJitter,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Do runs op until it succeeds, fails permanently, exhausts the attempt
// budget, or the context deadline expires. The last observed failure is
// preserved verbatim in the returned error chain.
func (p *Policy) Do(ctx context.Context, label string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := p.backoff(attempt - 1)
			p.logger.Debug("retrying after transient failure",
				"op", label,
				"attempt", attempt+1,
				"backoff", backoff,
				"error", lastErr,
			)
			if err := sleep(ctx, backoff); err != nil {
				return dErrors.Wrapf(lastErr, dErrors.CodeTimeout, "%s: deadline during backoff after %d attempts", label, attempt)
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			if dErrors.IsTimeout(err) {
				return err
			}
			return dErrors.Wrapf(err, dErrors.CodeTimeout, "%s: deadline after %d attempts", label, attempt+1)
		}
		if !dErrors.IsTransient(err) {
			return err
		}
	}

	return dErrors.Wrapf(lastErr, dErrors.CodeOf(lastErr), "%s: gave up after %d attempts", label, p.maxAttempts)
}

// backoff computes base * 2^attempt with jitter, capped at max.
func (p *Policy) backoff(attempt int) time.Duration {
	d := p.base << attempt
	if d > p.max || d <= 0 {
		d = p.max
	}
	d = p.jitter(d)
	if d > p.max {
		d = p.max
	}
	if d < 0 {
		d = 0
	}
	return d
}

// randomJitter perturbs d by up to a quarter in either direction.
func randomJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	quarter := int64(d / 4)
	if quarter == 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(2*quarter)-quarter)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
