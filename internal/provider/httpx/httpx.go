// Package httpx is the outbound HTTP core shared by all provider adapters.
// It owns the per-call rate-limit acquisition, the provider-agnostic status
// classification, and JSON decoding, so adapters only build URLs and map
// payloads.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	dErrors "tellus/pkg/domain-errors"
)

const userAgent = "tellus/1.0"

// Limiter grants outbound request slots per provider. Acquisition happens
// once per request, so a retried fetch pays for every attempt.
type Limiter interface {
	Acquire(ctx context.Context, providerID string) error
}

// Client wraps one provider's outbound HTTP traffic.
type Client struct {
	providerID string
	httpClient *http.Client
	limiter    Limiter
	logger     *slog.Logger
}

type Option func(*Client)

// WithLimiter gates every request through a rate limiter.
func WithLimiter(l Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient swaps the underlying transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(providerID string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		providerID: providerID,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProviderID returns the provider this client fronts.
func (c *Client) ProviderID() string {
	return c.providerID
}

// GetJSON performs one rate-limited GET and decodes the JSON response into
// out. Failures come back coded: Timeout when the caller's context expired,
// RateLimited on 429, Transient on transport errors and 5xx, Permanent on
// other 4xx and undecodable payloads.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, c.providerID); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return dErrors.Wrapf(err, dErrors.CodePermanent, "%s: build request", c.providerID)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return dErrors.Wrapf(err, dErrors.CodeTimeout, "%s: request aborted", c.providerID)
		}
		return dErrors.Wrapf(err, dErrors.CodeTransient, "%s: request failed", c.providerID)
	}
	defer resp.Body.Close()

	c.logger.Debug("provider request",
		"provider", c.providerID,
		"status", resp.StatusCode,
		"elapsed", time.Since(started),
	)

	if err := classifyStatus(c.providerID, resp.StatusCode); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrapf(err, dErrors.CodePermanent, "%s: malformed response", c.providerID)
	}
	return nil
}

// classifyStatus maps an HTTP status to the error taxonomy: 429 asks for
// backoff, 5xx is worth retrying, remaining non-2xx mean the request itself
// is wrong and retrying cannot help.
func classifyStatus(providerID string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return dErrors.Newf(dErrors.CodeRateLimited, "%s responded 429", providerID)
	case status >= 500:
		return dErrors.Newf(dErrors.CodeTransient, "%s responded %s", providerID, statusLabel(status))
	default:
		return dErrors.Newf(dErrors.CodePermanent, "%s responded %s", providerID, statusLabel(status))
	}
}

func statusLabel(status int) string {
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("%d %s", status, text)
	}
	return fmt.Sprintf("%d", status)
}
