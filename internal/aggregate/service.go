package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"tellus/internal/aggregate/metrics"
	"tellus/internal/audit"
	"tellus/internal/cache"
	"tellus/internal/domain"
	"tellus/internal/indicator"
	"tellus/internal/provider"
	"tellus/internal/retry"
	dErrors "tellus/pkg/domain-errors"
)

const defaultResolveTimeout = 60 * time.Second

// WarnStaleData flags observations answered from an expired cache entry
// because the refresh failed.
const WarnStaleData = "stale_data"

// Warning describes one degraded part of a resolution. The result stays
// usable; warnings tell the caller what is missing or old.
type Warning struct {
	Provider   string   `json:"provider,omitempty"`
	Indicators []string `json:"indicators,omitempty"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
}

// Result is one resolved query: the merged observation set plus everything
// that went wrong along the way.
type Result struct {
	Observations []domain.Observation `json:"observations"`
	Warnings     []Warning            `json:"warnings,omitempty"`
	Elapsed      time.Duration        `json:"elapsed_ns"`
}

// Service resolves queries across providers.
type Service struct {
	catalog  *indicator.Catalog
	registry *provider.Registry
	cache    Fetcher
	retry    *retry.Policy
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    AuditPublisher
	tracer   trace.Tracer
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

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

// WithResolveTimeout overrides the global deadline applied to each
// resolution.
func WithResolveTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(
	catalog *indicator.Catalog,
	registry *provider.Registry,
	fetcher Fetcher,
	retryPolicy *retry.Policy,
	opts ...Option,
) (*Service, error) {
	if catalog == nil {
		return nil, errors.New("indicator catalog is required")
	}
	if registry == nil {
		return nil, errors.New("provider registry is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if retryPolicy == nil {
		return nil, errors.New("retry policy is required")
	}

	s := &Service{
		catalog:  catalog,
		registry: registry,
		cache:    fetcher,
		retry:    retryPolicy,
		timeout:  defaultResolveTimeout,
		logger:   slog.Default(),
		tracer:   otel.Tracer("tellus/aggregate"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Resolve splits the query per owning provider, dispatches the sub-queries
// concurrently, and merges the results. Provider failures degrade to
// warnings; only a context already dead on entry is an error.
func (s *Service) Resolve(ctx context.Context, query domain.Query) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "resolution aborted before dispatch")
	}

	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "aggregate.resolve", trace.WithAttributes(
		attribute.StringSlice("query.indicators", query.Indicators()),
		attribute.StringSlice("query.countries", query.Countries()),
		attribute.Int("query.year_start", query.Years().Start),
		attribute.Int("query.year_end", query.Years().End),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	groups, unknown := s.catalog.GroupByProvider(query.Indicators())

	warnings := make([]Warning, 0, len(unknown))
	for _, code := range unknown {
		warnings = append(warnings, Warning{
			Indicators: []string{code},
			Code:       string(dErrors.CodeUnknownIndicator),
			Message:    fmt.Sprintf("indicator not registered: %s", code),
		})
	}

	providerIDs := make([]string, 0, len(groups))
	for id := range groups {
		providerIDs = append(providerIDs, id)
	}
	sort.Strings(providerIDs)

	// One lane per provider. Lanes never return errors: a failed lane is a
	// warning on the merged result, not a reason to cancel its siblings.
	lanes := make([]laneResult, len(providerIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, providerID := range providerIDs {
		g.Go(func() error {
			lanes[i] = s.resolveProvider(gctx, providerID, groups[providerID], query)
			return nil
		})
	}
	_ = g.Wait()

	observations, dropped := mergeLanes(lanes)
	domain.SortObservations(observations)
	for _, lane := range lanes {
		warnings = append(warnings, lane.warnings...)
	}

	elapsed := time.Since(started)
	s.metrics.AddDedupDropped(dropped)
	s.metrics.ObserveResolveDuration(elapsed)
	span.SetAttributes(
		attribute.Int("result.observations", len(observations)),
		attribute.Int("result.warnings", len(warnings)),
	)

	s.logger.InfoContext(ctx, "query resolved",
		"providers", len(providerIDs),
		"observations", len(observations),
		"warnings", len(warnings),
		"dedup_dropped", dropped,
		"elapsed", elapsed,
	)

	return &Result{Observations: observations, Warnings: warnings, Elapsed: elapsed}, nil
}

// Invalidate drops the cached entries behind a query, one per provider
// sub-query, so the next resolution refetches from every provider.
func (s *Service) Invalidate(ctx context.Context, query domain.Query) error {
	groups, _ := s.catalog.GroupByProvider(query.Indicators())

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if err := s.cache.Invalidate(ctx, query.Subset(groups[id])); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// laneResult is one provider sub-query's contribution to the merge.
type laneResult struct {
	providerID string
	obs        []domain.Observation
	fetchedAt  time.Time
	warnings   []Warning
}

func (s *Service) resolveProvider(ctx context.Context, providerID string, codes []string, query domain.Query) laneResult {
	ctx, span := s.tracer.Start(ctx, "aggregate.fetch", trace.WithAttributes(
		attribute.String("provider", providerID),
		attribute.StringSlice("indicators", codes),
	))
	defer span.End()

	lane := laneResult{providerID: providerID}

	adapter, ok := s.registry.Get(providerID)
	if !ok {
		s.metrics.IncrementFetch(providerID, "failure")
		lane.warnings = append(lane.warnings, Warning{
			Provider:   providerID,
			Indicators: codes,
			Code:       string(dErrors.CodeUnavailable),
			Message:    fmt.Sprintf("no adapter registered for provider %s", providerID),
		})
		return lane
	}

	sub := query.Subset(codes)
	fp := cache.Fingerprint(sub)

	// outcome is written by the fetch closure, which single-flight runs on
	// this goroutine or not at all.
	var outcome domain.FetchOutcome
	fetch := func(ctx context.Context) ([]domain.Observation, error) {
		s.emit(ctx, audit.Event{
			Kind:        audit.KindFetchStarted,
			Provider:    providerID,
			Indicators:  codes,
			Fingerprint: fp,
		})

		fetchStarted := time.Now()
		err := s.retry.Do(ctx, providerID, func(ctx context.Context) error {
			outcome = adapter.Fetch(ctx, codes, query.Countries(), query.Years())
			if outcome.Failed() {
				return outcome.Reason
			}
			return nil
		})
		if err != nil {
			kind := audit.KindFetchFailed
			if dErrors.Is(err, dErrors.CodeRateLimited) {
				kind = audit.KindRateLimited
			}
			s.emit(ctx, audit.Event{
				Kind:        kind,
				Provider:    providerID,
				Indicators:  codes,
				Fingerprint: fp,
				Reason:      err.Error(),
				Elapsed:     time.Since(fetchStarted),
			})
			return nil, err
		}

		s.emit(ctx, audit.Event{
			Kind:        audit.KindFetchSucceeded,
			Provider:    providerID,
			Indicators:  codes,
			Fingerprint: fp,
			Outcome:     string(outcome.Kind),
			Elapsed:     time.Since(fetchStarted),
		})
		return outcome.Observations, nil
	}

	subStarted := time.Now()
	result, err := s.cache.GetOrFetch(ctx, sub, s.classesOf(codes), fetch)
	s.metrics.ObserveFetchDuration(providerID, time.Since(subStarted))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, string(dErrors.CodeOf(err)))
		s.metrics.IncrementFetch(providerID, "failure")
		s.logger.WarnContext(ctx, "provider sub-query failed",
			"provider", providerID,
			"indicators", codes,
			"error", err,
		)
		lane.warnings = append(lane.warnings, Warning{
			Provider:   providerID,
			Indicators: codes,
			Code:       string(dErrors.CodeOf(err)),
			Message:    err.Error(),
		})
		return lane
	}

	lane.obs = result.Observations
	lane.fetchedAt = result.FetchedAt

	switch {
	case result.Stale:
		s.metrics.IncrementFetch(providerID, "stale")
		s.emit(ctx, audit.Event{
			Kind:        audit.KindServedStale,
			Provider:    providerID,
			Indicators:  codes,
			Fingerprint: fp,
			Reason:      reasonText(result.RefreshErr),
		})
		lane.warnings = append(lane.warnings, Warning{
			Provider:   providerID,
			Indicators: codes,
			Code:       WarnStaleData,
			Message:    fmt.Sprintf("serving data fetched at %s after refresh failure: %v", result.FetchedAt.Format(time.RFC3339), result.RefreshErr),
		})
	case result.FromCache:
		s.metrics.IncrementFetch(providerID, "hit")
	case outcome.Kind == domain.OutcomePartial:
		s.metrics.IncrementFetch(providerID, "partial")
		lane.warnings = append(lane.warnings, Warning{
			Provider:   providerID,
			Indicators: codes,
			Code:       string(dErrors.CodeOf(outcome.Reason)),
			Message:    fmt.Sprintf("partial result: %v", outcome.Reason),
		})
	default:
		s.metrics.IncrementFetch(providerID, "success")
	}

	return lane
}

// classesOf collects the distinct indicator classes of known codes, keeping
// first-seen order.
func (s *Service) classesOf(codes []string) []indicator.Class {
	seen := make(map[indicator.Class]bool, 2)
	classes := make([]indicator.Class, 0, 2)
	for _, code := range codes {
		spec, err := s.catalog.Lookup(code)
		if err != nil {
			continue
		}
		if !seen[spec.Class] {
			seen[spec.Class] = true
			classes = append(classes, spec.Class)
		}
	}
	return classes
}

// mergeLanes unions lane observations, resolving duplicate keys
// most-recent-wins by fetch time and first-wins on ties. Lane order is
// deterministic (sorted provider ids), so the merge is arrival-order
// independent.
func mergeLanes(lanes []laneResult) ([]domain.Observation, int) {
	type slot struct {
		index     int
		fetchedAt time.Time
	}
	seen := make(map[domain.Key]slot)
	var kept []domain.Observation
	dropped := 0

	for _, lane := range lanes {
		for _, obs := range lane.obs {
			key := obs.Key()
			existing, ok := seen[key]
			if !ok {
				seen[key] = slot{index: len(kept), fetchedAt: lane.fetchedAt}
				kept = append(kept, obs)
				continue
			}
			dropped++
			if lane.fetchedAt.After(existing.fetchedAt) {
				kept[existing.index] = obs
				existing.fetchedAt = lane.fetchedAt
				seen[key] = existing
			}
		}
	}
	return kept, dropped
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"kind", event.Kind,
			"error", err,
		)
	}
}

func reasonText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
