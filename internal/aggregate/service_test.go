package aggregate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tellus/internal/aggregate/mocks"
	"tellus/internal/audit"
	"tellus/internal/cache"
	"tellus/internal/cache/store"
	"tellus/internal/domain"
	"tellus/internal/indicator"
	"tellus/internal/platform/config"
	"tellus/internal/provider"
	"tellus/internal/retry"
	dErrors "tellus/pkg/domain-errors"
	"tellus/pkg/requestcontext"
)

type stubAdapter struct {
	id    string
	class indicator.Class
	calls atomic.Int64
	fetch func(ctx context.Context, indicators, countries []string, years domain.YearRange) domain.FetchOutcome
}

func (a *stubAdapter) ID() string { return a.id }

func (a *stubAdapter) Class() indicator.Class { return a.class }

func (a *stubAdapter) Fetch(ctx context.Context, indicators, countries []string, years domain.YearRange) domain.FetchOutcome {
	a.calls.Add(1)
	return a.fetch(ctx, indicators, countries, years)
}

func returning(obs ...domain.Observation) func(context.Context, []string, []string, domain.YearRange) domain.FetchOutcome {
	return func(context.Context, []string, []string, domain.YearRange) domain.FetchOutcome {
		return domain.Success(obs)
	}
}

func failing(reason error) func(context.Context, []string, []string, domain.YearRange) domain.FetchOutcome {
	return func(context.Context, []string, []string, domain.YearRange) domain.FetchOutcome {
		return domain.Failure(reason)
	}
}

func testCatalog(t *testing.T, specs ...indicator.Spec) *indicator.Catalog {
	t.Helper()
	catalog := indicator.NewCatalog()
	for _, spec := range specs {
		require.NoError(t, catalog.Register(spec))
	}
	return catalog
}

func testRegistry(t *testing.T, adapters ...provider.Adapter) *provider.Registry {
	t.Helper()
	registry := provider.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, registry.Register(a))
	}
	return registry
}

func testRetry(t *testing.T, attempts int) *retry.Policy {
	t.Helper()
	policy, err := retry.New(config.Retry{
		MaxAttempts: attempts,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	}, retry.WithJitter(func(time.Duration) time.Duration { return 0 }))
	require.NoError(t, err)
	return policy
}

func testCache(t *testing.T) *cache.Service {
	t.Helper()
	svc, err := cache.New(store.NewInMemoryStore(), cache.NewTTLPolicy(config.TTL{
		Economic:     24 * time.Hour,
		Health:       24 * time.Hour,
		Agricultural: 24 * time.Hour,
		Climate:      6 * time.Hour,
	}))
	require.NoError(t, err)
	return svc
}

func testQuery(t *testing.T, indicators, countries []string, start, end int) domain.Query {
	t.Helper()
	query, err := domain.NewQuery(indicators, countries, domain.YearRange{Start: start, End: end}, domain.HintNone)
	require.NoError(t, err)
	return query
}

func gdpSpec(providerID string) indicator.Spec {
	return indicator.Spec{
		Code:       "NY.GDP.MKTP.CD",
		Title:      "GDP (current US$)",
		Class:      indicator.ClassEconomic,
		Provider:   providerID,
		NativeCode: "NY.GDP.MKTP.CD",
	}
}

func lifeSpec(providerID string) indicator.Spec {
	return indicator.Spec{
		Code:       "WHOSIS_000001",
		Title:      "Life expectancy at birth",
		Class:      indicator.ClassHealth,
		Provider:   providerID,
		NativeCode: "WHOSIS_000001",
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	catalog := testCatalog(t)
	registry := testRegistry(t)
	entryCache := testCache(t)
	policy := testRetry(t, 1)

	cases := map[string]struct {
		catalog  *indicator.Catalog
		registry *provider.Registry
		fetcher  Fetcher
		retry    *retry.Policy
	}{
		"nil catalog":  {nil, registry, entryCache, policy},
		"nil registry": {catalog, nil, entryCache, policy},
		"nil fetcher":  {catalog, registry, nil, policy},
		"nil retry":    {catalog, registry, entryCache, nil},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(tc.catalog, tc.registry, tc.fetcher, tc.retry)
			require.Error(t, err)
		})
	}
}

func TestResolveMergesStubObservations(t *testing.T) {
	alpha := &stubAdapter{id: "alpha", class: indicator.ClassEconomic, fetch: returning(
		domain.Observation{Country: "USA", Year: 2018, Indicator: "NY.GDP.MKTP.CD", Value: domain.Float(20000), Source: "alpha"},
		domain.Observation{Country: "USA", Year: 2019, Indicator: "NY.GDP.MKTP.CD", Value: domain.Float(21000), Source: "alpha"},
		domain.Observation{Country: "FRA", Year: 2019, Indicator: "NY.GDP.MKTP.CD", Value: domain.Float(27000), Source: "alpha"},
	)}

	svc, err := New(testCatalog(t, gdpSpec("alpha")), testRegistry(t, alpha), testCache(t), testRetry(t, 3))
	require.NoError(t, err)

	query := testQuery(t, []string{"NY.GDP.MKTP.CD"}, []string{"USA", "FRA"}, 2018, 2020)
	result, err := svc.Resolve(context.Background(), query)
	require.NoError(t, err)

	require.Len(t, result.Observations, 3)
	assert.Empty(t, result.Warnings)

	// Canonical order: country, then year.
	assert.Equal(t, "FRA", result.Observations[0].Country)
	assert.Equal(t, 2019, result.Observations[0].Year)
	assert.Equal(t, 27000.0, *result.Observations[0].Value)
	assert.Equal(t, "USA", result.Observations[1].Country)
	assert.Equal(t, 2018, result.Observations[1].Year)
	assert.Equal(t, 20000.0, *result.Observations[1].Value)
	assert.Equal(t, "USA", result.Observations[2].Country)
	assert.Equal(t, 2019, result.Observations[2].Year)
	assert.Equal(t, 21000.0, *result.Observations[2].Value)
}

func TestResolveIsolatesProviderFailure(t *testing.T) {
	alpha := &stubAdapter{id: "alpha", class: indicator.ClassEconomic, fetch: returning(
		domain.Observation{Country: "USA", Year: 2019, Indicator: "NY.GDP.MKTP.CD", Value: domain.Float(21000), Source: "alpha"},
	)}
	beta := &stubAdapter{id: "beta", class: indicator.ClassHealth, fetch: failing(
		dErrors.New(dErrors.CodeTransient, "connection refused"),
	)}

	svc, err := New(
		testCatalog(t, gdpSpec("alpha"), lifeSpec("beta")),
		testRegistry(t, alpha, beta),
		testCache(t),
		testRetry(t, 2),
	)
	require.NoError(t, err)

	query := testQuery(t, []string{"NY.GDP.MKTP.CD", "WHOSIS_000001"}, []string{"USA"}, 2019, 2019)
	result, err := svc.Resolve(context.Background(), query)
	require.NoError(t, err)

	require.Len(t, result.Observations, 1)
	assert.Equal(t, "alpha", result.Observations[0].Source)

	require.Len(t, result.Warnings, 1)
	warning := result.Warnings[0]
	assert.Equal(t, "beta", warning.Provider)
	assert.Equal(t, []string{"WHOSIS_000001"}, warning.Indicators)
	assert.Equal(t, string(dErrors.CodeTransient), warning.Code)
	assert.Contains(t, warning.Message, "connection refused")

	// Transient failures burn the whole attempt budget before degrading.
	assert.Equal(t, int64(2), beta.calls.Load())
	assert.Equal(t, int64(1), alpha.calls.Load())
}

func TestResolveReusesCachedSubQuery(t *testing.T) {
	alpha := &stubAdapter{id: "alpha", class: indicator.ClassEconomic, fetch: returning(
		domain.Observation{Country: "USA", Year: 2019, Indicator: "NY.GDP.MKTP.CD", Value: domain.Float(21000), Source: "alpha"},
	)}

	svc, err := New(testCatalog(t, gdpSpec("alpha")), testRegistry(t, alpha), testCache(t), testRetry(t, 3))
	require.NoError(t, err)

	query := testQuery(t, []string{"NY.GDP.MKTP.CD"}, []string{"USA"}, 2019, 2019)

	first, err := svc.Resolve(context.Background(), query)
	require.NoError(t, err)
	second, err := svc.Resolve(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, int64(1), alpha.calls.Load())
	assert.Equal(t, first.Observations, second.Observations)
}

func TestResolveDedupPrefersMostRecentFetch(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	// Both adapters claim the same natural key; beta reports a revised value.
	key := domain.Observation{Country: "USA", Year: 2019, Indicator: "NY.GDP.MKTP.CD", Source: "shared"}

	alphaObs := key
	alphaObs.Value = domain.Float(1)
	alpha := &stubAdapter{id: "alpha", class: indicator.ClassEconomic, fetch: returning(alphaObs)}

	betaObs := key
	betaObs.Value = domain.Float(2)
	beta := &stubAdapter{id: "beta", class: indicator.ClassHealth, fetch: returning(betaObs)}

	svc, err := New(
		testCatalog(t, gdpSpec("alpha"), lifeSpec("beta")),
		testRegistry(t, alpha, beta),
		testCache(t),
		testRetry(t, 1),
	)
	require.NoError(t, err)

	// Seed alpha's sub-query into the cache at t0.
	seedQuery := testQuery(t, []string{"NY.GDP.MKTP.CD"}, []string{"USA"}, 2019, 2019)
	_, err = svc.Resolve(requestcontext.WithTime(context.Background(), t0), seedQuery)
	require.NoError(t, err)

	// At t1 alpha's lane is a cache hit carrying t0; beta fetches fresh.
	query := testQuery(t, []string{"NY.GDP.MKTP.CD", "WHOSIS_000001"}, []string{"USA"}, 2019, 2019)
	result, err := svc.Resolve(requestcontext.WithTime(context.Background(), t1), query)
	require.NoError(t, err)

	require.Len(t, result.Observations, 1)
	assert.Equal(t, 2.0, *result.Observations[0].Value)
	assert.Equal(t, int64(1), alpha.calls.Load())
}

func TestMergeLanesTieKeepsFirst(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	obs := domain.Observation{Country: "USA", Year: 2019, Indicator: "NY.GDP.MKTP.CD", Source: "shared"}

	first := obs
	first.Value = domain.Float(1)
	second := obs
	second.Value = domain.Float(2)

	merged, dropped := mergeLanes([]laneResult{
		{providerID: "alpha", obs: []domain.Observation{first}, fetchedAt: at},
		{providerID: "beta", obs: []domain.Observation{second}, fetchedAt: at},
	})

	require.Len(t, merged, 1)
	assert.Equal(t, 1.0, *merged[0].Value)
	assert.Equal(t, 1, dropped)
}

func TestResolveWarnsOnUnknownIndicator(t *testing.T) {
	alpha := &stubAdapter{id: "alpha", class: indicator.ClassEconomic, fetch: returning(
		domain.Observation{Country: "USA", Year: 2019, Indicator: "NY.GDP.MKTP.CD", Value: domain.Float(21000), Source: "alpha"},
	)}

	svc, err := New(testCatalog(t, gdpSpec("alpha")), testRegistry(t, alpha), testCache(t), testRetry(t, 1))
	require.NoError(t, err)

	query := testQuery(t, []string{"NY.GDP.MKTP.CD", "NO.SUCH.CODE"}, []string{"USA"}, 2019, 2019)
	result, err := svc.Resolve(context.Background(), query)
	require.NoError(t, err)

	require.Len(t, result.Observations, 1)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, string(dErrors.CodeUnknownIndicator), result.Warnings[0].Code)
	assert.Equal(t, []string{"NO.SUCH.CODE"}, result.Warnings[0].Indicators)
}

func TestResolveWarnsWhenAdapterMissing(t *testing.T) {
	svc, err := New(testCatalog(t, gdpSpec("ghost")), testRegistry(t), testCache(t), testRetry(t, 1))
	require.NoError(t, err)

	query := testQuery(t, []string{"NY.GDP.MKTP.CD"}, []string{"USA"}, 2019, 2019)
	result, err := svc.Resolve(context.Background(), query)
	require.NoError(t, err)

	assert.Empty(t, result.Observations)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "ghost", result.Warnings[0].Provider)
	assert.Equal(t, string(dErrors.CodeUnavailable), result.Warnings[0].Code)
}

func TestResolvePartialFailureBecomesWarning(t *testing.T) {
	alpha := &stubAdapter{id: "alpha", class: indicator.ClassEconomic}
	alpha.fetch = func(context.Context, []string, []string, domain.YearRange) domain.FetchOutcome {
		return domain.PartialFailure(
			[]domain.Observation{{Country: "USA", Year: 2019, Indicator: "NY.GDP.MKTP.CD", Value: domain.Float(21000), Source: "alpha"}},
			dErrors.New(dErrors.CodeTransient, "FRA shard unavailable"),
		)
	}

	svc, err := New(testCatalog(t, gdpSpec("alpha")), testRegistry(t, alpha), testCache(t), testRetry(t, 3))
	require.NoError(t, err)

	query := testQuery(t, []string{"NY.GDP.MKTP.CD"}, []string{"USA", "FRA"}, 2019, 2019)
	result, err := svc.Resolve(context.Background(), query)
	require.NoError(t, err)

	require.Len(t, result.Observations, 1)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, string(dErrors.CodeTransient), result.Warnings[0].Code)
	assert.Contains(t, result.Warnings[0].Message, "FRA shard unavailable")

	// Partial outcomes are terminal: no retry.
	assert.Equal(t, int64(1), alpha.calls.Load())
}

func TestResolveDegradesToTimeoutWarning(t *testing.T) {
	alpha := &stubAdapter{id: "alpha", class: indicator.ClassEconomic}
	alpha.fetch = func(ctx context.Context, _, _ []string, _ domain.YearRange) domain.FetchOutcome {
		<-ctx.Done()
		return domain.Failure(dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "fetch aborted"))
	}

	svc, err := New(
		testCatalog(t, gdpSpec("alpha")),
		testRegistry(t, alpha),
		testCache(t),
		testRetry(t, 3),
		WithResolveTimeout(30*time.Millisecond),
	)
	require.NoError(t, err)

	query := testQuery(t, []string{"NY.GDP.MKTP.CD"}, []string{"USA"}, 2019, 2019)
	result, err := svc.Resolve(context.Background(), query)
	require.NoError(t, err)

	assert.Empty(t, result.Observations)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, string(dErrors.CodeTimeout), result.Warnings[0].Code)
}

func TestResolveStaleResultCarriesWarning(t *testing.T) {
	ctrl := gomock.NewController(t)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	stale := []domain.Observation{
		{Country: "USA", Year: 2019, Indicator: "NY.GDP.MKTP.CD", Value: domain.Float(21000), Source: "alpha"},
	}
	refreshErr := dErrors.New(dErrors.CodeUnavailable, "provider down")

	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().
		GetOrFetch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&cache.Result{
			Observations: stale,
			FromCache:    true,
			Stale:        true,
			FetchedAt:    t0,
			RefreshErr:   refreshErr,
		}, nil)

	alpha := &stubAdapter{id: "alpha", class: indicator.ClassEconomic, fetch: returning()}
	svc, err := New(testCatalog(t, gdpSpec("alpha")), testRegistry(t, alpha), fetcher, testRetry(t, 1))
	require.NoError(t, err)

	query := testQuery(t, []string{"NY.GDP.MKTP.CD"}, []string{"USA"}, 2019, 2019)
	result, err := svc.Resolve(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, stale, result.Observations)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, WarnStaleData, result.Warnings[0].Code)
	assert.Contains(t, result.Warnings[0].Message, "provider down")
}

func TestResolveEmitsAuditTrail(t *testing.T) {
	t.Run("successful fetch", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		published := make([]audit.Event, 0, 2)

		publisher := mocks.NewMockAuditPublisher(ctrl)
		publisher.EXPECT().
			Emit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, event audit.Event) error {
				published = append(published, event)
				return nil
			}).
			Times(2)

		alpha := &stubAdapter{id: "alpha", class: indicator.ClassEconomic, fetch: returning(
			domain.Observation{Country: "USA", Year: 2019, Indicator: "NY.GDP.MKTP.CD", Value: domain.Float(21000), Source: "alpha"},
		)}
		svc, err := New(
			testCatalog(t, gdpSpec("alpha")),
			testRegistry(t, alpha),
			testCache(t),
			testRetry(t, 1),
			WithAuditPublisher(publisher),
		)
		require.NoError(t, err)

		query := testQuery(t, []string{"NY.GDP.MKTP.CD"}, []string{"USA"}, 2019, 2019)
		_, err = svc.Resolve(context.Background(), query)
		require.NoError(t, err)

		require.Len(t, published, 2)
		assert.Equal(t, audit.KindFetchStarted, published[0].Kind)
		assert.Equal(t, audit.KindFetchSucceeded, published[1].Kind)
		assert.Equal(t, "alpha", published[1].Provider)
		assert.Equal(t, string(domain.OutcomeSuccess), published[1].Outcome)
		assert.NotEmpty(t, published[1].Fingerprint)
	})

	t.Run("failed fetch", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		published := make([]audit.Event, 0, 2)

		publisher := mocks.NewMockAuditPublisher(ctrl)
		publisher.EXPECT().
			Emit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, event audit.Event) error {
				published = append(published, event)
				return nil
			}).
			Times(2)

		alpha := &stubAdapter{id: "alpha", class: indicator.ClassEconomic, fetch: failing(
			dErrors.New(dErrors.CodePermanent, "bad request"),
		)}
		svc, err := New(
			testCatalog(t, gdpSpec("alpha")),
			testRegistry(t, alpha),
			testCache(t),
			testRetry(t, 3),
			WithAuditPublisher(publisher),
		)
		require.NoError(t, err)

		query := testQuery(t, []string{"NY.GDP.MKTP.CD"}, []string{"USA"}, 2019, 2019)
		_, err = svc.Resolve(context.Background(), query)
		require.NoError(t, err)

		require.Len(t, published, 2)
		assert.Equal(t, audit.KindFetchStarted, published[0].Kind)
		assert.Equal(t, audit.KindFetchFailed, published[1].Kind)
		assert.Contains(t, published[1].Reason, "bad request")
	})
}

func TestInvalidateForcesRefetchPerProvider(t *testing.T) {
	alpha := &stubAdapter{id: "alpha", class: indicator.ClassEconomic, fetch: returning(
		domain.Observation{Country: "USA", Year: 2019, Indicator: "NY.GDP.MKTP.CD", Value: domain.Float(21000), Source: "alpha"},
	)}
	beta := &stubAdapter{id: "beta", class: indicator.ClassHealth, fetch: returning(
		domain.Observation{Country: "USA", Year: 2019, Indicator: "WHOSIS_000001", Value: domain.Float(79), Source: "beta"},
	)}

	svc, err := New(
		testCatalog(t, gdpSpec("alpha"), lifeSpec("beta")),
		testRegistry(t, alpha, beta),
		testCache(t),
		testRetry(t, 1),
	)
	require.NoError(t, err)

	query := testQuery(t, []string{"NY.GDP.MKTP.CD", "WHOSIS_000001"}, []string{"USA"}, 2019, 2019)

	_, err = svc.Resolve(context.Background(), query)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(context.Background(), query))
	_, err = svc.Resolve(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, int64(2), alpha.calls.Load())
	assert.Equal(t, int64(2), beta.calls.Load())
}

func TestResolveRejectsDeadContext(t *testing.T) {
	alpha := &stubAdapter{id: "alpha", class: indicator.ClassEconomic, fetch: returning()}
	svc, err := New(testCatalog(t, gdpSpec("alpha")), testRegistry(t, alpha), testCache(t), testRetry(t, 1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	query := testQuery(t, []string{"NY.GDP.MKTP.CD"}, []string{"USA"}, 2019, 2019)
	_, err = svc.Resolve(ctx, query)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeTimeout, dErrors.CodeOf(err))
}
