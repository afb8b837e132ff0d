package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tellus/internal/domain"
	"tellus/internal/indicator"
	"tellus/internal/provider/httpx"
	dErrors "tellus/pkg/domain-errors"
)

func testClient(providerID string) *httpx.Client {
	return httpx.New(providerID, 5*time.Second)
}

func TestWorldBankFetchParsesRows(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[
			{"page": 1, "pages": 1, "per_page": 1000, "total": 4},
			[
				{"countryiso3code": "USA", "date": "2020", "value": 21060000000000},
				{"countryiso3code": "USA", "date": "2021", "value": null},
				{"countryiso3code": "DEU", "date": "2020", "value": 3889669000000},
				{"countryiso3code": "", "date": "2020", "value": 1},
				{"countryiso3code": "DEU", "date": "MRV", "value": 2}
			]
		]`))
	}))
	defer srv.Close()

	adapter := NewWorldBank(srv.URL, testClient(ProviderWorldBank), indicator.Default())
	outcome := adapter.Fetch(context.Background(), []string{"NY.GDP.MKTP.CD"}, []string{"DEU", "USA"}, domain.YearRange{Start: 2019, End: 2021})

	require.Equal(t, domain.OutcomeSuccess, outcome.Kind)
	require.Len(t, outcome.Observations, 3)

	assert.Equal(t, "/v2/country/DEU;USA/indicator/NY.GDP.MKTP.CD", gotPath)
	assert.Contains(t, gotQuery, "format=json")
	assert.Contains(t, gotQuery, "per_page=1000")
	assert.Contains(t, gotQuery, "date=2019%3A2021")

	first := outcome.Observations[0]
	assert.Equal(t, "USA", first.Country)
	assert.Equal(t, 2020, first.Year)
	assert.Equal(t, "NY.GDP.MKTP.CD", first.Indicator)
	require.True(t, first.HasValue())
	assert.InDelta(t, 2.106e13, *first.Value, 1)
	assert.Equal(t, ProviderWorldBank, first.Source)
	assert.False(t, first.Proxy)

	// The null value survives as an absent magnitude, not a dropped row.
	second := outcome.Observations[1]
	assert.Equal(t, 2021, second.Year)
	assert.False(t, second.HasValue())
}

func TestWorldBankFetchErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"message": [{"id": "120", "key": "Invalid value", "value": "The provided parameter value is not valid"}]}]`))
	}))
	defer srv.Close()

	adapter := NewWorldBank(srv.URL, testClient(ProviderWorldBank), indicator.Default())
	outcome := adapter.Fetch(context.Background(), []string{"NY.GDP.MKTP.CD"}, []string{"USA"}, domain.YearRange{Start: 2020, End: 2020})

	require.Equal(t, domain.OutcomeFailure, outcome.Kind)
	assert.Equal(t, dErrors.CodePermanent, dErrors.CodeOf(outcome.Reason))
	assert.Contains(t, outcome.Reason.Error(), "id 120")
}

func TestWorldBankFetchPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "SP.POP.TOTL") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[
			{"page": 1, "pages": 1},
			[{"countryiso3code": "USA", "date": "2020", "value": 331500000}]
		]`))
	}))
	defer srv.Close()

	adapter := NewWorldBank(srv.URL, testClient(ProviderWorldBank), indicator.Default())
	outcome := adapter.Fetch(context.Background(), []string{"NY.GDP.MKTP.CD", "SP.POP.TOTL"}, []string{"USA"}, domain.YearRange{Start: 2020, End: 2020})

	require.Equal(t, domain.OutcomePartial, outcome.Kind)
	assert.Len(t, outcome.Observations, 1)
	require.Error(t, outcome.Reason)
	assert.Contains(t, outcome.Reason.Error(), "SP.POP.TOTL")
	assert.Equal(t, dErrors.CodeTransient, dErrors.CodeOf(outcome.Reason))
}

func TestWorldBankFetchRejectsForeignIndicator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an indicator owned by another provider")
	}))
	defer srv.Close()

	adapter := NewWorldBank(srv.URL, testClient(ProviderWorldBank), indicator.Default())
	outcome := adapter.Fetch(context.Background(), []string{"WHOSIS_000001"}, []string{"USA"}, domain.YearRange{Start: 2020, End: 2020})

	require.Equal(t, domain.OutcomeFailure, outcome.Kind)
	assert.Equal(t, dErrors.CodeUnknownIndicator, dErrors.CodeOf(outcome.Reason))
}

func TestWorldBankFetchAbortsOnDeadContext(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`[{"page": 1}, []]`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapter := NewWorldBank(srv.URL, testClient(ProviderWorldBank), indicator.Default())
	outcome := adapter.Fetch(ctx, []string{"NY.GDP.MKTP.CD", "SP.POP.TOTL"}, []string{"USA"}, domain.YearRange{Start: 2020, End: 2020})

	require.Equal(t, domain.OutcomeFailure, outcome.Kind)
	assert.Equal(t, dErrors.CodeTimeout, dErrors.CodeOf(outcome.Reason))
	assert.Zero(t, requests)
}
