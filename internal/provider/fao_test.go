package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tellus/internal/domain"
	"tellus/internal/indicator"
	dErrors "tellus/pkg/domain-errors"
)

func TestFAOFetchParsesLooseTypes(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/api/v1/en/data/QCL", r.URL.Path)
		w.Write([]byte(`{"data": [
			{"Area Code (ISO3)": "USA", "Year": 2020, "Value": 49690.5, "Unit": "t"},
			{"Area Code (ISO3)": "usa", "Year": "2021", "Value": "44790.4", "Unit": "t"},
			{"Area Code (ISO3)": "DEU", "Year": 2020, "Value": null},
			{"Year": 2020, "Value": 12.0},
			{"Area Code (ISO3)": "DEU", "Year": 1980, "Value": 5.0}
		]}`))
	}))
	defer srv.Close()

	adapter := NewFAO(srv.URL, testClient(ProviderFAO), indicator.Default())
	outcome := adapter.Fetch(context.Background(), []string{"QCL.WHEAT"}, []string{"DEU", "USA"}, domain.YearRange{Start: 2019, End: 2021})

	require.Equal(t, domain.OutcomeSuccess, outcome.Kind)

	q := gotQuery
	assert.Contains(t, q, "area=DEU%2CUSA")
	assert.Contains(t, q, "area_cs=ISO3")
	assert.Contains(t, q, "element=5510")
	assert.Contains(t, q, "item=15")
	assert.Contains(t, q, "year=2019%2C2020%2C2021")

	// Numeric strings coerce, the row without a country drops, the year
	// outside the range drops, and a null Value stays as an absent magnitude.
	require.Len(t, outcome.Observations, 3)
	assert.Equal(t, "USA", outcome.Observations[0].Country)
	assert.InDelta(t, 49690.5, *outcome.Observations[0].Value, 0.001)
	assert.Equal(t, "USA", outcome.Observations[1].Country)
	assert.Equal(t, 2021, outcome.Observations[1].Year)
	assert.InDelta(t, 44790.4, *outcome.Observations[1].Value, 0.001)
	assert.False(t, outcome.Observations[2].HasValue())
	for _, o := range outcome.Observations {
		assert.Equal(t, "QCL.WHEAT", o.Indicator)
		assert.Equal(t, ProviderFAO, o.Source)
	}
}

func TestFAOFetchMalformedNativeCode(t *testing.T) {
	catalog := indicator.NewCatalog()
	require.NoError(t, catalog.Register(indicator.Spec{
		Code:       "QCL.BROKEN",
		Title:      "Broken mapping",
		Class:      indicator.ClassAgricultural,
		Provider:   ProviderFAO,
		NativeCode: "QCL-5510-15",
	}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an unmappable native code")
	}))
	defer srv.Close()

	adapter := NewFAO(srv.URL, testClient(ProviderFAO), catalog)
	outcome := adapter.Fetch(context.Background(), []string{"QCL.BROKEN"}, []string{"USA"}, domain.YearRange{Start: 2020, End: 2020})

	require.Equal(t, domain.OutcomeFailure, outcome.Kind)
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(outcome.Reason))
}

func TestNumericCoercion(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"float", 42.5, 42.5, true},
		{"numeric string", "42.5", 42.5, true},
		{"padded string", " 7 ", 7, true},
		{"word", "many", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := numeric(tc.in)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}
