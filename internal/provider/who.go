package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"tellus/internal/domain"
	"tellus/internal/indicator"
	"tellus/internal/provider/httpx"
	dErrors "tellus/pkg/domain-errors"
)

// WHO fetches health series from the WHO Global Health Observatory OData
// API. The API filters by one spatial dimension at a time, so each
// indicator-country pair is its own request; years are filtered client-side.
type WHO struct {
	baseURL string
	client  *httpx.Client
	catalog *indicator.Catalog
}

func NewWHO(baseURL string, client *httpx.Client, catalog *indicator.Catalog) *WHO {
	return &WHO{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		catalog: catalog,
	}
}

func (a *WHO) ID() string {
	return ProviderWHO
}

func (a *WHO) Class() indicator.Class {
	return indicator.ClassHealth
}

func (a *WHO) Fetch(ctx context.Context, indicators, countries []string, years domain.YearRange) domain.FetchOutcome {
	var (
		all       []domain.Observation
		errs      []error
		succeeded int
	)

fetching:
	for _, code := range indicators {
		spec, err := ownedSpec(a.catalog, ProviderWHO, code)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, country := range countries {
			if err := ctx.Err(); err != nil {
				errs = append(errs, dErrors.Wrapf(err, dErrors.CodeTimeout, "who: fetch aborted before %s/%s", code, country))
				break fetching
			}
			obs, err := a.fetchCountry(ctx, spec, country, years)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s/%s: %w", code, country, err))
				continue
			}
			succeeded++
			all = append(all, obs...)
		}
	}

	return outcomeFrom(all, succeeded, errs)
}

func (a *WHO) fetchCountry(ctx context.Context, spec indicator.Spec, country string, years domain.YearRange) ([]domain.Observation, error) {
	params := url.Values{
		"$filter": {fmt.Sprintf("SpatialDim eq '%s'", country)},
	}
	u := fmt.Sprintf("%s/api/%s?%s", a.baseURL, spec.NativeCode, params.Encode())

	var payload struct {
		Value []struct {
			SpatialDim   string   `json:"SpatialDim"`
			TimeDim      *int     `json:"TimeDim"`
			NumericValue *float64 `json:"NumericValue"`
		} `json:"value"`
	}
	if err := a.client.GetJSON(ctx, u, &payload); err != nil {
		return nil, err
	}

	var obs []domain.Observation
	for _, row := range payload.Value {
		if row.TimeDim == nil || !years.Contains(*row.TimeDim) {
			continue
		}
		iso3 := strings.ToUpper(row.SpatialDim)
		if iso3 == "" {
			iso3 = country
		}
		obs = append(obs, domain.Observation{
			Country:   iso3,
			Year:      *row.TimeDim,
			Indicator: spec.Code,
			Value:     row.NumericValue,
			Source:    ProviderWHO,
		})
	}
	return obs, nil
}
