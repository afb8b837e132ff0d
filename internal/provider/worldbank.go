package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"tellus/internal/domain"
	"tellus/internal/indicator"
	"tellus/internal/provider/httpx"
	dErrors "tellus/pkg/domain-errors"
)

// WorldBank fetches annual country-level series from the World Bank open
// data API. One request covers one indicator across all requested countries.
type WorldBank struct {
	baseURL string
	client  *httpx.Client
	catalog *indicator.Catalog
}

func NewWorldBank(baseURL string, client *httpx.Client, catalog *indicator.Catalog) *WorldBank {
	return &WorldBank{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		catalog: catalog,
	}
}

func (a *WorldBank) ID() string {
	return ProviderWorldBank
}

func (a *WorldBank) Class() indicator.Class {
	return indicator.ClassEconomic
}

func (a *WorldBank) Fetch(ctx context.Context, indicators, countries []string, years domain.YearRange) domain.FetchOutcome {
	var (
		all       []domain.Observation
		errs      []error
		succeeded int
	)

	// The API accepts multiple countries in one path segment.
	joined := strings.Join(countries, ";")

	for _, code := range indicators {
		if err := ctx.Err(); err != nil {
			errs = append(errs, dErrors.Wrapf(err, dErrors.CodeTimeout, "worldbank: fetch aborted before %s", code))
			break
		}
		spec, err := ownedSpec(a.catalog, ProviderWorldBank, code)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		obs, err := a.fetchIndicator(ctx, spec, joined, years)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", code, err))
			continue
		}
		succeeded++
		all = append(all, obs...)
	}

	return outcomeFrom(all, succeeded, errs)
}

// wbRow is one data point in the API's row array.
type wbRow struct {
	CountryISO3 string   `json:"countryiso3code"`
	Date        string   `json:"date"`
	Value       *float64 `json:"value"`
}

func (a *WorldBank) fetchIndicator(ctx context.Context, spec indicator.Spec, countries string, years domain.YearRange) ([]domain.Observation, error) {
	params := url.Values{
		"format":   {"json"},
		"per_page": {"1000"},
		"date":     {fmt.Sprintf("%d:%d", years.Start, years.End)},
	}
	u := fmt.Sprintf("%s/v2/country/%s/indicator/%s?%s", a.baseURL, countries, spec.NativeCode, params.Encode())

	// The payload is a two-element array: [metadata, rows]. A one-element
	// array is the API's error envelope.
	var raw []json.RawMessage
	if err := a.client.GetJSON(ctx, u, &raw); err != nil {
		return nil, err
	}
	if len(raw) < 2 {
		return nil, wbRequestError(raw)
	}

	var rows []wbRow
	if err := json.Unmarshal(raw[1], &rows); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePermanent, "worldbank: malformed row array")
	}

	obs := make([]domain.Observation, 0, len(rows))
	for _, row := range rows {
		year, err := strconv.Atoi(row.Date)
		if row.CountryISO3 == "" || err != nil || !years.Contains(year) {
			continue
		}
		obs = append(obs, domain.Observation{
			Country:   row.CountryISO3,
			Year:      year,
			Indicator: spec.Code,
			Value:     row.Value,
			Source:    ProviderWorldBank,
		})
	}
	return obs, nil
}

func wbRequestError(raw []json.RawMessage) error {
	if len(raw) == 1 {
		var envelope struct {
			Message []struct {
				ID    string `json:"id"`
				Value string `json:"value"`
			} `json:"message"`
		}
		if json.Unmarshal(raw[0], &envelope) == nil && len(envelope.Message) > 0 {
			m := envelope.Message[0]
			return dErrors.Newf(dErrors.CodePermanent, "worldbank rejected the request: %s (id %s)", m.Value, m.ID)
		}
	}
	return dErrors.New(dErrors.CodePermanent, "worldbank: unexpected payload shape")
}
