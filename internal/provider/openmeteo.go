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

// OpenMeteo fetches daily climate history from the Open-Meteo archive API at
// each country's capital coordinate and collapses it to annual means. Every
// resulting Observation is a point proxy for the country.
type OpenMeteo struct {
	baseURL string
	client  *httpx.Client
	catalog *indicator.Catalog
}

func NewOpenMeteo(baseURL string, client *httpx.Client, catalog *indicator.Catalog) *OpenMeteo {
	return &OpenMeteo{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		catalog: catalog,
	}
}

func (a *OpenMeteo) ID() string {
	return ProviderOpenMeteo
}

func (a *OpenMeteo) Class() indicator.Class {
	return indicator.ClassClimate
}

func (a *OpenMeteo) Fetch(ctx context.Context, indicators, countries []string, years domain.YearRange) domain.FetchOutcome {
	var (
		all       []domain.Observation
		errs      []error
		succeeded int
	)

fetching:
	for _, code := range indicators {
		spec, err := ownedSpec(a.catalog, ProviderOpenMeteo, code)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, country := range countries {
			if err := ctx.Err(); err != nil {
				errs = append(errs, dErrors.Wrapf(err, dErrors.CodeTimeout, "openmeteo: fetch aborted before %s/%s", code, country))
				break fetching
			}
			coord, ok := CapitalCoord(country)
			if !ok {
				errs = append(errs, unknownPointCountry(ProviderOpenMeteo, country))
				continue
			}
			obs, err := a.fetchPoint(ctx, spec, country, coord, years)
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

func (a *OpenMeteo) fetchPoint(ctx context.Context, spec indicator.Spec, country string, coord Coord, years domain.YearRange) ([]domain.Observation, error) {
	params := url.Values{
		"latitude":   {strconv.FormatFloat(coord.Lat, 'f', 4, 64)},
		"longitude":  {strconv.FormatFloat(coord.Lon, 'f', 4, 64)},
		"start_date": {fmt.Sprintf("%d-01-01", years.Start)},
		"end_date":   {fmt.Sprintf("%d-12-31", years.End)},
		"daily":      {spec.NativeCode},
		"timezone":   {"UTC"},
	}
	u := fmt.Sprintf("%s/v1/archive?%s", a.baseURL, params.Encode())

	var payload struct {
		Daily map[string]json.RawMessage `json:"daily"`
	}
	if err := a.client.GetJSON(ctx, u, &payload); err != nil {
		return nil, err
	}

	var days []string
	if err := json.Unmarshal(payload.Daily["time"], &days); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePermanent, "openmeteo: missing daily time axis")
	}
	var samples []*float64
	if err := json.Unmarshal(payload.Daily[spec.NativeCode], &samples); err != nil {
		return nil, dErrors.Wrapf(err, dErrors.CodePermanent, "openmeteo: missing daily series %s", spec.NativeCode)
	}
	if len(days) != len(samples) {
		return nil, dErrors.Newf(dErrors.CodePermanent, "openmeteo: time axis has %d entries, series has %d", len(days), len(samples))
	}

	acc := newYearAccumulator()
	for i, day := range days {
		if samples[i] == nil || len(day) < 4 {
			continue
		}
		year, err := strconv.Atoi(day[:4])
		if err != nil || !years.Contains(year) {
			continue
		}
		acc.add(year, *samples[i])
	}

	yearsSeen, means := acc.means()
	obs := make([]domain.Observation, 0, len(yearsSeen))
	for _, year := range yearsSeen {
		obs = append(obs, domain.Observation{
			Country:   country,
			Year:      year,
			Indicator: spec.Code,
			Value:     domain.Float(means[year]),
			Source:    ProviderOpenMeteo,
			Proxy:     true,
		})
	}
	return obs, nil
}
