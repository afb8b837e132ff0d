package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"tellus/internal/domain"
	"tellus/internal/indicator"
	"tellus/internal/provider/httpx"
	dErrors "tellus/pkg/domain-errors"
)

// powerMissing is the sentinel NASA POWER uses for absent daily samples.
const powerMissing = -999

// NASAPower fetches daily solar and meteorological history from the NASA
// POWER API at each country's capital coordinate and collapses it to annual
// means. Every resulting Observation is a point proxy for the country.
type NASAPower struct {
	baseURL string
	client  *httpx.Client
	catalog *indicator.Catalog
}

func NewNASAPower(baseURL string, client *httpx.Client, catalog *indicator.Catalog) *NASAPower {
	return &NASAPower{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		catalog: catalog,
	}
}

func (a *NASAPower) ID() string {
	return ProviderNASAPower
}

func (a *NASAPower) Class() indicator.Class {
	return indicator.ClassClimate
}

func (a *NASAPower) Fetch(ctx context.Context, indicators, countries []string, years domain.YearRange) domain.FetchOutcome {
	var (
		all       []domain.Observation
		errs      []error
		succeeded int
	)

fetching:
	for _, code := range indicators {
		spec, err := ownedSpec(a.catalog, ProviderNASAPower, code)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, country := range countries {
			if err := ctx.Err(); err != nil {
				errs = append(errs, dErrors.Wrapf(err, dErrors.CodeTimeout, "nasapower: fetch aborted before %s/%s", code, country))
				break fetching
			}
			coord, ok := CapitalCoord(country)
			if !ok {
				errs = append(errs, unknownPointCountry(ProviderNASAPower, country))
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

func (a *NASAPower) fetchPoint(ctx context.Context, spec indicator.Spec, country string, coord Coord, years domain.YearRange) ([]domain.Observation, error) {
	params := url.Values{
		"parameters": {spec.NativeCode},
		"community":  {"AG"},
		"latitude":   {strconv.FormatFloat(coord.Lat, 'f', 4, 64)},
		"longitude":  {strconv.FormatFloat(coord.Lon, 'f', 4, 64)},
		"start":      {fmt.Sprintf("%d0101", years.Start)},
		"end":        {fmt.Sprintf("%d1231", years.End)},
		"format":     {"JSON"},
	}
	u := fmt.Sprintf("%s/api/temporal/daily/point?%s", a.baseURL, params.Encode())

	// Daily samples arrive keyed by YYYYMMDD under the parameter code.
	var payload struct {
		Properties struct {
			Parameter map[string]map[string]float64 `json:"parameter"`
		} `json:"properties"`
	}
	if err := a.client.GetJSON(ctx, u, &payload); err != nil {
		return nil, err
	}

	series, ok := payload.Properties.Parameter[spec.NativeCode]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodePermanent, "nasapower: response carries no series %s", spec.NativeCode)
	}

	acc := newYearAccumulator()
	for day, v := range series {
		if v == powerMissing || len(day) < 4 {
			continue
		}
		year, err := strconv.Atoi(day[:4])
		if err != nil || !years.Contains(year) {
			continue
		}
		acc.add(year, v)
	}

	yearsSeen, means := acc.means()
	obs := make([]domain.Observation, 0, len(yearsSeen))
	for _, year := range yearsSeen {
		obs = append(obs, domain.Observation{
			Country:   country,
			Year:      year,
			Indicator: spec.Code,
			Value:     domain.Float(means[year]),
			Source:    ProviderNASAPower,
			Proxy:     true,
		})
	}
	return obs, nil
}
