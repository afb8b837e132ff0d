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

// FAO fetches agricultural production series from FAOSTAT. A native code
// encodes domain, element, and item as "QCL/5510/15"; one request covers one
// indicator across all requested countries.
type FAO struct {
	baseURL string
	client  *httpx.Client
	catalog *indicator.Catalog
}

func NewFAO(baseURL string, client *httpx.Client, catalog *indicator.Catalog) *FAO {
	return &FAO{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		catalog: catalog,
	}
}

func (a *FAO) ID() string {
	return ProviderFAO
}

func (a *FAO) Class() indicator.Class {
	return indicator.ClassAgricultural
}

func (a *FAO) Fetch(ctx context.Context, indicators, countries []string, years domain.YearRange) domain.FetchOutcome {
	var (
		all       []domain.Observation
		errs      []error
		succeeded int
	)

	for _, code := range indicators {
		if err := ctx.Err(); err != nil {
			errs = append(errs, dErrors.Wrapf(err, dErrors.CodeTimeout, "fao: fetch aborted before %s", code))
			break
		}
		spec, err := ownedSpec(a.catalog, ProviderFAO, code)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		obs, err := a.fetchIndicator(ctx, spec, countries, years)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", code, err))
			continue
		}
		succeeded++
		all = append(all, obs...)
	}

	return outcomeFrom(all, succeeded, errs)
}

func (a *FAO) fetchIndicator(ctx context.Context, spec indicator.Spec, countries []string, years domain.YearRange) ([]domain.Observation, error) {
	parts := strings.Split(spec.NativeCode, "/")
	if len(parts) != 3 {
		return nil, dErrors.Newf(dErrors.CodeInternal, "fao: native code %q is not domain/element/item", spec.NativeCode)
	}
	faoDomain, element, item := parts[0], parts[1], parts[2]

	yearList := make([]string, 0, years.Span())
	for y := years.Start; y <= years.End; y++ {
		yearList = append(yearList, strconv.Itoa(y))
	}
	params := url.Values{
		"area":    {strings.Join(countries, ",")},
		"area_cs": {"ISO3"},
		"element": {element},
		"item":    {item},
		"year":    {strings.Join(yearList, ",")},
	}
	u := fmt.Sprintf("%s/api/v1/en/data/%s?%s", a.baseURL, faoDomain, params.Encode())

	// FAOSTAT is loose about value types (numbers arrive as numbers or
	// strings depending on the dataset), so rows decode generically.
	var payload struct {
		Data []map[string]any `json:"data"`
	}
	if err := a.client.GetJSON(ctx, u, &payload); err != nil {
		return nil, err
	}

	obs := make([]domain.Observation, 0, len(payload.Data))
	for _, row := range payload.Data {
		iso3, _ := row["Area Code (ISO3)"].(string)
		year, yearOK := numeric(row["Year"])
		if iso3 == "" || !yearOK || !years.Contains(int(year)) {
			continue
		}
		var value *float64
		if v, ok := numeric(row["Value"]); ok {
			value = domain.Float(v)
		}
		obs = append(obs, domain.Observation{
			Country:   strings.ToUpper(iso3),
			Year:      int(year),
			Indicator: spec.Code,
			Value:     value,
			Source:    ProviderFAO,
		})
	}
	return obs, nil
}

// numeric coerces a decoded JSON value to float64, accepting numbers and
// numeric strings.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
