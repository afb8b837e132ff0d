// Package provider holds the adapters that translate between canonical
// queries and the upstream statistical APIs. Every adapter satisfies one
// interface; everything provider-specific (URLs, payload shapes, missing-value
// conventions) stays behind it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"tellus/internal/domain"
	"tellus/internal/indicator"
	"tellus/internal/platform/config"
	"tellus/internal/provider/httpx"
	dErrors "tellus/pkg/domain-errors"
)

// Adapter is the universal interface all upstream sources implement.
type Adapter interface {
	// ID returns the stable provider id, also used as Observation.Source.
	ID() string

	// Class returns the provider's primary indicator domain.
	Class() indicator.Class

	// Fetch retrieves observations for canonical indicator codes over the
	// given countries and years. The outcome carries partial results and
	// failure reasons; it never panics on provider misbehavior.
	Fetch(ctx context.Context, indicators, countries []string, years domain.YearRange) domain.FetchOutcome
}

// Registry maintains the registered adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Duplicate ids fail loudly; silently replacing a
// source would reroute live queries.
func (r *Registry) Register(a Adapter) error {
	id := a.ID()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("provider %s already registered", id)
	}
	r.adapters[id] = a
	return nil
}

// Get retrieves an adapter by id.
func (r *Registry) Get(id string) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// All returns every adapter, sorted by id for deterministic iteration.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// IDs returns the sorted registered provider ids.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// NewDefaultRegistry wires the five reference adapters against configured
// base URLs, sharing one limiter and logger across their HTTP clients.
func NewDefaultRegistry(cfg config.Providers, catalog *indicator.Catalog, limiter httpx.Limiter, logger *slog.Logger) (*Registry, error) {
	if catalog == nil {
		return nil, errors.New("indicator catalog is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := func(id string) *httpx.Client {
		opts := []httpx.Option{httpx.WithLogger(logger)}
		if limiter != nil {
			opts = append(opts, httpx.WithLimiter(limiter))
		}
		return httpx.New(id, cfg.HTTPTimeout, opts...)
	}

	registry := NewRegistry()
	adapters := []Adapter{
		NewWorldBank(cfg.WorldBankURL, client(ProviderWorldBank), catalog),
		NewWHO(cfg.WHOURL, client(ProviderWHO), catalog),
		NewFAO(cfg.FAOURL, client(ProviderFAO), catalog),
		NewOpenMeteo(cfg.OpenMeteoURL, client(ProviderOpenMeteo), catalog),
		NewNASAPower(cfg.NASAPowerURL, client(ProviderNASAPower), catalog),
	}
	for _, a := range adapters {
		if err := registry.Register(a); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Provider ids. Observation.Source carries these verbatim.
const (
	ProviderWorldBank = "worldbank"
	ProviderWHO       = "who"
	ProviderFAO       = "fao"
	ProviderOpenMeteo = "openmeteo"
	ProviderNASAPower = "nasapower"
)

// outcomeFrom folds per-unit fetch results into one FetchOutcome. succeeded
// counts units (indicator or indicator-country pairs) that completed, even
// with zero rows; an empty result set is not a failure.
func outcomeFrom(obs []domain.Observation, succeeded int, errs []error) domain.FetchOutcome {
	if len(errs) == 0 {
		return domain.Success(obs)
	}
	reason := errors.Join(errs...)
	if succeeded > 0 {
		return domain.PartialFailure(obs, reason)
	}
	return domain.Failure(reason)
}

// ownedSpec resolves a canonical code and checks the adapter owns it.
func ownedSpec(catalog *indicator.Catalog, providerID, code string) (indicator.Spec, error) {
	spec, err := catalog.Lookup(code)
	if err != nil {
		return indicator.Spec{}, err
	}
	if spec.Provider != providerID {
		return indicator.Spec{}, dErrors.Newf(dErrors.CodeUnknownIndicator, "indicator %s belongs to provider %s, not %s", code, spec.Provider, providerID)
	}
	return spec, nil
}
