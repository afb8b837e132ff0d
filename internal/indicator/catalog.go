// Package indicator holds the canonical indicator catalog. Every queryable
// indicator is registered here with its class, owning provider, and the
// provider-native identifier. The aggregator routes sub-queries by consulting
// the catalog only; shared logic never branches on provider specifics.
package indicator

import (
	"sort"
	"sync"

	dErrors "tellus/pkg/domain-errors"
)

// Class groups indicators by domain. Cache TTLs key off it.
type Class string

const (
	ClassEconomic     Class = "economic"
	ClassHealth       Class = "health"
	ClassAgricultural Class = "agricultural"
	ClassClimate      Class = "climate"
)

// IsValid reports whether the class is one of the recognized values.
func (c Class) IsValid() bool {
	switch c {
	case ClassEconomic, ClassHealth, ClassAgricultural, ClassClimate:
		return true
	}
	return false
}

// Spec describes one registered indicator.
type Spec struct {
	Code       string // canonical code used in queries
	Title      string
	Class      Class
	Provider   string // owning provider id; exactly one per indicator
	NativeCode string // provider-native identifier
	Unit       string
}

// Catalog maps canonical codes to their specs.
type Catalog struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{specs: make(map[string]Spec)}
}

// Register adds an indicator. A code registers at most once; re-registration
// would silently reroute queries, so it fails instead.
func (c *Catalog) Register(spec Spec) error {
	if spec.Code == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "indicator code is required")
	}
	if spec.Provider == "" {
		return dErrors.Newf(dErrors.CodeInvalidInput, "indicator %s needs an owning provider", spec.Code)
	}
	if spec.NativeCode == "" {
		return dErrors.Newf(dErrors.CodeInvalidInput, "indicator %s needs a provider-native code", spec.Code)
	}
	if !spec.Class.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "indicator %s has unrecognized class %q", spec.Code, spec.Class)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.specs[spec.Code]; exists {
		return dErrors.Newf(dErrors.CodeInvalidInput, "indicator %s already registered", spec.Code)
	}
	c.specs[spec.Code] = spec
	return nil
}

// Lookup resolves a canonical code.
func (c *Catalog) Lookup(code string) (Spec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.specs[code]
	if !ok {
		return Spec{}, dErrors.Newf(dErrors.CodeUnknownIndicator, "indicator not registered: %s", code)
	}
	return spec, nil
}

// GroupByProvider splits canonical codes into per-provider groups, collecting
// codes with no registration separately. Group members keep the input order.
func (c *Catalog) GroupByProvider(codes []string) (groups map[string][]string, unknown []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	groups = make(map[string][]string)
	for _, code := range codes {
		spec, ok := c.specs[code]
		if !ok {
			unknown = append(unknown, code)
			continue
		}
		groups[spec.Provider] = append(groups[spec.Provider], code)
	}
	return groups, unknown
}

// All returns every registered spec, sorted by code.
func (c *Catalog) All() []Spec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Spec, 0, len(c.specs))
	for _, spec := range c.specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
