package domain

import "sort"

// Observation is one normalized statistical fact. Every value that reaches the
// analytics engine has this shape, regardless of which provider produced it.
type Observation struct {
	Country   string   // ISO3 country code
	Year      int      // calendar year the value describes
	Indicator string   // canonical indicator code
	Value     *float64 // nil when the provider reported no value
	Source    string   // provider id that produced the fact
	Date      string   // optional ISO date for sub-annual data, empty for annual
	Proxy     bool     // measured at a representative point, not country-wide
}

// Key identifies an Observation within one resolution. Two providers reporting
// different values for the same country/year/indicator are distinct keys and
// are both retained; reconciliation is the consumer's call, never ours.
type Key struct {
	Country   string
	Year      int
	Indicator string
	Source    string
}

// Key returns the natural key of the observation.
func (o Observation) Key() Key {
	return Key{Country: o.Country, Year: o.Year, Indicator: o.Indicator, Source: o.Source}
}

// HasValue reports whether the provider supplied a numeric value.
func (o Observation) HasValue() bool {
	return o.Value != nil
}

// Float returns a copy of v suitable for Observation.Value.
func Float(v float64) *float64 {
	return &v
}

// less orders keys by country, year, indicator, source.
func (k Key) less(other Key) bool {
	if k.Country != other.Country {
		return k.Country < other.Country
	}
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	if k.Indicator != other.Indicator {
		return k.Indicator < other.Indicator
	}
	return k.Source < other.Source
}

// SortObservations orders observations canonically by natural key. Aggregation
// results are sorted this way so output never depends on arrival order.
func SortObservations(obs []Observation) {
	sort.Slice(obs, func(i, j int) bool {
		return obs[i].Key().less(obs[j].Key())
	})
}
