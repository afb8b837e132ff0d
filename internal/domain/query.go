package domain

import (
	dErrors "tellus/pkg/domain-errors"
	pstrings "tellus/pkg/platform/strings"
)

// ChartHint tells the delivery layer how the caller intends to render the
// result. The core never branches on it; it rides along for fingerprint-free
// presentation routing.
type ChartHint string

const (
	HintNone       ChartHint = ""
	HintLine       ChartHint = "line"
	HintBar        ChartHint = "bar"
	HintScatter    ChartHint = "scatter"
	HintChoropleth ChartHint = "choropleth"
)

// IsValid reports whether the hint is one of the recognized values.
func (h ChartHint) IsValid() bool {
	switch h {
	case HintNone, HintLine, HintBar, HintScatter, HintChoropleth:
		return true
	}
	return false
}

// YearRange is an inclusive [Start, End] span of calendar years.
type YearRange struct {
	Start int
	End   int
}

// Contains reports whether year falls inside the range.
func (r YearRange) Contains(year int) bool {
	return year >= r.Start && year <= r.End
}

// Span returns the number of years covered, endpoints included.
func (r YearRange) Span() int {
	return r.End - r.Start + 1
}

// Query is an immutable request for indicator data. Construction normalizes
// the indicator and country sets (trimmed, deduped, sorted; countries
// uppercased) so equivalent queries are identical values.
type Query struct {
	indicators []string
	countries  []string
	years      YearRange
	hint       ChartHint
}

const (
	minQueryYear = 1900
	maxQueryYear = 2100
)

// NewQuery validates and normalizes a query. Indicator and country sets must
// be non-empty, countries must be ISO3 codes, and the year range must be
// ordered and within [1900, 2100].
func NewQuery(indicators, countries []string, years YearRange, hint ChartHint) (Query, error) {
	ind := pstrings.SortedSet(indicators)
	if len(ind) == 0 {
		return Query{}, dErrors.New(dErrors.CodeInvalidInput, "query needs at least one indicator")
	}
	ctr := pstrings.SortedSetUpper(countries)
	if len(ctr) == 0 {
		return Query{}, dErrors.New(dErrors.CodeInvalidInput, "query needs at least one country")
	}
	for _, c := range ctr {
		if !validISO3(c) {
			return Query{}, dErrors.Newf(dErrors.CodeUnknownCountry, "not an ISO3 country code: %q", c)
		}
	}
	if years.Start > years.End {
		return Query{}, dErrors.Newf(dErrors.CodeInvalidInput, "year range start %d after end %d", years.Start, years.End)
	}
	if years.Start < minQueryYear || years.End > maxQueryYear {
		return Query{}, dErrors.Newf(dErrors.CodeInvalidInput, "year range [%d, %d] outside [%d, %d]", years.Start, years.End, minQueryYear, maxQueryYear)
	}
	if !hint.IsValid() {
		return Query{}, dErrors.Newf(dErrors.CodeInvalidInput, "unrecognized chart hint: %q", hint)
	}
	return Query{indicators: ind, countries: ctr, years: years, hint: hint}, nil
}

// Indicators returns a copy of the sorted indicator set.
func (q Query) Indicators() []string {
	return append([]string(nil), q.indicators...)
}

// Countries returns a copy of the sorted ISO3 country set.
func (q Query) Countries() []string {
	return append([]string(nil), q.countries...)
}

// Years returns the inclusive year range.
func (q Query) Years() YearRange {
	return q.years
}

// Hint returns the chart hint.
func (q Query) Hint() ChartHint {
	return q.hint
}

// Subset derives a query over a subset of this query's indicators, keeping
// countries, years, and hint. Inputs are assumed to come from q itself, so no
// re-validation happens.
func (q Query) Subset(indicators []string) Query {
	return Query{
		indicators: pstrings.SortedSet(indicators),
		countries:  append([]string(nil), q.countries...),
		years:      q.years,
		hint:       q.hint,
	}
}

func validISO3(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
