// Package analytics computes reproducible statistics over normalized
// observations. Every operation is a pure function of its input set: identical
// observations produce identical results, assumptions, and limitations, in any
// input order. The engine performs no I/O and consults no clock beyond the
// request-scoped one stamped into ComputedAt.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"tellus/internal/domain"
	dErrors "tellus/pkg/domain-errors"
	"tellus/pkg/requestcontext"
)

const minTrendYears = 2

// minAlignedPoints is the smallest (country, year) intersection a correlation
// coefficient is computed over.
const minAlignedPoints = 3

// TrendResult is an ordinary least squares fit over (year, value) pairs.
type TrendResult struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
	// Delta is the fitted change from the first to the last observed year.
	Delta     float64 `json:"delta"`
	FirstYear int     `json:"first_year"`
	LastYear  int     `json:"last_year"`
	Points    int     `json:"points"`
}

// CorrelationResult is a Pearson coefficient over the (country, year)
// intersection of two indicator series.
type CorrelationResult struct {
	Coefficient   float64 `json:"coefficient"`
	AlignedPoints int     `json:"aligned_points"`
}

// SummaryResult describes the present values of one indicator selection.
type SummaryResult struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Count  int     `json:"count"`
}

// MatrixResult holds pairwise Pearson coefficients. A nil cell means the pair
// had no defined coefficient (too few aligned points or zero variance).
type MatrixResult struct {
	Indicators []string                       `json:"indicators"`
	Cells      map[string]map[string]*float64 `json:"cells"`
}

type Engine struct {
	logger *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Trend fits a linear regression over the present (year, value) pairs of one
// indicator in one country. It needs at least two distinct years.
func (e *Engine) Trend(ctx context.Context, obs []domain.Observation, code, country string) (domain.Insight, error) {
	cells, collisions := valuesByCell(obs, code)

	points := make([]seriesPoint, 0, len(cells))
	proxy := newCountrySet()
	for cell, v := range cells {
		if cell.country != country {
			continue
		}
		points = append(points, seriesPoint{year: cell.year, value: v.value})
		if v.proxy {
			proxy.add(cell.country)
		}
	}
	if len(points) < minTrendYears {
		return domain.Insight{}, dErrors.Newf(dErrors.CodeInsufficientData,
			"trend needs at least %d distinct years for %s in %s, got %d", minTrendYears, code, country, len(points))
	}
	sort.Slice(points, func(i, j int) bool { return points[i].year < points[j].year })

	slope, intercept, r2 := olsFit(points)
	first, last := points[0].year, points[len(points)-1].year
	result := TrendResult{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  r2,
		Delta:     slope * float64(last-first),
		FirstYear: first,
		LastYear:  last,
		Points:    len(points),
	}

	e.logger.DebugContext(ctx, "trend computed",
		"indicator", code,
		"country", country,
		"points", len(points),
		"slope", slope,
	)

	return e.insight(ctx, domain.Insight{
		Description: fmt.Sprintf("linear trend of %s for %s over %d-%d", code, country, first, last),
		Method:      domain.MethodLinearTrend,
		Inputs:      []string{code},
		Assumptions: assumptions(collisions),
		Limitations: proxy.limitations(),
		Result:      result,
	}), nil
}

// Correlation computes the Pearson coefficient of two indicator series over
// their (country, year) intersection. The exact alignment set is recorded in
// the Insight assumptions. The coefficient is symmetric in its arguments.
func (e *Engine) Correlation(ctx context.Context, obs []domain.Observation, codeA, codeB string) (domain.Insight, error) {
	cellsA, collisionsA := valuesByCell(obs, codeA)
	cellsB, collisionsB := valuesByCell(obs, codeB)

	aligned := alignCells(cellsA, cellsB)
	if len(aligned) < minAlignedPoints {
		return domain.Insight{}, dErrors.Newf(dErrors.CodeInsufficientData,
			"correlation of %s and %s needs at least %d aligned (country, year) points, got %d",
			codeA, codeB, minAlignedPoints, len(aligned))
	}

	x := make([]float64, len(aligned))
	y := make([]float64, len(aligned))
	proxy := newCountrySet()
	for i, cell := range aligned {
		a, b := cellsA[cell], cellsB[cell]
		x[i], y[i] = a.value, b.value
		if a.proxy || b.proxy {
			proxy.add(cell.country)
		}
	}

	coefficient, ok := pearson(x, y)
	if !ok {
		return domain.Insight{}, dErrors.Newf(dErrors.CodeInsufficientData,
			"correlation of %s and %s is undefined: a series has zero variance", codeA, codeB)
	}

	e.logger.DebugContext(ctx, "correlation computed",
		"indicator_a", codeA,
		"indicator_b", codeB,
		"aligned_points", len(aligned),
		"coefficient", coefficient,
	)

	return e.insight(ctx, domain.Insight{
		Description: fmt.Sprintf("Pearson correlation of %s and %s over %d aligned points", codeA, codeB, len(aligned)),
		Method:      domain.MethodPearsonCorrelation,
		Inputs:      []string{codeA, codeB},
		Assumptions: append(assumptions(collisionsA || collisionsB), alignmentAssumption(aligned)),
		Limitations: proxy.limitations(),
		Result:      CorrelationResult{Coefficient: coefficient, AlignedPoints: len(aligned)},
	}), nil
}

// Summary reports min/max/mean/median/count of the present values of one
// indicator in one country.
func (e *Engine) Summary(ctx context.Context, obs []domain.Observation, code, country string) (domain.Insight, error) {
	cells, collisions := valuesByCell(obs, code)

	values := make([]float64, 0, len(cells))
	proxy := newCountrySet()
	for cell, v := range cells {
		if cell.country != country {
			continue
		}
		values = append(values, v.value)
		if v.proxy {
			proxy.add(cell.country)
		}
	}
	if len(values) == 0 {
		return domain.Insight{}, dErrors.Newf(dErrors.CodeInsufficientData,
			"summary of %s for %s has no present values", code, country)
	}
	sort.Float64s(values)

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	result := SummaryResult{
		Min:    values[0],
		Max:    values[len(values)-1],
		Mean:   sum / float64(len(values)),
		Median: median(values),
		Count:  len(values),
	}

	return e.insight(ctx, domain.Insight{
		Description: fmt.Sprintf("summary of %s for %s", code, country),
		Method:      domain.MethodSummary,
		Inputs:      []string{code},
		Assumptions: assumptions(collisions),
		Limitations: proxy.limitations(),
		Result:      result,
	}), nil
}

// CorrelationMatrix computes pairwise Pearson coefficients over every pair of
// the given indicators. Pairs with no defined coefficient stay nil instead of
// failing the whole matrix.
func (e *Engine) CorrelationMatrix(ctx context.Context, obs []domain.Observation, codes []string) (domain.Insight, error) {
	unique := uniqueSorted(codes)
	if len(unique) < 2 {
		return domain.Insight{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"correlation matrix needs at least 2 distinct indicators, got %d", len(unique))
	}

	cells := make(map[string]map[cellKey]cellValue, len(unique))
	collisions := false
	proxy := newCountrySet()
	for _, code := range unique {
		byCell, collided := valuesByCell(obs, code)
		cells[code] = byCell
		collisions = collisions || collided
		for cell, v := range byCell {
			if v.proxy {
				proxy.add(cell.country)
			}
		}
	}

	matrix := MatrixResult{
		Indicators: unique,
		Cells:      make(map[string]map[string]*float64, len(unique)),
	}
	for _, a := range unique {
		matrix.Cells[a] = make(map[string]*float64, len(unique))
		for _, b := range unique {
			matrix.Cells[a][b] = pairCoefficient(cells[a], cells[b])
		}
	}

	e.logger.DebugContext(ctx, "correlation matrix computed",
		"indicators", len(unique),
	)

	return e.insight(ctx, domain.Insight{
		Description: fmt.Sprintf("pairwise Pearson correlation of %d indicators", len(unique)),
		Method:      domain.MethodCorrelationMatrix,
		Inputs:      unique,
		Assumptions: append(assumptions(collisions),
			fmt.Sprintf("pairs with fewer than %d aligned (country, year) points left empty", minAlignedPoints)),
		Limitations: proxy.limitations(),
		Result:      matrix,
	}), nil
}

func (e *Engine) insight(ctx context.Context, in domain.Insight) domain.Insight {
	in.ID = uuid.New()
	in.ComputedAt = requestcontext.Now(ctx)
	return in
}

// cellKey addresses one (country, year) slot of an indicator series.
type cellKey struct {
	country string
	year    int
}

type cellValue struct {
	value float64
	proxy bool
}

type seriesPoint struct {
	year  int
	value float64
}

// valuesByCell indexes the present values of one indicator by (country, year).
// Where several sources report the same cell, the first after canonical
// ordering wins; the second return reports whether that happened.
func valuesByCell(obs []domain.Observation, code string) (map[cellKey]cellValue, bool) {
	sorted := make([]domain.Observation, len(obs))
	copy(sorted, obs)
	domain.SortObservations(sorted)

	cells := make(map[cellKey]cellValue)
	collisions := false
	for _, o := range sorted {
		if o.Indicator != code || !o.HasValue() {
			continue
		}
		key := cellKey{country: o.Country, year: o.Year}
		if _, exists := cells[key]; exists {
			collisions = true
			continue
		}
		cells[key] = cellValue{value: *o.Value, proxy: o.Proxy}
	}
	return cells, collisions
}

// alignCells returns the sorted (country, year) intersection of two series.
func alignCells(a, b map[cellKey]cellValue) []cellKey {
	aligned := make([]cellKey, 0, len(a))
	for cell := range a {
		if _, ok := b[cell]; ok {
			aligned = append(aligned, cell)
		}
	}
	sort.Slice(aligned, func(i, j int) bool {
		if aligned[i].country != aligned[j].country {
			return aligned[i].country < aligned[j].country
		}
		return aligned[i].year < aligned[j].year
	})
	return aligned
}

func alignmentAssumption(aligned []cellKey) string {
	parts := make([]string, len(aligned))
	for i, cell := range aligned {
		parts[i] = fmt.Sprintf("%s:%d", cell.country, cell.year)
	}
	return "alignment: " + strings.Join(parts, ", ")
}

func assumptions(collisions bool) []string {
	out := []string{"absent values excluded"}
	if collisions {
		out = append(out, "first source per (country, year) after canonical ordering")
	}
	return out
}

func pairCoefficient(a, b map[cellKey]cellValue) *float64 {
	aligned := alignCells(a, b)
	if len(aligned) < minAlignedPoints {
		return nil
	}
	x := make([]float64, len(aligned))
	y := make([]float64, len(aligned))
	for i, cell := range aligned {
		x[i] = a[cell].value
		y[i] = b[cell].value
	}
	coefficient, ok := pearson(x, y)
	if !ok {
		return nil
	}
	return &coefficient
}

// olsFit computes slope, intercept, and R² of a least squares line. With zero
// residual and zero total variance the fit is exact, so R² is 1.
func olsFit(points []seriesPoint) (slope, intercept, r2 float64) {
	n := float64(len(points))

	var sumX, sumY float64
	for _, p := range points {
		sumX += float64(p.year)
		sumY += p.value
	}
	meanX, meanY := sumX/n, sumY/n

	var covXY, varX float64
	for _, p := range points {
		dx := float64(p.year) - meanX
		covXY += dx * (p.value - meanY)
		varX += dx * dx
	}
	slope = covXY / varX
	intercept = meanY - slope*meanX

	var ssRes, ssTot float64
	for _, p := range points {
		fitted := slope*float64(p.year) + intercept
		ssRes += (p.value - fitted) * (p.value - fitted)
		ssTot += (p.value - meanY) * (p.value - meanY)
	}
	if ssTot == 0 {
		return slope, intercept, 1
	}
	return slope, intercept, 1 - ssRes/ssTot
}

// pearson computes the correlation coefficient of two equal-length series.
// Zero variance in either series leaves the coefficient undefined.
func pearson(x, y []float64) (float64, bool) {
	n := float64(len(x))

	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var covXY, varX, varY float64
	for i := range x {
		dx, dy := x[i]-meanX, y[i]-meanY
		covXY += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	denom := math.Sqrt(varX * varY)
	if denom == 0 {
		return 0, false
	}
	return covXY / denom, true
}

// median expects values sorted ascending and non-empty.
func median(values []float64) float64 {
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}

type countrySet map[string]bool

func newCountrySet() countrySet {
	return make(countrySet)
}

func (s countrySet) add(country string) {
	s[country] = true
}

// limitations renders one capital-proxy line per affected country, sorted.
func (s countrySet) limitations() []string {
	if len(s) == 0 {
		return nil
	}
	countries := make([]string, 0, len(s))
	for c := range s {
		countries = append(countries, c)
	}
	sort.Strings(countries)
	out := make([]string, len(countries))
	for i, c := range countries {
		out[i] = "capital-city proxy used for " + c
	}
	return out
}

func uniqueSorted(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
