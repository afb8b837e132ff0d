package provider

import (
	"sort"

	dErrors "tellus/pkg/domain-errors"
)

// Coord is the representative point used for point-based climate providers:
// the country's capital city. Values derived from it are proxies for the
// whole country and are flagged as such on every Observation.
type Coord struct {
	City string
	Lat  float64
	Lon  float64
}

var capitals = map[string]Coord{
	"AUS": {City: "Canberra", Lat: -35.2809, Lon: 149.1300},
	"BRA": {City: "Brasília", Lat: -15.7939, Lon: -47.8828},
	"CAN": {City: "Ottawa", Lat: 45.4215, Lon: -75.6972},
	"CHN": {City: "Beijing", Lat: 39.9042, Lon: 116.4074},
	"DEU": {City: "Berlin", Lat: 52.5200, Lon: 13.4050},
	"FRA": {City: "Paris", Lat: 48.8566, Lon: 2.3522},
	"GBR": {City: "London", Lat: 51.5074, Lon: -0.1278},
	"IND": {City: "New Delhi", Lat: 28.6139, Lon: 77.2090},
	"JPN": {City: "Tokyo", Lat: 35.6762, Lon: 139.6503},
	"USA": {City: "Washington", Lat: 38.8951, Lon: -77.0364},
}

// CapitalCoord returns the representative coordinate for an ISO3 code.
func CapitalCoord(iso3 string) (Coord, bool) {
	c, ok := capitals[iso3]
	return c, ok
}

// PointCountries lists the ISO3 codes point-based providers can serve.
func PointCountries() []string {
	out := make([]string, 0, len(capitals))
	for iso3 := range capitals {
		out = append(out, iso3)
	}
	sort.Strings(out)
	return out
}

func unknownPointCountry(providerID, iso3 string) error {
	return dErrors.Newf(dErrors.CodeUnknownCountry, "%s has no representative coordinate for %s", providerID, iso3)
}

// yearAccumulator folds daily samples into per-year means.
type yearAccumulator struct {
	sum map[int]float64
	n   map[int]int
}

func newYearAccumulator() *yearAccumulator {
	return &yearAccumulator{sum: make(map[int]float64), n: make(map[int]int)}
}

func (a *yearAccumulator) add(year int, v float64) {
	a.sum[year] += v
	a.n[year]++
}

// means returns the accumulated years in ascending order with their mean
// values. Years without samples are absent, not zero.
func (a *yearAccumulator) means() ([]int, map[int]float64) {
	years := make([]int, 0, len(a.n))
	out := make(map[int]float64, len(a.n))
	for year, count := range a.n {
		years = append(years, year)
		out[year] = a.sum[year] / float64(count)
	}
	sort.Ints(years)
	return years, out
}
