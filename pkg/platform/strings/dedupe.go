// Package strings provides string-set utilities shared across the module.
package strings

import (
	"sort"
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice, trimming
// whitespace from each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, func(s string) string { return s })
}

// DedupeAndTrimUpper is DedupeAndTrim with each element uppercased. Used for
// ISO3 country codes, which are case-insensitive on input.
func DedupeAndTrimUpper(values []string) []string {
	return dedupe(values, strings.ToUpper)
}

// SortedSet trims, dedupes, and sorts the values. Two inputs naming the same
// set in different orders produce identical slices, which is what query
// fingerprinting relies on.
func SortedSet(values []string) []string {
	out := DedupeAndTrim(values)
	sort.Strings(out)
	return out
}

// SortedSetUpper is SortedSet with each element uppercased.
func SortedSetUpper(values []string) []string {
	out := DedupeAndTrimUpper(values)
	sort.Strings(out)
	return out
}

func dedupe(values []string, canon func(string) string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		c := canon(strings.TrimSpace(v))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			result = append(result, c)
		}
	}

	return result
}
