package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tellus/internal/aggregate"
	"tellus/internal/domain"
	"tellus/internal/export"
)

var (
	fetchIndicators []string
	fetchCountries  []string
	fetchYears      string
	fetchFormat     string
	fetchRefresh    bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch normalized observations for indicators, countries, and years",
	Example: `  tellus fetch --indicators NY.GDP.MKTP.CD --countries USA,FRA --years 2018:2022
  tellus fetch --indicators NY.GDP.MKTP.CD,WHOSIS_000001 --countries DEU --years 2020 --format json`,
	RunE: runWithApp(func(ctx context.Context, a *app) error {
		query, err := buildQuery(fetchIndicators, fetchCountries, fetchYears)
		if err != nil {
			return err
		}

		if fetchRefresh {
			if err := a.resolver.Invalidate(ctx, query); err != nil {
				return fmt.Errorf("invalidate cache: %w", err)
			}
		}

		result, err := a.resolver.Resolve(ctx, query)
		if err != nil {
			return err
		}

		if fetchFormat == "json" {
			return printJSON(result)
		}
		printWarnings(result.Warnings)
		return export.EncodeTo(os.Stdout, result.Observations)
	}),
}

var (
	trendIndicator string
	trendCountry   string
	trendYears     string
)

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Fit a linear trend for one indicator in one country",
	Example: `  tellus trend --indicator NY.GDP.MKTP.CD --country USA --years 2010:2022`,
	RunE: runWithApp(func(ctx context.Context, a *app) error {
		query, err := buildQuery([]string{trendIndicator}, []string{trendCountry}, trendYears)
		if err != nil {
			return err
		}

		result, err := a.resolver.Resolve(ctx, query)
		if err != nil {
			return err
		}
		printWarnings(result.Warnings)

		insight, err := a.analytics.Trend(ctx, result.Observations, query.Indicators()[0], query.Countries()[0])
		if err != nil {
			return err
		}
		return printJSON(insight)
	}),
}

var (
	correlateIndicators []string
	correlateCountries  []string
	correlateYears      string
)

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Correlate indicator series aligned on (country, year)",
	Long: "With exactly two indicators, computes one Pearson coefficient over\n" +
		"their (country, year) intersection. With more, computes the full\n" +
		"pairwise correlation matrix.",
	Example: `  tellus correlate --indicators NY.GDP.MKTP.CD,WHOSIS_000001 --countries USA,FRA,DEU --years 2010:2022`,
	RunE: runWithApp(func(ctx context.Context, a *app) error {
		query, err := buildQuery(correlateIndicators, correlateCountries, correlateYears)
		if err != nil {
			return err
		}

		result, err := a.resolver.Resolve(ctx, query)
		if err != nil {
			return err
		}
		printWarnings(result.Warnings)

		codes := query.Indicators()
		var insight any
		if len(codes) == 2 {
			insight, err = a.analytics.Correlation(ctx, result.Observations, codes[0], codes[1])
		} else {
			insight, err = a.analytics.CorrelationMatrix(ctx, result.Observations, codes)
		}
		if err != nil {
			return err
		}
		return printJSON(insight)
	}),
}

var (
	summaryIndicator string
	summaryCountry   string
	summaryYears     string
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize one indicator's values in one country",
	Example: `  tellus summary --indicator WHOSIS_000001 --country JPN --years 2000:2022`,
	RunE: runWithApp(func(ctx context.Context, a *app) error {
		query, err := buildQuery([]string{summaryIndicator}, []string{summaryCountry}, summaryYears)
		if err != nil {
			return err
		}

		result, err := a.resolver.Resolve(ctx, query)
		if err != nil {
			return err
		}
		printWarnings(result.Warnings)

		insight, err := a.analytics.Summary(ctx, result.Observations, query.Indicators()[0], query.Countries()[0])
		if err != nil {
			return err
		}
		return printJSON(insight)
	}),
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the registered indicators",
	RunE: runWithApp(func(_ context.Context, a *app) error {
		fmt.Printf("%-22s %-13s %-11s %s\n", "CODE", "CLASS", "PROVIDER", "TITLE")
		for _, spec := range a.catalog.All() {
			fmt.Printf("%-22s %-13s %-11s %s\n", spec.Code, spec.Class, spec.Provider, spec.Title)
		}
		return nil
	}),
}

func init() {
	fetchCmd.Flags().StringSliceVar(&fetchIndicators, "indicators", nil, "Canonical indicator codes (comma-separated)")
	fetchCmd.Flags().StringSliceVar(&fetchCountries, "countries", nil, "ISO3 country codes (comma-separated)")
	fetchCmd.Flags().StringVar(&fetchYears, "years", "", "Year range start:end, or a single year")
	fetchCmd.Flags().StringVar(&fetchFormat, "format", "flat", "Output format: flat or json")
	fetchCmd.Flags().BoolVar(&fetchRefresh, "refresh", false, "Invalidate cached entries before fetching")

	trendCmd.Flags().StringVar(&trendIndicator, "indicator", "", "Canonical indicator code")
	trendCmd.Flags().StringVar(&trendCountry, "country", "", "ISO3 country code")
	trendCmd.Flags().StringVar(&trendYears, "years", "", "Year range start:end, or a single year")

	correlateCmd.Flags().StringSliceVar(&correlateIndicators, "indicators", nil, "Canonical indicator codes (at least two)")
	correlateCmd.Flags().StringSliceVar(&correlateCountries, "countries", nil, "ISO3 country codes (comma-separated)")
	correlateCmd.Flags().StringVar(&correlateYears, "years", "", "Year range start:end, or a single year")

	summaryCmd.Flags().StringVar(&summaryIndicator, "indicator", "", "Canonical indicator code")
	summaryCmd.Flags().StringVar(&summaryCountry, "country", "", "ISO3 country code")
	summaryCmd.Flags().StringVar(&summaryYears, "years", "", "Year range start:end, or a single year")
}

// buildQuery validates flag input into an immutable query.
func buildQuery(indicators, countries []string, years string) (domain.Query, error) {
	yearRange, err := parseYears(years)
	if err != nil {
		return domain.Query{}, err
	}
	query, err := domain.NewQuery(indicators, countries, yearRange, domain.HintNone)
	if err != nil {
		return domain.Query{}, fmt.Errorf("invalid query: %w", err)
	}
	return query, nil
}

// parseYears accepts "2018:2022" or a single "2020".
func parseYears(s string) (domain.YearRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.YearRange{}, fmt.Errorf("--years is required (start:end or a single year)")
	}

	parts := strings.SplitN(s, ":", 2)
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return domain.YearRange{}, fmt.Errorf("invalid year %q", parts[0])
	}
	end := start
	if len(parts) == 2 {
		end, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return domain.YearRange{}, fmt.Errorf("invalid year %q", parts[1])
		}
	}
	return domain.YearRange{Start: start, End: end}, nil
}

func printWarnings(warnings []aggregate.Warning) {
	for _, w := range warnings {
		if w.Provider != "" {
			fmt.Fprintf(os.Stderr, "warning [%s] %s: %s\n", w.Code, w.Provider, w.Message)
			continue
		}
		fmt.Fprintf(os.Stderr, "warning [%s] %s\n", w.Code, w.Message)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
