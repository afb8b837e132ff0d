// Package export implements the flat record interchange codec. One
// observation per line, fields separated by pipes:
//
//	country|year|indicator|value|source
//
// An absent value encodes as an empty field. Values render with
// strconv.FormatFloat(v, 'g', -1, 64), the shortest form that parses back to
// the identical float, so encode/decode round-trips preserve precision.
package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tellus/internal/domain"
	dErrors "tellus/pkg/domain-errors"
)

const (
	separator  = "|"
	fieldCount = 5
)

// Encode renders observations as flat records, one per line.
func Encode(obs []domain.Observation) string {
	var b strings.Builder
	for _, o := range obs {
		b.WriteString(formatRecord(o))
		b.WriteByte('\n')
	}
	return b.String()
}

// EncodeTo streams flat records to w.
func EncodeTo(w io.Writer, obs []domain.Observation) error {
	for _, o := range obs {
		if _, err := fmt.Fprintln(w, formatRecord(o)); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	return nil
}

// Decode parses flat records back into observations. Blank lines are skipped;
// anything else malformed fails the whole decode.
func Decode(s string) ([]domain.Observation, error) {
	return DecodeFrom(strings.NewReader(s))
}

// DecodeFrom parses flat records from r.
func DecodeFrom(r io.Reader) ([]domain.Observation, error) {
	var obs []domain.Observation
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		o, err := parseRecord(text, line)
		if err != nil {
			return nil, err
		}
		obs = append(obs, o)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return obs, nil
}

func formatRecord(o domain.Observation) string {
	value := ""
	if o.Value != nil {
		value = strconv.FormatFloat(*o.Value, 'g', -1, 64)
	}
	return strings.Join([]string{o.Country, strconv.Itoa(o.Year), o.Indicator, value, o.Source}, separator)
}

func parseRecord(text string, line int) (domain.Observation, error) {
	fields := strings.Split(text, separator)
	if len(fields) != fieldCount {
		return domain.Observation{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"record %d: expected %d fields, got %d", line, fieldCount, len(fields))
	}

	country := strings.TrimSpace(fields[0])
	if country == "" {
		return domain.Observation{}, dErrors.Newf(dErrors.CodeInvalidInput, "record %d: country is required", line)
	}
	year, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return domain.Observation{}, dErrors.Newf(dErrors.CodeInvalidInput, "record %d: year %q is not an integer", line, fields[1])
	}
	indicator := strings.TrimSpace(fields[2])
	if indicator == "" {
		return domain.Observation{}, dErrors.Newf(dErrors.CodeInvalidInput, "record %d: indicator is required", line)
	}
	source := strings.TrimSpace(fields[4])
	if source == "" {
		return domain.Observation{}, dErrors.Newf(dErrors.CodeInvalidInput, "record %d: source is required", line)
	}

	var value *float64
	if raw := strings.TrimSpace(fields[3]); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Observation{}, dErrors.Newf(dErrors.CodeInvalidInput, "record %d: value %q is not numeric", line, raw)
		}
		value = &v
	}

	return domain.Observation{
		Country:   country,
		Year:      year,
		Indicator: indicator,
		Value:     value,
		Source:    source,
	}, nil
}
