package bars

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// requiredColumns are the CSV headers every historical data file must carry.
var requiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// timestampLayouts are tried in order when parsing the timestamp column.
// Bare integers are treated as unix seconds (or milliseconds when large
// enough).
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// LoadCSV reads a headered CSV of historical OHLCV data and returns a
// validated Series. Missing required columns fail with a *SchemaError
// naming each absent column; malformed or inconsistent rows fail with an
// *IntegrityError. Column order is free and header matching is
// case-insensitive; extra columns are ignored.
func LoadCSV(r io.Reader, symbol string, expectedInterval time.Duration) (*Series, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	var records []Record
	var issues []RowIssue
	for row := 0; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row %d: %w", row, err)
		}

		rec, parseErr := parseRecord(fields, colIndex)
		if parseErr != nil {
			issues = append(issues, RowIssue{Index: row, Timestamp: rec.Timestamp, Problem: parseErr.Error()})
			continue
		}
		records = append(records, rec)
	}
	if len(issues) > 0 {
		return nil, &IntegrityError{Issues: issues}
	}

	return Load(symbol, records, expectedInterval)
}

func parseRecord(fields []string, colIndex map[string]int) (Record, error) {
	var rec Record

	get := func(col string) (string, error) {
		i := colIndex[col]
		if i >= len(fields) {
			return "", fmt.Errorf("missing value for %s", col)
		}
		return strings.TrimSpace(fields[i]), nil
	}

	tsRaw, err := get("timestamp")
	if err != nil {
		return rec, err
	}
	rec.Timestamp, err = parseTimestamp(tsRaw)
	if err != nil {
		return rec, err
	}

	for col, dst := range map[string]*float64{
		"open":   &rec.Open,
		"high":   &rec.High,
		"low":    &rec.Low,
		"close":  &rec.Close,
		"volume": &rec.Volume,
	} {
		raw, err := get(col)
		if err != nil {
			return rec, err
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return rec, fmt.Errorf("bad %s value %q", col, raw)
		}
		*dst = v
	}
	return rec, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// Heuristic: unix-millisecond timestamps are 13+ digits for any
		// modern date.
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", raw)
}
