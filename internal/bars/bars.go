// Package bars normalizes raw price records into ordered, validated OHLCV
// series for the simulation engine, and caches processed series as Parquet.
package bars

import (
	"sort"
	"time"

	"vela/internal/domain"
)

// Record is one raw input row. Sources (CSV, exchange candles) convert into
// Record before validation; the source data itself is never mutated.
type Record struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Series is an ordered, validated, restartable sequence of bars. It is
// backed by a slice, so iteration can restart from the beginning at any
// time, and it is finite by construction.
type Series struct {
	symbol string
	bars   []domain.Bar
	gaps   []time.Time
}

// Load sorts the records by timestamp ascending and validates them:
// duplicate timestamps, non-positive prices, negative volume, and OHLC
// violations (Low > High, Open/Close outside [Low, High]) all fail with an
// *IntegrityError listing the offending rows. When expectedInterval is
// positive, larger steps between consecutive bars are recorded as gap
// warnings on the Series but do not fail the load.
func Load(symbol string, records []Record, expectedInterval time.Duration) (*Series, error) {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var issues []RowIssue
	var gaps []time.Time
	out := make([]domain.Bar, 0, len(sorted))

	for i, r := range sorted {
		if i > 0 && !r.Timestamp.After(sorted[i-1].Timestamp) {
			issues = append(issues, RowIssue{i, r.Timestamp, "duplicate timestamp"})
			continue
		}
		if bad := validateOHLC(r); bad != "" {
			issues = append(issues, RowIssue{i, r.Timestamp, bad})
			continue
		}
		if expectedInterval > 0 && i > 0 {
			if step := r.Timestamp.Sub(sorted[i-1].Timestamp); step > expectedInterval {
				gaps = append(gaps, r.Timestamp)
			}
		}
		out = append(out, domain.Bar{
			Symbol:    symbol,
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}

	if len(issues) > 0 {
		return nil, &IntegrityError{Issues: issues}
	}
	return &Series{symbol: symbol, bars: out, gaps: gaps}, nil
}

func validateOHLC(r Record) string {
	switch {
	case r.Open <= 0 || r.High <= 0 || r.Low <= 0 || r.Close <= 0:
		return "non-positive price"
	case r.Volume < 0:
		return "negative volume"
	case r.Low > r.High:
		return "low above high"
	case r.Open < r.Low || r.Open > r.High:
		return "open outside low/high range"
	case r.Close < r.Low || r.Close > r.High:
		return "close outside low/high range"
	}
	return ""
}

// Symbol returns the symbol the series was loaded for.
func (s *Series) Symbol() string { return s.symbol }

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// Bars returns the ordered bars. The slice is shared; callers must treat it
// as read-only.
func (s *Series) Bars() []domain.Bar { return s.bars }

// At returns the bar at index i.
func (s *Series) At(i int) domain.Bar { return s.bars[i] }

// Gaps returns the timestamps at which a larger-than-expected step was
// observed during loading. Gaps are advisory; they do not invalidate the
// series.
func (s *Series) Gaps() []time.Time { return s.gaps }

// Slice returns a sub-series covering bars with timestamps in [start, end].
// Zero times leave the corresponding bound open.
func (s *Series) Slice(start, end time.Time) *Series {
	lo := 0
	hi := len(s.bars)
	if !start.IsZero() {
		lo = sort.Search(len(s.bars), func(i int) bool {
			return !s.bars[i].Timestamp.Before(start)
		})
	}
	if !end.IsZero() {
		hi = sort.Search(len(s.bars), func(i int) bool {
			return s.bars[i].Timestamp.After(end)
		})
	}
	if lo > hi {
		lo = hi
	}
	return &Series{symbol: s.symbol, bars: s.bars[lo:hi]}
}
