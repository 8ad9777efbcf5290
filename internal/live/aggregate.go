// Package live runs the strategy against a streaming feed, placing real
// (or paper) orders through an exchange client.
package live

import (
	"time"

	"vela/internal/domain"
)

// Aggregator rolls a tick stream into fixed-interval OHLCV bars. Ticks
// must arrive in time order; a tick landing in a new interval completes
// the previous bar.
type Aggregator struct {
	symbol   string
	interval time.Duration

	bucket  time.Time
	open    float64
	high    float64
	low     float64
	close   float64
	volume  float64
	started bool
}

// NewAggregator creates an Aggregator producing bars of the given interval.
func NewAggregator(symbol string, interval time.Duration) *Aggregator {
	return &Aggregator{symbol: symbol, interval: interval}
}

// Add folds a tick into the current bar. When the tick opens a new
// interval, the completed previous bar is returned with ok = true.
func (a *Aggregator) Add(t domain.Tick) (bar domain.Bar, ok bool) {
	bucket := t.Timestamp.Truncate(a.interval)

	if a.started && bucket.After(a.bucket) {
		bar, ok = a.snapshot(), true
		a.started = false
	}

	if !a.started {
		a.started = true
		a.bucket = bucket
		a.open = t.Price
		a.high = t.Price
		a.low = t.Price
		a.volume = 0
	}
	if t.Price > a.high {
		a.high = t.Price
	}
	if t.Price < a.low {
		a.low = t.Price
	}
	a.close = t.Price
	a.volume += t.Size
	return bar, ok
}

// Flush returns the in-progress bar, if any, and resets the aggregator.
func (a *Aggregator) Flush() (domain.Bar, bool) {
	if !a.started {
		return domain.Bar{}, false
	}
	a.started = false
	return a.snapshot(), true
}

func (a *Aggregator) snapshot() domain.Bar {
	return domain.Bar{
		Symbol:    a.symbol,
		Timestamp: a.bucket,
		Open:      a.open,
		High:      a.high,
		Low:       a.low,
		Close:     a.close,
		Volume:    a.volume,
	}
}
