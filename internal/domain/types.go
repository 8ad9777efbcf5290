// Package domain defines the core value types shared by the bar store,
// strategy, risk gate, simulation engine, and live adapter.
package domain

import "time"

// Bar is a single OHLCV candle. Bars are immutable once ingested; the bar
// store hands out copies by value.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Tick is a single trade print from a live market-data feed. The live
// adapter folds ticks into bars; nothing downstream of the aggregator sees
// individual ticks.
type Tick struct {
	Symbol    string
	Price     float64
	Size      float64
	Timestamp time.Time
}

// SignalType classifies a strategy's per-bar decision.
type SignalType string

const (
	SignalEnterLong  SignalType = "enter_long"
	SignalEnterShort SignalType = "enter_short"
	SignalExit       SignalType = "exit"
	SignalHold       SignalType = "hold"
)

// Signal is a strategy's decision for one bar. Signals are produced fresh
// per bar and never persisted independently.
type Signal struct {
	Time   time.Time
	Type   SignalType
	Price  float64 // reference price (the bar close the signal was derived from)
	Reason string
}

// Direction is the side of an open position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Sign returns +1 for long and -1 for short, the multiplier applied to
// price moves when computing PnL.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Position is an open position. At most one position per symbol is open at
// a time; it is owned exclusively by the engine or adapter driving it.
type Position struct {
	Symbol      string
	Direction   Direction
	EntryPrice  float64
	EntryTime   time.Time
	Size        float64 // base-currency units
	StopPrice   float64
	TargetPrice float64
}

// UnrealizedPnL marks the position to the given price. Fees are accounted
// only when the position closes.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Size * p.Direction.Sign()
}

// ClosedTrade is the immutable record appended to the trade log when a
// position closes. Insertion order is chronological.
type ClosedTrade struct {
	Symbol     string
	Direction  Direction
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	Size       float64
	PnL        float64 // realized, net of fees
	ReturnPct  float64 // PnL over entry notional, in percent
	Fees       float64
	Reason     string // "take_profit", "stop_loss", "signal_reversal", "end_of_data", "emergency_stop"
}

// DurationMinutes returns the holding period in minutes.
func (t ClosedTrade) DurationMinutes() float64 {
	return t.ExitTime.Sub(t.EntryTime).Minutes()
}

// EquityPoint is one mark-to-market observation of account equity. The
// engine appends exactly one per processed bar.
type EquityPoint struct {
	Timestamp   time.Time
	Equity      float64
	DrawdownPct float64 // decline from the running equity peak, in percent
}

// NewClosedTrade derives the immutable trade record from an open position
// and its exit fill. PnL is net of total fees (entry + exit).
func NewClosedTrade(p Position, exitPrice float64, exitTime time.Time, fees float64, reason string) ClosedTrade {
	pnl := (exitPrice-p.EntryPrice)*p.Size*p.Direction.Sign() - fees
	notional := p.EntryPrice * p.Size
	retPct := 0.0
	if notional > 0 {
		retPct = pnl / notional * 100
	}
	return ClosedTrade{
		Symbol:     p.Symbol,
		Direction:  p.Direction,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exitPrice,
		EntryTime:  p.EntryTime,
		ExitTime:   exitTime,
		Size:       p.Size,
		PnL:        pnl,
		ReturnPct:  retPct,
		Fees:       fees,
		Reason:     reason,
	}
}
