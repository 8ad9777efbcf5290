// Package risk implements the pre-trade risk gate: position sizing, daily
// trade frequency and drawdown limits, and the emergency stop.
package risk

import (
	"fmt"
	"sync"
	"time"

	"vela/internal/config"
)

// Order is a proposed entry submitted to the gate for evaluation. Size is
// in base-currency units; zero means "size it for me" from SizePct of the
// caller's equity.
type Order struct {
	Symbol  string
	Price   float64
	Size    float64
	SizePct float64 // percent of equity to allocate when Size == 0
	Time    time.Time
}

// Decision is an approved order with its (possibly shrunk) size.
type Decision struct {
	Size     float64
	Notional float64
}

// RejectionError is the gate saying no. It is a decision, not a failure:
// callers log it and skip the order.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order rejected: %s", e.Reason)
}

// Rejection reasons.
const (
	ReasonEmergencyStopped = "emergency_stopped"
	ReasonMaxTradesPerDay  = "max_trades_per_day"
	ReasonMaxPositionSize  = "max_position_size"
	ReasonBelowMinSize     = "below_min_trade_size"
)

// Snapshot is the gate's persistable state, written by the live adapter
// after every transition so a restart resumes with intact counters.
type Snapshot struct {
	SessionDate        string
	TradesToday        int
	DailyPnL           float64
	SessionStartEquity float64
	PeakEquity         float64
	EmergencyStopped   bool
}

// Gate is a stateful per-session risk guardrail. All counters live inside
// the gate and are reset only on session boundaries or an explicit Reset;
// the gate never touches positions or the trade log itself.
type Gate struct {
	mu  sync.Mutex
	cfg config.RiskConfig

	sessionDate        string // UTC calendar day, YYYY-MM-DD
	tradesToday        int
	dailyPnL           float64
	sessionStartEquity float64
	peakEquity         float64
	lastEquity         float64
	emergencyStopped   bool
}

// NewGate creates a Gate with the given limits.
func NewGate(cfg config.RiskConfig) *Gate {
	return &Gate{cfg: cfg}
}

// Evaluate checks a proposed entry against the gate's limits. It returns
// the approved (possibly shrunk) size, or a *RejectionError. Evaluate does
// not count the trade as opened; callers confirm execution with RecordOpen.
func (g *Gate) Evaluate(o Order, equity float64) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollSession(o.Time)

	if g.emergencyStopped {
		return Decision{}, &RejectionError{Reason: ReasonEmergencyStopped}
	}
	if g.cfg.MaxTradesPerDay > 0 && g.tradesToday >= g.cfg.MaxTradesPerDay {
		return Decision{}, &RejectionError{Reason: ReasonMaxTradesPerDay}
	}
	if o.Price <= 0 {
		return Decision{}, &RejectionError{Reason: "non-positive price"}
	}

	size := o.Size
	if size == 0 {
		size = equity * (o.SizePct / 100) / o.Price
	} else if g.cfg.MaxPositionSize > 0 && size*o.Price > g.cfg.MaxPositionSize {
		// An explicitly sized order over the notional cap is the caller
		// asking for more than allowed; refuse rather than silently shrink.
		return Decision{}, &RejectionError{Reason: ReasonMaxPositionSize}
	}

	if g.cfg.MaxPositionSize > 0 && size*o.Price > g.cfg.MaxPositionSize {
		size = g.cfg.MaxPositionSize / o.Price
	}

	notional := size * o.Price
	if notional < g.cfg.MinTradeSize || size <= 0 {
		return Decision{}, &RejectionError{Reason: ReasonBelowMinSize}
	}

	return Decision{Size: size, Notional: notional}, nil
}

// MarkEquity folds a fresh mark-to-market equity observation into the
// gate's drawdown tracking. It returns true when a limit was breached and
// the caller must flatten all positions and halt; the gate is then
// emergency-stopped until Reset.
func (g *Gate) MarkEquity(equity float64, t time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollSession(t)
	g.lastEquity = equity

	if g.sessionStartEquity <= 0 {
		g.sessionStartEquity = equity
	}
	if equity > g.peakEquity {
		g.peakEquity = equity
	}
	if g.emergencyStopped {
		return false // already halted, nothing new to flatten
	}

	if g.cfg.MaxDailyDrawdownPct > 0 && g.sessionStartEquity > 0 {
		dailyDD := (g.sessionStartEquity - equity) / g.sessionStartEquity * 100
		if dailyDD > g.cfg.MaxDailyDrawdownPct {
			g.emergencyStopped = true
			return true
		}
	}
	if g.cfg.EmergencyStopPct > 0 && g.peakEquity > 0 {
		totalDD := (g.peakEquity - equity) / g.peakEquity * 100
		if totalDD > g.cfg.EmergencyStopPct {
			g.emergencyStopped = true
			return true
		}
	}
	return false
}

// RecordOpen counts an executed entry against the daily trade budget.
func (g *Gate) RecordOpen(t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollSession(t)
	g.tradesToday++
}

// RecordClose folds a closed trade's realized PnL into the daily total.
func (g *Gate) RecordClose(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnL += pnl
}

// EmergencyStopped reports whether the gate has halted trading.
func (g *Gate) EmergencyStopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.emergencyStopped
}

// TradesToday returns the number of entries counted in the current session.
func (g *Gate) TradesToday() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tradesToday
}

// DailyPnL returns the realized PnL accumulated in the current session.
func (g *Gate) DailyPnL() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyPnL
}

// Reset clears the emergency stop. It is the explicit external reset the
// stop requires; daily counters are left alone so a reset mid-session does
// not grant a fresh trade budget.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.emergencyStopped = false
}

// Snapshot returns the gate's persistable state.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		SessionDate:        g.sessionDate,
		TradesToday:        g.tradesToday,
		DailyPnL:           g.dailyPnL,
		SessionStartEquity: g.sessionStartEquity,
		PeakEquity:         g.peakEquity,
		EmergencyStopped:   g.emergencyStopped,
	}
}

// Restore replaces the gate's state with a previously captured snapshot.
func (g *Gate) Restore(s Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionDate = s.SessionDate
	g.tradesToday = s.TradesToday
	g.dailyPnL = s.DailyPnL
	g.sessionStartEquity = s.SessionStartEquity
	g.peakEquity = s.PeakEquity
	g.emergencyStopped = s.EmergencyStopped
}

// rollSession resets the daily counters when t lands on a new UTC calendar
// day. Callers hold g.mu.
func (g *Gate) rollSession(t time.Time) {
	if t.IsZero() {
		return
	}
	day := t.UTC().Format("2006-01-02")
	if day == g.sessionDate {
		return
	}
	g.sessionDate = day
	g.tradesToday = 0
	g.dailyPnL = 0
	g.sessionStartEquity = g.lastEquity
}
