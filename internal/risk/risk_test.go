package risk

import (
	"errors"
	"testing"
	"time"

	"vela/internal/config"
)

func testCfg() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionSize:     1000,
		MaxDailyDrawdownPct: 5,
		MaxTradesPerDay:     10,
		EmergencyStopPct:    15,
		MinTradeSize:        10,
	}
}

func day(d int, hour int) time.Time {
	return time.Date(2024, 3, d, hour, 0, 0, 0, time.UTC)
}

func TestEvaluateAutoSizing(t *testing.T) {
	g := NewGate(testCfg())
	dec, err := g.Evaluate(Order{Symbol: "BTC-USD", Price: 100, SizePct: 1, Time: day(1, 9)}, 50000)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// 1% of 50000 = 500 notional, but still under the 1000 cap.
	if dec.Notional != 500 {
		t.Fatalf("notional = %v, want 500", dec.Notional)
	}
	if dec.Size != 5 {
		t.Fatalf("size = %v, want 5", dec.Size)
	}
}

func TestEvaluateCapsAutoSizedNotional(t *testing.T) {
	g := NewGate(testCfg())
	dec, err := g.Evaluate(Order{Price: 100, SizePct: 10, Time: day(1, 9)}, 50000)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// 10% of 50000 would be 5000; auto-sized orders shrink to the cap.
	if dec.Notional != 1000 {
		t.Fatalf("notional = %v, want 1000", dec.Notional)
	}
}

func TestEvaluateRejectsExplicitOversize(t *testing.T) {
	g := NewGate(testCfg())
	_, err := g.Evaluate(Order{Price: 100, Size: 50, Time: day(1, 9)}, 50000)
	var rej *RejectionError
	if !errors.As(err, &rej) || rej.Reason != ReasonMaxPositionSize {
		t.Fatalf("err = %v, want rejection %s", err, ReasonMaxPositionSize)
	}
}

func TestEvaluateRejectsBelowMinSize(t *testing.T) {
	g := NewGate(testCfg())
	_, err := g.Evaluate(Order{Price: 100, SizePct: 0.001, Time: day(1, 9)}, 50000)
	var rej *RejectionError
	if !errors.As(err, &rej) || rej.Reason != ReasonBelowMinSize {
		t.Fatalf("err = %v, want rejection %s", err, ReasonBelowMinSize)
	}
}

func TestTradeFrequencyLimit(t *testing.T) {
	cfg := testCfg()
	cfg.MaxTradesPerDay = 1
	g := NewGate(cfg)

	if _, err := g.Evaluate(Order{Price: 100, SizePct: 1, Time: day(1, 9)}, 50000); err != nil {
		t.Fatalf("first entry: %v", err)
	}
	g.RecordOpen(day(1, 9))

	_, err := g.Evaluate(Order{Price: 100, SizePct: 1, Time: day(1, 14)}, 50000)
	var rej *RejectionError
	if !errors.As(err, &rej) || rej.Reason != ReasonMaxTradesPerDay {
		t.Fatalf("second entry same day: err = %v, want rejection %s", err, ReasonMaxTradesPerDay)
	}

	// Next UTC day the budget resets.
	if _, err := g.Evaluate(Order{Price: 100, SizePct: 1, Time: day(2, 9)}, 50000); err != nil {
		t.Fatalf("entry next session: %v", err)
	}
}

func TestDailyDrawdownTripsEmergencyStop(t *testing.T) {
	g := NewGate(testCfg())
	if g.MarkEquity(10000, day(1, 9)) {
		t.Fatal("flatten on first mark")
	}
	// 4% down: within the 5% daily limit.
	if g.MarkEquity(9600, day(1, 10)) {
		t.Fatal("flatten at 4% daily drawdown")
	}
	// 6% down from session start: breach.
	if !g.MarkEquity(9400, day(1, 11)) {
		t.Fatal("no flatten at 6% daily drawdown")
	}
	if !g.EmergencyStopped() {
		t.Fatal("gate not emergency-stopped after breach")
	}
}

func TestEmergencyStopFromPeak(t *testing.T) {
	cfg := testCfg()
	cfg.MaxDailyDrawdownPct = 0 // isolate the peak-based stop
	g := NewGate(cfg)

	g.MarkEquity(10000, day(1, 9))
	g.MarkEquity(12000, day(2, 9)) // new peak
	if g.MarkEquity(10500, day(3, 9)) {
		t.Fatal("flatten at 12.5% from peak, limit is 15%")
	}
	if !g.MarkEquity(10000, day(4, 9)) {
		t.Fatal("no flatten at 16.7% from peak")
	}
}

func TestNoApprovalsOnceStopped(t *testing.T) {
	g := NewGate(testCfg())
	g.MarkEquity(10000, day(1, 9))
	if !g.MarkEquity(8000, day(1, 10)) {
		t.Fatal("expected emergency stop")
	}

	// Same session, next session: still rejected until Reset.
	for _, at := range []time.Time{day(1, 11), day(2, 9), day(5, 9)} {
		_, err := g.Evaluate(Order{Price: 100, SizePct: 1, Time: at}, 8000)
		var rej *RejectionError
		if !errors.As(err, &rej) || rej.Reason != ReasonEmergencyStopped {
			t.Fatalf("at %v: err = %v, want rejection %s", at, err, ReasonEmergencyStopped)
		}
	}

	g.Reset()
	if _, err := g.Evaluate(Order{Price: 100, SizePct: 1, Time: day(5, 10)}, 8000); err != nil {
		t.Fatalf("after Reset: %v", err)
	}
}

func TestMarkEquityFlattensOnlyOnce(t *testing.T) {
	g := NewGate(testCfg())
	g.MarkEquity(10000, day(1, 9))
	if !g.MarkEquity(8000, day(1, 10)) {
		t.Fatal("expected flatten")
	}
	if g.MarkEquity(7000, day(1, 11)) {
		t.Fatal("second flatten for the same halt")
	}
}

func TestSessionRollResetsDailyPnL(t *testing.T) {
	g := NewGate(testCfg())
	g.MarkEquity(10000, day(1, 9))
	g.RecordOpen(day(1, 9))
	g.RecordClose(-120)
	if got := g.DailyPnL(); got != -120 {
		t.Fatalf("DailyPnL = %v, want -120", got)
	}
	if got := g.TradesToday(); got != 1 {
		t.Fatalf("TradesToday = %v, want 1", got)
	}

	g.MarkEquity(9880, day(2, 9))
	if got := g.DailyPnL(); got != 0 {
		t.Fatalf("DailyPnL after roll = %v, want 0", got)
	}
	if got := g.TradesToday(); got != 0 {
		t.Fatalf("TradesToday after roll = %v, want 0", got)
	}
}

func TestSnapshotRestore(t *testing.T) {
	g := NewGate(testCfg())
	g.MarkEquity(10000, day(1, 9))
	g.RecordOpen(day(1, 9))
	g.RecordClose(55)
	g.MarkEquity(10055, day(1, 10))

	snap := g.Snapshot()

	g2 := NewGate(testCfg())
	g2.Restore(snap)
	if g2.TradesToday() != 1 || g2.DailyPnL() != 55 {
		t.Fatalf("restored gate: trades=%d pnl=%v", g2.TradesToday(), g2.DailyPnL())
	}
	if g2.Snapshot() != snap {
		t.Fatalf("round-trip snapshot mismatch: %+v vs %+v", g2.Snapshot(), snap)
	}
}
