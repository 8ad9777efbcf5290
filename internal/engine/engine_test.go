package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"vela/internal/bars"
	"vela/internal/config"
	"vela/internal/domain"
	"vela/internal/risk"
	"vela/internal/strategy"
)

func makeSeries(t *testing.T, closes []float64) *bars.Series {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := make([]bars.Record, len(closes))
	for i, c := range closes {
		recs[i] = bars.Record{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c * 1.001,
			Low:       c * 0.999,
			Close:     c,
			Volume:    100,
		}
	}
	s, err := bars.Load("TEST-USD", recs, time.Minute)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

// scripted emits fixed signals keyed by bar index, for exercising the
// engine without a real indicator in the way.
type scripted struct {
	signals map[int]domain.Signal
	sizePct float64
	i       int
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) Warmup() int  { return 0 }
func (s *scripted) Reset()       { s.i = 0 }

func (s *scripted) OnBar(bar domain.Bar, pos *domain.Position) domain.Signal {
	sig, ok := s.signals[s.i]
	s.i++
	if !ok {
		return domain.Signal{Time: bar.Timestamp, Type: domain.SignalHold}
	}
	sig.Time = bar.Timestamp
	if sig.Price == 0 {
		sig.Price = bar.Close
	}
	return sig
}

func (s *scripted) PositionSizePct() float64 {
	if s.sizePct == 0 {
		return 10
	}
	return s.sizePct
}

func btCfg() config.BacktestConfig {
	return config.BacktestConfig{
		InitialCapital:  10000,
		TradingFeePct:   0,
		SlippageBps:     0,
		IncludeFees:     false,
		IncludeSlippage: false,
	}
}

func riskCfg() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionSize:     100000,
		MaxDailyDrawdownPct: 90,
		MaxTradesPerDay:     100,
		EmergencyStopPct:    95,
		MinTradeSize:        1,
	}
}

func TestRunEntryAndExit(t *testing.T) {
	series := makeSeries(t, []float64{100, 100, 105, 110, 110, 110})
	strat := &scripted{signals: map[int]domain.Signal{
		1: {Type: domain.SignalEnterLong, Reason: "ema_cross_up"},
		3: {Type: domain.SignalExit, Reason: "take_profit"},
	}}
	res, err := New(btCfg(), strat, risk.NewGate(riskCfg()), nil).Run(context.Background(), series)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	// 10% of 10000 at 100 = 10 units; exit at 110 = +100.
	if tr.PnL != 100 {
		t.Fatalf("PnL = %v, want 100", tr.PnL)
	}
	if tr.Reason != "take_profit" {
		t.Fatalf("reason = %q", tr.Reason)
	}
	if res.FinalEquity != 10100 {
		t.Fatalf("final equity = %v, want 10100", res.FinalEquity)
	}
	if len(res.EquityCurve) != series.Len() {
		t.Fatalf("equity points = %d, want %d", len(res.EquityCurve), series.Len())
	}
}

func TestRunSlippageAndFees(t *testing.T) {
	cfg := btCfg()
	cfg.IncludeFees = true
	cfg.IncludeSlippage = true
	cfg.TradingFeePct = 0.1
	cfg.SlippageBps = 10

	series := makeSeries(t, []float64{100, 100, 110, 110})
	strat := &scripted{signals: map[int]domain.Signal{
		1: {Type: domain.SignalEnterLong},
		2: {Type: domain.SignalExit, Reason: "take_profit"},
	}}
	res, err := New(cfg, strat, risk.NewGate(riskCfg()), nil).Run(context.Background(), series)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	tr := res.Trades[0]

	// Entry fill slips up, exit fill slips down; fees charged both sides.
	entryFill := 100.0 * 1.001
	exitFill := 110.0 * 0.999
	size := 1000.0 / 100.0 // gate sizes off the signal price
	fees := entryFill*size*0.001 + exitFill*size*0.001
	wantPnL := (exitFill-entryFill)*size - fees

	if math.Abs(tr.PnL-wantPnL) > 1e-9 {
		t.Fatalf("PnL = %v, want %v", tr.PnL, wantPnL)
	}
	if tr.PnL >= (110-100)*size {
		t.Fatal("frictions did not reduce PnL")
	}
}

func TestRunEndOfDataClose(t *testing.T) {
	series := makeSeries(t, []float64{100, 100, 104})
	strat := &scripted{signals: map[int]domain.Signal{
		1: {Type: domain.SignalEnterLong},
	}}
	res, err := New(btCfg(), strat, risk.NewGate(riskCfg()), nil).Run(context.Background(), series)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	if res.Trades[0].Reason != "end_of_data" {
		t.Fatalf("reason = %q, want end_of_data", res.Trades[0].Reason)
	}
	if res.Trades[0].PnL != 40 { // 10 units, +4
		t.Fatalf("PnL = %v, want 40", res.Trades[0].PnL)
	}
}

func TestRunHonorsDateRange(t *testing.T) {
	// One daily bar per day, Jan 1 through Jan 6.
	recs := make([]bars.Record, 6)
	for i := range recs {
		price := 100.0 + float64(i)
		recs[i] = bars.Record{
			Timestamp: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Open:      price, High: price, Low: price, Close: price, Volume: 100,
		}
	}
	series, err := bars.Load("TEST-USD", recs, 24*time.Hour)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := btCfg()
	cfg.StartDate = "2024-01-02"
	cfg.EndDate = "2024-01-04"
	res, err := New(cfg, &scripted{}, risk.NewGate(riskCfg()), nil).Run(context.Background(), series)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.BarsReplayed != 3 {
		t.Fatalf("bars replayed = %d, want 3 (Jan 2-4)", res.BarsReplayed)
	}
	first := res.EquityCurve[0].Timestamp
	last := res.EquityCurve[len(res.EquityCurve)-1].Timestamp
	if first.Day() != 2 || last.Day() != 4 {
		t.Fatalf("curve spans %v .. %v, want Jan 2 .. Jan 4", first, last)
	}
}

func TestRunEquityReconciles(t *testing.T) {
	series := makeSeries(t, []float64{100, 100, 106, 103, 103, 108, 101, 101})
	strat := &scripted{signals: map[int]domain.Signal{
		1: {Type: domain.SignalEnterLong},
		3: {Type: domain.SignalExit, Reason: "signal_reversal"},
		4: {Type: domain.SignalEnterLong},
		6: {Type: domain.SignalExit, Reason: "stop_loss"},
	}}
	res, err := New(btCfg(), strat, risk.NewGate(riskCfg()), nil).Run(context.Background(), series)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sum := 0.0
	for _, tr := range res.Trades {
		sum += tr.PnL
	}
	if math.Abs(res.FinalEquity-(10000+sum)) > 1e-9 {
		t.Fatalf("final equity %v != initial + trade PnL %v", res.FinalEquity, 10000+sum)
	}
	last := res.EquityCurve[len(res.EquityCurve)-1]
	if math.Abs(last.Equity-res.FinalEquity) > 1e-9 {
		t.Fatalf("curve end %v != final equity %v", last.Equity, res.FinalEquity)
	}
}

func TestRunEmergencyHalt(t *testing.T) {
	rc := riskCfg()
	rc.MaxDailyDrawdownPct = 5

	// Enter with the whole book, then the price collapses 10% in a bar.
	series := makeSeries(t, []float64{100, 100, 90, 90, 95, 95})
	strat := &scripted{
		sizePct: 100,
		signals: map[int]domain.Signal{
			1: {Type: domain.SignalEnterLong},
			4: {Type: domain.SignalEnterLong}, // must be ignored post-halt
		},
	}
	rcfg := rc
	rcfg.MaxPositionSize = 1e9
	res, err := New(btCfg(), strat, risk.NewGate(rcfg), nil).Run(context.Background(), series)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Halted {
		t.Fatal("engine did not halt on drawdown breach")
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1 (the flatten)", len(res.Trades))
	}
	if res.Trades[0].Reason != "emergency_stop" {
		t.Fatalf("reason = %q, want emergency_stop", res.Trades[0].Reason)
	}
	// Curve still covers every bar after the halt.
	if len(res.EquityCurve) != series.Len() {
		t.Fatalf("equity points = %d, want %d", len(res.EquityCurve), series.Len())
	}
	// Equity is flat for the remainder of the run.
	post := res.EquityCurve[len(res.EquityCurve)-1].Equity
	if math.Abs(post-res.FinalEquity) > 1e-9 {
		t.Fatalf("post-halt equity moved: %v vs %v", post, res.FinalEquity)
	}
}

func TestRunRespectsTradeFrequencyLimit(t *testing.T) {
	rc := riskCfg()
	rc.MaxTradesPerDay = 1

	series := makeSeries(t, []float64{100, 100, 105, 105, 106, 106})
	strat := &scripted{signals: map[int]domain.Signal{
		1: {Type: domain.SignalEnterLong},
		2: {Type: domain.SignalExit, Reason: "take_profit"},
		3: {Type: domain.SignalEnterLong}, // same UTC day: rejected
	}}
	res, err := New(btCfg(), strat, risk.NewGate(rc), nil).Run(context.Background(), series)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
}

func TestRunDeterministic(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/7)
	}
	cfg := btCfg()
	cfg.IncludeFees = true
	cfg.IncludeSlippage = true
	cfg.TradingFeePct = 0.1
	cfg.SlippageBps = 10

	scfg := config.StrategyConfig{
		ShortPeriod:     3,
		LongPeriod:      7,
		TakeProfitPct:   2,
		StopLossPct:     1,
		PositionSizePct: 10,
	}

	run := func() *Result {
		strat, err := strategy.NewMomentum(scfg)
		if err != nil {
			t.Fatalf("NewMomentum: %v", err)
		}
		res, err := New(cfg, strat, risk.NewGate(riskCfg()), nil).Run(context.Background(), makeSeries(t, closes))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return res
	}

	a, b := run(), run()
	if a.FinalEquity != b.FinalEquity {
		t.Fatalf("final equity differs: %v vs %v", a.FinalEquity, b.FinalEquity)
	}
	if len(a.Trades) != len(b.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(a.Trades), len(b.Trades))
	}
	for i := range a.Trades {
		if a.Trades[i] != b.Trades[i] {
			t.Fatalf("trade %d differs: %+v vs %+v", i, a.Trades[i], b.Trades[i])
		}
	}
	for i := range a.EquityCurve {
		if a.EquityCurve[i] != b.EquityCurve[i] {
			t.Fatalf("equity point %d differs", i)
		}
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	series := makeSeries(t, []float64{100, 101, 102})
	res, err := New(btCfg(), &scripted{}, risk.NewGate(riskCfg()), nil).Run(ctx, series)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if res == nil {
		t.Fatal("expected partial result alongside the error")
	}
	if res.BarsReplayed != 0 {
		t.Fatalf("BarsReplayed = %d, want 0", res.BarsReplayed)
	}
}

func TestOptimize(t *testing.T) {
	closes := make([]float64, 150)
	for i := range closes {
		closes[i] = 100 + 8*math.Sin(float64(i)/9) + float64(i)*0.05
	}
	series := makeSeries(t, closes)

	base := config.StrategyConfig{
		ShortPeriod:     3,
		LongPeriod:      9,
		TakeProfitPct:   2,
		StopLossPct:     1,
		PositionSizePct: 10,
	}
	grid := ParamGrid{
		ShortPeriods: []int{3, 5, 9},
		LongPeriods:  []int{5, 9, 15},
	}
	results, best, err := Optimize(context.Background(), btCfg(), base, riskCfg(), series, grid, nil)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	// 3x3 grid minus cells with short >= long: (3,5) (3,9) (3,15) (5,9) (5,15) (9,15).
	if len(results) != 6 {
		t.Fatalf("cells = %d, want 6", len(results))
	}
	if best < 0 || best >= len(results) {
		t.Fatalf("best index out of range: %d", best)
	}
	for _, r := range results {
		if r.Result.FinalEquity > results[best].Result.FinalEquity {
			t.Fatalf("best cell not maximal: %v > %v", r.Result.FinalEquity, results[best].Result.FinalEquity)
		}
	}
}
