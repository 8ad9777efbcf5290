// Package engine runs a strategy against historical bars: a deterministic,
// single-threaded replay with slippage, fees, and the risk gate in the loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vela/internal/bars"
	"vela/internal/config"
	"vela/internal/domain"
	"vela/internal/risk"
	"vela/internal/strategy"
)

// Result is everything a backtest run produces: the trade log, the
// per-bar equity curve, and the terminal state.
type Result struct {
	Trades       []domain.ClosedTrade
	EquityCurve  []domain.EquityPoint
	FinalEquity  float64
	Halted       bool   // emergency stop tripped mid-run
	HaltReason   string // set when Halted
	BarsReplayed int
}

// Engine replays bars through a strategy. It is single-use: construct,
// Run once, read the Result. Identical inputs give identical results.
type Engine struct {
	cfg   config.BacktestConfig
	strat strategy.Strategy
	gate  *risk.Gate
	log   *slog.Logger

	cash     float64
	peak     float64
	position *domain.Position
	entryFee float64 // fee already paid for the open position
	result   Result
}

// New creates an Engine. The gate may be shared with other components but
// the engine assumes exclusive use during Run.
func New(cfg config.BacktestConfig, strat strategy.Strategy, gate *risk.Gate, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, strat: strat, gate: gate, log: log}
}

// Run replays the series bar by bar. On context cancellation it returns
// the partial Result alongside the context error; every other path returns
// a complete Result and nil.
func (e *Engine) Run(ctx context.Context, series *bars.Series) (*Result, error) {
	e.strat.Reset()
	e.cash = e.cfg.InitialCapital
	e.peak = e.cfg.InitialCapital
	e.position = nil
	e.entryFee = 0
	e.result = Result{}

	all := series.Bars()
	if start, end := e.cfg.Start(), e.cfg.End(); !start.IsZero() || !end.IsZero() {
		all = series.Slice(start, end).Bars()
	}

	for i, bar := range all {
		if err := ctx.Err(); err != nil {
			res := e.result
			res.FinalEquity = e.markToMarket(lastClose(all, i))
			return &res, fmt.Errorf("backtest aborted at bar %d: %w", i, err)
		}
		e.step(bar)
		e.result.BarsReplayed++
	}

	// Any position left at the end of data is closed at the last close so
	// reported PnL is fully realized.
	if e.position != nil && len(all) > 0 {
		last := all[len(all)-1]
		e.closePosition(last.Close, last.Timestamp, "end_of_data")
	}

	e.result.FinalEquity = e.cash
	res := e.result
	return &res, nil
}

// step advances the simulation by one bar.
func (e *Engine) step(bar domain.Bar) {
	sig := e.strat.OnBar(bar, e.position)

	if e.result.Halted {
		// Halted engines still mark equity so the curve covers the run.
		e.recordEquity(bar)
		return
	}

	switch sig.Type {
	case domain.SignalExit:
		if e.position != nil {
			e.closePosition(sig.Price, bar.Timestamp, sig.Reason)
		}
	case domain.SignalEnterLong:
		e.tryOpen(bar, sig, domain.Long)
	case domain.SignalEnterShort:
		e.tryOpen(bar, sig, domain.Short)
	}

	e.recordEquity(bar)

	if e.gate.MarkEquity(e.markToMarket(bar.Close), bar.Timestamp) {
		if e.position != nil {
			e.closePosition(bar.Close, bar.Timestamp, "emergency_stop")
		}
		e.result.Halted = true
		e.result.HaltReason = "emergency_stop"
		e.log.Warn("emergency stop tripped, halting replay",
			"time", bar.Timestamp, "equity", e.cash)
	}
}

func (e *Engine) tryOpen(bar domain.Bar, sig domain.Signal, dir domain.Direction) {
	if e.position != nil {
		return
	}
	equity := e.markToMarket(bar.Close)
	dec, err := e.gate.Evaluate(risk.Order{
		Symbol:  bar.Symbol,
		Price:   sig.Price,
		SizePct: e.positionSizePct(),
		Time:    bar.Timestamp,
	}, equity)
	if err != nil {
		e.log.Debug("entry rejected", "time", bar.Timestamp, "err", err)
		return
	}

	fill := e.applySlippage(sig.Price, dir, true)
	fee := e.fee(fill * dec.Size)
	stop, target := e.exitLevels(fill, dir)

	e.cash -= fee
	e.entryFee = fee
	e.position = &domain.Position{
		Symbol:      bar.Symbol,
		Direction:   dir,
		EntryPrice:  fill,
		EntryTime:   bar.Timestamp,
		Size:        dec.Size,
		StopPrice:   stop,
		TargetPrice: target,
	}
	e.gate.RecordOpen(bar.Timestamp)
	e.log.Debug("position opened",
		"time", bar.Timestamp, "direction", dir, "price", fill, "size", dec.Size)
}

func (e *Engine) closePosition(price float64, at time.Time, reason string) {
	p := *e.position
	fill := e.applySlippage(price, p.Direction, false)
	exitFee := e.fee(fill * p.Size)

	// The trade reports both fees; the entry fee already left cash at open,
	// so add it back before applying the all-in PnL.
	trade := domain.NewClosedTrade(p, fill, at, e.entryFee+exitFee, reason)
	e.cash += trade.PnL + e.entryFee
	e.position = nil
	e.entryFee = 0

	e.result.Trades = append(e.result.Trades, trade)
	e.gate.RecordClose(trade.PnL)
	e.log.Debug("position closed",
		"time", at, "price", fill, "pnl", trade.PnL, "reason", reason)
}

// applySlippage moves the fill against the trader: entries pay up, exits
// give back. Direction flips which side "against" is.
func (e *Engine) applySlippage(price float64, dir domain.Direction, entering bool) float64 {
	if !e.cfg.IncludeSlippage || e.cfg.SlippageBps == 0 {
		return price
	}
	adverse := e.cfg.SlippageBps / 10000
	buying := (dir == domain.Long) == entering
	if buying {
		return price * (1 + adverse)
	}
	return price * (1 - adverse)
}

func (e *Engine) fee(notional float64) float64 {
	if !e.cfg.IncludeFees {
		return 0
	}
	return notional * e.cfg.TradingFeePct / 100
}

func (e *Engine) exitLevels(fill float64, dir domain.Direction) (stop, target float64) {
	if lv, ok := e.strat.(interface {
		ExitLevels(entryPrice float64, dir domain.Direction) (stop, target float64)
	}); ok {
		return lv.ExitLevels(fill, dir)
	}
	return 0, 0
}

func (e *Engine) positionSizePct() float64 {
	if ps, ok := e.strat.(interface{ PositionSizePct() float64 }); ok {
		return ps.PositionSizePct()
	}
	return 1
}

// markToMarket is cash plus the open position valued at price, fees due on
// exit ignored until the exit actually happens.
func (e *Engine) markToMarket(price float64) float64 {
	if e.position == nil {
		return e.cash
	}
	return e.cash + e.position.UnrealizedPnL(price)
}

func (e *Engine) recordEquity(bar domain.Bar) {
	equity := e.markToMarket(bar.Close)
	if equity > e.peak {
		e.peak = equity
	}
	dd := 0.0
	if e.peak > 0 && equity < e.peak {
		dd = (e.peak - equity) / e.peak * 100
	}
	e.result.EquityCurve = append(e.result.EquityCurve, domain.EquityPoint{
		Timestamp:   bar.Timestamp,
		Equity:      equity,
		DrawdownPct: dd,
	})
}

func lastClose(all []domain.Bar, i int) float64 {
	if i == 0 || len(all) == 0 {
		return 0
	}
	return all[i-1].Close
}
