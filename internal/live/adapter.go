package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vela/internal/broker"
	"vela/internal/config"
	"vela/internal/domain"
	"vela/internal/notify"
	"vela/internal/risk"
	"vela/internal/store"
	"vela/internal/strategy"
	"vela/internal/telemetry"
	"vela/internal/util"
)

// Adapter drives a strategy from the live tick feed. Bars complete as
// ticks arrive, each completed bar is evaluated under a single mutex, and
// every state transition is persisted before the next bar is accepted.
type Adapter struct {
	cfg      config.LiveConfig
	strat    strategy.Strategy
	gate     *risk.Gate
	client   broker.ExchangeClient
	states   store.StateStore
	notifier notify.Notifier
	log      *slog.Logger

	retryBase time.Duration

	mu       sync.Mutex
	position *domain.Position
	cash     float64
	halted   bool
}

// NewAdapter wires an Adapter. The notifier may be nil.
func NewAdapter(cfg config.LiveConfig, strat strategy.Strategy, gate *risk.Gate,
	client broker.ExchangeClient, states store.StateStore, notifier notify.Notifier,
	log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log, 0)
	}
	return &Adapter{
		cfg:       cfg,
		strat:     strat,
		gate:      gate,
		client:    client,
		states:    states,
		notifier:  notifier,
		log:       log.With("symbol", cfg.Symbol),
		retryBase: time.Second,
		cash:      cfg.InitialCapital,
	}
}

// Run restores persisted state, subscribes to the tick feed, and processes
// bars until the context is cancelled or the feed closes. State is
// persisted on the way out.
func (a *Adapter) Run(ctx context.Context) error {
	if err := a.restore(ctx); err != nil {
		return fmt.Errorf("restoring state: %w", err)
	}

	ticks, stop, err := a.client.Subscribe(ctx, a.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	defer stop()

	agg := NewAggregator(a.cfg.Symbol, a.cfg.BarInterval)
	heartbeat := time.NewTicker(a.cfg.BarInterval)
	defer heartbeat.Stop()

	a.log.Info("live adapter started",
		"interval", a.cfg.BarInterval, "paper", a.cfg.PaperMode)

	for {
		select {
		case <-ctx.Done():
			if err := a.persist(context.WithoutCancel(ctx)); err != nil {
				a.log.Error("persisting state on shutdown", "err", err)
			}
			return ctx.Err()
		case <-heartbeat.C:
			a.heartbeat(ctx)
		case tick, ok := <-ticks:
			if !ok {
				if err := a.persist(context.WithoutCancel(ctx)); err != nil {
					a.log.Error("persisting state on feed close", "err", err)
				}
				return errors.New("tick feed closed")
			}
			if bar, done := agg.Add(tick); done {
				a.ProcessBar(ctx, bar)
			}
		}
	}
}

// ProcessBar evaluates one completed bar: strategy signal, risk check,
// order execution, equity mark. Evaluations are serialized; a bar arriving
// during another bar's order round-trip waits its turn.
func (a *Adapter) ProcessBar(ctx context.Context, bar domain.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sig := a.strat.OnBar(bar, a.position)

	if !a.halted {
		switch sig.Type {
		case domain.SignalExit:
			if a.position != nil {
				a.closePosition(ctx, sig.Price, bar.Timestamp, sig.Reason)
			}
		case domain.SignalEnterLong:
			a.tryOpen(ctx, bar, sig, domain.Long)
		case domain.SignalEnterShort:
			a.tryOpen(ctx, bar, sig, domain.Short)
		}
	}

	equity := a.equityAt(bar.Close)
	telemetry.EquityGauge.Set(equity)
	if a.gate.MarkEquity(equity, bar.Timestamp) {
		a.emergencyHalt(ctx, "risk_limit_breached", bar.Close, bar.Timestamp)
	}

	if err := a.persist(ctx); err != nil {
		a.log.Error("persisting state", "err", err)
	}
}

// EmergencyStop manually flattens any open position and halts trading
// until the process is restarted with a reset gate.
func (a *Adapter) EmergencyStop(ctx context.Context, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	price, err := a.client.GetCurrentPrice(ctx, a.cfg.Symbol)
	if err != nil {
		a.log.Error("fetching price for emergency stop", "err", err)
		if a.position != nil {
			price = a.position.EntryPrice
		}
	}
	a.emergencyHalt(ctx, reason, price, time.Now().UTC())
	if err := a.persist(ctx); err != nil {
		a.log.Error("persisting state", "err", err)
	}
}

// Halted reports whether trading has been halted.
func (a *Adapter) Halted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.halted
}

// Position returns a copy of the open position, or nil when flat.
func (a *Adapter) Position() *domain.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.position == nil {
		return nil
	}
	p := *a.position
	return &p
}

// Equity returns the current mark-to-market equity.
func (a *Adapter) Equity(ctx context.Context) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.position == nil {
		return a.cash, nil
	}
	price, err := a.client.GetCurrentPrice(ctx, a.cfg.Symbol)
	if err != nil {
		return 0, err
	}
	return a.equityAt(price), nil
}

// ---------------------------------------------------------------------------
// Internals (callers hold a.mu)
// ---------------------------------------------------------------------------

func (a *Adapter) tryOpen(ctx context.Context, bar domain.Bar, sig domain.Signal, dir domain.Direction) {
	if a.position != nil {
		return
	}
	dec, err := a.gate.Evaluate(risk.Order{
		Symbol:  a.cfg.Symbol,
		Price:   sig.Price,
		SizePct: a.positionSizePct(),
		Time:    bar.Timestamp,
	}, a.equityAt(bar.Close))
	if err != nil {
		var rej *risk.RejectionError
		if errors.As(err, &rej) {
			telemetry.RiskRejections.WithLabelValues(rej.Reason).Inc()
			a.log.Info("entry rejected", "reason", rej.Reason)
		} else {
			a.log.Error("risk evaluation failed", "err", err)
		}
		return
	}

	side := broker.Buy
	if dir == domain.Short {
		side = broker.Sell
	}
	res, err := a.submit(ctx, broker.OrderRequest{Symbol: a.cfg.Symbol, Side: side, Qty: dec.Size})
	if err != nil {
		telemetry.OrderFailures.WithLabelValues(a.cfg.Symbol).Inc()
		a.log.Error("entry order failed", "err", err)
		return
	}

	stop, target := a.exitLevels(res.FilledPrice, dir)
	a.position = &domain.Position{
		Symbol:      a.cfg.Symbol,
		Direction:   dir,
		EntryPrice:  res.FilledPrice,
		EntryTime:   bar.Timestamp,
		Size:        res.FilledQty,
		StopPrice:   stop,
		TargetPrice: target,
	}
	a.gate.RecordOpen(bar.Timestamp)
	telemetry.PositionsOpen.WithLabelValues(a.cfg.Symbol).Set(1)
	a.notifier.PositionOpened(*a.position)
	a.log.Info("position opened",
		"direction", dir, "price", res.FilledPrice, "size", res.FilledQty, "order_id", res.ID)
}

func (a *Adapter) closePosition(ctx context.Context, price float64, at time.Time, reason string) {
	p := *a.position
	side := broker.Sell
	if p.Direction == domain.Short {
		side = broker.Buy
	}
	res, err := a.submit(ctx, broker.OrderRequest{Symbol: a.cfg.Symbol, Side: side, Qty: p.Size})
	if err != nil {
		// The position stays open; the next bar retries the exit.
		telemetry.OrderFailures.WithLabelValues(a.cfg.Symbol).Inc()
		a.log.Error("exit order failed, position still open", "err", err)
		return
	}
	fill := res.FilledPrice
	if fill == 0 {
		fill = price
	}

	trade := domain.NewClosedTrade(p, fill, at, 0, reason)
	a.cash += trade.PnL
	a.position = nil
	a.gate.RecordClose(trade.PnL)
	telemetry.PositionsOpen.WithLabelValues(a.cfg.Symbol).Set(0)
	a.notifier.PositionClosed(trade)
	a.log.Info("position closed",
		"price", fill, "pnl", trade.PnL, "reason", reason, "order_id", res.ID)
}

func (a *Adapter) emergencyHalt(ctx context.Context, reason string, price float64, at time.Time) {
	if a.halted {
		return
	}
	if a.position != nil {
		a.closePosition(ctx, price, at, "emergency_stop")
	}
	a.halted = true
	telemetry.EmergencyStops.Inc()
	a.notifier.EmergencyStop(reason, a.equityAt(price))
	a.log.Error("trading halted", "reason", reason)
}

// submit places an order, retrying transient failures with backoff. Each
// attempt gets its own timeout.
func (a *Adapter) submit(ctx context.Context, req broker.OrderRequest) (*broker.OrderResult, error) {
	telemetry.OrdersSubmitted.WithLabelValues(req.Symbol, string(req.Side)).Inc()
	var res *broker.OrderResult
	err := util.Retry(ctx, a.cfg.OrderAttempts, a.retryBase, a.cfg.OrderTimeout,
		func(ctx context.Context) error {
			r, err := a.client.SubmitOrder(ctx, req)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// heartbeat marks equity between bars so risk limits trip even when the
// feed is quiet.
func (a *Adapter) heartbeat(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	price, err := a.client.GetCurrentPrice(ctx, a.cfg.Symbol)
	if err != nil {
		a.log.Warn("heartbeat price fetch failed", "err", err)
		return
	}
	now := time.Now().UTC()
	equity := a.equityAt(price)
	telemetry.EquityGauge.Set(equity)
	if a.gate.MarkEquity(equity, now) {
		a.emergencyHalt(ctx, "risk_limit_breached", price, now)
		if err := a.persist(ctx); err != nil {
			a.log.Error("persisting state", "err", err)
		}
	}
}

func (a *Adapter) equityAt(price float64) float64 {
	if a.position == nil {
		return a.cash
	}
	return a.cash + a.position.UnrealizedPnL(price)
}

func (a *Adapter) exitLevels(fill float64, dir domain.Direction) (stop, target float64) {
	if lv, ok := a.strat.(interface {
		ExitLevels(entryPrice float64, dir domain.Direction) (stop, target float64)
	}); ok {
		return lv.ExitLevels(fill, dir)
	}
	return 0, 0
}

func (a *Adapter) positionSizePct() float64 {
	if ps, ok := a.strat.(interface{ PositionSizePct() float64 }); ok {
		return ps.PositionSizePct()
	}
	return 1
}

func (a *Adapter) persist(ctx context.Context) error {
	if a.states == nil {
		return nil
	}
	return a.states.Save(ctx, store.State{
		Symbol:   a.cfg.Symbol,
		Position: a.position,
		Risk:     a.gate.Snapshot(),
		Halted:   a.halted,
	})
}

// restore picks up where a previous process left off: open position, risk
// counters, halt flag.
func (a *Adapter) restore(ctx context.Context) error {
	if a.states == nil {
		return nil
	}
	st, err := a.states.Load(ctx, a.cfg.Symbol)
	if err != nil || st == nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position = st.Position
	a.halted = st.Halted
	a.gate.Restore(st.Risk)
	if a.position != nil {
		telemetry.PositionsOpen.WithLabelValues(a.cfg.Symbol).Set(1)
	}
	a.log.Info("state restored",
		"has_position", a.position != nil,
		"halted", a.halted,
		"trades_today", st.Risk.TradesToday)
	return nil
}
