package strategy

import (
	"vela/internal/config"
	"vela/internal/domain"
)

// Compile-time interface check.
var _ Strategy = (*Momentum)(nil)

// Momentum is an EMA-crossover momentum strategy. It enters long when the
// short EMA crosses above the long EMA, exits on stop-loss or take-profit
// touch or on an opposing crossover, and optionally enters short on the
// downward cross when AllowShort is set.
type Momentum struct {
	cfg config.StrategyConfig

	short *EMA
	long  *EMA

	prevShort float64
	prevLong  float64
	havePrev  bool
}

// NewMomentum creates a Momentum strategy from a validated config.
func NewMomentum(cfg config.StrategyConfig) (*Momentum, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Momentum{
		cfg:   cfg,
		short: NewEMA(cfg.ShortPeriod),
		long:  NewEMA(cfg.LongPeriod),
	}, nil
}

// Name returns "momentum".
func (m *Momentum) Name() string { return "momentum" }

// Warmup returns the bar count needed before crossover signals are valid:
// the long EMA seed window. OnBar holds on its own until then, so Warmup is
// advisory for callers sizing their input.
func (m *Momentum) Warmup() int { return m.cfg.LongPeriod }

// Reset clears the indicator state for a fresh run.
func (m *Momentum) Reset() {
	m.short.Reset()
	m.long.Reset()
	m.prevShort, m.prevLong = 0, 0
	m.havePrev = false
}

// OnBar folds the bar into the EMAs and returns the decision for this bar.
func (m *Momentum) OnBar(bar domain.Bar, pos *domain.Position) domain.Signal {
	shortV := m.short.Update(bar.Close)
	longV := m.long.Update(bar.Close)

	sig := domain.Signal{Time: bar.Timestamp, Type: domain.SignalHold, Price: bar.Close}

	// On the first bar where both averages are seeded there is no previous
	// relation to compare against; whichever side the short EMA is on counts
	// as the initial cross.
	ready := m.short.Ready() && m.long.Ready()
	crossUp := ready && (!m.havePrev || m.prevShort <= m.prevLong) && shortV > longV
	crossDown := ready && (!m.havePrev || m.prevShort >= m.prevLong) && shortV < longV

	if ready {
		m.prevShort, m.prevLong = shortV, longV
		m.havePrev = true
	}

	if pos != nil {
		if reason, hit := exitTouch(bar, pos); hit {
			sig.Type = domain.SignalExit
			sig.Reason = reason
			return sig
		}
		// Opposing crossover unwinds the position even before stop or
		// target is reached.
		if (pos.Direction == domain.Long && crossDown) || (pos.Direction == domain.Short && crossUp) {
			sig.Type = domain.SignalExit
			sig.Reason = "signal_reversal"
			return sig
		}
		return sig
	}

	switch {
	case crossUp:
		sig.Type = domain.SignalEnterLong
		sig.Reason = "ema_cross_up"
	case crossDown && m.cfg.AllowShort:
		sig.Type = domain.SignalEnterShort
		sig.Reason = "ema_cross_down"
	}
	return sig
}

// exitTouch checks the bar's range against the position's stop and target
// levels. The stop is checked first: when a bar spans both levels the
// conservative assumption is that the stop filled.
func exitTouch(bar domain.Bar, pos *domain.Position) (string, bool) {
	if pos.Direction == domain.Long {
		if bar.Low <= pos.StopPrice {
			return "stop_loss", true
		}
		if bar.High >= pos.TargetPrice {
			return "take_profit", true
		}
		return "", false
	}
	if bar.High >= pos.StopPrice {
		return "stop_loss", true
	}
	if bar.Low <= pos.TargetPrice {
		return "take_profit", true
	}
	return "", false
}

// ExitLevels computes the stop and target prices for a fill at entryPrice
// in the given direction: entry·(1 ∓ stop%) and entry·(1 ± target%).
func (m *Momentum) ExitLevels(entryPrice float64, dir domain.Direction) (stop, target float64) {
	sl := m.cfg.StopLossPct / 100
	tp := m.cfg.TakeProfitPct / 100
	if dir == domain.Long {
		return entryPrice * (1 - sl), entryPrice * (1 + tp)
	}
	return entryPrice * (1 + sl), entryPrice * (1 - tp)
}

// PositionSizePct exposes the configured equity fraction (in percent) used
// when the caller sizes an order from current equity.
func (m *Momentum) PositionSizePct() float64 { return m.cfg.PositionSizePct }
