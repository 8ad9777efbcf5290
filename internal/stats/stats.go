// Package stats turns a backtest's trade log and equity curve into
// summary performance metrics.
package stats

import (
	"encoding/json"
	"math"
	"time"

	"vela/internal/domain"
)

// PerformanceMetrics summarizes a run. Ratios that need losses to exist
// (profit factor) report +Inf when there are wins and no losses, and 0
// when there are no trades at all.
type PerformanceMetrics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRatePct    float64 `json:"win_rate_pct"`

	TotalReturnPct      float64 `json:"total_return_pct"`
	AnnualizedReturnPct float64 `json:"annualized_return_pct"`
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`

	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	ProfitFactor float64 `json:"profit_factor"`

	AvgReturnPct       float64 `json:"avg_return_pct"`
	AvgWin             float64 `json:"avg_win"`
	AvgLoss            float64 `json:"avg_loss"`
	LargestWin         float64 `json:"largest_win"`
	LargestLoss        float64 `json:"largest_loss"`
	AvgDurationMinutes float64 `json:"avg_duration_minutes"`
	TotalFees          float64 `json:"total_fees"`
}

// MarshalJSON encodes the metrics, rendering an infinite profit factor as
// null since JSON has no representation for it.
func (m PerformanceMetrics) MarshalJSON() ([]byte, error) {
	type alias PerformanceMetrics
	out := struct {
		alias
		ProfitFactor *float64 `json:"profit_factor"`
	}{alias: alias(m)}
	if !math.IsInf(m.ProfitFactor, 0) {
		out.ProfitFactor = &m.ProfitFactor
	}
	return json.Marshal(out)
}

// Compute derives metrics from a finished run. It only reads its inputs,
// so computing twice from the same run gives identical results.
func Compute(initialCapital float64, curve []domain.EquityPoint, trades []domain.ClosedTrade) PerformanceMetrics {
	var m PerformanceMetrics
	m.TotalTrades = len(trades)

	var grossWin, grossLoss, totalDuration, totalReturn float64
	for _, tr := range trades {
		m.TotalFees += tr.Fees
		totalDuration += tr.DurationMinutes()
		totalReturn += tr.ReturnPct
		if tr.PnL > 0 {
			m.WinningTrades++
			grossWin += tr.PnL
			if tr.PnL > m.LargestWin {
				m.LargestWin = tr.PnL
			}
		} else {
			m.LosingTrades++
			grossLoss += -tr.PnL
			if tr.PnL < m.LargestLoss {
				m.LargestLoss = tr.PnL
			}
		}
	}
	if m.TotalTrades > 0 {
		m.WinRatePct = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
		m.AvgDurationMinutes = totalDuration / float64(m.TotalTrades)
		m.AvgReturnPct = totalReturn / float64(m.TotalTrades)
	}
	if m.WinningTrades > 0 {
		m.AvgWin = grossWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = -grossLoss / float64(m.LosingTrades)
	}
	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		m.ProfitFactor = math.Inf(1)
	}

	if len(curve) == 0 || initialCapital <= 0 {
		return m
	}

	final := curve[len(curve)-1].Equity
	m.TotalReturnPct = (final - initialCapital) / initialCapital * 100

	elapsed := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp)
	if days := elapsed.Hours() / 24; days >= 1 {
		m.AnnualizedReturnPct = m.TotalReturnPct * 365 / days
	} else {
		m.AnnualizedReturnPct = m.TotalReturnPct
	}

	peak := initialCapital
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak * 100
			if dd > m.MaxDrawdownPct {
				m.MaxDrawdownPct = dd
			}
		}
	}

	m.SharpeRatio, m.SortinoRatio = riskAdjusted(curve)
	return m
}

// riskAdjusted computes annualized Sharpe and Sortino from per-point
// equity returns. The annualization factor is inferred from the curve's
// sampling interval; an all-positive return stream yields a Sortino of 0
// rather than a division by zero.
func riskAdjusted(curve []domain.EquityPoint) (sharpe, sortino float64) {
	if len(curve) < 3 {
		return 0, 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) < 2 {
		return 0, 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance, downVariance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
		if r < 0 {
			downVariance += r * r
		}
	}
	variance /= float64(len(returns))
	downVariance /= float64(len(returns))

	factor := math.Sqrt(periodsPerYear(curve))
	if sd := math.Sqrt(variance); sd > 0 {
		sharpe = mean / sd * factor
	}
	if dsd := math.Sqrt(downVariance); dsd > 0 {
		sortino = mean / dsd * factor
	}
	return sharpe, sortino
}

// periodsPerYear infers the bar interval from the curve's first step.
func periodsPerYear(curve []domain.EquityPoint) float64 {
	interval := curve[1].Timestamp.Sub(curve[0].Timestamp)
	if interval <= 0 {
		interval = time.Minute
	}
	return float64(365*24*time.Hour) / float64(interval)
}
