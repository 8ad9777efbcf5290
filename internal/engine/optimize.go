package engine

import (
	"context"
	"fmt"
	"log/slog"

	"vela/internal/bars"
	"vela/internal/config"
	"vela/internal/risk"
	"vela/internal/strategy"
)

// ParamGrid is the search space for Optimize. Empty slices fall back to
// the single value already in the strategy config.
type ParamGrid struct {
	ShortPeriods   []int
	LongPeriods    []int
	TakeProfitPcts []float64
	StopLossPcts   []float64
}

// OptimizeResult is one grid cell's outcome.
type OptimizeResult struct {
	Params config.StrategyConfig
	Result *Result
}

// Optimize backtests every combination in the grid and returns the results
// ordered as generated, plus the index of the best cell by final equity.
// Combinations where the short period is not strictly below the long period
// are skipped. Each cell gets a fresh gate so runs do not leak state.
func Optimize(ctx context.Context, bt config.BacktestConfig, base config.StrategyConfig,
	rc config.RiskConfig, series *bars.Series, grid ParamGrid, log *slog.Logger) ([]OptimizeResult, int, error) {

	shorts := grid.ShortPeriods
	if len(shorts) == 0 {
		shorts = []int{base.ShortPeriod}
	}
	longs := grid.LongPeriods
	if len(longs) == 0 {
		longs = []int{base.LongPeriod}
	}
	tps := grid.TakeProfitPcts
	if len(tps) == 0 {
		tps = []float64{base.TakeProfitPct}
	}
	sls := grid.StopLossPcts
	if len(sls) == 0 {
		sls = []float64{base.StopLossPct}
	}

	var out []OptimizeResult
	best := -1
	for _, sp := range shorts {
		for _, lp := range longs {
			if sp >= lp {
				continue
			}
			for _, tp := range tps {
				for _, sl := range sls {
					if err := ctx.Err(); err != nil {
						return out, best, err
					}
					cfg := base
					cfg.ShortPeriod = sp
					cfg.LongPeriod = lp
					cfg.TakeProfitPct = tp
					cfg.StopLossPct = sl

					strat, err := strategy.NewMomentum(cfg)
					if err != nil {
						return out, best, fmt.Errorf("grid cell %d/%d tp=%.2f sl=%.2f: %w", sp, lp, tp, sl, err)
					}
					res, err := New(bt, strat, risk.NewGate(rc), log).Run(ctx, series)
					if err != nil {
						return out, best, err
					}
					out = append(out, OptimizeResult{Params: cfg, Result: res})
					if best < 0 || res.FinalEquity > out[best].Result.FinalEquity {
						best = len(out) - 1
					}
				}
			}
		}
	}
	if best < 0 {
		return nil, -1, fmt.Errorf("empty parameter grid")
	}
	return out, best, nil
}
