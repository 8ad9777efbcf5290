// Command vela-backtest replays historical bars through the momentum
// strategy and prints a performance report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vela/internal/bars"
	"vela/internal/config"
	"vela/internal/engine"
	"vela/internal/risk"
	"vela/internal/stats"
	"vela/internal/strategy"
	"vela/internal/util"
)

func main() {
	cfgPath := "config/vela.yaml"
	if p := os.Getenv("VELA_CONFIG"); p != "" {
		cfgPath = p
	}

	var (
		csvPath   = flag.String("csv", "", "path to OHLCV CSV file")
		symbol    = flag.String("symbol", "", "symbol override (defaults to live.symbol)")
		interval  = flag.Duration("interval", time.Minute, "expected bar interval")
		jsonOut   = flag.Bool("json", false, "emit the report as JSON")
		optimize  = flag.Bool("optimize", false, "grid-search EMA periods instead of a single run")
		stratName = flag.String("strategy", "momentum", "registered strategy to run")
	)
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	sym := cfg.Live.Symbol
	if *symbol != "" {
		sym = *symbol
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	series, err := loadSeries(cfg, sym, *csvPath, *interval)
	if err != nil {
		log.Fatalf("loading bars: %v", err)
	}
	logger.Info("bars loaded", "symbol", sym, "count", series.Len(), "gaps", len(series.Gaps()))

	if *optimize {
		runOptimize(ctx, cfg, series)
		return
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		log.Fatalf("building strategies: %v", err)
	}
	strat, ok := registry.Get(*stratName)
	if !ok {
		log.Fatalf("unknown strategy %q (available: %s)",
			*stratName, strings.Join(registry.List(), ", "))
	}
	gate := risk.NewGate(cfg.Risk)
	res, err := engine.New(cfg.Backtest, strat, gate, logger).Run(ctx, series)
	if err != nil {
		log.Fatalf("backtest: %v", err)
	}

	metrics := stats.Compute(cfg.Backtest.InitialCapital, res.EquityCurve, res.Trades)
	if *jsonOut {
		out, err := json.MarshalIndent(struct {
			Symbol  string                   `json:"symbol"`
			Halted  bool                     `json:"halted"`
			Metrics stats.PerformanceMetrics `json:"metrics"`
		}{sym, res.Halted, metrics}, "", "  ")
		if err != nil {
			log.Fatalf("encoding report: %v", err)
		}
		fmt.Println(string(out))
		return
	}
	printReport(sym, res, metrics)
}

// buildRegistry instantiates every available strategy from the config.
func buildRegistry(cfg *config.Config) (*strategy.Registry, error) {
	registry := strategy.NewRegistry()
	momentum, err := strategy.NewMomentum(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	registry.Register(momentum)
	return registry, nil
}

// loadSeries reads bars from the CSV when given, refreshing the parquet
// cache; otherwise it serves the requested range from the cache.
func loadSeries(cfg *config.Config, symbol, csvPath string, interval time.Duration) (*bars.Series, error) {
	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		series, err := bars.LoadCSV(f, symbol, interval)
		if err != nil {
			return nil, err
		}
		if cfg.Storage.DataDir != "" {
			cache := bars.NewCache(cfg.Storage.DataDir)
			if err := cache.Write(series); err != nil {
				return nil, fmt.Errorf("caching bars: %w", err)
			}
		}
		return series, nil
	}
	if cfg.Storage.DataDir == "" {
		return nil, fmt.Errorf("no -csv given and storage.data_dir is unset")
	}
	cache := bars.NewCache(cfg.Storage.DataDir)
	return cache.Read(symbol, cfg.Backtest.Start(), cfg.Backtest.End())
}

func runOptimize(ctx context.Context, cfg *config.Config, series *bars.Series) {
	grid := engine.ParamGrid{
		ShortPeriods: []int{5, 9, 12, 15},
		LongPeriods:  []int{15, 21, 26, 30},
	}
	results, best, err := engine.Optimize(ctx, cfg.Backtest, cfg.Strategy, cfg.Risk, series, grid, nil)
	if err != nil {
		log.Fatalf("optimize: %v", err)
	}
	fmt.Printf("%-8s %-8s %12s %8s\n", "short", "long", "final", "trades")
	for i, r := range results {
		marker := " "
		if i == best {
			marker = "*"
		}
		fmt.Printf("%-8d %-8d %12.2f %7d%s\n",
			r.Params.ShortPeriod, r.Params.LongPeriod,
			r.Result.FinalEquity, len(r.Result.Trades), marker)
	}
}

func printReport(symbol string, res *engine.Result, m stats.PerformanceMetrics) {
	fmt.Printf("Backtest report: %s\n", symbol)
	fmt.Printf("  bars replayed:     %d\n", res.BarsReplayed)
	if res.Halted {
		fmt.Printf("  HALTED:            %s\n", res.HaltReason)
	}
	fmt.Printf("  final equity:      %.2f\n", res.FinalEquity)
	fmt.Printf("  total return:      %.2f%%\n", m.TotalReturnPct)
	fmt.Printf("  annualized return: %.2f%%\n", m.AnnualizedReturnPct)
	fmt.Printf("  max drawdown:      %.2f%%\n", m.MaxDrawdownPct)
	fmt.Printf("  trades:            %d (win rate %.1f%%)\n", m.TotalTrades, m.WinRatePct)
	fmt.Printf("  profit factor:     %.2f\n", m.ProfitFactor)
	fmt.Printf("  sharpe / sortino:  %.2f / %.2f\n", m.SharpeRatio, m.SortinoRatio)
	fmt.Printf("  avg win / loss:    %.2f / %.2f\n", m.AvgWin, m.AvgLoss)
	fmt.Printf("  total fees:        %.2f\n", m.TotalFees)
}
