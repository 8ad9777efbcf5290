// Command vela-trader runs the momentum strategy against the live feed,
// paper or real, with state persisted across restarts.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vela/internal/broker"
	"vela/internal/config"
	"vela/internal/live"
	"vela/internal/notify"
	"vela/internal/risk"
	"vela/internal/store"
	"vela/internal/strategy"
	"vela/internal/util"
)

func main() {
	cfgPath := "config/vela.yaml"
	if p := os.Getenv("VELA_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	strat, err := strategy.NewMomentum(cfg.Strategy)
	if err != nil {
		log.Fatalf("building strategy: %v", err)
	}

	states, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening state store: %v", err)
	}
	defer states.Close()

	var client broker.ExchangeClient
	if cfg.Live.PaperMode {
		paper := broker.NewPaperClient()
		client = paper
		logger.Info("paper mode: orders stay in-process")
	} else {
		client = broker.NewAlpacaClient(cfg.Alpaca)
	}

	gate := risk.NewGate(cfg.Risk)
	notifier := notify.NewLogNotifier(logger, 0)
	adapter := live.NewAdapter(cfg.Live, strat, gate, client, states, notifier, logger)

	metricsAddr := ":2112"
	if addr := os.Getenv("VELA_METRICS_ADDR"); addr != "" {
		metricsAddr = addr
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("vela-trader starting",
		"symbol", cfg.Live.Symbol, "paper", cfg.Live.PaperMode, "metrics", metricsAddr)
	if err := adapter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("adapter: %v", err)
	}
	logger.Info("vela-trader stopped")
}
