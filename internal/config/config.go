// Package config loads and validates the vela configuration from YAML with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for vela.
type Config struct {
	Strategy StrategyConfig `yaml:"strategy"`
	Risk     RiskConfig     `yaml:"risk"`
	Backtest BacktestConfig `yaml:"backtest"`
	Live     LiveConfig     `yaml:"live"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Storage  Storage        `yaml:"storage"`
	Logging  Logging        `yaml:"logging"`
}

// StrategyConfig holds the tunable parameters of the momentum strategy.
type StrategyConfig struct {
	ShortPeriod     int     `yaml:"short_period"`
	LongPeriod      int     `yaml:"long_period"`
	TakeProfitPct   float64 `yaml:"take_profit_pct"`
	StopLossPct     float64 `yaml:"stop_loss_pct"`
	PositionSizePct float64 `yaml:"position_size_pct"`
	AllowShort      bool    `yaml:"allow_short"`
}

// Validate checks the strategy parameters and returns the first problem
// found, so a misconfiguration surfaces before any trading starts.
func (c StrategyConfig) Validate() error {
	if c.ShortPeriod <= 0 {
		return errors.New("strategy: short_period must be positive")
	}
	if c.LongPeriod <= c.ShortPeriod {
		return fmt.Errorf("strategy: long_period (%d) must exceed short_period (%d)", c.LongPeriod, c.ShortPeriod)
	}
	if c.TakeProfitPct <= 0 {
		return errors.New("strategy: take_profit_pct must be positive")
	}
	if c.StopLossPct <= 0 {
		return errors.New("strategy: stop_loss_pct must be positive")
	}
	if c.PositionSizePct <= 0 || c.PositionSizePct > 100 {
		return fmt.Errorf("strategy: position_size_pct (%v) must be in (0, 100]", c.PositionSizePct)
	}
	return nil
}

// RiskConfig holds the risk gate limits.
type RiskConfig struct {
	MaxPositionSize     float64 `yaml:"max_position_size"` // max notional per position, quote currency
	MaxDailyDrawdownPct float64 `yaml:"max_daily_drawdown_pct"`
	MaxTradesPerDay     int     `yaml:"max_trades_per_day"`
	EmergencyStopPct    float64 `yaml:"emergency_stop_pct"` // total drawdown from peak that halts trading
	MinTradeSize        float64 `yaml:"min_trade_size"`     // notional floor; smaller orders are skipped
}

// Validate checks the risk limits.
func (c RiskConfig) Validate() error {
	if c.MaxPositionSize < 0 {
		return errors.New("risk: max_position_size cannot be negative")
	}
	if c.MaxDailyDrawdownPct < 0 {
		return errors.New("risk: max_daily_drawdown_pct cannot be negative")
	}
	if c.MaxTradesPerDay < 0 {
		return errors.New("risk: max_trades_per_day cannot be negative")
	}
	if c.EmergencyStopPct < 0 {
		return errors.New("risk: emergency_stop_pct cannot be negative")
	}
	if c.MinTradeSize < 0 {
		return errors.New("risk: min_trade_size cannot be negative")
	}
	return nil
}

// BacktestConfig bundles the simulation parameters for one backtest run.
type BacktestConfig struct {
	InitialCapital  float64 `yaml:"initial_capital"`
	TradingFeePct   float64 `yaml:"trading_fee_pct"` // e.g. 0.1 = 0.1% per fill
	SlippageBps     float64 `yaml:"slippage_bps"`    // applied against the trader on every fill
	IncludeFees     bool    `yaml:"include_fees"`
	IncludeSlippage bool    `yaml:"include_slippage"`
	StartDate       string  `yaml:"start_date"` // optional, YYYY-MM-DD
	EndDate         string  `yaml:"end_date"`   // optional, YYYY-MM-DD
}

// Start returns the parsed start date, or the zero time when unset.
func (c BacktestConfig) Start() time.Time {
	return parseDay(c.StartDate)
}

// End returns the last instant of the configured end date, so a range of
// [start, end] includes the whole end day. Zero time when unset.
func (c BacktestConfig) End() time.Time {
	d := parseDay(c.EndDate)
	if d.IsZero() {
		return d
	}
	return d.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// parseDay parses a YYYY-MM-DD string, returning the zero time for empty
// or malformed input. Validate rejects malformed dates up front.
func parseDay(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Validate checks the backtest parameters.
func (c BacktestConfig) Validate() error {
	if c.InitialCapital <= 0 {
		return errors.New("backtest: initial_capital must be positive")
	}
	if c.TradingFeePct < 0 {
		return errors.New("backtest: trading_fee_pct cannot be negative")
	}
	if c.SlippageBps < 0 {
		return errors.New("backtest: slippage_bps cannot be negative")
	}
	for _, d := range []string{c.StartDate, c.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("backtest: bad date %q: %w", d, err)
		}
	}
	return nil
}

// LiveConfig controls the live adapter.
type LiveConfig struct {
	Symbol         string        `yaml:"symbol"`
	BarInterval    time.Duration `yaml:"bar_interval"`  // tick aggregation window
	OrderTimeout   time.Duration `yaml:"order_timeout"` // per-attempt submission timeout
	OrderAttempts  int           `yaml:"order_attempts"`
	PaperMode      bool          `yaml:"paper_mode"`
	InitialCapital float64       `yaml:"initial_capital"` // paper mode starting equity
}

// Validate checks the live adapter settings.
func (c LiveConfig) Validate() error {
	if c.Symbol == "" {
		return errors.New("live: symbol is required")
	}
	if c.BarInterval <= 0 {
		return errors.New("live: bar_interval must be positive")
	}
	if c.OrderTimeout <= 0 {
		return errors.New("live: order_timeout must be positive")
	}
	if c.OrderAttempts <= 0 {
		return errors.New("live: order_attempts must be positive")
	}
	return nil
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"` // market-data feed, e.g. "iex"
}

// Storage holds paths for data and state persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`    // parquet bar cache
	SQLitePath string `yaml:"sqlite_path"` // live state snapshots
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// environment variable overrides, and validates every section.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with the parameter defaults of the
// momentum strategy and conservative risk limits.
func Default() *Config {
	return &Config{
		Strategy: StrategyConfig{
			ShortPeriod:     9,
			LongPeriod:      21,
			TakeProfitPct:   2.0,
			StopLossPct:     1.0,
			PositionSizePct: 1.0,
		},
		Risk: RiskConfig{
			MaxPositionSize:     1000,
			MaxDailyDrawdownPct: 5,
			MaxTradesPerDay:     10,
			EmergencyStopPct:    15,
			MinTradeSize:        10,
		},
		Backtest: BacktestConfig{
			InitialCapital:  10000,
			TradingFeePct:   0.1,
			SlippageBps:     10,
			IncludeFees:     true,
			IncludeSlippage: true,
		},
		Live: LiveConfig{
			Symbol:         "BTC-USD",
			BarInterval:    time.Minute,
			OrderTimeout:   10 * time.Second,
			OrderAttempts:  3,
			PaperMode:      true,
			InitialCapital: 10000,
		},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Validate checks every configuration section.
func (c *Config) Validate() error {
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if err := c.Backtest.Validate(); err != nil {
		return err
	}
	return c.Live.Validate()
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VELA_SYMBOL"); v != "" {
		cfg.Live.Symbol = v
	}
	if v := os.Getenv("VELA_PAPER_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Live.PaperMode = b
		}
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
}
