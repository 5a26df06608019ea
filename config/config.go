package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ichimokuBot/internal/adapters/logger" // Import the logger package for LogLevel
	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/marketdata"
	"ichimokuBot/internal/risk"
	"ichimokuBot/internal/strategy/backtesting"
	"ichimokuBot/internal/strategy/indicators"
	"ichimokuBot/internal/strategy/optimization"
)

// Storage backends.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey            string
	SecretKey         string
	IsTestnet         bool
	RequestsPerSecond float64
	Burst             int

	// Market
	Symbol         string
	BaseInterval   string // Interval stored in the kline table
	SignalInterval string // Interval the strategy runs on

	// Strategy Parameters
	TenkanPeriod  int
	KijunPeriod   int
	SenkouBPeriod int
	Offset        int

	// Simulation Parameters (fractions, 0.02 means 2%)
	TakeProfitPct  float64
	StopLossPct    float64
	TakerFeePct    float64
	MakerFeePct    float64
	ExecutionType  domain.ExecutionType
	InitialCapital float64

	// Storage
	StorageBackend string
	DBPath         string
	PostgresDSN    string

	// Pipeline
	LookbackBars         int
	MaxConsecutiveErrors int
	SettleDelay          time.Duration

	// Trading
	TradingEnabled      bool
	DryRun              bool
	TraderPollInterval  time.Duration
	MaxOrders           int     // Max orders per UTC day, 0 for no limit
	MinAvailableBalance float64 // Quote balance kept out of buys

	// Observability
	MetricsAddr string
	LogLevel    logger.LogLevel // Use the LogLevel type from the logger adapter
	LogBackend  string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	cfg.RequestsPerSecond, err = getEnvAsFloatRequired("BINANCE_REQUESTS_PER_SECOND", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BINANCE_REQUESTS_PER_SECOND: %v", err))
	} else if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, "BINANCE_REQUESTS_PER_SECOND must be positive")
	}
	cfg.Burst, err = getEnvAsIntRequired("BINANCE_BURST", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BINANCE_BURST: %v", err))
	} else if cfg.Burst <= 0 {
		errs = append(errs, "BINANCE_BURST must be positive")
	}

	// Market
	cfg.Symbol = strings.ToUpper(getEnv("SYMBOL", "BTCUSDT"))
	cfg.BaseInterval = getEnv("BASE_INTERVAL", "1m")
	cfg.SignalInterval = getEnv("SIGNAL_INTERVAL", "5m")
	baseDur, baseErr := marketdata.ParseInterval(cfg.BaseInterval)
	if baseErr != nil {
		errs = append(errs, fmt.Sprintf("invalid BASE_INTERVAL: %v", baseErr))
	}
	signalDur, signalErr := marketdata.ParseInterval(cfg.SignalInterval)
	if signalErr != nil {
		errs = append(errs, fmt.Sprintf("invalid SIGNAL_INTERVAL: %v", signalErr))
	}
	if baseErr == nil && signalErr == nil && (signalDur < baseDur || signalDur%baseDur != 0) {
		errs = append(errs, "SIGNAL_INTERVAL must be a multiple of BASE_INTERVAL")
	}

	// Strategy Parameters
	def := indicators.DefaultIchimokuConfig()
	periods := []struct {
		key string
		dst *int
		def int
		min int
	}{
		{"ICHIMOKU_TENKAN", &cfg.TenkanPeriod, def.TenkanPeriod, 1},
		{"ICHIMOKU_KIJUN", &cfg.KijunPeriod, def.KijunPeriod, 1},
		{"ICHIMOKU_SENKOU_B", &cfg.SenkouBPeriod, def.SenkouBPeriod, 1},
		{"ICHIMOKU_OFFSET", &cfg.Offset, def.Offset, 0},
	}
	for _, p := range periods {
		*p.dst, err = getEnvAsIntRequired(p.key, p.def)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", p.key, err))
		} else if *p.dst < p.min {
			errs = append(errs, fmt.Sprintf("%s must be at least %d", p.key, p.min))
		}
	}

	// Simulation Parameters
	bt := backtesting.DefaultConfig()
	fractions := []struct {
		key string
		dst *float64
		def float64
	}{
		{"TAKE_PROFIT_PCT", &cfg.TakeProfitPct, bt.TakeProfitPct},
		{"STOP_LOSS_PCT", &cfg.StopLossPct, bt.StopLossPct},
		{"TAKER_FEE_PCT", &cfg.TakerFeePct, bt.TakerFeePct},
		{"MAKER_FEE_PCT", &cfg.MakerFeePct, bt.MakerFeePct},
	}
	for _, f := range fractions {
		*f.dst, err = getEnvAsFloatRequired(f.key, f.def)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", f.key, err))
		} else if *f.dst < 0 || *f.dst >= 1.0 {
			errs = append(errs, fmt.Sprintf("%s must be a fraction in [0, 1)", f.key))
		}
	}

	cfg.ExecutionType = domain.ExecutionType(strings.ToLower(getEnv("EXECUTION_TYPE", string(bt.ExecutionType))))
	if !cfg.ExecutionType.IsValid() {
		errs = append(errs, "EXECUTION_TYPE must be taker or maker")
	}

	cfg.InitialCapital, err = getEnvAsFloatRequired("INITIAL_CAPITAL", bt.InitialCapital)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_CAPITAL: %v", err))
	} else if cfg.InitialCapital <= 0 {
		errs = append(errs, "INITIAL_CAPITAL must be positive")
	}

	// Storage
	cfg.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", StorageSQLite))
	cfg.DBPath = getEnv("DB_PATH", "./data/ichimoku.db")
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", "")
	switch cfg.StorageBackend {
	case StorageSQLite:
		if cfg.DBPath == "" {
			errs = append(errs, "DB_PATH must be set")
		}
	case StoragePostgres:
		if cfg.PostgresDSN == "" {
			errs = append(errs, "POSTGRES_DSN must be set when STORAGE_BACKEND=postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown STORAGE_BACKEND %q (sqlite or postgres)", cfg.StorageBackend))
	}

	// Pipeline
	cfg.LookbackBars, err = getEnvAsIntRequired("LOOKBACK_BARS", 120)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOOKBACK_BARS: %v", err))
	} else if cfg.LookbackBars <= 0 {
		errs = append(errs, "LOOKBACK_BARS must be positive")
	}

	cfg.MaxConsecutiveErrors, err = getEnvAsIntRequired("MAX_CONSECUTIVE_ERRORS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_CONSECUTIVE_ERRORS: %v", err))
	} else if cfg.MaxConsecutiveErrors <= 0 {
		errs = append(errs, "MAX_CONSECUTIVE_ERRORS must be positive")
	}

	settleSeconds := getEnvAsInt("SETTLE_DELAY_SECONDS", 5)
	if settleSeconds < 0 {
		errs = append(errs, "SETTLE_DELAY_SECONDS cannot be negative")
	}
	cfg.SettleDelay = time.Duration(settleSeconds) * time.Second

	// Trading
	cfg.TradingEnabled = getEnvAsBool("TRADING_ENABLED", false)
	cfg.DryRun = getEnvAsBool("DRY_RUN", true)

	if cfg.TradingEnabled {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set when TRADING_ENABLED")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set when TRADING_ENABLED")
		}
	}

	pollSeconds, err := getEnvAsIntRequired("TRADER_POLL_SECONDS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADER_POLL_SECONDS: %v", err))
	} else if pollSeconds <= 0 {
		errs = append(errs, "TRADER_POLL_SECONDS must be positive")
	}
	cfg.TraderPollInterval = time.Duration(pollSeconds) * time.Second

	cfg.MaxOrders, err = getEnvAsIntRequired("MAX_ORDERS", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_ORDERS: %v", err))
	} else if cfg.MaxOrders < 0 {
		errs = append(errs, "MAX_ORDERS cannot be negative")
	}

	cfg.MinAvailableBalance, err = getEnvAsFloatRequired("MIN_AVAILABLE_BALANCE", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_AVAILABLE_BALANCE: %v", err))
	} else if cfg.MinAvailableBalance < 0 {
		errs = append(errs, "MIN_AVAILABLE_BALANCE cannot be negative")
	}

	// Observability
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9102")
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogBackend = strings.ToLower(getEnv("LOG_BACKEND", "zap"))

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// IchimokuConfig returns the indicator windows.
func (c *Config) IchimokuConfig() indicators.IchimokuConfig {
	return indicators.IchimokuConfig{
		TenkanPeriod:  c.TenkanPeriod,
		KijunPeriod:   c.KijunPeriod,
		SenkouBPeriod: c.SenkouBPeriod,
		Offset:        c.Offset,
	}
}

// BacktestConfig returns the simulator settings.
func (c *Config) BacktestConfig() backtesting.Config {
	return backtesting.Config{
		InitialCapital: c.InitialCapital,
		TakeProfitPct:  c.TakeProfitPct,
		StopLossPct:    c.StopLossPct,
		TakerFeePct:    c.TakerFeePct,
		MakerFeePct:    c.MakerFeePct,
		ExecutionType:  c.ExecutionType,
	}
}

// RiskConfig returns the live order guards. The notional floor is filled in
// from the exchange at startup.
func (c *Config) RiskConfig() risk.Config {
	return risk.Config{
		MaxOrdersPerDay:     c.MaxOrders,
		MinAvailableBalance: c.MinAvailableBalance,
	}
}

// OptimizerBase returns the configured parameters as the optimizer's base point.
func (c *Config) OptimizerBase() optimization.Params {
	return optimization.Params{
		Ichimoku:      c.IchimokuConfig(),
		TakeProfitPct: c.TakeProfitPct,
		StopLossPct:   c.StopLossPct,
	}
}

// LoadGrid reads an optimizer parameter grid from a YAML file.
func LoadGrid(path string) (optimization.Grid, error) {
	var grid optimization.Grid
	data, err := os.ReadFile(path)
	if err != nil {
		return grid, fmt.Errorf("reading grid file: %w", err)
	}
	if err := yaml.Unmarshal(data, &grid); err != nil {
		return grid, fmt.Errorf("parsing grid file %s: %w", path, err)
	}

	var errs []string
	for _, v := range append(append([]float64{}, grid.TakeProfitPct...), grid.StopLossPct...) {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("negative percentage %g", v))
		}
	}
	for _, v := range append(append(append([]int{}, grid.TenkanPeriod...), grid.KijunPeriod...), grid.SenkouBPeriod...) {
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("non-positive period %d", v))
		}
	}
	for _, v := range grid.Offset {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("negative offset %d", v))
		}
	}
	if len(errs) > 0 {
		return grid, fmt.Errorf("grid validation failed: %s", strings.Join(errs, "; "))
	}
	return grid, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
