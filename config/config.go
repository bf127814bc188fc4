package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"macdBot/internal/adapters/logger" // Import the logger package for LogLevel
	"macdBot/internal/aggregator"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey           string
	SecretKey        string
	FuturesAPIKey    string
	FuturesSecretKey string
	IsTestnet        bool

	// Trading Parameters
	Symbols        []string
	Leverage       int
	TradingEnabled bool // Signals are always computed; this only gates order placement

	// Oscillator Parameters
	MACDFastPeriod   int // e.g., 5
	MACDSlowPeriod   int // e.g., 10
	MACDSignalPeriod int // e.g., 3

	// Bars and cadence
	BarInterval          time.Duration
	PollInterval         time.Duration
	DecisionInterval     time.Duration
	LatencyProbeInterval time.Duration
	BarHistoryCap        int
	BarCloseTimePolicy   aggregator.CloseTimePolicy
	BootstrapInterval    string // Exchange kline interval for warm-up bars, e.g. "1m"
	BootstrapBars        int

	// Capital and sizing
	InitialCapital      float64
	AllocationFraction  float64
	MinNotional         float64
	QtyPrecision        map[string]int
	DefaultQtyPrecision int
	MaxOpenPositions    int // Advisory; the ledger still enforces one position per symbol

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // "text" or "json"

	// Metrics
	MetricsAddr string // Empty disables the /metrics endpoint
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
	cfg.FuturesAPIKey = getEnv("BINANCE_FUTURES_API_KEY", cfg.APIKey)
	cfg.FuturesSecretKey = getEnv("BINANCE_FUTURES_API_SECRET", cfg.SecretKey)
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	cfg.TradingEnabled = getEnvAsBool("TRADING_ENABLED", false)

	if cfg.TradingEnabled && (cfg.FuturesAPIKey == "" || cfg.FuturesSecretKey == "") {
		errs = append(errs, "BINANCE_FUTURES_API_KEY/SECRET (or BINANCE_API_KEY/SECRET) must be set when TRADING_ENABLED")
	}

	// Trading Parameters
	cfg.Symbols = parseList(getEnv("SYMBOLS", "BTCUSDT"))
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}

	cfg.Leverage, err = getEnvAsIntRequired("LEVERAGE", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE: %v", err))
	} else if cfg.Leverage <= 0 {
		errs = append(errs, "LEVERAGE must be positive")
	}

	// Oscillator Parameters
	cfg.MACDFastPeriod, err = getEnvAsIntRequired("MACD_FAST_PERIOD", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MACD_FAST_PERIOD: %v", err))
	}
	cfg.MACDSlowPeriod, err = getEnvAsIntRequired("MACD_SLOW_PERIOD", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MACD_SLOW_PERIOD: %v", err))
	}
	cfg.MACDSignalPeriod, err = getEnvAsIntRequired("MACD_SIGNAL_PERIOD", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MACD_SIGNAL_PERIOD: %v", err))
	}
	if cfg.MACDFastPeriod <= 0 || cfg.MACDSlowPeriod <= 0 || cfg.MACDSignalPeriod <= 0 {
		errs = append(errs, "MACD periods must be positive")
	} else if cfg.MACDFastPeriod >= cfg.MACDSlowPeriod {
		errs = append(errs, "MACD_FAST_PERIOD must be less than MACD_SLOW_PERIOD")
	}

	// Bars and cadence
	cfg.BarInterval = seconds("BAR_INTERVAL_SECONDS", 30, &errs)
	cfg.PollInterval = seconds("POLL_INTERVAL_SECONDS", 1, &errs)
	cfg.DecisionInterval = seconds("DECISION_INTERVAL_SECONDS", 2, &errs)
	cfg.LatencyProbeInterval = seconds("LATENCY_PROBE_INTERVAL_SECONDS", 10, &errs)

	cfg.BarHistoryCap, err = getEnvAsIntRequired("BAR_HISTORY_CAP", aggregator.DefaultHistoryCap)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BAR_HISTORY_CAP: %v", err))
	} else if cfg.BarHistoryCap <= 0 {
		errs = append(errs, "BAR_HISTORY_CAP must be positive")
	}

	cfg.BarCloseTimePolicy, err = aggregator.ParseCloseTimePolicy(getEnv("BAR_CLOSE_TIME_POLICY", "creation"))
	if err != nil {
		errs = append(errs, err.Error())
	}

	cfg.BootstrapInterval = getEnv("BOOTSTRAP_INTERVAL", "1m")
	cfg.BootstrapBars, err = getEnvAsIntRequired("BOOTSTRAP_BARS", 100)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BOOTSTRAP_BARS: %v", err))
	} else if cfg.BootstrapBars < 0 || cfg.BootstrapBars > 1000 {
		errs = append(errs, "BOOTSTRAP_BARS must be between 0 and 1000")
	}

	// Capital and sizing
	cfg.InitialCapital, err = getEnvAsFloatRequired("INITIAL_CAPITAL", 3000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_CAPITAL: %v", err))
	} else if cfg.InitialCapital <= 0 {
		errs = append(errs, "INITIAL_CAPITAL must be positive")
	}

	cfg.AllocationFraction, err = getEnvAsFloatRequired("ALLOCATION_FRACTION", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ALLOCATION_FRACTION: %v", err))
	} else if cfg.AllocationFraction <= 0 || cfg.AllocationFraction > 1 {
		errs = append(errs, "ALLOCATION_FRACTION must be in (0, 1]")
	}

	cfg.MinNotional, err = getEnvAsFloatRequired("MIN_NOTIONAL", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_NOTIONAL: %v", err))
	} else if cfg.MinNotional < 0 {
		errs = append(errs, "MIN_NOTIONAL cannot be negative")
	}

	cfg.QtyPrecision, err = parsePrecisions(getEnv("QTY_PRECISION", "BTCUSDT:3,ETHUSDT:3,BNBUSDT:2,LTCUSDT:3"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QTY_PRECISION: %v", err))
	}

	cfg.DefaultQtyPrecision, err = getEnvAsIntRequired("DEFAULT_QTY_PRECISION", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_QTY_PRECISION: %v", err))
	} else if cfg.DefaultQtyPrecision < 0 || cfg.DefaultQtyPrecision > 8 {
		errs = append(errs, "DEFAULT_QTY_PRECISION must be between 0 and 8")
	}

	cfg.MaxOpenPositions, err = getEnvAsIntRequired("MAX_OPEN_POSITIONS", 1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_OPEN_POSITIONS: %v", err))
	} else if cfg.MaxOpenPositions < 0 {
		errs = append(errs, "MAX_OPEN_POSITIONS cannot be negative")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be 'text' or 'json'")
	}

	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
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
		// Return error if env var is set but invalid
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

// seconds reads a positive whole number of seconds.
func seconds(key string, defaultValue int, errs *[]string) time.Duration {
	n, err := getEnvAsIntRequired(key, defaultValue)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid %s: %v", key, err))
		return 0
	}
	if n <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be positive", key))
		return 0
	}
	return time.Duration(n) * time.Second
}

func parseList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parsePrecisions reads "SYMBOL:digits" pairs separated by commas.
func parsePrecisions(v string) (map[string]int, error) {
	out := make(map[string]int)
	for _, pair := range parseList(v) {
		symbol, digits, ok := strings.Cut(pair, ":")
		if !ok || symbol == "" {
			return nil, fmt.Errorf("expected SYMBOL:digits, got %q", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(digits))
		if err != nil {
			return nil, fmt.Errorf("precision for %s: %w", symbol, err)
		}
		if n < 0 || n > 8 {
			return nil, fmt.Errorf("precision for %s must be between 0 and 8, got %d", symbol, n)
		}
		out[strings.TrimSpace(symbol)] = n
	}
	return out, nil
}
