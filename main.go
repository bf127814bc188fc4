package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"strings"
	"time"

	"macdBot/config"
	"macdBot/internal/adapters/binanceclient"
	"macdBot/internal/adapters/logger"
	"macdBot/internal/aggregator"
	"macdBot/internal/app"
	"macdBot/internal/ledger"
	"macdBot/internal/metrics"
	"macdBot/internal/ports"
	"macdBot/internal/risk"
	"macdBot/internal/strategy/macd"
)

func newLogger(cfg *config.Config) ports.Logger {
	if strings.EqualFold(cfg.LogFormat, "json") {
		return logger.NewZeroLogger(cfg.LogLevel)
	}
	return logger.NewStdLogger(cfg.LogLevel)
}

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := newLogger(cfg)
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Metrics
	m := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := m.Serve(cfg.MetricsAddr, appLogger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				appLogger.Error(ctx, err, "Error shutting down metrics server")
			}
		}()
		appLogger.Info(ctx, "Metrics endpoint started", map[string]interface{}{"addr": cfg.MetricsAddr})
	}

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:           cfg.APIKey,
		SecretKey:        cfg.SecretKey,
		FuturesAPIKey:    cfg.FuturesAPIKey,
		FuturesSecretKey: cfg.FuturesSecretKey,
		UseTestnet:       cfg.IsTestnet,
		Logger:           appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	if err := binanceClient.SyncServerTime(ctx); err != nil {
		appLogger.Warn(ctx, "Failed to sync server time, continuing with local clock", map[string]interface{}{"error": err.Error()})
	}
	appLogger.Info(ctx, "Binance client initialized", map[string]interface{}{"testnet": cfg.IsTestnet})

	// 5. Bar Aggregator and Signal Engine
	agg, err := aggregator.New(aggregator.Config{
		Interval:        cfg.BarInterval,
		HistoryCap:      cfg.BarHistoryCap,
		CloseTimePolicy: cfg.BarCloseTimePolicy,
	}, binanceClient, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize bar aggregator")
		log.Fatalf("FATAL: Failed to initialize bar aggregator: %v", err)
	}

	engine, err := macd.New(macd.Config{
		FastPeriod:   cfg.MACDFastPeriod,
		SlowPeriod:   cfg.MACDSlowPeriod,
		SignalPeriod: cfg.MACDSignalPeriod,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize signal engine")
		log.Fatalf("FATAL: Failed to initialize signal engine: %v", err)
	}

	// 6. Sizing and Ledger
	sizer, err := risk.NewRiskManager(risk.RiskConfig{
		AllocationFraction: cfg.AllocationFraction,
		MinNotional:        cfg.MinNotional,
		QtyPrecision:       cfg.QtyPrecision,
		DefaultPrecision:   cfg.DefaultQtyPrecision,
		MaxOpenPositions:   cfg.MaxOpenPositions,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position sizer")
		log.Fatalf("FATAL: Failed to initialize position sizer: %v", err)
	}

	led, err := ledger.New(cfg.InitialCapital, binanceClient, sizer, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize portfolio ledger")
		log.Fatalf("FATAL: Failed to initialize portfolio ledger: %v", err)
	}

	// 7. Initialize Application Service
	tradingService, err := app.NewTradingService(app.Config{
		Symbols:              cfg.Symbols,
		Leverage:             cfg.Leverage,
		TradingEnabled:       cfg.TradingEnabled,
		PollInterval:         cfg.PollInterval,
		DecisionInterval:     cfg.DecisionInterval,
		LatencyProbeInterval: cfg.LatencyProbeInterval,
		BootstrapInterval:    cfg.BootstrapInterval,
		BootstrapBars:        cfg.BootstrapBars,
	}, appLogger, binanceClient, agg, engine, led, sizer, m)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(ctx, "Trading service initialized")

	// 8. Start the Service
	if err := tradingService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
