// Command replay_bars runs the signal engine over historical bars and exports the bars
// and the signals they produce to CSV and, optionally, SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"macdBot/config"
	"macdBot/internal/adapters/binanceclient"
	"macdBot/internal/adapters/logger"
	"macdBot/internal/adapters/sqlite"
	"macdBot/internal/domain"
	"macdBot/internal/ports"
	"macdBot/internal/strategy/macd"
	"macdBot/internal/utils"
)

var (
	symbol       = flag.String("symbol", "BTCUSDT", "symbol to replay")
	interval     = flag.String("interval", "1m", "kline interval")
	count        = flag.Int("count", 500, "number of bars (exchange source max 1000, -1 loads everything from a database)")
	source       = flag.String("source", "exchange", "bar source: exchange, csv or db")
	input        = flag.String("in", "", "input CSV file when -source=csv")
	barsOut      = flag.String("bars-out", "", "bars CSV output path (default data/<symbol>_<interval>_bars.csv)")
	signalsOut   = flag.String("signals-out", "", "signals CSV output path (default data/<symbol>_<interval>_signals.csv)")
	dbPath       = flag.String("db", "", "SQLite database to read from (-source=db) and export to")
	fetchTimeout = flag.Duration("timeout", 30*time.Second, "timeout for loading bars")
)

// exchangeSource loads bars straight from the exchange.
type exchangeSource struct {
	client *binanceclient.Client
}

func (s exchangeSource) LoadBars(ctx context.Context, symbol, interval string, limit int) ([]domain.Bar, error) {
	return s.client.FetchHistoricalBars(ctx, symbol, interval, limit)
}

// csvSource loads bars from a CSV file written by this tool.
type csvSource struct {
	path string
}

func (s csvSource) LoadBars(_ context.Context, symbol, interval string, limit int) ([]domain.Bar, error) {
	bars, err := utils.ReadBarsFromCSV(s.path)
	if err != nil {
		return nil, err
	}
	out := bars[:0]
	for _, b := range bars {
		if b.Symbol == symbol && b.Interval == interval {
			out = append(out, b)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func main() {
	flag.Parse()
	ctx := context.Background()
	sym := strings.ToUpper(*symbol)

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Optional SQLite store
	var repo *sqlite.Repository
	if *dbPath != "" {
		repo, err = sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
		if err != nil {
			log.Fatalf("FATAL: Failed to open database: %v", err)
		}
		defer func() {
			if err := repo.Close(); err != nil {
				appLogger.Error(ctx, err, "Error closing database repository")
			}
		}()
	}

	// 4. Bar source
	var src ports.BarSource
	switch *source {
	case "exchange":
		client, err := binanceclient.New(binanceclient.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     appLogger,
		})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
		}
		src = exchangeSource{client: client}
	case "csv":
		if *input == "" {
			log.Fatalf("FATAL: -in is required when -source=csv")
		}
		src = csvSource{path: *input}
	case "db":
		if repo == nil {
			log.Fatalf("FATAL: -db is required when -source=db")
		}
		src = repo
	default:
		log.Fatalf("FATAL: unknown source %q", *source)
	}

	loadCtx, cancel := context.WithTimeout(ctx, *fetchTimeout)
	bars, err := src.LoadBars(loadCtx, sym, *interval, *count)
	cancel()
	if err != nil {
		appLogger.Error(ctx, err, "Error loading bars")
		log.Fatalf("Error loading bars: %v", err)
	}
	if len(bars) == 0 {
		log.Fatalf("No bars found for %s %s", sym, *interval)
	}
	appLogger.Info(ctx, "Loaded bars", map[string]interface{}{"source": *source, "count": len(bars)})

	// 5. Replay
	engine, err := macd.New(macd.Config{
		FastPeriod:   cfg.MACDFastPeriod,
		SlowPeriod:   cfg.MACDSlowPeriod,
		SignalPeriod: cfg.MACDSignalPeriod,
	}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize signal engine: %v", err)
	}
	signals := make([]domain.Signal, 0, len(bars))
	crosses := map[domain.SignalKind]int{}
	for _, b := range bars {
		sig, err := engine.Update(b)
		if err != nil {
			log.Fatalf("Error replaying bar %s: %v", b.OpenTime, err)
		}
		signals = append(signals, sig)
		crosses[sig.Kind]++
	}

	// 6. Export
	csvSink := utils.CSVSink{
		BarsPath:    orDefault(*barsOut, fmt.Sprintf("data/%s_%s_bars.csv", sym, *interval)),
		SignalsPath: orDefault(*signalsOut, fmt.Sprintf("data/%s_%s_signals.csv", sym, *interval)),
	}
	for _, p := range []string{csvSink.BarsPath, csvSink.SignalsPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			log.Fatalf("Error creating output directory: %v", err)
		}
	}
	sinks := []ports.ReplaySink{csvSink}
	if repo != nil {
		sinks = append(sinks, repo)
	}
	for _, sink := range sinks {
		if err := sink.SaveBars(ctx, bars); err != nil {
			log.Fatalf("Error exporting bars: %v", err)
		}
		if err := sink.SaveSignals(ctx, signals); err != nil {
			log.Fatalf("Error exporting signals: %v", err)
		}
	}

	if repo != nil {
		stored, err := repo.CountSignals(ctx, sym)
		if err != nil {
			appLogger.Error(ctx, err, "Error counting stored signals")
		} else {
			appLogger.Info(ctx, "Signals stored in database", map[string]interface{}{"db": *dbPath, "byKind": stored})
		}
	}

	appLogger.Info(ctx, "Replay finished", map[string]interface{}{
		"symbol":   sym,
		"bars":     len(bars),
		"bullish":  crosses[domain.SignalBullishCross],
		"bearish":  crosses[domain.SignalBearishCross],
		"firstBar": bars[0].OpenTime,
		"lastBar":  bars[len(bars)-1].OpenTime,
	})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
