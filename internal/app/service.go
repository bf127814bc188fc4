package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"macdBot/internal/aggregator"
	"macdBot/internal/analytics"
	"macdBot/internal/domain"
	"macdBot/internal/ledger"
	"macdBot/internal/metrics"
	"macdBot/internal/ports"
	"macdBot/internal/risk"
	"macdBot/internal/strategy/macd"
)

const (
	summaryRecentTrades = 10
	summaryEquityPoints = 100
)

// Config holds the runtime settings the service needs.
type Config struct {
	Symbols              []string
	Leverage             int
	TradingEnabled       bool
	PollInterval         time.Duration
	DecisionInterval     time.Duration
	LatencyProbeInterval time.Duration
	BootstrapInterval    string
	BootstrapBars        int
}

// Validate checks the service settings.
func (c Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.PollInterval <= 0 || c.DecisionInterval <= 0 || c.LatencyProbeInterval <= 0 {
		return fmt.Errorf("poll, decision and latency probe intervals must be positive")
	}
	if c.BootstrapBars < 0 {
		return fmt.Errorf("bootstrap bar count cannot be negative, got %d", c.BootstrapBars)
	}
	return nil
}

// Summary is a read-only snapshot of the bot.
type Summary struct {
	TradingEnabled bool
	Stats          domain.PortfolioStats
	Positions      []domain.Trade
	RecentTrades   []domain.Trade
	EquityCurve    []domain.EquityPoint
	Drawdowns      []analytics.Drawdown
	Latency        domain.Latency
	Signals        map[string]domain.Signal
	Collector      aggregator.Status
}

// TradingService orchestrates the bar aggregator, the signal engine and the ledger.
type TradingService struct {
	cfg        Config
	logger     ports.Logger
	gateway    ports.Gateway
	aggregator *aggregator.Aggregator
	engine     *macd.Engine
	ledger     *ledger.Ledger
	sizer      *risk.RiskManager
	metrics    *metrics.Metrics

	symbols        map[string]struct{}
	tradingEnabled atomic.Bool

	// decideMu serializes decision passes; lastFed is the open time of the last bar
	// fed to the engine per symbol.
	decideMu sync.Mutex
	lastFed  map[string]time.Time
}

// NewTradingService creates a new application service instance.
// m may be nil, in which case no metrics are recorded.
func NewTradingService(
	cfg Config,
	logger ports.Logger,
	gateway ports.Gateway,
	agg *aggregator.Aggregator,
	engine *macd.Engine,
	led *ledger.Ledger,
	sizer *risk.RiskManager,
	m *metrics.Metrics,
) (*TradingService, error) {
	if logger == nil || gateway == nil || agg == nil || engine == nil || led == nil || sizer == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service configuration: %w", err)
	}

	s := &TradingService{
		cfg:        cfg,
		logger:     logger,
		gateway:    gateway,
		aggregator: agg,
		engine:     engine,
		ledger:     led,
		sizer:      sizer,
		metrics:    m,
		symbols:    make(map[string]struct{}, len(cfg.Symbols)),
		lastFed:    make(map[string]time.Time, len(cfg.Symbols)),
	}
	for _, sym := range cfg.Symbols {
		s.symbols[sym] = struct{}{}
	}
	s.tradingEnabled.Store(cfg.TradingEnabled)
	s.wireObservers()
	return s, nil
}

func (s *TradingService) wireObservers() {
	if s.metrics == nil {
		return
	}
	m := s.metrics
	s.aggregator.OnBarFinalized = m.ObserveBar
	s.aggregator.OnSnapshotError = m.ObserveSnapshotError
	s.engine.OnSignal = m.ObserveSignal
	s.ledger.OnLatency = m.ObserveLatency
	s.ledger.OnTradeOpened = func(domain.Trade) { s.observePortfolio() }
	s.ledger.OnTradeClosed = func(t domain.Trade) {
		m.ObserveTradeClosed(t)
		s.observePortfolio()
	}
	s.observePortfolio()
}

func (s *TradingService) observePortfolio() {
	if s.metrics == nil {
		return
	}
	available, total := s.ledger.Balances()
	s.metrics.ObservePortfolio(available, total, s.ledger.OpenCount())
}

// Bootstrap registers every symbol, prepares it on the exchange and warms the engine
// up from historical bars. Failures to prepare or to fetch history are logged only;
// the engine then warms up from live bars.
func (s *TradingService) Bootstrap(ctx context.Context) error {
	preparer, canPrepare := s.gateway.(ports.SymbolPreparer)

	for _, sym := range s.cfg.Symbols {
		if err := s.aggregator.AddSymbol(sym); err != nil {
			return fmt.Errorf("failed to register %s with aggregator: %w", sym, err)
		}
		if err := s.engine.Register(sym); err != nil {
			return fmt.Errorf("failed to register %s with signal engine: %w", sym, err)
		}

		if canPrepare && s.cfg.Leverage > 0 {
			if err := preparer.PrepareSymbol(ctx, sym, s.cfg.Leverage); err != nil {
				s.logger.Warn(ctx, "Failed to prepare symbol on exchange", map[string]interface{}{
					"symbol": sym, "leverage": s.cfg.Leverage, "error": err.Error(),
				})
			} else {
				s.logger.Info(ctx, "Symbol prepared", map[string]interface{}{"symbol": sym, "leverage": s.cfg.Leverage})
			}
		}

		if s.cfg.BootstrapBars == 0 {
			continue
		}
		bars, err := s.gateway.FetchHistoricalBars(ctx, sym, s.cfg.BootstrapInterval, s.cfg.BootstrapBars)
		if err != nil {
			s.logger.Warn(ctx, "Failed to load historical bars, warming up from live bars", map[string]interface{}{
				"symbol": sym, "interval": s.cfg.BootstrapInterval, "error": err.Error(),
			})
			continue
		}
		if len(bars) == 0 {
			continue
		}
		sig, err := s.engine.Warmup(bars)
		if err != nil {
			return fmt.Errorf("failed to warm up signal engine for %s: %w", sym, err)
		}
		if err := s.aggregator.Seed(sym, bars); err != nil {
			return fmt.Errorf("failed to seed bar history for %s: %w", sym, err)
		}
		s.decideMu.Lock()
		s.lastFed[sym] = bars[len(bars)-1].OpenTime
		s.decideMu.Unlock()

		s.logger.Info(ctx, "Signal engine warmed up", map[string]interface{}{
			"symbol": sym, "bars": len(bars), "histogram": sig.Histogram,
		})
	}
	return nil
}

// Start bootstraps the service and runs its loops until ctx is cancelled or SIGINT/SIGTERM
// is received.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...", map[string]interface{}{
		"symbols":        s.cfg.Symbols,
		"tradingEnabled": s.TradingEnabled(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.Bootstrap(ctx); err != nil {
		s.logger.Error(ctx, err, "Bootstrap failed")
		return err
	}

	err := s.Run(ctx)

	if open := s.ledger.ActivePositions(); len(open) > 0 {
		symbols := make([]string, len(open))
		for i, t := range open {
			symbols[i] = t.Symbol
		}
		s.logger.Warn(ctx, "Shutting down with open positions", map[string]interface{}{"symbols": symbols})
	}
	stats := s.ledger.Stats()
	s.logger.Info(ctx, "Trading Service stopped.", map[string]interface{}{
		"totalTrades": stats.TotalTrades,
		"totalPNL":    stats.TotalPNL,
		"roi":         stats.ROI,
	})
	return err
}

// Run runs the aggregation, decision and latency probe loops until ctx is cancelled.
func (s *TradingService) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.aggregator.Run(gctx, s.cfg.PollInterval)
	})
	g.Go(func() error {
		return s.runDecisions(gctx)
	})
	g.Go(func() error {
		return s.ledger.RunLatencyProbe(gctx, s.cfg.LatencyProbeInterval)
	})
	err := g.Wait()
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return err
}

func (s *TradingService) runDecisions(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.DecisionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Decide(ctx)
		}
	}
}

// Decide feeds every finalized bar not yet seen to the signal engine and, when trading
// is enabled, acts on the resulting crossovers. It returns the signals produced.
func (s *TradingService) Decide(ctx context.Context) []domain.Signal {
	s.decideMu.Lock()
	defer s.decideMu.Unlock()

	var produced []domain.Signal
	for _, sym := range s.cfg.Symbols {
		bars, err := s.aggregator.History(sym, 0)
		if err != nil {
			s.logger.Warn(ctx, "Bar history unavailable", map[string]interface{}{"symbol": sym, "error": err.Error()})
			continue
		}
		last, seen := s.lastFed[sym]
		for _, bar := range bars {
			if seen && !bar.OpenTime.After(last) {
				continue
			}
			sig, err := s.engine.Update(bar)
			if err != nil {
				s.logger.Error(ctx, err, "Signal engine update failed", map[string]interface{}{"symbol": sym})
				break
			}
			s.lastFed[sym] = bar.OpenTime
			last, seen = bar.OpenTime, true
			produced = append(produced, sig)

			if s.TradingEnabled() {
				s.act(ctx, sig)
			}
		}
	}
	return produced
}

func (s *TradingService) act(ctx context.Context, sig domain.Signal) {
	switch sig.Kind {
	case domain.SignalBullishCross:
		if s.ledger.HasPosition(sig.Symbol) {
			s.logger.Debug(ctx, "Bullish cross ignored, position already open", map[string]interface{}{"symbol": sig.Symbol})
			return
		}
		if err := s.sizer.CanOpen(s.ledger.OpenCount()); err != nil {
			s.logger.Info(ctx, "Bullish cross ignored", map[string]interface{}{"symbol": sig.Symbol, "reason": err.Error()})
			return
		}
		trade, err := s.ledger.OpenPosition(ctx, sig.Symbol, domain.Long, domain.TriggerBullishCross)
		s.observeOrder(sig.Symbol, "open", err)
		if err != nil {
			s.logOrderFailure(ctx, err, "Failed to open position on bullish cross", sig.Symbol)
			return
		}
		s.logger.Info(ctx, "Opened position on bullish cross", map[string]interface{}{
			"symbol": trade.Symbol, "tradeID": trade.ID, "price": trade.EntryPrice, "quantity": trade.EntryQuantity,
		})

	case domain.SignalBearishCross:
		if !s.ledger.HasPosition(sig.Symbol) {
			return
		}
		trade, err := s.ledger.ClosePosition(ctx, sig.Symbol, domain.TriggerBearishCross)
		s.observeOrder(sig.Symbol, "close", err)
		if err != nil {
			s.logOrderFailure(ctx, err, "Failed to close position on bearish cross", sig.Symbol)
			return
		}
		s.logger.Info(ctx, "Closed position on bearish cross", map[string]interface{}{
			"symbol": trade.Symbol, "tradeID": trade.ID, "pnl": trade.PNL, "pnlPct": trade.PNLPct,
		})
	}
}

func (s *TradingService) observeOrder(symbol, action string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveOrder(symbol, action, err)
	}
}

// logOrderFailure logs at Warn for outcomes that resolve themselves on a later decision
// and at Error for everything else.
func (s *TradingService) logOrderFailure(ctx context.Context, err error, msg, symbol string) {
	fields := map[string]interface{}{"symbol": symbol}
	switch {
	case errors.Is(err, ports.ErrDuplicatePosition), errors.Is(err, ports.ErrNoPosition):
		s.logger.Warn(ctx, msg, map[string]interface{}{"symbol": symbol, "error": err.Error()})
	case ports.IsTransient(err):
		s.logger.Warn(ctx, msg, map[string]interface{}{"symbol": symbol, "error": err.Error(), "transient": true})
	default:
		s.logger.Error(ctx, err, msg, fields)
	}
}

func (s *TradingService) checkSymbol(symbol string) error {
	if _, ok := s.symbols[symbol]; !ok {
		return fmt.Errorf("%w: %q is not configured", ports.ErrInvalidSymbol, symbol)
	}
	return nil
}

// OpenPosition opens a position manually, regardless of the trading gate.
func (s *TradingService) OpenPosition(ctx context.Context, symbol string, side domain.PositionSide) (domain.Trade, error) {
	if err := s.checkSymbol(symbol); err != nil {
		return domain.Trade{}, err
	}
	trade, err := s.ledger.OpenPosition(ctx, symbol, side, domain.TriggerManual)
	s.observeOrder(symbol, "open", err)
	if err != nil {
		return domain.Trade{}, err
	}
	s.logger.Info(ctx, "Opened position manually", map[string]interface{}{
		"symbol": symbol, "side": side.String(), "tradeID": trade.ID,
	})
	return trade, nil
}

// ClosePosition closes the open position for symbol manually.
func (s *TradingService) ClosePosition(ctx context.Context, symbol string) (domain.Trade, error) {
	if err := s.checkSymbol(symbol); err != nil {
		return domain.Trade{}, err
	}
	trade, err := s.ledger.ClosePosition(ctx, symbol, domain.TriggerManual)
	s.observeOrder(symbol, "close", err)
	if err != nil {
		return domain.Trade{}, err
	}
	s.logger.Info(ctx, "Closed position manually", map[string]interface{}{
		"symbol": symbol, "tradeID": trade.ID, "pnl": trade.PNL,
	})
	return trade, nil
}

// TradingEnabled reports whether crossovers currently drive orders.
func (s *TradingService) TradingEnabled() bool {
	return s.tradingEnabled.Load()
}

// EnableTrading lets crossovers drive orders.
func (s *TradingService) EnableTrading(ctx context.Context) {
	if !s.tradingEnabled.Swap(true) {
		s.logger.Info(ctx, "Trading enabled")
	}
}

// DisableTrading stops crossovers from driving orders and closes every active position.
// The returned error joins the failures of individual closes.
func (s *TradingService) DisableTrading(ctx context.Context) error {
	s.tradingEnabled.Store(false)
	s.logger.Info(ctx, "Trading disabled, closing active positions")

	var errs []error
	for _, pos := range s.ledger.ActivePositions() {
		trade, err := s.ledger.ClosePosition(ctx, pos.Symbol, domain.TriggerShutdown)
		s.observeOrder(pos.Symbol, "close", err)
		if err != nil {
			if errors.Is(err, ports.ErrNoPosition) {
				continue
			}
			s.logger.Error(ctx, err, "Failed to close position while disabling trading", map[string]interface{}{"symbol": pos.Symbol})
			errs = append(errs, err)
			continue
		}
		s.logger.Info(ctx, "Closed position", map[string]interface{}{"symbol": trade.Symbol, "pnl": trade.PNL})
	}
	return errors.Join(errs...)
}

// Bars returns up to limit finalized bars for symbol, oldest first.
func (s *TradingService) Bars(symbol string, limit int) ([]domain.Bar, error) {
	return s.aggregator.History(symbol, limit)
}

// Signals returns up to limit signals for symbol, oldest first.
func (s *TradingService) Signals(symbol string, limit int) ([]domain.Signal, error) {
	return s.engine.History(symbol, limit)
}

// Summary returns a read-only snapshot of the bot.
func (s *TradingService) Summary() Summary {
	curve := s.ledger.EquityCurve(summaryEquityPoints)
	return Summary{
		TradingEnabled: s.TradingEnabled(),
		Stats:          s.ledger.Stats(),
		Positions:      s.ledger.ActivePositions(),
		RecentTrades:   s.ledger.ClosedTrades(summaryRecentTrades),
		EquityCurve:    curve,
		Drawdowns:      analytics.Drawdowns(s.ledger.EquityCurve(0)),
		Latency:        s.ledger.Latency(),
		Signals:        s.engine.LatestAll(),
		Collector:      s.aggregator.Status(),
	}
}
