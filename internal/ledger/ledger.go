// Package ledger owns positions, trades and portfolio accounting for a single account.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"macdBot/internal/analytics"
	"macdBot/internal/domain"
	"macdBot/internal/ports"
	"macdBot/internal/risk"
)

// Exchange is the part of the gateway the ledger trades through.
type Exchange interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	SubmitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error)
	MeasureRoundTrip(ctx context.Context) (time.Duration, error)
}

// Ledger is the single source of truth for open positions.
//
// opMu serializes open and close, including their gateway calls, so precondition
// checks and the commit that follows them cannot interleave. mu guards the state and is
// only held to read or to commit, so queries never wait on the exchange.
type Ledger struct {
	exchange Exchange
	sizer    *risk.RiskManager
	logger   ports.Logger
	now      func() time.Time
	newID    func() string

	opMu sync.Mutex

	mu             sync.RWMutex
	initialCapital float64
	available      float64
	total          float64
	trades         []*domain.Trade // Every trade, in entry order
	active         map[string]*domain.Trade
	closed         []*domain.Trade
	equity         []domain.EquityPoint

	latMu   sync.RWMutex
	latency domain.Latency

	// Optional hooks, called after commit outside any lock.
	OnTradeOpened func(domain.Trade)
	OnTradeClosed func(domain.Trade)
	OnLatency     func(domain.Latency)
}

// New creates a ledger funded with initialCapital. The equity curve starts with one point.
func New(initialCapital float64, exchange Exchange, sizer *risk.RiskManager, logger ports.Logger) (*Ledger, error) {
	if exchange == nil || sizer == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Ledger")
	}
	if initialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %f", initialCapital)
	}
	l := &Ledger{
		exchange:       exchange,
		sizer:          sizer,
		logger:         logger,
		now:            time.Now,
		newID:          func() string { return uuid.NewString()[:8] },
		initialCapital: initialCapital,
		available:      initialCapital,
		total:          initialCapital,
		active:         make(map[string]*domain.Trade),
	}
	l.equity = append(l.equity, domain.EquityPoint{Timestamp: l.now(), Equity: initialCapital, Available: initialCapital})
	return l, nil
}

// SetClock replaces the time source. Intended for tests and replays.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	if len(l.equity) == 1 {
		l.equity[0].Timestamp = now()
	}
}

// OpenPosition opens a position on symbol. It either commits a new OPEN trade or
// returns an error and leaves the ledger untouched.
func (l *Ledger) OpenPosition(ctx context.Context, symbol string, side domain.PositionSide, trigger domain.Trigger) (domain.Trade, error) {
	if symbol == "" {
		return domain.Trade{}, fmt.Errorf("%w: empty symbol", ports.ErrInvalidSymbol)
	}
	if !side.Valid() {
		return domain.Trade{}, fmt.Errorf("%w: invalid position side %d", ports.ErrInvalidRequest, side)
	}

	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.RLock()
	_, exists := l.active[symbol]
	available := l.available
	l.mu.RUnlock()
	if exists {
		return domain.Trade{}, fmt.Errorf("%w: %s", ports.ErrDuplicatePosition, symbol)
	}

	allocation, err := l.sizer.Allocation(available)
	if err != nil {
		return domain.Trade{}, err
	}

	price, err := l.price(ctx, symbol)
	if err != nil {
		return domain.Trade{}, err
	}

	qty, err := l.sizer.Quantity(symbol, allocation, price)
	if err != nil {
		return domain.Trade{}, err
	}

	if _, err := l.submit(ctx, symbol, side.EntryOrderSide(), l.sizer.FormatQuantity(symbol, qty)); err != nil {
		return domain.Trade{}, err
	}

	l.mu.Lock()
	trade := &domain.Trade{
		ID:            l.newID(),
		Symbol:        symbol,
		Side:          side,
		EntryPrice:    price,
		EntryQuantity: qty.InexactFloat64(),
		EntryTime:     l.now(),
		Status:        domain.StatusOpen,
		Trigger:       trigger,
	}
	l.available -= allocation
	l.trades = append(l.trades, trade)
	l.active[symbol] = trade
	opened := trade.Clone()
	l.mu.Unlock()

	l.logger.Info(ctx, "Position opened", map[string]interface{}{
		"tradeID":    opened.ID,
		"symbol":     symbol,
		"side":       side.String(),
		"entryPrice": price,
		"quantity":   opened.EntryQuantity,
		"allocation": allocation,
		"notional":   opened.Notional(),
		"trigger":    string(trigger),
	})
	if l.OnTradeOpened != nil {
		l.OnTradeOpened(opened)
	}
	return opened, nil
}

// ClosePosition closes the open position on symbol at the current price.
func (l *Ledger) ClosePosition(ctx context.Context, symbol string, trigger domain.Trigger) (domain.Trade, error) {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.RLock()
	open, exists := l.active[symbol]
	var snapshot domain.Trade
	if exists {
		snapshot = open.Clone()
	}
	l.mu.RUnlock()
	if !exists {
		return domain.Trade{}, fmt.Errorf("%w: %s", ports.ErrNoPosition, symbol)
	}

	price, err := l.price(ctx, symbol)
	if err != nil {
		return domain.Trade{}, err
	}

	qty := l.sizer.FormatQuantity(symbol, decimal.NewFromFloat(snapshot.EntryQuantity))
	if _, err := l.submit(ctx, symbol, snapshot.Side.ExitOrderSide(), qty); err != nil {
		return domain.Trade{}, err
	}

	l.mu.Lock()
	now := l.now()
	if n := len(l.equity); n > 0 && now.Before(l.equity[n-1].Timestamp) {
		now = l.equity[n-1].Timestamp
	}
	pnl := realizedPNL(snapshot.Side, snapshot.EntryPrice, price, snapshot.EntryQuantity)
	exitPrice, exitQty := price, snapshot.EntryQuantity
	open.ExitPrice = &exitPrice
	open.ExitQuantity = &exitQty
	open.ExitTime = &now
	open.PNL = pnl
	open.PNLPct = pnl / snapshot.Notional() * 100
	open.Status = domain.StatusClosed
	open.ExitTrigger = trigger

	l.available += price * snapshot.EntryQuantity
	l.total += pnl
	delete(l.active, symbol)
	l.closed = append(l.closed, open)
	l.equity = append(l.equity, domain.EquityPoint{Timestamp: now, Equity: l.total, Available: l.available})
	closedTrade := open.Clone()
	l.mu.Unlock()

	l.logger.Info(ctx, "Position closed", map[string]interface{}{
		"tradeID":   closedTrade.ID,
		"symbol":    symbol,
		"side":      closedTrade.Side.String(),
		"exitPrice": price,
		"pnl":       pnl,
		"pnlPct":    closedTrade.PNLPct,
		"trigger":   string(trigger),
	})
	if l.OnTradeClosed != nil {
		l.OnTradeClosed(closedTrade)
	}
	return closedTrade, nil
}

func realizedPNL(side domain.PositionSide, entry, exit, qty float64) float64 {
	if side == domain.Short {
		return (entry - exit) * qty
	}
	return (exit - entry) * qty
}

func (l *Ledger) price(ctx context.Context, symbol string) (float64, error) {
	price, err := l.exchange.CurrentPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("%w for %s: %w", ports.ErrPriceUnavailable, symbol, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w for %s: got %f", ports.ErrPriceUnavailable, symbol, price)
	}
	return price, nil
}

// submit places the order once. Any failure is reported as an order rejection; the
// submission is not idempotent so it is never retried here.
func (l *Ledger) submit(ctx context.Context, symbol string, side domain.OrderSide, qty string) (*ports.OrderResponse, error) {
	resp, err := l.exchange.SubmitMarketOrder(ctx, symbol, side, qty)
	if err == nil {
		return resp, nil
	}
	var rejected *ports.OrderRejectedError
	if errors.As(err, &rejected) {
		return nil, err
	}
	return nil, &ports.OrderRejectedError{Symbol: symbol, Reason: err.Error(), Err: err}
}

// HasPosition reports whether symbol has an OPEN trade.
func (l *Ledger) HasPosition(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.active[symbol]
	return ok
}

// Position returns a copy of the OPEN trade on symbol.
func (l *Ledger) Position(symbol string) (domain.Trade, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.active[symbol]
	if !ok {
		return domain.Trade{}, false
	}
	return t.Clone(), true
}

// OpenCount returns the number of OPEN trades.
func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.active)
}

// ActivePositions returns copies of the OPEN trades ordered by symbol.
func (l *Ledger) ActivePositions() []domain.Trade {
	l.mu.RLock()
	out := make([]domain.Trade, 0, len(l.active))
	for _, t := range l.active {
		out = append(out, t.Clone())
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ClosedTrades returns up to limit of the most recently closed trades (all when limit <= 0).
func (l *Ledger) ClosedTrades(limit int) []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyTail(l.closed, limit)
}

// Trades returns every trade for symbol, or all trades when symbol is empty, in entry order.
func (l *Ledger) Trades(symbol string) []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Trade, 0, len(l.trades))
	for _, t := range l.trades {
		if symbol == "" || t.Symbol == symbol {
			out = append(out, t.Clone())
		}
	}
	return out
}

// EquityCurve returns up to limit of the most recent equity points (all when limit <= 0).
func (l *Ledger) EquityCurve(limit int) []domain.EquityPoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(l.equity) {
		start = len(l.equity) - limit
	}
	out := make([]domain.EquityPoint, len(l.equity)-start)
	copy(out, l.equity[start:])
	return out
}

// Balances returns the available balance and total capital.
func (l *Ledger) Balances() (available, total float64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.available, l.total
}

// Stats derives portfolio statistics from the current state.
func (l *Ledger) Stats() domain.PortfolioStats {
	l.mu.RLock()
	in := analytics.Input{
		InitialCapital:   l.initialCapital,
		CurrentCapital:   l.total,
		AvailableBalance: l.available,
		Trades:           make([]domain.Trade, len(l.trades)),
		EquityCurve:      make([]domain.EquityPoint, len(l.equity)),
	}
	for i, t := range l.trades {
		in.Trades[i] = t.Clone()
	}
	copy(in.EquityCurve, l.equity)
	l.mu.RUnlock()
	return analytics.ComputeStats(in)
}

func copyTail(src []*domain.Trade, limit int) []domain.Trade {
	start := 0
	if limit > 0 && limit < len(src) {
		start = len(src) - limit
	}
	out := make([]domain.Trade, 0, len(src)-start)
	for _, t := range src[start:] {
		out = append(out, t.Clone())
	}
	return out
}
