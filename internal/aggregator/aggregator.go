// Package aggregator turns periodically polled price snapshots into fixed-duration bars.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"macdBot/internal/domain"
	"macdBot/internal/ports"
)

// DefaultHistoryCap bounds the finalized bars kept per symbol.
const DefaultHistoryCap = 1000

// CloseTimePolicy selects the timestamp stamped on a finalized bar.
type CloseTimePolicy int

const (
	// CloseAtCreation stamps the bar's creation time, so CloseTime equals OpenTime.
	CloseAtCreation CloseTimePolicy = iota
	// CloseAtFinalize stamps the time of the tick that finalized the bar.
	CloseAtFinalize
)

// String returns the config name of the policy.
func (p CloseTimePolicy) String() string {
	switch p {
	case CloseAtCreation:
		return "creation"
	case CloseAtFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// ParseCloseTimePolicy converts a config value to a CloseTimePolicy.
func ParseCloseTimePolicy(s string) (CloseTimePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "creation":
		return CloseAtCreation, nil
	case "finalize":
		return CloseAtFinalize, nil
	default:
		return CloseAtCreation, fmt.Errorf("invalid bar close time policy: %q", s)
	}
}

// SnapshotFetcher is the part of the exchange gateway the aggregator polls.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, symbol string) (domain.Snapshot, error)
}

// Config holds aggregation settings.
type Config struct {
	Interval        time.Duration
	HistoryCap      int
	CloseTimePolicy CloseTimePolicy
}

// Status describes the collector for read-only queries.
type Status struct {
	Collecting bool
	Interval   time.Duration
	Symbols    []string
	BarCounts  map[string]int
}

type symbolState struct {
	mu        sync.RWMutex
	current   *domain.Bar
	createdAt time.Time
	history   []domain.Bar
}

// Aggregator keeps one in-progress bar and a bounded history per symbol.
// The registry lock only guards the symbol map; each symbol has its own lock.
type Aggregator struct {
	cfg     Config
	source  SnapshotFetcher
	logger  ports.Logger
	label   string
	nowFunc func() time.Time

	mu     sync.RWMutex
	states map[string]*symbolState

	pollMu     sync.Mutex
	collecting atomic.Bool

	// Optional hooks, called outside any lock.
	OnBarFinalized  func(domain.Bar)
	OnSnapshotError func(symbol string, err error)
}

// New creates a new Aggregator.
func New(cfg Config, source SnapshotFetcher, logger ports.Logger) (*Aggregator, error) {
	if source == nil {
		return nil, fmt.Errorf("snapshot source is required for aggregator")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for aggregator")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("bar interval must be positive, got %s", cfg.Interval)
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = DefaultHistoryCap
	}
	return &Aggregator{
		cfg:     cfg,
		source:  source,
		logger:  logger,
		label:   IntervalLabel(cfg.Interval),
		nowFunc: time.Now,
		states:  make(map[string]*symbolState),
	}, nil
}

// IntervalLabel formats an interval the way exchanges name kline intervals ("30s", "1m").
func IntervalLabel(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}

// AddSymbol registers a symbol for polling.
func (a *Aggregator) AddSymbol(symbol string) error {
	_, err := a.state(symbol, true)
	return err
}

// RemoveSymbol stops polling a symbol and discards its bars.
func (a *Aggregator) RemoveSymbol(symbol string) {
	a.mu.Lock()
	delete(a.states, symbol)
	a.mu.Unlock()
}

// Symbols returns the registered symbols in sorted order.
func (a *Aggregator) Symbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.states))
	for s := range a.states {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (a *Aggregator) state(symbol string, create bool) (*symbolState, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ports.ErrInvalidSymbol)
	}
	a.mu.RLock()
	st, ok := a.states[symbol]
	a.mu.RUnlock()
	if ok {
		return st, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: %s is not collected", ports.ErrInvalidSymbol, symbol)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.states[symbol]; ok {
		return st, nil
	}
	st = &symbolState{}
	a.states[symbol] = st
	return st, nil
}

// Seed appends already-closed bars to a symbol's history, oldest first.
func (a *Aggregator) Seed(symbol string, bars []domain.Bar) error {
	st, err := a.state(symbol, true)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, b := range bars {
		st.appendHistory(b, a.cfg.HistoryCap)
	}
	return nil
}

func (st *symbolState) appendHistory(b domain.Bar, limit int) {
	st.history = append(st.history, b)
	if len(st.history) > limit {
		st.history = st.history[len(st.history)-limit:]
	}
}

// Tick applies one snapshot observed at now. It returns the bar finalized by this
// tick, if any.
func (a *Aggregator) Tick(symbol string, snap domain.Snapshot, now time.Time) (domain.Bar, bool, error) {
	st, err := a.state(symbol, true)
	if err != nil {
		return domain.Bar{}, false, err
	}
	bar, done := a.apply(st, symbol, snap, now)
	return bar, done, nil
}

// apply folds snap into st and reports the bar it finalized, if any.
func (a *Aggregator) apply(st *symbolState, symbol string, snap domain.Snapshot, now time.Time) (domain.Bar, bool) {
	st.mu.Lock()
	var (
		finalized domain.Bar
		done      bool
	)
	switch {
	case st.current == nil:
		st.open(symbol, a.label, snap.Close, now)
	case now.Sub(st.createdAt) >= a.cfg.Interval:
		finalized = *st.current
		if a.cfg.CloseTimePolicy == CloseAtFinalize {
			finalized.CloseTime = now
		} else {
			finalized.CloseTime = st.createdAt
		}
		st.appendHistory(finalized, a.cfg.HistoryCap)
		done = true
		st.open(symbol, a.label, snap.Close, now)
	default:
		bar := st.current
		if snap.Close > bar.High {
			bar.High = snap.Close
		}
		if snap.Close < bar.Low {
			bar.Low = snap.Close
		}
		bar.Close = snap.Close
	}
	st.mu.Unlock()

	if done {
		a.logger.Debug(context.Background(), "Bar finalized", map[string]interface{}{
			"symbol": symbol,
			"open":   finalized.Open,
			"high":   finalized.High,
			"low":    finalized.Low,
			"close":  finalized.Close,
		})
		if a.OnBarFinalized != nil {
			a.OnBarFinalized(finalized)
		}
	}
	return finalized, done
}

func (st *symbolState) open(symbol, label string, price float64, now time.Time) {
	st.current = &domain.Bar{
		Symbol:   symbol,
		Interval: label,
		OpenTime: now,
		Open:     price,
		High:     price,
		Low:      price,
		Close:    price,
	}
	st.createdAt = now
}

// Poll fetches one snapshot per registered symbol and ticks it. A failed fetch skips
// that symbol for this round and leaves its bar untouched.
func (a *Aggregator) Poll(ctx context.Context, now time.Time) int {
	a.pollMu.Lock()
	defer a.pollMu.Unlock()

	finalized := 0
	for _, symbol := range a.Symbols() {
		snap, err := a.source.FetchSnapshot(ctx, symbol)
		if err != nil {
			a.logger.Warn(ctx, "Snapshot fetch failed, skipping tick", map[string]interface{}{
				"symbol": symbol,
				"error":  err.Error(),
			})
			if a.OnSnapshotError != nil {
				a.OnSnapshotError(symbol, err)
			}
			continue
		}
		if snap.Close <= 0 {
			a.logger.Warn(ctx, "Snapshot has no price, skipping tick", map[string]interface{}{"symbol": symbol})
			continue
		}
		// A symbol removed while its snapshot was in flight stays removed.
		st, err := a.state(symbol, false)
		if err != nil {
			continue
		}
		if _, done := a.apply(st, symbol, snap, now); done {
			finalized++
		}
	}
	return finalized
}

// Run polls every pollInterval until ctx is done. A poll that is in flight when ctx is
// cancelled completes its ticks before Run returns.
func (a *Aggregator) Run(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", pollInterval)
	}
	a.collecting.Store(true)
	defer a.collecting.Store(false)

	a.logger.Info(ctx, "Bar aggregation started", map[string]interface{}{
		"interval": a.label,
		"poll":     pollInterval.String(),
		"symbols":  strings.Join(a.Symbols(), ","),
	})

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info(context.Background(), "Bar aggregation stopped")
			return nil
		case <-ticker.C:
			a.Poll(ctx, a.nowFunc())
		}
	}
}

// Latest returns the most recent finalized bar for a symbol.
func (a *Aggregator) Latest(symbol string) (domain.Bar, bool) {
	st, err := a.state(symbol, false)
	if err != nil {
		return domain.Bar{}, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if len(st.history) == 0 {
		return domain.Bar{}, false
	}
	return st.history[len(st.history)-1], true
}

// Current returns a copy of the in-progress bar for a symbol.
func (a *Aggregator) Current(symbol string) (domain.Bar, bool) {
	st, err := a.state(symbol, false)
	if err != nil {
		return domain.Bar{}, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.current == nil {
		return domain.Bar{}, false
	}
	return *st.current, true
}

// History returns up to limit of the most recent finalized bars (all when limit <= 0).
func (a *Aggregator) History(symbol string, limit int) ([]domain.Bar, error) {
	st, err := a.state(symbol, false)
	if err != nil {
		return nil, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(st.history) {
		start = len(st.history) - limit
	}
	out := make([]domain.Bar, len(st.history)-start)
	copy(out, st.history[start:])
	return out, nil
}

// AllLatest returns the latest finalized bar of every symbol that has one.
func (a *Aggregator) AllLatest() map[string]domain.Bar {
	out := make(map[string]domain.Bar)
	for _, s := range a.Symbols() {
		if b, ok := a.Latest(s); ok {
			out[s] = b
		}
	}
	return out
}

// Status reports whether Run is active and how many bars each symbol holds.
func (a *Aggregator) Status() Status {
	symbols := a.Symbols()
	counts := make(map[string]int, len(symbols))
	for _, s := range symbols {
		st, err := a.state(s, false)
		if err != nil {
			continue
		}
		st.mu.RLock()
		counts[s] = len(st.history)
		st.mu.RUnlock()
	}
	return Status{
		Collecting: a.collecting.Load(),
		Interval:   a.cfg.Interval,
		Symbols:    symbols,
		BarCounts:  counts,
	}
}
