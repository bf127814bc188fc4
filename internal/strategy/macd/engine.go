package macd

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"macdBot/internal/domain"
	"macdBot/internal/ports"
)

// Engine is a registry of per-symbol oscillators. The registry lock only guards the
// map; each oscillator serializes its own updates.
type Engine struct {
	cfg    Config
	logger ports.Logger

	mu          sync.RWMutex
	oscillators map[string]*Oscillator

	// OnSignal, when set, is called after every update outside any lock.
	OnSignal func(domain.Signal)
}

// New creates a new Engine.
func New(cfg Config, logger ports.Logger) (*Engine, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for signal engine")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:         cfg,
		logger:      logger,
		oscillators: make(map[string]*Oscillator),
	}, nil
}

// Config returns the oscillator periods.
func (e *Engine) Config() Config {
	return e.cfg
}

// Register creates the oscillator for symbol if it does not exist yet.
func (e *Engine) Register(symbol string) error {
	_, err := e.oscillator(symbol, true)
	return err
}

func (e *Engine) oscillator(symbol string, create bool) (*Oscillator, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ports.ErrInvalidSymbol)
	}

	e.mu.RLock()
	o, ok := e.oscillators[symbol]
	e.mu.RUnlock()
	if ok {
		return o, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: %s has no oscillator", ports.ErrInvalidSymbol, symbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if o, ok := e.oscillators[symbol]; ok {
		return o, nil
	}
	o, err := NewOscillator(symbol, e.cfg)
	if err != nil {
		return nil, err
	}
	e.oscillators[symbol] = o
	e.logger.Debug(context.Background(), "Oscillator registered", map[string]interface{}{"symbol": symbol})
	return o, nil
}

// Update feeds bar to its symbol's oscillator, creating it on first use.
func (e *Engine) Update(bar domain.Bar) (domain.Signal, error) {
	o, err := e.oscillator(bar.Symbol, true)
	if err != nil {
		return domain.Signal{}, err
	}
	sig := o.Update(bar)
	if sig.Kind != domain.SignalNone {
		e.logger.Info(context.Background(), "Crossover detected", map[string]interface{}{
			"symbol":    sig.Symbol,
			"kind":      sig.Kind.String(),
			"close":     sig.Close,
			"histogram": sig.Histogram,
		})
	}
	if e.OnSignal != nil {
		e.OnSignal(sig)
	}
	return sig, nil
}

// Warmup feeds bars in order and returns the last signal produced.
func (e *Engine) Warmup(bars []domain.Bar) (domain.Signal, error) {
	var last domain.Signal
	for _, b := range bars {
		sig, err := e.Update(b)
		if err != nil {
			return last, err
		}
		last = sig
	}
	return last, nil
}

// Latest returns the most recent signal for symbol.
func (e *Engine) Latest(symbol string) (domain.Signal, bool) {
	o, err := e.oscillator(symbol, false)
	if err != nil {
		return domain.Signal{}, false
	}
	return o.Latest()
}

// History returns up to limit recent signals for symbol (all when limit <= 0).
func (e *Engine) History(symbol string, limit int) ([]domain.Signal, error) {
	o, err := e.oscillator(symbol, false)
	if err != nil {
		return nil, err
	}
	return o.History(limit), nil
}

// Reset clears the state of symbol's oscillator.
func (e *Engine) Reset(symbol string) error {
	o, err := e.oscillator(symbol, false)
	if err != nil {
		return err
	}
	o.Reset()
	return nil
}

// Symbols returns the registered symbols in sorted order.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.oscillators))
	for s := range e.oscillators {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// LatestAll returns the latest signal of every symbol that has produced one.
func (e *Engine) LatestAll() map[string]domain.Signal {
	out := make(map[string]domain.Signal)
	for _, s := range e.Symbols() {
		if sig, ok := e.Latest(s); ok {
			out[s] = sig
		}
	}
	return out
}

// SymbolsWithLatest returns the symbols whose latest signal is of the given kind.
func (e *Engine) SymbolsWithLatest(kind domain.SignalKind) []string {
	var out []string
	for _, s := range e.Symbols() {
		if sig, ok := e.Latest(s); ok && sig.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
