// Package macd computes a moving-average-convergence-divergence oscillator
// per symbol and classifies histogram sign transitions into crossover signals.
package macd

import (
	"fmt"
	"math"
	"sync"

	"macdBot/internal/domain"
	"macdBot/internal/strategy/indicators"
)

// reportPrecision is the number of fractional digits kept in reported signal values.
const reportPrecision = 8

// Config holds the oscillator periods.
type Config struct {
	FastPeriod   int // e.g., 5
	SlowPeriod   int // e.g., 10
	SignalPeriod int // e.g., 3
}

// DefaultConfig returns the short periods tuned for sub-minute bars.
func DefaultConfig() Config {
	return Config{FastPeriod: 5, SlowPeriod: 10, SignalPeriod: 3}
}

// Validate checks that all periods are positive and fast < slow.
func (c Config) Validate() error {
	if c.FastPeriod <= 0 || c.SlowPeriod <= 0 || c.SignalPeriod <= 0 {
		return fmt.Errorf("oscillator periods must be positive (fast=%d slow=%d signal=%d)", c.FastPeriod, c.SlowPeriod, c.SignalPeriod)
	}
	if c.FastPeriod >= c.SlowPeriod {
		return fmt.Errorf("fast period (%d) must be less than slow period (%d)", c.FastPeriod, c.SlowPeriod)
	}
	return nil
}

// WarmupBars is the number of bars needed before the histogram is defined.
func (c Config) WarmupBars() int {
	return c.SlowPeriod + c.SignalPeriod - 1
}

// Oscillator holds the incremental state for one symbol. It is safe for concurrent use.
type Oscillator struct {
	mu     sync.RWMutex
	symbol string
	cfg    Config

	fast   *indicators.EMA
	slow   *indicators.EMA
	signal *indicators.EMA // applied to the oscillator line, not to price

	prevHistogram    float64
	hasPrevHistogram bool
	history          []domain.Signal
}

// NewOscillator creates an oscillator for symbol.
func NewOscillator(symbol string, cfg Config) (*Oscillator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Oscillator{symbol: symbol, cfg: cfg}
	o.resetLocked()
	return o, nil
}

func (o *Oscillator) resetLocked() {
	// Periods were validated, so constructors cannot fail.
	o.fast, _ = indicators.NewEMA(o.cfg.FastPeriod)
	o.slow, _ = indicators.NewEMA(o.cfg.SlowPeriod)
	o.signal, _ = indicators.NewEMA(o.cfg.SignalPeriod)
	o.prevHistogram = 0
	o.hasPrevHistogram = false
	o.history = nil
}

// Update consumes one bar and returns the signal for it. Bars arriving before the
// full chain is defined produce a NONE signal with zeroed numeric fields.
func (o *Oscillator) Update(bar domain.Bar) domain.Signal {
	o.mu.Lock()
	defer o.mu.Unlock()

	sig := domain.Signal{
		Symbol:    o.symbol,
		Timestamp: bar.OpenTime,
		Close:     bar.Close,
		Kind:      domain.SignalNone,
	}

	fast, fastOK := o.fast.Update(bar.Close)
	slow, slowOK := o.slow.Update(bar.Close)
	if fastOK && slowOK {
		line := fast - slow
		if trigger, ok := o.signal.Update(line); ok {
			histogram := line - trigger
			sig.Kind = classifyCross(o.prevHistogram, o.hasPrevHistogram, histogram)
			sig.MACD = round(line)
			sig.Signal = round(trigger)
			sig.Histogram = round(histogram)

			o.prevHistogram = histogram
			o.hasPrevHistogram = true
		}
	}

	o.history = append(o.history, sig)
	return sig
}

// classifyCross compares the current histogram against the previous defined one.
// Zero counts as the rising side.
func classifyCross(prev float64, hasPrev bool, current float64) domain.SignalKind {
	if !hasPrev {
		return domain.SignalNone
	}
	switch {
	case prev < 0 && current >= 0:
		return domain.SignalBullishCross
	case prev >= 0 && current < 0:
		return domain.SignalBearishCross
	default:
		return domain.SignalNone
	}
}

func round(v float64) float64 {
	scale := math.Pow10(reportPrecision)
	return math.Round(v*scale) / scale
}

// Latest returns the most recent signal.
func (o *Oscillator) Latest() (domain.Signal, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.history) == 0 {
		return domain.Signal{}, false
	}
	return o.history[len(o.history)-1], true
}

// History returns a copy of the last limit signals (all of them when limit <= 0).
func (o *Oscillator) History(limit int) []domain.Signal {
	o.mu.RLock()
	defer o.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(o.history) {
		start = len(o.history) - limit
	}
	out := make([]domain.Signal, len(o.history)-start)
	copy(out, o.history[start:])
	return out
}

// Len returns the number of signals produced so far.
func (o *Oscillator) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.history)
}

// Reset discards all oscillator state and signal history.
func (o *Oscillator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
}
