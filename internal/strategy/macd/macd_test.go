package macd

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macdBot/internal/domain"
	"macdBot/internal/ports"
	"macdBot/internal/strategy/indicators"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (nopLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func sineBars(symbol string, n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := 0; i < n; i++ {
		c := 100 + 10*math.Sin(float64(i)/4)
		open := t0.Add(time.Duration(i) * 30 * time.Second)
		bars[i] = domain.Bar{Symbol: symbol, Interval: "30s", OpenTime: open, CloseTime: open, Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "fast equals slow", cfg: Config{FastPeriod: 10, SlowPeriod: 10, SignalPeriod: 3}, wantErr: true},
		{name: "fast above slow", cfg: Config{FastPeriod: 12, SlowPeriod: 10, SignalPeriod: 3}, wantErr: true},
		{name: "zero signal", cfg: Config{FastPeriod: 5, SlowPeriod: 10, SignalPeriod: 0}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Equal(t, 12, DefaultConfig().WarmupBars())
}

func TestClassifyCross(t *testing.T) {
	hist := []float64{-1, -0.5, 0.5, 1, -1}
	want := []domain.SignalKind{
		domain.SignalNone,
		domain.SignalNone,
		domain.SignalBullishCross,
		domain.SignalNone,
		domain.SignalBearishCross,
	}

	var prev float64
	hasPrev := false
	for i, h := range hist {
		assert.Equal(t, want[i], classifyCross(prev, hasPrev, h), "index %d", i)
		prev, hasPrev = h, true
	}

	assert.Equal(t, domain.SignalBullishCross, classifyCross(-0.1, true, 0), "zero counts as rising")
	assert.Equal(t, domain.SignalNone, classifyCross(0, true, 0.2))
}

func TestOscillator_NeutralUntilWarm(t *testing.T) {
	o, err := NewOscillator("BTCUSDT", DefaultConfig())
	require.NoError(t, err)

	bars := sineBars("BTCUSDT", 12)
	for i, b := range bars[:11] {
		sig := o.Update(b)
		assert.Equal(t, domain.SignalNone, sig.Kind, "bar %d", i)
		assert.Zero(t, sig.MACD)
		assert.Zero(t, sig.Signal)
		assert.Zero(t, sig.Histogram)
		assert.Equal(t, b.Close, sig.Close)
	}
	sig := o.Update(bars[11])
	assert.NotZero(t, sig.MACD, "chain defined on bar slow+signal-1")
	assert.Equal(t, 12, o.Len(), "neutral signals are kept in history")
}

func TestOscillator_MatchesBatchComputation(t *testing.T) {
	cfg := DefaultConfig()
	bars := sineBars("ETHUSDT", 80)
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	fast := indicators.EMASeries(closes, cfg.FastPeriod)
	slow := indicators.EMASeries(closes, cfg.SlowPeriod)
	var line []float64
	for i := range closes {
		if fast[i].Defined && slow[i].Defined {
			line = append(line, fast[i].Value-slow[i].Value)
		}
	}
	trigger := indicators.EMASeries(line, cfg.SignalPeriod)

	o, err := NewOscillator("ETHUSDT", cfg)
	require.NoError(t, err)

	offset := cfg.SlowPeriod - 1
	var prev float64
	hasPrev := false
	crosses := 0
	for i, b := range bars {
		sig := o.Update(b)
		j := i - offset
		if j < 0 || !trigger[j].Defined {
			assert.Equal(t, domain.SignalNone, sig.Kind)
			continue
		}
		hist := line[j] - trigger[j].Value
		assert.Equal(t, round(line[j]), sig.MACD, "bar %d", i)
		assert.Equal(t, round(trigger[j].Value), sig.Signal, "bar %d", i)
		assert.Equal(t, round(hist), sig.Histogram, "bar %d", i)
		assert.Equal(t, classifyCross(prev, hasPrev, hist), sig.Kind, "bar %d", i)
		if sig.Kind != domain.SignalNone {
			crosses++
		}
		prev, hasPrev = hist, true
	}
	assert.Greater(t, crosses, 0, "a sine wave must cross")
}

func TestOscillator_CrossoverSequence(t *testing.T) {
	// Histogram signs over the last five bars: -, -, +, +, -.
	closes := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 99, 95, 95, 100, 98, 95}
	want := []domain.SignalKind{
		domain.SignalNone,
		domain.SignalNone,
		domain.SignalBullishCross,
		domain.SignalNone,
		domain.SignalBearishCross,
	}
	wantPositive := []bool{false, false, true, true, false}

	o, err := NewOscillator("BTCUSDT", DefaultConfig())
	require.NoError(t, err)

	var tail []domain.Signal
	for i, c := range closes {
		open := t0.Add(time.Duration(i) * 30 * time.Second)
		sig := o.Update(domain.Bar{Symbol: "BTCUSDT", OpenTime: open, Open: c, High: c, Low: c, Close: c})
		if i >= len(closes)-len(want) {
			tail = append(tail, sig)
		} else {
			assert.Equal(t, domain.SignalNone, sig.Kind, "bar %d", i)
		}
	}

	require.Len(t, tail, len(want))
	for i, sig := range tail {
		assert.Equal(t, wantPositive[i], sig.Histogram >= 0, "histogram sign at %d: %v", i, sig.Histogram)
		assert.Equal(t, want[i], sig.Kind, "kind at %d", i)
	}
}

func TestOscillator_Deterministic(t *testing.T) {
	bars := sineBars("BNBUSDT", 60)
	a, _ := NewOscillator("BNBUSDT", DefaultConfig())
	b, _ := NewOscillator("BNBUSDT", DefaultConfig())
	for _, bar := range bars {
		a.Update(bar)
		b.Update(bar)
	}
	assert.Equal(t, a.History(0), b.History(0))

	a.Reset()
	assert.Equal(t, 0, a.Len())
	for _, bar := range bars {
		a.Update(bar)
	}
	assert.Equal(t, b.History(0), a.History(0), "reset restores a fresh oscillator")
}

func TestEngine_New(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	assert.Error(t, err)

	_, err = New(Config{FastPeriod: 10, SlowPeriod: 5, SignalPeriod: 3}, nopLogger{})
	assert.Error(t, err)

	e, err := New(DefaultConfig(), nopLogger{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), e.Config())
}

func TestEngine_UpdateAndQueries(t *testing.T) {
	e, err := New(DefaultConfig(), nopLogger{})
	require.NoError(t, err)

	var seen []domain.Signal
	e.OnSignal = func(s domain.Signal) { seen = append(seen, s) }

	require.NoError(t, e.Register("ETHUSDT"))
	_, ok := e.Latest("ETHUSDT")
	assert.False(t, ok, "registered but no bars yet")

	last, err := e.Warmup(sineBars("BTCUSDT", 40))
	require.NoError(t, err)
	assert.Len(t, seen, 40)

	latest, ok := e.Latest("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, last, latest)

	hist, err := e.History("BTCUSDT", 5)
	require.NoError(t, err)
	require.Len(t, hist, 5)
	assert.Equal(t, last, hist[4])

	all, err := e.History("BTCUSDT", 0)
	require.NoError(t, err)
	assert.Len(t, all, 40)

	_, err = e.History("XRPUSDT", 5)
	assert.ErrorIs(t, err, ports.ErrInvalidSymbol)
	assert.ErrorIs(t, e.Reset("XRPUSDT"), ports.ErrInvalidSymbol)

	_, err = e.Update(domain.Bar{Close: 1})
	assert.ErrorIs(t, err, ports.ErrInvalidSymbol)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, e.Symbols())
	latestAll := e.LatestAll()
	assert.Len(t, latestAll, 1)
	assert.Contains(t, latestAll, "BTCUSDT")

	require.NoError(t, e.Reset("BTCUSDT"))
	_, ok = e.Latest("BTCUSDT")
	assert.False(t, ok)
}

func TestEngine_SymbolsWithLatest(t *testing.T) {
	e, err := New(DefaultConfig(), nopLogger{})
	require.NoError(t, err)

	bars := sineBars("BTCUSDT", 80)
	var crossAt int
	var kind domain.SignalKind
	for i, b := range bars {
		sig, err := e.Update(b)
		require.NoError(t, err)
		if sig.Kind != domain.SignalNone {
			crossAt, kind = i, sig.Kind
			break
		}
	}
	require.NotZero(t, crossAt, "expected a crossover within 80 bars")

	assert.Equal(t, []string{"BTCUSDT"}, e.SymbolsWithLatest(kind))
	assert.Empty(t, e.SymbolsWithLatest(domain.SignalNone))
}

func TestEngine_ConcurrentSymbols(t *testing.T) {
	e, err := New(DefaultConfig(), nopLogger{})
	require.NoError(t, err)

	symbols := []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "LTCUSDT"}
	var wg sync.WaitGroup
	for _, s := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			for _, b := range sineBars(symbol, 50) {
				_, _ = e.Update(b)
				e.LatestAll()
			}
		}(s)
	}
	wg.Wait()

	ref, _ := NewOscillator("BTCUSDT", DefaultConfig())
	for _, b := range sineBars("BTCUSDT", 50) {
		ref.Update(b)
	}
	for _, s := range symbols {
		hist, err := e.History(s, 0)
		require.NoError(t, err)
		assert.Len(t, hist, 50)
	}
	got, _ := e.History("BTCUSDT", 0)
	assert.Equal(t, ref.History(0), got, "other symbols do not affect a symbol's state")
}
