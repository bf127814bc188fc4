package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMASeries_ConstantSeries(t *testing.T) {
	for _, period := range []int{1, 3, 5, 10} {
		data := make([]float64, 25)
		for i := range data {
			data[i] = 42.5
		}

		series := EMASeries(data, period)
		for i, p := range series {
			if i < period-1 {
				assert.False(t, p.Defined, "period %d index %d should be undefined", period, i)
				continue
			}
			require.True(t, p.Defined, "period %d index %d should be defined", period, i)
			assert.InDelta(t, 42.5, p.Value, 1e-12)
		}
	}
}

func TestEMASeries_UndefinedUntilWarm(t *testing.T) {
	data := []float64{1, 2, 3, 4}

	short := EMASeries(data, 5)
	for _, p := range short {
		assert.False(t, p.Defined)
	}

	data = append(data, 10)
	warm := EMASeries(data, 5)
	require.True(t, warm[4].Defined)
	assert.InDelta(t, 4.0, warm[4].Value, 1e-12) // (1+2+3+4+10)/5
}

func TestEMASeries_Recurrence(t *testing.T) {
	data := []float64{100, 102, 101, 103, 104}
	series := EMASeries(data, 3)

	k := 2.0 / 4.0
	seed := (100.0 + 102.0 + 101.0) / 3
	next := 103*k + seed*(1-k)
	last := 104*k + next*(1-k)

	assert.InDelta(t, seed, series[2].Value, 1e-12)
	assert.InDelta(t, next, series[3].Value, 1e-12)
	assert.InDelta(t, last, series[4].Value, 1e-12)
}

func TestEMA_MatchesSeries(t *testing.T) {
	data := make([]float64, 60)
	for i := range data {
		data[i] = 100 + 10*math.Sin(float64(i)/4)
	}

	for _, period := range []int{3, 5, 10} {
		ema, err := NewEMA(period)
		require.NoError(t, err)
		series := EMASeries(data, period)

		for i, v := range data {
			got, ok := ema.Update(v)
			assert.Equal(t, series[i].Defined, ok, "index %d", i)
			if ok {
				// Same operation order, so results are bit-identical.
				assert.Equal(t, series[i].Value, got, "index %d", i)
			}
		}
	}
}

func TestNewEMA_InvalidPeriod(t *testing.T) {
	_, err := NewEMA(0)
	assert.Error(t, err)
}

func TestEMA_Reset(t *testing.T) {
	ema, err := NewEMA(2)
	require.NoError(t, err)
	ema.Update(1)
	ema.Update(3)
	_, ok := ema.Value()
	require.True(t, ok)

	ema.Reset()
	_, ok = ema.Value()
	assert.False(t, ok)
	v, ok := ema.Update(5)
	assert.False(t, ok)
	assert.Zero(t, v)
}
