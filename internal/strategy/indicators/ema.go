package indicators

import "fmt"

// Point is one value of a derived series. Defined is false until the
// indicator has seen enough input; Value is meaningless in that case.
type Point struct {
	Value   float64
	Defined bool
}

// SMA returns the simple average of data. It returns 0 for an empty slice.
func SMA(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range data {
		total += v
	}
	return total / float64(len(data))
}

// EMASeries computes the exponential moving average of data for the given period.
// The first defined value (at index period-1) is the simple average of the first
// period elements; each later value is current*k + previous*(1-k) with k = 2/(period+1).
// Points before index period-1 are undefined.
func EMASeries(data []float64, period int) []Point {
	out := make([]Point, len(data))
	if period <= 0 || len(data) < period {
		return out
	}

	k := 2.0 / float64(period+1)
	ema := SMA(data[:period])
	out[period-1] = Point{Value: ema, Defined: true}

	for i := period; i < len(data); i++ {
		ema = data[i]*k + ema*(1-k)
		out[i] = Point{Value: ema, Defined: true}
	}
	return out
}

// EMA is the incremental form of EMASeries. Feeding values one at a time yields
// exactly the same sequence of results as EMASeries over the accumulated input.
type EMA struct {
	period  int
	k       float64
	seed    []float64
	value   float64
	defined bool
}

// NewEMA creates an incremental EMA for the given period.
func NewEMA(period int) (*EMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("EMA period must be positive, got %d", period)
	}
	return &EMA{
		period: period,
		k:      2.0 / float64(period+1),
		seed:   make([]float64, 0, period),
	}, nil
}

// Period returns the configured period.
func (e *EMA) Period() int {
	return e.period
}

// Update feeds the next value and returns the current EMA, or false while warming up.
func (e *EMA) Update(v float64) (float64, bool) {
	if e.defined {
		e.value = v*e.k + e.value*(1-e.k)
		return e.value, true
	}

	e.seed = append(e.seed, v)
	if len(e.seed) < e.period {
		return 0, false
	}
	e.value = SMA(e.seed)
	e.defined = true
	e.seed = nil
	return e.value, true
}

// Value returns the current EMA, or false while warming up.
func (e *EMA) Value() (float64, bool) {
	return e.value, e.defined
}

// Reset discards all accumulated state.
func (e *EMA) Reset() {
	e.seed = make([]float64, 0, e.period)
	e.value = 0
	e.defined = false
}
