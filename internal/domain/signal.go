package domain

import "time"

// SignalKind classifies a histogram transition.
type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalBullishCross
	SignalBearishCross
)

// String returns the string representation of the SignalKind.
func (k SignalKind) String() string {
	switch k {
	case SignalNone:
		return "NONE"
	case SignalBullishCross:
		return "BULLISH_CROSS"
	case SignalBearishCross:
		return "BEARISH_CROSS"
	default:
		return "UNKNOWN"
	}
}

// Signal is the oscillator reading produced for a single bar.
// Numeric fields are rounded for external consumption.
type Signal struct {
	Symbol    string
	Timestamp time.Time
	Close     float64
	MACD      float64
	Signal    float64
	Histogram float64
	Kind      SignalKind
}
