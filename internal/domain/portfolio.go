package domain

import "time"

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
	Available float64
}

// PortfolioStats are derived on demand from ledger state.
type PortfolioStats struct {
	InitialCapital   float64
	CurrentCapital   float64
	AvailableBalance float64
	TotalTrades      int
	OpenTrades       int
	WinningTrades    int
	LosingTrades     int
	TotalPNL         float64
	PNLPct           float64 // TotalPNL relative to InitialCapital, in percent
	WinRate          float64 // Fraction of TotalTrades that closed with a profit
	ROI              float64 // In percent
	MaxDrawdown      float64 // Fraction, e.g. 0.0429 for 4.29%

	AverageWin           float64
	AverageLoss          float64
	ProfitFactor         float64
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
}

// Latency is the last observed gateway round-trip. Known is false when the last probe failed
// or no probe has completed yet.
type Latency struct {
	Value      time.Duration
	Known      bool
	ObservedAt time.Time
}
