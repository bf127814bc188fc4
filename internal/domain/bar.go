package domain

import "time"

// Bar is an aggregated OHLCV price bar for one symbol.
type Bar struct {
	Symbol    string
	Interval  string    // e.g. "30s" for live bars, "1m" for bootstrap bars
	OpenTime  time.Time // Start of the bar
	CloseTime time.Time // Stamped when the bar is finalized
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Snapshot is an instantaneous price observation returned by the exchange gateway.
type Snapshot struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
