// Package analytics derives portfolio statistics from ledger state.
package analytics

import (
	"time"

	"macdBot/internal/domain"
)

// Drawdown represents a peak-to-recovery period on the equity curve.
type Drawdown struct {
	StartTime  time.Time
	EndTime    time.Time // Zero while the drawdown is still open
	StartValue float64
	Trough     float64
	Depth      float64 // Fraction of StartValue
}

// Input is the ledger state statistics are derived from.
type Input struct {
	InitialCapital   float64
	CurrentCapital   float64
	AvailableBalance float64
	Trades           []domain.Trade // Every trade ever opened, in entry order
	EquityCurve      []domain.EquityPoint
}

// ComputeStats is a pure function of its input: calling it twice on the same state
// yields identical results.
func ComputeStats(in Input) domain.PortfolioStats {
	stats := domain.PortfolioStats{
		InitialCapital:   in.InitialCapital,
		CurrentCapital:   in.CurrentCapital,
		AvailableBalance: in.AvailableBalance,
		TotalTrades:      len(in.Trades),
		MaxDrawdown:      MaxDrawdown(in.EquityCurve),
	}

	var grossWin, grossLoss float64
	var consecutiveWins, consecutiveLosses int
	for i := range in.Trades {
		trade := &in.Trades[i]
		if trade.IsOpen() {
			stats.OpenTrades++
			continue
		}
		stats.TotalPNL += trade.PNL

		// Break-even trades count as neither and reset both streaks.
		switch {
		case trade.PNL > 0:
			stats.WinningTrades++
			grossWin += trade.PNL
			consecutiveWins++
			consecutiveLosses = 0
		case trade.PNL < 0:
			stats.LosingTrades++
			grossLoss += trade.PNL
			consecutiveLosses++
			consecutiveWins = 0
		default:
			consecutiveWins, consecutiveLosses = 0, 0
		}
		if consecutiveWins > stats.MaxConsecutiveWins {
			stats.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > stats.MaxConsecutiveLosses {
			stats.MaxConsecutiveLosses = consecutiveLosses
		}
	}

	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades)
	}
	if stats.WinningTrades > 0 {
		stats.AverageWin = grossWin / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AverageLoss = grossLoss / float64(stats.LosingTrades)
	}
	if grossLoss != 0 {
		stats.ProfitFactor = grossWin / -grossLoss
	}
	if in.InitialCapital > 0 {
		stats.PNLPct = stats.TotalPNL / in.InitialCapital * 100
		stats.ROI = (in.CurrentCapital - in.InitialCapital) / in.InitialCapital * 100
	}
	return stats
}

// MaxDrawdown rescans the whole curve keeping a running peak and returns the largest
// (peak - equity) / peak observed, as a fraction.
func MaxDrawdown(curve []domain.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	maxDD := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// Drawdowns lists every period in which equity sat below its running peak.
func Drawdowns(curve []domain.EquityPoint) []Drawdown {
	var out []Drawdown
	if len(curve) == 0 {
		return out
	}
	peak := curve[0]
	var current *Drawdown
	for _, p := range curve[1:] {
		if p.Equity >= peak.Equity {
			if current != nil {
				current.EndTime = p.Timestamp
				out = append(out, *current)
				current = nil
			}
			peak = p
			continue
		}
		depth := (peak.Equity - p.Equity) / peak.Equity
		if current == nil {
			current = &Drawdown{StartTime: peak.Timestamp, StartValue: peak.Equity, Trough: p.Equity, Depth: depth}
			continue
		}
		if p.Equity < current.Trough {
			current.Trough = p.Equity
			current.Depth = depth
		}
	}
	if current != nil {
		out = append(out, *current)
	}
	return out
}
