// Package risk sizes new positions: capital allocation, minimum notional and
// lot-size truncation.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"macdBot/internal/ports"
)

// DefaultQuantityPrecision applies to symbols missing from the precision table.
const DefaultQuantityPrecision = 3

// DefaultPrecisions is the lot-size table for the commonly traded USDT pairs.
func DefaultPrecisions() map[string]int {
	return map[string]int{
		"BTCUSDT": 3,
		"ETHUSDT": 3,
		"BNBUSDT": 2,
		"LTCUSDT": 3,
	}
}

// RiskConfig holds configuration for position sizing.
type RiskConfig struct {
	AllocationFraction float64        // Share of the available balance committed per entry, e.g. 0.5
	MinNotional        float64        // Venue minimum order value in quote currency
	QtyPrecision       map[string]int // Fractional digits allowed per symbol
	DefaultPrecision   int
	MaxOpenPositions   int // Advisory cap checked by the decision driver; 0 disables it
}

// Validate checks the sizing parameters.
func (c RiskConfig) Validate() error {
	if c.AllocationFraction <= 0 || c.AllocationFraction > 1 {
		return fmt.Errorf("allocation fraction must be in (0, 1], got %f", c.AllocationFraction)
	}
	if c.MinNotional < 0 {
		return fmt.Errorf("minimum notional cannot be negative, got %f", c.MinNotional)
	}
	if c.DefaultPrecision < 0 || c.DefaultPrecision > 8 {
		return fmt.Errorf("default precision must be between 0 and 8, got %d", c.DefaultPrecision)
	}
	for symbol, p := range c.QtyPrecision {
		if p < 0 || p > 8 {
			return fmt.Errorf("precision for %s must be between 0 and 8, got %d", symbol, p)
		}
	}
	if c.MaxOpenPositions < 0 {
		return fmt.Errorf("max open positions cannot be negative, got %d", c.MaxOpenPositions)
	}
	return nil
}

// RiskManager computes entry allocations and quantities. It holds no mutable state.
type RiskManager struct {
	config RiskConfig
}

// NewRiskManager creates a new risk manager instance.
func NewRiskManager(config RiskConfig) (*RiskManager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	precisions := make(map[string]int, len(config.QtyPrecision))
	for s, p := range config.QtyPrecision {
		precisions[s] = p
	}
	config.QtyPrecision = precisions
	return &RiskManager{config: config}, nil
}

// Config returns the sizing parameters.
func (r *RiskManager) Config() RiskConfig {
	return r.config
}

// Allocation returns the notional to commit given the available balance.
func (r *RiskManager) Allocation(available float64) (float64, error) {
	allocation := available * r.config.AllocationFraction
	if allocation < r.config.MinNotional || allocation <= 0 {
		return 0, fmt.Errorf("%w: allocation %.2f below minimum notional %.2f", ports.ErrInsufficientFunds, allocation, r.config.MinNotional)
	}
	return allocation, nil
}

// Precision returns the lot-size precision for symbol.
func (r *RiskManager) Precision(symbol string) int {
	if p, ok := r.config.QtyPrecision[symbol]; ok {
		return p
	}
	return r.config.DefaultPrecision
}

// Quantity converts an allocation into an order quantity, truncated (never rounded up)
// to the symbol's precision.
func (r *RiskManager) Quantity(symbol string, allocation, price float64) (decimal.Decimal, error) {
	if price <= 0 {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %f for %s", ports.ErrPriceUnavailable, price, symbol)
	}
	qty := decimal.NewFromFloat(allocation).
		Div(decimal.NewFromFloat(price)).
		Truncate(int32(r.Precision(symbol)))
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: allocation %.2f buys no %s at %f", ports.ErrInsufficientFunds, allocation, symbol, price)
	}
	return qty, nil
}

// FormatQuantity renders qty with exactly the symbol's number of fractional digits.
func (r *RiskManager) FormatQuantity(symbol string, qty decimal.Decimal) string {
	return qty.StringFixed(int32(r.Precision(symbol)))
}

// CanOpen reports whether another position fits under the advisory open-position cap.
func (r *RiskManager) CanOpen(openPositions int) error {
	if r.config.MaxOpenPositions > 0 && openPositions >= r.config.MaxOpenPositions {
		return fmt.Errorf("number of open positions %d reaches maximum allowed %d", openPositions, r.config.MaxOpenPositions)
	}
	return nil
}
