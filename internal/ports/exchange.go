package ports

import (
	"context"
	"time"

	"macdBot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID      int64     // Exchange's order ID
	Symbol       string    // Symbol for the order
	AvgPrice     float64   // Average filled price (may be 0 if not yet reported)
	OrigQuantity float64   // Original quantity requested
	ExecutedQty  float64   // Quantity filled
	Status       string    // Order status (e.g., NEW, FILLED)
	Side         string    // Order side (BUY, SELL)
	Timestamp    time.Time // Time the order response was generated
}

// Gateway is the exchange collaborator consumed by the core.
// Order submission is not idempotency-keyed; callers must not blindly retry a failed submission.
type Gateway interface {
	// FetchSnapshot returns an instantaneous price observation for the symbol.
	FetchSnapshot(ctx context.Context, symbol string) (domain.Snapshot, error)

	// FetchHistoricalBars returns up to count closed bars, oldest first.
	FetchHistoricalBars(ctx context.Context, symbol, interval string, count int) ([]domain.Bar, error)

	// CurrentPrice returns the price used for entries and exits.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)

	// SubmitMarketOrder places a market order. A non-nil error means the order was not accepted.
	SubmitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*OrderResponse, error)

	// MeasureRoundTrip performs a lightweight request and reports its round-trip time.
	MeasureRoundTrip(ctx context.Context) (time.Duration, error)
}

// SymbolPreparer is implemented by gateways that need per-symbol setup (leverage, margin mode)
// before orders can be placed.
type SymbolPreparer interface {
	PrepareSymbol(ctx context.Context, symbol string, leverage int) error
}
