package ports

import (
	"context"

	"macdBot/internal/domain"
)

// ReplaySink receives bars and signals exported by the offline replay tool.
// Live trading state is never persisted.
type ReplaySink interface {
	// SaveBars stores bars; re-saving a bar with the same symbol, interval and open time replaces it.
	SaveBars(ctx context.Context, bars []domain.Bar) error
	// SaveSignals appends signals.
	SaveSignals(ctx context.Context, signals []domain.Signal) error
}

// BarSource loads previously exported bars, oldest first.
type BarSource interface {
	LoadBars(ctx context.Context, symbol, interval string, limit int) ([]domain.Bar, error)
}
