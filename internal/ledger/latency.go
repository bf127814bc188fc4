package ledger

import (
	"context"
	"fmt"
	"time"

	"macdBot/internal/domain"
)

// ProbeLatency measures one gateway round trip and records it. A failed probe records
// an unknown latency; it never returns an error.
func (l *Ledger) ProbeLatency(ctx context.Context) domain.Latency {
	rtt, err := l.exchange.MeasureRoundTrip(ctx)

	l.mu.RLock()
	now := l.now()
	l.mu.RUnlock()

	obs := domain.Latency{Value: rtt, Known: err == nil, ObservedAt: now}
	if err != nil {
		obs.Value = 0
		l.logger.Warn(ctx, "Latency probe failed", map[string]interface{}{"error": err.Error()})
	}

	l.latMu.Lock()
	l.latency = obs
	l.latMu.Unlock()

	if l.OnLatency != nil {
		l.OnLatency(obs)
	}
	return obs
}

// Latency returns the last observed round trip.
func (l *Ledger) Latency() domain.Latency {
	l.latMu.RLock()
	defer l.latMu.RUnlock()
	return l.latency
}

// RunLatencyProbe probes every interval until ctx is done.
func (l *Ledger) RunLatencyProbe(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("latency probe interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	l.ProbeLatency(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.ProbeLatency(ctx)
		}
	}
}
