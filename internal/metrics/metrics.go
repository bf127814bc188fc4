// Package metrics exposes Prometheus collectors for the trading loop.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"macdBot/internal/domain"
	"macdBot/internal/ports"
)

// Metrics holds the collectors on a private registry so several instances can coexist.
type Metrics struct {
	registry *prometheus.Registry

	BarsFinalized    *prometheus.CounterVec
	SnapshotFailures *prometheus.CounterVec
	Signals          *prometheus.CounterVec
	Orders           *prometheus.CounterVec
	RealizedPNL      *prometheus.CounterVec
	Equity           prometheus.Gauge
	Available        prometheus.Gauge
	OpenPositions    prometheus.Gauge
	GatewayLatency   prometheus.Gauge
	LatencyKnown     prometheus.Gauge
}

// New creates the collectors and registers them.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BarsFinalized: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "bars_finalized_total", Help: "Bars finalized by the aggregator"},
			[]string{"symbol"},
		),
		SnapshotFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "snapshot_failures_total", Help: "Snapshot fetches that failed and skipped a tick"},
			[]string{"symbol"},
		),
		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "signals_total", Help: "Signals produced by the oscillator"},
			[]string{"symbol", "kind"},
		),
		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "orders_total", Help: "Ledger open/close attempts by outcome"},
			[]string{"symbol", "action", "outcome"},
		),
		RealizedPNL: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "closed_trades_total", Help: "Closed trades by result"},
			[]string{"symbol", "result"},
		),
		Equity:         prometheus.NewGauge(prometheus.GaugeOpts{Name: "portfolio_equity", Help: "Total capital"}),
		Available:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "portfolio_available", Help: "Available balance"}),
		OpenPositions:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "open_positions", Help: "Currently open positions"}),
		GatewayLatency: prometheus.NewGauge(prometheus.GaugeOpts{Name: "gateway_latency_seconds", Help: "Last observed gateway round trip"}),
		LatencyKnown:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "gateway_latency_known", Help: "1 when the last latency probe succeeded"}),
	}
	m.registry.MustRegister(
		m.BarsFinalized, m.SnapshotFailures, m.Signals, m.Orders, m.RealizedPNL,
		m.Equity, m.Available, m.OpenPositions, m.GatewayLatency, m.LatencyKnown,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts a /metrics endpoint on addr in the background. A listen failure is
// reported through logger; shutting the server down is not.
func (m *Metrics) Serve(addr string, logger ports.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), err, "Metrics server stopped", map[string]interface{}{"addr": addr})
		}
	}()
	return srv
}

// ObserveBar counts a finalized bar.
func (m *Metrics) ObserveBar(b domain.Bar) {
	m.BarsFinalized.WithLabelValues(b.Symbol).Inc()
}

// ObserveSnapshotError counts a failed snapshot fetch.
func (m *Metrics) ObserveSnapshotError(symbol string, _ error) {
	m.SnapshotFailures.WithLabelValues(symbol).Inc()
}

// ObserveSignal counts a signal by kind.
func (m *Metrics) ObserveSignal(s domain.Signal) {
	m.Signals.WithLabelValues(s.Symbol, s.Kind.String()).Inc()
}

// ObserveOrder counts one ledger attempt. action is "open" or "close".
func (m *Metrics) ObserveOrder(symbol, action string, err error) {
	outcome := "accepted"
	if err != nil {
		outcome = "failed"
	}
	m.Orders.WithLabelValues(symbol, action, outcome).Inc()
}

// ObserveTradeClosed counts a closed trade as a win, a loss or breakeven.
func (m *Metrics) ObserveTradeClosed(t domain.Trade) {
	result := "breakeven"
	switch {
	case t.PNL > 0:
		result = "win"
	case t.PNL < 0:
		result = "loss"
	}
	m.RealizedPNL.WithLabelValues(t.Symbol, result).Inc()
}

// ObservePortfolio sets the balance gauges.
func (m *Metrics) ObservePortfolio(available, total float64, open int) {
	m.Available.Set(available)
	m.Equity.Set(total)
	m.OpenPositions.Set(float64(open))
}

// ObserveLatency records the last gateway round-trip and whether it is known.
func (m *Metrics) ObserveLatency(l domain.Latency) {
	if !l.Known {
		m.LatencyKnown.Set(0)
		return
	}
	m.LatencyKnown.Set(1)
	m.GatewayLatency.Set(l.Value.Seconds())
}
