package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macdBot/internal/domain"
)

func TestObservers(t *testing.T) {
	m := New()

	m.ObserveBar(domain.Bar{Symbol: "BTCUSDT"})
	m.ObserveBar(domain.Bar{Symbol: "BTCUSDT"})
	m.ObserveSnapshotError("ETHUSDT", errors.New("timeout"))
	m.ObserveSignal(domain.Signal{Symbol: "BTCUSDT", Kind: domain.SignalBullishCross})
	m.ObserveOrder("BTCUSDT", "open", nil)
	m.ObserveOrder("BTCUSDT", "open", errors.New("rejected"))
	m.ObserveTradeClosed(domain.Trade{Symbol: "BTCUSDT", PNL: 30})
	m.ObservePortfolio(3030, 3030, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BarsFinalized.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotFailures.WithLabelValues("ETHUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Signals.WithLabelValues("BTCUSDT", "BULLISH_CROSS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Orders.WithLabelValues("BTCUSDT", "open", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Orders.WithLabelValues("BTCUSDT", "open", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RealizedPNL.WithLabelValues("BTCUSDT", "win")))
	assert.Equal(t, 3030.0, testutil.ToFloat64(m.Equity))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OpenPositions))
}

func TestObserveLatency(t *testing.T) {
	m := New()
	m.ObserveLatency(domain.Latency{Value: 250 * time.Millisecond, Known: true})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LatencyKnown))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.GatewayLatency))

	m.ObserveLatency(domain.Latency{})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LatencyKnown))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.GatewayLatency), "last known value is kept")
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveBar(domain.Bar{Symbol: "BTCUSDT"})
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BarsFinalized.WithLabelValues("BTCUSDT")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveBar(domain.Bar{Symbol: "BTCUSDT"})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `bars_finalized_total{symbol="BTCUSDT"} 1`))
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []error
}

func (l *recordingLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (l *recordingLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (l *recordingLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (l *recordingLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, err)
}
func (l *recordingLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func TestServe(t *testing.T) {
	log := &recordingLogger{}
	srv := New().Serve("127.0.0.1:0", log)
	assert.Equal(t, "127.0.0.1:0", srv.Addr)
	require.NoError(t, srv.Close())

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, log.count(), "closing the server is not an error")
}

func TestServe_ReportsListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	log := &recordingLogger{}
	srv := New().Serve(busy.Addr().String(), log)
	defer srv.Close()

	require.Eventually(t, func() bool { return log.count() == 1 }, time.Second, 10*time.Millisecond)
}
