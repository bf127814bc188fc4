package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macdBot/internal/domain"
	"macdBot/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (nopLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func TestTranslateTicker(t *testing.T) {
	snap, err := translateTicker(&binance.PriceChangeStats{
		OpenPrice: "49000.5",
		HighPrice: "51000",
		LowPrice:  "48000",
		LastPrice: "50000.25",
		Volume:    "1234.5",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Snapshot{Open: 49000.5, High: 51000, Low: 48000, Close: 50000.25, Volume: 1234.5}, snap)

	_, err = translateTicker(&binance.PriceChangeStats{OpenPrice: "1", HighPrice: "1", LowPrice: "1", LastPrice: "n/a", Volume: "1"})
	assert.Error(t, err)
	_, err = translateTicker(nil)
	assert.Error(t, err)
}

func TestTranslateKline(t *testing.T) {
	bar, err := translateKline(&binance.Kline{
		OpenTime:  1700000000000,
		CloseTime: 1700000059999,
		Open:      "100",
		High:      "110",
		Low:       "95",
		Close:     "105",
		Volume:    "12.5",
	}, "BTCUSDT", "1m")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", bar.Symbol)
	assert.Equal(t, "1m", bar.Interval)
	assert.Equal(t, time.UnixMilli(1700000000000), bar.OpenTime)
	assert.Equal(t, 105.0, bar.Close)
	assert.Equal(t, 12.5, bar.Volume)

	_, err = translateKline(&binance.Kline{Open: "x"}, "BTCUSDT", "1m")
	assert.Error(t, err)
}

func TestTranslateOrderResponse(t *testing.T) {
	assert.Nil(t, translateOrderResponse(nil))
	resp := translateOrderResponse(&futures.CreateOrderResponse{
		OrderID:          42,
		Symbol:           "BTCUSDT",
		AvgPrice:         "50000.1",
		OrigQuantity:     "0.030",
		ExecutedQuantity: "0.030",
		Status:           futures.OrderStatusTypeFilled,
		Side:             futures.SideTypeBuy,
		UpdateTime:       1700000000000,
	})
	assert.Equal(t, int64(42), resp.OrderID)
	assert.Equal(t, 50000.1, resp.AvgPrice)
	assert.Equal(t, 0.03, resp.ExecutedQty)
	assert.Equal(t, "FILLED", resp.Status)
	assert.Equal(t, "BUY", resp.Side)
}

func TestMapAPIError(t *testing.T) {
	tests := []struct {
		code int64
		want error
	}{
		{code: -1003, want: ports.ErrRateLimited},
		{code: -1021, want: ports.ErrTimeout},
		{code: -2015, want: ports.ErrAuthenticationFailed},
		{code: -1121, want: ports.ErrInvalidSymbol},
		{code: -4003, want: ports.ErrInvalidRequest},
		{code: -2019, want: ports.ErrOrderRejected},
		{code: -1001, want: ports.ErrGatewayUnavailable},
		{code: -9999, want: ports.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, mapAPIError(&common.APIError{Code: tt.code}))
		})
	}
}

func TestClassifyTransportError(t *testing.T) {
	assert.Equal(t, ports.ErrTimeout, classifyTransportError(context.DeadlineExceeded))
	assert.Equal(t, ports.ErrContextCanceled, classifyTransportError(context.Canceled))
	assert.Equal(t, ports.ErrGatewayUnavailable, classifyTransportError(errors.New("dial tcp: connection refused")))
	assert.Equal(t, ports.ErrUnknown, classifyTransportError(errors.New("something odd")))
}

// newTestClient points both API families at one fake server.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		APIKey:         "key",
		SecretKey:      "secret",
		Logger:         nopLogger{},
		SpotBaseURL:    srv.URL,
		FuturesBaseURL: srv.URL,
	})
	require.NoError(t, err)
	return c
}

func TestGatewayAgainstFakeServer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v3/ticker/24hr":
			fmt.Fprint(w, `[{"symbol":"BTCUSDT","openPrice":"49000","highPrice":"51000","lowPrice":"48000","lastPrice":"50000","volume":"10"}]`)
		case "/api/v3/klines":
			fmt.Fprint(w, `[[1700000000000,"100","110","95","105","12",1700000059999,"0",1,"0","0","0"],
				[1700000060000,"105","106","101","102","3",1700000119999,"0",1,"0","0","0"]]`)
		case "/fapi/v2/ticker/price", "/fapi/v1/ticker/price":
			fmt.Fprint(w, `[{"symbol":"BTCUSDT","price":"50001.5","time":1700000000000}]`)
		case "/fapi/v1/order":
			fmt.Fprint(w, `{"orderId":7,"symbol":"BTCUSDT","status":"FILLED","avgPrice":"50001.5","origQty":"0.030","executedQty":"0.030","side":"BUY","updateTime":1700000000000}`)
		case "/fapi/v1/ping":
			fmt.Fprint(w, `{}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	snap, err := c.FetchSnapshot(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, snap.Close)

	bars, err := c.FetchHistoricalBars(ctx, "BTCUSDT", "1m", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 105.0, bars[0].Close)
	assert.True(t, bars[0].OpenTime.Before(bars[1].OpenTime))

	price, err := c.CurrentPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50001.5, price)

	resp, err := c.SubmitMarketOrder(ctx, "BTCUSDT", domain.Buy, "0.030")
	require.NoError(t, err)
	assert.Equal(t, int64(7), resp.OrderID)

	rtt, err := c.MeasureRoundTrip(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rtt, time.Duration(0))
}

func TestSubmitMarketOrder_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-2019,"msg":"Margin is insufficient."}`)
	})

	_, err := c.SubmitMarketOrder(context.Background(), "BTCUSDT", domain.Sell, "0.030")
	require.Error(t, err)

	var rejected *ports.OrderRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "BTCUSDT", rejected.Symbol)
	assert.Contains(t, rejected.Reason, "Margin is insufficient.")
	assert.ErrorIs(t, err, ports.ErrOrderRejected)
}

func TestCurrentPrice_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"code":-1003,"msg":"Too many requests."}`)
	})
	_, err := c.CurrentPrice(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ports.ErrRateLimited)
	assert.True(t, ports.IsTransient(err))
}

func TestPrepareSymbol_AlreadyIsolated(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/leverage":
			fmt.Fprint(w, `{"leverage":10,"maxNotionalValue":"1000000","symbol":"BTCUSDT"}`)
		case "/fapi/v1/marginType":
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-4046,"msg":"No need to change margin type."}`)
		default:
			http.NotFound(w, r)
		}
	})
	assert.NoError(t, c.PrepareSymbol(context.Background(), "BTCUSDT", 10))
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	var _ ports.Gateway = (*Client)(nil)
	var _ ports.SymbolPreparer = (*Client)(nil)
}
