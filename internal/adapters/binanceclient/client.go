package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"macdBot/internal/domain"
	"macdBot/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	spotURLProduction    = "https://api.binance.com"
	spotURLTestnet       = "https://testnet.binance.vision"
	futuresURLProduction = "https://fapi.binance.com"
	futuresURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements ports.Gateway. Market data comes from the spot API; prices,
// orders and symbol preparation go through USDT-M futures.
type Client struct {
	spotClient    *binance.Client
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey           string
	SecretKey        string
	FuturesAPIKey    string // Defaults to APIKey
	FuturesSecretKey string // Defaults to SecretKey
	UseTestnet       bool
	Logger           ports.Logger

	// Overrides, mainly for tests.
	SpotBaseURL    string
	FuturesBaseURL string
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.FuturesAPIKey == "" {
		cfg.FuturesAPIKey = cfg.APIKey
	}
	if cfg.FuturesSecretKey == "" {
		cfg.FuturesSecretKey = cfg.SecretKey
	}
	if cfg.FuturesAPIKey == "" || cfg.FuturesSecretKey == "" {
		cfg.Logger.Warn(context.Background(), "Futures API key or secret is empty. Orders and symbol preparation will fail authentication.")
	}

	spot := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	fut := futures.NewClient(cfg.FuturesAPIKey, cfg.FuturesSecretKey)

	// Set BaseURL directly instead of using the package-level testnet switches
	if cfg.UseTestnet {
		spot.BaseURL = spotURLTestnet
		fut.BaseURL = futuresURLTestnet
	} else {
		spot.BaseURL = spotURLProduction
		fut.BaseURL = futuresURLProduction
	}
	if cfg.SpotBaseURL != "" {
		spot.BaseURL = cfg.SpotBaseURL
	}
	if cfg.FuturesBaseURL != "" {
		fut.BaseURL = cfg.FuturesBaseURL
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{
		"testnet":    cfg.UseTestnet,
		"spotURL":    spot.BaseURL,
		"futuresURL": fut.BaseURL,
	})

	return &Client{
		spotClient:    spot,
		futuresClient: fut,
		logger:        cfg.Logger,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mapAPIError(apiErr), err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	finalErr := fmt.Errorf("%s failed: %w: %w", operation, classifyTransportError(err), err)
	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func mapAPIError(apiErr *common.APIError) error {
	switch apiErr.Code {
	case -1003: // Too many requests
		return ports.ErrRateLimited
	case -1021: // Timestamp for this request is outside of the recvWindow
		return ports.ErrTimeout
	case -1022, -2014, -2015: // Bad signature, API-key format invalid, key/IP/permissions
		return ports.ErrAuthenticationFailed
	case -1121: // Invalid symbol
		return ports.ErrInvalidSymbol
	case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130,
		-4003, -4014, -4015: // Parameter/request format, qty/price/leverage range
		return ports.ErrInvalidRequest
	case -2010, -2019, -2022, -3005, -3041, -4047: // Rejected, margin/balance/position limits
		return ports.ErrOrderRejected
	case -1001, -1007: // Internal error, backend timeout
		return ports.ErrGatewayUnavailable
	default:
		return ports.ErrUnknown
	}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ports.ErrTimeout
	case errors.Is(err, context.Canceled):
		return ports.ErrContextCanceled
	case errors.As(err, &netErr),
		strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "EOF"):
		return ports.ErrGatewayUnavailable
	default:
		return ports.ErrUnknown
	}
}

// SyncServerTime aligns request timestamps with the futures server clock.
func (c *Client) SyncServerTime(ctx context.Context) error {
	op := "SyncServerTime"
	if _, err := c.futuresClient.NewSetServerTimeService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// FetchSnapshot returns the 24h spot ticker as an instantaneous observation.
func (c *Client) FetchSnapshot(ctx context.Context, symbol string) (domain.Snapshot, error) {
	op := "FetchSnapshot"
	stats, err := c.spotClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.Snapshot{}, c.handleError(ctx, err, op)
	}
	if len(stats) == 0 {
		return domain.Snapshot{}, c.handleError(ctx, fmt.Errorf("no ticker data returned for symbol %s", symbol), op)
	}
	snap, err := translateTicker(stats[0])
	if err != nil {
		return domain.Snapshot{}, c.handleError(ctx, err, op)
	}
	return snap, nil
}

// FetchHistoricalBars retrieves up to count spot klines, oldest first. The last one may
// still be in progress.
func (c *Client) FetchHistoricalBars(ctx context.Context, symbol, interval string, count int) ([]domain.Bar, error) {
	op := "FetchHistoricalBars"
	klines, err := c.spotClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(count).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	bars := make([]domain.Bar, 0, len(klines))
	for _, k := range klines {
		bar, err := translateKline(k, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// CurrentPrice retrieves the latest futures ticker price.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	op := "CurrentPrice"
	prices, err := c.futuresClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	for _, p := range prices {
		if p.Symbol != symbol && p.Symbol != "" {
			continue
		}
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return 0, c.handleError(ctx, fmt.Errorf("could not parse price '%s': %w", p.Price, err), op)
		}
		return price, nil
	}
	return 0, c.handleError(ctx, fmt.Errorf("no price data returned for symbol %s", symbol), op)
}

// SubmitMarketOrder places a futures market order. Every failure is an OrderRejectedError
// whose cause carries the mapped ports error.
func (c *Client) SubmitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	op := "SubmitMarketOrder"
	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		Do(ctx)
	if err != nil {
		return nil, &ports.OrderRejectedError{
			Symbol: symbol,
			Reason: rejectionReason(err),
			Err:    c.handleError(ctx, err, op),
		}
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": string(side), "quantity": quantity, "orderID": resp.OrderID, "avgPrice": resp.AvgPrice})
	return resp, nil
}

func rejectionReason(err error) string {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s (code %d)", apiErr.Message, apiErr.Code)
	}
	return err.Error()
}

// MeasureRoundTrip times a futures ping.
func (c *Client) MeasureRoundTrip(ctx context.Context) (time.Duration, error) {
	op := "MeasureRoundTrip"
	start := time.Now()
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	return time.Since(start), nil
}

// PrepareSymbol sets leverage and isolated margin for symbol. A margin type that is
// already isolated is not an error.
func (c *Client) PrepareSymbol(ctx context.Context, symbol string, leverage int) error {
	op := "PrepareSymbol"
	if leverage > 0 {
		if _, err := c.futuresClient.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx); err != nil {
			return c.handleError(ctx, err, op)
		}
	}

	err := c.futuresClient.NewChangeMarginTypeService().Symbol(symbol).MarginType(futures.MarginTypeIsolated).Do(ctx)
	var apiErr *common.APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.Code == -4046) { // -4046: no need to change margin type
		return c.handleError(ctx, err, op)
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage, "marginType": "ISOLATED"})
	return nil
}

// --- Translation Helpers ---

func translateTicker(t *binance.PriceChangeStats) (domain.Snapshot, error) {
	if t == nil {
		return domain.Snapshot{}, errors.New("received nil ticker")
	}
	var snap domain.Snapshot
	for _, f := range []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", t.OpenPrice, &snap.Open},
		{"high", t.HighPrice, &snap.High},
		{"low", t.LowPrice, &snap.Low},
		{"last", t.LastPrice, &snap.Close},
		{"volume", t.Volume, &snap.Volume},
	} {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("parsing %s price '%s': %w", f.name, f.raw, err)
		}
		*f.dst = v
	}
	return snap, nil
}

func translateKline(k *binance.Kline, symbol, interval string) (domain.Bar, error) {
	if k == nil {
		return domain.Bar{}, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing open price '%s': %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing volume '%s': %w", k.Volume, err)
	}

	return domain.Bar{
		Symbol:    symbol,   // Use passed symbol as it's not in binance.Kline
		Interval:  interval, // Use passed interval
		OpenTime:  time.UnixMilli(k.OpenTime),
		CloseTime: time.UnixMilli(k.CloseTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return &ports.OrderResponse{
		OrderID:      order.OrderID,
		Symbol:       order.Symbol,
		AvgPrice:     avgPrice,
		OrigQuantity: origQty,
		ExecutedQty:  execQty,
		Status:       string(order.Status),
		Side:         string(order.Side),
		Timestamp:    time.UnixMilli(order.UpdateTime),
	}
}
