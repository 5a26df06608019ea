package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"golang.org/x/time/rate"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	// maxKlinesPerRequest is the page size used when paginating kline ranges.
	maxKlinesPerRequest = 1000
)

// Client implements the ports.ExchangeClient interface using the go-binance spot API.
type Client struct {
	spotClient *binance.Client
	limiter    *rate.Limiter
	logger     ports.Logger
}

var _ ports.ExchangeClient = (*Client)(nil)

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey            string
	SecretKey         string
	UseTestnet        bool
	BaseURL           string // Overrides the production/testnet URL when set
	RequestsPerSecond float64
	Burst             int
	HTTPTimeout       time.Duration
	Logger            ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance spot client configured", map[string]interface{}{
		"baseURL": client.BaseURL,
		"testnet": cfg.UseTestnet,
	})

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 20
	}

	return &Client{
		spotClient: client,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     cfg.Logger,
	}, nil
}

// wait blocks until the limiter admits one more request.
func (c *Client) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	return nil
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

		mappedErr := mapAPIErrorCode(apiErr.Code)
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// mapAPIErrorCode maps spot API error codes to ports errors.
func mapAPIErrorCode(code int64) error {
	switch code {
	case -1003, -1015: // Too many requests / too many orders
		return ports.ErrRateLimited
	case -1001, -1007: // Disconnected / backend timeout
		return ports.ErrExchangeUnavailable
	case -1021: // Timestamp for this request is outside of the recvWindow
		return ports.ErrTimeout
	case -1022: // Signature for this request is not valid
		return ports.ErrAuthenticationFailed
	case -1013, -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1112, -1114, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130:
		return ports.ErrInvalidRequest
	case -2010: // New order rejected
		return ports.ErrOrderPlacementFailed
	case -2014, -2015: // API-key format invalid / invalid key, IP or permissions
		return ports.ErrInvalidAPIKeys
	default:
		return ports.ErrUnknown
	}
}

// SetServerTime synchronizes the client's time offset with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	offset, err := c.spotClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"offsetMs": offset})
	return nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	if err := c.wait(ctx, op); err != nil {
		return time.Time{}, err
	}
	serverTimeMs, err := c.spotClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op)
	}
	return time.UnixMilli(serverTimeMs).UTC(), nil
}

// GetAccountBalance retrieves the free balance for a specific asset (e.g., "USDT").
func (c *Client) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	op := "GetAccountBalance"
	if err := c.wait(ctx, op); err != nil {
		return 0, err
	}
	account, err := c.spotClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Balances {
		if bal.Asset == asset {
			free, err := strconv.ParseFloat(bal.Free, 64)
			if err != nil {
				parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.Free, asset, err)
				return 0, c.handleError(ctx, parseErr, op)
			}
			return free, nil
		}
	}

	// Spot accounts omit assets that were never held.
	c.logger.Debug(ctx, op+": asset not present in account, treating as zero", map[string]interface{}{"asset": asset})
	return 0, nil
}

// GetSymbolFilters returns the lot size and notional rules of a symbol.
func (c *Client) GetSymbolFilters(ctx context.Context, symbol string) (*ports.SymbolFilters, error) {
	op := "GetSymbolFilters"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	info, err := c.spotClient.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		filters := &ports.SymbolFilters{
			Symbol:     s.Symbol,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
		}
		if lot := s.LotSizeFilter(); lot != nil {
			filters.StepSize = lot.StepSize
			filters.MinQty = lot.MinQuantity
		}
		filters.MinNotional = minNotional(s.Filters)
		return filters, nil
	}
	return nil, c.handleError(ctx, fmt.Errorf("symbol %s not listed: %w", symbol, ports.ErrNotFound), op)
}

// minNotional reads the NOTIONAL filter, falling back to the older MIN_NOTIONAL.
func minNotional(filters []map[string]interface{}) float64 {
	for _, want := range []string{"NOTIONAL", "MIN_NOTIONAL"} {
		for _, f := range filters {
			if f["filterType"] != want {
				continue
			}
			if s, ok := f["minNotional"].(string); ok {
				v, err := strconv.ParseFloat(s, 64)
				if err == nil {
					return v
				}
			}
		}
	}
	return 0
}

// PlaceMarketOrder places a market order for a base quantity.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	order, err := c.spotClient.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeMarket).
		Quantity(quantity).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": quantity, "orderID": resp.OrderID, "avgPrice": resp.AvgPrice})
	return resp, nil
}

// PlaceMarketOrderQuote places a market order that spends (or receives) quoteQty.
func (c *Client) PlaceMarketOrderQuote(ctx context.Context, symbol string, side domain.OrderSide, quoteQty string) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrderQuote"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	order, err := c.spotClient.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(quoteQty).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quoteQty": quoteQty, "orderID": resp.OrderID, "executedQty": resp.ExecutedQty})
	return resp, nil
}

// GetKlines retrieves the most recent klines for the given symbol, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	binanceKlines, err := c.spotClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		domainKlines = append(domainKlines, dk)
	}
	return domainKlines, nil
}

// GetKlinesRange fetches all klines for a symbol/interval with open time in [start, end].
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error) {
	op := "GetKlinesRange"
	fetch := func(ctx context.Context, fromMs, toMs int64, limit int) ([]*domain.Kline, error) {
		if err := c.wait(ctx, op); err != nil {
			return nil, err
		}
		page, err := c.spotClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(fromMs).
			EndTime(toMs).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		out := make([]*domain.Kline, 0, len(page))
		for _, bk := range page {
			dk, err := translateBinanceKline(bk, symbol, interval)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w", err), op)
			}
			out = append(out, dk)
		}
		return out, nil
	}

	klines, err := paginate(ctx, start, end, maxKlinesPerRequest, fetch)
	if err != nil {
		return nil, err
	}
	c.logger.Debug(ctx, op+" complete", map[string]interface{}{"symbol": symbol, "interval": interval, "count": len(klines)})
	return klines, nil
}

// pageFetcher returns up to limit klines with open time in [fromMs, toMs].
type pageFetcher func(ctx context.Context, fromMs, toMs int64, limit int) ([]*domain.Kline, error)

// paginate walks [start, end] page by page. Each page starts one millisecond
// after the previous page's last open time. It stops on an empty or short page.
func paginate(ctx context.Context, start, end time.Time, limit int, fetch pageFetcher) ([]*domain.Kline, error) {
	var all []*domain.Kline
	fromMs, toMs := start.UnixMilli(), end.UnixMilli()

	for fromMs <= toMs {
		page, err := fetch(ctx, fromMs, toMs, limit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)

		next := page[len(page)-1].OpenTime.UnixMilli() + 1
		if next <= fromMs {
			return nil, fmt.Errorf("kline pagination did not advance at %d: %w", fromMs, ports.ErrUnknown)
		}
		fromMs = next
		if len(page) < limit {
			break
		}
	}
	return all, nil
}

// --- Translation Helpers ---

func translateOrderResponse(order *binance.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	quoteQty, _ := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
	var avg float64
	if execQty > 0 {
		avg = quoteQty / execQty
	}

	return &ports.OrderResponse{
		OrderID:       order.OrderID,
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		ExecutedQty:   execQty,
		QuoteQty:      quoteQty,
		AvgPrice:      avg,
		Status:        string(order.Status),
		Side:          string(order.Side),
		Timestamp:     time.UnixMilli(order.TransactTime).UTC(),
	}
}

func translateBinanceKline(bk *binance.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime).UTC(),
		CloseTime: time.UnixMilli(bk.CloseTime).UTC(),
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsFinal:   true, // Callers drop the still-open last candle using CloseTime
	}, nil
}
