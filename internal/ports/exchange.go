package ports

import (
	"context"
	"time"

	"ichimokuBot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       int64     // Exchange's order ID
	Symbol        string    // Symbol for the order
	ClientOrderID string    // User-defined order ID
	ExecutedQty   float64   // Base quantity filled
	QuoteQty      float64   // Quote amount spent or received
	AvgPrice      float64   // QuoteQty / ExecutedQty when filled
	Status        string    // Order status (e.g., NEW, FILLED)
	Side          string    // BUY or SELL
	Timestamp     time.Time // Exchange transaction time
}

// SymbolFilters holds the trading rules needed to size an order.
type SymbolFilters struct {
	Symbol      string
	BaseAsset   string
	QuoteAsset  string
	StepSize    string // Lot size step for base quantities
	MinQty      string
	MinNotional float64
}

// ExchangeClient defines the spot exchange operations the bot needs.
type ExchangeClient interface {
	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetServerTime retrieves the current server time from the exchange.
	GetServerTime(ctx context.Context) (time.Time, error)

	// SetServerTime synchronizes the client's clock offset with the server.
	SetServerTime(ctx context.Context) error

	// GetKlines retrieves the most recent klines, oldest first.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error)

	// GetKlinesRange fetches every kline with OpenTime in [start, end], paginating as needed.
	GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error)

	// GetAccountBalance returns the free balance of an asset (e.g., "USDT").
	GetAccountBalance(ctx context.Context, asset string) (float64, error)

	// GetSymbolFilters returns lot size and notional rules for a symbol.
	GetSymbolFilters(ctx context.Context, symbol string) (*SymbolFilters, error)

	// PlaceMarketOrder places a market order for a base quantity.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*OrderResponse, error)

	// PlaceMarketOrderQuote places a market order sized in quote currency.
	PlaceMarketOrderQuote(ctx context.Context, symbol string, side domain.OrderSide, quoteQty string) (*OrderResponse, error)
}

// KlineSource is the read-only subset of ExchangeClient used by ingestion.
type KlineSource interface {
	GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error)
}
