package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/metrics"
	"ichimokuBot/internal/ports"
	"ichimokuBot/internal/risk"
)

// quotePrecision is the number of decimals sent in quoteOrderQty.
const quotePrecision = 8

// TraderConfig holds the signal trader's settings.
type TraderConfig struct {
	Symbol       string
	PollInterval time.Duration
	DryRun       bool // Log orders instead of placing them
}

// TradingService polls the newest signal row and turns each new buy or sell
// flag into one market order.
type TradingService struct {
	cfg      TraderConfig
	logger   ports.Logger
	exchange ports.ExchangeClient
	signals  ports.SignalRepository
	guard    *risk.Manager
	metrics  *metrics.Metrics

	// State fields
	mu          sync.Mutex // Protects access to state fields below
	filters     *ports.SymbolFilters
	lastHandled time.Time

	after func(time.Duration) <-chan time.Time
}

// NewTradingService creates a new signal trader instance.
func NewTradingService(
	cfg TraderConfig,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	signals ports.SignalRepository,
	guard *risk.Manager,
	m *metrics.Metrics,
) (*TradingService, error) {
	if logger == nil || exchange == nil || signals == nil || guard == nil || m == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol must be set", ports.ErrConfigurationError)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive", ports.ErrConfigurationError)
	}

	return &TradingService{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		signals:  signals,
		guard:    guard,
		metrics:  m,
		after:    time.After,
	}, nil
}

// Start synchronizes with the exchange and polls for signals until ctx is
// cancelled.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...", map[string]interface{}{
		"symbol": s.cfg.Symbol,
		"dryRun": s.cfg.DryRun,
		"poll":   s.cfg.PollInterval.String(),
	})

	// 1. Set server time (important for signed API calls)
	if err := s.exchange.SetServerTime(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to synchronize server time")
		return fmt.Errorf("failed to set server time: %w", err)
	}

	// 2. Load lot size and notional rules
	filters, err := s.exchange.GetSymbolFilters(ctx, s.cfg.Symbol)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load symbol filters", map[string]interface{}{"symbol": s.cfg.Symbol})
		return fmt.Errorf("failed to load symbol filters: %w", err)
	}
	s.mu.Lock()
	s.filters = filters
	s.mu.Unlock()
	s.guard.SetMinNotional(filters.MinNotional)
	s.logger.Info(ctx, "Symbol filters loaded", map[string]interface{}{
		"base":        filters.BaseAsset,
		"quote":       filters.QuoteAsset,
		"stepSize":    filters.StepSize,
		"minNotional": filters.MinNotional,
	})

	// 3. Poll loop
	for {
		if err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error(ctx, err, "Signal poll failed")
		}
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Trading Service stopped.")
			return nil
		case <-s.after(s.cfg.PollInterval):
		}
	}
}

// Poll reads the newest signal row and acts on it once. A row is marked as
// handled even when its order fails, so a failed order is never retried on
// the same bar.
func (s *TradingService) Poll(ctx context.Context) error {
	row, err := s.signals.FindLatestSignal(ctx)
	if errors.Is(err, ports.ErrNotFound) {
		s.logger.Warn(ctx, "No signal rows stored yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading latest signal: %w", err)
	}

	s.mu.Lock()
	seen := !s.lastHandled.IsZero() && row.OpenTime.Equal(s.lastHandled)
	if !seen {
		s.lastHandled = row.OpenTime
	}
	s.mu.Unlock()
	if seen {
		return nil
	}

	s.logger.Info(ctx, "Checking signal", map[string]interface{}{
		"openTime": row.OpenTime.Format(time.RFC3339),
		"buy":      row.BuySignal,
		"sell":     row.SellSignal,
	})

	switch {
	case row.BuySignal:
		return s.buy(ctx)
	case row.SellSignal:
		return s.sell(ctx, row.Close)
	default:
		s.logger.Debug(ctx, "No trade signal on latest bar")
		return nil
	}
}

// LastHandled returns the open time of the last signal row acted on.
func (s *TradingService) LastHandled() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHandled
}

func (s *TradingService) buy(ctx context.Context) error {
	op := "buy"
	filters := s.symbolFilters()

	balance, err := s.exchange.GetAccountBalance(ctx, filters.QuoteAsset)
	if err != nil {
		return fmt.Errorf("%s: reading %s balance: %w", op, filters.QuoteAsset, err)
	}
	spend, err := s.guard.CanBuy(balance)
	if err != nil {
		s.logger.Warn(ctx, op+": Skipping buy", map[string]interface{}{"reason": err.Error(), "balance": balance})
		return nil
	}

	quoteQty := decimal.NewFromFloat(spend).Truncate(quotePrecision)
	return s.place(ctx, domain.Buy, quoteQty.String(), func() (*ports.OrderResponse, error) {
		return s.exchange.PlaceMarketOrderQuote(ctx, s.cfg.Symbol, domain.Buy, quoteQty.String())
	})
}

func (s *TradingService) sell(ctx context.Context, price float64) error {
	op := "sell"
	filters := s.symbolFilters()

	balance, err := s.exchange.GetAccountBalance(ctx, filters.BaseAsset)
	if err != nil {
		return fmt.Errorf("%s: reading %s balance: %w", op, filters.BaseAsset, err)
	}
	qty, err := RoundToStep(balance, filters.StepSize)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.guard.CanSell(qty.InexactFloat64(), price); err != nil {
		s.logger.Warn(ctx, op+": Skipping sell", map[string]interface{}{"reason": err.Error(), "balance": balance})
		return nil
	}

	return s.place(ctx, domain.Sell, qty.String(), func() (*ports.OrderResponse, error) {
		return s.exchange.PlaceMarketOrder(ctx, s.cfg.Symbol, domain.Sell, qty.String())
	})
}

// place sends the order unless running dry and records it with the guard.
func (s *TradingService) place(ctx context.Context, side domain.OrderSide, amount string, send func() (*ports.OrderResponse, error)) error {
	fields := map[string]interface{}{"symbol": s.cfg.Symbol, "side": side, "amount": amount}

	if s.cfg.DryRun {
		s.guard.RecordOrder()
		s.metrics.Orders.WithLabelValues(string(side), "dry_run").Inc()
		s.logger.Info(ctx, "Dry run: order not sent", fields)
		return nil
	}

	order, err := send()
	if err != nil {
		s.logger.Error(ctx, err, "Failed to place market order", fields)
		return fmt.Errorf("market %s failed: %w", side, err)
	}
	s.guard.RecordOrder()
	s.metrics.Orders.WithLabelValues(string(side), "live").Inc()
	s.logger.Info(ctx, "Market order placed", map[string]interface{}{
		"orderID":     order.OrderID,
		"side":        order.Side,
		"status":      order.Status,
		"executedQty": order.ExecutedQty,
		"quoteQty":    order.QuoteQty,
		"avgPrice":    order.AvgPrice,
	})
	return nil
}

func (s *TradingService) symbolFilters() ports.SymbolFilters {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filters == nil {
		return ports.SymbolFilters{Symbol: s.cfg.Symbol}
	}
	return *s.filters
}

// RoundToStep rounds amount down to a multiple of step. An empty or zero step
// truncates to eight decimals.
func RoundToStep(amount float64, step string) (decimal.Decimal, error) {
	value := decimal.NewFromFloat(amount)
	if step == "" {
		return value.Truncate(8), nil
	}
	stepDec, err := decimal.NewFromString(step)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad step size %q", ports.ErrInvalidRequest, step)
	}
	if !stepDec.IsPositive() {
		return value.Truncate(8), nil
	}
	return value.Div(stepDec).Floor().Mul(stepDec), nil
}
