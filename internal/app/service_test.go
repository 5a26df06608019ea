package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/metrics"
	"ichimokuBot/internal/ports"
	"ichimokuBot/internal/risk"
)

var btcFilters = &ports.SymbolFilters{
	Symbol:      "BTCUSDT",
	BaseAsset:   "BTC",
	QuoteAsset:  "USDT",
	StepSize:    "0.00001000",
	MinQty:      "0.00001000",
	MinNotional: 5,
}

func signalRow(openTime time.Time, buy, sell bool) domain.SignalRow {
	return domain.SignalRow{
		IchimokuRow: domain.IchimokuRow{Kline: domain.Kline{OpenTime: openTime, Close: 50000}},
		BuySignal:   buy,
		SellSignal:  sell,
	}
}

type traderFixture struct {
	svc      *TradingService
	exchange *mockExchange
	store    *memStore
	guard    *risk.Manager
	metrics  *metrics.Metrics
	logger   *mockLogger
}

func newTraderFixture(t *testing.T, cfg TraderConfig, riskCfg risk.Config) *traderFixture {
	t.Helper()
	f := &traderFixture{
		exchange: &mockExchange{
			balances: map[string]float64{"USDT": 1000.123456789, "BTC": 0.123456789},
			filters:  btcFilters,
		},
		store:   newMemStore(),
		metrics: metrics.New("test"),
		logger:  &mockLogger{},
	}
	var err error
	f.guard, err = risk.NewManager(riskCfg)
	require.NoError(t, err)

	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Minute
	}
	f.svc, err = NewTradingService(cfg, f.logger, f.exchange, f.store, f.guard, f.metrics)
	require.NoError(t, err)
	f.svc.filters = btcFilters
	return f
}

func (f *traderFixture) addSignal(t *testing.T, row domain.SignalRow) {
	t.Helper()
	require.NoError(t, f.store.UpsertSignalRows(context.Background(), []domain.SignalRow{row}))
}

func TestNewTradingService_Validation(t *testing.T) {
	guard, err := risk.NewManager(risk.Config{})
	require.NoError(t, err)
	m := metrics.New("test")

	_, err = NewTradingService(TraderConfig{Symbol: "BTCUSDT", PollInterval: time.Second}, nil, &mockExchange{}, newMemStore(), guard, m)
	assert.Error(t, err)

	_, err = NewTradingService(TraderConfig{PollInterval: time.Second}, &mockLogger{}, &mockExchange{}, newMemStore(), guard, m)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewTradingService(TraderConfig{Symbol: "BTCUSDT"}, &mockLogger{}, &mockExchange{}, newMemStore(), guard, m)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestTradingService_PollBuy(t *testing.T) {
	f := newTraderFixture(t, TraderConfig{}, risk.Config{})
	ctx := context.Background()
	bar := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	f.addSignal(t, signalRow(bar, true, false))

	require.NoError(t, f.svc.Poll(ctx))
	orders := f.exchange.placed()
	require.Len(t, orders, 1)
	assert.Equal(t, placedOrder{side: domain.Buy, amount: "1000.12345678", quote: true}, orders[0])
	assert.Equal(t, bar, f.svc.LastHandled())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Orders.WithLabelValues("BUY", "live")))

	// The same bar is never acted on twice.
	require.NoError(t, f.svc.Poll(ctx))
	assert.Len(t, f.exchange.placed(), 1)
}

func TestTradingService_BuyTakesPrecedence(t *testing.T) {
	f := newTraderFixture(t, TraderConfig{}, risk.Config{})
	f.addSignal(t, signalRow(time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), true, true))

	require.NoError(t, f.svc.Poll(context.Background()))
	orders := f.exchange.placed()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.Buy, orders[0].side)
}

func TestTradingService_PollSellRoundsToStep(t *testing.T) {
	f := newTraderFixture(t, TraderConfig{}, risk.Config{})
	f.addSignal(t, signalRow(time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), false, true))

	require.NoError(t, f.svc.Poll(context.Background()))
	orders := f.exchange.placed()
	require.Len(t, orders, 1)
	assert.Equal(t, placedOrder{side: domain.Sell, amount: "0.12345"}, orders[0])
}

func TestTradingService_NoSignal(t *testing.T) {
	f := newTraderFixture(t, TraderConfig{}, risk.Config{})
	f.addSignal(t, signalRow(time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), false, false))

	require.NoError(t, f.svc.Poll(context.Background()))
	assert.Empty(t, f.exchange.placed())
}

func TestTradingService_NoRowsYet(t *testing.T) {
	f := newTraderFixture(t, TraderConfig{}, risk.Config{})
	require.NoError(t, f.svc.Poll(context.Background()))
	assert.True(t, f.svc.LastHandled().IsZero())
	assert.Len(t, f.logger.warnMsgs, 1)
}

func TestTradingService_DryRun(t *testing.T) {
	f := newTraderFixture(t, TraderConfig{DryRun: true}, risk.Config{})
	f.addSignal(t, signalRow(time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), true, false))

	require.NoError(t, f.svc.Poll(context.Background()))
	assert.Empty(t, f.exchange.placed())
	assert.Equal(t, 1, f.guard.OrdersToday())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Orders.WithLabelValues("BUY", "dry_run")))
}

func TestTradingService_RiskLimitSkipsOrder(t *testing.T) {
	f := newTraderFixture(t, TraderConfig{}, risk.Config{MaxOrdersPerDay: 1})
	ctx := context.Background()
	now := time.Now().UTC()

	f.addSignal(t, signalRow(now.Add(-10*time.Minute), true, false))
	require.NoError(t, f.svc.Poll(ctx))

	f.addSignal(t, signalRow(now.Add(-5*time.Minute), false, true))
	require.NoError(t, f.svc.Poll(ctx))

	assert.Len(t, f.exchange.placed(), 1)
	assert.Len(t, f.logger.warnMsgs, 1)
}

func TestTradingService_ReserveBlocksBuy(t *testing.T) {
	f := newTraderFixture(t, TraderConfig{}, risk.Config{MinAvailableBalance: 2000})
	f.addSignal(t, signalRow(time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), true, false))

	require.NoError(t, f.svc.Poll(context.Background()))
	assert.Empty(t, f.exchange.placed())
}

func TestTradingService_OrderFailureMarksBarHandled(t *testing.T) {
	f := newTraderFixture(t, TraderConfig{}, risk.Config{})
	f.exchange.orderErr = ports.ErrInsufficientFunds
	bar := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	f.addSignal(t, signalRow(bar, true, false))

	err := f.svc.Poll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrInsufficientFunds))
	assert.Equal(t, bar, f.svc.LastHandled())
	assert.Equal(t, 0, f.guard.OrdersToday())
}

func TestTradingService_StartFailsWithoutServerTime(t *testing.T) {
	f := newTraderFixture(t, TraderConfig{}, risk.Config{})
	f.exchange.serverTimeErr = ports.ErrConnectionFailed

	err := f.svc.Start(context.Background())
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}

func TestTradingService_StartPollsUntilCancelled(t *testing.T) {
	f := newTraderFixture(t, TraderConfig{}, risk.Config{MinNotional: 1})
	f.svc.filters = nil
	f.addSignal(t, signalRow(time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), true, false))

	ctx, cancel := context.WithCancel(context.Background())
	f.svc.after = func(time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	}

	require.NoError(t, f.svc.Start(ctx))
	assert.Len(t, f.exchange.placed(), 1)
	assert.Equal(t, btcFilters, f.svc.filters)
}

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		step   string
		want   string
	}{
		{"lot step", 0.123456789, "0.00001000", "0.12345"},
		{"whole units", 12.7, "1.00000000", "12"},
		{"below one step", 0.000009, "0.00001", "0"},
		{"empty step truncates", 0.123456789123, "", "0.12345678"},
		{"zero step truncates", 1.5, "0", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RoundToStep(tt.amount, tt.step)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	_, err := RoundToStep(1, "abc")
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}
