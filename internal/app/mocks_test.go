package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

// memStore is an in-memory MarketDataStore keyed by open time.
type memStore struct {
	mu      sync.Mutex
	klines  map[int64]*domain.Kline
	signals map[int64]domain.SignalRow
	err     error
}

func newMemStore() *memStore {
	return &memStore{klines: map[int64]*domain.Kline{}, signals: map[int64]domain.SignalRow{}}
}

func (s *memStore) UpsertKlines(ctx context.Context, klines []*domain.Kline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, k := range klines {
		c := *k
		s.klines[k.OpenTime.UnixMilli()] = &c
	}
	return nil
}

func (s *memStore) LatestKlineTime(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.klines) == 0 {
		return time.Time{}, ports.ErrNotFound
	}
	var max int64
	for ms := range s.klines {
		if ms > max {
			max = ms
		}
	}
	return time.UnixMilli(max).UTC(), nil
}

func (s *memStore) FindKlinesSince(ctx context.Context, since time.Time) ([]*domain.Kline, error) {
	return s.FindKlinesRange(ctx, since, time.Unix(1<<40, 0))
}

func (s *memStore) FindKlinesRange(ctx context.Context, from, to time.Time) ([]*domain.Kline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Kline
	for _, k := range s.klines {
		if !k.OpenTime.Before(from) && !k.OpenTime.After(to) {
			c := *k
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out, nil
}

func (s *memStore) UpsertSignalRows(ctx context.Context, rows []domain.SignalRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, r := range rows {
		s.signals[r.OpenTime.UnixMilli()] = r
	}
	return nil
}

func (s *memStore) LatestSignalTime(ctx context.Context) (time.Time, error) {
	row, err := s.FindLatestSignal(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return row.OpenTime, nil
}

func (s *memStore) FindLatestSignal(ctx context.Context) (*domain.SignalRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.signals) == 0 {
		return nil, ports.ErrNotFound
	}
	var max int64
	for ms := range s.signals {
		if ms > max {
			max = ms
		}
	}
	row := s.signals[max]
	return &row, nil
}

func (s *memStore) FindSignalsRange(ctx context.Context, from, to time.Time) ([]domain.SignalRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SignalRow
	for _, r := range s.signals {
		if !r.OpenTime.Before(from) && !r.OpenTime.After(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out, nil
}

func (s *memStore) Close() error { return nil }

// mockSource serves klines from a fixed series.
type mockSource struct {
	mu     sync.Mutex
	series []*domain.Kline
	err    error
	calls  int
}

func (m *mockSource) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Kline
	for _, k := range m.series {
		if !k.OpenTime.Before(start) && !k.OpenTime.After(end) {
			c := *k
			out = append(out, &c)
		}
	}
	return out, nil
}

type placedOrder struct {
	side   domain.OrderSide
	amount string
	quote  bool
}

// mockExchange records orders and serves fixed balances.
type mockExchange struct {
	mu            sync.Mutex
	balances      map[string]float64
	filters       *ports.SymbolFilters
	serverTimeErr error
	orderErr      error
	orders        []placedOrder
}

func (m *mockExchange) Ping(ctx context.Context) error { return nil }

func (m *mockExchange) GetServerTime(ctx context.Context) (time.Time, error) {
	return time.Now(), m.serverTimeErr
}

func (m *mockExchange) SetServerTime(ctx context.Context) error { return m.serverTimeErr }

func (m *mockExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error) {
	return nil, nil
}

func (m *mockExchange) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error) {
	return nil, nil
}

func (m *mockExchange) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[asset], nil
}

func (m *mockExchange) GetSymbolFilters(ctx context.Context, symbol string) (*ports.SymbolFilters, error) {
	return m.filters, nil
}

func (m *mockExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	return m.record(placedOrder{side: side, amount: quantity})
}

func (m *mockExchange) PlaceMarketOrderQuote(ctx context.Context, symbol string, side domain.OrderSide, quoteQty string) (*ports.OrderResponse, error) {
	return m.record(placedOrder{side: side, amount: quoteQty, quote: true})
}

func (m *mockExchange) record(o placedOrder) (*ports.OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	m.orders = append(m.orders, o)
	return &ports.OrderResponse{OrderID: int64(len(m.orders)), Side: string(o.side), Status: "FILLED"}, nil
}

func (m *mockExchange) placed() []placedOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]placedOrder(nil), m.orders...)
}
