package ports

import (
	"context"
	"time"

	"ichimokuBot/internal/domain"
)

// KlineRepository stores base-interval candles keyed by open time.
type KlineRepository interface {
	// UpsertKlines inserts or replaces candles by OpenTime.
	UpsertKlines(ctx context.Context, klines []*domain.Kline) error
	// LatestKlineTime returns the newest stored OpenTime, or ErrNotFound when empty.
	LatestKlineTime(ctx context.Context) (time.Time, error)
	// FindKlinesSince returns candles with OpenTime >= since, oldest first.
	FindKlinesSince(ctx context.Context, since time.Time) ([]*domain.Kline, error)
	// FindKlinesRange returns candles with OpenTime in [from, to], oldest first.
	FindKlinesRange(ctx context.Context, from, to time.Time) ([]*domain.Kline, error)
}

// SignalRepository stores signal-interval rows with their indicator columns.
type SignalRepository interface {
	// UpsertSignalRows inserts or replaces rows by OpenTime. Absent indicator
	// values are stored as NULL.
	UpsertSignalRows(ctx context.Context, rows []domain.SignalRow) error
	// LatestSignalTime returns the newest stored OpenTime, or ErrNotFound when empty.
	LatestSignalTime(ctx context.Context) (time.Time, error)
	// FindLatestSignal returns the newest stored row, or ErrNotFound when empty.
	FindLatestSignal(ctx context.Context) (*domain.SignalRow, error)
	// FindSignalsRange returns rows with OpenTime in [from, to], oldest first.
	FindSignalsRange(ctx context.Context, from, to time.Time) ([]domain.SignalRow, error)
}

// MarketDataStore is a store that holds both tables.
type MarketDataStore interface {
	KlineRepository
	SignalRepository
	Close() error
}

// BacktestRepository persists simulation runs and their trade ledgers.
type BacktestRepository interface {
	// SaveBacktest stores the run and its trades and returns the run ID.
	SaveBacktest(ctx context.Context, run *domain.BacktestRun, result *domain.BacktestResult) (int64, error)
	// FindBacktestTrades returns the trades of a run in ledger order.
	FindBacktestTrades(ctx context.Context, runID int64) ([]*domain.Trade, error)
}
