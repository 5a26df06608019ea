// Package postgres stores candles and signal rows in PostgreSQL through gorm.
// The table names match the hosted tables the realtime job writes to.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/ports"
)

const upsertBatchSize = 500

// KlineModel is a row of the base-interval table.
type KlineModel struct {
	OpenTime time.Time `gorm:"primaryKey;autoIncrement:false"`
	Open     float64   `gorm:"not null"`
	High     float64   `gorm:"not null"`
	Low      float64   `gorm:"not null"`
	Close    float64   `gorm:"not null"`
	Volume   float64   `gorm:"not null;default:0"`
}

func (KlineModel) TableName() string {
	return "ohlcv_1m"
}

// SignalModel is a row of the signal-interval table. Nil indicator pointers are NULL.
type SignalModel struct {
	OpenTime    time.Time `gorm:"primaryKey;autoIncrement:false"`
	Open        float64   `gorm:"not null"`
	High        float64   `gorm:"not null"`
	Low         float64   `gorm:"not null"`
	Close       float64   `gorm:"not null"`
	Volume      float64   `gorm:"not null;default:0"`
	TenkanSen   *float64
	KijunSen    *float64
	SenkouSpanA *float64
	SenkouSpanB *float64
	ChikouSpan  *float64
	BuySignal   bool `gorm:"not null;default:false"`
	SellSignal  bool `gorm:"not null;default:false"`
}

func (SignalModel) TableName() string {
	return "OHLCV_5m_ichi"
}

// Repository implements ports.MarketDataStore on top of gorm.
type Repository struct {
	db     *gorm.DB
	symbol string
	logger ports.Logger
}

var _ ports.MarketDataStore = (*Repository)(nil)

// Config holds configuration for the PostgreSQL repository.
type Config struct {
	DSN    string
	Symbol string
	Logger ports.Logger
}

// NewRepository connects to PostgreSQL and creates the tables if needed.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for PostgreSQL repository")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: POSTGRES_DSN is empty", ports.ErrConfigurationError)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		err = fmt.Errorf("failed to open PostgreSQL: %w: %w", ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "PostgreSQL repository initialization failed")
		return nil, err
	}
	return NewRepositoryWithDB(db, cfg.Symbol, cfg.Logger)
}

// NewRepositoryWithDB wraps an open gorm handle. Any dialect gorm supports works.
func NewRepositoryWithDB(db *gorm.DB, symbol string, logger ports.Logger) (*Repository, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for PostgreSQL repository")
	}
	if err := db.AutoMigrate(&KlineModel{}, &SignalModel{}); err != nil {
		err = fmt.Errorf("failed to migrate tables: %w: %w", ports.ErrDBConnection, err)
		logger.Error(context.Background(), err, "PostgreSQL repository initialization failed")
		return nil, err
	}
	logger.Info(context.Background(), "Market data tables initialized/verified", map[string]interface{}{
		"dialect": db.Dialector.Name(),
	})
	return &Repository{db: db, symbol: symbol, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	r.logger.Info(context.Background(), "Closing market data database connection")
	return sqlDB.Close()
}

// UpsertKlines inserts or replaces candles by open time.
func (r *Repository) UpsertKlines(ctx context.Context, klines []*domain.Kline) error {
	if len(klines) == 0 {
		return nil
	}
	ms := make([]KlineModel, 0, len(klines))
	for _, k := range klines {
		ms = append(ms, KlineModel{
			OpenTime: k.OpenTime.UTC(),
			Open:     k.Open,
			High:     k.High,
			Low:      k.Low,
			Close:    k.Close,
			Volume:   k.Volume,
		})
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "open_time"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
	}).CreateInBatches(&ms, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %d klines: %w: %w", len(klines), ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Klines upserted", map[string]interface{}{"count": len(klines)})
	return nil
}

// LatestKlineTime returns the newest stored open time.
func (r *Repository) LatestKlineTime(ctx context.Context) (time.Time, error) {
	var m KlineModel
	err := r.db.WithContext(ctx).Order("open_time DESC").Take(&m).Error
	if err != nil {
		return time.Time{}, notFoundOr(err, "latest kline")
	}
	return m.OpenTime.UTC(), nil
}

// FindKlinesSince retrieves candles with open time >= since, oldest first.
func (r *Repository) FindKlinesSince(ctx context.Context, since time.Time) ([]*domain.Kline, error) {
	var ms []KlineModel
	err := r.db.WithContext(ctx).
		Where("open_time >= ?", since.UTC()).
		Order("open_time ASC").
		Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query klines: %w: %w", ports.ErrQueryFailed, err)
	}
	return r.toKlines(ms), nil
}

// FindKlinesRange retrieves candles with open time in [from, to], oldest first.
func (r *Repository) FindKlinesRange(ctx context.Context, from, to time.Time) ([]*domain.Kline, error) {
	var ms []KlineModel
	err := r.db.WithContext(ctx).
		Where("open_time >= ? AND open_time <= ?", from.UTC(), to.UTC()).
		Order("open_time ASC").
		Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query klines: %w: %w", ports.ErrQueryFailed, err)
	}
	return r.toKlines(ms), nil
}

// UpsertSignalRows inserts or replaces signal rows by open time.
func (r *Repository) UpsertSignalRows(ctx context.Context, rows []domain.SignalRow) error {
	if len(rows) == 0 {
		return nil
	}
	ms := make([]SignalModel, 0, len(rows))
	for _, s := range rows {
		ms = append(ms, SignalModel{
			OpenTime:    s.OpenTime.UTC(),
			Open:        s.Open,
			High:        s.High,
			Low:         s.Low,
			Close:       s.Close,
			Volume:      s.Volume,
			TenkanSen:   s.TenkanSen.Ptr(),
			KijunSen:    s.KijunSen.Ptr(),
			SenkouSpanA: s.SenkouSpanA.Ptr(),
			SenkouSpanB: s.SenkouSpanB.Ptr(),
			ChikouSpan:  s.ChikouSpan.Ptr(),
			BuySignal:   s.BuySignal,
			SellSignal:  s.SellSignal,
		})
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "open_time"}},
		UpdateAll: true,
	}).CreateInBatches(&ms, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %d signal rows: %w: %w", len(rows), ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Signal rows upserted", map[string]interface{}{"count": len(rows)})
	return nil
}

// LatestSignalTime returns the newest stored signal open time.
func (r *Repository) LatestSignalTime(ctx context.Context) (time.Time, error) {
	row, err := r.FindLatestSignal(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return row.OpenTime, nil
}

// FindLatestSignal retrieves the newest stored signal row.
func (r *Repository) FindLatestSignal(ctx context.Context) (*domain.SignalRow, error) {
	var m SignalModel
	err := r.db.WithContext(ctx).Order("open_time DESC").Take(&m).Error
	if err != nil {
		return nil, notFoundOr(err, "latest signal")
	}
	row := r.toSignalRow(m)
	return &row, nil
}

// FindSignalsRange retrieves signal rows with open time in [from, to], oldest first.
func (r *Repository) FindSignalsRange(ctx context.Context, from, to time.Time) ([]domain.SignalRow, error) {
	var ms []SignalModel
	err := r.db.WithContext(ctx).
		Where("open_time >= ? AND open_time <= ?", from.UTC(), to.UTC()).
		Order("open_time ASC").
		Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query signal rows: %w: %w", ports.ErrQueryFailed, err)
	}
	out := make([]domain.SignalRow, 0, len(ms))
	for _, m := range ms {
		out = append(out, r.toSignalRow(m))
	}
	return out, nil
}

func (r *Repository) toKlines(ms []KlineModel) []*domain.Kline {
	out := make([]*domain.Kline, 0, len(ms))
	for _, m := range ms {
		open := m.OpenTime.UTC()
		out = append(out, &domain.Kline{
			OpenTime:  open,
			CloseTime: open.Add(time.Minute - time.Millisecond),
			Symbol:    r.symbol,
			Interval:  "1m",
			Open:      m.Open,
			High:      m.High,
			Low:       m.Low,
			Close:     m.Close,
			Volume:    m.Volume,
			IsFinal:   true,
		})
	}
	return out
}

func (r *Repository) toSignalRow(m SignalModel) domain.SignalRow {
	open := m.OpenTime.UTC()
	return domain.SignalRow{
		IchimokuRow: domain.IchimokuRow{
			Kline: domain.Kline{
				OpenTime:  open,
				CloseTime: open.Add(5*time.Minute - time.Millisecond),
				Symbol:    r.symbol,
				Interval:  "5m",
				Open:      m.Open,
				High:      m.High,
				Low:       m.Low,
				Close:     m.Close,
				Volume:    m.Volume,
				IsFinal:   true,
			},
			TenkanSen:   domain.FromPtr(m.TenkanSen),
			KijunSen:    domain.FromPtr(m.KijunSen),
			SenkouSpanA: domain.FromPtr(m.SenkouSpanA),
			SenkouSpanB: domain.FromPtr(m.SenkouSpanB),
			ChikouSpan:  domain.FromPtr(m.ChikouSpan),
		},
		BuySignal:  m.BuySignal,
		SellSignal: m.SellSignal,
	}
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("no %s stored: %w", what, ports.ErrNotFound)
	}
	return fmt.Errorf("failed to query %s: %w: %w", what, ports.ErrQueryFailed, err)
}
