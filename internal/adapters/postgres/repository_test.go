package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var t0 = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

// setupTestDB runs the repository against SQLite through the same gorm code path.
func setupTestDB(t *testing.T) *Repository {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err, "failed to initialize test database")

	repo, err := NewRepositoryWithDB(db, "BTCUSDT", &mockLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewRepository_Validation(t *testing.T) {
	_, err := NewRepository(Config{DSN: "postgres://x", Logger: nil})
	assert.Error(t, err)

	_, err = NewRepository(Config{Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "ohlcv_1m", KlineModel{}.TableName())
	assert.Equal(t, "OHLCV_5m_ichi", SignalModel{}.TableName())
}

func TestRepository_Klines(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	_, err := repo.LatestKlineTime(ctx)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	mk := func(i int, c float64) *domain.Kline {
		return &domain.Kline{OpenTime: t0.Add(time.Duration(i) * time.Minute), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 2}
	}
	require.NoError(t, repo.UpsertKlines(ctx, []*domain.Kline{mk(0, 100), mk(1, 101), mk(2, 102)}))
	require.NoError(t, repo.UpsertKlines(ctx, []*domain.Kline{mk(2, 120)}))

	latest, err := repo.LatestKlineTime(ctx)
	require.NoError(t, err)
	assert.True(t, latest.Equal(t0.Add(2*time.Minute)))

	all, err := repo.FindKlinesSince(ctx, t0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 120.0, all[2].Close)
	assert.Equal(t, "BTCUSDT", all[0].Symbol)

	rng, err := repo.FindKlinesRange(ctx, t0.Add(time.Minute), t0.Add(90*time.Second))
	require.NoError(t, err)
	require.Len(t, rng, 1)
	assert.Equal(t, 101.0, rng[0].Close)
}

func TestRepository_SignalRows(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	_, err := repo.FindLatestSignal(ctx)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	row := func(i int, chikou domain.Float, buy bool) domain.SignalRow {
		return domain.SignalRow{
			IchimokuRow: domain.IchimokuRow{
				Kline:       domain.Kline{OpenTime: t0.Add(time.Duration(i) * 5 * time.Minute), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3},
				TenkanSen:   domain.Some(1.1),
				KijunSen:    domain.Some(1.2),
				SenkouSpanA: domain.Some(1.3),
				SenkouSpanB: domain.None(),
				ChikouSpan:  chikou,
			},
			BuySignal: buy,
		}
	}

	require.NoError(t, repo.UpsertSignalRows(ctx, []domain.SignalRow{row(0, domain.Some(9), true), row(1, domain.None(), false)}))
	require.NoError(t, repo.UpsertSignalRows(ctx, []domain.SignalRow{row(1, domain.Some(8), false)}))

	rows, err := repo.FindSignalsRange(ctx, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].BuySignal)
	assert.Equal(t, domain.Some(9), rows[0].ChikouSpan)
	assert.False(t, rows[0].SenkouSpanB.Valid)
	assert.Equal(t, domain.Some(8), rows[1].ChikouSpan)

	latest, err := repo.FindLatestSignal(ctx)
	require.NoError(t, err)
	assert.True(t, latest.OpenTime.Equal(t0.Add(5*time.Minute)))

	ts, err := repo.LatestSignalTime(ctx)
	require.NoError(t, err)
	assert.True(t, ts.Equal(latest.OpenTime))
}
