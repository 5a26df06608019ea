package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.MarketDataStore and ports.BacktestRepository using SQLite.
// Times are stored as Unix milliseconds in UTC.
type Repository struct {
	db     *sql.DB
	symbol string
	logger ports.Logger
}

var (
	_ ports.MarketDataStore    = (*Repository)(nil)
	_ ports.BacktestRepository = (*Repository)(nil)
)

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Symbol string // Written into klines read back; the tables hold a single asset
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/ichimoku.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serialises writers; SQLite locks the whole file anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, symbol: cfg.Symbol, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS ohlcv_1m (
		open_time INTEGER PRIMARY KEY,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ohlcv_5m_ichi (
		open_time INTEGER PRIMARY KEY,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		tenkan_sen REAL NULL,
		kijun_sen REAL NULL,
		senkou_span_a REAL NULL,
		senkou_span_b REAL NULL,
		chikou_span REAL NULL,
		buy_signal INTEGER NOT NULL DEFAULT 0,
		sell_signal INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS backtest_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		tenkan_period INTEGER NOT NULL,
		kijun_period INTEGER NOT NULL,
		senkou_b_period INTEGER NOT NULL,
		offset_bars INTEGER NOT NULL,
		take_profit_pct REAL NOT NULL,
		stop_loss_pct REAL NOT NULL,
		fee_rate REAL NOT NULL,
		execution_type TEXT NOT NULL,
		initial_capital REAL NOT NULL,
		final_capital REAL NOT NULL,
		total_trades INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		profit_factor REAL NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS backtest_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES backtest_runs (id),
		entry_time INTEGER NOT NULL,
		exit_time INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity REAL NOT NULL,
		profit REAL NOT NULL,
		profit_pct REAL NOT NULL,
		exit_reason TEXT NOT NULL,
		fee_entry REAL NOT NULL,
		fee_exit REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_backtest_trades_run ON backtest_trades (run_id, id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- KlineRepository Implementation ---

// UpsertKlines inserts or replaces candles keyed by open time in one transaction.
func (r *Repository) UpsertKlines(ctx context.Context, klines []*domain.Kline) error {
	if len(klines) == 0 {
		return nil
	}
	const query = `
	INSERT INTO ohlcv_1m (open_time, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(open_time) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low,
		close = excluded.close, volume = excluded.volume`

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, k := range klines {
			if _, err := stmt.ExecContext(ctx, k.OpenTime.UnixMilli(), k.Open, k.High, k.Low, k.Close, k.Volume); err != nil {
				return fmt.Errorf("kline %s: %w", k.OpenTime.UTC().Format(time.RFC3339), err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d klines: %w: %w", len(klines), ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Klines upserted", map[string]interface{}{"count": len(klines)})
	return nil
}

// LatestKlineTime returns the newest stored open time.
func (r *Repository) LatestKlineTime(ctx context.Context) (time.Time, error) {
	return r.latestTime(ctx, "ohlcv_1m")
}

// FindKlinesSince retrieves candles with open time >= since, oldest first.
func (r *Repository) FindKlinesSince(ctx context.Context, since time.Time) ([]*domain.Kline, error) {
	const query = `
	SELECT open_time, open, high, low, close, volume
	FROM ohlcv_1m WHERE open_time >= ? ORDER BY open_time ASC`
	return r.queryKlines(ctx, query, since.UnixMilli())
}

// FindKlinesRange retrieves candles with open time in [from, to], oldest first.
func (r *Repository) FindKlinesRange(ctx context.Context, from, to time.Time) ([]*domain.Kline, error) {
	const query = `
	SELECT open_time, open, high, low, close, volume
	FROM ohlcv_1m WHERE open_time >= ? AND open_time <= ? ORDER BY open_time ASC`
	return r.queryKlines(ctx, query, from.UnixMilli(), to.UnixMilli())
}

func (r *Repository) queryKlines(ctx context.Context, query string, args ...interface{}) ([]*domain.Kline, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query klines: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	klines := make([]*domain.Kline, 0)
	for rows.Next() {
		k, err := r.scanKline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan kline: %w: %w", ports.ErrQueryFailed, err)
		}
		klines = append(klines, k)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kline rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return klines, nil
}

// --- SignalRepository Implementation ---

// UpsertSignalRows inserts or replaces signal rows keyed by open time. Absent
// indicator values are written as NULL so that later runs can fill them in.
func (r *Repository) UpsertSignalRows(ctx context.Context, signalRows []domain.SignalRow) error {
	if len(signalRows) == 0 {
		return nil
	}
	const query = `
	INSERT INTO ohlcv_5m_ichi (open_time, open, high, low, close, volume,
		tenkan_sen, kijun_sen, senkou_span_a, senkou_span_b, chikou_span, buy_signal, sell_signal)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(open_time) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low,
		close = excluded.close, volume = excluded.volume,
		tenkan_sen = excluded.tenkan_sen, kijun_sen = excluded.kijun_sen,
		senkou_span_a = excluded.senkou_span_a, senkou_span_b = excluded.senkou_span_b,
		chikou_span = excluded.chikou_span,
		buy_signal = excluded.buy_signal, sell_signal = excluded.sell_signal`

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, s := range signalRows {
			_, err := stmt.ExecContext(ctx,
				s.OpenTime.UnixMilli(), s.Open, s.High, s.Low, s.Close, s.Volume,
				nullFloat(s.TenkanSen), nullFloat(s.KijunSen), nullFloat(s.SenkouSpanA),
				nullFloat(s.SenkouSpanB), nullFloat(s.ChikouSpan),
				s.BuySignal, s.SellSignal)
			if err != nil {
				return fmt.Errorf("signal row %s: %w", s.OpenTime.UTC().Format(time.RFC3339), err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d signal rows: %w: %w", len(signalRows), ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Signal rows upserted", map[string]interface{}{"count": len(signalRows)})
	return nil
}

// LatestSignalTime returns the newest stored signal open time.
func (r *Repository) LatestSignalTime(ctx context.Context) (time.Time, error) {
	return r.latestTime(ctx, "ohlcv_5m_ichi")
}

const signalColumns = `open_time, open, high, low, close, volume,
	tenkan_sen, kijun_sen, senkou_span_a, senkou_span_b, chikou_span, buy_signal, sell_signal`

// FindLatestSignal retrieves the newest stored signal row.
func (r *Repository) FindLatestSignal(ctx context.Context) (*domain.SignalRow, error) {
	query := `SELECT ` + signalColumns + ` FROM ohlcv_5m_ichi ORDER BY open_time DESC LIMIT 1`
	row, err := r.scanSignalRow(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no signal rows stored: %w", ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query latest signal: %w: %w", ports.ErrQueryFailed, err)
	}
	return row, nil
}

// FindSignalsRange retrieves signal rows with open time in [from, to], oldest first.
func (r *Repository) FindSignalsRange(ctx context.Context, from, to time.Time) ([]domain.SignalRow, error) {
	query := `SELECT ` + signalColumns + ` FROM ohlcv_5m_ichi
	WHERE open_time >= ? AND open_time <= ? ORDER BY open_time ASC`

	rows, err := r.db.QueryContext(ctx, query, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query signal rows: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	out := make([]domain.SignalRow, 0)
	for rows.Next() {
		s, err := r.scanSignalRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal row: %w: %w", ports.ErrQueryFailed, err)
		}
		out = append(out, *s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return out, nil
}

// --- BacktestRepository Implementation ---

// SaveBacktest stores a run summary and its trade ledger and returns the run ID.
func (r *Repository) SaveBacktest(ctx context.Context, run *domain.BacktestRun, result *domain.BacktestResult) (int64, error) {
	const runQuery = `
	INSERT INTO backtest_runs (symbol, interval, start_time, end_time, tenkan_period, kijun_period,
		senkou_b_period, offset_bars, take_profit_pct, stop_loss_pct, fee_rate, execution_type,
		initial_capital, final_capital, total_trades, win_rate, profit_factor, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	const tradeQuery = `
	INSERT INTO backtest_trades (run_id, entry_time, exit_time, entry_price, exit_price, quantity,
		profit, profit_pct, exit_reason, fee_entry, fee_exit)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	var runID int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, runQuery,
			run.Symbol, run.Interval, run.StartTime.UnixMilli(), run.EndTime.UnixMilli(),
			run.TenkanPeriod, run.KijunPeriod, run.SenkouBPeriod, run.Offset,
			run.TakeProfitPct, run.StopLossPct, run.FeeRate, string(run.ExecutionType),
			result.InitialCapital, result.FinalCapital, result.TotalTrades, result.WinRate, result.ProfitFactor,
			run.CreatedAt.UnixMilli())
		if err != nil {
			return err
		}
		if runID, err = res.LastInsertId(); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, tradeQuery)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range result.Trades {
			_, err := stmt.ExecContext(ctx, runID,
				t.EntryTime.UnixMilli(), t.ExitTime.UnixMilli(), t.EntryPrice, t.ExitPrice, t.Quantity,
				t.Profit, t.ProfitPct, string(t.ExitReason), t.FeeEntry, t.FeeExit)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save backtest run for %s: %w: %w", run.Symbol, ports.ErrUpdateFailed, err)
	}
	run.ID = runID
	r.logger.Debug(ctx, "Backtest run saved", map[string]interface{}{"runID": runID, "trades": len(result.Trades)})
	return runID, nil
}

// FindBacktestTrades retrieves the trades of a run in the order they were recorded.
func (r *Repository) FindBacktestTrades(ctx context.Context, runID int64) ([]*domain.Trade, error) {
	const query = `
	SELECT entry_time, exit_time, entry_price, exit_price, quantity, profit, profit_pct,
	       exit_reason, fee_entry, fee_exit
	FROM backtest_trades WHERE run_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for run %d: %w: %w", runID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade for run %d: %w: %w", runID, ports.ErrQueryFailed, err)
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return trades, nil
}

// --- Helpers ---

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// latestTime returns MAX(open_time) of table. The table name is never user input.
func (r *Repository) latestTime(ctx context.Context, table string) (time.Time, error) {
	var ms sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(open_time) FROM `+table).Scan(&ms)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest time in %s: %w: %w", table, ports.ErrQueryFailed, err)
	}
	if !ms.Valid {
		return time.Time{}, fmt.Errorf("table %s is empty: %w", table, ports.ErrNotFound)
	}
	return time.UnixMilli(ms.Int64).UTC(), nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanKline(s scanner) (*domain.Kline, error) {
	k := &domain.Kline{Symbol: r.symbol, Interval: "1m", IsFinal: true}
	var openMs int64
	if err := s.Scan(&openMs, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
		return nil, err
	}
	k.OpenTime = time.UnixMilli(openMs).UTC()
	k.CloseTime = k.OpenTime.Add(time.Minute - time.Millisecond)
	return k, nil
}

func (r *Repository) scanSignalRow(s scanner) (*domain.SignalRow, error) {
	row := &domain.SignalRow{}
	row.Symbol = r.symbol
	row.Interval = "5m"
	row.IsFinal = true

	var openMs int64
	var tenkan, kijun, spanA, spanB, chikou sql.NullFloat64
	err := s.Scan(&openMs, &row.Open, &row.High, &row.Low, &row.Close, &row.Volume,
		&tenkan, &kijun, &spanA, &spanB, &chikou, &row.BuySignal, &row.SellSignal)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	row.OpenTime = time.UnixMilli(openMs).UTC()
	row.CloseTime = row.OpenTime.Add(5*time.Minute - time.Millisecond)
	row.TenkanSen = fromNull(tenkan)
	row.KijunSen = fromNull(kijun)
	row.SenkouSpanA = fromNull(spanA)
	row.SenkouSpanB = fromNull(spanB)
	row.ChikouSpan = fromNull(chikou)
	return row, nil
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var entryMs, exitMs int64
	var reason string
	err := s.Scan(&entryMs, &exitMs, &t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.Profit, &t.ProfitPct,
		&reason, &t.FeeEntry, &t.FeeExit)
	if err != nil {
		return nil, err
	}
	t.EntryTime = time.UnixMilli(entryMs).UTC()
	t.ExitTime = time.UnixMilli(exitMs).UTC()
	t.ExitReason = domain.ExitReason(reason)
	return t, nil
}

func nullFloat(f domain.Float) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f.V, Valid: f.Valid}
}

func fromNull(n sql.NullFloat64) domain.Float {
	if !n.Valid {
		return domain.None()
	}
	return domain.Some(n.Float64)
}
