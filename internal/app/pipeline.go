package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/marketdata"
	"ichimokuBot/internal/metrics"
	"ichimokuBot/internal/ports"
)

// PipelineConfig controls ingestion of base klines and the signal refresh.
type PipelineConfig struct {
	Symbol               string
	BaseInterval         string        // Stored candle interval, e.g. "1m"
	SignalInterval       string        // Resampled interval the strategy runs on, e.g. "5m"
	LookbackBars         int           // Signal rows rewritten on every refresh
	InitialHistory       time.Duration // How far back to fetch when the store is empty
	SettleDelay          time.Duration // Wait after a boundary so the exchange has closed the bar
	MaxConsecutiveErrors int
}

// Pipeline keeps the kline table current and recomputes the signal table
// after every signal-interval boundary.
type Pipeline struct {
	cfg       PipelineConfig
	baseDur   time.Duration
	signalDur time.Duration

	logger    ports.Logger
	source    ports.KlineSource
	store     ports.MarketDataStore
	generator ports.SignalGenerator
	metrics   *metrics.Metrics
	health    *metrics.Health

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewPipeline validates the configuration and wires the pipeline.
// health may be nil.
func NewPipeline(
	cfg PipelineConfig,
	logger ports.Logger,
	source ports.KlineSource,
	store ports.MarketDataStore,
	generator ports.SignalGenerator,
	m *metrics.Metrics,
	health *metrics.Health,
) (*Pipeline, error) {
	if logger == nil || source == nil || store == nil || generator == nil || m == nil {
		return nil, fmt.Errorf("missing required dependencies for Pipeline")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol must be set", ports.ErrConfigurationError)
	}
	baseDur, err := marketdata.ParseInterval(cfg.BaseInterval)
	if err != nil {
		return nil, fmt.Errorf("%w: base interval: %w", ports.ErrConfigurationError, err)
	}
	signalDur, err := marketdata.ParseInterval(cfg.SignalInterval)
	if err != nil {
		return nil, fmt.Errorf("%w: signal interval: %w", ports.ErrConfigurationError, err)
	}
	if signalDur < baseDur || signalDur%baseDur != 0 {
		return nil, fmt.Errorf("%w: signal interval %s is not a multiple of base interval %s",
			ports.ErrConfigurationError, cfg.SignalInterval, cfg.BaseInterval)
	}
	if cfg.LookbackBars <= 0 {
		return nil, fmt.Errorf("%w: lookback bars must be positive", ports.ErrConfigurationError)
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		return nil, fmt.Errorf("%w: max consecutive errors must be positive", ports.ErrConfigurationError)
	}
	if cfg.InitialHistory <= 0 {
		cfg.InitialHistory = time.Duration(cfg.LookbackBars+generator.WarmupBars()) * signalDur
	}

	return &Pipeline{
		cfg:       cfg,
		baseDur:   baseDur,
		signalDur: signalDur,
		logger:    logger,
		source:    source,
		store:     store,
		generator: generator,
		metrics:   m,
		health:    health,
		now:       time.Now,
		after:     time.After,
	}, nil
}

// SyncBase fetches every closed base kline after the newest stored one and
// upserts them. It returns the number of klines written.
func (p *Pipeline) SyncBase(ctx context.Context) (int, error) {
	defer p.metrics.ObserveStage("sync", time.Now())
	now := p.now().UTC()

	var start time.Time
	latest, err := p.store.LatestKlineTime(ctx)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		start = marketdata.FloorTime(now.Add(-p.cfg.InitialHistory), p.baseDur)
		p.logger.Info(ctx, "Kline table empty, loading initial history", map[string]interface{}{
			"from": start.Format(time.RFC3339),
		})
	case err != nil:
		return 0, fmt.Errorf("reading latest kline time: %w", err)
	default:
		start = latest.Add(p.baseDur)
	}

	if now.Before(start.Add(p.baseDur)) {
		p.logger.Debug(ctx, "Klines up to date", map[string]interface{}{"next": start.Format(time.RFC3339)})
		return 0, nil
	}

	fetched, err := p.source.GetKlinesRange(ctx, p.cfg.Symbol, p.cfg.BaseInterval, start, now)
	if err != nil {
		return 0, fmt.Errorf("fetching klines: %w", err)
	}
	closed := marketdata.DropOpen(marketdata.Normalize(fetched), now)
	if len(closed) == 0 {
		return 0, nil
	}
	if err := p.store.UpsertKlines(ctx, closed); err != nil {
		return 0, fmt.Errorf("storing klines: %w", err)
	}

	p.metrics.KlinesIngested.Add(float64(len(closed)))
	p.logger.Info(ctx, "Synced klines", map[string]interface{}{
		"count": len(closed),
		"first": closed[0].OpenTime.Format(time.RFC3339),
		"last":  closed[len(closed)-1].OpenTime.Format(time.RFC3339),
	})
	return len(closed), nil
}

// RefreshSignals recomputes the last LookbackBars signal rows from stored
// klines and upserts them. Rows written earlier are overwritten so chikou
// and signals that were undefined at the right edge get filled in once later
// bars exist. It returns the number of rows written.
func (p *Pipeline) RefreshSignals(ctx context.Context) (int, error) {
	defer p.metrics.ObserveStage("refresh", time.Now())
	now := p.now().UTC()

	bars := p.cfg.LookbackBars + p.generator.WarmupBars()
	since := marketdata.FloorTime(now, p.signalDur).Add(-time.Duration(bars) * p.signalDur)
	base, err := p.store.FindKlinesSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("loading klines: %w", err)
	}
	resampled, err := marketdata.Resample(base, p.signalDur, p.cfg.SignalInterval)
	if err != nil {
		return 0, fmt.Errorf("resampling klines: %w", err)
	}
	resampled = marketdata.DropOpen(resampled, now)
	if len(resampled) == 0 {
		p.logger.Warn(ctx, "No closed signal bars to evaluate", map[string]interface{}{"since": since.Format(time.RFC3339)})
		return 0, nil
	}

	rows := p.generator.Evaluate(ctx, resampled)
	if len(rows) > p.cfg.LookbackBars {
		rows = rows[len(rows)-p.cfg.LookbackBars:]
	}

	previous, err := p.store.LatestSignalTime(ctx)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return 0, fmt.Errorf("reading latest signal time: %w", err)
	}

	if err := p.store.UpsertSignalRows(ctx, rows); err != nil {
		return 0, fmt.Errorf("storing signal rows: %w", err)
	}

	p.metrics.SignalRowsWritten.Add(float64(len(rows)))
	newest := rows[len(rows)-1]
	p.metrics.LastSignalBar.Set(float64(newest.OpenTime.Unix()))
	p.recordNewSignals(ctx, rows, previous)

	p.logger.Info(ctx, "Refreshed signal rows", map[string]interface{}{
		"rows":   len(rows),
		"newest": newest.OpenTime.Format(time.RFC3339),
		"buy":    newest.BuySignal,
		"sell":   newest.SellSignal,
	})
	return len(rows), nil
}

// recordNewSignals counts flags on rows newer than the previous refresh.
func (p *Pipeline) recordNewSignals(ctx context.Context, rows []domain.SignalRow, previous time.Time) {
	for _, r := range rows {
		if !r.OpenTime.After(previous) {
			continue
		}
		if r.BuySignal {
			p.metrics.Signals.WithLabelValues("buy").Inc()
			p.logger.Info(ctx, "Buy signal", map[string]interface{}{"openTime": r.OpenTime.Format(time.RFC3339), "close": r.Close})
		}
		if r.SellSignal {
			p.metrics.Signals.WithLabelValues("sell").Inc()
			p.logger.Info(ctx, "Sell signal", map[string]interface{}{"openTime": r.OpenTime.Format(time.RFC3339), "close": r.Close})
		}
	}
}

// RunOnce performs one sync followed by one refresh.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	if _, err := p.SyncBase(ctx); err != nil {
		p.metrics.CycleErrors.WithLabelValues("sync").Inc()
		return err
	}
	if _, err := p.RefreshSignals(ctx); err != nil {
		p.metrics.CycleErrors.WithLabelValues("refresh").Inc()
		return err
	}
	return nil
}

// Run catches up immediately, then repeats RunOnce shortly after every
// signal-interval boundary. It returns nil when ctx is cancelled and an error
// wrapping ErrTooManyConsecutiveErr after MaxConsecutiveErrors failed cycles.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info(ctx, "Starting pipeline", map[string]interface{}{
		"symbol":         p.cfg.Symbol,
		"baseInterval":   p.cfg.BaseInterval,
		"signalInterval": p.cfg.SignalInterval,
		"lookbackBars":   p.cfg.LookbackBars,
	})

	consecutive := 0
	for {
		err := p.RunOnce(ctx)
		if ctx.Err() != nil {
			p.logger.Info(ctx, "Pipeline stopped")
			return nil
		}
		if err != nil {
			consecutive++
			p.metrics.ConsecutiveErrors.Set(float64(consecutive))
			if p.health != nil {
				p.health.RecordError(err)
			}
			p.logger.Error(ctx, err, "Pipeline cycle failed", map[string]interface{}{
				"consecutive": consecutive,
				"max":         p.cfg.MaxConsecutiveErrors,
			})
			if consecutive >= p.cfg.MaxConsecutiveErrors {
				return fmt.Errorf("%w: %d failed cycles, last: %w", ports.ErrTooManyConsecutiveErr, consecutive, err)
			}
		} else {
			consecutive = 0
			p.metrics.ConsecutiveErrors.Set(0)
			if p.health != nil {
				p.health.RecordSuccess(p.now())
			}
		}

		wake := marketdata.NextBoundary(p.now(), p.signalDur).Add(p.cfg.SettleDelay)
		wait := wake.Sub(p.now())
		p.logger.Debug(ctx, "Waiting for next bar", map[string]interface{}{"wake": wake.Format(time.RFC3339)})

		select {
		case <-ctx.Done():
			p.logger.Info(ctx, "Pipeline stopped")
			return nil
		case <-p.after(wait):
		}
	}
}
