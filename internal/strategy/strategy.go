package strategy

import (
	"context"
	"fmt"

	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/ports"
	"ichimokuBot/internal/strategy/indicators"
)

// Config holds parameters for the Ichimoku strategy.
type Config struct {
	Ichimoku indicators.IchimokuConfig
}

// Strategy is the single indicator + signal pipeline shared by the realtime
// service, the backtest runner and the optimizer.
type Strategy struct {
	cfg    Config
	logger ports.Logger
}

var _ ports.SignalGenerator = (*Strategy)(nil)

// New creates a new Strategy instance.
func New(cfg Config, logger ports.Logger) (*Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if err := cfg.Ichimoku.Validate(); err != nil {
		return nil, err
	}
	return &Strategy{cfg: cfg, logger: logger}, nil
}

// Config returns the parameters the strategy was built with.
func (s *Strategy) Config() Config {
	return s.cfg
}

// WarmupBars returns the number of leading bars without both senkou spans.
func (s *Strategy) WarmupBars() int {
	return s.cfg.Ichimoku.WarmupBars()
}

// RequiredDataPoints returns the shortest series that produces a complete row.
func (s *Strategy) RequiredDataPoints() int {
	return s.cfg.Ichimoku.RequiredDataPoints()
}

// Evaluate computes the Ichimoku lines and signal flags for klines.
func (s *Strategy) Evaluate(ctx context.Context, klines []*domain.Kline) []domain.SignalRow {
	if len(klines) < s.RequiredDataPoints() {
		s.logger.Debug(ctx, "Series shorter than Ichimoku warm-up, rows will be incomplete", map[string]interface{}{
			"bars":     len(klines),
			"required": s.RequiredDataPoints(),
		})
	}

	rows := DetectSignals(indicators.Ichimoku(klines, s.cfg.Ichimoku))

	buys, sells := CountSignals(rows)
	s.logger.Debug(ctx, "Evaluated Ichimoku signals", map[string]interface{}{
		"bars":  len(rows),
		"buys":  buys,
		"sells": sells,
	})
	return rows
}

// LatestSignal evaluates klines and returns the newest flagged row, if any.
func (s *Strategy) LatestSignal(ctx context.Context, klines []*domain.Kline) (domain.SignalRow, bool) {
	return LastSignal(s.Evaluate(ctx, klines))
}
