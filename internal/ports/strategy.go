package ports

import (
	"context"

	"ichimokuBot/internal/domain"
)

// SignalGenerator turns a candle series into signal rows.
type SignalGenerator interface {
	// WarmupBars is the number of leading bars that cannot have every indicator line defined.
	WarmupBars() int

	// Evaluate returns one row per input candle, in the same order.
	Evaluate(ctx context.Context, klines []*domain.Kline) []domain.SignalRow
}
