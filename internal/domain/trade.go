package domain

import "time"

// Trade is a completed round trip recorded by the simulator. Trades are
// append-only; nothing modifies a Trade after it is recorded.
type Trade struct {
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	Profit     float64 // Net of both fees, in quote currency
	ProfitPct  float64 // Profit / cost basis * 100
	ExitReason ExitReason
	FeeEntry   float64
	FeeExit    float64
}

// IsWin reports whether the trade made money. Break-even trades count as losses.
func (t *Trade) IsWin() bool {
	return t.Profit > 0
}

// HoldingTime returns the time between entry and exit.
func (t *Trade) HoldingTime() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}
