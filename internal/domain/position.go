package domain

import "time"

// Position is the open long position held by a simulation run. It exists only
// between entry and exit and is never shared outside the simulator.
type Position struct {
	EntryPrice float64   // Close of the bar that triggered the entry
	EntryTime  time.Time // OpenTime of that bar
	Quantity   float64   // Base units bought
	CostBasis  float64   // Quantity*EntryPrice + EntryFee
	EntryFee   float64
}

// MarkToMarket values the position at the given price.
func (p *Position) MarkToMarket(price float64) float64 {
	return p.Quantity * price
}
