package domain

import "time"

// EquityPoint is the mark-to-market value of a run at one bar.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}

// BacktestResult bundles the outcome of one simulation run.
type BacktestResult struct {
	InitialCapital float64
	FinalCapital   float64
	TotalReturn    float64
	TotalReturnPct float64
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	WinRate        float64 // Percent
	AvgProfit      float64
	AvgLoss        float64
	// ProfitFactor is gross profit / |gross loss|, and 0 when there are no
	// losses to divide by.
	ProfitFactor float64
	Trades       []*Trade
	EquityCurve  []EquityPoint
}

// BacktestRun identifies a stored simulation run and the parameters it used.
type BacktestRun struct {
	ID            int64
	Symbol        string
	Interval      string
	StartTime     time.Time
	EndTime       time.Time
	TenkanPeriod  int
	KijunPeriod   int
	SenkouBPeriod int
	Offset        int
	TakeProfitPct float64
	StopLossPct   float64
	FeeRate       float64
	ExecutionType ExecutionType
	CreatedAt     time.Time
}
