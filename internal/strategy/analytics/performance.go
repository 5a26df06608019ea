package analytics

import (
	"math"
	"sort"
	"time"

	"ichimokuBot/internal/domain"
)

// PerformanceMetrics holds the report printed after a backtest run.
type PerformanceMetrics struct {
	// Headline numbers, copied from the simulator result
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	WinRate        float64 // Percent
	ProfitFactor   float64
	AverageWin     float64
	AverageLoss    float64
	InitialBalance float64
	FinalBalance   float64
	TotalProfit    float64
	TotalReturnPct float64

	// Derived from trades and the equity curve
	TotalFees            float64
	MaxDrawdown          float64 // Fraction of the running peak
	MaxDrawdownAbs       float64 // Quote currency
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHoldingTime   time.Duration
	Expectancy           float64
	RiskRewardRatio      float64
	RecoveryFactor       float64
	SharpeRatio          float64 // Per bar, not annualized
	ExitReasons          map[domain.ExitReason]ExitReasonStats
	MonthlyReturns       map[string]float64
	Drawdowns            []Drawdown
}

// ExitReasonStats aggregates the trades closed for one reason.
type ExitReasonStats struct {
	Count       int
	TotalProfit float64
	AvgProfit   float64
}

// Drawdown represents a drawdown period on the equity curve.
type Drawdown struct {
	StartTime  time.Time
	EndTime    time.Time
	StartValue float64
	Trough     float64
	Depth      float64
	Duration   time.Duration
	Recovered  bool
}

// AnalyzePerformance builds the full report for a simulator result.
func AnalyzePerformance(result *domain.BacktestResult) *PerformanceMetrics {
	if result == nil {
		return newMetrics()
	}

	m := SummarizeTrades(result.Trades)
	m.TotalTrades = result.TotalTrades
	m.WinningTrades = result.WinningTrades
	m.LosingTrades = result.LosingTrades
	m.WinRate = result.WinRate
	m.ProfitFactor = result.ProfitFactor
	m.AverageWin = result.AvgProfit
	m.AverageLoss = result.AvgLoss
	m.InitialBalance = result.InitialCapital
	m.FinalBalance = result.FinalCapital
	m.TotalProfit = result.TotalReturn
	m.TotalReturnPct = result.TotalReturnPct

	m.analyzeEquity(result.EquityCurve)
	if m.MaxDrawdownAbs > 0 {
		m.RecoveryFactor = m.TotalProfit / m.MaxDrawdownAbs
	}
	return m
}

// SummarizeTrades computes the trade-only part of the report. It is used for
// trade lists read back from disk, where no equity curve is available.
func SummarizeTrades(trades []*domain.Trade) *PerformanceMetrics {
	m := newMetrics()
	if len(trades) == 0 {
		return m
	}

	sorted := make([]*domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EntryTime.Before(sorted[j].EntryTime)
	})

	var grossWin, grossLoss float64
	var wins, losses int
	var holding time.Duration
	for _, t := range sorted {
		m.TotalTrades++
		m.TotalProfit += t.Profit
		m.TotalFees += t.FeeEntry + t.FeeExit
		holding += t.HoldingTime()

		if t.IsWin() {
			m.WinningTrades++
			grossWin += t.Profit
			wins++
			losses = 0
		} else {
			m.LosingTrades++
			grossLoss += t.Profit
			losses++
			wins = 0
		}
		if wins > m.MaxConsecutiveWins {
			m.MaxConsecutiveWins = wins
		}
		if losses > m.MaxConsecutiveLosses {
			m.MaxConsecutiveLosses = losses
		}

		stats := m.ExitReasons[t.ExitReason]
		stats.Count++
		stats.TotalProfit += t.Profit
		m.ExitReasons[t.ExitReason] = stats

		m.MonthlyReturns[t.ExitTime.UTC().Format("2006-01")] += t.Profit
	}
	for reason, stats := range m.ExitReasons {
		stats.AvgProfit = stats.TotalProfit / float64(stats.Count)
		m.ExitReasons[reason] = stats
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	if m.WinningTrades > 0 {
		m.AverageWin = grossWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = grossLoss / float64(m.LosingTrades)
	}
	if grossLoss != 0 {
		m.ProfitFactor = grossWin / -grossLoss
	}
	if m.AverageLoss != 0 {
		m.RiskRewardRatio = m.AverageWin / -m.AverageLoss
	}
	m.AverageHoldingTime = holding / time.Duration(m.TotalTrades)

	winRate := m.WinRate / 100
	m.Expectancy = winRate*m.AverageWin + (1-winRate)*m.AverageLoss
	return m
}

func newMetrics() *PerformanceMetrics {
	return &PerformanceMetrics{
		ExitReasons:    make(map[domain.ExitReason]ExitReasonStats),
		MonthlyReturns: make(map[string]float64),
		Drawdowns:      make([]Drawdown, 0),
	}
}

// analyzeEquity tracks drawdown periods against the running peak and the
// per-bar return distribution.
func (m *PerformanceMetrics) analyzeEquity(curve []domain.EquityPoint) {
	if len(curve) == 0 {
		return
	}

	peak := curve[0].Equity
	var current *Drawdown
	returns := make([]float64, 0, len(curve))

	for i, p := range curve {
		if i > 0 && curve[i-1].Equity > 0 {
			returns = append(returns, p.Equity/curve[i-1].Equity-1)
		}

		if p.Equity >= peak {
			peak = p.Equity
			if current != nil {
				current.EndTime = p.Timestamp
				current.Duration = current.EndTime.Sub(current.StartTime)
				current.Recovered = true
				m.Drawdowns = append(m.Drawdowns, *current)
				current = nil
			}
			continue
		}

		depth := (peak - p.Equity) / peak
		if current == nil {
			current = &Drawdown{StartTime: p.Timestamp, StartValue: peak, Trough: p.Equity, Depth: depth}
		} else if p.Equity < current.Trough {
			current.Trough = p.Equity
			current.Depth = depth
		}
		if depth > m.MaxDrawdown {
			m.MaxDrawdown = depth
		}
		if abs := peak - p.Equity; abs > m.MaxDrawdownAbs {
			m.MaxDrawdownAbs = abs
		}
	}

	// Close any open drawdown
	if current != nil {
		current.EndTime = curve[len(curve)-1].Timestamp
		current.Duration = current.EndTime.Sub(current.StartTime)
		m.Drawdowns = append(m.Drawdowns, *current)
	}

	m.SharpeRatio = sharpe(returns)
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: profit,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}
