package analytics

import (
	"math"
	"testing"
	"time"

	"ichimokuBot/internal/domain"
)

var base = time.Date(2024, 3, 30, 12, 0, 0, 0, time.UTC)

func trade(entryOffset, exitOffset time.Duration, profit float64, reason domain.ExitReason) *domain.Trade {
	return &domain.Trade{
		EntryTime:  base.Add(entryOffset),
		ExitTime:   base.Add(exitOffset),
		EntryPrice: 100,
		ExitPrice:  100 + profit/10,
		Quantity:   10,
		Profit:     profit,
		ExitReason: reason,
		FeeEntry:   1,
		FeeExit:    1,
	}
}

func TestSummarizeTrades(t *testing.T) {
	trades := []*domain.Trade{
		// Deliberately out of order: the streak logic sorts by entry time.
		trade(3*time.Hour, 4*time.Hour, -100, domain.ExitStopLoss),
		trade(0, time.Hour, 200, domain.ExitTakeProfit),
		trade(time.Hour, 2*time.Hour, 200, domain.ExitTakeProfit),
		trade(5*time.Hour, 9*time.Hour, -50, domain.ExitSellSignal),
		trade(48*time.Hour, 51*time.Hour, 0, domain.ExitEndOfData),
	}

	metrics := SummarizeTrades(trades)

	if metrics.TotalTrades != 5 {
		t.Errorf("Expected 5 total trades, got %d", metrics.TotalTrades)
	}
	if metrics.WinningTrades != 2 || metrics.LosingTrades != 3 {
		t.Errorf("Expected 2 wins and 3 losses, got %d/%d", metrics.WinningTrades, metrics.LosingTrades)
	}
	if metrics.WinRate != 40 {
		t.Errorf("Expected 40%% win rate, got %f", metrics.WinRate)
	}
	if metrics.TotalProfit != 250 {
		t.Errorf("Expected 250 total profit, got %f", metrics.TotalProfit)
	}
	if metrics.TotalFees != 10 {
		t.Errorf("Expected 10 total fees, got %f", metrics.TotalFees)
	}
	if metrics.AverageWin != 200 {
		t.Errorf("Expected 200 average win, got %f", metrics.AverageWin)
	}
	if metrics.AverageLoss != -50 {
		t.Errorf("Expected -50 average loss, got %f", metrics.AverageLoss)
	}
	if metrics.ProfitFactor != 400.0/150.0 {
		t.Errorf("Expected profit factor %f, got %f", 400.0/150.0, metrics.ProfitFactor)
	}
	if metrics.RiskRewardRatio != 4 {
		t.Errorf("Expected risk reward ratio 4, got %f", metrics.RiskRewardRatio)
	}
	if metrics.MaxConsecutiveWins != 2 {
		t.Errorf("Expected 2 max consecutive wins, got %d", metrics.MaxConsecutiveWins)
	}
	if metrics.MaxConsecutiveLosses != 3 {
		t.Errorf("Expected 3 max consecutive losses, got %d", metrics.MaxConsecutiveLosses)
	}
	if want := 2 * time.Hour; metrics.AverageHoldingTime != want {
		t.Errorf("Expected %v average holding time, got %v", want, metrics.AverageHoldingTime)
	}
	if want := 0.4*200 + 0.6*-50; math.Abs(metrics.Expectancy-want) > 1e-9 {
		t.Errorf("Expected expectancy %f, got %f", want, metrics.Expectancy)
	}

	tp := metrics.ExitReasons[domain.ExitTakeProfit]
	if tp.Count != 2 || tp.TotalProfit != 400 || tp.AvgProfit != 200 {
		t.Errorf("Unexpected take-profit stats: %+v", tp)
	}
	if eod := metrics.ExitReasons[domain.ExitEndOfData]; eod.Count != 1 || eod.AvgProfit != 0 {
		t.Errorf("Unexpected end-of-data stats: %+v", eod)
	}

	// Trades exiting on 2024-03-30 and 2024-04-01.
	monthly := metrics.GetMonthlyReturns()
	if len(monthly) != 2 {
		t.Fatalf("Expected 2 monthly returns, got %d", len(monthly))
	}
	if monthly[0].Month.Month() != time.March || monthly[0].Return != 250 {
		t.Errorf("Unexpected first month: %+v", monthly[0])
	}
	if monthly[1].Month.Month() != time.April || monthly[1].Return != 0 {
		t.Errorf("Unexpected second month: %+v", monthly[1])
	}

	if trades[0].ExitReason != domain.ExitStopLoss {
		t.Errorf("Input slice was reordered")
	}
}

func TestSummarizeTradesEmpty(t *testing.T) {
	metrics := SummarizeTrades(nil)
	if metrics.TotalTrades != 0 {
		t.Errorf("Expected 0 total trades, got %d", metrics.TotalTrades)
	}
	if metrics.WinRate != 0 || metrics.ProfitFactor != 0 {
		t.Errorf("Expected zero ratios, got win rate %f, profit factor %f", metrics.WinRate, metrics.ProfitFactor)
	}
	if len(metrics.GetMonthlyReturns()) != 0 {
		t.Errorf("Expected no monthly returns")
	}
}

func TestAnalyzePerformanceUsesResultHeadlines(t *testing.T) {
	result := &domain.BacktestResult{
		InitialCapital: 10000,
		FinalCapital:   10100,
		TotalReturn:    100,
		TotalReturnPct: 1,
		TotalTrades:    1,
		WinningTrades:  1,
		WinRate:        100,
		AvgProfit:      100,
		ProfitFactor:   0,
		Trades:         []*domain.Trade{trade(0, time.Hour, 100, domain.ExitTakeProfit)},
	}

	metrics := AnalyzePerformance(result)

	if metrics.ProfitFactor != 0 {
		t.Errorf("Expected the simulator's profit factor 0, got %f", metrics.ProfitFactor)
	}
	if metrics.FinalBalance != 10100 || metrics.InitialBalance != 10000 {
		t.Errorf("Unexpected balances %f -> %f", metrics.InitialBalance, metrics.FinalBalance)
	}
	if metrics.TotalReturnPct != 1 {
		t.Errorf("Expected 1%% return, got %f", metrics.TotalReturnPct)
	}
	if metrics.MaxDrawdown != 0 || len(metrics.Drawdowns) != 0 {
		t.Errorf("Expected no drawdown without an equity curve")
	}
}

func TestAnalyzePerformanceNil(t *testing.T) {
	metrics := AnalyzePerformance(nil)
	if metrics == nil || metrics.TotalTrades != 0 {
		t.Fatalf("Expected empty metrics, got %+v", metrics)
	}
}

func TestAnalyzePerformanceDrawdown(t *testing.T) {
	values := []float64{10000, 11000, 9900, 10500, 12000, 11500}
	curve := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		curve[i] = domain.EquityPoint{Timestamp: base.Add(time.Duration(i) * 5 * time.Minute), Equity: v}
	}
	result := &domain.BacktestResult{
		InitialCapital: 10000,
		FinalCapital:   11500,
		TotalReturn:    1500,
		EquityCurve:    curve,
	}

	metrics := AnalyzePerformance(result)

	if math.Abs(metrics.MaxDrawdown-0.1) > 1e-12 {
		t.Errorf("Expected 0.1 max drawdown, got %f", metrics.MaxDrawdown)
	}
	if metrics.MaxDrawdownAbs != 1100 {
		t.Errorf("Expected 1100 absolute drawdown, got %f", metrics.MaxDrawdownAbs)
	}
	if len(metrics.Drawdowns) != 2 {
		t.Fatalf("Expected 2 drawdown periods, got %d", len(metrics.Drawdowns))
	}

	first := metrics.Drawdowns[0]
	if !first.Recovered || first.Trough != 9900 || first.StartValue != 11000 {
		t.Errorf("Unexpected first drawdown: %+v", first)
	}
	if first.Duration != 10*time.Minute {
		t.Errorf("Expected 10m drawdown duration, got %v", first.Duration)
	}
	if last := metrics.Drawdowns[1]; last.Recovered || last.Trough != 11500 {
		t.Errorf("Unexpected open drawdown: %+v", last)
	}
	if want := 1500.0 / 1100.0; math.Abs(metrics.RecoveryFactor-want) > 1e-12 {
		t.Errorf("Expected recovery factor %f, got %f", want, metrics.RecoveryFactor)
	}
	if metrics.SharpeRatio == 0 {
		t.Errorf("Expected a non-zero Sharpe ratio for a moving curve")
	}
}

func TestSharpeFlatCurve(t *testing.T) {
	if got := sharpe([]float64{0, 0, 0}); got != 0 {
		t.Errorf("Expected 0 Sharpe for zero variance, got %f", got)
	}
	if got := sharpe([]float64{0.01}); got != 0 {
		t.Errorf("Expected 0 Sharpe for a single return, got %f", got)
	}
}
