package backtesting

import (
	"context"
	"fmt"
	"strings"

	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/ports"
)

// Config holds configuration for a backtest run. All percentages are fractions
// (0.02 means 2%).
type Config struct {
	InitialCapital float64
	TakeProfitPct  float64
	StopLossPct    float64
	TakerFeePct    float64
	MakerFeePct    float64
	ExecutionType  domain.ExecutionType
}

// DefaultConfig returns 10000 capital, 2% take-profit, 1% stop-loss and 0.1%
// fees filled as taker.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 10000,
		TakeProfitPct:  0.02,
		StopLossPct:    0.01,
		TakerFeePct:    0.001,
		MakerFeePct:    0.001,
		ExecutionType:  domain.ExecutionTaker,
	}
}

// Validate reports every invalid parameter at once, wrapped in ports.ErrInvalidConfiguration.
func (c Config) Validate() error {
	var errs []string
	if c.InitialCapital <= 0 {
		errs = append(errs, fmt.Sprintf("initial capital must be positive (%g)", c.InitialCapital))
	}
	if c.TakeProfitPct < 0 {
		errs = append(errs, fmt.Sprintf("take-profit cannot be negative (%g)", c.TakeProfitPct))
	}
	if c.StopLossPct < 0 {
		errs = append(errs, fmt.Sprintf("stop-loss cannot be negative (%g)", c.StopLossPct))
	}
	if c.TakerFeePct < 0 || c.MakerFeePct < 0 {
		errs = append(errs, fmt.Sprintf("fees cannot be negative (taker=%g maker=%g)", c.TakerFeePct, c.MakerFeePct))
	}
	if !c.ExecutionType.IsValid() {
		errs = append(errs, fmt.Sprintf("unknown execution type %q", c.ExecutionType))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ports.ErrInvalidConfiguration, strings.Join(errs, "; "))
	}
	return nil
}

// FeeRate returns the fee applied to every fill of the run.
func (c Config) FeeRate() float64 {
	if c.ExecutionType == domain.ExecutionMaker {
		return c.MakerFeePct
	}
	return c.TakerFeePct
}

// FilterComplete returns the rows that have every indicator line defined.
// Incomplete rows take no part in a simulation, not even as flat bars.
func FilterComplete(rows []domain.SignalRow) []domain.SignalRow {
	out := make([]domain.SignalRow, 0, len(rows))
	for _, r := range rows {
		if r.Complete() {
			out = append(out, r)
		}
	}
	return out
}

// Backtest evaluates klines with gen and simulates the resulting signals.
func Backtest(ctx context.Context, gen ports.SignalGenerator, klines []*domain.Kline, cfg Config) (*domain.BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return Run(gen.Evaluate(ctx, klines), cfg)
}

// Run walks the complete rows in order, holding at most one long position.
//
// While in a position each bar checks, first match wins: take-profit against
// the high, stop-loss against the low, then the sell flag at the close. While
// flat, a buy flag opens a position at the close using all capital. A bar that
// closes a position never opens a new one. Any position still open after the
// last bar is closed at its close with reason EndOfData.
func Run(rows []domain.SignalRow, cfg Config) (*domain.BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bars := FilterComplete(rows)
	sim := &simulator{
		cfg:     cfg,
		feeRate: cfg.FeeRate(),
		capital: cfg.InitialCapital,
		equity:  make([]domain.EquityPoint, 0, len(bars)),
	}
	for i := range bars {
		sim.step(&bars[i])
	}
	if sim.position != nil && len(bars) > 0 {
		last := &bars[len(bars)-1]
		sim.exit(last, last.Close, domain.ExitEndOfData)
	}
	return sim.result(), nil
}

// simulator is the mutable state of one run.
type simulator struct {
	cfg      Config
	feeRate  float64
	capital  float64
	position *domain.Position
	trades   []*domain.Trade
	equity   []domain.EquityPoint
}

func (s *simulator) step(bar *domain.SignalRow) {
	if s.position != nil {
		takeProfit := s.position.EntryPrice * (1 + s.cfg.TakeProfitPct)
		stopLoss := s.position.EntryPrice * (1 - s.cfg.StopLossPct)
		switch {
		case bar.High >= takeProfit:
			s.exit(bar, takeProfit, domain.ExitTakeProfit)
		case bar.Low <= stopLoss:
			s.exit(bar, stopLoss, domain.ExitStopLoss)
		case bar.SellSignal:
			s.exit(bar, bar.Close, domain.ExitSellSignal)
		}
	} else if bar.BuySignal && s.capital > 0 {
		s.enter(bar)
	}

	value := s.capital
	if s.position != nil {
		value = s.position.MarkToMarket(bar.Close)
	}
	s.equity = append(s.equity, domain.EquityPoint{Timestamp: bar.OpenTime, Equity: value})
}

// enter sizes the position so that quantity*price plus the entry fee uses
// exactly the available capital.
func (s *simulator) enter(bar *domain.SignalRow) {
	price := bar.Close
	qty := s.capital / (price * (1 + s.feeRate))
	fee := qty * price * s.feeRate
	s.position = &domain.Position{
		EntryPrice: price,
		EntryTime:  bar.OpenTime,
		Quantity:   qty,
		CostBasis:  qty*price + fee,
		EntryFee:   fee,
	}
	s.capital = 0
}

func (s *simulator) exit(bar *domain.SignalRow, price float64, reason domain.ExitReason) {
	pos := s.position
	gross := pos.Quantity * price
	fee := gross * s.feeRate
	net := gross - fee
	profit := net - pos.CostBasis

	s.trades = append(s.trades, &domain.Trade{
		EntryTime:  pos.EntryTime,
		ExitTime:   bar.OpenTime,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Quantity:   pos.Quantity,
		Profit:     profit,
		ProfitPct:  profit / pos.CostBasis * 100,
		ExitReason: reason,
		FeeEntry:   pos.EntryFee,
		FeeExit:    fee,
	})
	s.capital += net
	s.position = nil
}

func (s *simulator) result() *domain.BacktestResult {
	final := s.capital
	res := &domain.BacktestResult{
		InitialCapital: s.cfg.InitialCapital,
		FinalCapital:   final,
		TotalReturn:    final - s.cfg.InitialCapital,
		TotalReturnPct: (final/s.cfg.InitialCapital - 1) * 100,
		TotalTrades:    len(s.trades),
		Trades:         s.trades,
		EquityCurve:    s.equity,
	}
	if res.Trades == nil {
		res.Trades = []*domain.Trade{}
	}

	var grossWin, grossLoss float64
	for _, t := range s.trades {
		if t.IsWin() {
			res.WinningTrades++
			grossWin += t.Profit
		} else {
			res.LosingTrades++
			grossLoss += t.Profit
		}
	}
	if res.TotalTrades > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades) * 100
	}
	if res.WinningTrades > 0 {
		res.AvgProfit = grossWin / float64(res.WinningTrades)
	}
	if res.LosingTrades > 0 {
		res.AvgLoss = grossLoss / float64(res.LosingTrades)
	}
	// No losses means no divisor; report 0 rather than infinity.
	if grossLoss != 0 {
		res.ProfitFactor = grossWin / -grossLoss
	}
	return res
}
