package optimization

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/ports"
	"ichimokuBot/internal/strategy"
	"ichimokuBot/internal/strategy/analytics"
	"ichimokuBot/internal/strategy/backtesting"
	"ichimokuBot/internal/strategy/indicators"
)

// Grid lists the candidate values of every tunable. An empty list keeps the
// base value for that tunable.
type Grid struct {
	TakeProfitPct []float64 `yaml:"take_profit_pct"`
	StopLossPct   []float64 `yaml:"stop_loss_pct"`
	TenkanPeriod  []int     `yaml:"tenkan_period"`
	KijunPeriod   []int     `yaml:"kijun_period"`
	SenkouBPeriod []int     `yaml:"senkou_b_period"`
	Offset        []int     `yaml:"offset"`
}

// Params is one point of the grid.
type Params struct {
	Ichimoku      indicators.IchimokuConfig
	TakeProfitPct float64
	StopLossPct   float64
}

func (p Params) String() string {
	return fmt.Sprintf("tenkan=%d kijun=%d senkouB=%d offset=%d tp=%g sl=%g",
		p.Ichimoku.TenkanPeriod, p.Ichimoku.KijunPeriod, p.Ichimoku.SenkouBPeriod, p.Ichimoku.Offset,
		p.TakeProfitPct, p.StopLossPct)
}

// less orders parameter sets field by field so that ties in score sort the same
// way on every run.
func (p Params) less(o Params) bool {
	a := []float64{float64(p.Ichimoku.TenkanPeriod), float64(p.Ichimoku.KijunPeriod), float64(p.Ichimoku.SenkouBPeriod), float64(p.Ichimoku.Offset), p.TakeProfitPct, p.StopLossPct}
	b := []float64{float64(o.Ichimoku.TenkanPeriod), float64(o.Ichimoku.KijunPeriod), float64(o.Ichimoku.SenkouBPeriod), float64(o.Ichimoku.Offset), o.TakeProfitPct, o.StopLossPct}
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Combinations expands the grid around base. Offsets vary slowest and
// stop-loss fastest.
func (g Grid) Combinations(base Params) []Params {
	ints := func(vals []int, def int) []int {
		if len(vals) == 0 {
			return []int{def}
		}
		return vals
	}
	floats := func(vals []float64, def float64) []float64 {
		if len(vals) == 0 {
			return []float64{def}
		}
		return vals
	}

	var out []Params
	for _, off := range ints(g.Offset, base.Ichimoku.Offset) {
		for _, tenkan := range ints(g.TenkanPeriod, base.Ichimoku.TenkanPeriod) {
			for _, kijun := range ints(g.KijunPeriod, base.Ichimoku.KijunPeriod) {
				for _, senkouB := range ints(g.SenkouBPeriod, base.Ichimoku.SenkouBPeriod) {
					for _, tp := range floats(g.TakeProfitPct, base.TakeProfitPct) {
						for _, sl := range floats(g.StopLossPct, base.StopLossPct) {
							out = append(out, Params{
								Ichimoku: indicators.IchimokuConfig{
									TenkanPeriod:  tenkan,
									KijunPeriod:   kijun,
									SenkouBPeriod: senkouB,
									Offset:        off,
								},
								TakeProfitPct: tp,
								StopLossPct:   sl,
							})
						}
					}
				}
			}
		}
	}
	return out
}

// OptimizationResult holds the outcome of one parameter set.
type OptimizationResult struct {
	Parameters Params
	Result     *domain.BacktestResult
	Metrics    *analytics.PerformanceMetrics
	Score      float64
}

// OptimizerConfig holds configuration for the optimizer
type OptimizerConfig struct {
	Grid          Grid
	Base          Params
	Backtest      backtesting.Config // Capital, fees and execution type; TP/SL come from the grid
	Workers       int                // Concurrent runs; defaults to GOMAXPROCS
	ScoreFunction func(*analytics.PerformanceMetrics) float64
}

// Optimizer sweeps a parameter grid over one kline series.
type Optimizer struct {
	config OptimizerConfig
	logger ports.Logger
}

// NewOptimizer creates a new optimizer instance
func NewOptimizer(config OptimizerConfig, logger ports.Logger) (*Optimizer, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for optimizer")
	}
	if config.ScoreFunction == nil {
		config.ScoreFunction = DefaultScoreFunction
	}
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	return &Optimizer{config: config, logger: logger}, nil
}

// Optimize runs every grid combination against klines and returns the results
// sorted by score, best first. Combinations with invalid parameters are skipped.
// Cancelling ctx stops scheduling new runs and returns the context error.
func (o *Optimizer) Optimize(ctx context.Context, klines []*domain.Kline) ([]OptimizationResult, error) {
	combinations := o.config.Grid.Combinations(o.config.Base)
	results := make([]*OptimizationResult, len(combinations))

	o.logger.Info(ctx, "Starting parameter sweep", map[string]interface{}{
		"combinations": len(combinations),
		"workers":      o.config.Workers,
		"bars":         len(klines),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)
	for i, params := range combinations {
		i, params := i, params
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := o.evaluate(gctx, params, klines)
			if err != nil {
				o.logger.Warn(gctx, "Skipping parameter set", map[string]interface{}{
					"params": params.String(),
					"error":  err.Error(),
				})
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]OptimizationResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	sortResultsByScore(out)

	o.logger.Info(ctx, "Parameter sweep finished", map[string]interface{}{
		"evaluated": len(out),
	})
	return out, nil
}

func (o *Optimizer) evaluate(ctx context.Context, params Params, klines []*domain.Kline) (*OptimizationResult, error) {
	strat, err := strategy.New(strategy.Config{Ichimoku: params.Ichimoku}, o.logger)
	if err != nil {
		return nil, err
	}

	cfg := o.config.Backtest
	cfg.TakeProfitPct = params.TakeProfitPct
	cfg.StopLossPct = params.StopLossPct

	result, err := backtesting.Backtest(ctx, strat, klines, cfg)
	if err != nil {
		return nil, err
	}
	metrics := analytics.AnalyzePerformance(result)
	return &OptimizationResult{
		Parameters: params,
		Result:     result,
		Metrics:    metrics,
		Score:      o.config.ScoreFunction(metrics),
	}, nil
}

// sortResultsByScore sorts optimization results by score in descending order
func sortResultsByScore(results []OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Parameters.less(results[j].Parameters)
	})
}

// DefaultScoreFunction ranks by total return, penalised by the worst drawdown.
func DefaultScoreFunction(metrics *analytics.PerformanceMetrics) float64 {
	return metrics.TotalReturnPct - metrics.MaxDrawdown*100
}
