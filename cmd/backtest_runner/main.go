package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"ichimokuBot/config"
	"ichimokuBot/internal/adapters/logger"
	"ichimokuBot/internal/adapters/sqlite"
	"ichimokuBot/internal/adapters/storage"
	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/marketdata"
	"ichimokuBot/internal/ports"
	"ichimokuBot/internal/strategy"
	"ichimokuBot/internal/strategy/analytics"
	"ichimokuBot/internal/strategy/backtesting"
	"ichimokuBot/internal/utils"
)

func main() {
	csvPath := flag.String("csv", "", "kline CSV to backtest (default: read from the configured store)")
	days := flag.Int("days", 30, "days of stored klines to load when -csv is not set")
	resample := flag.String("resample", "5m", "interval to resample the klines to, empty to use them as is")
	out := flag.String("out", "data", "directory for signal, trade and equity CSVs, empty to skip")
	persist := flag.Bool("persist", true, "save the run and its trades in the SQLite database")
	tp := flag.Float64("tp", -1, "take-profit fraction (overrides TAKE_PROFIT_PCT)")
	sl := flag.Float64("sl", -1, "stop-loss fraction (overrides STOP_LOSS_PCT)")
	execType := flag.String("exec", "", "execution type taker|maker (overrides EXECUTION_TYPE)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	btCfg := cfg.BacktestConfig()
	if *tp >= 0 {
		btCfg.TakeProfitPct = *tp
	}
	if *sl >= 0 {
		btCfg.StopLossPct = *sl
	}
	if *execType != "" {
		btCfg.ExecutionType = domain.ExecutionType(*execType)
	}
	if err := btCfg.Validate(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// 2. Load klines
	klines, err := loadKlines(ctx, cfg, appLogger, *csvPath, *days)
	if err != nil {
		appLogger.Error(ctx, err, "Error loading klines")
		log.Fatalf("Error loading klines: %v", err)
	}
	interval := cfg.BaseInterval
	if len(klines) > 0 && klines[0].Interval != "" {
		interval = klines[0].Interval
	}
	if *resample != "" && *resample != interval {
		d, err := marketdata.ParseInterval(*resample)
		if err != nil {
			log.Fatalf("Invalid -resample: %v", err)
		}
		klines, err = marketdata.Resample(klines, d, *resample)
		if err != nil {
			log.Fatalf("Error resampling klines: %v", err)
		}
		interval = *resample
	}
	if len(klines) == 0 {
		log.Fatalf("No klines to backtest")
	}
	appLogger.Info(ctx, "Loaded klines", map[string]interface{}{
		"count":    len(klines),
		"interval": interval,
		"from":     klines[0].OpenTime.Format(time.RFC3339),
		"to":       klines[len(klines)-1].OpenTime.Format(time.RFC3339),
	})

	// 3. Run indicator, signals and simulator
	strat, err := strategy.New(strategy.Config{Ichimoku: cfg.IchimokuConfig()}, appLogger)
	if err != nil {
		log.Fatalf("Failed to create strategy: %v", err)
	}
	rows := strat.Evaluate(ctx, klines)
	result, err := backtesting.Run(rows, btCfg)
	if err != nil {
		appLogger.Error(ctx, err, "Backtest error")
		log.Fatalf("Backtest error: %v", err)
	}
	metrics := analytics.AnalyzePerformance(result)
	printReport(cfg.Symbol, interval, btCfg, metrics)
	if last, ok := strategy.LastSignal(rows); ok {
		side := domain.Buy
		if !last.BuySignal {
			side = domain.Sell
		}
		fmt.Printf("\nLatest signal: %s at %s (close %.2f)\n", side, last.OpenTime.Format(time.RFC3339), last.Close)
	}

	// 4. Write CSVs
	if *out != "" {
		if err := writeOutputs(*out, cfg.Symbol, interval, rows, result); err != nil {
			appLogger.Error(ctx, err, "Error writing CSV output")
		} else {
			appLogger.Info(ctx, "Results saved", map[string]interface{}{"dir": *out})
		}
	}

	// 5. Persist the run
	if *persist {
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Symbol: cfg.Symbol, Logger: appLogger})
		if err != nil {
			log.Fatalf("FATAL: Failed to open SQLite database: %v", err)
		}
		defer repo.Close()

		ichi := cfg.IchimokuConfig()
		runID, err := repo.SaveBacktest(ctx, &domain.BacktestRun{
			Symbol:        cfg.Symbol,
			Interval:      interval,
			StartTime:     klines[0].OpenTime,
			EndTime:       klines[len(klines)-1].OpenTime,
			TenkanPeriod:  ichi.TenkanPeriod,
			KijunPeriod:   ichi.KijunPeriod,
			SenkouBPeriod: ichi.SenkouBPeriod,
			Offset:        ichi.Offset,
			TakeProfitPct: btCfg.TakeProfitPct,
			StopLossPct:   btCfg.StopLossPct,
			FeeRate:       btCfg.FeeRate(),
			ExecutionType: btCfg.ExecutionType,
		}, result)
		if err != nil {
			appLogger.Error(ctx, err, "Error saving backtest run")
			return
		}
		appLogger.Info(ctx, "Backtest run saved", map[string]interface{}{"runID": runID, "db": cfg.DBPath})
	}
}

func loadKlines(ctx context.Context, cfg *config.Config, appLogger ports.Logger, csvPath string, days int) ([]*domain.Kline, error) {
	if csvPath != "" {
		klines, err := utils.ReadKlinesFromCSV(csvPath)
		if err != nil {
			return nil, err
		}
		return marketdata.Normalize(klines), nil
	}

	repo, err := storage.Open(storage.Options{
		Backend:     cfg.StorageBackend,
		DBPath:      cfg.DBPath,
		PostgresDSN: cfg.PostgresDSN,
		Symbol:      cfg.Symbol,
	}, appLogger)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	to := time.Now().UTC()
	return repo.FindKlinesRange(ctx, to.AddDate(0, 0, -days), to)
}

func writeOutputs(dir, symbol, interval string, rows []domain.SignalRow, result *domain.BacktestResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := utils.WriteSignalRowsToCSV(rows, filepath.Join(dir, utils.SignalsFileName(symbol, interval))); err != nil {
		return err
	}
	if len(result.Trades) > 0 {
		if err := utils.WriteTradesToCSV(result.Trades, filepath.Join(dir, utils.TradesFileName(symbol, interval))); err != nil {
			return err
		}
	}
	return utils.WriteEquityCurveToCSV(result.EquityCurve, filepath.Join(dir, utils.EquityFileName(symbol, interval)))
}

func printReport(symbol, interval string, cfg backtesting.Config, m *analytics.PerformanceMetrics) {
	fmt.Printf("\nIchimoku backtest %s %s (tp=%.2f%% sl=%.2f%% fee=%.3f%% %s)\n\n",
		symbol, interval, cfg.TakeProfitPct*100, cfg.StopLossPct*100, cfg.FeeRate()*100, cfg.ExecutionType)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Initial capital:\t%.2f\n", m.InitialBalance)
	fmt.Fprintf(w, "Final capital:\t%.2f\n", m.FinalBalance)
	fmt.Fprintf(w, "Total return:\t%.2f (%.2f%%)\n", m.TotalProfit, m.TotalReturnPct)
	fmt.Fprintf(w, "Trades:\t%d (won %d, lost %d)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	fmt.Fprintf(w, "Win rate:\t%.2f%%\n", m.WinRate)
	fmt.Fprintf(w, "Average win / loss:\t%.2f / %.2f\n", m.AverageWin, m.AverageLoss)
	fmt.Fprintf(w, "Profit factor:\t%.2f\n", m.ProfitFactor)
	fmt.Fprintf(w, "Max drawdown:\t%.2f%% (%.2f)\n", m.MaxDrawdown*100, m.MaxDrawdownAbs)
	fmt.Fprintf(w, "Expectancy:\t%.2f\n", m.Expectancy)
	fmt.Fprintf(w, "Sharpe (per bar):\t%.4f\n", m.SharpeRatio)
	fmt.Fprintf(w, "Fees paid:\t%.2f\n", m.TotalFees)
	fmt.Fprintf(w, "Avg holding time:\t%s\n", m.AverageHoldingTime)
	fmt.Fprintf(w, "Max consecutive wins / losses:\t%d / %d\n", m.MaxConsecutiveWins, m.MaxConsecutiveLosses)
	w.Flush()

	if len(m.ExitReasons) > 0 {
		fmt.Println("\nExit reasons")
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "Reason\tCount\tProfit\tAvg\t")
		for _, reason := range domain.ExitReasons() {
			s, ok := m.ExitReasons[reason]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t\n", reason, s.Count, s.TotalProfit, s.AvgProfit)
		}
		w.Flush()
	}

	if monthly := m.GetMonthlyReturns(); len(monthly) > 0 {
		fmt.Println("\nMonthly profit")
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		for _, r := range monthly {
			fmt.Fprintf(w, "%s\t%.2f\t\n", r.Month.Format("2006-01"), r.Return)
		}
		w.Flush()
	}
}
