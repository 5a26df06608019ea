package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"ichimokuBot/config"
	"ichimokuBot/internal/adapters/logger"
	"ichimokuBot/internal/marketdata"
	"ichimokuBot/internal/strategy/optimization"
	"ichimokuBot/internal/utils"
)

func main() {
	csvPath := flag.String("csv", "", "kline CSV to sweep (required)")
	gridPath := flag.String("grid", "grid.yaml", "YAML file with the parameter grid")
	resample := flag.String("resample", "5m", "interval to resample the klines to, empty to use them as is")
	top := flag.Int("top", 10, "number of best parameter sets to print")
	workers := flag.Int("workers", 0, "concurrent backtests (0 = GOMAXPROCS)")
	flag.Parse()

	if *csvPath == "" {
		log.Fatalf("-csv is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	grid, err := config.LoadGrid(*gridPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load grid: %v", err)
	}

	klines, err := utils.ReadKlinesFromCSV(*csvPath)
	if err != nil {
		log.Fatalf("Error reading klines: %v", err)
	}
	klines = marketdata.Normalize(klines)
	if *resample != "" {
		d, err := marketdata.ParseInterval(*resample)
		if err != nil {
			log.Fatalf("Invalid -resample: %v", err)
		}
		if klines, err = marketdata.Resample(klines, d, *resample); err != nil {
			log.Fatalf("Error resampling klines: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opt, err := optimization.NewOptimizer(optimization.OptimizerConfig{
		Grid:     grid,
		Base:     cfg.OptimizerBase(),
		Backtest: cfg.BacktestConfig(),
		Workers:  *workers,
	}, appLogger)
	if err != nil {
		log.Fatalf("Failed to create optimizer: %v", err)
	}

	results, err := opt.Optimize(ctx, klines)
	if err != nil {
		log.Fatalf("Optimization stopped: %v", err)
	}
	if len(results) == 0 {
		log.Println("No parameter set produced a result.")
		return
	}
	if *top > 0 && len(results) > *top {
		results = results[:*top]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Rank\tTenkan\tKijun\tSenkouB\tOffset\tTP%\tSL%\tTrades\tWinRate\tReturn%\tMaxDD%\tScore\t")
	for i, r := range results {
		p := r.Parameters
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%.2f\t%.2f\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			i+1,
			p.Ichimoku.TenkanPeriod, p.Ichimoku.KijunPeriod, p.Ichimoku.SenkouBPeriod, p.Ichimoku.Offset,
			p.TakeProfitPct*100, p.StopLossPct*100,
			r.Metrics.TotalTrades,
			r.Metrics.WinRate,
			r.Metrics.TotalReturnPct,
			r.Metrics.MaxDrawdown*100,
			r.Score,
		)
	}
	w.Flush()
}
