package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"ichimokuBot/internal/adapters/logger"
	"ichimokuBot/internal/adapters/sqlite"
	"ichimokuBot/internal/domain"
	"ichimokuBot/internal/strategy/analytics"
	"ichimokuBot/internal/utils"
)

const tradesSuffix = "_backtest_trades.csv"

func main() {
	dir := flag.String("dir", "data", "directory holding *"+tradesSuffix+" files")
	dbPath := flag.String("db", "", "SQLite database to read a saved run from")
	runID := flag.Int64("run", 0, "backtest run ID to analyze (requires -db)")
	flag.Parse()

	sets := map[string][]*domain.Trade{}
	if *runID > 0 {
		if *dbPath == "" {
			log.Fatalf("-run requires -db")
		}
		trades, err := loadRun(*dbPath, *runID)
		if err != nil {
			log.Fatalf("Error loading run %d: %v", *runID, err)
		}
		sets[fmt.Sprintf("run #%d", *runID)] = trades
	} else {
		files, err := findBacktestFiles(*dir)
		if err != nil {
			log.Fatalf("Error finding backtest files: %v", err)
		}
		if len(files) == 0 {
			log.Println("No backtest files found. Run the backtest runner first.")
			return
		}
		for _, file := range files {
			trades, err := utils.ReadTradesFromCSV(file)
			if err != nil {
				log.Printf("Error reading trades from %s: %v", file, err)
				continue
			}
			sets[filepath.Base(file)] = trades
		}
	}

	names := make([]string, 0, len(sets))
	for name := range sets {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make(map[string]*analytics.PerformanceMetrics, len(sets))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Source\tTrades\tWinRate\tAvgWin\tAvgLoss\tTotalPnL\tFees\tPF\tExpectancy\t")
	for _, name := range names {
		m := analytics.SummarizeTrades(sets[name])
		summaries[name] = m
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			name,
			m.TotalTrades,
			m.WinRate,
			m.AverageWin,
			m.AverageLoss,
			m.TotalProfit,
			m.TotalFees,
			m.ProfitFactor,
			m.Expectancy,
		)
	}
	w.Flush()

	fmt.Println("\n## Exit Reasons")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Source\tReason\tCount\tShare%\tTotalPnL\tAvgPnL\t")
	for _, name := range names {
		m := summaries[name]
		for _, reason := range domain.ExitReasons() {
			s, ok := m.ExitReasons[reason]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%.1f\t%.2f\t%.2f\t\n",
				name, reason, s.Count, float64(s.Count)/float64(m.TotalTrades)*100, s.TotalProfit, s.AvgProfit)
		}
	}
	w.Flush()
}

func loadRun(dbPath string, runID int64) ([]*domain.Trade, error) {
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: dbPath,
		Logger: logger.NewStdLogger(logger.LevelWarn),
	})
	if err != nil {
		return nil, err
	}
	defer repo.Close()
	return repo.FindBacktestTrades(context.Background(), runID)
}

func findBacktestFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), tradesSuffix) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
