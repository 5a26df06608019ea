package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"ichimokuBot/config"
	"ichimokuBot/internal/adapters/binanceclient"
	"ichimokuBot/internal/adapters/logger"
	"ichimokuBot/internal/adapters/storage"
	"ichimokuBot/internal/marketdata"
	"ichimokuBot/internal/utils"
)

func main() {
	symbolFlag := flag.String("symbol", "", "trading pair (defaults to SYMBOL)")
	interval := flag.String("interval", "1m", "kline interval")
	days := flag.Int("days", 30, "number of days of history to fetch")
	out := flag.String("out", "data", "directory for the CSV file, empty to skip")
	toStore := flag.Bool("store", false, "also upsert the klines into the configured store")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	symbol := cfg.Symbol
	if *symbolFlag != "" {
		symbol = *symbolFlag
	}
	if *days <= 0 {
		log.Fatalf("FATAL: -days must be positive")
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:            cfg.APIKey,
		SecretKey:         cfg.SecretKey,
		UseTestnet:        cfg.IsTestnet,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Logger:            appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -*days)

	fmt.Printf("Fetching klines for %s %s from %s to %s...\n", symbol, *interval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	klines, err := binanceClient.GetKlinesRange(ctx, symbol, *interval, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching klines")
		log.Fatalf("Error fetching klines: %v", err)
	}
	klines = marketdata.DropOpen(marketdata.Normalize(klines), end)
	appLogger.Info(ctx, "Fetched klines", map[string]interface{}{"count": len(klines)})
	if len(klines) == 0 {
		return
	}

	if *out != "" {
		if err := os.MkdirAll(*out, 0o755); err != nil {
			log.Fatalf("Error creating output directory: %v", err)
		}
		filename := filepath.Join(*out, fmt.Sprintf("%s_%s_%s_to_%s.csv", symbol, *interval, start.Format("20060102"), end.Format("20060102")))
		if err := utils.WriteKlinesToCSV(klines, filename); err != nil {
			appLogger.Error(ctx, err, "Error writing CSV")
			log.Fatalf("Error writing CSV: %v", err)
		}
		appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
	}

	if *toStore {
		if *interval != cfg.BaseInterval {
			log.Fatalf("-store only accepts the base interval %s", cfg.BaseInterval)
		}
		repo, err := storage.Open(storage.Options{
			Backend:     cfg.StorageBackend,
			DBPath:      cfg.DBPath,
			PostgresDSN: cfg.PostgresDSN,
			Symbol:      symbol,
		}, appLogger)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
		}
		defer repo.Close()
		if err := repo.UpsertKlines(ctx, klines); err != nil {
			appLogger.Error(ctx, err, "Error storing klines")
			return
		}
		appLogger.Info(ctx, "Stored klines", map[string]interface{}{"backend": cfg.StorageBackend, "count": len(klines)})
	}
}
