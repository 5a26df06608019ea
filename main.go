package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ichimokuBot/config"
	"ichimokuBot/internal/adapters/binanceclient"
	"ichimokuBot/internal/adapters/logger"
	"ichimokuBot/internal/adapters/storage"
	"ichimokuBot/internal/app"
	"ichimokuBot/internal/marketdata"
	"ichimokuBot/internal/metrics"
	"ichimokuBot/internal/risk"
	"ichimokuBot/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogBackend, cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	if z, ok := appLogger.(*logger.ZapLogger); ok {
		defer z.Sync()
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{
		"level":   cfg.LogLevel.String(),
		"backend": cfg.LogBackend,
	})

	// Cancel everything on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Repository (Database Adapter)
	repo, err := storage.Open(storage.Options{
		Backend:     cfg.StorageBackend,
		DBPath:      cfg.DBPath,
		PostgresDSN: cfg.PostgresDSN,
		Symbol:      cfg.Symbol,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized", map[string]interface{}{"backend": cfg.StorageBackend})

	// 4. Initialize Exchange Client (Binance Adapter)
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
	if err := binanceClient.Ping(ctx); err != nil {
		appLogger.Warn(ctx, "Binance ping failed, continuing", map[string]interface{}{"error": err.Error()})
	}
	appLogger.Info(ctx, "Binance client initialized", map[string]interface{}{"testnet": cfg.IsTestnet})

	// 5. Initialize Strategy
	strat, err := strategy.New(strategy.Config{Ichimoku: cfg.IchimokuConfig()}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading strategy")
		log.Fatalf("FATAL: Failed to initialize trading strategy: %v", err)
	}
	appLogger.Info(ctx, "Ichimoku strategy initialized", map[string]interface{}{
		"tenkan":  cfg.TenkanPeriod,
		"kijun":   cfg.KijunPeriod,
		"senkouB": cfg.SenkouBPeriod,
		"offset":  cfg.Offset,
	})

	// 6. Metrics and health endpoints
	appMetrics := metrics.New("ichimoku")
	signalDur, _ := marketdata.ParseInterval(cfg.SignalInterval) // validated by LoadConfig
	health := metrics.NewHealth(3 * signalDur)
	metricsServer := metrics.NewServer(cfg.MetricsAddr, appMetrics, health)
	serverErrs := make(chan error, 1)
	metricsServer.Start(serverErrs)
	appLogger.Info(ctx, "Metrics server started", map[string]interface{}{"addr": cfg.MetricsAddr})

	// 7. Initialize Pipeline
	pipeline, err := app.NewPipeline(app.PipelineConfig{
		Symbol:               cfg.Symbol,
		BaseInterval:         cfg.BaseInterval,
		SignalInterval:       cfg.SignalInterval,
		LookbackBars:         cfg.LookbackBars,
		SettleDelay:          cfg.SettleDelay,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
	}, appLogger, binanceClient, repo, strat, appMetrics, health)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize pipeline")
		log.Fatalf("FATAL: Failed to initialize pipeline: %v", err)
	}

	// 8. Run the pipeline, and the trader when enabled
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipeline.Run(gctx) })

	if cfg.TradingEnabled {
		guard, err := risk.NewManager(cfg.RiskConfig())
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize risk manager")
			log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
		}
		trader, err := app.NewTradingService(app.TraderConfig{
			Symbol:       cfg.Symbol,
			PollInterval: cfg.TraderPollInterval,
			DryRun:       cfg.DryRun,
		}, appLogger, binanceClient, repo, guard, appMetrics)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
			log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
		}
		g.Go(func() error { return trader.Start(gctx) })
		appLogger.Info(ctx, "Trading service initialized", map[string]interface{}{"dryRun": cfg.DryRun})
	}

	g.Go(func() error {
		select {
		case err := <-serverErrs:
			return err
		case <-gctx.Done():
			return nil
		}
	})

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, err, "Error stopping metrics server")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		appLogger.Error(context.Background(), runErr, "Application exited with error")
		os.Exit(1)
	}
	appLogger.Info(context.Background(), "Application finished gracefully.")
}
