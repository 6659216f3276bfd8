package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/coinsentry/engine/internal/api"
	"github.com/coinsentry/engine/internal/coingecko"
	"github.com/coinsentry/engine/internal/config"
	"github.com/coinsentry/engine/internal/cooldown"
	"github.com/coinsentry/engine/internal/detector"
	"github.com/coinsentry/engine/internal/evaluator"
	"github.com/coinsentry/engine/internal/logger"
	"github.com/coinsentry/engine/internal/pipeline"
	"github.com/coinsentry/engine/internal/research"
	"github.com/coinsentry/engine/internal/store"
	"github.com/coinsentry/engine/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// Secrets come from the environment; .env is a local convenience.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	// Initialize storage
	st, err := store.Connect(store.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MaxIdle:  cfg.Database.MaxIdle,
	})
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	// Initialize the alert cooldown guard
	var guard pipeline.Guard
	if cfg.Redis.Enabled {
		redisGuard, err := cooldown.NewRedisGuard(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Alerts.Cooldown)
		if err != nil {
			logger.Fatal("Failed to initialize Redis cooldown guard: %v", err)
		}
		defer func() {
			if err := redisGuard.Close(); err != nil {
				logger.Error("Failed to close Redis connection: %v", err)
			}
		}()
		guard = redisGuard
	} else {
		logger.Debug("Redis disabled, using in-memory cooldown guard")
		memGuard := cooldown.NewMemoryGuard(cfg.Alerts.Cooldown)
		// Re-seed from persisted events so a restart does not re-alert
		// coins still inside the cooldown window.
		seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
		recent, err := st.RecentMoverCoinIDs(seedCtx, time.Now().Add(-cfg.Alerts.Cooldown))
		seedCancel()
		if err != nil {
			logger.Warn("Failed to seed cooldown guard: %v", err)
		} else {
			memGuard.Seed(recent)
		}
		guard = memGuard
	}

	// Initialize market data client
	marketClient := coingecko.NewClient(
		cfg.Market.APIBaseURL,
		cfg.Market.APIKey,
		cfg.Market.Timeout,
		coingecko.ClientConfig{
			PageSize:       cfg.Market.PageSize,
			PageDelay:      cfg.Market.PageDelay,
			MaxRetries:     cfg.Market.MaxRetries,
			RetryDelayBase: cfg.Market.RetryDelayBase,
		},
	)

	// Initialize Telegram client
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase, cfg.Telegram.SendDelay)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	// Initialize research client
	var researcher pipeline.Researcher
	if cfg.Research.Enabled {
		researcher = research.NewClient(research.Config{
			APIBaseURL:  cfg.Research.APIBaseURL,
			APIKey:      cfg.Research.APIKey,
			Model:       cfg.Research.Model,
			MaxTokens:   cfg.Research.MaxTokens,
			MaxAttempts: cfg.Research.MaxAttempts,
		})
		logger.Info("Research enrichment enabled (model: %s)", cfg.Research.Model)
	} else {
		logger.Debug("Research enrichment disabled")
	}

	var dispatcher pipeline.Dispatcher
	if telegramClient != nil {
		dispatcher = telegramClient
	}

	collector := pipeline.New(marketClient, st, guard, dispatcher, researcher, pipeline.Config{
		MaxCoins: cfg.Market.MaxCoins,
		Detector: detector.Config{
			PriceThreshold:  cfg.Detector.PriceThreshold,
			VolumeThreshold: cfg.Detector.VolumeThreshold,
		},
		HistoryDays:       cfg.Prediction.HistoryDays,
		HorizonHours:      cfg.Prediction.HorizonHours,
		PredictionMovers:  cfg.Prediction.TopMovers,
		AlertMovers:       cfg.Alerts.TopMovers,
		ResearchMovers:    cfg.Alerts.TopResearch,
		MaxResearchPerDay: cfg.Alerts.MaxResearchPerDay,
	})

	eval := evaluator.New(st, marketClient,
		time.Duration(cfg.Prediction.HorizonHours)*time.Hour, cfg.Evaluator.PartialBand)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	// Start the read API
	if cfg.HTTP.Enabled {
		startAPIServer(ctx, st, cfg.HTTP.ListenAddr, cfg.Logging.Level)
	}

	// Start the collection loop
	logger.Info("Starting collection service (interval: %v, threshold: %.0f%%, horizon: %dh, cooldown: %v)",
		cfg.Market.PollInterval,
		cfg.Detector.PriceThreshold*100,
		cfg.Prediction.HorizonHours,
		cfg.Alerts.Cooldown,
	)

	collectTicker := time.NewTicker(cfg.Market.PollInterval)
	defer collectTicker.Stop()

	evalTicker := time.NewTicker(cfg.Evaluator.Interval)
	defer evalTicker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Collection cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err.Error()); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	// Run initial pass immediately
	logger.Debug("Running initial collection cycle")
	handleCycleResult(runCollectionCycle(ctx, collector, time.Now()))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case tickTime := <-collectTicker.C:
			logger.Debug("Starting scheduled collection cycle")
			handleCycleResult(runCollectionCycle(ctx, collector, tickTime))

		case tickTime := <-evalTicker.C:
			logger.Debug("Starting prediction evaluation")
			if _, err := eval.Run(ctx, tickTime); err != nil {
				logger.Error("Prediction evaluation failed: %v", err)
			}
		}
	}
}

func runCollectionCycle(ctx context.Context, collector *pipeline.Collector, cycleTime time.Time) error {
	startTime := time.Now()
	logger.Info("Starting collection cycle")

	result, err := collector.Run(ctx, cycleTime)
	if err != nil {
		return err
	}

	logger.Info("Collection cycle completed in %v (%d coins, %d movers, %d alerted, %d predictions, %d researched)",
		time.Since(startTime),
		result.CoinsTracked,
		result.MoversDetected,
		result.MoversAlerted,
		result.PredictionsMade,
		result.Researched,
	)
	return nil
}

func startAPIServer(ctx context.Context, st *store.Store, addr, logLevel string) {
	if logLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.NewHandler(st).RegisterRoutes(router)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Read API listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("API server shutdown: %v", err)
		}
	}()
}
