package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"trading-advisor-bot/config"
	"trading-advisor-bot/internal/api"
	"trading-advisor-bot/internal/auth"
	"trading-advisor-bot/internal/events"
	"trading-advisor-bot/internal/logging"
	"trading-advisor-bot/internal/market"
	"trading-advisor-bot/internal/notify"
	"trading-advisor-bot/internal/orchestrator"
	"trading-advisor-bot/internal/planner"
	"trading-advisor-bot/internal/screener"
	"trading-advisor-bot/internal/store"
	"trading-advisor-bot/internal/tracker"
	"trading-advisor-bot/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("failed to load configuration", "error", err)
	}

	logging.SetDefault(logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
	}))
	logger := logging.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Vault runs before validation so loaded secrets count as configured.
	vaultClient, err := vault.NewClient(cfg.VaultConfig, nil)
	if err != nil {
		logger.Fatal("failed to create vault client", "error", err)
	}
	if vaultClient != nil {
		secrets, err := vaultClient.LoadSecrets(ctx)
		if err != nil {
			logger.Fatal("failed to load vault secrets", "error", err)
		}
		secrets.Apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	zl := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := store.NewDB(ctx, cfg.DatabaseConfig, zl.With().Str("component", "store").Logger())
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal("failed to run migrations", "error", err)
	}

	repo := store.NewRepository(db, zl.With().Str("component", "store").Logger())
	track := tracker.New(db, zl.With().Str("component", "tracker").Logger())

	limiter := market.NewPaceLimiter(map[market.Exchange]time.Duration{
		market.ExchangeBinance: cfg.ExchangeConfig.BinanceMinGap,
		market.ExchangeBybit:   cfg.ExchangeConfig.BybitMinGap,
	})

	var cache *market.DiskCache
	if cfg.CacheConfig.Enabled {
		cache = market.NewDiskCache(cfg.CacheConfig.Root, logging.WithComponent("cache"))
	}

	fetcher := market.NewFetcher(map[market.Exchange]market.ExchangeClient{
		market.ExchangeBinance: market.NewBinanceClient(
			cfg.ExchangeConfig.BinanceSpotURL, cfg.ExchangeConfig.BinanceFutURL,
			cfg.ExchangeConfig.RequestTimeout, limiter),
		market.ExchangeBybit: market.NewBybitClient(
			cfg.ExchangeConfig.BybitURL, cfg.ExchangeConfig.RequestTimeout, limiter),
	}, cache, logging.WithComponent("market"))

	llmGate := planner.NewGate(cfg.LLMConfig.MinInterval)
	llmClient := planner.NewClient(&planner.ClientConfig{
		APIKey:      cfg.LLMConfig.APIKey,
		BaseURL:     cfg.LLMConfig.BaseURL,
		Model:       cfg.LLMConfig.Model,
		MaxTokens:   cfg.LLMConfig.MaxTokens,
		Temperature: cfg.LLMConfig.Temperature,
		Timeout:     cfg.LLMConfig.Timeout,
	}, llmGate)
	if !llmClient.IsConfigured() {
		logger.Warn("LLM API key missing, plan generation and quick scores will fail soft")
	}

	generator := planner.NewGenerator(llmClient, fetcher, logging.WithComponent("planner"))

	scoreCache := screener.NewScoreCache(cfg.RedisConfig, logging.WithComponent("screener-cache"))
	defer scoreCache.Close()

	sc := screener.New(cfg.ScreenerConfig, fetcher, llmClient, scoreCache, logging.WithComponent("screener"))

	notifier := notify.NewManager()
	notifier.AddNotifier(notify.NewTelegramNotifier(
		cfg.TelegramConfig.BotToken, cfg.TelegramConfig.BaseURL, logging.WithComponent("telegram")))

	bus := events.NewEventBus()

	orch := orchestrator.New(
		cfg.SchedulerConfig, cfg.ScreenerConfig,
		fetcher, generator, sc, track, repo, notifier, bus,
		logging.WithComponent("orchestrator"))
	orch.Start()

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg.ServerConfig, orch, track,
			auth.NewService(cfg.AuthConfig), bus, logging.WithComponent("api"))
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("api server stopped", "error", err)
			}
		}()
	}

	logger.Info("trading advisor bot started")
	<-ctx.Done()
	logger.Info("shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("api shutdown error", "error", err)
		}
		cancel()
	}
	orch.Stop()

	logger.Info("shutdown complete")
}
