package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salesbot/internal/cache"
	"salesbot/internal/channel"
	"salesbot/internal/config"
	"salesbot/internal/convo"
	"salesbot/internal/dedup"
	"salesbot/internal/httpserver"
	"salesbot/internal/intent"
	"salesbot/internal/logging"
	"salesbot/internal/memory"
	"salesbot/internal/metrics"
	"salesbot/internal/nlu"
	"salesbot/internal/order"
	"salesbot/internal/repo"
	"salesbot/internal/webhook"
	"salesbot/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting salesbot", "env", cfg.AppEnv, "driver", cfg.DBDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var store repo.Store
	switch cfg.DBDriver {
	case config.DriverSQLite:
		store, err = repo.NewSQLite(ctx, cfg.SQLitePath, logger)
	default:
		store, err = repo.New(ctx, cfg.DatabaseURL, cfg.DBSchema, logger)
	}
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	if err := store.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	if err := store.SyncGeminiKeys(ctx, cfg.GeminiAPIKeys); err != nil {
		return fmt.Errorf("sync gemini keys: %w", err)
	}

	// Redis is optional. Without it dedup falls back to the in-process
	// window, which is fine for a single instance.
	var deduper dedup.Deduper = dedup.NewMemoryDeduper()
	var liveCache *cache.Redis
	if cfg.RedisAddr != "" {
		redisClient := cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed, using in-memory dedup and no catalog cache", "error", err)
		} else {
			deduper = dedup.NewRedisDeduper(redisClient, logger)
			liveCache = redisClient
		}
	}

	nluClient := nlu.New(store, logger, metricRegistry, nlu.Config{
		Model:    cfg.GeminiModel,
		Timeout:  cfg.GeminiTimeout,
		Cooldown: cfg.GeminiCooldown,
	})

	patterns := intent.NewPatternMatcher()
	var classifier intent.Classifier
	if cfg.ClassifierMode == config.ClassifierHybrid {
		classifier = intent.NewHybridClassifier(patterns, nluClient, logger, metricRegistry)
	} else {
		classifier = intent.NewUnifiedClassifier(patterns, nluClient, logger, metricRegistry)
	}
	topics := intent.NewTopicFilter(nluClient, logger)

	sections := memory.NewSectionManager(store, dedup.NewTimerScheduler(), logger, metricRegistry, cfg.SectionTimeout)
	sections.SetSummarizer(nluClient)
	contexts := memory.NewContextBuilder(store, logger)
	orders := order.New(store, logger, metricRegistry)

	senders := channel.NewMux(logger)
	var telegram *channel.TelegramSender
	if cfg.TelegramBotToken != "" {
		telegram = channel.NewTelegram(channel.TelegramConfig{
			BotToken: cfg.TelegramBotToken,
			BotID:    cfg.TelegramBotID,
		}, logger)
		senders.Register(channel.Telegram, telegram)
	}
	var messenger *channel.MessengerSender
	if cfg.MessengerPageToken != "" {
		messenger = channel.NewMessenger(channel.MessengerConfig{
			PageToken:   cfg.MessengerPageToken,
			AppSecret:   cfg.MessengerAppSecret,
			VerifyToken: cfg.MessengerVerifyToken,
		}, logger)
		senders.Register(channel.Messenger, messenger)
	}

	engine := convo.New(convo.Options{
		Store:      store,
		Cache:      liveCache,
		Deduper:    deduper,
		DedupTTL:   cfg.DedupTTL,
		Sections:   sections,
		Contexts:   contexts,
		Classifier: classifier,
		Topics:     topics,
		Orders:     orders,
		Sender:     senders,
		Logger:     logger,
		Metrics:    metricRegistry,
	})

	hooks := webhook.New(logger, metricRegistry, engine, telegram, messenger)

	if cfg.WhatsAppEnabled {
		waClient, err := channel.NewWhatsApp(ctx, channel.WhatsAppConfig{
			StorePath: cfg.WhatsAppStorePath,
			LogLevel:  cfg.WhatsAppLogLevel,
		}, logger)
		if err != nil {
			return fmt.Errorf("init whatsapp client: %w", err)
		}
		defer waClient.Close()
		senders.Register(channel.WhatsApp, waClient)
		waClient.SetProcessor(hooks)

		waCtx, waCancel := context.WithCancel(ctx)
		defer waCancel()
		go func() {
			if err := waClient.Start(waCtx); err != nil {
				logger.Error("whatsapp client stopped", "error", err)
				stop()
			}
		}()
	}

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, hooks, cfg.PublicBasePath)
	httpSrv.SetDependencies(httpserver.Dependencies{
		Store:      store,
		Cache:      liveCache,
		GeminiKeys: cfg.GeminiAPIKeys,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
