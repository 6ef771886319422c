package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"autorent/internal/app"
	"autorent/internal/config"
	"autorent/internal/events"
	"autorent/internal/handler"
	"autorent/internal/middleware"
	internalRedis "autorent/internal/redis"
	"autorent/internal/repository"
	"autorent/internal/repository/memory"
	"autorent/internal/repository/postgres"
	"autorent/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// New Relic first so the database and redis clients can be instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	var (
		store  repository.Store
		health []func(context.Context) error
	)
	switch cfg.Storage.Driver {
	case "memory":
		store = memory.NewStore()
		logger.Warn("using in-memory storage; data is lost on restart")
	default:
		db, err := app.NewDatabase(startCtx, cfg.Database, nrApp)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if cfg.Storage.RunMigrations {
			if err := app.RunMigrations(db, cfg.Storage.MigrationsPath); err != nil {
				logger.Error("failed to run migrations", "error", err)
				os.Exit(1)
			}
		}
		store = postgres.NewStore(db)
		health = append(health, pingDB(db))
		logger.Info("connected to PostgreSQL")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = app.NewRedisClient(startCtx, cfg.Redis, nrApp)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		health = append(health, func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
		logger.Info("connected to Redis")
	}

	var notifier service.Notifier = service.NewLogNotifier(logger)
	if cfg.RabbitMQ.URL != "" {
		publisher, err := events.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		notifier = publisher
		logger.Info("publishing events to RabbitMQ", "exchange", cfg.RabbitMQ.Exchange)
	}

	deps := service.Deps{
		Store:    store,
		Provider: service.NewMockProvider(),
		Insurer:  service.NewMockInsurer(),
		Notifier: notifier,
		Policy:   cfg.Policy,
		Logger:   logger,
	}
	if redisClient != nil {
		deps.Queue = internalRedis.NewRetryQueue(redisClient)
		deps.Cache = internalRedis.NewCacheStore(redisClient)
		deps.Leader = internalRedis.NewLockStore(redisClient)
	}
	engine := service.NewEngine(deps)
	if err := engine.Fund.Init(startCtx); err != nil {
		logger.Error("failed to initialize guarantee fund", "error", err)
		os.Exit(1)
	}

	if err := handler.RegisterValidators(); err != nil {
		logger.Error("failed to register validators", "error", err)
		os.Exit(1)
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, 3*time.Minute)
	go limiter.Cleanup(ctx)
	go engine.Sweeper.Run(ctx)
	go engine.Retry.Run(ctx)

	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: app.NewRouter(app.RouterDeps{
			BookingHandler: handler.NewBookingHandler(engine.Bookings, engine.Pricing),
			ClaimHandler:   handler.NewClaimHandler(engine.Disputes),
			WalletHandler:  handler.NewWalletHandler(engine.Ledger),
			FundHandler:    handler.NewFundHandler(engine.Fund),
			RedisClient:    redisClient,
			NewRelicApp:    nrApp,
			RateLimiter:    limiter,
			Health:         healthCheck(health),
			Logger:         logger,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}
	logger.Info("server exited")
}

func pingDB(db *sqlx.DB) func(context.Context) error {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}

func healthCheck(checks []func(context.Context) error) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
