package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bmptec/ledger-core/internal/api"
	"github.com/bmptec/ledger-core/internal/api/handler"
	"github.com/bmptec/ledger-core/internal/calendar"
	"github.com/bmptec/ledger-core/internal/config"
	"github.com/bmptec/ledger-core/internal/db"
	"github.com/bmptec/ledger-core/internal/events"
	"github.com/bmptec/ledger-core/internal/gateway"
	"github.com/bmptec/ledger-core/internal/idempotency"
	"github.com/bmptec/ledger-core/internal/observability"
	"github.com/bmptec/ledger-core/internal/repository"
	"github.com/bmptec/ledger-core/internal/sequence"
	"github.com/bmptec/ledger-core/internal/service"
	"github.com/bmptec/ledger-core/internal/statement"
	"github.com/bmptec/ledger-core/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the ledger: storage, caches, services, background workers
// and the HTTP server. It blocks until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	// A nil interface keeps every Redis-backed cache disabled.
	var cache redis.Cmdable
	if cfg.RedisURL != "" {
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		cache = client
	} else {
		logger.Info("redis disabled, using in-process caches")
	}

	store := repository.NewStore(pool)

	var seqCache sequence.Cache = sequence.NewMemoryCache()
	if cache != nil {
		seqCache = sequence.NewRedisCache(cache)
	}
	allocator := sequence.NewAllocator(repository.NewCounterStore(store.Queries()), seqCache).
		WithRestartValue(cfg.SequenceRestartValue).
		WithTransferPrefix(cfg.TransferCodePrefix)

	cal := calendar.New(gateway.NewBrasilAPI(cfg.HolidayAPIURL, cfg.HolidayAPITimeout), cfg.Location)
	if cache != nil {
		cal.WithRedis(cache, calendar.DefaultCacheTTL)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("movement events enabled",
			zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close event publisher", zap.Error(err))
		}
	}()

	svc := api.Services{
		Accounts: service.NewAccountService(store, allocator).
			WithBranch(cfg.DefaultBranch).
			WithMaxAttempts(cfg.AccountNumberMaxAttempts),
		Transfers: service.NewTransferService(store, cal, allocator).
			WithPublisher(publisher).
			WithFees(cfg.ApplyTransferFees),
		Statements: service.NewStatementService(store, statement.NewEngine(cfg.StatementMaxDays, cfg.Location)).
			WithLimits(cfg.StatementRequestMaxDays, cfg.StatementPageSize, cfg.StatementTimeout),
		Calendar: cal,
	}

	reconciliationWorker := worker.NewReconciliationWorker(service.NewReconciliationService(store)).
		WithInterval(cfg.ReconciliationInterval)
	stopReconciliation := reconciliationWorker.Run(ctx)
	holidayWorker := worker.NewHolidayWorker(cal, cfg.Location).WithInterval(cfg.HolidayRefreshInterval)
	stopHolidays := holidayWorker.Run(ctx)
	logger.Info("workers started",
		zap.Duration("reconciliation_interval", cfg.ReconciliationInterval),
		zap.Duration("holiday_refresh_interval", cfg.HolidayRefreshInterval))

	idemStore := idempotency.NewStore(cache, store.Queries(), cfg.IdempotencyTTL)
	router := api.NewRouter(cfg, logger, handler.NewHealthHandler(pool, cache), idemStore, svc)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.StatementTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopReconciliation()
	stopHolidays()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
