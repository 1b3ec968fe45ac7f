package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"revenue/internal/amqp"
	"revenue/internal/auth"
	"revenue/internal/backend"
	"revenue/internal/cache"
	"revenue/internal/cli"
	"revenue/internal/config"
	apphttp "revenue/internal/http"
	"revenue/internal/ledger"
	applog "revenue/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), "app")
	cfg := cli.LoadAndValidateConfig(logger)

	if err := run(logger, cfg); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *applog.Logger, cfg *config.Config) error {
	logger.Info("Starting revenue",
		applog.FieldOperation, applog.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend configuration: %w", err)
	}

	ctx := context.Background()
	result, err := backend.NewFactory(logger.Logger).CreateStore(ctx, backendConfig)
	if err != nil {
		return fmt.Errorf("initialize %s storage backend: %w", cfg.DataBackend, err)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Warn("Failed to close storage backend", "error", err)
		}
	}()
	store := result.Store

	// Entry events are optional; without a broker the mirror simply never runs.
	var publisher ledger.Publisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return fmt.Errorf("connect to AMQP: %w", err)
		}
		defer func() {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", "error", err)
			}
		}()
		publisher = amqpClient
		logger.Info("Publishing entry events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	authService := auth.NewService(store, auth.Config{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.TokenTTL,
	}, logger)

	ledgerService := ledger.NewService(store, publisher, ledger.Config{
		CacheTTL: cfg.SummaryCacheTTL,
	}, logger)

	caches := cache.NewManager(logger)
	for _, c := range ledgerService.Cleaners() {
		caches.Register(c)
	}
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Auth:               authService,
		Ledger:             ledgerService,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Ready: func(context.Context) error {
			if amqpClient != nil && !amqpClient.Healthy() {
				return errors.New("amqp connection closed")
			}
			return nil
		},
	})

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		metrics := srv.Metrics()
		cacheStats := ledgerService.CacheStats()
		logger.Info("Server stopped",
			"total_requests", metrics.TotalRequests,
			"rate_limited", metrics.RateLimited,
			"cache_hits", cacheStats.Hits,
			"cache_misses", cacheStats.Misses)
	})

	logger.Info("Server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	<-done
	return nil
}
