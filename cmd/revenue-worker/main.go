package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"revenue/internal/amqp"
	"revenue/internal/backend"
	"revenue/internal/cli"
	"revenue/internal/config"
	applog "revenue/internal/log"
	"revenue/internal/sheets/google"
	"revenue/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), "worker")
	cfg := cli.LoadAndValidateConfig(logger)

	if err := run(logger, cfg); err != nil {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *applog.Logger, cfg *config.Config) error {
	if err := cfg.ValidateMirror(); err != nil {
		return fmt.Errorf("mirror configuration: %w", err)
	}

	logger.Info("Starting revenue-worker",
		applog.FieldOperation, applog.OpStartup,
		"backend", cfg.DataBackend,
		"spreadsheet_id", cfg.GoogleSpreadsheetID)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend configuration: %w", err)
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	result, err := backend.NewFactory(logger.Logger).CreateStore(ctx, backendConfig)
	if err != nil {
		return fmt.Errorf("initialize %s storage backend: %w", cfg.DataBackend, err)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Warn("Failed to close storage backend", "error", err)
		}
	}()

	mirror, err := google.New(ctx, google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize Google Sheets mirror: %w", err)
	}
	if err := mirror.EnsureSheets(ctx); err != nil {
		return fmt.Errorf("prepare spreadsheet tabs: %w", err)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return fmt.Errorf("connect to AMQP: %w", err)
	}
	defer func() {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", "error", err)
		}
	}()

	syncWorker := worker.NewSyncWorker(result.Store, mirror, logger)

	consumeErr := amqpClient.ConsumeEntryEvents(ctx, syncWorker.HandleEntryEvent)
	if errors.Is(consumeErr, context.Canceled) {
		consumeErr = nil
	}

	stats := syncWorker.Stats()
	logger.Info("Worker stopped",
		"synced", stats.Synced,
		"removed", stats.Removed,
		"skipped", stats.Skipped)

	// ConsumeEntryEvents may also return on a closed channel; only wait for
	// the shutdown hook when a signal actually arrived.
	if ctx.Err() != nil {
		<-done
	}
	if consumeErr != nil {
		return fmt.Errorf("consume entry events: %w", consumeErr)
	}
	return nil
}
