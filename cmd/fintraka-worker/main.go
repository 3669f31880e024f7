package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintraka/internal/amqp"
	"fintraka/internal/cli"
	"fintraka/internal/config"
	applog "fintraka/internal/log"
	"fintraka/internal/sheets"
	gsheet "fintraka/internal/sheets/google"
	mem "fintraka/internal/sheets/memory"
	"fintraka/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(applog.ComponentWorker)
	logger.Info("Starting fintraka-worker")

	cfg, err := config.Load(os.Getenv("FINTRAKA_CONFIG"))
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	mirror, err := newMirror(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mirrorWorker := worker.NewMirrorWorker(mirror)

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Consuming ledger events", "queue", cfg.AMQPQueue)
		return amqpClient.ConsumeTransactionEvents(gctx, mirrorWorker.HandleEvent)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		_ = amqpClient.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}

// newMirror picks the Google Sheets mirror when a spreadsheet is
// configured and an in-process one otherwise.
func newMirror(ctx context.Context, logger *applog.Logger, cfg *config.Config) (sheets.TransactionMirror, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
		return mem.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	return client, nil
}
