// Command fintraka-seed provisions the global categories and exits. It is
// safe to run repeatedly.
package main

import (
	"context"
	"os"
	"time"

	"fintraka/internal/cli"
	applog "fintraka/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	if err := run(logger); err != nil {
		logger.Error("Failed to seed global categories", "error", err)
		os.Exit(1)
	}
}

func run(logger *applog.Logger) error {
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	}()

	svc, err := cli.NewServices(cfg, res)
	if err != nil {
		return err
	}
	created, err := svc.Ledger.EnsureGlobalCategories(ctx)
	if err != nil {
		return err
	}
	logger.Info("Seeding complete", "created", created, "backend", cfg.DataBackend)
	return nil
}
