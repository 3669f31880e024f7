package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintraka/internal/cache"
	"fintraka/internal/cli"
	apphttp "fintraka/internal/http"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)

	svc, err := cli.NewServices(cfg, res)
	if err != nil {
		logger.Error("Failed to initialize services", "error", err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	if cfg.SeedOnStartup {
		created, err := svc.Ledger.EnsureGlobalCategories(context.Background())
		if err != nil {
			logger.Error("Failed to seed global categories", "error", err)
			_ = res.Cleanup()
			os.Exit(1)
		}
		logger.Info("Global categories ensured", "created", created)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Ledger:         svc.Ledger,
		Auth:           svc.Auth,
		Store:          res.Store,
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		LoginRateLimit: cfg.LoginRateLimit,
		RequestTimeout: cfg.RequestTimeout,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.RequestTimeout + 5*time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	go cache.NewJanitor(svc.UserCache).Run(ctx, 5*time.Minute)

	logger.Info("Starting fintraka server", "port", cfg.Port, "backend", cfg.DataBackend, "events", res.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		_ = res.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
