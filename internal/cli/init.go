// Package cli holds the start-up steps shared by cmd/fintraka,
// cmd/fintraka-worker and cmd/fintraka-seed.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintraka/internal/auth"
	"fintraka/internal/backend"
	"fintraka/internal/cache"
	"fintraka/internal/config"
	"fintraka/internal/core"
	applog "fintraka/internal/log"
	"fintraka/internal/services"
)

// SetupLogger installs a text logger at the given level as the process
// default. An unknown level falls back to info with a warning.
func SetupLogger(level string) *applog.Logger {
	lvl, err := applog.ParseLevel(level)
	logger := applog.New(applog.Config{Level: lvl, Component: applog.ComponentApp, Output: os.Stdout})
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", "error", err)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig reads the config named by FINTRAKA_CONFIG (or
// ./config.yaml) and the environment, exiting on any problem.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg, err := config.Load(os.Getenv("FINTRAKA_CONFIG"))
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitBackend opens the configured store and optional publisher, exiting on
// failure.
func InitBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger.With(applog.FieldComponent, applog.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", bcfg.Type)
		os.Exit(1)
	}
	return res
}

// Services bundles the services a process serves requests with.
type Services struct {
	Ledger    *services.LedgerService
	Auth      *services.AuthService
	UserCache *cache.LRU[core.User]
}

func NewServices(cfg *config.Config, res *backend.BackendResult) (*Services, error) {
	loc, err := cfg.TimeLocation()
	if err != nil {
		return nil, err
	}
	opts := []services.Option{services.WithLocation(loc)}
	if res.Publisher != nil {
		opts = append(opts, services.WithEvents(res.Publisher))
	}

	secret := cfg.JWTSecret
	if secret == "" {
		// memory backend only; Validate requires a secret elsewhere
		secret = "fintraka-memory-backend-secret"
	}
	users := cache.NewLRU[core.User](1024, time.Minute)
	return &Services{
		Ledger: services.NewLedgerService(res.Store, opts...),
		Auth: services.NewAuthService(res.Store,
			auth.NewPasswords(cfg.BcryptCost),
			auth.NewTokens(secret, cfg.JWTIssuer, cfg.TokenTTL),
			services.WithUserCache(users)),
		UserCache: users,
	}, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs before cancellation; done closes once shutdown has finished or
// timeout has passed.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		cancel()
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
