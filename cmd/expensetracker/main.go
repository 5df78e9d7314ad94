package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"expensetracker/internal/backend"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	apphttp "expensetracker/internal/http"
	"expensetracker/internal/log"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

const appVersion = "1.0.0"

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, log.ComponentApp)
	cfg = cli.LoadAndValidateConfig(logger)

	logger.Info("Starting expense tracker",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"data_backend", cfg.DataBackend,
		"events_backend", cfg.EventsBackend,
		"timezone", cfg.Location().String())

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	ctx := context.Background()
	backends, err := backend.NewFactory(logger).OpenServer(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to open backends",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeDatabase)
		os.Exit(1)
	}

	if err := backends.KV.Set(ctx, storage.KeyAppVersion, appVersion); err != nil {
		logger.Warn("Failed to record app version", log.FieldError, err)
	}

	expenses := services.NewExpenseService(backends.KV, backends.Publisher,
		services.WithLocation(cfg.Location()),
		services.WithLogger(logger))
	expenses.Load(ctx)
	prefs := services.NewPreferencesService(backends.KV, logger)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               net.JoinHostPort("", cfg.Port),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
		Ready: func(ctx context.Context) error {
			if _, err := backends.KV.Exists(ctx, storage.KeyAppVersion); err != nil {
				return fmt.Errorf("storage unavailable: %w", err)
			}
			return nil
		},
	}, expenses, prefs)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	if cfg.StoreRefreshInterval > 0 {
		go expenses.Watch(watchCtx, cfg.StoreRefreshInterval)
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		stopWatch()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := backends.Cleanup(); err != nil {
			logger.Error("Failed to release backends", log.FieldError, err)
		}
	})

	logger.Info("Listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "addr", srv.Addr)
		stopWatch()
		_ = backends.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
