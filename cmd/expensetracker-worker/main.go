package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"expensetracker/internal/backend"
	"expensetracker/internal/cache"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	"expensetracker/internal/log"
	"expensetracker/internal/services"
	"expensetracker/internal/worker"
)

const cacheSweepInterval = 10 * time.Minute

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, log.ComponentWorker)
	cfg = cli.LoadAndValidateConfig(logger)

	logger.Info("Starting expense backup worker",
		log.FieldOperation, log.OpStartup,
		"events_backend", cfg.EventsBackend,
		"schedule", cfg.BackupSchedule,
		"sheets_configured", cfg.BackupConfigured())

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	backends, err := backend.NewFactory(logger).OpenWorker(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to open backends", log.FieldError, err)
		os.Exit(1)
	}

	// The worker never mutates: no publisher.
	expenses := services.NewExpenseService(backends.KV, nil,
		services.WithLocation(cfg.Location()),
		services.WithLogger(logger))
	prefs := services.NewPreferencesService(backends.KV, logger)
	backupWorker := worker.NewBackupWorker(expenses, prefs, backends.Backup, logger)

	caches := cache.NewManager()
	caches.Register(backupWorker.SeenCache())

	scheduler := cron.New(cron.WithLocation(cfg.Location()))
	if _, err := scheduler.AddFunc(cfg.BackupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		logger.Info("Running scheduled backup", log.FieldOperation, log.OpBackup)
		if err := backupWorker.SnapshotNow(ctx); err != nil {
			logger.Error("Scheduled backup failed", log.FieldOperation, log.OpBackup, log.FieldError, err)
		}
	}); err != nil {
		logger.Error("Invalid backup schedule", log.FieldError, err, "schedule", cfg.BackupSchedule)
		_ = backends.Cleanup()
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		stopped := scheduler.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
		caches.Stop()
		if err := backends.Cleanup(); err != nil {
			logger.Error("Failed to release backends", log.FieldError, err)
		}
	})

	// A startup snapshot covers events published while the worker was down.
	if err := backupWorker.SnapshotNow(ctx); err != nil {
		logger.Warn("Startup backup failed", log.FieldOperation, log.OpBackup, log.FieldError, err)
	}

	caches.StartCleanup(ctx, cacheSweepInterval)
	scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return backends.Consumer.Consume(gctx, backupWorker.Handle)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
