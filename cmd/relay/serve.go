package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/groblegark/relay/internal/backup"
	"github.com/groblegark/relay/internal/broker"
	"github.com/groblegark/relay/internal/config"
	"github.com/groblegark/relay/internal/events"
	"github.com/groblegark/relay/internal/registry"
	"github.com/groblegark/relay/internal/server"
	"github.com/groblegark/relay/internal/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Connect to Postgres.
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("event mirroring enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("event mirroring disabled (RELAY_NATS_URL not set)")
		}

		// Create broker and HTTP server.
		b := broker.New(store, registry.New(), publisher, cfg.Retention)
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: server.New(b).NewHTTPHandler(),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start the retention sweeper.
		var sweeper *broker.Sweeper
		if cfg.SweepInterval > 0 {
			sweeper = broker.NewSweeper(b, cfg.SweepInterval, logger)
			sweeper.Start()
			logger.Info("retention sweeper started",
				"interval", cfg.SweepInterval, "retention", cfg.Retention)
		}

		// Start the backup scheduler if a destination is configured.
		var backups *backup.Scheduler
		if cfg.BackupS3Bucket != "" {
			s3Dest, err := backup.NewS3Destination(
				context.Background(),
				cfg.BackupS3Bucket,
				cfg.BackupS3Key,
				cfg.BackupS3Region,
				cfg.BackupS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 backup destination", "err", err)
			} else {
				backups = backup.NewScheduler(store, []backup.Destination{s3Dest}, cfg.BackupInterval, logger)
				backups.Start()
				logger.Info("S3 backup enabled", "bucket", cfg.BackupS3Bucket, "key", cfg.BackupS3Key)
			}
		}

		// Wait for shutdown signal.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error", "err", err)
		}

		if backups != nil {
			backups.Stop()
		}
		if sweeper != nil {
			sweeper.Stop()
		}
		publisher.Close()
		store.Close()
		return nil
	},
}
