package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dunamismax/docflow/internal/config"
	"github.com/dunamismax/docflow/internal/storage"
	"github.com/dunamismax/docflow/internal/store"
	"github.com/dunamismax/docflow/internal/telemetry"
	"github.com/dunamismax/docflow/internal/webhook"
	"github.com/dunamismax/docflow/internal/worker"
)

// A standalone worker shares jobs with the gateway through Postgres, so a
// database DSN is required here.
func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(startupCtx, cfg.Telemetry, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	if cfg.Database.DSN == "" {
		logger.Fatalf("POSTGRES_DSN is required for a standalone worker")
	}
	jobStore, err := store.NewPostgresJobStore(startupCtx, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("postgres job store failed: %v", err)
	}
	defer jobStore.Close()

	storageClient, err := storage.NewClient(cfg.Storage)
	if err != nil {
		logger.Fatalf("storage client failed: %v", err)
	}

	webhookClient := webhook.NewClient(webhook.Config{
		Endpoint:      cfg.Webhook.URL,
		SigningSecret: cfg.Webhook.SigningSecret,
		Timeout:       cfg.Webhook.Timeout,
		MaxAttempts:   cfg.Webhook.MaxAttempts,
	})

	logger.Printf(
		"starting worker concurrency=%d max_active_jobs=%d queue=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveJobs,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, storageClient, webhookClient, jobStore)
	if err != nil {
		logger.Fatalf("worker init failed: %v", err)
	}

	if cfg.Worker.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", srv.MetricsHandler())
			logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
			if err := http.ListenAndServe(cfg.Worker.MetricsAddr, mux); err != nil {
				logger.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}
}
