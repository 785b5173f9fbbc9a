package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/docflow/internal/api"
	"github.com/dunamismax/docflow/internal/config"
	"github.com/dunamismax/docflow/internal/queue"
	"github.com/dunamismax/docflow/internal/ratelimit"
	"github.com/dunamismax/docflow/internal/storage"
	"github.com/dunamismax/docflow/internal/store"
	"github.com/dunamismax/docflow/internal/telemetry"
	"github.com/dunamismax/docflow/internal/webhook"
	"github.com/dunamismax/docflow/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[devgateway] ", log.LstdFlags|log.Lmsgprefix)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	shutdownTracing, err := telemetry.SetupTracing(startupCtx, cfg.Telemetry, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	storageClient, err := storage.NewClient(cfg.Storage)
	if err != nil {
		logger.Fatalf("storage client failed: %v", err)
	}
	if err := storageClient.EnsureBucket(startupCtx); err != nil {
		logger.Fatalf("ensure bucket %s failed: %v", storageClient.Bucket(), err)
	}

	var jobStore store.JobStore
	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgresJobStore(startupCtx, cfg.Database.DSN)
		if err != nil {
			logger.Fatalf("postgres job store failed: %v", err)
		}
		defer pg.Close()
		jobStore = pg
		logger.Printf("job store: postgres")
	} else {
		jobStore = store.NewMemoryJobStore()
		logger.Printf("job store: memory")
	}

	queueClient := queue.NewClientWithPolicy(cfg.Queue.RedisClientOpt(), cfg.Queue.Name, queue.Policy{
		MaxRetry:  cfg.Queue.MaxRetry,
		Timeout:   cfg.Queue.TaskTimeout,
		Retention: cfg.Queue.Retention,
	})
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	var limiter api.RateLimiter
	if cfg.DevGateway.RateLimit > 0 {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		bucket, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.DevGateway.RateLimit, cfg.DevGateway.RateWindow, "")
		if err != nil {
			logger.Fatalf("rate limiter failed: %v", err)
		}
		limiter = bucket
	}

	app := api.NewServer(logger, queueClient, jobStore, storageClient, api.Options{
		UploadMode:  cfg.DevGateway.UploadMode,
		PresignTTL:  cfg.DevGateway.PresignTTL,
		RequireAuth: cfg.DevGateway.RequireAuth,
		RateLimiter: limiter,
		Tracer:      otel.Tracer("docflow/devgateway"),
	})

	router := chi.NewRouter()
	router.Mount("/", app.Handler())

	var embedded *worker.Server
	if cfg.DevGateway.EmbedWorker {
		webhookClient := webhook.NewClient(webhook.Config{
			Endpoint:      cfg.Webhook.URL,
			SigningSecret: cfg.Webhook.SigningSecret,
			Timeout:       cfg.Webhook.Timeout,
			MaxAttempts:   cfg.Webhook.MaxAttempts,
		})
		embedded, err = worker.NewServer(logger, cfg.Queue, cfg.Worker, storageClient, webhookClient, jobStore)
		if err != nil {
			logger.Fatalf("worker init failed: %v", err)
		}
		if err := embedded.Start(); err != nil {
			logger.Fatalf("worker start failed: %v", err)
		}
		router.Handle("/metrics/worker", embedded.MetricsHandler())
		logger.Printf(
			"embedded worker started concurrency=%d max_active_jobs=%d queue=%s",
			cfg.Worker.Concurrency,
			cfg.Worker.MaxActiveJobs,
			cfg.Queue.Name,
		)
	}

	httpServer := &http.Server{
		Addr:         cfg.DevGateway.Addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s upload_mode=%s require_auth=%t", cfg.DevGateway.Addr, cfg.DevGateway.UploadMode, cfg.DevGateway.RequireAuth)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if embedded != nil {
		embedded.Shutdown()
	}
}
