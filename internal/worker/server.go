package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dunamismax/docflow/internal/config"
	"github.com/dunamismax/docflow/internal/domain"
	"github.com/dunamismax/docflow/internal/pipeline"
	"github.com/dunamismax/docflow/internal/queue"
	"github.com/dunamismax/docflow/internal/storage"
	"github.com/dunamismax/docflow/internal/store"
	"github.com/dunamismax/docflow/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// startedProgress is reported once a task has been picked up.
const startedProgress = 10

type processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type notifier interface {
	Enabled() bool
	Notify(ctx context.Context, evt webhook.JobEvent) error
}

// Server consumes document analysis tasks and drives each job through
// in_progress to completed or failed.
type Server struct {
	logger    *log.Logger
	server    *asynq.Server
	sem       chan struct{}
	processor processor
	notifier  notifier
	jobStore  store.JobStore
	metrics   *metrics
	tracer    trace.Tracer
	now       func() time.Time
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	objects pipeline.ObjectStore,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
) (*Server, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if jobStore == nil {
		return nil, fmt.Errorf("job store is required")
	}

	proc, err := pipeline.NewObjectStoreProcessor(objects, pipeline.NewDocumentAnalyzer(nil))
	if err != nil {
		return nil, fmt.Errorf("initialize analysis pipeline: %w", err)
	}

	s := newServer(logger, proc, jobStore, webhookClient, workerCfg.MaxActiveJobs)
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: max(1, workerCfg.Concurrency),
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
			}),
		},
	)
	return s, nil
}

func newServer(logger *log.Logger, proc processor, jobStore store.JobStore, n notifier, maxActive int) *Server {
	return &Server{
		logger:    logger,
		sem:       make(chan struct{}, max(1, maxActive)),
		processor: proc,
		notifier:  n,
		jobStore:  jobStore,
		metrics:   newMetrics(),
		tracer:    otel.Tracer("docflow/worker"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeAnalyzeDocument, s.handleAnalyzeDocument)
	return mux
}

// Run blocks until the process receives a termination signal.
func (s *Server) Run() error {
	return s.server.Run(s.mux())
}

// Start begins consuming in the background. Pair it with Shutdown.
func (s *Server) Start() error {
	return s.server.Start(s.mux())
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleAnalyzeDocument(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := "error"

	payload, err := queue.ParseAnalyzeDocumentPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.analyze_document", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.document_key", payload.DocumentKey),
	)
	defer span.End()
	defer func() {
		s.metrics.taskDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.tasksTotal.WithLabelValues(outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeTasks.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeTasks.Dec()
	}()

	current, ok, err := s.jobStore.Get(ctx, payload.JobID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load job: %w", err)
	}
	if !ok {
		outcome = "skipped"
		s.logger.Printf("job vanished before analysis job_id=%s", payload.JobID)
		return nil
	}
	// Redelivered tasks must not reopen a finished job.
	if current.Status.Terminal() {
		outcome = "skipped"
		s.logger.Printf("job already finished job_id=%s status=%s", payload.JobID, current.Status)
		return nil
	}

	s.logger.Printf("Working... job_id=%s document_key=%s", payload.JobID, payload.DocumentKey)

	if _, err := s.jobStore.UpdateStatus(ctx, payload.JobID, domain.JobStatusInProgress, startedProgress); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			outcome = "skipped"
			s.logger.Printf("job vanished before analysis job_id=%s", payload.JobID)
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("mark job in progress: %w", err)
	}

	result, err := s.processor.Process(ctx, pipeline.Request{
		JobID:       payload.JobID,
		JobName:     payload.JobName,
		DocumentKey: payload.DocumentKey,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis failed")

		final := finalAttempt(ctx) || errors.Is(err, storage.ErrObjectNotFound)
		if !final {
			return fmt.Errorf("run analysis: %w", err)
		}

		outcome = string(domain.JobStatusFailed)
		if _, ferr := s.jobStore.Fail(ctx, payload.JobID, err.Error()); ferr != nil {
			s.logger.Printf("job status update failed job_id=%s status=failed err=%v", payload.JobID, ferr)
		}
		s.notify(ctx, webhook.JobEvent{
			Event:       webhook.EventJobFailed,
			JobID:       payload.JobID,
			Status:      string(domain.JobStatusFailed),
			DocumentKey: payload.DocumentKey,
			Error:       err.Error(),
		})
		return fmt.Errorf("run analysis: %v: %w", err, asynq.SkipRetry)
	}

	if _, err := s.jobStore.Complete(ctx, payload.JobID, result.ReportKey); err != nil {
		span.RecordError(err)
		return fmt.Errorf("mark job completed: %w", err)
	}

	s.logger.Printf("Processed job_id=%s report_key=%s pages=%d bytes=%d",
		payload.JobID, result.ReportKey, result.Report.PageCount, result.Report.SizeBytes)
	s.metrics.documentBytes.Add(float64(result.Report.SizeBytes))
	s.metrics.reportPages.Add(float64(result.Report.PageCount))

	s.notify(ctx, webhook.JobEvent{
		Event:       webhook.EventJobCompleted,
		JobID:       payload.JobID,
		Status:      string(domain.JobStatusCompleted),
		DocumentKey: payload.DocumentKey,
		ReportKey:   result.ReportKey,
	})

	outcome = string(domain.JobStatusCompleted)
	span.SetStatus(codes.Ok, "analyzed")
	return nil
}

// notify delivers a job event. The job has already reached its terminal
// state, so a failed delivery is logged and never retried through the queue.
func (s *Server) notify(ctx context.Context, evt webhook.JobEvent) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}
	evt.OccurredAt = s.now()
	if err := s.notifier.Notify(ctx, evt); err != nil {
		s.metrics.webhookFailures.WithLabelValues(evt.Event).Inc()
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", evt.JobID, evt.Event, err)
	}
}

// finalAttempt reports whether the queue will not retry this task again.
// Outside a queue context every attempt is the last one.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
