package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/docflow/internal/domain"
	"github.com/dunamismax/docflow/internal/id"
	"github.com/dunamismax/docflow/internal/queue"
	"github.com/dunamismax/docflow/internal/storage"
	"github.com/dunamismax/docflow/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
)

const (
	UploadModePost = "post"
	UploadModePut  = "put"

	pageSize      = 20
	documentsRoot = "documents"
)

type queueEnqueuer interface {
	EnqueueAnalyzeDocument(ctx context.Context, payload queue.AnalyzeDocumentPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	PresignedPost(ctx context.Context, objectKey string, expiry time.Duration) (storage.PresignedPost, error)
	PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
	ReadObject(ctx context.Context, objectKey string) (storage.Object, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	RemoveObject(ctx context.Context, objectKey string) error
}

// Options tunes the development gateway. The zero value serves presigned
// POST uploads without authentication or rate limiting.
type Options struct {
	UploadMode  string
	PresignTTL  time.Duration
	RequireAuth bool
	RateLimiter RateLimiter
	Tracer      trace.Tracer
	Now         func() time.Time
}

// Server is an HTTP implementation of the document-analysis gateway backed
// by a job store, object storage and the analysis queue.
type Server struct {
	logger      *log.Logger
	queueClient queueEnqueuer
	jobStore    store.JobStore
	storage     objectStorage
	opts        Options
	rateLimiter RateLimiter
	tracer      trace.Tracer
	metrics     *metrics
	now         func() time.Time
	router      chi.Router
}

func NewServer(logger *log.Logger, queueClient queueEnqueuer, jobStore store.JobStore, objects objectStorage, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	opts.UploadMode = strings.ToLower(strings.TrimSpace(opts.UploadMode))
	if opts.UploadMode != UploadModePut {
		opts.UploadMode = UploadModePost
	}
	if objects == nil {
		objects = unavailableObjectStorage{}
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	s := &Server{
		logger:      logger,
		queueClient: queueClient,
		jobStore:    jobStore,
		storage:     objects,
		opts:        opts,
		rateLimiter: opts.RateLimiter,
		tracer:      opts.Tracer,
		metrics:     newMetrics(),
		now:         now,
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

var errStorageUnavailable = errors.New("object storage is unavailable")

func (unavailableObjectStorage) PresignedPutURL(context.Context, string, time.Duration) (string, error) {
	return "", errStorageUnavailable
}

func (unavailableObjectStorage) PresignedPost(context.Context, string, time.Duration) (storage.PresignedPost, error) {
	return storage.PresignedPost{}, errStorageUnavailable
}

func (unavailableObjectStorage) PresignedGetURL(context.Context, string, time.Duration) (string, error) {
	return "", errStorageUnavailable
}

func (unavailableObjectStorage) ObjectExists(context.Context, string) (bool, error) {
	return false, errStorageUnavailable
}

func (unavailableObjectStorage) ReadObject(context.Context, string) (storage.Object, error) {
	return storage.Object{}, errStorageUnavailable
}

func (unavailableObjectStorage) WriteObject(context.Context, string, []byte, string) error {
	return errStorageUnavailable
}

func (unavailableObjectStorage) RemoveObject(context.Context, string) error {
	return errStorageUnavailable
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.withHTTPMetrics)
	r.Use(s.withTracing)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.metricsHandler())

	r.Group(func(r chi.Router) {
		r.Use(s.withAuth)

		r.Route("/multipage-doc-analysis", func(r chi.Router) {
			r.Get("/jobs/query", s.handleListJobs)
			r.Get("/jobs/query/{jobId}", s.handleGetJob)
			r.Get("/jobs/results/{jobId}", s.handleJobResults)
			r.Get("/upload/{folder}/{key}", s.handleUploadURL)
			r.Get("/download/{type}/{folder}/{key}", s.handleDownloadURL)
			r.With(s.withRateLimit).Post("/processDocument", s.handleProcessDocument)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.With(s.withRateLimit).Post("/", s.handleCreateJob)
			r.With(s.withRateLimit).Delete("/{jobId}", s.handleDeleteJob)
			r.Get("/{jobId}/result", s.handleJobResult)
		})
	})

	s.router = r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	offset, err := decodePageToken(r.URL.Query().Get("nextToken"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, total, err := s.jobStore.List(r.Context(), offset, pageSize)
	if err != nil {
		s.logger.Printf("list jobs failed offset=%d err=%v", offset, err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}

	body := map[string]any{"items": jobs}
	if next := offset + len(jobs); len(jobs) > 0 && next < total {
		body["nextToken"] = encodePageToken(next)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("document")
	if err != nil {
		writeError(w, http.StatusBadRequest, "document file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read document: "+err.Error())
		return
	}

	req := domain.CreateJobRequest{
		Name: r.FormValue("name"),
		Document: domain.FileInput{
			Name:        path.Base(header.Filename),
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		},
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.now()
	key := fmt.Sprintf("%s/%d-%s", documentsRoot, now.UnixMilli(), req.Document.Name)
	contentType := req.Document.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.storage.WriteObject(r.Context(), key, data, contentType); err != nil {
		s.logger.Printf("store document failed key=%s err=%v", key, err)
		writeError(w, http.StatusInternalServerError, "failed to store document")
		return
	}

	job := s.newJob(req.Name, req.Document.Name, key, now)
	if err := s.startJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"job": job})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	deleted, err := s.jobStore.Delete(r.Context(), job.ID)
	if err != nil {
		s.logger.Printf("delete job failed job_id=%s err=%v", job.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	for _, key := range []string{job.DocumentKey, job.ReportKey} {
		if key == "" {
			continue
		}
		if err := s.storage.RemoveObject(r.Context(), key); err != nil {
			s.logger.Printf("remove object failed job_id=%s key=%s err=%v", job.ID, key, err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != domain.JobStatusCompleted || job.ReportKey == "" {
		writeError(w, http.StatusConflict, "job is "+job.Status.String())
		return
	}

	obj, err := s.storage.ReadObject(r.Context(), job.ReportKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		s.logger.Printf("read report failed job_id=%s key=%s err=%v", job.ID, job.ReportKey, err)
		writeError(w, http.StatusInternalServerError, "failed to read report")
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}

func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	key, err := objectKey(r, "folder", "key")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.opts.UploadMode == UploadModePut {
		target, err := s.storage.PresignedPutURL(r.Context(), key, s.opts.PresignTTL)
		if err != nil {
			s.logger.Printf("presign put failed key=%s err=%v", key, err)
			writeError(w, http.StatusInternalServerError, "failed to generate upload URL")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"presigned_url": target})
		return
	}

	post, err := s.storage.PresignedPost(r.Context(), key, s.opts.PresignTTL)
	if err != nil {
		s.logger.Printf("presign post failed key=%s err=%v", key, err)
		writeError(w, http.StatusInternalServerError, "failed to generate upload URL")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"presigned_post": map[string]any{
			"url":    post.URL,
			"fields": post.Fields,
		},
	})
}

func (s *Server) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	rawType, _ := url.PathUnescape(chi.URLParam(r, "type"))
	if _, err := domain.ParseResourceType(rawType); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key, err := objectKey(r, "folder", "key")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exists, err := s.storage.ObjectExists(r.Context(), key)
	if err != nil {
		s.logger.Printf("stat object failed key=%s err=%v", key, err)
		writeError(w, http.StatusInternalServerError, "failed to look up object")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}

	target, err := s.storage.PresignedGetURL(r.Context(), key, s.opts.PresignTTL)
	if err != nil {
		s.logger.Printf("presign get failed key=%s err=%v", key, err)
		writeError(w, http.StatusInternalServerError, "failed to generate download URL")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"presigned_url": target})
}

type processDocumentRequest struct {
	Key      string `json:"key"`
	Metadata struct {
		Filename string `json:"filename"`
	} `json:"metadata"`
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	var req processDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	name := strings.TrimSpace(req.Metadata.Filename)
	documentName := path.Base(key)
	if name == "" {
		name = documentName
	}

	job := s.newJob(name, documentName, key, s.now())
	if err := s.startJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": job.Status.String(),
	})
}

func (s *Server) handleJobResults(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	body := jobResultsResponse{JobID: job.ID, Status: job.Status, Error: job.Error}
	if job.Status == domain.JobStatusCompleted && job.ReportKey != "" {
		obj, err := s.storage.ReadObject(r.Context(), job.ReportKey)
		switch {
		case err == nil && json.Valid(obj.Data):
			body.Results = obj.Data
		case err != nil:
			s.logger.Printf("read report failed job_id=%s key=%s err=%v", job.ID, job.ReportKey, err)
		}
		if target, err := s.storage.PresignedGetURL(r.Context(), job.ReportKey, s.opts.PresignTTL); err == nil {
			body.DownloadURL = target
		} else {
			s.logger.Printf("presign report failed job_id=%s err=%v", job.ID, err)
		}
	}
	writeJSON(w, http.StatusOK, body)
}

type jobResultsResponse struct {
	JobID       string           `json:"jobId"`
	Status      domain.JobStatus `json:"status"`
	Results     json.RawMessage  `json:"results,omitempty"`
	Error       string           `json:"error,omitempty"`
	DownloadURL string           `json:"downloadUrl,omitempty"`
}

func (s *Server) newJob(name, documentName, key string, now time.Time) domain.Job {
	return domain.Job{
		ID:           id.New(),
		Name:         name,
		DocumentName: documentName,
		DocumentKey:  key,
		Status:       domain.JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// startJob records a pending job and queues it for analysis. A job whose
// task cannot be queued is marked failed so it does not stay pending forever.
func (s *Server) startJob(ctx context.Context, job domain.Job) error {
	if err := s.jobStore.Create(ctx, job); err != nil {
		s.logger.Printf("create job failed job_id=%s err=%v", job.ID, err)
		return errors.New("failed to create job")
	}
	if s.queueClient == nil {
		return nil
	}

	info, err := s.queueClient.EnqueueAnalyzeDocument(ctx, queue.AnalyzeDocumentPayload{
		JobID:       job.ID,
		DocumentKey: job.DocumentKey,
		JobName:     job.DisplayName(),
		RequestedAt: s.now(),
	})
	if err != nil {
		s.logger.Printf("enqueue failed job_id=%s err=%v", job.ID, err)
		s.metrics.enqueueFailures.Inc()
		if _, ferr := s.jobStore.Fail(ctx, job.ID, "enqueue analysis: "+err.Error()); ferr != nil {
			s.logger.Printf("mark job failed job_id=%s err=%v", job.ID, ferr)
		}
		return errors.New("failed to enqueue job")
	}

	queueName := ""
	if info != nil {
		queueName = info.Queue
	}
	s.metrics.tasksEnqueued.WithLabelValues(queueName).Inc()
	return nil
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (domain.Job, bool) {
	jobID, err := url.PathUnescape(chi.URLParam(r, "jobId"))
	if err != nil || strings.TrimSpace(jobID) == "" {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return domain.Job{}, false
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed job_id=%s err=%v", jobID, err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return domain.Job{}, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return domain.Job{}, false
	}
	return job, true
}

// objectKey joins unescaped route params into an object key.
func objectKey(r *http.Request, params ...string) (string, error) {
	parts := make([]string, 0, len(params))
	for _, name := range params {
		value, err := url.PathUnescape(chi.URLParam(r, name))
		if err != nil {
			return "", fmt.Errorf("invalid %s: %w", name, err)
		}
		value = strings.Trim(value, "/")
		if value == "" || value == "." || value == ".." {
			return "", fmt.Errorf("%s is required", name)
		}
		parts = append(parts, value)
	}
	return strings.Join(parts, "/"), nil
}

func encodePageToken(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodePageToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, errors.New("invalid nextToken")
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, errors.New("invalid nextToken")
	}
	return offset, nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
