package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/docflow/internal/domain"
	"github.com/dunamismax/docflow/internal/pipeline"
	"github.com/dunamismax/docflow/internal/queue"
	"github.com/dunamismax/docflow/internal/storage"
	"github.com/dunamismax/docflow/internal/store"
	"github.com/dunamismax/docflow/internal/webhook"
	"github.com/hibiken/asynq"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string]storage.Object
}

func (m *memoryObjects) ReadObject(_ context.Context, key string) (storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return storage.Object{}, storage.ErrObjectNotFound
	}
	return obj, nil
}

func (m *memoryObjects) WriteObject(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = storage.Object{Data: data, ContentType: contentType}
	return nil
}

type captureNotifier struct {
	mu     sync.Mutex
	events []webhook.JobEvent
	err    error
}

func (n *captureNotifier) Enabled() bool { return true }

func (n *captureNotifier) Notify(_ context.Context, evt webhook.JobEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return n.err
}

func newTestServer(t *testing.T, objects *memoryObjects, jobs store.JobStore, n notifier) *Server {
	t.Helper()
	proc, err := pipeline.NewObjectStoreProcessor(objects, pipeline.NewDocumentAnalyzer(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	s := newServer(log.New(io.Discard, "", 0), proc, jobs, n, 1)
	s.now = func() time.Time { return testNow }
	return s
}

func analyzeTask(t *testing.T, jobID, key string) *asynq.Task {
	t.Helper()
	task, err := queue.NewAnalyzeDocumentTask(queue.AnalyzeDocumentPayload{
		JobID:       jobID,
		DocumentKey: key,
		JobName:     "Contract Review",
		RequestedAt: testNow,
	})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func TestHandleAnalyzeDocumentCompletesJob(t *testing.T) {
	objects := &memoryObjects{objects: map[string]storage.Object{
		"documents/contract.txt": {Data: []byte("Acme agrees to deliver widgets to Acme Labs."), ContentType: "text/plain"},
	}}
	jobs := store.NewMemoryJobStore(domain.Job{ID: "job-1", DocumentKey: "documents/contract.txt", Status: domain.JobStatusPending})
	events := &captureNotifier{}
	s := newTestServer(t, objects, jobs, events)

	if err := s.handleAnalyzeDocument(context.Background(), analyzeTask(t, "job-1", "documents/contract.txt")); err != nil {
		t.Fatalf("handle task: %v", err)
	}

	job, ok, err := jobs.Get(context.Background(), "job-1")
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if job.Status != domain.JobStatusCompleted || job.Progress != 100 {
		t.Fatalf("expected completed at 100%%, got %s at %d", job.Status, job.Progress)
	}
	if job.ReportKey != "reports/job-1.json" {
		t.Fatalf("unexpected report key %q", job.ReportKey)
	}

	obj, err := objects.ReadObject(context.Background(), job.ReportKey)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report pipeline.Report
	if err := json.Unmarshal(obj.Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.JobID != "job-1" || report.SizeBytes != len("Acme agrees to deliver widgets to Acme Labs.") {
		t.Fatalf("unexpected report: %+v", report)
	}

	if len(events.events) != 1 || events.events[0].Event != webhook.EventJobCompleted {
		t.Fatalf("expected one completed event, got %+v", events.events)
	}
	if events.events[0].ReportKey != "reports/job-1.json" || !events.events[0].OccurredAt.Equal(testNow) {
		t.Fatalf("unexpected event: %+v", events.events[0])
	}
}

func TestHandleAnalyzeDocumentMissingDocumentFailsJob(t *testing.T) {
	objects := &memoryObjects{objects: map[string]storage.Object{}}
	jobs := store.NewMemoryJobStore(domain.Job{ID: "job-1", DocumentKey: "documents/missing.pdf", Status: domain.JobStatusPending})
	events := &captureNotifier{}
	s := newTestServer(t, objects, jobs, events)

	err := s.handleAnalyzeDocument(context.Background(), analyzeTask(t, "job-1", "documents/missing.pdf"))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	job, _, _ := jobs.Get(context.Background(), "job-1")
	if job.Status != domain.JobStatusFailed || job.Error == "" {
		t.Fatalf("expected failed job with error, got %+v", job)
	}
	if len(events.events) != 1 || events.events[0].Event != webhook.EventJobFailed {
		t.Fatalf("expected one failed event, got %+v", events.events)
	}
}

func TestHandleAnalyzeDocumentRejectsBadPayload(t *testing.T) {
	s := newTestServer(t, &memoryObjects{objects: map[string]storage.Object{}}, store.NewMemoryJobStore(), nil)

	err := s.handleAnalyzeDocument(context.Background(), asynq.NewTask(queue.TypeAnalyzeDocument, []byte(`{"job_id":""}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestHandleAnalyzeDocumentSkipsDeletedJob(t *testing.T) {
	objects := &memoryObjects{objects: map[string]storage.Object{
		"documents/a.txt": {Data: []byte("hello"), ContentType: "text/plain"},
	}}
	s := newTestServer(t, objects, store.NewMemoryJobStore(), nil)

	if err := s.handleAnalyzeDocument(context.Background(), analyzeTask(t, "gone", "documents/a.txt")); err != nil {
		t.Fatalf("expected deleted job to be skipped, got %v", err)
	}
	if _, err := objects.ReadObject(context.Background(), "reports/gone.json"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("no report should be written for a deleted job, got %v", err)
	}
}

func TestHandleAnalyzeDocumentSkipsFinishedJob(t *testing.T) {
	objects := &memoryObjects{objects: map[string]storage.Object{
		"documents/a.txt": {Data: []byte("hello"), ContentType: "text/plain"},
	}}
	jobs := store.NewMemoryJobStore(domain.Job{
		ID:          "job-1",
		DocumentKey: "documents/a.txt",
		Status:      domain.JobStatusCompleted,
		Progress:    100,
		ReportKey:   "reports/earlier.json",
	})
	events := &captureNotifier{}
	s := newTestServer(t, objects, jobs, events)

	if err := s.handleAnalyzeDocument(context.Background(), analyzeTask(t, "job-1", "documents/a.txt")); err != nil {
		t.Fatalf("expected redelivered task to be skipped, got %v", err)
	}
	job, _, _ := jobs.Get(context.Background(), "job-1")
	if job.Status != domain.JobStatusCompleted || job.Progress != 100 || job.ReportKey != "reports/earlier.json" {
		t.Fatalf("finished job must be left alone, got %+v", job)
	}
	if len(events.events) != 0 {
		t.Fatalf("no events expected, got %+v", events.events)
	}
	if _, err := objects.ReadObject(context.Background(), "reports/job-1.json"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("no report should be written, got %v", err)
	}
}

func TestWebhookFailureDoesNotFailTask(t *testing.T) {
	objects := &memoryObjects{objects: map[string]storage.Object{
		"documents/a.txt": {Data: []byte("hello"), ContentType: "text/plain"},
	}}
	jobs := store.NewMemoryJobStore(domain.Job{ID: "job-1", DocumentKey: "documents/a.txt", Status: domain.JobStatusPending})
	s := newTestServer(t, objects, jobs, &captureNotifier{err: errors.New("endpoint down")})

	if err := s.handleAnalyzeDocument(context.Background(), analyzeTask(t, "job-1", "documents/a.txt")); err != nil {
		t.Fatalf("webhook failure must not fail the task: %v", err)
	}
	job, _, _ := jobs.Get(context.Background(), "job-1")
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
}

func TestSignedWebhookDelivery(t *testing.T) {
	const secret = "s3cret"
	received := make(chan webhook.JobEvent, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !webhook.Verify(secret, r.Header.Get(webhook.HeaderTimestamp), body, r.Header.Get(webhook.HeaderSignature)) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var evt webhook.JobEvent
		_ = json.Unmarshal(body, &evt)
		received <- evt
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	objects := &memoryObjects{objects: map[string]storage.Object{
		"documents/a.txt": {Data: []byte("hello"), ContentType: "text/plain"},
	}}
	jobs := store.NewMemoryJobStore(domain.Job{ID: "job-1", DocumentKey: "documents/a.txt", Status: domain.JobStatusPending})
	client := webhook.NewClient(webhook.Config{Endpoint: hook.URL, SigningSecret: secret, MaxAttempts: 1})
	s := newTestServer(t, objects, jobs, client)

	if err := s.handleAnalyzeDocument(context.Background(), analyzeTask(t, "job-1", "documents/a.txt")); err != nil {
		t.Fatalf("handle task: %v", err)
	}

	select {
	case evt := <-received:
		if evt.JobID != "job-1" || evt.Status != "completed" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	default:
		t.Fatal("expected a signed webhook delivery")
	}
}
