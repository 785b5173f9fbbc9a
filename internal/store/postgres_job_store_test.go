package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dunamismax/docflow/internal/domain"
	"github.com/dunamismax/docflow/internal/id"
)

func TestPostgresJobStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewPostgresJobStore(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	job := domain.Job{
		ID:           id.New(),
		Name:         "Contract Review",
		DocumentName: "contract.pdf",
		DocumentKey:  "documents/contract.pdf",
		Status:       domain.JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { _, _ = s.Delete(context.Background(), job.ID) })

	got, ok, err := s.Get(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.DocumentKey != job.DocumentKey || got.Status != domain.JobStatusPending {
		t.Fatalf("unexpected job: %+v", got)
	}

	done, err := s.Complete(ctx, job.ID, "reports/"+job.ID+".json")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.JobStatusCompleted || done.Progress != 100 {
		t.Fatalf("unexpected completed job: %+v", done)
	}

	deleted, err := s.Delete(ctx, job.ID)
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	if _, ok, _ := s.Get(ctx, job.ID); ok {
		t.Fatal("expected job to be gone")
	}
}
