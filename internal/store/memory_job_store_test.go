package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dunamismax/docflow/internal/domain"
)

func TestMemoryJobStoreCreatePrependsAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore(domain.Job{ID: "1"}, domain.Job{ID: "2"})

	if err := s.Create(ctx, domain.Job{ID: "3", Status: domain.JobStatusPending}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.Create(ctx, domain.Job{ID: "1"}); !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}

	jobs := s.Snapshot()
	if len(jobs) != 3 || jobs[0].ID != "3" || jobs[1].ID != "1" || jobs[2].ID != "2" {
		t.Fatalf("unexpected order: %+v", jobs)
	}
}

func TestMemoryJobStoreListPages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore(domain.Job{ID: "a"}, domain.Job{ID: "b"}, domain.Job{ID: "c"})

	page, total, err := s.List(ctx, 1, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(page) != 1 || page[0].ID != "b" {
		t.Fatalf("unexpected page total=%d page=%+v", total, page)
	}

	page, _, _ = s.List(ctx, 5, 2)
	if len(page) != 0 {
		t.Fatalf("expected empty page past the end, got %+v", page)
	}
}

func TestMemoryJobStoreDeleteRemovesOnlyMatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore(domain.Job{ID: "a"}, domain.Job{ID: "b"}, domain.Job{ID: "c"})
	before := s.Snapshot()

	ok, err := s.Delete(ctx, "b")
	if err != nil || !ok {
		t.Fatalf("delete b: ok=%v err=%v", ok, err)
	}
	ok, _ = s.Delete(ctx, "missing")
	if ok {
		t.Fatal("expected delete of missing id to report false")
	}

	jobs := s.Snapshot()
	if len(jobs) != 2 || jobs[0].ID != "a" || jobs[1].ID != "c" {
		t.Fatalf("unexpected jobs after delete: %+v", jobs)
	}
	if before[1].ID != "b" {
		t.Fatal("earlier snapshot must not be mutated by delete")
	}
}

func TestMemoryJobStoreTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore(domain.Job{ID: "j1", Status: domain.JobStatusPending})

	job, err := s.UpdateStatus(ctx, "j1", domain.JobStatusInProgress, 10)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if job.Status != domain.JobStatusInProgress || job.Progress != 10 || job.UpdatedAt.IsZero() {
		t.Fatalf("unexpected job after update: %+v", job)
	}

	job, err = s.Complete(ctx, "j1", "reports/j1.json")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if job.Status != domain.JobStatusCompleted || job.Progress != 100 || job.ReportKey != "reports/j1.json" {
		t.Fatalf("unexpected job after complete: %+v", job)
	}

	if _, err := s.Fail(ctx, "missing", "boom"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryJobStoreConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Create(ctx, domain.Job{ID: string(rune('A' + i))})
		}(i)
	}
	wg.Wait()

	if got := len(s.Snapshot()); got != 50 {
		t.Fatalf("expected 50 jobs, got %d", got)
	}
}
