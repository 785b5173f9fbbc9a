package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dunamismax/docflow/internal/domain"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrDuplicateJob = errors.New("job already exists")
)

// MemoryJobStore is an ordered in-process job collection. New jobs are
// prepended so listing order matches the remote gateway.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs []domain.Job
	now  func() time.Time
}

func NewMemoryJobStore(seed ...domain.Job) *MemoryJobStore {
	jobs := make([]domain.Job, len(seed))
	copy(jobs, seed)
	return &MemoryJobStore{
		jobs: jobs,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(job.ID) >= 0 {
		return ErrDuplicateJob
	}
	s.jobs = append([]domain.Job{job}, s.jobs...)
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (domain.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Job{}, false, nil
	}
	return s.jobs[i], true, nil
}

func (s *MemoryJobStore) List(_ context.Context, offset, limit int) ([]domain.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.jobs)
	offset = max(offset, 0)
	if offset >= total {
		return []domain.Job{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	out := make([]domain.Job, end-offset)
	copy(out, s.jobs[offset:end])
	return out, total, nil
}

// Snapshot returns every job in order.
func (s *MemoryJobStore) Snapshot() []domain.Job {
	jobs, _, _ := s.List(context.Background(), 0, 0)
	return jobs
}

func (s *MemoryJobStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	s.jobs = append(s.jobs[:i:i], s.jobs[i+1:]...)
	return true, nil
}

func (s *MemoryJobStore) UpdateStatus(_ context.Context, id string, status domain.JobStatus, progress int) (domain.Job, error) {
	return s.mutate(id, func(job *domain.Job) {
		job.Status = status
		job.Progress = progress
	})
}

func (s *MemoryJobStore) Complete(_ context.Context, id, reportKey string) (domain.Job, error) {
	return s.mutate(id, func(job *domain.Job) {
		job.Status = domain.JobStatusCompleted
		job.Progress = 100
		job.ReportKey = reportKey
		job.Error = ""
	})
}

func (s *MemoryJobStore) Fail(_ context.Context, id, message string) (domain.Job, error) {
	return s.mutate(id, func(job *domain.Job) {
		job.Status = domain.JobStatusFailed
		job.Error = message
	})
}

func (s *MemoryJobStore) mutate(id string, apply func(*domain.Job)) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Job{}, ErrJobNotFound
	}
	job := s.jobs[i]
	apply(&job)
	job.UpdatedAt = s.now()
	s.jobs[i] = job
	return job, nil
}

func (s *MemoryJobStore) indexOf(id string) int {
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			return i
		}
	}
	return -1
}
