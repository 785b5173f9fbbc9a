package store

import (
	"context"

	"github.com/dunamismax/docflow/internal/domain"
)

// JobStore keeps jobs ordered newest first.
type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	List(ctx context.Context, offset, limit int) ([]domain.Job, int, error)
	Delete(ctx context.Context, id string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, progress int) (domain.Job, error)
	Complete(ctx context.Context, id, reportKey string) (domain.Job, error)
	Fail(ctx context.Context, id, message string) (domain.Job, error)
}
