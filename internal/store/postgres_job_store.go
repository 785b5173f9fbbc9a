package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/docflow/internal/domain"
	_ "github.com/lib/pq"
)

const jobSchemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	document_name TEXT NOT NULL,
	document_key TEXT NOT NULL,
	report_key TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	document_url TEXT NOT NULL DEFAULT '',
	result_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_created_at_idx ON jobs (created_at DESC);
`

const jobColumns = `id, name, document_name, document_key, report_key, status, progress, error,
	document_url, result_url, created_at, updated_at`

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(ctx context.Context, dsn string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresJobStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresJobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, jobSchemaSQL); err != nil {
		return fmt.Errorf("ensure jobs schema: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

func (s *PostgresJobStore) Create(ctx context.Context, job domain.Job) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID,
		job.Name,
		job.DocumentName,
		job.DocumentKey,
		job.ReportKey,
		string(job.Status),
		job.Progress,
		job.Error,
		job.DocumentURL,
		job.ResultURL,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (domain.Job, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+`
		 FROM jobs
		 WHERE id = $1`,
		id,
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, false, nil
		}
		return domain.Job{}, false, fmt.Errorf("query job: %w", err)
	}

	return job, true, nil
}

func (s *PostgresJobStore) List(ctx context.Context, offset, limit int) ([]domain.Job, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id OFFSET $1`
	args := []any{max(offset, 0)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, total, nil
}

func (s *PostgresJobStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete job rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresJobStore) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, progress int) (domain.Job, error) {
	return s.update(ctx, id,
		`UPDATE jobs SET status = $1, progress = $2, updated_at = $3 WHERE id = $4`,
		string(status), progress, time.Now().UTC(), id,
	)
}

func (s *PostgresJobStore) Complete(ctx context.Context, id, reportKey string) (domain.Job, error) {
	return s.update(ctx, id,
		`UPDATE jobs SET status = $1, progress = 100, report_key = $2, error = '', updated_at = $3 WHERE id = $4`,
		string(domain.JobStatusCompleted), reportKey, time.Now().UTC(), id,
	)
}

func (s *PostgresJobStore) Fail(ctx context.Context, id, message string) (domain.Job, error) {
	return s.update(ctx, id,
		`UPDATE jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(domain.JobStatusFailed), message, time.Now().UTC(), id,
	)
}

func (s *PostgresJobStore) update(ctx context.Context, id, query string, args ...any) (domain.Job, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Job{}, fmt.Errorf("update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Job{}, ErrJobNotFound
	}

	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}

	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		job    domain.Job
		status string
	)
	if err := row.Scan(
		&job.ID,
		&job.Name,
		&job.DocumentName,
		&job.DocumentKey,
		&job.ReportKey,
		&status,
		&job.Progress,
		&job.Error,
		&job.DocumentURL,
		&job.ResultURL,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return domain.Job{}, err
	}
	job.Status = domain.NormalizeJobStatus(status)
	return job, nil
}
