package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

type TrackedJobRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ ports.TrackedJobStore = (*TrackedJobRepository)(nil)

func NewTrackedJobRepository(db *sql.DB) *TrackedJobRepository {
	return &TrackedJobRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Track registers a job or resets an existing row back to running.
func (r *TrackedJobRepository) Track(ctx context.Context, job *domain.TrackedJob) error {
	if job == nil || job.JobID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "track job", fmt.Errorf("job id is required"))
	}
	now := r.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}
	if job.State == "" {
		job.State = domain.TrackRunning
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO tracked_jobs (job_id, kind, state, pct, phase, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (job_id) DO UPDATE
SET kind = EXCLUDED.kind, state = EXCLUDED.state, pct = EXCLUDED.pct, phase = EXCLUDED.phase,
	error_message = EXCLUDED.error_message, updated_at = EXCLUDED.updated_at
`, job.JobID, string(job.Kind), string(job.State), job.Pct, job.Phase, job.Error, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("track job: %w", err)
	}
	return nil
}

func (r *TrackedJobRepository) GetByID(ctx context.Context, jobID string) (*domain.TrackedJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT job_id, kind, state, pct, phase, error_message, created_at, updated_at
FROM tracked_jobs
WHERE job_id = $1
`, jobID)

	job, err := scanTrackedJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get tracked job", fmt.Errorf("id=%s", jobID))
		}
		return nil, fmt.Errorf("get tracked job: %w", err)
	}
	return &job, nil
}

func (r *TrackedJobRepository) ListActive(ctx context.Context) ([]domain.TrackedJob, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT job_id, kind, state, pct, phase, error_message, created_at, updated_at
FROM tracked_jobs
WHERE state = $1
ORDER BY created_at ASC
`, string(domain.TrackRunning))
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TrackedJob, 0)
	for rows.Next() {
		job, err := scanTrackedJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked jobs: %w", err)
	}
	return out, nil
}

func (r *TrackedJobRepository) UpdateProgress(ctx context.Context, jobID string, state domain.TrackState, pct int, phase, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE tracked_jobs
SET state = $2, pct = $3, phase = $4, error_message = $5, updated_at = $6
WHERE job_id = $1
`, jobID, string(state), pct, phase, errMessage, r.now())
	if err != nil {
		return fmt.Errorf("update tracked job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tracked job rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrJobNotFound, "update tracked job", fmt.Errorf("id=%s", jobID))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrackedJob(row rowScanner) (domain.TrackedJob, error) {
	var job domain.TrackedJob
	var kind, state string
	err := row.Scan(
		&job.JobID,
		&kind,
		&state,
		&job.Pct,
		&job.Phase,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return domain.TrackedJob{}, err
	}
	job.Kind = domain.JobKind(kind)
	job.State = domain.TrackState(state)
	return job, nil
}
