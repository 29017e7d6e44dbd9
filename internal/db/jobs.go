package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/insushim/iswvideoedit-sub000/internal/models"
)

const jobColumns = `
	id, project_id, status, progress, settings, output_url, error_message,
	attempts, cancel_requested, created_at, started_at, finished_at
`

// CreateJob inserts a new pending job unless the project already has one in
// flight. The INSERT..SELECT makes the one-active-job check atomic; when it
// inserts nothing the caller gets ErrActiveJobExists and should return the
// existing job instead.
func (db *DB) CreateJob(ctx context.Context, job *models.RenderJob) error {
	query := `
		INSERT INTO render_jobs (id, project_id, status, progress, settings)
		SELECT $1, $2, $3, 0, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM render_jobs
			WHERE project_id = $2 AND status IN ('pending', 'processing')
		)
		RETURNING created_at
	`

	err := db.QueryRowContext(
		ctx, query,
		job.ID, job.ProjectID, models.JobStatusPending, job.Settings,
	).Scan(&job.CreatedAt)

	if err == sql.ErrNoRows {
		return models.ErrActiveJobExists
	}
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	job.Status = models.JobStatusPending
	job.Progress = 0
	return nil
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.RenderJob, error) {
	query := `SELECT` + jobColumns + `FROM render_jobs WHERE id = $1`
	return scanJobRow(db.QueryRowContext(ctx, query, id))
}

// GetActiveJob returns the project's pending or processing job, if any.
func (db *DB) GetActiveJob(ctx context.Context, projectID uuid.UUID) (*models.RenderJob, error) {
	query := `
		SELECT` + jobColumns + `
		FROM render_jobs
		WHERE project_id = $1 AND status IN ('pending', 'processing')
		ORDER BY created_at DESC
		LIMIT 1
	`
	job, err := scanJobRow(db.QueryRowContext(ctx, query, projectID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func (db *DB) GetProjectJobs(ctx context.Context, projectID uuid.UUID) ([]models.RenderJob, error) {
	query := `
		SELECT` + jobColumns + `
		FROM render_jobs
		WHERE project_id = $1
		ORDER BY created_at DESC
	`

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.RenderJob
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// MarkProcessing transitions a claimed job to processing and records the
// attempt. A cancelled or already-terminal job is left alone and reported
// via the returned flag so the worker can skip it.
func (db *DB) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE render_jobs
		SET status = 'processing',
		    attempts = attempts + 1,
		    started_at = COALESCE(started_at, NOW())
		WHERE id = $1 AND status = 'pending' AND cancel_requested = FALSE
	`
	res, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark job processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkRetrying returns a processing job to pending so it can be claimed
// again after the backoff delay.
func (db *DB) MarkRetrying(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE render_jobs
		SET status = 'pending', progress = 0
		WHERE id = $1 AND status = 'processing'
	`
	if _, err := db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark job retrying: %w", err)
	}
	return nil
}

// UpdateJobProgress advances progress. GREATEST keeps it monotonic even if
// updates land out of order; terminal jobs never move.
func (db *DB) UpdateJobProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `
		UPDATE render_jobs
		SET progress = GREATEST(progress, $2)
		WHERE id = $1 AND status = 'processing'
	`
	if _, err := db.ExecContext(ctx, query, id, progress); err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, outputURL string) error {
	query := `
		UPDATE render_jobs
		SET status = 'completed', progress = 100, output_url = $2,
		    error_message = NULL, finished_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	res, err := db.ExecContext(ctx, query, id, outputURL)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s not in processing state", id)
	}
	return nil
}

// FailJob moves a non-terminal job to failed. It reports false when the job
// already reached a terminal state (a concurrent cancel, typically), so the
// caller knows not to touch the project status either.
func (db *DB) FailJob(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	query := `
		UPDATE render_jobs
		SET status = 'failed', error_message = $2, finished_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')
	`
	res, err := db.ExecContext(ctx, query, id, message)
	if err != nil {
		return false, fmt.Errorf("failed to fail job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CancelJob requests cancellation. A non-terminal job is failed with the
// cancel reason in one statement; completed jobs return ErrJobCompleted and
// keep their result.
func (db *DB) CancelJob(ctx context.Context, id uuid.UUID) (*models.RenderJob, error) {
	query := `
		UPDATE render_jobs
		SET cancel_requested = TRUE,
		    status = 'failed',
		    error_message = $2,
		    finished_at = COALESCE(finished_at, NOW())
		WHERE id = $1 AND status IN ('pending', 'processing')
	`
	res, err := db.ExecContext(ctx, query, id, models.CancelReason)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	job, err := db.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		switch job.Status {
		case models.JobStatusCompleted:
			return job, models.ErrJobCompleted
		case models.JobStatusFailed:
			return job, models.ErrJobCancelled
		}
	}
	return job, nil
}

// IsCancelRequested is the worker's cooperative cancellation probe.
func (db *DB) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var requested bool
	err := db.QueryRowContext(ctx,
		`SELECT cancel_requested FROM render_jobs WHERE id = $1`, id,
	).Scan(&requested)
	if err != nil {
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return requested, nil
}

// StaleProcessingJobs lists jobs stuck in processing past the deadline.
// The watchdog fails them so a crashed worker cannot strand a project.
func (db *DB) StaleProcessingJobs(ctx context.Context, olderThan time.Duration) ([]models.RenderJob, error) {
	query := `
		SELECT` + jobColumns + `
		FROM render_jobs
		WHERE status = 'processing' AND started_at < NOW() - $1::interval
	`

	rows, err := db.QueryContext(ctx, query, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.RenderJob
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJobRow(row rowScanner) (*models.RenderJob, error) {
	job := &models.RenderJob{}
	err := row.Scan(
		&job.ID, &job.ProjectID, &job.Status, &job.Progress, &job.Settings,
		&job.OutputURL, &job.Error, &job.Attempts, &job.CancelRequested,
		&job.CreatedAt, &job.StartedAt, &job.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}
