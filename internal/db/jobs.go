package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bobarin/habitcast/internal/models"
	"github.com/google/uuid"
)

const jobColumns = `
	id, to_char(scheduled_date, 'YYYY-MM-DD'), narrator_id, trigger, status,
	total, ready, failed, error_message, started_at, finished_at, created_at
`

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO generation_jobs (
			id, scheduled_date, narrator_id, trigger, status
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.ScheduledDate, job.NarratorID, job.Trigger, job.Status,
	).Scan(&job.CreatedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1`

	job := &models.Job{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.ScheduledDate, &job.NarratorID, &job.Trigger, &job.Status,
		&job.Total, &job.Ready, &job.Failed, &job.ErrorMessage,
		&job.StartedAt, &job.FinishedAt, &job.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ListRecentJobs returns the newest jobs first.
func (db *DB) ListRecentJobs(ctx context.Context, limit int) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs ORDER BY created_at DESC LIMIT $1`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		var job models.Job
		err := rows.Scan(
			&job.ID, &job.ScheduledDate, &job.NarratorID, &job.Trigger, &job.Status,
			&job.Total, &job.Ready, &job.Failed, &job.ErrorMessage,
			&job.StartedAt, &job.FinishedAt, &job.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (db *DB) MarkJobRunning(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE generation_jobs SET status = $1, started_at = $2 WHERE id = $3`
	_, err := db.ExecContext(ctx, query, models.JobStatusRunning, time.Now(), id)
	return err
}

// FinishJob records the run summary. scheduledDate is filled in when the
// job was queued without an explicit date.
func (db *DB) FinishJob(ctx context.Context, id uuid.UUID, scheduledDate string, summary models.Summary) error {
	query := `
		UPDATE generation_jobs
		SET status = $1, scheduled_date = COALESCE(scheduled_date, $2::date),
			total = $3, ready = $4, failed = $5, finished_at = $6
		WHERE id = $7
	`
	_, err := db.ExecContext(ctx, query,
		models.JobStatusSucceeded, scheduledDate,
		summary.Total, summary.Ready, summary.Failed, time.Now(), id,
	)
	return err
}

func (db *DB) UpdateJobError(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE generation_jobs
		SET status = $1, error_message = $2, finished_at = $3
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusFailed, errorMessage, time.Now(), id)
	return err
}
