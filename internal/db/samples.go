package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobarin/habitcast/internal/models"
)

// ListSamples returns uploaded narrator reference samples, newest first.
func (db *DB) ListSamples(ctx context.Context) ([]models.NarratorSample, error) {
	query := `
		SELECT id, label, file_path, created_at
		FROM narrator_samples
		ORDER BY created_at DESC, lower(label)
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	samples := []models.NarratorSample{}
	for rows.Next() {
		var s models.NarratorSample
		if err := rows.Scan(&s.ID, &s.Label, &s.FilePath, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, s)
	}

	return samples, rows.Err()
}

func (db *DB) CreateSample(ctx context.Context, sample *models.NarratorSample) error {
	query := `
		INSERT INTO narrator_samples (label, file_path)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	return db.QueryRowContext(ctx, query, sample.Label, sample.FilePath).Scan(&sample.ID, &sample.CreatedAt)
}

func (db *DB) GetSample(ctx context.Context, id int64) (*models.NarratorSample, error) {
	query := `SELECT id, label, file_path, created_at FROM narrator_samples WHERE id = $1`

	s := &models.NarratorSample{}
	err := db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Label, &s.FilePath, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrSampleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sample: %w", err)
	}
	return s, nil
}

func (db *DB) DeleteSample(ctx context.Context, id int64) (*models.NarratorSample, error) {
	sample, err := db.GetSample(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM narrator_samples WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to delete sample: %w", err)
	}
	return sample, nil
}
