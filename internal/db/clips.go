package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobarin/habitcast/internal/models"
)

const clipColumns = `
	c.id, c.habit_id, c.habit_type, to_char(c.scheduled_date, 'YYYY-MM-DD'),
	c.narrator_id, c.script, c.audio_path, c.status, c.error_message,
	c.created_at, c.updated_at
`

func scanClip(row rowScanner, extra ...interface{}) (*models.Clip, error) {
	clip := &models.Clip{}
	dest := []interface{}{
		&clip.ID, &clip.HabitID, &clip.HabitType, &clip.ScheduledDate,
		&clip.NarratorID, &clip.Script, &clip.AudioPath, &clip.Status, &clip.ErrorMessage,
		&clip.CreatedAt, &clip.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return clip, nil
}

// UpsertClip writes one generation attempt. A row for the same
// (habit_id, habit_type, scheduled_date) is overwritten in place.
func (db *DB) UpsertClip(ctx context.Context, in models.ClipUpsert) error {
	query := `
		INSERT INTO habit_audio_clips (
			habit_id, habit_type, scheduled_date, narrator_id,
			script, audio_path, status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (habit_id, habit_type, scheduled_date)
		DO UPDATE SET
			narrator_id   = EXCLUDED.narrator_id,
			script        = EXCLUDED.script,
			audio_path    = EXCLUDED.audio_path,
			status        = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			updated_at    = NOW()
	`

	_, err := db.ExecContext(
		ctx, query,
		in.HabitID, in.HabitType, in.ScheduledDate, in.NarratorID,
		in.Script, in.AudioPath, in.Status, in.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrClipPersistence, err)
	}
	return nil
}

func (db *DB) GetClip(ctx context.Context, key models.HabitKey, date string) (*models.Clip, error) {
	query := `
		SELECT ` + clipColumns + `
		FROM habit_audio_clips c
		WHERE c.habit_id = $1 AND c.habit_type = $2 AND c.scheduled_date = $3
	`

	clip, err := scanClip(db.QueryRowContext(ctx, query, key.ID, key.Type, date))
	if err == sql.ErrNoRows {
		return nil, models.ErrClipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clip: %w", err)
	}
	return clip, nil
}

// GetClipAudioPath returns the stored audio path for a key, or "" when there
// is no row or no file recorded.
func (db *DB) GetClipAudioPath(ctx context.Context, key models.HabitKey, date string) (string, error) {
	query := `
		SELECT audio_path
		FROM habit_audio_clips
		WHERE habit_id = $1 AND habit_type = $2 AND scheduled_date = $3
	`

	var path string
	err := db.QueryRowContext(ctx, query, key.ID, key.Type, date).Scan(&path)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get clip audio path: %w", err)
	}
	return path, nil
}

// ListClipsForDate returns every clip for date joined with its habit name.
func (db *DB) ListClipsForDate(ctx context.Context, date string) ([]models.Clip, error) {
	query := `
		SELECT ` + clipColumns + `,
			CASE WHEN c.habit_type = 'default' THEN ds.event ELSE ss.event END
		FROM habit_audio_clips c
		LEFT JOIN default_schedule ds
			ON c.habit_type = 'default' AND c.habit_id = ds.id
		LEFT JOIN day_specific_schedule ss
			ON c.habit_type = 'day-specific' AND c.habit_id = ss.id
		WHERE c.scheduled_date = $1
		ORDER BY c.habit_type, c.habit_id
	`

	rows, err := db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query clips: %w", err)
	}
	defer rows.Close()

	clips := []models.Clip{}
	for rows.Next() {
		var event sql.NullString
		clip, err := scanClip(rows, &event)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clip: %w", err)
		}
		if event.Valid {
			clip.Event = &event.String
		}
		clips = append(clips, *clip)
	}

	return clips, rows.Err()
}
