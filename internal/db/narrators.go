package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/bobarin/habitcast/internal/models"
)

const narratorColumns = `
	id, name, role_prompt, style_prompt, voice, sample_path,
	temperature, is_default, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNarrator(row rowScanner, extra ...interface{}) (*models.Narrator, error) {
	n := &models.Narrator{}
	dest := []interface{}{
		&n.ID, &n.Name, &n.RolePrompt, &n.StylePrompt, &n.Voice, &n.SamplePath,
		&n.Temperature, &n.IsDefault, &n.CreatedAt, &n.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return n, nil
}

// ListNarrators returns narrators with their clip counts, default first.
func (db *DB) ListNarrators(ctx context.Context) ([]models.Narrator, error) {
	query := `
		SELECT
			n.id, n.name, n.role_prompt, n.style_prompt, n.voice, n.sample_path,
			n.temperature, n.is_default, n.created_at, n.updated_at,
			COUNT(c.id),
			COUNT(c.id) FILTER (WHERE c.status = 'ready')
		FROM narrators n
		LEFT JOIN habit_audio_clips c ON c.narrator_id = n.id
		GROUP BY n.id
		ORDER BY n.is_default DESC, lower(n.name)
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list narrators: %w", err)
	}
	defer rows.Close()

	narrators := []models.Narrator{}
	for rows.Next() {
		var clipCount, readyCount int
		n, err := scanNarrator(rows, &clipCount, &readyCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan narrator: %w", err)
		}
		n.ClipCount = &clipCount
		n.ReadyClipCount = &readyCount
		narrators = append(narrators, *n)
	}

	return narrators, rows.Err()
}

func (db *DB) GetNarrator(ctx context.Context, id int64) (*models.Narrator, error) {
	query := `SELECT ` + narratorColumns + ` FROM narrators WHERE id = $1`

	n, err := scanNarrator(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: #%d", models.ErrNarratorNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get narrator: %w", err)
	}
	return n, nil
}

func (db *DB) GetDefaultNarrator(ctx context.Context) (*models.Narrator, error) {
	query := `SELECT ` + narratorColumns + ` FROM narrators WHERE is_default LIMIT 1`

	n, err := scanNarrator(db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, models.ErrNoDefaultNarrator
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default narrator: %w", err)
	}
	return n, nil
}

// CreateNarrator inserts a narrator and restores the single-default
// invariant in the same transaction.
func (db *DB) CreateNarrator(ctx context.Context, in models.NarratorInput) (*models.Narrator, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" || in.RolePrompt == nil || strings.TrimSpace(*in.RolePrompt) == "" {
		return nil, fmt.Errorf("%w: name and role_prompt are required", models.ErrNarratorInvalid)
	}

	temperature := models.DefaultTemperature
	if in.Temperature != nil {
		temperature = *in.Temperature
	}
	makeDefault := in.IsDefault != nil && *in.IsDefault

	var id int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO narrators (name, role_prompt, style_prompt, voice, sample_path, temperature)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, strings.TrimSpace(*in.Name), *in.RolePrompt, nullIfBlank(in.StylePrompt), nullIfBlank(in.Voice), nullIfBlank(in.SamplePath), temperature).Scan(&id)
		if err != nil {
			return err
		}

		if makeDefault {
			return setDefault(ctx, tx, id)
		}
		return ensureDefault(ctx, tx, 0)
	})
	if isUniqueViolation(err) {
		return nil, models.ErrNarratorNameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create narrator: %w", err)
	}

	return db.GetNarrator(ctx, id)
}

// UpdateNarrator applies the non-nil fields of in. Explicitly unsetting the
// default hands the flag to another narrator when one exists.
func (db *DB) UpdateNarrator(ctx context.Context, id int64, in models.NarratorInput) (*models.Narrator, error) {
	current, err := db.GetNarrator(ctx, id)
	if err != nil {
		return nil, err
	}

	if (in.Name != nil && strings.TrimSpace(*in.Name) == "") || (in.RolePrompt != nil && strings.TrimSpace(*in.RolePrompt) == "") {
		return nil, fmt.Errorf("%w: name and role_prompt are required", models.ErrNarratorInvalid)
	}

	var assigns []string
	var args []interface{}
	push := func(column string, value interface{}) {
		args = append(args, value)
		assigns = append(assigns, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if in.Name != nil {
		push("name", strings.TrimSpace(*in.Name))
	}
	if in.RolePrompt != nil {
		push("role_prompt", *in.RolePrompt)
	}
	if in.StylePrompt != nil {
		push("style_prompt", nullIfBlank(in.StylePrompt))
	}
	if in.Voice != nil {
		push("voice", nullIfBlank(in.Voice))
	}
	if in.SamplePath != nil {
		push("sample_path", nullIfBlank(in.SamplePath))
	}
	if in.Temperature != nil {
		push("temperature", *in.Temperature)
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		if len(assigns) > 0 {
			args = append(args, id)
			query := fmt.Sprintf(
				"UPDATE narrators SET %s, updated_at = NOW() WHERE id = $%d",
				strings.Join(assigns, ", "), len(args),
			)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}

		if in.IsDefault != nil {
			switch {
			case *in.IsDefault:
				return setDefault(ctx, tx, id)
			case current.IsDefault:
				if _, err := tx.ExecContext(ctx, `UPDATE narrators SET is_default = FALSE, updated_at = NOW() WHERE id = $1`, id); err != nil {
					return err
				}
				return ensureDefault(ctx, tx, id)
			}
		}
		return ensureDefault(ctx, tx, 0)
	})
	if isUniqueViolation(err) {
		return nil, models.ErrNarratorNameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update narrator: %w", err)
	}

	return db.GetNarrator(ctx, id)
}

// DeleteNarrator removes a narrator (its clips cascade) and promotes another
// narrator if the deleted one was the default.
func (db *DB) DeleteNarrator(ctx context.Context, id int64) (*models.Narrator, error) {
	narrator, err := db.GetNarrator(ctx, id)
	if err != nil {
		return nil, err
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM narrators WHERE id = $1`, id); err != nil {
			return err
		}
		return ensureDefault(ctx, tx, 0)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete narrator: %w", err)
	}

	return narrator, nil
}

func (db *DB) SetDefaultNarrator(ctx context.Context, id int64) (*models.Narrator, error) {
	if _, err := db.GetNarrator(ctx, id); err != nil {
		return nil, err
	}

	if err := db.withTx(ctx, func(tx *sql.Tx) error {
		return setDefault(ctx, tx, id)
	}); err != nil {
		return nil, fmt.Errorf("failed to set default narrator: %w", err)
	}

	return db.GetNarrator(ctx, id)
}

// setDefault clears every other flag before setting id's; the partial
// unique index rejects two defaults at any statement boundary.
func setDefault(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE narrators SET is_default = FALSE, updated_at = NOW()
		WHERE is_default AND id <> $1
	`, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE narrators SET is_default = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT is_default
	`, id)
	return err
}

// ensureDefault promotes the lowest-id narrator (preferring any id other than
// avoid) when no default exists.
func ensureDefault(ctx context.Context, tx *sql.Tx, avoid int64) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM narrators WHERE is_default)`).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}

	var candidate int64
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM narrators
		ORDER BY (id = $1), id
		LIMIT 1
	`, avoid).Scan(&candidate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	return setDefault(ctx, tx, candidate)
}

// nullIfBlank stores blank optional text as NULL.
func nullIfBlank(s *string) interface{} {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return strings.TrimSpace(*s)
}
