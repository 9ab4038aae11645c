package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bobarin/habitcast/internal/models"
)

// ListDefaultHabits returns every default habit ordered by start time.
func (db *DB) ListDefaultHabits(ctx context.Context) ([]models.Habit, error) {
	query := `
		SELECT id, event, start_time, end_time
		FROM default_schedule
		ORDER BY start_time, id
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query default habits: %w", err)
	}
	defer rows.Close()

	var habits []models.Habit
	for rows.Next() {
		var id int64
		var event, start, end string
		if err := rows.Scan(&id, &event, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan default habit: %w", err)
		}
		habits = append(habits, models.NewDefaultHabit(id, event, start, end))
	}

	return habits, rows.Err()
}

// ListDaySpecificHabits returns the day-specific habits scheduled on day,
// ordered by start time. day_of_week is matched case-insensitively.
func (db *DB) ListDaySpecificHabits(ctx context.Context, day time.Weekday) ([]models.Habit, error) {
	query := `
		SELECT id, event, start_time, end_time
		FROM day_specific_schedule
		WHERE lower(day_of_week) = $1
		ORDER BY start_time, id
	`

	rows, err := db.QueryContext(ctx, query, strings.ToLower(day.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to query day-specific habits: %w", err)
	}
	defer rows.Close()

	var habits []models.Habit
	for rows.Next() {
		var id int64
		var event, start, end string
		if err := rows.Scan(&id, &event, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan day-specific habit: %w", err)
		}
		habits = append(habits, models.NewDaySpecificHabit(id, event, day, start, end))
	}

	return habits, rows.Err()
}
