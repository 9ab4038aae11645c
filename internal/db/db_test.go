package db

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bobarin/habitcast/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDB opens TEST_DATABASE_URL inside a throwaway schema. Tests skip
// when no database is configured.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	admin, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { admin.Close() })

	schemaName := "habitcast_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec("CREATE SCHEMA " + schemaName)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec("DROP SCHEMA " + schemaName + " CASCADE")
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", schemaName)
	u.RawQuery = q.Encode()

	database, err := New(u.String())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, database.Migrate(context.Background()))
	return database
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func createNarrator(t *testing.T, database *DB, name string, isDefault bool) *models.Narrator {
	t.Helper()
	n, err := database.CreateNarrator(context.Background(), models.NarratorInput{
		Name:       strPtr(name),
		RolePrompt: strPtr("You are " + name + "."),
		IsDefault:  boolPtr(isDefault),
	})
	require.NoError(t, err)
	return n
}

func TestHabitQueries(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	_, err := database.Exec(`
		INSERT INTO default_schedule (event, start_time, end_time) VALUES
			('Work', '09:00', '09:45'),
			('Wake up', '08:00', '08:05');
		INSERT INTO day_specific_schedule (event, day_of_week, start_time, end_time) VALUES
			('Yoga', 'Monday', '18:00', '19:00'),
			('Team Meeting', 'Wednesday', '10:00', '11:00');
	`)
	require.NoError(t, err)

	defaults, err := database.ListDefaultHabits(ctx)
	require.NoError(t, err)
	require.Len(t, defaults, 2)
	assert.Equal(t, "Wake up", defaults[0].Event)
	assert.Equal(t, models.HabitTypeDefault, defaults[0].Type)

	monday, err := database.ListDaySpecificHabits(ctx, time.Monday)
	require.NoError(t, err)
	require.Len(t, monday, 1)
	assert.Equal(t, "Yoga", monday[0].Event)
	require.NotNil(t, monday[0].DayOfWeek)
	assert.Equal(t, time.Monday, *monday[0].DayOfWeek)

	sunday, err := database.ListDaySpecificHabits(ctx, time.Sunday)
	require.NoError(t, err)
	assert.Empty(t, sunday)
}

func TestNarratorDefaultInvariant(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	_, err := database.GetDefaultNarrator(ctx)
	require.ErrorIs(t, err, models.ErrNoDefaultNarrator)

	first := createNarrator(t, database, "First", false)
	assert.True(t, first.IsDefault, "first narrator is promoted automatically")

	second := createNarrator(t, database, "Second", true)
	assert.True(t, second.IsDefault)

	first, err = database.GetNarrator(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, first.IsDefault)

	third := createNarrator(t, database, "Third", false)
	assert.False(t, third.IsDefault)

	// Explicitly unsetting hands the flag to another narrator.
	_, err = database.UpdateNarrator(ctx, second.ID, models.NarratorInput{IsDefault: boolPtr(false)})
	require.NoError(t, err)
	def, err := database.GetDefaultNarrator(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, def.ID)

	// Deleting the default promotes exactly one remaining narrator.
	_, err = database.DeleteNarrator(ctx, first.ID)
	require.NoError(t, err)
	list, err := database.ListNarrators(ctx)
	require.NoError(t, err)
	defaults := 0
	for _, n := range list {
		if n.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)

	_, err = database.DeleteNarrator(ctx, second.ID)
	require.NoError(t, err)
	_, err = database.DeleteNarrator(ctx, third.ID)
	require.NoError(t, err)

	_, err = database.GetDefaultNarrator(ctx)
	require.ErrorIs(t, err, models.ErrNoDefaultNarrator)
}

func TestNarratorValidation(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	_, err := database.CreateNarrator(ctx, models.NarratorInput{Name: strPtr("Nameless")})
	require.ErrorIs(t, err, models.ErrNarratorInvalid)

	n := createNarrator(t, database, "Calm", false)
	assert.InDelta(t, models.DefaultTemperature, n.Temperature, 1e-9)

	_, err = database.CreateNarrator(ctx, models.NarratorInput{Name: strPtr("Calm"), RolePrompt: strPtr("dup")})
	require.ErrorIs(t, err, models.ErrNarratorNameTaken)

	_, err = database.GetNarrator(ctx, 9999)
	require.ErrorIs(t, err, models.ErrNarratorNotFound)
}

func TestUpsertClipKeepsOneRowPerKey(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	narrator := createNarrator(t, database, "Default Narrator", true)
	key := models.HabitKey{ID: 1, Type: models.HabitTypeDefault}
	date := "2024-03-04"

	require.NoError(t, database.UpsertClip(ctx, models.ClipUpsert{
		HabitID: key.ID, HabitType: key.Type, ScheduledDate: date, NarratorID: narrator.ID,
		Status: models.ClipStatusFailed, ErrorMessage: strPtr("boom"),
	}))
	require.NoError(t, database.UpsertClip(ctx, models.ClipUpsert{
		HabitID: key.ID, HabitType: key.Type, ScheduledDate: date, NarratorID: narrator.ID,
		Script: "Back to work.", AudioPath: "audio/generated/2024-03-04/default-1.wav", Status: models.ClipStatusReady,
	}))
	// Same id under the other type is a distinct key.
	require.NoError(t, database.UpsertClip(ctx, models.ClipUpsert{
		HabitID: 1, HabitType: models.HabitTypeDaySpecific, ScheduledDate: date, NarratorID: narrator.ID,
		Status: models.ClipStatusFailed, ErrorMessage: strPtr("nope"),
	}))

	clips, err := database.ListClipsForDate(ctx, date)
	require.NoError(t, err)
	assert.Len(t, clips, 2)

	clip, err := database.GetClip(ctx, key, date)
	require.NoError(t, err)
	assert.Equal(t, models.ClipStatusReady, clip.Status)
	assert.Nil(t, clip.ErrorMessage)
	assert.Equal(t, "2024-03-04", clip.ScheduledDate)

	path, err := database.GetClipAudioPath(ctx, key, date)
	require.NoError(t, err)
	assert.Equal(t, "audio/generated/2024-03-04/default-1.wav", path)

	path, err = database.GetClipAudioPath(ctx, models.HabitKey{ID: 42, Type: models.HabitTypeDefault}, date)
	require.NoError(t, err)
	assert.Empty(t, path)

	// Clips cascade with their narrator.
	_, err = database.DeleteNarrator(ctx, narrator.ID)
	require.NoError(t, err)
	clips, err = database.ListClipsForDate(ctx, date)
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestListClipsForDateJoinsEvent(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	_, err := database.Exec(`INSERT INTO default_schedule (event, start_time, end_time) VALUES ('Work', '09:00', '09:45')`)
	require.NoError(t, err)
	narrator := createNarrator(t, database, "Coach", true)

	require.NoError(t, database.UpsertClip(ctx, models.ClipUpsert{
		HabitID: 1, HabitType: models.HabitTypeDefault, ScheduledDate: "2024-03-04",
		NarratorID: narrator.ID, Script: "Go.", AudioPath: "a.wav", Status: models.ClipStatusReady,
	}))

	clips, err := database.ListClipsForDate(ctx, "2024-03-04")
	require.NoError(t, err)
	require.Len(t, clips, 1)
	require.NotNil(t, clips[0].Event)
	assert.Equal(t, "Work", *clips[0].Event)

	clips, err = database.ListClipsForDate(ctx, "2024-03-05")
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestJobLifecycle(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	job := &models.Job{ID: uuid.New(), Trigger: models.JobTriggerQueued, Status: models.JobStatusQueued}
	require.NoError(t, database.CreateJob(ctx, job))
	require.NoError(t, database.MarkJobRunning(ctx, job.ID))
	require.NoError(t, database.FinishJob(ctx, job.ID, "2024-03-04", models.Summary{Total: 2, Ready: 1, Failed: 1}))

	got, err := database.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSucceeded, got.Status)
	require.NotNil(t, got.ScheduledDate)
	assert.Equal(t, "2024-03-04", *got.ScheduledDate)
	assert.Equal(t, 2, got.Total)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.FinishedAt)

	_, err = database.GetJob(ctx, uuid.New())
	require.ErrorIs(t, err, models.ErrJobNotFound)
}
