package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bobarin/habitcast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	defaults []models.Habit
	specific []models.Habit
	err      error
	asked    []time.Weekday
}

func (m *memoryStore) ListDefaultHabits(context.Context) ([]models.Habit, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]models.Habit(nil), m.defaults...), nil
}

func (m *memoryStore) ListDaySpecificHabits(_ context.Context, day time.Weekday) ([]models.Habit, error) {
	m.asked = append(m.asked, day)
	var out []models.Habit
	for _, h := range m.specific {
		if h.DayOfWeek != nil && *h.DayOfWeek == day {
			out = append(out, h)
		}
	}
	return out, nil
}

func fixtureStore() *memoryStore {
	return &memoryStore{
		defaults: []models.Habit{
			models.NewDefaultHabit(1, "Work", "09:00", "09:45"),
			models.NewDefaultHabit(2, "Wake up", "08:00", "08:05"),
		},
		specific: []models.Habit{
			models.NewDaySpecificHabit(3, "Yoga", time.Monday, "18:00", "19:00"),
			models.NewDaySpecificHabit(4, "Team Meeting", time.Wednesday, "10:00", "11:00"),
		},
	}
}

func TestResolveMonday(t *testing.T) {
	r := NewResolver(fixtureStore(), time.UTC)
	date, err := ParseDate("2024-03-04", time.UTC)
	require.NoError(t, err)

	plan, err := r.Resolve(context.Background(), &date)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-04", plan.Date)
	assert.Equal(t, "Monday", plan.DayName)
	require.Len(t, plan.Habits, 3)
	assert.Equal(t, "Wake up", plan.Habits[0].Event)
	assert.Equal(t, "Work", plan.Habits[1].Event)
	assert.Equal(t, models.HabitKey{ID: 3, Type: models.HabitTypeDaySpecific}, plan.Habits[2].Key())
}

func TestResolveDefaultsToToday(t *testing.T) {
	store := fixtureStore()
	r := NewResolver(store, time.UTC)
	r.now = func() time.Time { return time.Date(2024, 3, 6, 23, 30, 0, 0, time.UTC) }

	plan, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-06", plan.Date)
	assert.Equal(t, "Wednesday", plan.DayName)
	assert.Equal(t, []time.Weekday{time.Wednesday}, store.asked)
	assert.Len(t, plan.Habits, 3)
}

func TestTodayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	r := NewResolver(fixtureStore(), loc)
	r.now = func() time.Time { return time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC) }

	assert.Equal(t, "2024-03-05", r.Today().Format(DateLayout))
}

func TestResolveEmptyDay(t *testing.T) {
	r := NewResolver(&memoryStore{}, time.UTC)
	date, _ := ParseDate("2024-03-09", time.UTC)

	plan, err := r.Resolve(context.Background(), &date)
	require.NoError(t, err)
	assert.Equal(t, "Saturday", plan.DayName)
	assert.Empty(t, plan.Habits)
}

func TestResolveStoreError(t *testing.T) {
	r := NewResolver(&memoryStore{err: errors.New("db down")}, time.UTC)
	_, err := r.Resolve(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestParseDate(t *testing.T) {
	for _, bad := range []string{"", "2024-13-01", "2024-02-30", "03/04/2024", "tomorrow"} {
		_, err := ParseDate(bad, time.UTC)
		assert.ErrorIs(t, err, models.ErrInvalidDate, bad)
	}

	d, err := ParseDate(" 2024-02-29 ", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Thursday, d.Weekday())
}

func TestClockMinutesOrdersNumerically(t *testing.T) {
	assert.Less(t, clockMinutes("9:00"), clockMinutes("10:00"))
	assert.Equal(t, 9*60+30, clockMinutes("09:30:00"))
	assert.Greater(t, clockMinutes("later"), clockMinutes("23:59"))
}
