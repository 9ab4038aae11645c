// Package schedule resolves which habits apply on a calendar date.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bobarin/habitcast/internal/models"
	"golang.org/x/sync/errgroup"
)

const DateLayout = "2006-01-02"

// HabitStore is the read-only view of the habit tables.
type HabitStore interface {
	ListDefaultHabits(ctx context.Context) ([]models.Habit, error)
	ListDaySpecificHabits(ctx context.Context, day time.Weekday) ([]models.Habit, error)
}

// DayPlan is the set of habits for one date: defaults first, then the
// day-specific habits for that weekday.
type DayPlan struct {
	Date    string
	DayName string
	Habits  []models.Habit
}

type Resolver struct {
	store HabitStore
	loc   *time.Location
	now   func() time.Time
}

func NewResolver(store HabitStore, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{store: store, loc: loc, now: time.Now}
}

// Location is the zone used for "today".
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Today returns the current calendar date in the resolver's location.
func (r *Resolver) Today() time.Time {
	n := r.now().In(r.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, r.loc)
}

// ParseDate parses a YYYY-MM-DD date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", models.ErrInvalidDate, s)
	}
	return t, nil
}

// Resolve returns the day plan for date, or for today when date is nil.
func (r *Resolver) Resolve(ctx context.Context, date *time.Time) (*DayPlan, error) {
	day := r.Today()
	if date != nil {
		day = *date
	}
	weekday := day.Weekday()

	var defaults, specific []models.Habit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		defaults, err = r.store.ListDefaultHabits(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		specific, err = r.store.ListDaySpecificHabits(gctx, weekday)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to resolve habits: %w", err)
	}

	sortByStart(defaults)
	sortByStart(specific)

	habits := make([]models.Habit, 0, len(defaults)+len(specific))
	habits = append(habits, defaults...)
	habits = append(habits, specific...)

	return &DayPlan{
		Date:    day.Format(DateLayout),
		DayName: weekday.String(),
		Habits:  habits,
	}, nil
}

func sortByStart(habits []models.Habit) {
	sort.SliceStable(habits, func(i, j int) bool {
		return clockMinutes(habits[i].StartTime) < clockMinutes(habits[j].StartTime)
	})
}

// clockMinutes parses H:MM or HH:MM[:SS]; unparseable values sort last.
func clockMinutes(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 1 << 30
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 1 << 30
	}
	return h*60 + m
}
