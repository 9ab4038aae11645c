package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enums
type HabitType string

const (
	HabitTypeDefault     HabitType = "default"
	HabitTypeDaySpecific HabitType = "day-specific"
)

// ParseHabitType normalizes the spellings accepted by the HTTP surface.
func ParseHabitType(raw string) (HabitType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "default", "defaults":
		return HabitTypeDefault, nil
	case "day-specific", "day_specific", "dayspecific":
		return HabitTypeDaySpecific, nil
	}
	return "", fmt.Errorf("invalid habit type: %q", raw)
}

type ClipStatus string

const (
	ClipStatusReady  ClipStatus = "ready"
	ClipStatusFailed ClipStatus = "failed"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

type JobTrigger string

const (
	JobTriggerManual  JobTrigger = "manual"
	JobTriggerNightly JobTrigger = "nightly"
	JobTriggerQueued  JobTrigger = "queued"
)

// Models

// Habit is a scheduled habit instance. DayOfWeek is only set for day-specific
// habits; use NewDefaultHabit / NewDaySpecificHabit to build one.
type Habit struct {
	ID        int64         `json:"id"`
	Type      HabitType     `json:"type"`
	Event     string        `json:"event"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
	DayOfWeek *time.Weekday `json:"-"`
}

func NewDefaultHabit(id int64, event, start, end string) Habit {
	return Habit{ID: id, Type: HabitTypeDefault, Event: event, StartTime: start, EndTime: end}
}

func NewDaySpecificHabit(id int64, event string, day time.Weekday, start, end string) Habit {
	return Habit{ID: id, Type: HabitTypeDaySpecific, Event: event, StartTime: start, EndTime: end, DayOfWeek: &day}
}

// HabitKey identifies a habit instance; the same ID may exist under both types.
type HabitKey struct {
	ID   int64
	Type HabitType
}

func (h Habit) Key() HabitKey {
	return HabitKey{ID: h.ID, Type: h.Type}
}

func (k HabitKey) String() string {
	return fmt.Sprintf("%s#%d", k.Type, k.ID)
}

type Narrator struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	RolePrompt     string    `json:"role_prompt"`
	StylePrompt    *string   `json:"style_prompt,omitempty"`
	Voice          *string   `json:"voice,omitempty"`
	SamplePath     *string   `json:"sample_path,omitempty"` // relative to the project root unless absolute
	Temperature    float64   `json:"temperature"`
	IsDefault      bool      `json:"is_default"`
	ClipCount      *int      `json:"clip_count,omitempty"`       // only populated by list
	ReadyClipCount *int      `json:"ready_clip_count,omitempty"` // only populated by list
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DefaultTemperature applies when a narrator is created without one.
const DefaultTemperature = 0.7

type NarratorSample struct {
	ID        int64     `json:"id"`
	Label     string    `json:"label"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}

type Clip struct {
	ID            int64      `json:"id"`
	HabitID       int64      `json:"habit_id"`
	HabitType     HabitType  `json:"habit_type"`
	ScheduledDate string     `json:"scheduled_date"` // YYYY-MM-DD
	NarratorID    int64      `json:"narrator_id"`
	Script        string     `json:"script"`
	AudioPath     string     `json:"audio_path"`
	Status        ClipStatus `json:"status"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	Event         *string    `json:"event,omitempty"` // joined habit name, list only
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ClipUpsert carries the fields written by one generation attempt.
type ClipUpsert struct {
	HabitID       int64
	HabitType     HabitType
	ScheduledDate string
	NarratorID    int64
	Script        string
	AudioPath     string
	Status        ClipStatus
	ErrorMessage  *string
}

type Job struct {
	ID            uuid.UUID  `json:"id"`
	ScheduledDate *string    `json:"scheduled_date,omitempty"`
	NarratorID    *int64     `json:"narrator_id,omitempty"`
	Trigger       JobTrigger `json:"trigger"`
	Status        JobStatus  `json:"status"`
	Total         int        `json:"total"`
	Ready         int        `json:"ready"`
	Failed        int        `json:"failed"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Generation results

type Summary struct {
	Total  int `json:"total"`
	Ready  int `json:"ready"`
	Failed int `json:"failed"`
}

type ClipResult struct {
	HabitID   int64      `json:"habitId"`
	HabitType HabitType  `json:"habitType"`
	Status    ClipStatus `json:"status"`
	AudioPath string     `json:"audioPath,omitempty"`
	Script    string     `json:"script,omitempty"`
	Message   string     `json:"message,omitempty"`
}

type GenerationResult struct {
	Date     string       `json:"date"`
	Narrator *Narrator    `json:"narrator"`
	Summary  Summary      `json:"summary"`
	Clips    []ClipResult `json:"clips"`
}

// DTOs for API requests

type GenerateRequest struct {
	Date       *string `json:"date,omitempty"`
	NarratorID *int64  `json:"narrator_id,omitempty"`
}

type NarratorInput struct {
	Name        *string  `json:"name,omitempty"`
	RolePrompt  *string  `json:"role_prompt,omitempty"`
	StylePrompt *string  `json:"style_prompt,omitempty"`
	Voice       *string  `json:"voice,omitempty"`
	SamplePath  *string  `json:"sample_path,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	IsDefault   *bool    `json:"is_default,omitempty"`
}

type ListClipsResponse struct {
	Date  string `json:"date"`
	Clips []Clip `json:"clips"`
}

type EnqueueResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}
