// Package generation produces the daily habit clips: one narrated wav per
// habit, written to a date-partitioned directory and recorded in the clip
// table.
package generation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bobarin/habitcast/internal/models"
	"github.com/bobarin/habitcast/internal/schedule"
	"github.com/bobarin/habitcast/internal/services"
)

// failureWriteTimeout bounds the failed-row write. That write is detached from
// the run's context so a cancelled run still records each failure.
const failureWriteTimeout = 10 * time.Second

type NarratorResolver interface {
	Resolve(ctx context.Context, id *int64) (*models.Narrator, error)
}

type HabitResolver interface {
	Resolve(ctx context.Context, date *time.Time) (*schedule.DayPlan, error)
	Location() *time.Location
}

type ClipStore interface {
	UpsertClip(ctx context.Context, clip models.ClipUpsert) error
	GetClipAudioPath(ctx context.Context, key models.HabitKey, isoDate string) (string, error)
}

type ArtifactStore interface {
	SaveClip(src, isoDate string, key models.HabitKey) (string, error)
	RemovePriorArtifact(relPath string)
}

// Request selects the date (YYYY-MM-DD, default today) and narrator
// (default narrator when nil).
type Request struct {
	Date       *string
	NarratorID *int64
}

type Orchestrator struct {
	narrators NarratorResolver
	habits    HabitResolver
	scripts   services.ScriptGenerator
	tts       services.Synthesizer
	clips     ClipStore
	artifacts ArtifactStore
}

func NewOrchestrator(
	narrators NarratorResolver,
	habits HabitResolver,
	scripts services.ScriptGenerator,
	tts services.Synthesizer,
	clips ClipStore,
	artifacts ArtifactStore,
) *Orchestrator {
	return &Orchestrator{
		narrators: narrators,
		habits:    habits,
		scripts:   scripts,
		tts:       tts,
		clips:     clips,
		artifacts: artifacts,
	}
}

// GenerateForDate runs the whole pipeline for one date. Only date and
// narrator resolution errors are returned; per-habit failures are recorded as
// failed clips and reported in the result.
//
// Habits are processed one at a time. Concurrent runs for the same date are
// not coordinated and the last upsert for a key wins.
func (o *Orchestrator) GenerateForDate(ctx context.Context, req Request) (*models.GenerationResult, error) {
	var date *time.Time
	if req.Date != nil && *req.Date != "" {
		d, err := schedule.ParseDate(*req.Date, o.habits.Location())
		if err != nil {
			return nil, err
		}
		date = &d
	}

	narrator, err := o.narrators.Resolve(ctx, req.NarratorID)
	if err != nil {
		return nil, err
	}

	plan, err := o.habits.Resolve(ctx, date)
	if err != nil {
		return nil, err
	}

	result := &models.GenerationResult{
		Date:     plan.Date,
		Narrator: narrator,
		Clips:    []models.ClipResult{},
	}

	if len(plan.Habits) == 0 {
		log.Printf("[Generation] No habits found for %s; skipping generation", plan.Date)
		return result, nil
	}

	log.Printf("[Generation] Generating clips for %d habit(s) on %s (%s) with narrator %q",
		len(plan.Habits), plan.Date, plan.DayName, narrator.Name)

	for _, habit := range plan.Habits {
		clip := o.generateClip(ctx, narrator, habit, plan.Date)
		result.Clips = append(result.Clips, clip)

		result.Summary.Total++
		if clip.Status == models.ClipStatusReady {
			result.Summary.Ready++
		} else {
			result.Summary.Failed++
		}
	}

	log.Printf("[Generation] Finished %s: %d/%d ready, %d failed",
		plan.Date, result.Summary.Ready, result.Summary.Total, result.Summary.Failed)

	return result, nil
}

// generateClip runs one habit attempt. Any error becomes a failed row.
func (o *Orchestrator) generateClip(ctx context.Context, narrator *models.Narrator, habit models.Habit, isoDate string) models.ClipResult {
	key := habit.Key()
	log.Printf("[Generation] Starting %s %q (%s-%s) on %s", key, habit.Event, habit.StartTime, habit.EndTime, isoDate)

	script, audioPath, err := o.produce(ctx, narrator, habit, isoDate)
	if err != nil {
		log.Printf("[Generation] Failed %s on %s: %v", key, isoDate, err)
		msg := err.Error()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
		upsertErr := o.clips.UpsertClip(writeCtx, models.ClipUpsert{
			HabitID:       habit.ID,
			HabitType:     habit.Type,
			ScheduledDate: isoDate,
			NarratorID:    narrator.ID,
			Script:        script,
			Status:        models.ClipStatusFailed,
			ErrorMessage:  &msg,
		})
		cancel()
		if upsertErr != nil {
			log.Printf("[Generation] Could not record failure for %s on %s: %v", key, isoDate, upsertErr)
		}
		return models.ClipResult{
			HabitID:   habit.ID,
			HabitType: habit.Type,
			Status:    models.ClipStatusFailed,
			Script:    script,
			Message:   msg,
		}
	}

	return models.ClipResult{
		HabitID:   habit.ID,
		HabitType: habit.Type,
		Status:    models.ClipStatusReady,
		AudioPath: audioPath,
		Script:    script,
	}
}

// produce walks script -> synthesis -> copy -> ready row. The script is
// returned even when a later step fails so the failed row can keep it.
func (o *Orchestrator) produce(ctx context.Context, narrator *models.Narrator, habit models.Habit, isoDate string) (string, string, error) {
	key := habit.Key()

	if err := o.removePriorArtifact(ctx, key, isoDate); err != nil {
		return "", "", err
	}

	script, err := o.scripts.GenerateScript(ctx, narrator, habit)
	if err != nil {
		return "", "", err
	}

	source, err := o.tts.Synthesize(ctx, narrator, script, services.OutputToken(habit, isoDate))
	if err != nil {
		return script, "", err
	}

	audioPath, err := o.artifacts.SaveClip(source, isoDate, key)
	if err != nil {
		return script, "", err
	}

	err = o.clips.UpsertClip(ctx, models.ClipUpsert{
		HabitID:       habit.ID,
		HabitType:     habit.Type,
		ScheduledDate: isoDate,
		NarratorID:    narrator.ID,
		Script:        script,
		AudioPath:     audioPath,
		Status:        models.ClipStatusReady,
	})
	if err != nil {
		return script, "", err
	}

	log.Printf("[Generation] Clip ready %s on %s at %s", key, isoDate, audioPath)
	return script, audioPath, nil
}

// removePriorArtifact deletes the file referenced by an existing row for key.
// A missing row yields an empty path, which is a no-op.
func (o *Orchestrator) removePriorArtifact(ctx context.Context, key models.HabitKey, isoDate string) error {
	prior, err := o.clips.GetClipAudioPath(ctx, key, isoDate)
	if err != nil {
		return fmt.Errorf("failed to look up prior clip: %w", err)
	}
	o.artifacts.RemovePriorArtifact(prior)
	return nil
}
