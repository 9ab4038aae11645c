// Package scheduler runs clip generation nightly and on demand. Every run is
// recorded as a generation job.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bobarin/habitcast/internal/generation"
	"github.com/bobarin/habitcast/internal/models"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const DefaultSpec = "0 1 * * *"

type Generator interface {
	GenerateForDate(ctx context.Context, req generation.Request) (*models.GenerationResult, error)
}

type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	MarkJobRunning(ctx context.Context, id uuid.UUID) error
	FinishJob(ctx context.Context, id uuid.UUID, scheduledDate string, summary models.Summary) error
	UpdateJobError(ctx context.Context, id uuid.UUID, errorMessage string) error
}

type Scheduler struct {
	gen        Generator
	jobs       JobStore
	spec       string
	loc        *time.Location
	narratorID *int64
	cron       *cron.Cron
	baseCtx    context.Context
}

// New builds a scheduler. narratorID 0 means the default narrator.
func New(gen Generator, jobs JobStore, spec string, loc *time.Location, narratorID int64) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.Local
	}

	s := &Scheduler{
		gen:     gen,
		jobs:    jobs,
		spec:    spec,
		loc:     loc,
		baseCtx: context.Background(),
	}
	if narratorID > 0 {
		s.narratorID = &narratorID
	}

	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cron.PrintfLogger(log.Default())),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))),
	)
	return s
}

// Start registers the nightly job and starts the cron loop. Runs in flight
// are cancelled when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.baseCtx = ctx
	if _, err := s.cron.AddFunc(s.spec, s.nightly); err != nil {
		return fmt.Errorf("invalid generation schedule %q: %w", s.spec, err)
	}
	s.cron.Start()

	entries := s.cron.Entries()
	if len(entries) > 0 {
		log.Printf("[Scheduler] Nightly generation scheduled (%s %s), next run %s",
			s.spec, s.loc, entries[0].Next.Format(time.RFC3339))
	}
	return nil
}

// Stop stops the cron loop and returns a context that is done once the
// running job, if any, has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) nightly() {
	log.Printf("[Scheduler] Nightly generation starting")
	result, err := s.run(s.baseCtx, nil, models.JobTriggerNightly, generation.Request{NarratorID: s.narratorID})
	if err != nil {
		log.Printf("[Scheduler] Nightly generation failed: %v", err)
		return
	}
	log.Printf("[Scheduler] Nightly generation finished for %s: %d/%d ready, %d failed",
		result.Date, result.Summary.Ready, result.Summary.Total, result.Summary.Failed)
}

// RunNow is the synchronous manual trigger. It has the same semantics as the
// nightly run, with optional date and narrator overrides.
func (s *Scheduler) RunNow(ctx context.Context, date *string, narratorID *int64) (*models.GenerationResult, error) {
	return s.run(ctx, nil, models.JobTriggerManual, generation.Request{Date: date, NarratorID: narratorID})
}

// RunJob executes a job row created by the API for the queue.
func (s *Scheduler) RunJob(ctx context.Context, jobID uuid.UUID, date *string, narratorID *int64) (*models.GenerationResult, error) {
	return s.run(ctx, &jobID, models.JobTriggerQueued, generation.Request{Date: date, NarratorID: narratorID})
}

func (s *Scheduler) run(ctx context.Context, jobID *uuid.UUID, trigger models.JobTrigger, req generation.Request) (*models.GenerationResult, error) {
	if req.Date != nil && *req.Date == "" {
		req.Date = nil
	}
	id := s.recordJob(ctx, jobID, trigger, req)

	if err := s.jobs.MarkJobRunning(ctx, id); err != nil {
		log.Printf("[Scheduler] Failed to mark job %s running: %v", id, err)
	}

	result, err := s.gen.GenerateForDate(ctx, req)

	// The outcome is recorded even when ctx was cancelled mid-run.
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		if jobErr := s.jobs.UpdateJobError(ctx, id, err.Error()); jobErr != nil {
			log.Printf("[Scheduler] Failed to record job %s error: %v", id, jobErr)
		}
		return nil, err
	}

	if err := s.jobs.FinishJob(ctx, id, result.Date, result.Summary); err != nil {
		log.Printf("[Scheduler] Failed to finish job %s: %v", id, err)
	}
	return result, nil
}

// recordJob creates the job row unless one already exists.
func (s *Scheduler) recordJob(ctx context.Context, jobID *uuid.UUID, trigger models.JobTrigger, req generation.Request) uuid.UUID {
	if jobID != nil {
		return *jobID
	}

	job := &models.Job{
		ID:            uuid.New(),
		ScheduledDate: req.Date,
		NarratorID:    req.NarratorID,
		Trigger:       trigger,
		Status:        models.JobStatusQueued,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		log.Printf("[Scheduler] Failed to record %s job: %v", trigger, err)
	}
	return job.ID
}
