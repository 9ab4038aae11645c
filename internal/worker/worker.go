package worker

import (
	"context"
	"log"
	"time"

	"github.com/bobarin/habitcast/internal/models"
	"github.com/bobarin/habitcast/internal/queue"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const dequeueTimeout = 5 * time.Second

type Dequeuer interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
}

// JobRunner executes a queued generation job and records its outcome.
type JobRunner interface {
	RunJob(ctx context.Context, jobID uuid.UUID, date *string, narratorID *int64) (*models.GenerationResult, error)
}

type Worker struct {
	queue  Dequeuer
	runner JobRunner
	// errorBackoff throttles the loop while redis is unreachable.
	errorBackoff time.Duration
}

func New(q Dequeuer, runner JobRunner) *Worker {
	return &Worker{
		queue:        q,
		runner:       runner,
		errorBackoff: time.Second,
	}
}

// Start runs concurrency consumers until ctx is cancelled. Consumers pick up
// different jobs; runs for the same date are not serialized.
func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	log.Printf("[Worker] Started with concurrency: %d", concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			w.processQueue(gctx, queue.QueueGenerateClips)
			return nil
		})
	}

	err := g.Wait()
	log.Println("[Worker] Shutting down...")
	return err
}

func (w *Worker) processQueue(ctx context.Context, queueName string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, queueName, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker] Error dequeuing from %s: %v", queueName, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.errorBackoff):
			}
			continue
		}

		if job == nil {
			continue // No job available, retry
		}

		w.handle(ctx, job)
	}
}

func (w *Worker) handle(ctx context.Context, job *queue.Job) {
	date := "today"
	if job.Date != nil {
		date = *job.Date
	}
	log.Printf("[Worker] Processing job %s (type: %s, date: %s)", job.ID, job.Type, date)

	result, err := w.runner.RunJob(ctx, job.ID, job.Date, job.NarratorID)
	if err != nil {
		log.Printf("[Worker] Job %s failed: %v", job.ID, err)
		return
	}

	log.Printf("[Worker] Job %s completed: %s %d/%d ready, %d failed",
		job.ID, result.Date, result.Summary.Ready, result.Summary.Total, result.Summary.Failed)
}
