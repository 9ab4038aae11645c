package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bobarin/habitcast/internal/models"
	"github.com/bobarin/habitcast/internal/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	id         uuid.UUID
	date       *string
	narratorID *int64
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []call
	fail  map[uuid.UUID]bool
	done  chan struct{}
}

func (f *fakeRunner) RunJob(_ context.Context, id uuid.UUID, date *string, narratorID *int64) (*models.GenerationResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{id, date, narratorID})
	failed := f.fail[id]
	f.mu.Unlock()
	f.done <- struct{}{}

	if failed {
		return nil, models.ErrNoDefaultNarrator
	}
	return &models.GenerationResult{Date: "2024-03-04", Summary: models.Summary{Total: 1, Ready: 1}}, nil
}

func TestWorkerRunsQueuedJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	q, err := queue.New("redis://" + mr.Addr())
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failing := uuid.New()
	ok := uuid.New()
	date := "2024-03-04"
	narrator := int64(4)
	require.NoError(t, q.EnqueueGenerateClips(ctx, failing, nil, nil))
	require.NoError(t, q.EnqueueGenerateClips(ctx, ok, &date, &narrator))

	runner := &fakeRunner{fail: map[uuid.UUID]bool{failing: true}, done: make(chan struct{}, 2)}
	w := New(q, runner)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx, 1) }()

	for i := 0; i < 2; i++ {
		select {
		case <-runner.done:
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not pick up queued jobs")
		}
	}
	cancel()
	require.NoError(t, <-errCh)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.calls, 2)
	assert.Equal(t, failing, runner.calls[0].id, "a failing job does not stop the loop")
	assert.Equal(t, ok, runner.calls[1].id)
	assert.Equal(t, "2024-03-04", *runner.calls[1].date)
	assert.Equal(t, int64(4), *runner.calls[1].narratorID)
}

type brokenQueue struct {
	mu    sync.Mutex
	calls int
}

func (b *brokenQueue) Dequeue(context.Context, string, time.Duration) (*queue.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return nil, errors.New("connection refused")
}

func TestWorkerBacksOffOnQueueErrors(t *testing.T) {
	bq := &brokenQueue{}
	w := New(bq, &fakeRunner{done: make(chan struct{}, 1)})
	w.errorBackoff = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Start(ctx, 1))

	bq.mu.Lock()
	defer bq.mu.Unlock()
	assert.GreaterOrEqual(t, bq.calls, 2)
	assert.LessOrEqual(t, bq.calls, 10)
}
