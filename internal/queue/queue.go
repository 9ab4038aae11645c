package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueGenerateClips = "queue:generate_clips"
)

type Queue struct {
	client *redis.Client
}

// Job is a queued generation request. The job row in Postgres is the source
// of truth for its status.
type Job struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Date       *string   `json:"date,omitempty"`
	NarratorID *int64    `json:"narrator_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

// Dequeue blocks up to timeout for the next job. It returns nil, nil when the
// queue stayed empty.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueGenerateClips queues a generation run for date (nil = today at run
// time) with an optional narrator override.
func (q *Queue) EnqueueGenerateClips(ctx context.Context, jobID uuid.UUID, date *string, narratorID *int64) error {
	job := &Job{
		ID:         jobID,
		Type:       "generate_clips",
		Date:       date,
		NarratorID: narratorID,
	}
	return q.Enqueue(ctx, QueueGenerateClips, job)
}

// PendingGenerateClips reports how many generation jobs are waiting.
func (q *Queue) PendingGenerateClips(ctx context.Context) (int64, error) {
	return q.GetQueueLength(ctx, QueueGenerateClips)
}
