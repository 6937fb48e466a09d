package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CheckQueue is the list holding pending check-all jobs.
const CheckQueue = "jobs:check-all"

// LastReportKey stores the most recent check-all report.
const LastReportKey = "health:last"

// CheckJob asks the worker to health-check the servers of StreamIDs,
// or of every active stream when StreamIDs is empty.
type CheckJob struct {
	ID          string    `json:"id"`
	StreamIDs   []string  `json:"stream_ids,omitempty"`
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}

// Enqueue pushes a job onto the left side of the queue.
func Enqueue(ctx context.Context, r *Redis, queue string, job CheckJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue marshal: %w", err)
	}
	return r.client.LPush(ctx, Key(queue), data).Err()
}

// Dequeue blocks until a job is available or timeout expires. A timeout
// or a cancelled ctx returns (nil, nil) so the caller can loop and check
// for shutdown.
func Dequeue(ctx context.Context, r *Redis, queue string, timeout time.Duration) (*CheckJob, error) {
	result, err := r.client.BRPop(ctx, timeout, Key(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("queue dequeue: %w", err)
	}
	// BRPop returns [key, value].
	if len(result) < 2 {
		return nil, nil
	}
	var job CheckJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("queue unmarshal: %w", err)
	}
	return &job, nil
}

// QueueLen returns the number of pending jobs.
func QueueLen(ctx context.Context, r *Redis, queue string) (int64, error) {
	return r.client.LLen(ctx, Key(queue)).Result()
}
