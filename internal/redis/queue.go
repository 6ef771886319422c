package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"autorent/internal/domain"
	"autorent/internal/metrics"
)

const (
	// RetryQueueKey holds provider calls waiting for another attempt.
	RetryQueueKey = "provider:retry"
	// ManualReviewKey holds provider calls that exhausted their attempts.
	ManualReviewKey = "provider:manual_review"
)

// RetryQueue is a durable FIFO of provider jobs backed by Redis lists.
type RetryQueue struct {
	client *redis.Client
}

// NewRetryQueue creates a new RetryQueue.
func NewRetryQueue(client *redis.Client) *RetryQueue {
	return &RetryQueue{client: client}
}

// Enqueue appends a job.
func (q *RetryQueue) Enqueue(ctx context.Context, job *domain.ProviderJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	n, err := q.client.LPush(ctx, RetryQueueKey, data).Result()
	if err != nil {
		return err
	}
	metrics.SetRetryQueueLength(n)
	return nil
}

// Dequeue blocks up to timeout for the oldest job. It returns nil when
// nothing arrived.
func (q *RetryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.ProviderJob, error) {
	res, err := q.client.BRPop(ctx, timeout, RetryQueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var job domain.ProviderJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ManualReview parks a job for an operator.
func (q *RetryQueue) ManualReview(ctx context.Context, job *domain.ProviderJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, ManualReviewKey, data).Err()
}

// Len returns the number of queued jobs.
func (q *RetryQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, RetryQueueKey).Result()
}
