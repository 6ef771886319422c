package service

import (
	"context"
	"sync"
	"time"

	"autorent/internal/domain"
	"autorent/internal/metrics"
)

// RetryQueue durably stores provider calls that failed transiently.
type RetryQueue interface {
	Enqueue(ctx context.Context, job *domain.ProviderJob) error
}

// JobQueue is the consumer side of the retry queue.
type JobQueue interface {
	RetryQueue
	// Dequeue blocks up to timeout and returns nil when no job arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*domain.ProviderJob, error)
	// ManualReview parks a job that exhausted its attempts.
	ManualReview(ctx context.Context, job *domain.ProviderJob) error
}

// LocalQueue is an in-process JobQueue used when Redis is not configured.
// Jobs do not survive a restart.
type LocalQueue struct {
	mu     sync.Mutex
	jobs   []*domain.ProviderJob
	review []*domain.ProviderJob
	signal chan struct{}
}

// NewLocalQueue creates an empty LocalQueue.
func NewLocalQueue() *LocalQueue {
	return &LocalQueue{signal: make(chan struct{}, 1)}
}

// Enqueue appends a job.
func (q *LocalQueue) Enqueue(ctx context.Context, job *domain.ProviderJob) error {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	metrics.SetRetryQueueLength(int64(len(q.jobs)))
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue pops the oldest job.
func (q *LocalQueue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.ProviderJob, error) {
	if job := q.pop(); job != nil {
		return job, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case <-q.signal:
		return q.pop(), nil
	}
}

func (q *LocalQueue) pop() *domain.ProviderJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	metrics.SetRetryQueueLength(int64(len(q.jobs)))
	return job
}

// ManualReview parks a job.
func (q *LocalQueue) ManualReview(ctx context.Context, job *domain.ProviderJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.review = append(q.review, job)
	return nil
}

// Len returns the number of queued jobs.
func (q *LocalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Reviewed returns the parked jobs.
func (q *LocalQueue) Reviewed() []*domain.ProviderJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*domain.ProviderJob(nil), q.review...)
}

// BookingCache stores read-only booking projections.
type BookingCache interface {
	Get(ctx context.Context, id string) (*domain.Booking, error)
	Set(ctx context.Context, booking *domain.Booking) error
	Invalidate(ctx context.Context, id string) error
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, id string) (*domain.Booking, error) { return nil, nil }
func (noopCache) Set(ctx context.Context, booking *domain.Booking) error     { return nil }
func (noopCache) Invalidate(ctx context.Context, id string) error            { return nil }

// LeaderLock elects a single sweeper among replicas.
type LeaderLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// localLeader always grants leadership; used with a single process.
type localLeader struct{}

func (localLeader) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return "local", true, nil
}
func (localLeader) Release(ctx context.Context, key, token string) error { return nil }
