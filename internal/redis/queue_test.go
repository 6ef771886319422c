package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorent/internal/domain"
)

func TestRetryQueue_Enqueue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRetryQueue(db)

	mock.Regexp().ExpectLPush(RetryQueueKey, `.*`).SetVal(1)
	err := q.Enqueue(context.Background(), &domain.ProviderJob{ID: "job-1", Op: domain.ProviderCapture})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryQueue_Enqueue_RedisDown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRetryQueue(db)

	mock.Regexp().ExpectLPush(RetryQueueKey, `.*`).SetErr(assert.AnError)
	err := q.Enqueue(context.Background(), &domain.ProviderJob{ID: "job-1"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryQueue_Dequeue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRetryQueue(db)
	data, err := json.Marshal(&domain.ProviderJob{ID: "job-1", Op: domain.ProviderVoid, HoldID: "hold-1", Attempts: 2})
	require.NoError(t, err)

	mock.ExpectBRPop(time.Second, RetryQueueKey).SetVal([]string{RetryQueueKey, string(data)})
	job, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, domain.ProviderVoid, job.Op)
	assert.Equal(t, 2, job.Attempts)

	mock.ExpectBRPop(time.Second, RetryQueueKey).RedisNil()
	job, err = q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryQueue_ManualReview(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRetryQueue(db)

	mock.Regexp().ExpectLPush(ManualReviewKey, `.*`).SetVal(1)
	assert.NoError(t, q.ManualReview(context.Background(), &domain.ProviderJob{ID: "job-1"}))

	mock.ExpectLLen(RetryQueueKey).SetVal(3)
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}
