package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLockStore(t *testing.T) (*LockStore, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	s := NewLockStore(db)
	s.newToken = func() string { return "token-1" }
	return s, mock
}

func TestLockStore_Acquire(t *testing.T) {
	s, mock := newTestLockStore(t)
	ctx := context.Background()

	mock.ExpectSetNX("lock:sweeper", "token-1", time.Minute).SetVal(true)
	token, ok, err := s.Acquire(ctx, "lock:sweeper", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "token-1", token)

	mock.ExpectSetNX("lock:sweeper", "token-1", time.Minute).SetVal(false)
	token, ok, err = s.Acquire(ctx, "lock:sweeper", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockStore_Acquire_RedisDown(t *testing.T) {
	s, mock := newTestLockStore(t)

	mock.ExpectSetNX("lock:sweeper", "token-1", time.Minute).SetErr(assert.AnError)
	_, ok, err := s.Acquire(context.Background(), "lock:sweeper", time.Minute)
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockStore_Release(t *testing.T) {
	s, mock := newTestLockStore(t)
	ctx := context.Background()

	mock.ExpectEval(releaseScript, []string{"lock:sweeper"}, "token-1").SetVal(int64(1))
	assert.NoError(t, s.Release(ctx, "lock:sweeper", "token-1"))

	mock.ExpectEval(releaseScript, []string{"lock:sweeper"}, "token-1").SetVal(int64(0))
	assert.ErrorIs(t, s.Release(ctx, "lock:sweeper", "token-1"), ErrLockNotHeld)

	assert.NoError(t, mock.ExpectationsWereMet())
}
