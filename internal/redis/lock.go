package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when releasing a lock another holder owns.
var ErrLockNotHeld = errors.New("lock not held")

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client   *redis.Client
	newToken func() string
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{
		client:   client,
		newToken: func() string { return uuid.New().String() },
	}
}

// Acquire attempts to take the lock at key for ttl. It returns the token
// that must be presented on release, and false if the lock is already held.
func (s *LockStore) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := s.newToken()
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if token still owns it. A lock that expired and
// was taken by another holder is left alone.
func (s *LockStore) Release(ctx context.Context, key, token string) error {
	n, err := s.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
