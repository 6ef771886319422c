package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"autorent/internal/domain"
)

// BookingCacheTTL bounds how stale a booking read can be.
const BookingCacheTTL = 10 * time.Second

const bookingCachePrefix = "cache:booking:"

// CacheStore caches read-only booking projections in Redis. Writes never
// read from it.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Get retrieves a booking from cache. A miss returns nil without error.
func (s *CacheStore) Get(ctx context.Context, id string) (*domain.Booking, error) {
	data, err := s.client.Get(ctx, bookingCachePrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var b domain.Booking
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Set stores a booking in cache.
func (s *CacheStore) Set(ctx context.Context, b *domain.Booking) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, bookingCachePrefix+b.ID, data, BookingCacheTTL).Err()
}

// Invalidate removes a booking from cache.
func (s *CacheStore) Invalidate(ctx context.Context, id string) error {
	return s.client.Del(ctx, bookingCachePrefix+id).Err()
}

// GetMany retrieves several bookings with one pipeline. Missing or
// undecodable entries are returned in missing.
func (s *CacheStore) GetMany(ctx context.Context, ids []string) (map[string]*domain.Booking, []string, error) {
	found := make(map[string]*domain.Booking, len(ids))
	if len(ids) == 0 {
		return found, nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.Get(ctx, bookingCachePrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, err
	}

	var missing []string
	for _, id := range ids {
		data, err := cmds[id].Bytes()
		if err != nil {
			missing = append(missing, id)
			continue
		}
		var b domain.Booking
		if err := json.Unmarshal(data, &b); err != nil {
			missing = append(missing, id)
			continue
		}
		found[id] = &b
	}
	return found, missing, nil
}
