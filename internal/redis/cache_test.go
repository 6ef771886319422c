package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorent/internal/domain"
)

func TestCacheStore_SetAndGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewCacheStore(db)
	ctx := context.Background()
	b := &domain.Booking{ID: "b1", Status: domain.BookingStatusConfirmed, RenterID: "renter-1"}
	data, err := json.Marshal(b)
	require.NoError(t, err)

	mock.ExpectSet("cache:booking:b1", data, BookingCacheTTL).SetVal("OK")
	require.NoError(t, s.Set(ctx, b))

	mock.ExpectGet("cache:booking:b1").SetVal(string(data))
	got, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b1", got.ID)
	assert.Equal(t, domain.BookingStatusConfirmed, got.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStore_Miss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewCacheStore(db)

	mock.ExpectGet("cache:booking:b1").RedisNil()
	got, err := s.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStore_Invalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewCacheStore(db)

	mock.ExpectDel("cache:booking:b1").SetVal(1)
	assert.NoError(t, s.Invalidate(context.Background(), "b1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
