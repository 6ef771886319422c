package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorent/internal/domain"
	"autorent/internal/repository"
)

func TestBookingRepository_Update(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	b := &domain.Booking{ID: "b1", Status: domain.BookingStatusConfirmed, Version: 3, UpdatedAt: time.Now()}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), b))
	assert.Equal(t, int64(4), b.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_Update_StaleVersion(t *testing.T) {
	testCases := []struct {
		name   string
		exists bool
		want   error
	}{
		{"stale version", true, repository.ErrConflict},
		{"missing row", false, repository.ErrNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewBookingRepository(db)
			b := &domain.Booking{ID: "b1", Version: 3}

			mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET")).
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)")).
				WithArgs("b1").
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tc.exists))

			err := repo.Update(context.Background(), b)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, int64(3), b.Version)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBookingRepository_LockCar(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext('car:' || $1))")).
		WithArgs("car-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.LockCar(context.Background(), "car-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewStore(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).
			WithArgs("car-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := store.WithTx(context.Background(), func(tx repository.Repos) error {
			return tx.Bookings().LockCar(context.Background(), "car-1")
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewStore(db)
		boom := errors.New("boom")

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := store.WithTx(context.Background(), func(tx repository.Repos) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
