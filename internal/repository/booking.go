package repository

import (
	"context"
	"time"

	"autorent/internal/domain"
)

// BookingRepository defines the persistence operations for bookings.
type BookingRepository interface {
	// Create persists a new booking.
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by ID.
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// GetByIDForUpdate retrieves a booking and locks its row until the
	// surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Booking, error)

	// Update writes the booking if its version still matches and bumps the version.
	// Returns ErrConflict when the stored version moved on.
	Update(ctx context.Context, booking *domain.Booking) error

	// LockCar serializes calendar checks for one car until the surrounding
	// transaction ends.
	LockCar(ctx context.Context, carID string) error

	// ListActiveByCar returns bookings holding the car's calendar that
	// overlap [start, end).
	ListActiveByCar(ctx context.Context, carID string, start, end time.Time) ([]*domain.Booking, error)

	// ListExpired returns unconfirmed bookings whose hold expired before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error)

	// ListReturnedBefore returns returned bookings awaiting inspection since before cutoff.
	ListReturnedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error)
}
