package repository

import (
	"context"
	"time"

	"autorent/internal/domain"
)

// CarRepository defines the persistence operations for cars.
type CarRepository interface {
	// Create persists a new car.
	Create(ctx context.Context, car *domain.Car) error

	// GetByID retrieves a car by ID.
	GetByID(ctx context.Context, id string) (*domain.Car, error)
}

// OwnerRepository records owner cancellations and the penalties they cause.
type OwnerRepository interface {
	// GetStanding retrieves an owner's standing.
	// Returns nil if the owner has never been penalized.
	GetStanding(ctx context.Context, ownerID string) (*domain.OwnerStanding, error)

	// SaveStanding inserts or replaces an owner's standing.
	SaveStanding(ctx context.Context, standing *domain.OwnerStanding) error

	// RecordCancellation stores one owner-initiated cancellation.
	RecordCancellation(ctx context.Context, ownerID, bookingID string, at time.Time) error

	// CountCancellationsSince counts owner cancellations at or after since.
	CountCancellationsSince(ctx context.Context, ownerID string, since time.Time) (int, error)
}
