package repository

import (
	"context"

	"autorent/internal/domain"
)

// ClaimRepository defines the persistence operations for claims and disputes.
type ClaimRepository interface {
	// Create persists a new claim.
	Create(ctx context.Context, claim *domain.Claim) error

	// GetByID retrieves a claim by ID.
	GetByID(ctx context.Context, id string) (*domain.Claim, error)

	// GetOpenByBooking returns the booking's claim that is not yet closed.
	// Returns nil if there is none.
	GetOpenByBooking(ctx context.Context, bookingID string) (*domain.Claim, error)

	// Update writes the claim status and outcome.
	Update(ctx context.Context, claim *domain.Claim) error
}
