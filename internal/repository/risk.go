package repository

import (
	"context"
	"time"

	"autorent/internal/domain"
)

// RiskRepository defines the persistence operations for driver risk profiles.
type RiskRepository interface {
	// GetProfile retrieves a profile by user ID.
	GetProfile(ctx context.Context, userID string) (*domain.DriverRiskProfile, error)

	// SaveProfile inserts or replaces a profile.
	SaveProfile(ctx context.Context, profile *domain.DriverRiskProfile) error

	// ListDueForImprovement returns profiles above floor with no claim and
	// no class change since cutoff.
	ListDueForImprovement(ctx context.Context, cutoff time.Time, floor, limit int) ([]*domain.DriverRiskProfile, error)
}
