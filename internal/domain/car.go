package domain

import "time"

// CancelPolicy is the cancellation tier an owner chose for a car.
type CancelPolicy string

const (
	CancelPolicyFlexible CancelPolicy = "flexible"
	CancelPolicyModerate CancelPolicy = "moderate"
	CancelPolicyStrict   CancelPolicy = "strict"
)

// Valid reports whether p is a known tier.
func (p CancelPolicy) Valid() bool {
	return p == CancelPolicyFlexible || p == CancelPolicyModerate || p == CancelPolicyStrict
}

// Car is the listing a booking is made against.
type Car struct {
	ID             string
	OwnerID        string
	Currency       string
	DailyRateCents int64
	DepositCents   int64
	AutoApprove    bool
	CancelPolicy   CancelPolicy
	Active         bool
}

// OwnerStanding records penalties applied to an owner after cancellations.
type OwnerStanding struct {
	OwnerID          string
	VisibilityFactor float64
	PenaltyUntil     time.Time
	Suspended        bool
	UpdatedAt        time.Time
}

// VisibilityAt returns the factor that applies at t.
func (o *OwnerStanding) VisibilityAt(t time.Time) float64 {
	if o == nil || o.VisibilityFactor == 0 || !t.Before(o.PenaltyUntil) {
		return 1
	}
	return o.VisibilityFactor
}
