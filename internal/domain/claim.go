package domain

import "time"

// ClaimStatus is the lifecycle status of a dispute or claim.
type ClaimStatus string

const (
	ClaimOpen        ClaimStatus = "open"
	ClaimUnderReview ClaimStatus = "under_review"
	ClaimResolved    ClaimStatus = "resolved"
	ClaimRejected    ClaimStatus = "rejected"
)

// IsClosed reports whether the claim has a final outcome.
func (s ClaimStatus) IsClosed() bool {
	return s == ClaimResolved || s == ClaimRejected
}

// ClaimKind distinguishes owner damage claims from renter disputes.
type ClaimKind string

const (
	ClaimKindDamage  ClaimKind = "damage"
	ClaimKindDispute ClaimKind = "dispute"
)

// Claim is a damage claim or dispute attached to a booking.
type Claim struct {
	ID           string
	BookingID    string
	Kind         ClaimKind
	OpenedBy     ActorRole
	Reason       string
	ClaimedCents int64
	Currency     string
	Severity     Severity
	Evidence     []string
	Status       ClaimStatus

	ChargedRenterCents  int64
	RefundedRenterCents int64
	FGODrawCents        int64
	UncoveredCents      int64
	AtFault             bool
	ResolutionNotes     string
	ResolvedAt          time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
