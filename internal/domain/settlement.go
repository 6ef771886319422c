package domain

import "time"

// Settlement is the statement produced when a booking's money is settled.
type Settlement struct {
	ID                 string
	BookingID          string
	RenterID           string
	OwnerID            string
	Currency           string
	RentalChargedCents int64
	OwnerPayoutCents   int64
	PlatformFeeCents   int64
	FGOContribution    int64
	DepositCents       int64
	DepositCharged     int64
	DepositReleased    int64
	Waterfall          *Waterfall
	CreatedAt          time.Time
}
