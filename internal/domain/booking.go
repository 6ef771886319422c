package domain

import (
	"strings"
	"time"
)

// BookingStatus represents the persisted status of a booking.
type BookingStatus string

const (
	BookingStatusPending                  BookingStatus = "pending"
	BookingStatusConfirmed                BookingStatus = "confirmed"
	BookingStatusInProgress               BookingStatus = "in_progress"
	BookingStatusCompleted                BookingStatus = "completed"
	BookingStatusCancelled                BookingStatus = "cancelled"
	BookingStatusCancelledOwner           BookingStatus = "cancelled_owner"
	BookingStatusCancelledRenter          BookingStatus = "cancelled_renter"
	BookingStatusPendingReturn            BookingStatus = "pending_return"
	BookingStatusDispute                  BookingStatus = "dispute"
	BookingStatusPaymentValidationFailed  BookingStatus = "payment_validation_failed"
	BookingStatusReturned                 BookingStatus = "returned"
	BookingStatusInspectedGood            BookingStatus = "inspected_good"
	BookingStatusDamageReported           BookingStatus = "damage_reported"
	BookingStatusDisputed                 BookingStatus = "disputed"
	BookingStatusPendingPayment           BookingStatus = "pending_payment"
	BookingStatusPendingApproval          BookingStatus = "pending_approval"
	BookingStatusPendingDisputeResolution BookingStatus = "pending_dispute_resolution"
	BookingStatusPendingOwnerApproval     BookingStatus = "pending_owner_approval"
	BookingStatusPendingReview            BookingStatus = "pending_review"
	BookingStatusResolved                 BookingStatus = "resolved"
	BookingStatusCancelledSystem          BookingStatus = "cancelled_system"
	BookingStatusRejected                 BookingStatus = "rejected"
	BookingStatusNoShow                   BookingStatus = "no_show"
	BookingStatusExpired                  BookingStatus = "expired"
)

// AllBookingStatuses lists every persisted status value.
var AllBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusInProgress,
	BookingStatusCompleted,
	BookingStatusCancelled,
	BookingStatusCancelledOwner,
	BookingStatusCancelledRenter,
	BookingStatusPendingReturn,
	BookingStatusDispute,
	BookingStatusPaymentValidationFailed,
	BookingStatusReturned,
	BookingStatusInspectedGood,
	BookingStatusDamageReported,
	BookingStatusDisputed,
	BookingStatusPendingPayment,
	BookingStatusPendingApproval,
	BookingStatusPendingDisputeResolution,
	BookingStatusPendingOwnerApproval,
	BookingStatusPendingReview,
	BookingStatusResolved,
	BookingStatusCancelledSystem,
	BookingStatusRejected,
	BookingStatusNoShow,
	BookingStatusExpired,
}

// legacyStatuses maps statuses that are read but never written to the
// status whose transitions they share.
var legacyStatuses = map[BookingStatus]BookingStatus{
	BookingStatusPendingApproval:          BookingStatusPending,
	BookingStatusPendingOwnerApproval:     BookingStatusPending,
	BookingStatusPendingReturn:            BookingStatusInProgress,
	BookingStatusPendingReview:            BookingStatusReturned,
	BookingStatusDispute:                  BookingStatusDisputed,
	BookingStatusPendingDisputeResolution: BookingStatusDisputed,
	BookingStatusCancelled:                BookingStatusCancelledSystem,
}

// Canonical returns the status whose transitions apply to s.
func (s BookingStatus) Canonical() BookingStatus {
	if c, ok := legacyStatuses[s]; ok {
		return c
	}
	return s
}

// Valid reports whether s is a known persisted status.
func (s BookingStatus) Valid() bool {
	for _, known := range AllBookingStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s BookingStatus) IsTerminal() bool {
	switch s.Canonical() {
	case BookingStatusCompleted,
		BookingStatusCancelledOwner,
		BookingStatusCancelledRenter,
		BookingStatusCancelledSystem,
		BookingStatusRejected,
		BookingStatusExpired,
		BookingStatusResolved,
		BookingStatusNoShow:
		return true
	}
	return false
}

// HoldsCalendar reports whether a booking in this status occupies the car.
func (s BookingStatus) HoldsCalendar() bool {
	return !s.IsTerminal() && s.Canonical() != BookingStatusPaymentValidationFailed
}

// PaymentMode is how the renter funds a booking.
type PaymentMode string

const (
	PaymentModeWallet        PaymentMode = "wallet"
	PaymentModeCard          PaymentMode = "card"
	PaymentModePartialWallet PaymentMode = "partial_wallet"
)

// Valid reports whether m is a supported payment mode.
func (m PaymentMode) Valid() bool {
	return m == PaymentModeWallet || m == PaymentModeCard || m == PaymentModePartialWallet
}

// UsesCard reports whether part of the booking is held on a card.
func (m PaymentMode) UsesCard() bool {
	return m == PaymentModeCard || m == PaymentModePartialWallet
}

// WalletStatus tracks what happened to the booking's wallet lock.
type WalletStatus string

const (
	WalletStatusNone     WalletStatus = "none"
	WalletStatusLocked   WalletStatus = "locked"
	WalletStatusCharged  WalletStatus = "charged"
	WalletStatusReleased WalletStatus = "released"
)

// ActorRole identifies who initiated an action.
type ActorRole string

const (
	ActorRenter ActorRole = "renter"
	ActorOwner  ActorRole = "owner"
	ActorSystem ActorRole = "system"
	ActorAdmin  ActorRole = "admin"
)

// PriceBreakdown is the money breakdown of a booking, in cents.
type PriceBreakdown struct {
	Currency         string
	Days             int
	DailyRateCents   int64
	SubtotalCents    int64
	ServiceFeeCents  int64
	InsuranceCents   int64
	DepositCents     int64
	TotalCents       int64 // subtotal + service fee + insurance
	RiskClass        int
	DemandMultiplier string
}

// HoldCents is the amount secured at request time: rental plus deposit.
func (p PriceBreakdown) HoldCents() int64 {
	return p.TotalCents + p.DepositCents
}

// Booking represents the rental of one car by one renter over [StartAt, EndAt).
type Booking struct {
	ID       string
	CarID    string
	RenterID string
	OwnerID  string
	StartAt  time.Time
	EndAt    time.Time
	Status   BookingStatus
	Price    PriceBreakdown

	PaymentMode       PaymentMode
	CancelPolicy      CancelPolicy
	WalletLockRef     string
	WalletStatus      WalletStatus
	CardHoldID        string
	CardHoldCents     int64
	CardCapturedCents int64
	InsurancePolicy   string

	ClaimID                string
	OwnerConfirmedDelivery bool
	RenterConfirmedPayment bool
	ReturnedAt             time.Time
	FundsReleasedAt        time.Time
	RentalSettledAt        time.Time

	CancelledBy          ActorRole
	CancelReason         string
	CancellationFeeCents int64

	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// Overlaps reports whether [start, end) intersects the booking's range.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartAt.Before(end) && start.Before(b.EndAt)
}

const rentalLockPrefix = "booking:"

// RentalLockRef is the wallet lock reference used for a booking.
func RentalLockRef(bookingID string) string {
	return rentalLockPrefix + bookingID
}

// BookingIDFromLockRef reverses RentalLockRef.
func BookingIDFromLockRef(ref string) (string, bool) {
	id, ok := strings.CutPrefix(ref, rentalLockPrefix)
	return id, ok && id != ""
}
