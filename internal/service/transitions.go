package service

import (
	"fmt"

	"autorent/internal/domain"
)

// transitions is the booking state graph. Legacy statuses resolve through
// their canonical status before lookup.
var transitions = map[domain.BookingStatus][]domain.BookingStatus{
	domain.BookingStatusPendingPayment: {
		domain.BookingStatusPending,
		domain.BookingStatusPaymentValidationFailed,
		domain.BookingStatusCancelledSystem,
		domain.BookingStatusExpired,
	},
	domain.BookingStatusPaymentValidationFailed: {
		domain.BookingStatusPendingPayment,
		domain.BookingStatusCancelledSystem,
	},
	domain.BookingStatusPending: {
		domain.BookingStatusConfirmed,
		domain.BookingStatusRejected,
		domain.BookingStatusCancelledOwner,
		domain.BookingStatusCancelledRenter,
		domain.BookingStatusCancelledSystem,
		domain.BookingStatusExpired,
	},
	domain.BookingStatusConfirmed: {
		domain.BookingStatusInProgress,
		domain.BookingStatusCancelledOwner,
		domain.BookingStatusCancelledRenter,
		domain.BookingStatusCancelledSystem,
		domain.BookingStatusNoShow,
	},
	domain.BookingStatusInProgress: {
		domain.BookingStatusReturned,
	},
	domain.BookingStatusReturned: {
		domain.BookingStatusInspectedGood,
		domain.BookingStatusDamageReported,
		domain.BookingStatusDisputed,
		domain.BookingStatusCompleted,
	},
	domain.BookingStatusInspectedGood: {
		domain.BookingStatusCompleted,
		domain.BookingStatusDisputed,
	},
	domain.BookingStatusDamageReported: {
		domain.BookingStatusCompleted,
		domain.BookingStatusDisputed,
	},
	domain.BookingStatusDisputed: {
		domain.BookingStatusResolved,
	},
}

// CanTransition reports whether a booking in from may move to to.
func CanTransition(from, to domain.BookingStatus) bool {
	for _, next := range transitions[from.Canonical()] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition returns ErrInvalidTransition if b cannot move to to.
func checkTransition(b *domain.Booking, to domain.BookingStatus) error {
	if !CanTransition(b.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}
	return nil
}

// inStatus reports whether b's canonical status is one of statuses.
func inStatus(b *domain.Booking, statuses ...domain.BookingStatus) bool {
	current := b.Status.Canonical()
	for _, s := range statuses {
		if current == s {
			return true
		}
	}
	return false
}
