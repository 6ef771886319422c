package domain

import "time"

// EventType names a lifecycle event published to collaborators.
type EventType string

const (
	EventBookingRequested     EventType = "booking.requested"
	EventBookingTransitioned  EventType = "booking.transitioned"
	EventBookingSettled       EventType = "booking.settled"
	EventPaymentDeclined      EventType = "payment.declined"
	EventInsuranceFailed      EventType = "insurance.failed"
	EventClaimOpened          EventType = "claim.opened"
	EventClaimClosed          EventType = "claim.closed"
	EventLossRecorded         EventType = "fgo.loss_recorded"
	EventAccountFrozen        EventType = "wallet.frozen"
	EventProviderManualReview EventType = "provider.manual_review"
)

// Event is a notification about something that already happened.
type Event struct {
	Type       EventType         `json:"type"`
	BookingID  string            `json:"booking_id,omitempty"`
	ClaimID    string            `json:"claim_id,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	Status     string            `json:"status,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
