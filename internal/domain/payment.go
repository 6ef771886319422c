package domain

import "time"

// ProviderOp is a call against the external payment provider.
type ProviderOp string

const (
	ProviderAuthorize ProviderOp = "authorize"
	ProviderCapture   ProviderOp = "capture"
	ProviderVoid      ProviderOp = "void"
	ProviderPayout    ProviderOp = "payout"
)

// ProviderJob is a provider call that failed transiently and waits on the
// retry queue.
type ProviderJob struct {
	ID          string     `json:"id"`
	Op          ProviderOp `json:"op"`
	BookingID   string     `json:"booking_id,omitempty"`
	UserID      string     `json:"user_id,omitempty"`
	HoldID      string     `json:"hold_id,omitempty"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	Reference   string     `json:"reference,omitempty"`
	Attempts    int        `json:"attempts"`
	NotBefore   time.Time  `json:"not_before"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
