package service

import "errors"

var (
	// ErrInvalidRange is returned when a booking range is empty, reversed or too long.
	ErrInvalidRange = errors.New("invalid booking range")

	// ErrInvalidAmount is returned when an amount is zero or negative.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidID is returned when a required identifier is empty.
	ErrInvalidID = errors.New("invalid id")

	// ErrInvalidPaymentMode is returned when the payment mode is unknown.
	ErrInvalidPaymentMode = errors.New("invalid payment mode")

	// ErrInvalidSeverity is returned when a claim severity is unknown.
	ErrInvalidSeverity = errors.New("invalid severity")

	// ErrInvalidSubfund is returned when a guarantee fund pool is unknown.
	ErrInvalidSubfund = errors.New("invalid subfund")

	// ErrIdempotencyKeyRequired is returned when an externally sourced movement has no key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")

	// ErrDamageDetailsRequired is returned when a damage report lacks amount, description or evidence.
	ErrDamageDetailsRequired = errors.New("damage report requires amount, description and evidence")

	// ErrBookingOverlap is returned when the car is already booked for part of the range.
	ErrBookingOverlap = errors.New("car already booked for the requested range")

	// ErrCarUnavailable is returned when the car is inactive.
	ErrCarUnavailable = errors.New("car not available")

	// ErrOwnerSuspended is returned when the car's owner is suspended.
	ErrOwnerSuspended = errors.New("owner suspended")

	// ErrBookingNotFound is returned when a booking does not exist.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrCarNotFound is returned when a car does not exist.
	ErrCarNotFound = errors.New("car not found")

	// ErrClaimNotFound is returned when a claim does not exist.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrLockNotFound is returned when no wallet lock exists for a reference.
	ErrLockNotFound = errors.New("wallet lock not found")

	// ErrAccountNotFound is returned when a wallet account does not exist.
	ErrAccountNotFound = errors.New("wallet account not found")

	// ErrInvalidTransition is returned when a booking cannot move to the requested status.
	ErrInvalidTransition = errors.New("invalid booking transition")

	// ErrNotPermitted is returned when the actor may not perform the action.
	ErrNotPermitted = errors.New("action not permitted for actor")

	// ErrCancellationWindowClosed is returned when a booking is cancelled after its start.
	ErrCancellationWindowClosed = errors.New("booking already started")

	// ErrNoShowTooEarly is returned when a no-show is reported before the start time.
	ErrNoShowTooEarly = errors.New("no-show reported before start time")

	// ErrClaimClosed is returned when a resolved or rejected claim is acted upon.
	ErrClaimClosed = errors.New("claim already closed")

	// ErrClaimInProgress is returned when money is drawn around an open claim.
	ErrClaimInProgress = errors.New("booking has a claim awaiting resolution")

	// ErrWaterfallMismatch is returned when a claim was already drawn for a different amount.
	ErrWaterfallMismatch = errors.New("claim already drawn for a different amount")

	// ErrLockInUse is returned when a lock belongs to a booking or withdrawal still in flight.
	ErrLockInUse = errors.New("wallet lock held by an active operation")

	// ErrInsufficientFunds is returned when available balance does not cover an amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientFundBalance is returned when a subfund cannot cover a rebalance.
	ErrInsufficientFundBalance = errors.New("insufficient subfund balance")

	// ErrCurrencyMismatch is returned when an amount's currency differs from the wallet's.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrAccountFrozen is returned when a frozen wallet is mutated.
	ErrAccountFrozen = errors.New("wallet account frozen")

	// ErrIntegrityViolation is returned when the ledger and cached balances disagree.
	ErrIntegrityViolation = errors.New("ledger integrity violation")

	// ErrConcurrencyConflict is returned when a unit of work kept losing races.
	ErrConcurrencyConflict = errors.New("concurrent modification, retry later")

	// ErrProviderDeclined is returned when the payment provider refused an operation.
	ErrProviderDeclined = errors.New("payment provider declined")

	// ErrProviderUnavailable is returned when the payment provider could not be reached.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrInsuranceActivation is returned when coverage could not be activated.
	ErrInsuranceActivation = errors.New("insurance activation failed")

	// ErrInsuranceNotActive is returned when a booking without coverage is confirmed.
	ErrInsuranceNotActive = errors.New("insurance not active")

	// ErrInvalidPriceLock is returned when a price-lock token is malformed, forged or expired.
	ErrInvalidPriceLock = errors.New("invalid price lock")

	// ErrPriceLockMismatch is returned when a price-lock token was issued for another request.
	ErrPriceLockMismatch = errors.New("price lock does not match request")

	// ErrOperatorRequired is returned when a privileged operation has no operator.
	ErrOperatorRequired = errors.New("operator id required")
)
