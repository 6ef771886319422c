package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"autorent/internal/config"
	"autorent/internal/domain"
	"autorent/internal/metrics"
)

// AuthorizeRequest asks the provider to hold an amount on the renter's card.
type AuthorizeRequest struct {
	BookingID   string
	UserID      string
	AmountCents int64
	Currency    string
}

// PayoutRequest asks the provider to send money to a user's bank account.
type PayoutRequest struct {
	UserID      string
	AmountCents int64
	Currency    string
	Reference   string
}

// PaymentProvider is the escrow contract required from a card processor.
// A definite refusal is reported with an error wrapping ErrProviderDeclined;
// any other error is treated as transient.
type PaymentProvider interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (holdID string, err error)
	Capture(ctx context.Context, holdID string, amountCents int64) error
	Void(ctx context.Context, holdID string) error
	Payout(ctx context.Context, req PayoutRequest) (payoutID string, err error)
}

// MockProvider is an in-process PaymentProvider. It succeeds unless told
// otherwise.
type MockProvider struct {
	mu sync.Mutex

	// DeclineAuthorize makes every authorization a definite decline.
	DeclineAuthorize bool
	// DeclinePayout makes every payout a definite decline.
	DeclinePayout bool
	// TransientFailures fails that many calls before succeeding.
	TransientFailures int

	Holds    map[string]int64
	Captured map[string]int64
	Voided   map[string]bool
	Payouts  []PayoutRequest
}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Holds:    make(map[string]int64),
		Captured: make(map[string]int64),
		Voided:   make(map[string]bool),
	}
}

func (p *MockProvider) transient() error {
	if p.TransientFailures > 0 {
		p.TransientFailures--
		return errors.New("provider timeout")
	}
	return nil
}

// Authorize places a hold.
func (p *MockProvider) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transient(); err != nil {
		return "", err
	}
	if p.DeclineAuthorize {
		return "", fmt.Errorf("%w: card declined", ErrProviderDeclined)
	}
	id := "hold_" + uuid.New().String()
	p.Holds[id] = req.AmountCents
	return id, nil
}

// Capture settles part or all of a hold.
func (p *MockProvider) Capture(ctx context.Context, holdID string, amountCents int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transient(); err != nil {
		return err
	}
	held, ok := p.Holds[holdID]
	if !ok || amountCents > held {
		return fmt.Errorf("%w: capture exceeds hold", ErrProviderDeclined)
	}
	p.Captured[holdID] = amountCents
	return nil
}

// Void releases a hold.
func (p *MockProvider) Void(ctx context.Context, holdID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transient(); err != nil {
		return err
	}
	p.Voided[holdID] = true
	return nil
}

// Payout sends money out.
func (p *MockProvider) Payout(ctx context.Context, req PayoutRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transient(); err != nil {
		return "", err
	}
	if p.DeclinePayout {
		return "", fmt.Errorf("%w: payout rejected", ErrProviderDeclined)
	}
	p.Payouts = append(p.Payouts, req)
	return "po_" + uuid.New().String(), nil
}

// ProviderClient wraps a PaymentProvider with a per-call timeout and
// bounded exponential backoff. It never runs inside a unit of work.
type ProviderClient struct {
	provider PaymentProvider
	policy   config.RetryPolicy
	logger   *slog.Logger
}

// NewProviderClient creates a new ProviderClient.
func NewProviderClient(provider PaymentProvider, policy config.RetryPolicy, logger *slog.Logger) *ProviderClient {
	return &ProviderClient{provider: provider, policy: policy, logger: logger}
}

func (c *ProviderClient) call(ctx context.Context, op domain.ProviderOp, fn func(ctx context.Context) error) error {
	attempts := c.policy.ProviderAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.ProviderBackoff
	b.MaxElapsedTime = 0

	operation := func() error {
		callCtx := ctx
		if c.policy.ProviderTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.policy.ProviderTimeout)
			defer cancel()
		}
		err := fn(callCtx)
		if err != nil && errors.Is(err, ErrProviderDeclined) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
	switch {
	case err == nil:
		metrics.RecordProviderCall(string(op), "ok")
		return nil
	case errors.Is(err, ErrProviderDeclined):
		metrics.RecordProviderCall(string(op), "declined")
		return err
	default:
		metrics.RecordProviderCall(string(op), "unavailable")
		c.logger.Warn("payment provider unavailable", "op", op, "error", err)
		return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, op, err)
	}
}

// Authorize places a hold on the renter's card.
func (c *ProviderClient) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	var holdID string
	err := c.call(ctx, domain.ProviderAuthorize, func(ctx context.Context) error {
		id, err := c.provider.Authorize(ctx, req)
		holdID = id
		return err
	})
	return holdID, err
}

// Capture settles amountCents of a hold and releases the rest.
func (c *ProviderClient) Capture(ctx context.Context, holdID string, amountCents int64) error {
	return c.call(ctx, domain.ProviderCapture, func(ctx context.Context) error {
		return c.provider.Capture(ctx, holdID, amountCents)
	})
}

// Void releases a hold in full.
func (c *ProviderClient) Void(ctx context.Context, holdID string) error {
	return c.call(ctx, domain.ProviderVoid, func(ctx context.Context) error {
		return c.provider.Void(ctx, holdID)
	})
}

// Payout sends a withdrawal to the user.
func (c *ProviderClient) Payout(ctx context.Context, req PayoutRequest) (string, error) {
	var payoutID string
	err := c.call(ctx, domain.ProviderPayout, func(ctx context.Context) error {
		id, err := c.provider.Payout(ctx, req)
		payoutID = id
		return err
	})
	return payoutID, err
}
