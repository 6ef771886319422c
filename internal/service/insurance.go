package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"autorent/internal/config"
	"autorent/internal/domain"
)

// InsuranceProvider activates the mandatory coverage of a booking.
type InsuranceProvider interface {
	Activate(ctx context.Context, booking *domain.Booking) (policyID string, err error)
}

// MockInsurer is an in-process InsuranceProvider.
type MockInsurer struct {
	mu sync.Mutex

	// Fail makes every activation fail.
	Fail bool
	// TransientFailures fails that many activations before succeeding.
	TransientFailures int
	Calls             int
	Policies          map[string]string
}

// NewMockInsurer creates a new mock insurer.
func NewMockInsurer() *MockInsurer {
	return &MockInsurer{Policies: make(map[string]string)}
}

// Activate issues a policy for the booking.
func (m *MockInsurer) Activate(ctx context.Context, booking *domain.Booking) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Fail {
		return "", errors.New("insurer rejected booking")
	}
	if m.TransientFailures > 0 {
		m.TransientFailures--
		return "", errors.New("insurer timeout")
	}
	id := "pol_" + uuid.New().String()
	m.Policies[booking.ID] = id
	return id, nil
}

// insuranceActivator retries activation a bounded number of times.
type insuranceActivator struct {
	provider InsuranceProvider
	policy   config.RetryPolicy
}

func (a *insuranceActivator) activate(ctx context.Context, b *domain.Booking) (string, error) {
	attempts := a.policy.InsuranceAttempts
	if attempts < 1 {
		attempts = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.policy.InsuranceBackoff
	bo.MaxElapsedTime = 0

	var policyID string
	err := backoff.Retry(func() error {
		id, err := a.provider.Activate(ctx, b)
		policyID = id
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInsuranceActivation, err)
	}
	return policyID, nil
}
