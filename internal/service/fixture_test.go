package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"autorent/internal/config"
	"autorent/internal/domain"
	"autorent/internal/repository/memory"
)

const (
	testOwner    = "owner-1"
	testRenter   = "renter-1"
	testPlatform = "platform"
)

// recordingNotifier keeps every event it receives.
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) has(t domain.EventType) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

// fixture is an engine over the in-memory store with a fixed clock.
type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	engine   *Engine
	provider *MockProvider
	insurer  *MockInsurer
	queue    *LocalQueue
	notifier *recordingNotifier
	policy   config.Policy

	mu  sync.Mutex
	now time.Time
}

func testPolicy() config.Policy {
	p := config.DefaultPolicy()
	p.Pricing.InsuranceDailyCents = 2000
	p.Retry.ProviderBackoff = time.Millisecond
	p.Retry.InsuranceBackoff = time.Millisecond
	p.Retry.ConflictBackoff = time.Millisecond
	return p
}

func newFixture(t *testing.T, tweak ...func(*config.Policy)) *fixture {
	t.Helper()
	policy := testPolicy()
	for _, fn := range tweak {
		fn(&policy)
	}

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    memory.NewStore(),
		provider: NewMockProvider(),
		insurer:  NewMockInsurer(),
		queue:    NewLocalQueue(),
		notifier: &recordingNotifier{},
		policy:   policy,
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(Deps{
		Store:    f.store,
		Provider: f.provider,
		Insurer:  f.insurer,
		Queue:    f.queue,
		Notifier: f.notifier,
		Policy:   policy,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	f.engine.setClock(f.clock)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// car lists a car at 25000 a day with a 20000 deposit.
func (f *fixture) car(tweak ...func(*CreateCarRequest)) *domain.Car {
	f.t.Helper()
	req := CreateCarRequest{
		OwnerID:        testOwner,
		Currency:       "USD",
		DailyRateCents: 25000,
		DepositCents:   20000,
	}
	for _, fn := range tweak {
		fn(&req)
	}
	car, err := f.engine.Bookings.CreateCar(f.ctx, req)
	require.NoError(f.t, err)
	return car
}

func (f *fixture) fund(userID string, amount int64) {
	f.t.Helper()
	_, err := f.engine.Ledger.Deposit(f.ctx, DepositRequest{
		UserID:         userID,
		AmountCents:    amount,
		Currency:       "USD",
		IdempotencyKey: "seed:" + uuid.New().String(),
	})
	require.NoError(f.t, err)
}

func (f *fixture) seedFund(amount int64) {
	f.t.Helper()
	_, err := f.engine.Fund.Contribute(f.ctx, "seed", amount, "USD")
	require.NoError(f.t, err)
}

// oneDay is a one-day booking starting a week from now.
func (f *fixture) oneDay(carID, renterID string, mode domain.PaymentMode) RequestBookingRequest {
	start := f.clock().Add(7 * 24 * time.Hour)
	return RequestBookingRequest{
		CarID:       carID,
		RenterID:    renterID,
		StartAt:     start,
		EndAt:       start.Add(24 * time.Hour),
		PaymentMode: mode,
	}
}

func (f *fixture) book(req RequestBookingRequest) *domain.Booking {
	f.t.Helper()
	b, err := f.engine.Bookings.RequestBooking(f.ctx, req)
	require.NoError(f.t, err)
	return b
}

// returned drives a booking from confirmed to returned.
func (f *fixture) returned(b *domain.Booking) *domain.Booking {
	f.t.Helper()
	b, err := f.engine.Bookings.Start(f.ctx, b.ID, b.RenterID)
	require.NoError(f.t, err)
	b, err = f.engine.Bookings.Return(f.ctx, b.ID, b.RenterID)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) confirmed(req RequestBookingRequest) *domain.Booking {
	f.t.Helper()
	b := f.book(req)
	if b.Status == domain.BookingStatusConfirmed {
		return b
	}
	b, err := f.engine.Bookings.Approve(f.ctx, b.ID, b.OwnerID)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) account(userID string) *domain.WalletAccount {
	f.t.Helper()
	a, err := f.engine.Ledger.Balance(f.ctx, userID)
	require.NoError(f.t, err)
	return a
}

func (f *fixture) booking(id string) *domain.Booking {
	f.t.Helper()
	b, err := f.store.Bookings().GetByID(f.ctx, id)
	require.NoError(f.t, err)
	return b
}

// requireConsistent checks a wallet against its ledger.
func (f *fixture) requireConsistent(userID string) {
	f.t.Helper()
	report, err := f.engine.Ledger.Reconcile(f.ctx, userID)
	require.NoError(f.t, err)
	require.True(f.t, report.Consistent)
	require.GreaterOrEqual(f.t, report.CachedBalance-report.CachedLocked, int64(0))
}
