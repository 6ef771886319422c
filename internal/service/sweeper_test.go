package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorent/internal/config"
	"autorent/internal/domain"
)

type busyLeader struct{}

func (busyLeader) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return "", false, nil
}

func (busyLeader) Release(ctx context.Context, key, token string) error { return nil }

// ─── 1. SWEEPER ───

func TestSweep_ExpiresUnconfirmedHolds(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.book(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))

	res, err := f.engine.Sweeper.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)

	f.advance(25 * time.Hour)
	res, err = f.engine.Sweeper.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)

	b = f.booking(b.ID)
	assert.Equal(t, domain.BookingStatusExpired, b.Status)
	assert.Equal(t, "hold_window_expired", b.CancelReason)
	assert.Equal(t, int64(50000), f.account(testRenter).AvailableCents())

	res, err = f.engine.Sweeper.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Expired)
	f.requireConsistent(testRenter)
}

func TestSweep_AutoCompletesAfterInspectionGrace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.returned(f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet)))

	f.advance(47 * time.Hour)
	res, err := f.engine.Sweeper.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.AutoCompleted)

	f.advance(2 * time.Hour)
	res, err = f.engine.Sweeper.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AutoCompleted)

	assert.Equal(t, domain.BookingStatusCompleted, f.booking(b.ID).Status)
	assert.Equal(t, int64(20000), f.account(testRenter).BalanceCents)
	assert.Equal(t, int64(25000), f.account(testOwner).BalanceCents)
}

func TestSweep_AnnualImprovement(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	twoYearsAgo := f.clock().AddDate(-2, 0, 0)
	require.NoError(t, f.store.Risk().SaveProfile(f.ctx, &domain.DriverRiskProfile{
		UserID:          "renter-9",
		Class:           7,
		DriverScore:     80,
		LastClaimAt:     twoYearsAgo,
		LastClassChange: twoYearsAgo,
	}))

	res, err := f.engine.Sweeper.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Improved)

	p, err := f.engine.Risk.Profile(f.ctx, "renter-9")
	require.NoError(t, err)
	assert.Equal(t, 6, p.Class)
	assert.Equal(t, 1, p.GoodYears)

	res, err = f.engine.Sweeper.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Improved)
}

func TestSweep_NotLeader_Skips(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.book(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))
	f.engine.Sweeper.leader = busyLeader{}

	f.advance(25 * time.Hour)
	res, err := f.engine.Sweeper.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
	assert.Equal(t, domain.BookingStatusPending, f.booking(b.ID).Status)
}

// ─── 2. RETRY WORKER ───

func TestRetryWorker_ParksAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(p *config.Policy) { p.Retry.QueueMaxAttempts = 2 })
	f.provider.TransientFailures = 100

	job := &domain.ProviderJob{ID: "job-1", Op: domain.ProviderVoid, BookingID: "b1", HoldID: "hold-1"}
	f.engine.Retry.Process(f.ctx, job)

	require.Equal(t, 1, f.queue.Len())
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, f.clock().Add(60*time.Second), job.NotBefore)
	assert.False(t, f.notifier.has(domain.EventProviderManualReview))

	next, err := f.queue.Dequeue(f.ctx, time.Millisecond)
	require.NoError(t, err)
	f.engine.Retry.Process(f.ctx, next)

	assert.Equal(t, 0, f.queue.Len())
	require.Len(t, f.queue.Reviewed(), 1)
	assert.Equal(t, "job-1", f.queue.Reviewed()[0].ID)
	assert.True(t, f.notifier.has(domain.EventProviderManualReview))
}

func TestRetryWorker_RunDrainsDueJobs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.provider.Holds["hold-1"] = 1000
	require.NoError(t, f.queue.Enqueue(f.ctx, &domain.ProviderJob{
		ID:          "job-1",
		Op:          domain.ProviderCapture,
		HoldID:      "hold-1",
		AmountCents: 1000,
	}))

	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan struct{})
	go func() {
		f.engine.Retry.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		f.provider.mu.Lock()
		defer f.provider.mu.Unlock()
		return f.provider.Captured["hold-1"] == 1000
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
