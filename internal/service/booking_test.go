package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorent/internal/domain"
)

// ──────────────────────────────────────────────
// 1. REQUEST & WALLET HOLD
// ──────────────────────────────────────────────

func TestRequestBooking_WalletMode_LocksRentalAndDeposit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)

	b := f.book(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))

	assert.Equal(t, domain.BookingStatusPending, b.Status)
	assert.NotEmpty(t, b.InsurancePolicy)
	assert.Equal(t, domain.WalletStatusLocked, b.WalletStatus)
	assert.Equal(t, int64(25000), b.Price.SubtotalCents)
	assert.Equal(t, int64(3000), b.Price.ServiceFeeCents)
	assert.Equal(t, int64(2000), b.Price.InsuranceCents)
	assert.Equal(t, int64(30000), b.Price.TotalCents)
	assert.Equal(t, int64(20000), b.Price.DepositCents)

	acct := f.account(testRenter)
	assert.Equal(t, int64(0), acct.AvailableCents())
	assert.Equal(t, int64(50000), acct.LockedCents)
	f.requireConsistent(testRenter)
}

func TestRejectBooking_ReleasesLockExactly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.book(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))

	b, err := f.engine.Bookings.Reject(f.ctx, b.ID, testOwner, "car in service")
	require.NoError(t, err)

	assert.Equal(t, domain.BookingStatusRejected, b.Status)
	assert.Equal(t, domain.WalletStatusReleased, b.WalletStatus)
	acct := f.account(testRenter)
	assert.Equal(t, int64(50000), acct.AvailableCents())
	assert.Equal(t, int64(0), acct.LockedCents)
	f.requireConsistent(testRenter)
}

func TestRequestBooking_InsufficientFunds_CreatesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 49999)

	_, err := f.engine.Bookings.RequestBooking(f.ctx, f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	active, err := f.store.Bookings().ListActiveByCar(f.ctx, car.ID, f.clock(), f.clock().Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, int64(49999), f.account(testRenter).AvailableCents())
}

func TestRequestBooking_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	valid := f.oneDay(car.ID, testRenter, domain.PaymentModeWallet)

	testCases := []struct {
		name    string
		mutate  func(r *RequestBookingRequest)
		wantErr error
	}{
		{"end before start", func(r *RequestBookingRequest) { r.EndAt = r.StartAt.Add(-time.Hour) }, ErrInvalidRange},
		{"start in the past", func(r *RequestBookingRequest) { r.StartAt = f.clock().Add(-time.Hour) }, ErrInvalidRange},
		{"too long", func(r *RequestBookingRequest) { r.EndAt = r.StartAt.Add(91 * 24 * time.Hour) }, ErrInvalidRange},
		{"unknown payment mode", func(r *RequestBookingRequest) { r.PaymentMode = "cash" }, ErrInvalidPaymentMode},
		{"missing renter", func(r *RequestBookingRequest) { r.RenterID = "" }, ErrInvalidID},
		{"unknown car", func(r *RequestBookingRequest) { r.CarID = "nope" }, ErrCarNotFound},
		{"own car", func(r *RequestBookingRequest) { r.RenterID = testOwner }, ErrNotPermitted},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			_, err := f.engine.Bookings.RequestBooking(f.ctx, req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRequestBooking_ConcurrentOverlap_ExactlyOneWins(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	renters := []string{"renter-a", "renter-b"}
	for _, r := range renters {
		f.fund(r, 50000)
	}

	start := f.clock().Add(7 * 24 * time.Hour)
	errs := make([]error, len(renters))
	var wg sync.WaitGroup
	for i, r := range renters {
		wg.Add(1)
		go func(i int, renter string) {
			defer wg.Done()
			_, errs[i] = f.engine.Bookings.RequestBooking(f.ctx, RequestBookingRequest{
				CarID:       car.ID,
				RenterID:    renter,
				StartAt:     start.Add(time.Duration(i) * 12 * time.Hour),
				EndAt:       start.Add(time.Duration(i)*12*time.Hour + 24*time.Hour),
				PaymentMode: domain.PaymentModeWallet,
			})
		}(i, r)
	}
	wg.Wait()

	var won, overlapped int
	for i, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrBookingOverlap):
			overlapped++
			assert.Equal(t, int64(50000), f.account(renters[i]).AvailableCents())
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, overlapped)
}

func TestRequestBooking_AutoApproveCar_Confirms(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car(func(r *CreateCarRequest) { r.AutoApprove = true })
	f.fund(testRenter, 50000)

	b := f.book(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))
	assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
}

func TestRequestBooking_InsuranceFailure_CancelsAndReleases(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	f.insurer.Fail = true

	b, err := f.engine.Bookings.RequestBooking(f.ctx, f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))
	require.ErrorIs(t, err, ErrInsuranceActivation)
	require.NotNil(t, b)

	assert.Equal(t, domain.BookingStatusCancelledSystem, b.Status)
	assert.Equal(t, "system_failure:insurance_activation_failed", b.CancelReason)
	assert.Equal(t, 3, f.insurer.Calls)
	assert.Equal(t, int64(50000), f.account(testRenter).AvailableCents())
	assert.True(t, f.notifier.has(domain.EventInsuranceFailed))
	f.requireConsistent(testRenter)
}

// ──────────────────────────────────────────────
// 2. CARD SAGA
// ──────────────────────────────────────────────

func TestRequestBooking_CardMode_AuthorizesHold(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()

	b := f.book(f.oneDay(car.ID, testRenter, domain.PaymentModeCard))

	assert.Equal(t, domain.BookingStatusPending, b.Status)
	require.NotEmpty(t, b.CardHoldID)
	assert.Equal(t, int64(50000), b.CardHoldCents)
	assert.Equal(t, int64(50000), f.provider.Holds[b.CardHoldID])
	assert.NotEmpty(t, b.InsurancePolicy)
}

func TestCompleteClean_CardMode_CapturesRental(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	b := f.returned(f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeCard)))

	st, err := f.engine.Bookings.CompleteClean(f.ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(20000), st.DepositReleased)
	assert.Equal(t, int64(30000), f.provider.Captured[b.CardHoldID])
	assert.Equal(t, int64(25000), f.account(testOwner).BalanceCents)
	assert.Equal(t, int64(3750), f.account(testPlatform).BalanceCents)
}

func TestRequestBooking_CardDeclined_FailsAndRetries(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.provider.DeclineAuthorize = true

	b, err := f.engine.Bookings.RequestBooking(f.ctx, f.oneDay(car.ID, testRenter, domain.PaymentModeCard))
	require.ErrorIs(t, err, ErrProviderDeclined)
	require.NotNil(t, b)
	assert.Equal(t, domain.BookingStatusPaymentValidationFailed, b.Status)
	assert.True(t, f.notifier.has(domain.EventPaymentDeclined))

	f.provider.DeclineAuthorize = false
	b, err = f.engine.Bookings.RetryPayment(f.ctx, b.ID, testRenter)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
	assert.NotEmpty(t, b.CardHoldID)
}

func TestRequestBooking_PartialWalletDeclined_ReleasesDeposit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 20000)
	f.provider.DeclineAuthorize = true

	b, err := f.engine.Bookings.RequestBooking(f.ctx, f.oneDay(car.ID, testRenter, domain.PaymentModePartialWallet))
	require.ErrorIs(t, err, ErrProviderDeclined)
	assert.Equal(t, domain.BookingStatusPaymentValidationFailed, b.Status)

	acct := f.account(testRenter)
	assert.Equal(t, int64(20000), acct.AvailableCents())
	assert.Equal(t, int64(0), acct.LockedCents)
	f.requireConsistent(testRenter)
}

func TestRequestBooking_ProviderUnavailable_QueuesAuthorization(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.provider.TransientFailures = 3

	b := f.book(f.oneDay(car.ID, testRenter, domain.PaymentModeCard))
	assert.Equal(t, domain.BookingStatusPendingPayment, b.Status)
	require.Equal(t, 1, f.queue.Len())

	job, err := f.queue.Dequeue(f.ctx, time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, domain.ProviderAuthorize, job.Op)
	assert.Equal(t, int64(50000), job.AmountCents)

	f.engine.Retry.Process(f.ctx, job)

	b = f.booking(b.ID)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
	assert.NotEmpty(t, b.CardHoldID)
	assert.NotEmpty(t, b.InsurancePolicy)
}

func TestCompletePaymentAuthorization_StaleHold_IsVoided(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.provider.TransientFailures = 3
	b := f.book(f.oneDay(car.ID, testRenter, domain.PaymentModeCard))
	require.Equal(t, domain.BookingStatusPendingPayment, b.Status)

	f.advance(25 * time.Hour)
	expired, err := f.engine.Bookings.ExpireStale(f.ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	_, err = f.engine.Bookings.CompletePaymentAuthorization(f.ctx, b.ID, "hold_late")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.True(t, f.provider.Voided["hold_late"])
	assert.Equal(t, domain.BookingStatusExpired, f.booking(b.ID).Status)
}

// ──────────────────────────────────────────────
// 3. COMPLETION
// ──────────────────────────────────────────────

func TestCompleteClean_SettlesRentalAndReleasesDeposit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.returned(f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet)))

	st, err := f.engine.Bookings.CompleteClean(f.ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(30000), st.RentalChargedCents)
	assert.Equal(t, int64(25000), st.OwnerPayoutCents)
	assert.Equal(t, int64(3750), st.PlatformFeeCents)
	assert.Equal(t, int64(1250), st.FGOContribution)
	assert.Equal(t, int64(20000), st.DepositReleased)
	assert.Equal(t, int64(0), st.DepositCharged)

	renter := f.account(testRenter)
	assert.Equal(t, int64(20000), renter.BalanceCents)
	assert.Equal(t, int64(0), renter.LockedCents)
	assert.Equal(t, int64(25000), f.account(testOwner).BalanceCents)
	assert.Equal(t, int64(3750), f.account(testPlatform).BalanceCents)

	owner, err := f.engine.Ledger.Transactions(f.ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, owner, 1)
	assert.Equal(t, domain.TransactionTransferIn, owner[0].Type)

	status, err := f.engine.Fund.Status(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), status.TotalCents)

	profile, err := f.engine.Risk.Profile(f.ctx, testRenter)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.CleanBookings)

	assert.Equal(t, domain.BookingStatusCompleted, f.booking(b.ID).Status)
	for _, u := range []string{testRenter, testOwner, testPlatform} {
		f.requireConsistent(u)
	}
}

func TestCompleteWithDamages_DepositThenFund(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	f.seedFund(1000000)
	b := f.returned(f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet)))

	st, err := f.engine.Bookings.CompleteWithDamages(f.ctx, DamageRequest{
		BookingID:   b.ID,
		AmountCents: 70000,
		Description: "rear bumper",
		Severity:    domain.SeverityModerate,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(20000), st.DepositCharged)
	require.NotNil(t, st.Waterfall)
	assert.Equal(t, int64(50000), st.Waterfall.Recovered(domain.StepFGOLiquidity))
	assert.Equal(t, int64(0), st.Waterfall.UncoveredCents)

	renter := f.account(testRenter)
	assert.Equal(t, int64(0), renter.BalanceCents)
	assert.Equal(t, int64(0), renter.LockedCents)
	assert.Equal(t, int64(95000), f.account(testOwner).BalanceCents)

	liquidity, err := f.store.Funds().GetSubfund(f.ctx, domain.SubfundLiquidity)
	require.NoError(t, err)
	assert.Equal(t, int64(700000+875-50000), liquidity.BalanceCents)

	profile, err := f.engine.Risk.Profile(f.ctx, testRenter)
	require.NoError(t, err)
	assert.Equal(t, 7, profile.Class)
	assert.Equal(t, 80, profile.DriverScore)

	b = f.booking(b.ID)
	assert.Equal(t, domain.BookingStatusCompleted, b.Status)
	claim, err := f.engine.Disputes.Get(f.ctx, b.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimResolved, claim.Status)
	assert.Equal(t, int64(50000), claim.FGODrawCents)
	assert.Equal(t, int64(20000), claim.ChargedRenterCents)

	for _, u := range []string{testRenter, testOwner, testPlatform} {
		f.requireConsistent(u)
	}
	discrepancies, err := f.engine.Fund.ReconcileFund(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestCompleteWithDamages_EmptyFund_RecordsLoss(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.returned(f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet)))

	st, err := f.engine.Bookings.CompleteWithDamages(f.ctx, DamageRequest{
		BookingID:   b.ID,
		AmountCents: 70000,
		Description: "engine",
		Severity:    domain.SeveritySevere,
	})
	require.NoError(t, err)

	// Only this booking's 875 reached liquidity; the monthly cap allows 8% of it.
	assert.Equal(t, int64(70), st.Waterfall.Recovered(domain.StepFGOLiquidity))
	assert.Equal(t, int64(49930), st.Waterfall.UncoveredCents)

	losses, err := f.engine.Fund.ListOpenLosses(f.ctx)
	require.NoError(t, err)
	require.Len(t, losses, 1)
	assert.Equal(t, int64(49930), losses[0].AmountCents)
	assert.True(t, f.notifier.has(domain.EventLossRecorded))
}

func TestChargeFromWallet_DrawsFromDepositOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))
	b, err := f.engine.Bookings.Start(f.ctx, b.ID, testRenter)
	require.NoError(t, err)

	charge, err := f.engine.Bookings.ChargeFromWallet(f.ctx, ChargeBookingRequest{BookingID: b.ID, ActorID: testOwner, AmountCents: 5000, Description: "tolls"})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), charge.ChargedCents)
	assert.Equal(t, int64(15000), charge.RemainingDepositCents)

	_, err = f.engine.Bookings.ChargeFromWallet(f.ctx, ChargeBookingRequest{BookingID: b.ID, ActorID: testOwner, AmountCents: 15001, Description: "fuel"})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = f.engine.Bookings.Return(f.ctx, b.ID, testRenter)
	require.NoError(t, err)
	st, err := f.engine.Bookings.CompleteClean(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), st.DepositReleased)
	assert.Equal(t, int64(15000), f.account(testRenter).BalanceCents)
	assert.Equal(t, int64(30000), f.account(testOwner).BalanceCents)
	f.requireConsistent(testRenter)
}

func TestChargeFromWallet_ByRenter_NotPermitted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.returned(f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet)))

	_, err := f.engine.Bookings.ChargeFromWallet(f.ctx, ChargeBookingRequest{BookingID: b.ID, ActorID: testRenter, AmountCents: 100})
	assert.ErrorIs(t, err, ErrNotPermitted)

	_, err = f.engine.Bookings.ChargeFromWallet(f.ctx, ChargeBookingRequest{BookingID: b.ID, OperatorID: "ops-1", AmountCents: 100})
	assert.NoError(t, err)

	_, err = f.engine.Bookings.CompleteCleanBy(f.ctx, b.ID, testRenter, "")
	assert.ErrorIs(t, err, ErrNotPermitted)
	assert.Equal(t, domain.BookingStatusReturned, f.booking(b.ID).Status)
}

func TestChargeFromWallet_WrongStatus_Fails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.book(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))

	_, err := f.engine.Bookings.ChargeFromWallet(f.ctx, ChargeBookingRequest{BookingID: b.ID, ActorID: testOwner, AmountCents: 100})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// ──────────────────────────────────────────────
// 4. TRANSITIONS
// ──────────────────────────────────────────────

func TestTransitions_TerminalStatesHaveNoExit(t *testing.T) {
	t.Parallel()
	for _, from := range domain.AllBookingStatuses {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range domain.AllBookingStatuses {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransitions_LegacyStatusesUseCanonicalEdges(t *testing.T) {
	t.Parallel()
	assert.True(t, CanTransition(domain.BookingStatusPendingApproval, domain.BookingStatusConfirmed))
	assert.True(t, CanTransition(domain.BookingStatusPendingReturn, domain.BookingStatusReturned))
	assert.True(t, CanTransition(domain.BookingStatusDispute, domain.BookingStatusResolved))
	assert.False(t, CanTransition(domain.BookingStatusPendingReview, domain.BookingStatusInProgress))
}

func TestApprove_AfterReject_IsInvalid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.book(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))
	_, err := f.engine.Bookings.Reject(f.ctx, b.ID, testOwner, "")
	require.NoError(t, err)

	_, err = f.engine.Bookings.Approve(f.ctx, b.ID, testOwner)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApprove_ByRenter_NotPermitted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.book(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))

	_, err := f.engine.Bookings.Approve(f.ctx, b.ID, testRenter)
	assert.ErrorIs(t, err, ErrNotPermitted)
}

func TestStart_OnlyOwnerConfirmsDelivery(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name      string
		actor     string
		want      error
		confirmed bool
	}{
		{"renter picks up", testRenter, nil, false},
		{"owner hands over", testOwner, nil, true},
		{"stranger", "someone", ErrNotPermitted, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			car := f.car()
			f.fund(testRenter, 50000)
			b := f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))

			_, err := f.engine.Bookings.Start(f.ctx, b.ID, tc.actor)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
				assert.Equal(t, domain.BookingStatusConfirmed, f.booking(b.ID).Status)
				return
			}
			require.NoError(t, err)
			got := f.booking(b.ID)
			assert.Equal(t, domain.BookingStatusInProgress, got.Status)
			assert.Equal(t, tc.confirmed, got.OwnerConfirmedDelivery)
		})
	}
}

func TestSubmitInspection_DamageNeedsDetails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.returned(f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet)))

	_, err := f.engine.Bookings.SubmitInspection(f.ctx, InspectionRequest{
		BookingID:   b.ID,
		OwnerID:     testOwner,
		Damaged:     true,
		AmountCents: 10000,
		Description: "scratch",
		Severity:    domain.SeverityMinor,
	})
	require.ErrorIs(t, err, ErrDamageDetailsRequired)

	b, err = f.engine.Bookings.SubmitInspection(f.ctx, InspectionRequest{
		BookingID:   b.ID,
		OwnerID:     testOwner,
		Damaged:     true,
		AmountCents: 10000,
		Description: "scratch",
		Severity:    domain.SeverityMinor,
		Evidence:    []string{"s3://evidence/1.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusDamageReported, b.Status)
	require.NotEmpty(t, b.ClaimID)

	claim, err := f.engine.Disputes.Get(f.ctx, b.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimOpen, claim.Status)
	assert.Equal(t, int64(10000), claim.ClaimedCents)

	_, err = f.engine.Bookings.CompleteClean(f.ctx, b.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// ──────────────────────────────────────────────
// 5. CANCELLATION & NO-SHOW
// ──────────────────────────────────────────────

func TestCancel_RenterFeeFollowsTier(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		policy  domain.CancelPolicy
		advance time.Duration // start is 7 days out
		wantFee int64
	}{
		{"flexible with a week of notice", domain.CancelPolicyFlexible, 0, 0},
		{"flexible on the day", domain.CancelPolicyFlexible, 7*24*time.Hour - 2*time.Hour, 2500},
		{"moderate two days out", domain.CancelPolicyModerate, 5 * 24 * time.Hour, 6250},
		{"moderate on the day", domain.CancelPolicyModerate, 7*24*time.Hour - time.Hour, 12500},
		{"strict a week out", domain.CancelPolicyStrict, 0, 2500},
		{"strict on the day", domain.CancelPolicyStrict, 7*24*time.Hour - time.Hour, 25000},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			car := f.car(func(r *CreateCarRequest) { r.CancelPolicy = tc.policy })
			f.fund(testRenter, 50000)
			b := f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))
			f.advance(tc.advance)

			b, err := f.engine.Bookings.Cancel(f.ctx, CancelRequest{
				BookingID: b.ID,
				ActorID:   testRenter,
				Actor:     domain.ActorRenter,
				Reason:    "plans changed",
			})
			require.NoError(t, err)

			assert.Equal(t, domain.BookingStatusCancelledRenter, b.Status)
			assert.Equal(t, tc.wantFee, b.CancellationFeeCents)
			renter := f.account(testRenter)
			assert.Equal(t, 50000-tc.wantFee, renter.BalanceCents)
			assert.Equal(t, int64(0), renter.LockedCents)
			f.requireConsistent(testRenter)
		})
	}
}

func TestCancel_AfterStart_WindowClosed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))
	f.advance(7*24*time.Hour + time.Minute)

	_, err := f.engine.Bookings.Cancel(f.ctx, CancelRequest{BookingID: b.ID, ActorID: testRenter, Actor: domain.ActorRenter})
	require.ErrorIs(t, err, ErrCancellationWindowClosed)

	b, err = f.engine.Bookings.Cancel(f.ctx, CancelRequest{BookingID: b.ID, Actor: domain.ActorAdmin, Force: true})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelledSystem, b.Status)
	assert.Equal(t, int64(50000), f.account(testRenter).AvailableCents())
}

func TestCancel_OwnerRepeatedly_Suspended(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)

	for i := 0; i < 3; i++ {
		b := f.book(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))
		_, err := f.engine.Bookings.Cancel(f.ctx, CancelRequest{BookingID: b.ID, ActorID: testOwner, Actor: domain.ActorOwner})
		require.NoError(t, err)
	}

	standing, err := f.store.Owners().GetStanding(f.ctx, testOwner)
	require.NoError(t, err)
	require.NotNil(t, standing)
	assert.True(t, standing.Suspended)
	assert.InDelta(t, 0.9, standing.VisibilityAt(f.clock()), 1e-9)

	_, err = f.engine.Bookings.RequestBooking(f.ctx, f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))
	assert.ErrorIs(t, err, ErrOwnerSuspended)
	assert.Equal(t, int64(50000), f.account(testRenter).AvailableCents())
}

func TestReportNoShow_RenterAbsent_OwnerKeepsFirstDay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))

	_, err := f.engine.Bookings.ReportNoShow(f.ctx, NoShowRequest{BookingID: b.ID, ReporterID: testOwner})
	require.ErrorIs(t, err, ErrNoShowTooEarly)

	f.advance(7*24*time.Hour + time.Hour)
	b, err = f.engine.Bookings.ReportNoShow(f.ctx, NoShowRequest{BookingID: b.ID, ReporterID: testOwner})
	require.NoError(t, err)

	assert.Equal(t, domain.BookingStatusNoShow, b.Status)
	assert.Equal(t, int64(25000), b.CancellationFeeCents)
	assert.Equal(t, int64(25000), f.account(testRenter).BalanceCents)
	assert.Equal(t, int64(0), f.account(testRenter).LockedCents)
	assert.Equal(t, int64(25000), f.account(testOwner).BalanceCents)
}

func TestReportNoShow_OwnerAbsent_FullRefundAndPenalty(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))
	f.advance(7*24*time.Hour + time.Hour)

	b, err := f.engine.Bookings.ReportNoShow(f.ctx, NoShowRequest{BookingID: b.ID, ReporterID: testRenter})
	require.NoError(t, err)

	assert.Equal(t, domain.BookingStatusNoShow, b.Status)
	assert.Equal(t, int64(50000), f.account(testRenter).AvailableCents())
	n, err := f.store.Owners().CountCancellationsSince(f.ctx, testOwner, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// ──────────────────────────────────────────────
// 6. QUERIES
// ──────────────────────────────────────────────

func TestGetBookingStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.book(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet))

	got, err := f.engine.Bookings.GetBookingStatus(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, domain.BookingStatusPending, got.Status)

	_, err = f.engine.Bookings.GetBookingStatus(f.ctx, "missing")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}
