package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorent/internal/domain"
)

func (f *fixture) disputed(claimed int64) (*domain.Booking, *domain.Claim) {
	f.t.Helper()
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.returned(f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet)))
	c, err := f.engine.Disputes.Open(f.ctx, OpenDisputeRequest{
		BookingID:    b.ID,
		ActorID:      testOwner,
		Reason:       "interior stains",
		Evidence:     []string{"s3://evidence/seat.jpg"},
		ClaimedCents: claimed,
	})
	require.NoError(f.t, err)
	return f.booking(b.ID), c
}

func TestOpenDispute_MovesBookingAndFilesClaim(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	b, c := f.disputed(15000)

	assert.Equal(t, domain.BookingStatusDisputed, b.Status)
	assert.Equal(t, c.ID, b.ClaimID)
	assert.Equal(t, domain.ClaimOpen, c.Status)
	assert.Equal(t, domain.ClaimKindDispute, c.Kind)
	assert.Equal(t, domain.ActorOwner, c.OpenedBy)
	assert.Equal(t, int64(50000), f.account(testRenter).LockedCents)
	assert.True(t, f.notifier.has(domain.EventClaimOpened))

	c, err := f.engine.Disputes.StartReview(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimUnderReview, c.Status)
}

func TestOpenDispute_Stranger_NotPermitted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.returned(f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet)))

	_, err := f.engine.Disputes.Open(f.ctx, OpenDisputeRequest{BookingID: b.ID, ActorID: "someone", Reason: "x"})
	assert.ErrorIs(t, err, ErrNotPermitted)
	assert.Equal(t, domain.BookingStatusReturned, f.booking(b.ID).Status)
}

func TestResolveDispute_ChargesDepositAndRefundsRest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	b, c := f.disputed(15000)

	res, err := f.engine.Disputes.Resolve(f.ctx, ResolveRequest{
		ClaimID:           c.ID,
		ChargeRenterCents: 10000,
		AtFault:           true,
		Notes:             "cleaning invoice accepted",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ClaimResolved, res.Claim.Status)
	assert.Equal(t, int64(10000), res.Claim.ChargedRenterCents)
	assert.Equal(t, int64(10000), res.Claim.RefundedRenterCents)
	assert.Equal(t, int64(10000), res.Settlement.DepositCharged)
	assert.Equal(t, int64(10000), res.Settlement.DepositReleased)

	renter := f.account(testRenter)
	assert.Equal(t, int64(10000), renter.BalanceCents)
	assert.Equal(t, int64(0), renter.LockedCents)
	assert.Equal(t, int64(35000), f.account(testOwner).BalanceCents)
	assert.Equal(t, domain.BookingStatusResolved, f.booking(b.ID).Status)

	profile, err := f.engine.Risk.Profile(f.ctx, testRenter)
	require.NoError(t, err)
	assert.Equal(t, 6, profile.Class)

	_, err = f.engine.Disputes.Resolve(f.ctx, ResolveRequest{ClaimID: c.ID})
	assert.ErrorIs(t, err, ErrClaimClosed)

	for _, u := range []string{testRenter, testOwner, testPlatform} {
		f.requireConsistent(u)
	}
}

func TestResolveDispute_FreeBalanceNotCharged(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name        string
		claimed     int64
		charge      int64
		wantDeposit int64
		wantFGO     int64
		wantRefund  int64
		wantOwner   int64
	}{
		{"within deposit", 15000, 10000, 10000, 0, 10000, 35000},
		{"beyond deposit", 30000, 25000, 20000, 5000, 0, 50000},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedFund(100000)
			b, c := f.disputed(tc.claimed)
			f.fund(testRenter, 10000)

			res, err := f.engine.Disputes.Resolve(f.ctx, ResolveRequest{ClaimID: c.ID, ChargeRenterCents: tc.charge, AtFault: true})
			require.NoError(t, err)

			assert.Equal(t, tc.wantDeposit, res.Settlement.DepositCharged)
			assert.Equal(t, tc.wantDeposit, res.Claim.ChargedRenterCents)
			assert.Equal(t, tc.wantFGO, res.Claim.FGODrawCents)
			assert.Equal(t, tc.wantRefund, res.Claim.RefundedRenterCents)
			assert.LessOrEqual(t, res.Claim.ChargedRenterCents+res.Claim.RefundedRenterCents, b.Price.DepositCents+res.Claim.FGODrawCents)

			renter := f.account(testRenter)
			assert.Equal(t, 10000+tc.wantRefund, renter.BalanceCents)
			assert.Equal(t, int64(0), renter.LockedCents)
			assert.Equal(t, tc.wantOwner, f.account(testOwner).BalanceCents)
			for _, u := range []string{testRenter, testOwner, testPlatform} {
				f.requireConsistent(u)
			}
		})
	}
}

func TestResolveDispute_ChargeAboveClaim_Fails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	b, c := f.disputed(15000)

	_, err := f.engine.Disputes.Resolve(f.ctx, ResolveRequest{ClaimID: c.ID, ChargeRenterCents: 15001})
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, domain.BookingStatusDisputed, f.booking(b.ID).Status)
	assert.Equal(t, int64(50000), f.account(testRenter).LockedCents)
}

func TestRejectDispute_RefundsWholeDeposit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	b, c := f.disputed(15000)

	res, err := f.engine.Disputes.Reject(f.ctx, c.ID, "no evidence of damage")
	require.NoError(t, err)

	assert.Equal(t, domain.ClaimRejected, res.Claim.Status)
	assert.Equal(t, int64(20000), res.Claim.RefundedRenterCents)
	assert.Equal(t, int64(20000), f.account(testRenter).BalanceCents)
	assert.Equal(t, int64(25000), f.account(testOwner).BalanceCents)
	assert.Equal(t, domain.BookingStatusResolved, f.booking(b.ID).Status)

	profile, err := f.engine.Risk.Profile(f.ctx, testRenter)
	require.NoError(t, err)
	assert.Equal(t, 5, profile.Class)
}

func TestOpenDispute_AfterInspection_EscalatesSameClaim(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.returned(f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet)))
	b, err := f.engine.Bookings.SubmitInspection(f.ctx, InspectionRequest{
		BookingID:   b.ID,
		OwnerID:     testOwner,
		Damaged:     true,
		AmountCents: 8000,
		Description: "cracked mirror",
		Severity:    domain.SeverityModerate,
		Evidence:    []string{"s3://evidence/mirror.jpg"},
	})
	require.NoError(t, err)

	c, err := f.engine.Disputes.Open(f.ctx, OpenDisputeRequest{
		BookingID: b.ID,
		ActorID:   testRenter,
		Reason:    "mirror was already cracked",
		Evidence:  []string{"s3://evidence/pickup.jpg"},
	})
	require.NoError(t, err)

	assert.Equal(t, b.ClaimID, c.ID)
	assert.Equal(t, domain.ClaimUnderReview, c.Status)
	assert.Len(t, c.Evidence, 2)
	assert.Equal(t, domain.BookingStatusDisputed, f.booking(b.ID).Status)

	res, err := f.engine.Disputes.Resolve(f.ctx, ResolveRequest{ClaimID: c.ID, ChargeRenterCents: 8000, AtFault: true})
	require.NoError(t, err)
	assert.Equal(t, int64(8000), res.Claim.ChargedRenterCents)

	profile, err := f.engine.Risk.Profile(f.ctx, testRenter)
	require.NoError(t, err)
	assert.Equal(t, 7, profile.Class)
}

func TestExecuteClaimWaterfall_LeavesRentalCovered(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.returned(f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet)))

	req := ClaimWaterfallRequest{BookingID: b.ID, ClaimRef: "fuel", AmountCents: 5000, Description: "empty tank"}
	w, err := f.engine.Bookings.ExecuteClaimWaterfall(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), w.Recovered(domain.StepRenterDeposit))
	assert.Equal(t, int64(0), w.UncoveredCents)

	replay, err := f.engine.Bookings.ExecuteClaimWaterfall(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, w.ID, replay.ID)

	st, err := f.engine.Bookings.CompleteClean(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), st.DepositReleased)
	assert.Equal(t, int64(15000), f.account(testRenter).BalanceCents)
	assert.Equal(t, int64(30000), f.account(testOwner).BalanceCents)
	f.requireConsistent(testRenter)
}

func TestExecuteClaimWaterfall_OpenDispute_Refused(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	b, c := f.disputed(15000)

	_, err := f.engine.Bookings.ExecuteClaimWaterfall(f.ctx, ClaimWaterfallRequest{BookingID: b.ID, ClaimRef: c.ID, AmountCents: 15000})
	require.ErrorIs(t, err, ErrClaimInProgress)
	assert.Equal(t, int64(50000), f.account(testRenter).LockedCents)

	res, err := f.engine.Disputes.Resolve(f.ctx, ResolveRequest{ClaimID: c.ID, ChargeRenterCents: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Claim.ChargedRenterCents)
	assert.Equal(t, int64(19000), res.Claim.RefundedRenterCents)
	assert.Equal(t, int64(19000), f.account(testRenter).BalanceCents)
}

func TestExecuteClaimWaterfall_DifferentAmount_Mismatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	car := f.car()
	f.fund(testRenter, 50000)
	b := f.returned(f.confirmed(f.oneDay(car.ID, testRenter, domain.PaymentModeWallet)))

	_, err := f.engine.Bookings.ExecuteClaimWaterfall(f.ctx, ClaimWaterfallRequest{BookingID: b.ID, ClaimRef: "fuel", AmountCents: 5000})
	require.NoError(t, err)

	_, err = f.engine.Bookings.ExecuteClaimWaterfall(f.ctx, ClaimWaterfallRequest{BookingID: b.ID, ClaimRef: "fuel", AmountCents: 6000})
	require.ErrorIs(t, err, ErrWaterfallMismatch)
	assert.Equal(t, int64(5000), f.account(testOwner).BalanceCents)
}
