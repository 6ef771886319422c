package service

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorent/internal/domain"
)

func (f *fixture) pool(t domain.SubfundType) int64 {
	f.t.Helper()
	p, err := f.store.Funds().GetSubfund(f.ctx, t)
	require.NoError(f.t, err)
	return p.BalanceCents
}

func claimReq(bookingID, ref string, amount int64) WaterfallRequest {
	return WaterfallRequest{
		BookingID:   bookingID,
		ClaimRef:    ref,
		RenterID:    testRenter,
		OwnerID:     testOwner,
		ClaimCents:  amount,
		Currency:    "USD",
		Description: "damage",
	}
}

// ─── 1. CONTRIBUTIONS ───

func TestContribute_SplitsAcrossPools(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	first, err := f.engine.Fund.Contribute(f.ctx, "b1", 1250, "USD")
	require.NoError(t, err)
	second, err := f.engine.Fund.Contribute(f.ctx, "b1", 1250, "USD")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, int64(875), f.pool(domain.SubfundLiquidity))
	assert.Equal(t, int64(250), f.pool(domain.SubfundCapitalization))
	assert.Equal(t, int64(125), f.pool(domain.SubfundProfitability))

	_, err = f.engine.Fund.Contribute(f.ctx, "b2", 1000, "EUR")
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestContributionFor_CappedByPlatformShare(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.Equal(t, int64(1250), f.engine.Fund.ContributionFor(25000, 5000))
	assert.Equal(t, int64(3000), f.engine.Fund.ContributionFor(100000, 3000))
	assert.Equal(t, int64(0), f.engine.Fund.ContributionFor(0, 3000))
}

// ─── 2. WATERFALL ───

func TestExecuteWaterfall_WalletThenFundThenLoss(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedFund(2000000)
	f.fund(testRenter, 10000)

	w, err := f.engine.Fund.ExecuteWaterfall(f.ctx, claimReq("b1", "c1", 100000))
	require.NoError(t, err)

	assert.Equal(t, int64(10000), w.Recovered(domain.StepRenterWallet))
	assert.Equal(t, int64(80000), w.Recovered(domain.StepFGOLiquidity))
	assert.Equal(t, int64(10000), w.UncoveredCents)
	assert.Equal(t, int64(90000), w.RecoveredCents)
	assert.Equal(t, int64(90000), f.account(testOwner).BalanceCents)
	assert.Equal(t, int64(0), f.account(testRenter).BalanceCents)
	assert.Equal(t, int64(1400000-80000), f.pool(domain.SubfundLiquidity))

	replay, err := f.engine.Fund.ExecuteWaterfall(f.ctx, claimReq("b1", "c1", 100000))
	require.NoError(t, err)
	assert.Equal(t, w.ID, replay.ID)
	assert.Equal(t, int64(90000), f.account(testOwner).BalanceCents)

	losses, err := f.engine.Fund.ListOpenLosses(f.ctx)
	require.NoError(t, err)
	require.Len(t, losses, 1)
	assert.Equal(t, "c1", losses[0].ClaimRef)
}

func TestExecuteWaterfall_QuarterlyEventLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedFund(2000000)

	for _, ref := range []string{"c1", "c2"} {
		w, err := f.engine.Fund.ExecuteWaterfall(f.ctx, claimReq("b1", ref, 1000))
		require.NoError(t, err)
		assert.Equal(t, int64(1000), w.Recovered(domain.StepFGOLiquidity))
	}

	w, err := f.engine.Fund.ExecuteWaterfall(f.ctx, claimReq("b1", "c3", 1000))
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Recovered(domain.StepFGOLiquidity))
	assert.Equal(t, int64(1000), w.UncoveredCents)
	assert.Contains(t, w.Steps[1].Note, "this quarter")
}

func TestExecuteWaterfall_MonthlyCap(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedFund(100000)

	w, err := f.engine.Fund.ExecuteWaterfall(f.ctx, claimReq("b1", "c1", 10000))
	require.NoError(t, err)
	assert.Equal(t, int64(5600), w.Recovered(domain.StepFGOLiquidity))
	assert.Equal(t, int64(4400), w.UncoveredCents)

	other := claimReq("b2", "c1", 1000)
	other.RenterID = "renter-2"
	w, err = f.engine.Fund.ExecuteWaterfall(f.ctx, other)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Recovered(domain.StepFGOLiquidity))
	assert.Equal(t, "fund cap reached", w.Steps[1].Note)
}

func TestExecuteWaterfall_ConcurrentDraws_StayWithinPool(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedFund(2000000)
	before := f.pool(domain.SubfundLiquidity)

	const workers = 10
	results := make([]*domain.Waterfall, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := claimReq(fmt.Sprintf("b%d", i), fmt.Sprintf("c%d", i), 30000)
			req.RenterID = fmt.Sprintf("renter-%d", i)
			results[i], errs[i] = f.engine.Fund.ExecuteWaterfall(f.ctx, req)
		}(i)
	}
	wg.Wait()

	var paid int64
	for i, w := range results {
		require.NoError(t, errs[i])
		drawn := w.Recovered(domain.StepFGOLiquidity)
		assert.LessOrEqual(t, drawn, f.policy.FGO.EventCapCents)
		assert.Equal(t, int64(30000), drawn+w.UncoveredCents)
		paid += drawn
	}

	after := f.pool(domain.SubfundLiquidity)
	assert.GreaterOrEqual(t, after, int64(0))
	assert.Equal(t, before-after, paid)
	assert.Equal(t, int64(112000), paid)
	assert.Equal(t, paid, f.account(testOwner).BalanceCents)
}

func TestExecuteWaterfall_ForeignCurrency_NotCovered(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedFund(100000)

	req := claimReq("b1", "c1", 1000)
	req.Currency = "EUR"
	w, err := f.engine.Fund.ExecuteWaterfall(f.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), w.UncoveredCents)
	assert.Equal(t, int64(70000), f.pool(domain.SubfundLiquidity))
}

func TestExecuteWaterfall_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.engine.Fund.ExecuteWaterfall(f.ctx, claimReq("b1", "", 1000))
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = f.engine.Fund.ExecuteWaterfall(f.ctx, claimReq("b1", "c1", 0))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// ─── 3. OPERATOR ACTIONS ───

func TestRebalance(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedFund(100000)

	testCases := []struct {
		name    string
		req     RebalanceRequest
		wantErr error
	}{
		{"no operator", RebalanceRequest{From: domain.SubfundProfitability, To: domain.SubfundLiquidity, AmountCents: 100}, ErrOperatorRequired},
		{"same pool", RebalanceRequest{From: domain.SubfundLiquidity, To: domain.SubfundLiquidity, AmountCents: 100, OperatorID: "ops"}, ErrInvalidSubfund},
		{"more than the pool holds", RebalanceRequest{From: domain.SubfundProfitability, To: domain.SubfundLiquidity, AmountCents: 10001, OperatorID: "ops"}, ErrInsufficientFundBalance},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, f.engine.Fund.Rebalance(f.ctx, tc.req), tc.wantErr)
		})
	}

	err := f.engine.Fund.Rebalance(f.ctx, RebalanceRequest{
		From:        domain.SubfundProfitability,
		To:          domain.SubfundLiquidity,
		AmountCents: 4000,
		OperatorID:  "ops",
		Reason:      "top up",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(74000), f.pool(domain.SubfundLiquidity))
	assert.Equal(t, int64(6000), f.pool(domain.SubfundProfitability))

	discrepancies, err := f.engine.Fund.ReconcileFund(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestStatus_ReportsTotalsAndHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedFund(100000)
	_, err := f.engine.Fund.ExecuteWaterfall(f.ctx, claimReq("b1", "c1", 5000))
	require.NoError(t, err)

	status, err := f.engine.Fund.Status(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(95000), status.TotalCents)
	assert.Equal(t, int64(100000), status.ContributionsCents)
	assert.Equal(t, int64(5000), status.PayoutsCents)
	assert.InDelta(t, 0.05, status.LossRatio, 1e-9)
	assert.Equal(t, domain.FundHealthy, status.Health)
	assert.Len(t, status.Subfunds, 3)
}
