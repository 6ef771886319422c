package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "/v1/bookings", "201", 0.2)
	RecordHTTPRequest("POST", "/v1/bookings", "201", 0.3)
	RecordHTTPRequest("POST", "/v1/bookings", "409", 0.1)

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/v1/bookings", "201")))
	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/v1/bookings", "409")))
}

func TestRecordTransition(t *testing.T) {
	BookingTransitionsTotal.Reset()

	RecordTransition("pending", "confirmed")
	RecordTransition("pending", "confirmed")
	RecordTransition("pending", "rejected")

	assert.Equal(t, float64(2), testutil.ToFloat64(BookingTransitionsTotal.WithLabelValues("pending", "confirmed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(BookingTransitionsTotal.WithLabelValues("pending", "rejected")))
}

func TestRecordLedgerEntry(t *testing.T) {
	LedgerEntriesTotal.Reset()
	LedgerAmountCents.Reset()

	RecordLedgerEntry("lock", 30000)
	RecordLedgerEntry("lock", 20000)

	assert.Equal(t, float64(2), testutil.ToFloat64(LedgerEntriesTotal.WithLabelValues("lock")))
	assert.Equal(t, float64(50000), testutil.ToFloat64(LedgerAmountCents.WithLabelValues("lock")))
}

func TestRecordWaterfallStep(t *testing.T) {
	WaterfallRecoveredCents.Reset()

	RecordWaterfallStep("fgo_liquidity", 50000)

	assert.Equal(t, float64(50000), testutil.ToFloat64(WaterfallRecoveredCents.WithLabelValues("fgo_liquidity")))
}

func TestSetFundBalance(t *testing.T) {
	FundBalanceCents.Reset()

	SetFundBalance("liquidity", 700000)
	assert.Equal(t, float64(700000), testutil.ToFloat64(FundBalanceCents.WithLabelValues("liquidity")))

	SetFundBalance("liquidity", 650000)
	assert.Equal(t, float64(650000), testutil.ToFloat64(FundBalanceCents.WithLabelValues("liquidity")))
}

func TestRecordSweep(t *testing.T) {
	SweepItemsTotal.Reset()

	RecordSweep("expired", 3)
	RecordSweep("expired", 0)

	assert.Equal(t, float64(3), testutil.ToFloat64(SweepItemsTotal.WithLabelValues("expired")))
}
