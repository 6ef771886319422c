package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorent_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autorent_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	BookingTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorent_booking_transitions_total",
			Help: "Total number of booking status transitions",
		},
		[]string{"from", "to"},
	)

	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorent_ledger_entries_total",
			Help: "Total number of completed wallet ledger entries",
		},
		[]string{"type"},
	)

	LedgerAmountCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorent_ledger_amount_cents_total",
			Help: "Total amount moved through the wallet ledger in cents",
		},
		[]string{"type"},
	)

	WaterfallRecoveredCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorent_waterfall_recovered_cents_total",
			Help: "Claim amounts recovered per waterfall step in cents",
		},
		[]string{"step"},
	)

	FundBalanceCents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autorent_fgo_balance_cents",
			Help: "Current guarantee fund balance per subfund in cents",
		},
		[]string{"subfund"},
	)

	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorent_provider_calls_total",
			Help: "Total number of payment provider calls by outcome",
		},
		[]string{"op", "outcome"},
	)

	RetryQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autorent_provider_retry_queue_length",
			Help: "Current length of the provider retry queue",
		},
	)

	ConflictRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autorent_conflict_retries_total",
			Help: "Total number of units of work retried after a concurrency conflict",
		},
	)

	IntegrityViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autorent_integrity_violations_total",
			Help: "Total number of wallet accounts frozen after an integrity violation",
		},
	)

	SweepItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorent_sweep_items_total",
			Help: "Total number of items processed by the timeout sweep",
		},
		[]string{"kind"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordTransition(from, to string) {
	BookingTransitionsTotal.WithLabelValues(from, to).Inc()
}

func RecordLedgerEntry(entryType string, amountCents int64) {
	LedgerEntriesTotal.WithLabelValues(entryType).Inc()
	LedgerAmountCents.WithLabelValues(entryType).Add(float64(amountCents))
}

func RecordWaterfallStep(step string, amountCents int64) {
	WaterfallRecoveredCents.WithLabelValues(step).Add(float64(amountCents))
}

func SetFundBalance(subfund string, cents int64) {
	FundBalanceCents.WithLabelValues(subfund).Set(float64(cents))
}

func RecordProviderCall(op, outcome string) {
	ProviderCallsTotal.WithLabelValues(op, outcome).Inc()
}

func RecordConflictRetry() {
	ConflictRetriesTotal.Inc()
}

func RecordIntegrityViolation() {
	IntegrityViolationsTotal.Inc()
}

func RecordSweep(kind string, n int) {
	SweepItemsTotal.WithLabelValues(kind).Add(float64(n))
}

func SetRetryQueueLength(n int64) {
	RetryQueueLength.Set(float64(n))
}
