package service

import (
	"log/slog"
	"time"

	"autorent/internal/config"
	"autorent/internal/repository"
)

// Deps are the collaborators the engine is built from. Queue, Cache,
// Leader and Notifier fall back to in-process versions when nil.
type Deps struct {
	Store    repository.Store
	Provider PaymentProvider
	Insurer  InsuranceProvider
	Queue    JobQueue
	Cache    BookingCache
	Leader   LeaderLock
	Notifier Notifier
	Policy   config.Policy
	Logger   *slog.Logger
}

// Engine groups the settlement services that share one store and policy.
type Engine struct {
	Ledger   *Ledger
	Pricing  *PricingService
	Risk     *RiskService
	Fund     *FundService
	Bookings *BookingService
	Disputes *DisputeService
	Sweeper  *Sweeper
	Retry    *RetryWorker

	settler *Settler
	life    *lifecycle
}

// NewEngine wires the services.
func NewEngine(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Queue == nil {
		d.Queue = NewLocalQueue()
	}
	if d.Cache == nil {
		d.Cache = noopCache{}
	}
	if d.Leader == nil {
		d.Leader = localLeader{}
	}
	if d.Notifier == nil {
		d.Notifier = NewLogNotifier(d.Logger)
	}
	now := func() time.Time { return time.Now().UTC() }

	provider := NewProviderClient(d.Provider, d.Policy.Retry, d.Logger)
	ledger := NewLedger(d.Store, provider, d.Queue, d.Policy, d.Logger)
	risk := NewRiskService(d.Store, d.Policy, d.Logger)
	pricing := NewPricingService(d.Store, risk, d.Policy)
	fund := NewFundService(d.Store, ledger, d.Notifier, d.Policy, d.Logger)
	settler := newSettler(ledger, fund, d.Policy.Booking.PlatformWalletID)

	life := &lifecycle{
		tx:       newTxRunner(d.Store, d.Policy.Retry, d.Logger),
		provider: provider,
		queue:    d.Queue,
		cache:    d.Cache,
		notifier: d.Notifier,
		policy:   d.Policy.Retry,
		logger:   d.Logger,
		now:      now,
	}
	disputes := &DisputeService{
		store:   d.Store,
		life:    life,
		settler: settler,
		fund:    fund,
		risk:    risk,
		logger:  d.Logger,
		now:     now,
	}
	bookings := &BookingService{
		store:    d.Store,
		life:     life,
		ledger:   ledger,
		pricing:  pricing,
		risk:     risk,
		fund:     fund,
		settler:  settler,
		disputes: disputes,
		insurer:  &insuranceActivator{provider: d.Insurer, policy: d.Policy.Retry},
		policy:   d.Policy,
		logger:   d.Logger,
		now:      now,
	}

	return &Engine{
		Ledger:   ledger,
		Pricing:  pricing,
		Risk:     risk,
		Fund:     fund,
		Bookings: bookings,
		Disputes: disputes,
		Sweeper: &Sweeper{
			bookings: bookings,
			risk:     risk,
			leader:   d.Leader,
			policy:   d.Policy.Sweep,
			logger:   d.Logger,
		},
		Retry: &RetryWorker{
			queue:    d.Queue,
			provider: provider,
			bookings: bookings,
			ledger:   ledger,
			notifier: d.Notifier,
			policy:   d.Policy.Retry,
			logger:   d.Logger,
			now:      now,
		},
		settler: settler,
		life:    life,
	}
}

// setClock replaces the clock of every service.
func (e *Engine) setClock(now func() time.Time) {
	e.Ledger.now = now
	e.Pricing.now = now
	e.Risk.now = now
	e.Fund.now = now
	e.Bookings.now = now
	e.Disputes.now = now
	e.Retry.now = now
	e.settler.now = now
	e.life.now = now
}
