// Package memory provides an in-process implementation of the repository
// interfaces. Units of work are serialized by one mutex and applied to a
// copy of the state, so a failed unit leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"autorent/internal/domain"
	"autorent/internal/repository"
)

type cancellation struct {
	ownerID   string
	bookingID string
	at        time.Time
}

type state struct {
	bookings      map[string]*domain.Booking
	cars          map[string]*domain.Car
	standings     map[string]*domain.OwnerStanding
	cancellations []cancellation
	accounts      map[string]*domain.WalletAccount
	transactions  []*domain.WalletTransaction
	locks         map[string]*domain.WalletLock
	subfunds      map[domain.SubfundType]*domain.Subfund
	contributions map[string]*domain.Contribution
	movements     []*domain.FundMovement
	waterfalls    map[string]*domain.Waterfall
	losses        []*domain.Loss
	profiles      map[string]*domain.DriverRiskProfile
	claims        map[string]*domain.Claim
}

func newState() *state {
	return &state{
		bookings:      make(map[string]*domain.Booking),
		cars:          make(map[string]*domain.Car),
		standings:     make(map[string]*domain.OwnerStanding),
		accounts:      make(map[string]*domain.WalletAccount),
		locks:         make(map[string]*domain.WalletLock),
		subfunds:      make(map[domain.SubfundType]*domain.Subfund),
		contributions: make(map[string]*domain.Contribution),
		waterfalls:    make(map[string]*domain.Waterfall),
		profiles:      make(map[string]*domain.DriverRiskProfile),
		claims:        make(map[string]*domain.Claim),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.bookings {
		b := *v
		c.bookings[k] = &b
	}
	for k, v := range s.cars {
		car := *v
		c.cars[k] = &car
	}
	for k, v := range s.standings {
		st := *v
		c.standings[k] = &st
	}
	c.cancellations = append(c.cancellations, s.cancellations...)
	for k, v := range s.accounts {
		a := *v
		c.accounts[k] = &a
	}
	for _, v := range s.transactions {
		t := *v
		c.transactions = append(c.transactions, &t)
	}
	for k, v := range s.locks {
		l := *v
		c.locks[k] = &l
	}
	for k, v := range s.subfunds {
		f := *v
		c.subfunds[k] = &f
	}
	for k, v := range s.contributions {
		ct := *v
		c.contributions[k] = &ct
	}
	c.movements = append(c.movements, s.movements...)
	for k, v := range s.waterfalls {
		c.waterfalls[k] = copyWaterfall(v)
	}
	for _, v := range s.losses {
		l := *v
		c.losses = append(c.losses, &l)
	}
	for k, v := range s.profiles {
		p := *v
		c.profiles[k] = &p
	}
	for k, v := range s.claims {
		c.claims[k] = copyClaim(v)
	}
	return c
}

// Store is an in-memory repository.Store.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// view binds repository methods to either the committed state or the
// working copy of an open unit of work.
type view struct {
	store *Store
	tx    *state
}

func (v *view) begin() (*state, func()) {
	if v.tx != nil {
		return v.tx, func() {}
	}
	v.store.mu.Lock()
	return v.store.state, v.store.mu.Unlock
}

func (s *Store) root() *view { return &view{store: s} }

// WithTx runs fn against a copy of the state and keeps the copy only if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&txRepos{view: &view{store: s, tx: working}}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) Bookings() repository.BookingRepository { return &bookingRepo{s.root()} }
func (s *Store) Cars() repository.CarRepository         { return &carRepo{s.root()} }
func (s *Store) Owners() repository.OwnerRepository     { return &ownerRepo{s.root()} }
func (s *Store) Wallets() repository.WalletRepository   { return &walletRepo{s.root()} }
func (s *Store) Funds() repository.FundRepository       { return &fundRepo{s.root()} }
func (s *Store) Risk() repository.RiskRepository        { return &riskRepo{s.root()} }
func (s *Store) Claims() repository.ClaimRepository     { return &claimRepo{s.root()} }

type txRepos struct {
	view *view
}

func (t *txRepos) Bookings() repository.BookingRepository { return &bookingRepo{t.view} }
func (t *txRepos) Cars() repository.CarRepository         { return &carRepo{t.view} }
func (t *txRepos) Owners() repository.OwnerRepository     { return &ownerRepo{t.view} }
func (t *txRepos) Wallets() repository.WalletRepository   { return &walletRepo{t.view} }
func (t *txRepos) Funds() repository.FundRepository       { return &fundRepo{t.view} }
func (t *txRepos) Risk() repository.RiskRepository        { return &riskRepo{t.view} }
func (t *txRepos) Claims() repository.ClaimRepository     { return &claimRepo{t.view} }

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Repos = (*txRepos)(nil)
)

// ──────────────────────────────────────────────
// BOOKINGS
// ──────────────────────────────────────────────

type bookingRepo struct{ v *view }

func (r *bookingRepo) Create(ctx context.Context, booking *domain.Booking) error {
	st, done := r.v.begin()
	defer done()
	if _, ok := st.bookings[booking.ID]; ok {
		return repository.ErrDuplicate
	}
	b := *booking
	st.bookings[b.ID] = &b
	return nil
}

func (r *bookingRepo) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	st, done := r.v.begin()
	defer done()
	b, ok := st.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *b
	return &out, nil
}

func (r *bookingRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *bookingRepo) Update(ctx context.Context, booking *domain.Booking) error {
	st, done := r.v.begin()
	defer done()
	stored, ok := st.bookings[booking.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != booking.Version {
		return repository.ErrConflict
	}
	booking.Version++
	b := *booking
	st.bookings[b.ID] = &b
	return nil
}

func (r *bookingRepo) LockCar(ctx context.Context, carID string) error {
	return nil
}

func (r *bookingRepo) ListActiveByCar(ctx context.Context, carID string, start, end time.Time) ([]*domain.Booking, error) {
	st, done := r.v.begin()
	defer done()
	var out []*domain.Booking
	for _, b := range st.bookings {
		if b.CarID == carID && b.Status.HoldsCalendar() && b.Overlaps(start, end) {
			c := *b
			out = append(out, &c)
		}
	}
	sortBookings(out)
	return out, nil
}

func (r *bookingRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error) {
	st, done := r.v.begin()
	defer done()
	var out []*domain.Booking
	for _, b := range st.bookings {
		switch b.Status.Canonical() {
		case domain.BookingStatusPending, domain.BookingStatusPendingPayment:
			if !b.ExpiresAt.IsZero() && b.ExpiresAt.Before(now) {
				c := *b
				out = append(out, &c)
			}
		}
	}
	sortBookings(out)
	return truncate(out, limit), nil
}

func (r *bookingRepo) ListReturnedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	st, done := r.v.begin()
	defer done()
	var out []*domain.Booking
	for _, b := range st.bookings {
		if b.Status.Canonical() == domain.BookingStatusReturned && b.ReturnedAt.Before(cutoff) {
			c := *b
			out = append(out, &c)
		}
	}
	sortBookings(out)
	return truncate(out, limit), nil
}

func sortBookings(b []*domain.Booking) {
	sort.Slice(b, func(i, j int) bool { return b[i].CreatedAt.Before(b[j].CreatedAt) })
}

func truncate(b []*domain.Booking, limit int) []*domain.Booking {
	if limit > 0 && len(b) > limit {
		return b[:limit]
	}
	return b
}

// ──────────────────────────────────────────────
// CARS & OWNERS
// ──────────────────────────────────────────────

type carRepo struct{ v *view }

func (r *carRepo) Create(ctx context.Context, car *domain.Car) error {
	st, done := r.v.begin()
	defer done()
	if _, ok := st.cars[car.ID]; ok {
		return repository.ErrDuplicate
	}
	c := *car
	st.cars[c.ID] = &c
	return nil
}

func (r *carRepo) GetByID(ctx context.Context, id string) (*domain.Car, error) {
	st, done := r.v.begin()
	defer done()
	c, ok := st.cars[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *c
	return &out, nil
}

type ownerRepo struct{ v *view }

func (r *ownerRepo) GetStanding(ctx context.Context, ownerID string) (*domain.OwnerStanding, error) {
	st, done := r.v.begin()
	defer done()
	s, ok := st.standings[ownerID]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (r *ownerRepo) SaveStanding(ctx context.Context, standing *domain.OwnerStanding) error {
	st, done := r.v.begin()
	defer done()
	s := *standing
	st.standings[s.OwnerID] = &s
	return nil
}

func (r *ownerRepo) RecordCancellation(ctx context.Context, ownerID, bookingID string, at time.Time) error {
	st, done := r.v.begin()
	defer done()
	st.cancellations = append(st.cancellations, cancellation{ownerID: ownerID, bookingID: bookingID, at: at})
	return nil
}

func (r *ownerRepo) CountCancellationsSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	st, done := r.v.begin()
	defer done()
	n := 0
	for _, c := range st.cancellations {
		if c.ownerID == ownerID && !c.at.Before(since) {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────
// WALLETS
// ──────────────────────────────────────────────

type walletRepo struct{ v *view }

func (r *walletRepo) CreateAccount(ctx context.Context, account *domain.WalletAccount) error {
	st, done := r.v.begin()
	defer done()
	if _, ok := st.accounts[account.UserID]; ok {
		return repository.ErrDuplicate
	}
	a := *account
	st.accounts[a.UserID] = &a
	return nil
}

func (r *walletRepo) GetAccount(ctx context.Context, userID string) (*domain.WalletAccount, error) {
	st, done := r.v.begin()
	defer done()
	a, ok := st.accounts[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (r *walletRepo) GetAccountForUpdate(ctx context.Context, userID string) (*domain.WalletAccount, error) {
	return r.GetAccount(ctx, userID)
}

func (r *walletRepo) UpdateAccount(ctx context.Context, account *domain.WalletAccount) error {
	st, done := r.v.begin()
	defer done()
	if _, ok := st.accounts[account.UserID]; !ok {
		return repository.ErrNotFound
	}
	a := *account
	st.accounts[a.UserID] = &a
	return nil
}

func (r *walletRepo) CreateTransaction(ctx context.Context, tx *domain.WalletTransaction) error {
	st, done := r.v.begin()
	defer done()
	if tx.IdempotencyKey != "" {
		for _, t := range st.transactions {
			if t.IdempotencyKey == tx.IdempotencyKey {
				return repository.ErrDuplicate
			}
		}
	}
	t := *tx
	st.transactions = append(st.transactions, &t)
	return nil
}

func (r *walletRepo) GetTransaction(ctx context.Context, id string) (*domain.WalletTransaction, error) {
	st, done := r.v.begin()
	defer done()
	for _, t := range st.transactions {
		if t.ID == id {
			out := *t
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *walletRepo) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.WalletTransaction, error) {
	st, done := r.v.begin()
	defer done()
	for _, t := range st.transactions {
		if t.IdempotencyKey == key {
			out := *t
			return &out, nil
		}
	}
	return nil, nil
}

func (r *walletRepo) UpdateTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus) error {
	st, done := r.v.begin()
	defer done()
	for _, t := range st.transactions {
		if t.ID == id {
			t.Status = status
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *walletRepo) ListTransactions(ctx context.Context, userID string) ([]*domain.WalletTransaction, error) {
	st, done := r.v.begin()
	defer done()
	var out []*domain.WalletTransaction
	for _, t := range st.transactions {
		if t.UserID == userID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *walletRepo) SumCompleted(ctx context.Context, userID string) (int64, int64, error) {
	st, done := r.v.begin()
	defer done()
	var balance, locked int64
	for _, t := range st.transactions {
		if t.UserID != userID || t.Status != domain.TransactionCompleted {
			continue
		}
		b, l := t.Type.BalanceEffect(t.AmountCents)
		balance += b
		locked += l
	}
	return balance, locked, nil
}

func (r *walletRepo) CreateLock(ctx context.Context, lock *domain.WalletLock) error {
	st, done := r.v.begin()
	defer done()
	for _, l := range st.locks {
		if l.UserID == lock.UserID && l.Reference == lock.Reference {
			return repository.ErrDuplicate
		}
	}
	l := *lock
	st.locks[l.ID] = &l
	return nil
}

func (r *walletRepo) GetLock(ctx context.Context, userID, reference string) (*domain.WalletLock, error) {
	st, done := r.v.begin()
	defer done()
	for _, l := range st.locks {
		if l.UserID == userID && l.Reference == reference {
			out := *l
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *walletRepo) GetLockByReference(ctx context.Context, reference string) (*domain.WalletLock, error) {
	st, done := r.v.begin()
	defer done()
	for _, l := range st.locks {
		if l.Reference == reference {
			out := *l
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *walletRepo) UpdateLock(ctx context.Context, lock *domain.WalletLock) error {
	st, done := r.v.begin()
	defer done()
	if _, ok := st.locks[lock.ID]; !ok {
		return repository.ErrNotFound
	}
	l := *lock
	st.locks[l.ID] = &l
	return nil
}

// ──────────────────────────────────────────────
// GUARANTEE FUND
// ──────────────────────────────────────────────

type fundRepo struct{ v *view }

func (r *fundRepo) EnsureSubfunds(ctx context.Context, currency string) error {
	st, done := r.v.begin()
	defer done()
	for _, t := range domain.AllSubfunds {
		if _, ok := st.subfunds[t]; !ok {
			st.subfunds[t] = &domain.Subfund{Type: t, Currency: currency}
		}
	}
	return nil
}

func (r *fundRepo) GetSubfund(ctx context.Context, t domain.SubfundType) (*domain.Subfund, error) {
	st, done := r.v.begin()
	defer done()
	f, ok := st.subfunds[t]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *f
	return &out, nil
}

func (r *fundRepo) GetSubfundForUpdate(ctx context.Context, t domain.SubfundType) (*domain.Subfund, error) {
	return r.GetSubfund(ctx, t)
}

func (r *fundRepo) ListSubfunds(ctx context.Context) ([]*domain.Subfund, error) {
	st, done := r.v.begin()
	defer done()
	var out []*domain.Subfund
	for _, t := range domain.AllSubfunds {
		if f, ok := st.subfunds[t]; ok {
			c := *f
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fundRepo) UpdateSubfund(ctx context.Context, subfund *domain.Subfund) error {
	st, done := r.v.begin()
	defer done()
	if _, ok := st.subfunds[subfund.Type]; !ok {
		return repository.ErrNotFound
	}
	f := *subfund
	st.subfunds[f.Type] = &f
	return nil
}

func (r *fundRepo) CreateContribution(ctx context.Context, c *domain.Contribution) error {
	st, done := r.v.begin()
	defer done()
	if _, ok := st.contributions[c.BookingID]; ok {
		return repository.ErrDuplicate
	}
	ct := *c
	st.contributions[ct.BookingID] = &ct
	return nil
}

func (r *fundRepo) GetContributionByBooking(ctx context.Context, bookingID string) (*domain.Contribution, error) {
	st, done := r.v.begin()
	defer done()
	c, ok := st.contributions[bookingID]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (r *fundRepo) CreateMovement(ctx context.Context, m *domain.FundMovement) error {
	st, done := r.v.begin()
	defer done()
	mv := *m
	st.movements = append(st.movements, &mv)
	return nil
}

func (r *fundRepo) SumMovements(ctx context.Context, t domain.SubfundType) (int64, error) {
	st, done := r.v.begin()
	defer done()
	var sum int64
	for _, m := range st.movements {
		if m.Subfund == t {
			sum += m.Type.Sign() * m.AmountCents
		}
	}
	return sum, nil
}

func (r *fundRepo) Totals(ctx context.Context) (int64, int64, error) {
	st, done := r.v.begin()
	defer done()
	var contributions, payouts int64
	for _, m := range st.movements {
		switch m.Type {
		case domain.MovementContribution:
			contributions += m.AmountCents
		case domain.MovementPayout:
			payouts += m.AmountCents
		}
	}
	return contributions, payouts, nil
}

func (r *fundRepo) PayoutsSince(ctx context.Context, since time.Time) (int64, error) {
	st, done := r.v.begin()
	defer done()
	var sum int64
	for _, m := range st.movements {
		if m.Type == domain.MovementPayout && !m.CreatedAt.Before(since) {
			sum += m.AmountCents
		}
	}
	return sum, nil
}

func (r *fundRepo) CountUserEventsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	st, done := r.v.begin()
	defer done()
	seen := make(map[string]struct{})
	for _, m := range st.movements {
		if m.Type == domain.MovementPayout && m.UserID == userID && !m.CreatedAt.Before(since) {
			seen[m.Reference] = struct{}{}
		}
	}
	return len(seen), nil
}

func (r *fundRepo) CreateWaterfall(ctx context.Context, w *domain.Waterfall) error {
	st, done := r.v.begin()
	defer done()
	key := w.BookingID + "|" + w.ClaimRef
	if _, ok := st.waterfalls[key]; ok {
		return repository.ErrDuplicate
	}
	st.waterfalls[key] = copyWaterfall(w)
	return nil
}

func (r *fundRepo) GetWaterfall(ctx context.Context, bookingID, claimRef string) (*domain.Waterfall, error) {
	st, done := r.v.begin()
	defer done()
	w, ok := st.waterfalls[bookingID+"|"+claimRef]
	if !ok {
		return nil, nil
	}
	return copyWaterfall(w), nil
}

func (r *fundRepo) CreateLoss(ctx context.Context, loss *domain.Loss) error {
	st, done := r.v.begin()
	defer done()
	l := *loss
	st.losses = append(st.losses, &l)
	return nil
}

func (r *fundRepo) ListOpenLosses(ctx context.Context) ([]*domain.Loss, error) {
	st, done := r.v.begin()
	defer done()
	var out []*domain.Loss
	for _, l := range st.losses {
		if l.Status == domain.LossOpen {
			c := *l
			out = append(out, &c)
		}
	}
	return out, nil
}

func copyWaterfall(w *domain.Waterfall) *domain.Waterfall {
	out := *w
	out.Steps = append([]domain.StepRecovery(nil), w.Steps...)
	return &out
}

// ──────────────────────────────────────────────
// RISK PROFILES & CLAIMS
// ──────────────────────────────────────────────

type riskRepo struct{ v *view }

func (r *riskRepo) GetProfile(ctx context.Context, userID string) (*domain.DriverRiskProfile, error) {
	st, done := r.v.begin()
	defer done()
	p, ok := st.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (r *riskRepo) SaveProfile(ctx context.Context, profile *domain.DriverRiskProfile) error {
	st, done := r.v.begin()
	defer done()
	p := *profile
	st.profiles[p.UserID] = &p
	return nil
}

func (r *riskRepo) ListDueForImprovement(ctx context.Context, cutoff time.Time, floor, limit int) ([]*domain.DriverRiskProfile, error) {
	st, done := r.v.begin()
	defer done()
	var out []*domain.DriverRiskProfile
	for _, p := range st.profiles {
		if p.Class <= floor {
			continue
		}
		if p.LastClaimAt.After(cutoff) || p.LastClassChange.After(cutoff) {
			continue
		}
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type claimRepo struct{ v *view }

func (r *claimRepo) Create(ctx context.Context, claim *domain.Claim) error {
	st, done := r.v.begin()
	defer done()
	if _, ok := st.claims[claim.ID]; ok {
		return repository.ErrDuplicate
	}
	st.claims[claim.ID] = copyClaim(claim)
	return nil
}

func (r *claimRepo) GetByID(ctx context.Context, id string) (*domain.Claim, error) {
	st, done := r.v.begin()
	defer done()
	c, ok := st.claims[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyClaim(c), nil
}

func (r *claimRepo) GetOpenByBooking(ctx context.Context, bookingID string) (*domain.Claim, error) {
	st, done := r.v.begin()
	defer done()
	for _, c := range st.claims {
		if c.BookingID == bookingID && !c.Status.IsClosed() {
			return copyClaim(c), nil
		}
	}
	return nil, nil
}

func (r *claimRepo) Update(ctx context.Context, claim *domain.Claim) error {
	st, done := r.v.begin()
	defer done()
	if _, ok := st.claims[claim.ID]; !ok {
		return repository.ErrNotFound
	}
	st.claims[claim.ID] = copyClaim(claim)
	return nil
}

func copyClaim(c *domain.Claim) *domain.Claim {
	out := *c
	out.Evidence = append([]string(nil), c.Evidence...)
	return &out
}
