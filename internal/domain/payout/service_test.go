package payout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/balance"
	"github.com/avalove/avalove-ledger/internal/domain/burn"
	"github.com/avalove/avalove-ledger/internal/domain/decay"
	"github.com/avalove/avalove-ledger/internal/domain/earning"
	"github.com/avalove/avalove-ledger/internal/domain/ledger"
	"github.com/avalove/avalove-ledger/internal/domain/payout"
	"github.com/avalove/avalove-ledger/internal/domain/settings"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

/* =========================
   In-memory ledger
   ========================= */

// memLedger backs every store the balance service and the payout settler
// need. Its mutex stands in for the user's activity row lock.
type memLedger struct {
	mu       sync.Mutex
	now      time.Time
	earnings []earning.Record
	burns    []burn.Record
	last     map[uuid.UUID]*time.Time
	settled  map[uuid.UUID]*time.Time
	entries  []decay.Entry
	err      error

	// beforeSettle runs after the balance was settled and before the payout
	// takes the lock.
	beforeSettle func()
}

func newMemLedger() *memLedger {
	return &memLedger{now: t0, last: map[uuid.UUID]*time.Time{}, settled: map[uuid.UUID]*time.Time{}}
}

func (l *memLedger) earn(userID uuid.UUID, amount string) uuid.UUID {
	id := uuid.New()
	l.earnings = append(l.earnings, earning.Record{
		ID: id, UserID: userID, Source: earning.SourceGame, Amount: dec(amount),
		CompletionStatus: earning.StatusCompleted, DurationSeconds: 60, CreatedAt: t0.Add(-time.Hour),
	})
	return id
}

func (l *memLedger) isPaid(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.earnings {
		if r.ID == id {
			return r.Paid
		}
	}
	return false
}

func (l *memLedger) lastPaidAt(userID uuid.UUID) *time.Time {
	var last *time.Time
	for _, r := range l.earnings {
		if r.UserID == userID && r.PaidAt != nil && (last == nil || r.PaidAt.After(*last)) {
			t := *r.PaidAt
			last = &t
		}
	}
	return last
}

func (l *memLedger) burnedSince(userID uuid.UUID, since *time.Time, types []burn.Type) decimal.Decimal {
	allowed := map[burn.Type]bool{}
	for _, t := range types {
		allowed[t] = true
	}
	sum := decimal.Zero
	for _, r := range l.burns {
		if r.UserID == userID && allowed[r.BurnType] && (since == nil || r.CreatedAt.After(*since)) {
			sum = sum.Add(r.Amount)
		}
	}
	return sum
}

func (l *memLedger) decayedSince(userID uuid.UUID, since *time.Time) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range l.entries {
		if e.UserID == userID && (since == nil || e.CreatedAt.After(*since)) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum
}

// Settle re-checks the settlement under the lock the way the Postgres
// repository does.
func (l *memLedger) Settle(_ context.Context, s payout.Settlement) (time.Time, error) {
	if l.beforeSettle != nil {
		l.beforeSettle()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	last := l.lastPaidAt(s.UserID)
	if (last == nil) != (s.LastPaidAt == nil) || (last != nil && !last.Equal(*s.LastPaidAt)) {
		return time.Time{}, ledger.ErrConcurrentPayoutConflict
	}
	if !l.burnedSince(s.UserID, s.LastPaidAt, burn.SpendableTypes).Equal(s.Burned) {
		return time.Time{}, ledger.ErrConcurrentPayoutConflict
	}
	if !l.decayedSince(s.UserID, s.LastPaidAt).Equal(s.Decayed) {
		return time.Time{}, ledger.ErrConcurrentPayoutConflict
	}

	idx := make([]int, 0, len(s.RecordIDs))
	for _, id := range s.RecordIDs {
		found := false
		for i, r := range l.earnings {
			if r.ID != id {
				continue
			}
			if r.Paid {
				return time.Time{}, ledger.ErrConcurrentPayoutConflict
			}
			idx = append(idx, i)
			found = true
		}
		if !found {
			return time.Time{}, earning.ErrRecordNotFound
		}
	}

	paidAt := l.now
	for _, i := range idx {
		l.earnings[i].Paid = true
		l.earnings[i].PaidAt = &paidAt
	}
	return paidAt, nil
}

type earningStore struct{ l *memLedger }

func (s earningStore) List(_ context.Context, userID uuid.UUID, _ earning.Filter) ([]earning.Record, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	if s.l.err != nil {
		return nil, s.l.err
	}
	out := make([]earning.Record, 0)
	for _, r := range s.l.earnings {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s earningStore) Create(_ context.Context, rec *earning.Record) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	rec.ID = uuid.New()
	rec.CreatedAt = s.l.now
	s.l.earnings = append(s.l.earnings, *rec)
	return nil
}

type burnStore struct{ l *memLedger }

func (s burnStore) List(_ context.Context, userID uuid.UUID, since *time.Time, types []burn.Type) ([]burn.Record, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	allowed := map[burn.Type]bool{}
	for _, t := range types {
		allowed[t] = true
	}
	out := make([]burn.Record, 0)
	for _, r := range s.l.burns {
		if r.UserID == userID && allowed[r.BurnType] && (since == nil || r.CreatedAt.After(*since)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s burnStore) Record(_ context.Context, userID uuid.UUID, burnType burn.Type, amount decimal.Decimal) (*burn.Record, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	rec := burn.Record{ID: uuid.New(), UserID: userID, BurnType: burnType, Amount: amount, CreatedAt: s.l.now}
	s.l.burns = append(s.l.burns, rec)
	return &rec, nil
}

type activityStore struct{ l *memLedger }

func (s activityStore) state(userID uuid.UUID, lastPaidAt *time.Time) decay.State {
	return decay.State{
		LastActivityAt:         s.l.last[userID],
		SettledThrough:         s.l.settled[userID],
		DecayedSinceLastPayout: s.l.decayedSince(userID, lastPaidAt),
	}
}

func (s activityStore) Load(_ context.Context, userID uuid.UUID, lastPaidAt *time.Time) (decay.State, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	return s.state(userID, lastPaidAt), nil
}

func (s activityStore) Update(_ context.Context, userID uuid.UUID, lastPaidAt *time.Time, plan func(decay.State) decay.Decision) (decay.State, decay.Decision, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	state := s.state(userID, lastPaidAt)
	d := plan(state)
	if d.Entry != nil {
		d.Entry.ID = uuid.New()
		d.Entry.UserID = userID
		s.l.entries = append(s.l.entries, *d.Entry)
	}
	s.l.last[userID] = d.LastActivityAt
	settled := d.SettledThrough
	s.l.settled[userID] = &settled
	return state, d, nil
}

func (s activityStore) ListEntries(context.Context, uuid.UUID, int, int) ([]decay.Entry, error) {
	return nil, nil
}

type configStub struct {
	rate string
}

func (c configStub) Load(context.Context) (settings.Ledger, error) {
	return settings.Ledger{DecayRatePerSecond: dec(c.rate), TotalPoolCeiling: settings.DefaultPoolCeiling}, nil
}

type notifierStub struct {
	mu           sync.Mutex
	balanceCalls int
	poolCalls    int
}

func (n *notifierStub) BalanceChanged(context.Context, uuid.UUID) {
	n.mu.Lock()
	n.balanceCalls++
	n.mu.Unlock()
}

func (n *notifierStub) PoolChanged(context.Context) {
	n.mu.Lock()
	n.poolCalls++
	n.mu.Unlock()
}

type fixture struct {
	ledger   *memLedger
	balances *balance.Service
	payouts  *payout.Service
	notifier *notifierStub
}

func newFixture(rate string) *fixture {
	l := newMemLedger()
	engine := decay.NewEngine(activityStore{l}, nil, nil)
	balances := balance.NewService(earningStore{l}, burnStore{l}, engine, configStub{rate: rate}, nil, nil)
	balances.SetClock(func() time.Time { return l.now })
	n := &notifierStub{}
	return &fixture{
		ledger:   l,
		balances: balances,
		payouts:  payout.NewService(balances, l, n, nil),
		notifier: n,
	}
}

/* =========================
   Claims
   ========================= */

func TestClaimPaysSpendable(t *testing.T) {
	f := newFixture("0")
	userID := uuid.New()
	f.ledger.earn(userID, "600")
	f.ledger.earn(userID, "400")
	_, err := f.balances.RecordBurn(context.Background(), userID, burn.TypeBoost, dec("250"))
	requireNoError(t, err)

	res, err := f.payouts.Claim(context.Background(), userID)
	requireNoError(t, err)
	if !res.Amount.Equal(dec("750")) {
		t.Fatalf("expected 750, got %s", res.Amount)
	}
	if len(res.RecordIDs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.RecordIDs))
	}
	if !res.PaidAt.Equal(f.ledger.now) {
		t.Fatalf("expected paid_at from the store, got %v", res.PaidAt)
	}
	if f.notifier.balanceCalls != 1 || f.notifier.poolCalls != 1 {
		t.Fatalf("expected one balance and one pool notification, got %d/%d", f.notifier.balanceCalls, f.notifier.poolCalls)
	}

	if _, err := f.payouts.Claim(context.Background(), userID); !errors.Is(err, payout.ErrNothingToPay) {
		t.Fatalf("second claim should have nothing to pay, got %v", err)
	}
}

func TestClaimConflictsWhenBurnLandsBeforeSettlement(t *testing.T) {
	f := newFixture("0")
	userID := uuid.New()
	id := f.ledger.earn(userID, "1000")

	f.ledger.beforeSettle = func() {
		f.ledger.beforeSettle = nil
		if _, err := f.balances.RecordBurn(context.Background(), userID, burn.TypeSwipe, dec("400")); err != nil {
			t.Errorf("record burn: %v", err)
		}
	}

	_, err := f.payouts.Claim(context.Background(), userID)
	if !errors.Is(err, ledger.ErrConcurrentPayoutConflict) {
		t.Fatalf("expected ErrConcurrentPayoutConflict, got %v", err)
	}
	if f.ledger.isPaid(id) {
		t.Fatal("record must stay unpaid after a conflicting claim")
	}

	f.ledger.now = t0.Add(time.Second)
	res, err := f.payouts.Claim(context.Background(), userID)
	requireNoError(t, err)
	if !res.Amount.Equal(dec("600")) {
		t.Fatalf("retry must pay 1000-400=600, got %s", res.Amount)
	}
	if !f.ledger.isPaid(id) {
		t.Fatal("record must be paid after the retry")
	}
}

func TestClaimConflictsWhenDecayLandsBeforeSettlement(t *testing.T) {
	f := newFixture("1")
	userID := uuid.New()
	f.ledger.earn(userID, "1000")
	last := t0.Add(-10 * time.Second)
	f.ledger.last[userID] = &last

	f.ledger.beforeSettle = func() {
		f.ledger.beforeSettle = nil
		f.ledger.now = t0.Add(5 * time.Second)
		if _, err := f.balances.Touch(context.Background(), userID); err != nil {
			t.Errorf("touch: %v", err)
		}
	}

	if _, err := f.payouts.Claim(context.Background(), userID); !errors.Is(err, ledger.ErrConcurrentPayoutConflict) {
		t.Fatalf("expected ErrConcurrentPayoutConflict, got %v", err)
	}

	res, err := f.payouts.Claim(context.Background(), userID)
	requireNoError(t, err)
	if !res.Amount.Equal(dec("985")) {
		t.Fatalf("expected 1000-15=985, got %s", res.Amount)
	}
}

func TestClaimSettlesDecayWithoutTouching(t *testing.T) {
	f := newFixture("1")
	userID := uuid.New()
	f.ledger.earn(userID, "4060")
	last := t0.Add(-time.Hour)
	f.ledger.last[userID] = &last

	res, err := f.payouts.Claim(context.Background(), userID)
	requireNoError(t, err)
	if !res.Amount.Equal(dec("460")) {
		t.Fatalf("expected 460, got %s", res.Amount)
	}
	if got := f.ledger.last[userID]; got == nil || !got.Equal(last) {
		t.Fatalf("payout must not count as user activity, last activity %v", got)
	}
}

func TestClaimBurnAfterPayoutStartsNewWindow(t *testing.T) {
	f := newFixture("0")
	userID := uuid.New()
	f.ledger.earn(userID, "1000")

	_, err := f.payouts.Claim(context.Background(), userID)
	requireNoError(t, err)

	f.ledger.now = t0.Add(time.Minute)
	f.ledger.earn(userID, "300")
	_, err = f.balances.RecordBurn(context.Background(), userID, burn.TypeTip, dec("100"))
	requireNoError(t, err)

	res, err := f.payouts.Claim(context.Background(), userID)
	requireNoError(t, err)
	if !res.Amount.Equal(dec("200")) {
		t.Fatalf("expected 300-100=200, got %s", res.Amount)
	}
}

func TestClaimConcurrentPaysOnce(t *testing.T) {
	f := newFixture("0")
	userID := uuid.New()
	f.ledger.earn(userID, "100")
	f.ledger.earn(userID, "200")
	f.ledger.earn(userID, "300")

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.payouts.Claim(context.Background(), userID)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ledger.ErrConcurrentPayoutConflict) && !errors.Is(err, payout.ErrNothingToPay) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one payout, got %d", success)
	}
}

func TestClaimNothingToPayWhenBurnedOut(t *testing.T) {
	f := newFixture("0")
	userID := uuid.New()
	id := f.ledger.earn(userID, "100")
	_, err := f.balances.RecordBurn(context.Background(), userID, burn.TypeBoost, dec("500"))
	requireNoError(t, err)

	if _, err := f.payouts.Claim(context.Background(), userID); !errors.Is(err, payout.ErrNothingToPay) {
		t.Fatalf("expected ErrNothingToPay, got %v", err)
	}
	if f.ledger.isPaid(id) {
		t.Fatal("records must stay unpaid when nothing is paid out")
	}
}

func TestClaimPropagatesUnavailable(t *testing.T) {
	f := newFixture("0")
	userID := uuid.New()
	f.ledger.earn(userID, "100")
	f.ledger.err = ledger.ErrDataUnavailable

	if _, err := f.payouts.Claim(context.Background(), userID); !errors.Is(err, ledger.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
