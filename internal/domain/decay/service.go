package decay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/pkg/metrics"
)

// Locker serialises decay application for one user across instances.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ApplyInput carries everything one decay application needs. The rate is read
// by the caller from the configuration store on every computation.
type ApplyInput struct {
	UserID     uuid.UUID
	UnpaidRaw  decimal.Decimal
	LastPaidAt *time.Time
	Rate       decimal.Decimal
	// Window is how long after the last activity the user still counts as online.
	Window time.Duration
	Now    time.Time
	// Touch records Now as user activity. Observers and payout settlement
	// leave it false.
	Touch bool
}

func (in ApplyInput) params() Params {
	return Params{UnpaidRaw: in.UnpaidRaw, Rate: in.Rate, Window: in.Window, Now: in.Now, Touch: in.Touch}
}

// Result reports what an application did.
type Result struct {
	// Applied is the decay written by this application (zero when nothing was
	// due). For a preview it is the decay that would be written.
	Applied decimal.Decimal
	// DecayedSinceLastPayout includes Applied.
	DecayedSinceLastPayout decimal.Decimal
	// Offline is the unsettled offline time Applied was computed from.
	Offline        time.Duration
	LastActivityAt *time.Time
	Phase          Phase
	// Entry is nil for previews.
	Entry *Entry
}

type Engine struct {
	repo    Repository
	locker  Locker
	metrics *metrics.LedgerMetrics
}

// NewEngine creates the decay engine. locker may be nil when no Redis is
// configured; the row lock in the repository still serialises writers.
func NewEngine(repo Repository, locker Locker, m *metrics.LedgerMetrics) *Engine {
	return &Engine{repo: repo, locker: locker, metrics: m}
}

// Apply persists pending offline decay for a user and, when in.Touch is set,
// records the activity. Applying twice at the same instant writes nothing the
// second time.
func (e *Engine) Apply(ctx context.Context, in ApplyInput) (*Result, error) {
	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, "ledger:decay:"+in.UserID.String())
		if err != nil {
			if e.metrics != nil {
				e.metrics.DecayLockFailTotal.Inc()
			}
			// The row lock still protects the write; carry on without the mutex.
			log.Warn().Err(err).Str("user_id", in.UserID.String()).Msg("decay lock unavailable")
		} else {
			defer unlock()
		}
	}

	var offline time.Duration
	state, decision, err := e.repo.Update(ctx, in.UserID, in.LastPaidAt, func(s State) Decision {
		offline = OfflineDuration(s, in.Window, in.Now)
		return Plan(s, in.params())
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Applied:                decimal.Zero,
		DecayedSinceLastPayout: state.DecayedSinceLastPayout,
		Offline:                offline,
		LastActivityAt:         decision.LastActivityAt,
		Phase:                  PhaseAt(decision.LastActivityAt, in.Now, in.Window, in.Rate),
		Entry:                  decision.Entry,
	}
	if decision.Entry != nil {
		res.Applied = decision.Entry.Amount
		res.DecayedSinceLastPayout = res.DecayedSinceLastPayout.Add(decision.Entry.Amount)

		log.Debug().
			Str("user_id", in.UserID.String()).
			Str("amount", decision.Entry.Amount.String()).
			Dur("offline", offline).
			Msg("offline decay applied")

		if e.metrics != nil {
			f, _ := decision.Entry.Amount.Float64()
			e.metrics.DecayAppliedTotal.Add(f)
			e.metrics.DecayEntriesTotal.Inc()
		}
	}
	return res, nil
}

// Preview reports what Apply would do without writing anything. Observers
// such as admin views and the live feed read balances this way.
func (e *Engine) Preview(ctx context.Context, in ApplyInput) (*Result, error) {
	state, err := e.repo.Load(ctx, in.UserID, in.LastPaidAt)
	if err != nil {
		return nil, err
	}

	in.Touch = false
	decision := Plan(state, in.params())
	res := &Result{
		Applied:                decimal.Zero,
		DecayedSinceLastPayout: state.DecayedSinceLastPayout,
		Offline:                OfflineDuration(state, in.Window, in.Now),
		LastActivityAt:         state.LastActivityAt,
		Phase:                  PhaseAt(state.LastActivityAt, in.Now, in.Window, in.Rate),
	}
	if decision.Entry != nil {
		res.Applied = decision.Entry.Amount
		res.DecayedSinceLastPayout = res.DecayedSinceLastPayout.Add(decision.Entry.Amount)
	}
	return res, nil
}

// History lists persisted decay entries, newest first.
func (e *Engine) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return e.repo.ListEntries(ctx, userID, limit, offset)
}
