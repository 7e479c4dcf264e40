package decay

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/ledger"
)

// Params are the inputs of one decay computation besides the stored state.
type Params struct {
	UnpaidRaw decimal.Decimal
	Rate      decimal.Decimal
	// Window is the grace period after the last activity during which the
	// user is still online.
	Window time.Duration
	Now    time.Time
	// Touch records now as user activity.
	Touch bool
}

// Elapsed returns the time between lastActivityAt and now. A user with no
// recorded activity has zero elapsed time, and clock skew never yields a
// negative duration.
func Elapsed(lastActivityAt *time.Time, now time.Time) time.Duration {
	if lastActivityAt == nil {
		return 0
	}
	d := now.Sub(*lastActivityAt)
	if d < 0 {
		return 0
	}
	return d
}

// OfflineSince is the instant from which decay is still owed: the end of the
// active window, or the last settlement when that is later.
func OfflineSince(state State, window time.Duration) (time.Time, bool) {
	if state.LastActivityAt == nil {
		return time.Time{}, false
	}
	start := state.LastActivityAt.Add(window)
	if state.SettledThrough != nil && state.SettledThrough.After(start) {
		start = *state.SettledThrough
	}
	return start, true
}

// OfflineDuration is the unsettled offline time at now.
func OfflineDuration(state State, window time.Duration, now time.Time) time.Duration {
	start, ok := OfflineSince(state, window)
	if !ok || !now.After(start) {
		return 0
	}
	return now.Sub(start)
}

// Compute returns min(offline * ratePerSecond, headroom) with both inputs
// clamped at zero. A zero rate disables decay.
func Compute(offline time.Duration, ratePerSecond, headroom decimal.Decimal) decimal.Decimal {
	if offline <= 0 || !ratePerSecond.IsPositive() || !headroom.IsPositive() {
		return decimal.Zero
	}
	raw := ledger.Seconds(offline).Mul(ratePerSecond)
	return ledger.Round(decimal.Min(raw, headroom))
}

// PhaseAt reports Active while the last activity is within window, Offline
// once decay would accrue.
func PhaseAt(lastActivityAt *time.Time, now time.Time, window time.Duration, ratePerSecond decimal.Decimal) Phase {
	if lastActivityAt == nil || !ratePerSecond.IsPositive() || Elapsed(lastActivityAt, now) <= window {
		return PhaseActive
	}
	return PhaseOffline
}

// Plan decides what one application persists given the locked state.
// Neither timestamp ever moves backwards.
func Plan(state State, p Params) Decision {
	offline := OfflineDuration(state, p.Window, p.Now)
	headroom := p.UnpaidRaw.Sub(state.DecayedSinceLastPayout)
	amount := Compute(offline, p.Rate, headroom)

	d := Decision{LastActivityAt: state.LastActivityAt, SettledThrough: p.Now}
	if state.SettledThrough != nil && state.SettledThrough.After(p.Now) {
		d.SettledThrough = *state.SettledThrough
	}
	if p.Touch && (state.LastActivityAt == nil || p.Now.After(*state.LastActivityAt)) {
		now := p.Now
		d.LastActivityAt = &now
	}

	if amount.IsPositive() {
		d.Entry = &Entry{
			Amount:         amount,
			ElapsedSeconds: ledger.Seconds(offline),
			RatePerSecond:  p.Rate,
			Description:    EntryDescription,
			CreatedAt:      p.Now,
		}
	}
	return d
}
