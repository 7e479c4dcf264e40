package settings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	KeyDecayRatePerSecond  = "decay_rate_per_second"
	KeyTotalPoolCeiling    = "total_pool_ceiling"
	KeyActiveWindowSeconds = "active_window_seconds"
)

// DefaultPoolCeiling is used when no ceiling has been configured.
var DefaultPoolCeiling = decimal.NewFromInt(100_000_000)

// Record is one versioned key/value row of the configuration store.
type Record struct {
	Key       string     `db:"key" json:"key"`
	Value     string     `db:"value" json:"value"`
	Version   int64      `db:"version" json:"version"`
	UpdatedBy *uuid.UUID `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Defaults are the documented fallbacks for unset keys.
type Defaults struct {
	// EarnRatePerSecond is the platform earn rate; decay mirrors it unless overridden.
	EarnRatePerSecond decimal.Decimal
	PoolCeiling       decimal.Decimal
	// ActiveWindow is how long after the last activity a user still counts
	// as online.
	ActiveWindow time.Duration
}

// Ledger is the configuration snapshot read at computation time and passed
// explicitly into the decay engine and pool accountant.
type Ledger struct {
	DecayRatePerSecond  decimal.Decimal `json:"decay_rate_per_second"`
	TotalPoolCeiling    decimal.Decimal `json:"total_pool_ceiling"`
	ActiveWindowSeconds int64           `json:"active_window_seconds"`
	DecayRateVersion    int64           `json:"decay_rate_version"`
	CeilingVersion      int64           `json:"ceiling_version"`
}

// ActiveWindow returns the online grace period as a duration.
func (l Ledger) ActiveWindow() time.Duration {
	return time.Duration(l.ActiveWindowSeconds) * time.Second
}
