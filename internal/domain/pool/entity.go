package pool

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/earning"
)

// State is the global distribution position against the configured ceiling.
type State struct {
	TotalPoolCeiling       decimal.Decimal `json:"total_pool_ceiling"`
	TotalPaidAcrossSources decimal.Decimal `json:"total_paid_across_sources"`
	// Remaining is negative when more was paid than the ceiling allows.
	Remaining        decimal.Decimal                    `json:"remaining"`
	DisplayRemaining decimal.Decimal                    `json:"display_remaining"`
	Percentage       decimal.Decimal                    `json:"percentage"`
	OverDistributed  bool                               `json:"over_distributed"`
	BySource         map[earning.Source]decimal.Decimal `json:"by_source"`
	ComputedAt       time.Time                          `json:"computed_at"`
}
