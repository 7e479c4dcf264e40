package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits kept for credit amounts (numeric(36,8)).
const AmountScale = 8

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// Seconds converts a duration into fractional seconds with millisecond precision.
func Seconds(d time.Duration) decimal.Decimal {
	return decimal.New(d.Milliseconds(), -3)
}

// Round normalises an amount to the storage scale.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}
