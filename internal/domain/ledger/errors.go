package ledger

import "errors"

var (
	// ErrDataUnavailable is returned when a record store cannot be read or written.
	// Callers must surface it; a zero balance is never substituted.
	ErrDataUnavailable = errors.New("ledger data unavailable")

	// ErrInvalidConfiguration is returned when a decay rate or pool ceiling is rejected at write time
	ErrInvalidConfiguration = errors.New("invalid ledger configuration")

	// ErrConcurrentPayoutConflict is returned when another payout already claimed a record.
	// Re-fetch and recompute instead of retrying blindly.
	ErrConcurrentPayoutConflict = errors.New("concurrent payout conflict")

	ErrInvalidAmount = errors.New("invalid amount: must not be negative")
)
