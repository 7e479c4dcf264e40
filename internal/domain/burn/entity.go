package burn

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type is a spend category. Only types in the allowlist may be recorded.
type Type string

const (
	TypeSwipe         Type = "swipe"
	TypeSuperLike     Type = "super_like"
	TypeBoost         Type = "boost"
	TypeGameEntry     Type = "game_entry"
	TypeProfileUnlock Type = "profile_unlock"
	TypeTip           Type = "tip"
	// TypeTokenBurn is settled on-chain from the wallet and never reduces credit balance.
	TypeTokenBurn Type = "token_burn"
)

// AllTypes is the fixed allowlist of spend categories.
var AllTypes = []Type{TypeSwipe, TypeSuperLike, TypeBoost, TypeGameEntry, TypeProfileUnlock, TypeTip, TypeTokenBurn}

// SpendableTypes are the categories that count against the spendable balance.
var SpendableTypes = []Type{TypeSwipe, TypeSuperLike, TypeBoost, TypeGameEntry, TypeProfileUnlock, TypeTip}

func (t Type) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Record is an immutable spend event.
type Record struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	BurnType  Type            `db:"burn_type" json:"burn_type"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
