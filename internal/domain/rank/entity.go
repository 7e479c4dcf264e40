package rank

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry is one row of the denormalized leaderboard for a token or category.
type Entry struct {
	TokenID    string          `db:"token_id" json:"token_id"`
	UserID     uuid.UUID       `db:"user_id" json:"user_id"`
	Score      decimal.Decimal `db:"score" json:"score"`
	AchievedAt time.Time       `db:"achieved_at" json:"achieved_at"`
	Position   int             `db:"-" json:"position,omitempty"`
}

// Standing is a user's place on one board.
type Standing struct {
	TokenID  string          `json:"token_id"`
	UserID   uuid.UUID       `json:"user_id"`
	Position int             `json:"position"`
	Score    decimal.Decimal `json:"score"`
}

// Ahead reports whether a ranks before b: higher score first, then the
// earlier achievedAt, then the lower user id.
func Ahead(a, b Entry) bool {
	if c := a.Score.Cmp(b.Score); c != 0 {
		return c > 0
	}
	if !a.AchievedAt.Equal(b.AchievedAt) {
		return a.AchievedAt.Before(b.AchievedAt)
	}
	return a.UserID.String() < b.UserID.String()
}

// Sort orders entries best first and fills in 1-indexed positions.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Ahead(entries[i], entries[j])
	})
	for i := range entries {
		entries[i].Position = i + 1
	}
}

// Position returns the 1-indexed rank of userID, or false when absent.
func Position(entries []Entry, userID uuid.UUID) (int, bool) {
	var me *Entry
	for i := range entries {
		if entries[i].UserID == userID {
			me = &entries[i]
			break
		}
	}
	if me == nil {
		return 0, false
	}

	pos := 1
	for _, e := range entries {
		if e.UserID != userID && Ahead(e, *me) {
			pos++
		}
	}
	return pos, true
}
