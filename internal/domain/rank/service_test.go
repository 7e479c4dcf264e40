package rank_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/rank"
)

var base = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

// memRepo applies the same ordering as the SQL queries.
type memRepo struct {
	entries []rank.Entry
}

func (m *memRepo) Get(_ context.Context, tokenID string, userID uuid.UUID) (*rank.Entry, error) {
	for _, e := range m.entries {
		if e.TokenID == tokenID && e.UserID == userID {
			found := e
			return &found, nil
		}
	}
	return nil, rank.ErrNotRanked
}

func (m *memRepo) CountAhead(_ context.Context, me *rank.Entry) (int, error) {
	n := 0
	for _, e := range m.entries {
		if e.TokenID == me.TokenID && rank.Ahead(e, *me) {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) Top(_ context.Context, tokenID string, limit int) ([]rank.Entry, error) {
	out := make([]rank.Entry, 0)
	for _, e := range m.entries {
		if e.TokenID == tokenID {
			out = append(out, e)
		}
	}
	rank.Sort(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) Upsert(_ context.Context, e *rank.Entry) error {
	for i, existing := range m.entries {
		if existing.TokenID == e.TokenID && existing.UserID == e.UserID {
			if existing.Score.Equal(e.Score) {
				e.AchievedAt = existing.AchievedAt
			}
			m.entries[i] = *e
			return nil
		}
	}
	m.entries = append(m.entries, *e)
	return nil
}

func entry(userID uuid.UUID, score int64, at time.Duration) rank.Entry {
	return rank.Entry{TokenID: "ava", UserID: userID, Score: decimal.NewFromInt(score), AchievedAt: base.Add(at)}
}

func TestPositionTieBreakByAchievedAt(t *testing.T) {
	first, second, leader := uuid.New(), uuid.New(), uuid.New()
	entries := []rank.Entry{
		entry(second, 50, 2*time.Minute),
		entry(leader, 90, 5*time.Minute),
		entry(first, 50, time.Minute),
	}

	cases := map[uuid.UUID]int{leader: 1, first: 2, second: 3}
	for id, want := range cases {
		got, ok := rank.Position(entries, id)
		if !ok || got != want {
			t.Fatalf("expected position %d, got %d (found=%v)", want, got, ok)
		}
	}

	if _, ok := rank.Position(entries, uuid.New()); ok {
		t.Fatal("expected unknown user to be absent")
	}
}

func TestPositionTieBreakByUserID(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	entries := []rank.Entry{entry(b, 10, 0), entry(a, 10, 0)}

	if pos, _ := rank.Position(entries, a); pos != 1 {
		t.Fatalf("expected lower user id first, got %d", pos)
	}
	if pos, _ := rank.Position(entries, b); pos != 2 {
		t.Fatalf("expected 2, got %d", pos)
	}
}

func TestServiceRankMatchesTop(t *testing.T) {
	repo := &memRepo{}
	svc := rank.NewService(repo)
	ctx := context.Background()

	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	scores := []int64{30, 70, 70, 10}
	for i, u := range users {
		_, err := svc.Submit(ctx, "ava", u, decimal.NewFromInt(scores[i]), base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	top, err := svc.Top(ctx, "ava", 0)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	for _, e := range top {
		standing, err := svc.Rank(ctx, "ava", e.UserID)
		if err != nil {
			t.Fatalf("rank: %v", err)
		}
		if standing.Position != e.Position {
			t.Fatalf("rank %d disagrees with top position %d", standing.Position, e.Position)
		}
	}
	if top[0].UserID != users[1] {
		t.Fatalf("expected the earlier 70 to lead, got %s", top[0].UserID)
	}
}

func TestSubmitSameScoreKeepsAchievedAt(t *testing.T) {
	repo := &memRepo{}
	svc := rank.NewService(repo)
	userID := uuid.New()

	_, err := svc.Submit(context.Background(), "ava", userID, decimal.NewFromInt(5), base)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	again, err := svc.Submit(context.Background(), "ava", userID, decimal.NewFromInt(5), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !again.AchievedAt.Equal(base) {
		t.Fatalf("expected achieved_at to stay %v, got %v", base, again.AchievedAt)
	}
}

func TestRankErrors(t *testing.T) {
	svc := rank.NewService(&memRepo{})

	if _, err := svc.Rank(context.Background(), "ava", uuid.New()); !errors.Is(err, rank.ErrNotRanked) {
		t.Fatalf("expected ErrNotRanked, got %v", err)
	}
	if _, err := svc.Rank(context.Background(), "  ", uuid.New()); !errors.Is(err, rank.ErrInvalidTokenID) {
		t.Fatalf("expected ErrInvalidTokenID, got %v", err)
	}
}
