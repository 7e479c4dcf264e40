package rank

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
	maxTokenIDLen   = 64
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Rank returns the user's 1-indexed position on the token's board.
func (s *Service) Rank(ctx context.Context, tokenID string, userID uuid.UUID) (*Standing, error) {
	tokenID, err := normalizeTokenID(tokenID)
	if err != nil {
		return nil, err
	}

	me, err := s.repo.Get(ctx, tokenID, userID)
	if err != nil {
		return nil, err
	}
	ahead, err := s.repo.CountAhead(ctx, me)
	if err != nil {
		return nil, err
	}

	return &Standing{
		TokenID:  tokenID,
		UserID:   userID,
		Position: ahead + 1,
		Score:    me.Score,
	}, nil
}

// Top lists the best entries with positions filled in.
func (s *Service) Top(ctx context.Context, tokenID string, limit int) ([]Entry, error) {
	tokenID, err := normalizeTokenID(tokenID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}

	entries, err := s.repo.Top(ctx, tokenID, limit)
	if err != nil {
		return nil, err
	}
	Sort(entries)
	return entries, nil
}

// Submit records a score. A zero achievedAt means now.
func (s *Service) Submit(ctx context.Context, tokenID string, userID uuid.UUID, score decimal.Decimal, achievedAt time.Time) (*Entry, error) {
	tokenID, err := normalizeTokenID(tokenID)
	if err != nil {
		return nil, err
	}
	if achievedAt.IsZero() {
		achievedAt = s.now()
	}

	e := &Entry{TokenID: tokenID, UserID: userID, Score: score, AchievedAt: achievedAt.UTC()}
	if err := s.repo.Upsert(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func normalizeTokenID(tokenID string) (string, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" || len(tokenID) > maxTokenIDLen {
		return "", ErrInvalidTokenID
	}
	return tokenID, nil
}
