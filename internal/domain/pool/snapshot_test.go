package pool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/earning"
	"github.com/avalove/avalove-ledger/internal/domain/ledger"
	"github.com/avalove/avalove-ledger/internal/domain/pool"
)

type snapshotStore struct {
	saved []pool.Snapshot
	err   error
}

func (s *snapshotStore) Save(_ context.Context, snap *pool.Snapshot) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, *snap)
	return nil
}

func (s *snapshotStore) List(_ context.Context, limit int) ([]pool.Snapshot, error) {
	out := make([]pool.Snapshot, 0, len(s.saved))
	for i := len(s.saved) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.saved[i])
	}
	return out, nil
}

func TestRecorderPersistsPoolState(t *testing.T) {
	acc := pool.NewAccountant(paidStub{sums: map[earning.Source]decimal.Decimal{
		earning.SourceMusic: dec("40"),
	}}, configStub{ceiling: "100"}, nil)
	store := &snapshotStore{}
	rec := pool.NewRecorder(acc, store)

	snap, err := rec.Record(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !snap.Distributed.Equal(dec("40")) || !snap.Remaining.Equal(dec("60")) || !snap.Percentage.Equal(dec("40")) {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(store.saved) != 1 || store.saved[0].ID != snap.ID {
		t.Fatalf("expected snapshot to be saved, got %+v", store.saved)
	}

	history, err := rec.History(context.Background(), 10)
	if err != nil || len(history) != 1 {
		t.Fatalf("expected one snapshot in history, got %d (%v)", len(history), err)
	}
}

func TestRecorderSkipsSaveWhenStateUnavailable(t *testing.T) {
	acc := pool.NewAccountant(paidStub{err: ledger.ErrDataUnavailable}, configStub{ceiling: "100"}, nil)
	store := &snapshotStore{}

	if _, err := pool.NewRecorder(acc, store).Record(context.Background()); !errors.Is(err, ledger.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("nothing should be saved, got %d", len(store.saved))
	}
}
