package main

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/pool"
)

type recorderStub struct {
	calls int
	err   error
}

func (r *recorderStub) Record(ctx context.Context) (*pool.Snapshot, error) {
	r.calls++
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("snapshot must run with a deadline")
	}
	if r.err != nil {
		return nil, r.err
	}
	return &pool.Snapshot{Distributed: decimal.NewFromInt(5), Remaining: decimal.NewFromInt(95)}, nil
}

func TestSnapshotJobRecords(t *testing.T) {
	stub := &recorderStub{}
	snapshotJob(stub)()
	snapshotJob(stub)()

	if stub.calls != 2 {
		t.Fatalf("expected 2 snapshots, got %d", stub.calls)
	}
}

func TestSnapshotJobSurvivesFailure(t *testing.T) {
	stub := &recorderStub{err: errors.New("db down")}

	defer func() {
		if rec := recover(); rec != nil {
			t.Fatalf("job panicked: %v", rec)
		}
	}()
	snapshotJob(stub)()

	if stub.calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", stub.calls)
	}
}
