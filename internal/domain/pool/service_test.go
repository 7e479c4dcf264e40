package pool_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/earning"
	"github.com/avalove/avalove-ledger/internal/domain/ledger"
	"github.com/avalove/avalove-ledger/internal/domain/pool"
	"github.com/avalove/avalove-ledger/internal/domain/settings"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type paidStub struct {
	sums map[earning.Source]decimal.Decimal
	err  error
}

func (p paidStub) SumPaidBySource(context.Context) (map[earning.Source]decimal.Decimal, error) {
	return p.sums, p.err
}

type configStub struct {
	ceiling string
}

func (c configStub) Load(context.Context) (settings.Ledger, error) {
	return settings.Ledger{TotalPoolCeiling: dec(c.ceiling)}, nil
}

func TestPoolStateOverDistributed(t *testing.T) {
	acc := pool.NewAccountant(paidStub{sums: map[earning.Source]decimal.Decimal{
		earning.SourceGame:  dec("60000000"),
		earning.SourceMusic: dec("40000001"),
	}}, configStub{ceiling: "100000000"}, nil)

	state, err := acc.ComputePoolState(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !state.Remaining.Equal(dec("-1")) {
		t.Fatalf("expected remaining -1, got %s", state.Remaining)
	}
	if !state.DisplayRemaining.IsZero() {
		t.Fatalf("expected display remaining 0, got %s", state.DisplayRemaining)
	}
	if !state.Percentage.Equal(dec("100")) {
		t.Fatalf("expected percentage clamped to 100, got %s", state.Percentage)
	}
	if !state.OverDistributed {
		t.Fatal("expected over-distributed flag")
	}
}

func TestPoolStateWithinCeiling(t *testing.T) {
	state := pool.Compute(dec("1000"), map[earning.Source]decimal.Decimal{
		earning.SourceWatch: dec("250"),
	})

	if !state.TotalPaidAcrossSources.Equal(dec("250")) {
		t.Fatalf("expected distributed 250, got %s", state.TotalPaidAcrossSources)
	}
	if !state.Remaining.Equal(dec("750")) {
		t.Fatalf("expected remaining 750, got %s", state.Remaining)
	}
	if !state.Percentage.Equal(dec("25")) {
		t.Fatalf("expected 25%%, got %s", state.Percentage)
	}
	if !state.BySource[earning.SourceSwap].IsZero() {
		t.Fatalf("expected zero for sources without payouts, got %s", state.BySource[earning.SourceSwap])
	}
}

func TestPoolStateZeroCeiling(t *testing.T) {
	empty := pool.Compute(decimal.Zero, nil)
	if !empty.Percentage.IsZero() || empty.OverDistributed {
		t.Fatalf("expected an empty pool, got %+v", empty)
	}

	paid := pool.Compute(decimal.Zero, map[earning.Source]decimal.Decimal{earning.SourceGame: dec("5")})
	if !paid.Percentage.Equal(dec("100")) {
		t.Fatalf("expected 100%%, got %s", paid.Percentage)
	}
	if !paid.Remaining.Equal(dec("-5")) {
		t.Fatalf("expected remaining -5, got %s", paid.Remaining)
	}
}

func TestPoolStatePropagatesStoreFailure(t *testing.T) {
	acc := pool.NewAccountant(paidStub{err: ledger.ErrDataUnavailable}, configStub{ceiling: "10"}, nil)
	if _, err := acc.ComputePoolState(context.Background()); !errors.Is(err, ledger.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestPoolHandler(t *testing.T) {
	acc := pool.NewAccountant(paidStub{sums: map[earning.Source]decimal.Decimal{
		earning.SourceGame: dec("10"),
	}}, configStub{ceiling: "100"}, nil)
	h := pool.NewHandler(acc, nil)

	rec := httptest.NewRecorder()
	h.State(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pool", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Remaining  string `json:"remaining"`
			Percentage string `json:"percentage"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Data.Remaining != "90" || body.Data.Percentage != "10" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestPoolHandlerUnavailable(t *testing.T) {
	acc := pool.NewAccountant(paidStub{err: ledger.ErrDataUnavailable}, configStub{ceiling: "100"}, nil)
	h := pool.NewHandler(acc, nil)

	rec := httptest.NewRecorder()
	h.State(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pool", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
