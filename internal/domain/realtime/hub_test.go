package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/balance"
	"github.com/avalove/avalove-ledger/internal/domain/pool"
)

type recomputeStub struct{}

func (recomputeStub) ComputePoolState(context.Context) (*pool.State, error) {
	return pool.Compute(decimal.NewFromInt(100), nil), nil
}

func (recomputeStub) ComputeSpendable(_ context.Context, userID uuid.UUID) (*balance.Snapshot, error) {
	return &balance.Snapshot{UserID: userID, SpendableBalance: decimal.NewFromInt(42)}, nil
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(nil, nil)
	h.Attach(recomputeStub{})
	go h.Run()
	t.Cleanup(h.Shutdown)
	return h
}

func connect(t *testing.T, h *Hub, userID uuid.UUID) *Connection {
	t.Helper()
	conn := &Connection{UserID: userID, Send: make(chan []byte, 8)}
	if !h.Register(conn) {
		t.Fatal("connection was not registered")
	}
	return conn
}

func receive(t *testing.T, conn *Connection) WSEvent {
	t.Helper()
	select {
	case data := <-conn.Send:
		var event WSEvent
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return WSEvent{}
}

func TestBalanceChangedReachesOnlyThatUser(t *testing.T) {
	h := startHub(t)
	alice := connect(t, h, uuid.New())
	bob := connect(t, h, uuid.New())

	h.BalanceChanged(context.Background(), alice.UserID)

	event := receive(t, alice)
	if event.Type != EventBalance {
		t.Fatalf("expected %s, got %s", EventBalance, event.Type)
	}

	select {
	case <-bob.Send:
		t.Fatal("other users must not receive balance events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPoolChangedBroadcasts(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, uuid.New())
	b := connect(t, h, uuid.New())

	h.PoolChanged(context.Background())

	for _, conn := range []*Connection{a, b} {
		if event := receive(t, conn); event.Type != EventPoolState {
			t.Fatalf("expected %s, got %s", EventPoolState, event.Type)
		}
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	conn := connect(t, h, uuid.New())

	h.Unregister(conn)

	select {
	case _, ok := <-conn.Send:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
	if h.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", h.ConnectionCount())
	}
}

func TestFirstSnapshotAfterRegister(t *testing.T) {
	h := startHub(t)
	conn := connect(t, h, uuid.New())

	// what the socket handler does right after registering
	h.pushBalance(conn.UserID)

	event := receive(t, conn)
	if event.Type != EventBalance {
		t.Fatalf("expected %s, got %s", EventBalance, event.Type)
	}
}

func TestRegisterAndUnregisterAfterShutdown(t *testing.T) {
	h := startHub(t)
	conn := connect(t, h, uuid.New())
	h.Shutdown()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Unregister(conn)
		if h.Register(&Connection{UserID: uuid.New(), Send: make(chan []byte, 1)}) {
			t.Error("register must be refused after shutdown")
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("register/unregister blocked after shutdown")
	}
	if h.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", h.ConnectionCount())
	}
}
