package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/avalove/avalove-ledger/internal/domain/balance"
	"github.com/avalove/avalove-ledger/internal/domain/pool"
	"github.com/avalove/avalove-ledger/internal/pkg/metrics"
)

// EventType for WebSocket messages
type EventType string

const (
	EventPoolState     EventType = "pool_state"
	EventBalance       EventType = "balance"
	EventPoolChanged   EventType = "pool_changed"
	EventBalanceChange EventType = "balance_changed"
)

const (
	eventsChannel    = "ledger:events"
	recomputeTimeout = 5 * time.Second
)

// change is what instances exchange over Redis. Payloads are never shipped;
// every instance recomputes from the stores.
type change struct {
	Type   EventType `json:"type"`
	UserID string    `json:"user_id,omitempty"`
}

// WSEvent is written to clients.
type WSEvent struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type Recomputer interface {
	ComputePoolState(ctx context.Context) (*pool.State, error)
	ComputeSpendable(ctx context.Context, userID uuid.UUID) (*balance.Snapshot, error)
}

// Connection represents a WebSocket connection
type Connection struct {
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub fans ledger changes out to connected clients. With Redis configured a
// change published on one instance reaches clients on every instance.
type Hub struct {
	connections map[uuid.UUID]map[*Connection]bool
	mu          sync.RWMutex

	redis  *redis.Client
	pubsub *redis.PubSub

	recompute Recomputer
	metrics   *metrics.LedgerMetrics

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates the hub. Attach must be called before Run.
func NewHub(redisClient *redis.Client, m *metrics.LedgerMetrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		connections: make(map[uuid.UUID]map[*Connection]bool),
		redis:       redisClient,
		metrics:     m,
		ctx:         ctx,
		cancel:      cancel,
	}
	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, eventsChannel)
	}
	return h
}

// Attach sets what the hub recomputes from. The balance and pool services
// themselves notify the hub, so they are wired after construction.
func (h *Hub) Attach(recompute Recomputer) {
	h.recompute = recompute
}

// Run starts the hub (call in goroutine). It returns after Shutdown.
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}
	<-h.ctx.Done()
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			var c change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				continue
			}
			h.dispatch(c)
		}
	}
}

func (h *Hub) dispatch(c change) {
	switch c.Type {
	case EventPoolChanged:
		go h.pushPoolState()
	case EventBalanceChange:
		userID, err := uuid.Parse(c.UserID)
		if err != nil {
			return
		}
		go h.pushBalance(userID)
	}
}

// PoolChanged tells every instance to push a fresh pool state.
func (h *Hub) PoolChanged(ctx context.Context) {
	h.publish(ctx, change{Type: EventPoolChanged})
}

// BalanceChanged tells every instance to push a fresh snapshot to the user.
func (h *Hub) BalanceChanged(ctx context.Context, userID uuid.UUID) {
	h.publish(ctx, change{Type: EventBalanceChange, UserID: userID.String()})
}

func (h *Hub) publish(ctx context.Context, c change) {
	if h.redis == nil {
		h.dispatch(c)
		return
	}

	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := h.redis.Publish(ctx, eventsChannel, data).Err(); err != nil {
		log.Error().Err(err).Str("channel", eventsChannel).Msg("Redis publish failed")
		// Fallback to local delivery
		h.dispatch(c)
	}
}

func (h *Hub) pushPoolState() {
	if h.recompute == nil || h.ConnectionCount() == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, recomputeTimeout)
	defer cancel()

	state, err := h.recompute.ComputePoolState(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("pool recompute for realtime feed failed")
		return
	}
	h.broadcastLocal(&WSEvent{Type: EventPoolState, Data: state})
}

func (h *Hub) pushBalance(userID uuid.UUID) {
	if h.recompute == nil || !h.hasLocal(userID) {
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, recomputeTimeout)
	defer cancel()

	snap, err := h.recompute.ComputeSpendable(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("balance recompute for realtime feed failed")
		return
	}
	h.SendToUser(userID, &WSEvent{Type: EventBalance, Data: snap})
}

func (h *Hub) broadcastLocal(event *WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conns := range h.connections {
		for conn := range conns {
			h.deliver(conn, data)
		}
	}
}

// SendToUser writes an event to every local connection of the user.
func (h *Hub) SendToUser(userID uuid.UUID, event *WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.connections[userID] {
		h.deliver(conn, data)
	}
}

func (h *Hub) deliver(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
		if h.metrics != nil {
			h.metrics.RealtimeEventsSent.Inc()
		}
	default:
		// Buffer full, skip this message
		if h.metrics != nil {
			h.metrics.RealtimeEventsDrop.Inc()
		}
		log.Warn().Str("user_id", conn.UserID.String()).Msg("WebSocket send buffer full")
	}
}

func (h *Hub) hasLocal(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID]) > 0
}

// Register adds a connection. The connection is visible to pushes as soon as
// Register returns. It reports false once the hub has shut down.
func (h *Hub) Register(conn *Connection) bool {
	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		return false
	}
	if h.connections[conn.UserID] == nil {
		h.connections[conn.UserID] = make(map[*Connection]bool)
	}
	h.connections[conn.UserID][conn] = true
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RealtimeConnections.Inc()
	}
	log.Debug().Str("user_id", conn.UserID.String()).Msg("User connected to ledger feed")
	return true
}

// Unregister removes a connection and closes its send channel. It never
// blocks, also after Shutdown, and is safe to call twice.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	conns, ok := h.connections[conn.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := conns[conn]; exists {
		delete(conns, conn)
		close(conn.Send)
		if h.metrics != nil {
			h.metrics.RealtimeConnections.Dec()
		}
	}
	if len(conns) == 0 {
		delete(h.connections, conn.UserID)
	}
	h.mu.Unlock()
	log.Debug().Str("user_id", conn.UserID.String()).Msg("User disconnected from ledger feed")
}

// ConnectionCount returns number of local connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.connections {
		total += len(conns)
	}
	return total
}

// Shutdown gracefully shuts down the hub
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}
