package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/avalove/avalove-ledger/internal/domain/balance"
	"github.com/avalove/avalove-ledger/internal/middleware"
	"github.com/avalove/avalove-ledger/internal/pkg/logger"
	"github.com/avalove/avalove-ledger/internal/pkg/response"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxFrameSize = 512
	sendBuffer   = 64
)

// Client frames. Anything else is ignored.
const (
	clientHeartbeat = "heartbeat"
	clientRefresh   = "refresh"
)

// Toucher finalises decay when a connected client reports activity.
type Toucher interface {
	Heartbeat(ctx context.Context, userID uuid.UUID) (*balance.Snapshot, error)
}

type Handler struct {
	hub      *Hub
	toucher  Toucher
	upgrader websocket.Upgrader
}

// NewHandler accepts upgrades from allowedOrigins only; an empty list accepts
// any origin, which is what local development runs with.
func NewHandler(hub *Hub, toucher Toucher, allowedOrigins []string) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &Handler{
		hub:     hub,
		toucher: toucher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 || origins[r.Header.Get("Origin")] {
					return true
				}
				logger.FromContext(r.Context()).Warn().Str("origin", r.Header.Get("Origin")).Msg("WebSocket origin rejected")
				return false
			},
		},
	}
}

// WebSocket handles GET /ws. The client gets the pool state and its own
// snapshot right away, then a fresh copy after every ledger write.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.FromContext(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Connection{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
	}
	if !h.hub.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}

	l := logger.FromContext(r.Context()).With().Str("user_id", userID.String()).Logger()
	go h.writePump(client)
	go h.readPump(client, &l)

	h.refresh(userID)
}

func (h *Handler) refresh(userID uuid.UUID) {
	go h.hub.pushPoolState()
	go h.hub.pushBalance(userID)
}

func (h *Handler) readPump(client *Connection, l *zerolog.Logger) {
	defer func() {
		h.hub.Unregister(client)
		_ = client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxFrameSize)
	_ = client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.Warn().Err(err).Msg("WebSocket closed unexpectedly")
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(frame, &msg) != nil {
			continue
		}

		switch msg.Type {
		case clientHeartbeat:
			h.heartbeat(client.UserID, l)
		case clientRefresh:
			h.refresh(client.UserID)
		}
	}
}

// heartbeat is the socket equivalent of POST /activity/heartbeat.
func (h *Handler) heartbeat(userID uuid.UUID, l *zerolog.Logger) {
	if h.toucher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recomputeTimeout)
	defer cancel()

	snap, err := h.toucher.Heartbeat(ctx, userID)
	if err != nil {
		l.Warn().Err(err).Msg("WebSocket heartbeat failed")
		return
	}
	h.hub.SendToUser(userID, &WSEvent{Type: EventBalance, Data: snap})
}

func (h *Handler) writePump(client *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.Conn.Close()
	}()

	write := func(messageType int, data []byte) error {
		_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		return client.Conn.WriteMessage(messageType, data)
	}

	for {
		select {
		case data, ok := <-client.Send:
			if !ok {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
