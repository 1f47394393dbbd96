// Package websocket serves the broadcast stream over WebSocket for clients
// that cannot use Server-Sent Events. Each text message is one JSON
// envelope, without the SSE framing.
package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/livefeed/internal/server/registry"
	"github.com/agentstation/livefeed/pkg/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Conn is one WebSocket stream registered with the registry.
type Conn struct {
	*registry.Outbox
	ws     *websocket.Conn
	logger zerolog.Logger
}

// NewConn wraps an upgraded WebSocket connection.
func NewConn(id string, ws *websocket.Conn, logger zerolog.Logger) *Conn {
	return &Conn{
		Outbox: registry.NewOutbox(id, registry.DefaultOutboxSize),
		ws:     ws,
		logger: logger,
	}
}

// writeEnvelope writes env immediately. Only the write pump goroutine may
// call it once the pumps are running.
func (c *Conn) writeEnvelope(env events.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, payload)
}

func (c *Conn) write(messageType int, payload []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, payload)
}

// readPump drains the peer so control frames are processed, and calls
// onClose when the peer goes away.
func (c *Conn) readPump(onClose func()) {
	defer onClose()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

// writePump writes queued envelopes and pings until the outbox is closed
// or a write fails.
func (c *Conn) writePump() error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.Done():
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return nil
		case payload := <-c.Queue():
			if err := c.write(websocket.TextMessage, payload); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// Handler upgrades requests and registers the resulting connections.
type Handler struct {
	registry *registry.Registry
	upgrader websocket.Upgrader
	logger   *zerolog.Logger
}

// NewHandler creates a WebSocket handler. An empty origins list accepts
// every origin.
func NewHandler(reg *registry.Registry, logger *zerolog.Logger, origins []string) *Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return &Handler{
		registry: reg,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 || allowed["*"] {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
	}
}

// ServeHTTP handles one WebSocket connection for its whole lifetime.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer func() { _ = ws.Close() }()

	id := uuid.NewString()
	logger := h.logger.With().Str("connection_id", id).Str("transport", "websocket").Logger()
	conn := NewConn(id, ws, logger)

	if err := conn.writeEnvelope(events.New(&events.ConnectedData{
		ConnectionID: id,
		Message:      "Connected to live event stream",
	})); err != nil {
		logger.Debug().Err(err).Msg("Client gone before connect confirmation")
		return
	}

	if err := h.registry.Register(conn); err != nil {
		logger.Warn().Err(err).Msg("Connection rejected")
		_ = conn.writeEnvelope(events.New(&events.ErrorData{
			Message: "event stream unavailable",
			Reason:  err.Error(),
		}))
		return
	}
	defer h.registry.Unregister(conn)

	go conn.readPump(func() { h.registry.Unregister(conn) })

	if err := conn.writePump(); err != nil {
		logger.Warn().Err(err).Msg("WebSocket write failed")
	}
}
