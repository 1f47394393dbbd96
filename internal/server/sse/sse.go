// Package sse serves the broadcast stream to browsers as Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/livefeed/internal/server/registry"
	pkgerrors "github.com/agentstation/livefeed/pkg/errors"
	"github.com/agentstation/livefeed/pkg/events"
)

// SetHeaders writes the response headers of an event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", events.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
}

// Conn is one SSE stream. Frames queued through its Outbox are written by
// the request goroutine in Pump.
type Conn struct {
	*registry.Outbox
	w  io.Writer
	rc *http.ResponseController
}

// NewConn wraps a response writer. The caller must have verified that the
// writer supports flushing.
func NewConn(id string, w http.ResponseWriter, outboxSize int) *Conn {
	return &Conn{
		Outbox: registry.NewOutbox(id, outboxSize),
		w:      w,
		rc:     http.NewResponseController(w),
	}
}

// WriteEnvelope writes env immediately, bypassing the outbox. It must only
// be called from the goroutine that runs Pump.
func (c *Conn) WriteEnvelope(env events.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.writeFrame(payload)
}

func (c *Conn) writeFrame(payload []byte) error {
	if _, err := c.w.Write(events.Frame(payload)); err != nil {
		return pkgerrors.NewWriteError(c.ID(), err)
	}
	if err := c.rc.Flush(); err != nil {
		return pkgerrors.NewWriteError(c.ID(), err)
	}
	return nil
}

// Pump writes queued frames until ctx is done, the connection is closed,
// or a write fails.
func (c *Conn) Pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Done():
			return nil
		case payload := <-c.Queue():
			if err := c.writeFrame(payload); err != nil {
				return err
			}
		}
	}
}

// Handler accepts SSE connections into a registry.
type Handler struct {
	registry   *registry.Registry
	logger     *zerolog.Logger
	outboxSize int
}

// NewHandler creates an SSE handler for reg.
func NewHandler(reg *registry.Registry, logger *zerolog.Logger) *Handler {
	return &Handler{
		registry:   reg,
		logger:     logger,
		outboxSize: registry.DefaultOutboxSize,
	}
}

// ServeHTTP handles one SSE connection for its whole lifetime.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	// Long-lived streams must not be cut by the server WriteTimeout
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Debug().Err(err).Msg("Could not disable write deadline")
	}

	SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error().Err(err).Msg("Streaming not supported")
		return
	}

	conn := NewConn(uuid.NewString(), w, h.outboxSize)
	logger := h.logger.With().Str("connection_id", conn.ID()).Str("remote_addr", r.RemoteAddr).Logger()

	// Confirm the stream before it can receive any broadcast
	if err := conn.WriteEnvelope(events.New(&events.ConnectedData{
		ConnectionID: conn.ID(),
		Message:      "Connected to live event stream",
	})); err != nil {
		logger.Debug().Err(err).Msg("Client gone before connect confirmation")
		return
	}

	if err := h.registry.Register(conn); err != nil {
		logger.Warn().Err(err).Msg("Connection rejected")
		_ = conn.WriteEnvelope(events.New(&events.ErrorData{
			Message: "event stream unavailable",
			Reason:  err.Error(),
		}))
		return
	}
	defer h.registry.Unregister(conn)

	err := conn.Pump(r.Context())
	switch {
	case err == nil:
		logger.Debug().Msg("Stream closed by registry")
	case errors.Is(err, context.Canceled):
		logger.Debug().Msg("Client disconnected")
	default:
		logger.Warn().Err(err).Msg("Stream write failed")
	}
}
