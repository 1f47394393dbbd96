package handlers

import (
	"net/http"
	"time"

	"github.com/agentstation/livefeed/internal/server/registry"
	"github.com/agentstation/livefeed/internal/server/response"
)

// ConnectionList is the body of the connections endpoint.
type ConnectionList struct {
	Connections []registry.Info `json:"connections"`
	Count       int             `json:"count"`
}

// HandleHealth handles GET /health and GET /api/v1/health (liveness).
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "livefeed",
		"version": "v1",
	})
}

// HandleReady handles GET /api/v1/ready.
// A broadcast server that has begun shutting down is not ready.
func (h *Handlers) HandleReady(w http.ResponseWriter, _ *http.Request) {
	uptime := time.Since(h.started).Truncate(time.Second).String()

	if h.mode == ModeRelay {
		response.OK(w, map[string]any{
			"status":   "ready",
			"mode":     h.mode,
			"upstream": h.upstream,
			"uptime":   uptime,
		})
		return
	}

	if h.registry.Closed() {
		response.ServiceUnavailable(w, "Server is shutting down")
		return
	}

	response.OK(w, map[string]any{
		"status":           "ready",
		"mode":             h.mode,
		"connections":      h.registry.Count(),
		"idempotency_keys": h.cache.ItemCount(),
		"uptime":           uptime,
	})
}

// HandleConnections handles GET /api/v1/connections (broadcast mode only).
func (h *Handlers) HandleConnections(w http.ResponseWriter, _ *http.Request) {
	conns := h.registry.Connections()
	response.OK(w, ConnectionList{Connections: conns, Count: len(conns)})
}
