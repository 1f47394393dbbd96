// Package handlers provides the HTTP handlers of the livefeed server.
//
// Handlers are organized by concern:
//
//   - stream.go: SSE and WebSocket stream endpoints
//   - publish.go: inbound event submission
//   - health.go: liveness, readiness and connection listing
//
// All dependencies are injected through the Handlers struct. In relay mode
// there is no registry and the stream endpoint serves the relay instead.
package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/livefeed/internal/server/cache"
	"github.com/agentstation/livefeed/internal/server/registry"
)

// Mode selects how the stream endpoint is served.
type Mode string

// Server modes.
const (
	ModeBroadcast Mode = "broadcast"
	ModeRelay     Mode = "relay"
)

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	mode     Mode
	registry *registry.Registry
	stream   http.Handler
	ws       http.Handler
	cache    *cache.Cache
	upstream string
	started  time.Time
	logger   *zerolog.Logger
}

// NewBroadcast creates handlers backed by a connection registry.
func NewBroadcast(
	reg *registry.Registry,
	stream http.Handler,
	ws http.Handler,
	cache *cache.Cache,
	logger *zerolog.Logger,
) *Handlers {
	return &Handlers{
		mode:     ModeBroadcast,
		registry: reg,
		stream:   stream,
		ws:       ws,
		cache:    cache,
		started:  time.Now(),
		logger:   logger,
	}
}

// NewRelay creates handlers that relay upstream for every stream request.
func NewRelay(relay http.Handler, upstream string, logger *zerolog.Logger) *Handlers {
	return &Handlers{
		mode:     ModeRelay,
		stream:   relay,
		upstream: upstream,
		started:  time.Now(),
		logger:   logger,
	}
}

// Mode returns the mode the handlers were built for.
func (h *Handlers) Mode() Mode {
	return h.mode
}
