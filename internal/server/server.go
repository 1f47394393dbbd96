// Package server wires the livefeed HTTP server.
//
// In broadcast mode the server owns a connection registry. Streams over SSE
// and WebSocket register with it, and submissions to the events endpoint are
// broadcast to every registered connection. In relay mode each stream request
// is proxied from an upstream origin and the server holds no shared state.
package server

import (
	"context"
	"net"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/agentstation/livefeed/internal/cmd/application"
	"github.com/agentstation/livefeed/internal/server/cache"
	"github.com/agentstation/livefeed/internal/server/handlers"
	"github.com/agentstation/livefeed/internal/server/middleware"
	"github.com/agentstation/livefeed/internal/server/registry"
	"github.com/agentstation/livefeed/internal/server/relay"
	"github.com/agentstation/livefeed/internal/server/sse"
	ws "github.com/agentstation/livefeed/internal/server/websocket"
	"github.com/agentstation/livefeed/pkg/events"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	app      application.Application
	config   Config
	registry *registry.Registry
	relay    *relay.Relay
	cache    *cache.Cache
	limiter  *middleware.RateLimiter
	handlers *handlers.Handlers
	logger   *zerolog.Logger

	// baseCtx is the parent of every request context; Shutdown cancels it
	// so relayed streams end too.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New creates a new server instance with the given configuration.
func New(app application.Application, cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := app.Logger()
	s := &Server{
		app:    app,
		config: cfg,
		logger: logger,
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	switch cfg.Mode {
	case handlers.ModeRelay:
		logger.Debug().Str("upstream", cfg.UpstreamURL).Msg("Creating relay")
		s.relay = relay.New(cfg.UpstreamURL, nil, logger)
		s.handlers = handlers.NewRelay(s.relay, cfg.UpstreamURL, logger)

	default:
		logger.Debug().Dur("heartbeat_interval", cfg.HeartbeatInterval).Msg("Creating connection registry")
		s.registry = registry.New(logger, registry.WithHeartbeatInterval(cfg.HeartbeatInterval))
		s.cache = cache.New(cfg.DedupeTTL, cfg.DedupeTTL*2)
		s.handlers = handlers.NewBroadcast(
			s.registry,
			sse.NewHandler(s.registry, logger),
			ws.NewHandler(s.registry, logger, cfg.CORSOrigins),
			s.cache,
			logger,
		)
		if cfg.RateLimit > 0 {
			s.limiter = middleware.NewRateLimiter(cfg.RateLimit, logger)
		}
	}

	logger.Debug().Str("mode", string(cfg.Mode)).Msg("Server instance created")
	return s, nil
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// HTTPServer returns an http.Server for the configured address.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return s.baseCtx
		},
	}
}

// Publish broadcasts env to every registered connection and returns the
// number it was handed to. In relay mode it returns 0.
func (s *Server) Publish(env events.Envelope) int {
	if s.registry == nil {
		return 0
	}
	return s.registry.Broadcast(env)
}

// Shutdown closes every open stream and stops background work. Call it
// before http.Server.Shutdown so that long-lived streams end and the HTTP
// server can drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server background services")

	if s.limiter != nil {
		s.limiter.Stop()
	}
	defer s.cancelBase()
	if s.registry == nil {
		return nil
	}
	return s.registry.Shutdown(ctx)
}

// Mode returns the server mode.
func (s *Server) Mode() handlers.Mode {
	return s.config.Mode
}

// Registry returns the connection registry, or nil in relay mode.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}
