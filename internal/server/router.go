package server

import (
	"net/http"

	"github.com/agentstation/livefeed/internal/server/handlers"
	"github.com/agentstation/livefeed/internal/server/middleware"
	"github.com/agentstation/livefeed/internal/server/response"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	s.registerRoutes(mux, s.handlers)

	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix

	// Favicon handler (return 204 No Content to avoid 404 logs)
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc(prefix+"/health", h.HandleHealth)
	mux.HandleFunc(prefix+"/ready", h.HandleReady)

	mux.HandleFunc(prefix+"/events/stream", method(http.MethodGet, h.HandleStream))

	if h.Mode() == handlers.ModeRelay {
		return
	}

	mux.HandleFunc(prefix+"/events/ws", method(http.MethodGet, h.HandleWebSocket))
	mux.HandleFunc(prefix+"/connections", method(http.MethodGet, h.HandleConnections))

	var publish http.Handler = http.HandlerFunc(h.HandlePublish)
	if s.limiter != nil {
		publish = middleware.RateLimit(s.limiter)(publish)
	}
	mux.Handle(prefix+"/events", method(http.MethodPost, publish.ServeHTTP))
}

// method rejects requests with any other method.
func method(allowed string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != allowed {
			w.Header().Set("Allow", allowed)
			response.MethodNotAllowed(w, r.Method)
			return
		}
		next(w, r)
	}
}

// applyMiddleware wraps handler with middleware chain.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig()
		if len(cfg.CORSOrigins) > 0 {
			corsConfig.AllowedOrigins = cfg.CORSOrigins
			corsConfig.AllowAll = false
		} else {
			corsConfig.AllowAll = true
		}
		handler = middleware.CORS(corsConfig)(handler)
	}

	// Logging and recovery (always enabled)
	return middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.Logger(s.logger),
	)(handler)
}
