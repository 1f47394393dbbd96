package server

import (
	"fmt"
	"net/url"
	"time"

	"github.com/agentstation/livefeed/internal/server/cache"
	"github.com/agentstation/livefeed/internal/server/handlers"
	"github.com/agentstation/livefeed/internal/server/registry"
	"github.com/agentstation/livefeed/pkg/errors"
)

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string
	Port int

	// API settings
	PathPrefix string

	// Mode selects the broadcaster (registry) or the per-request relay.
	Mode        handlers.Mode
	UpstreamURL string

	// HeartbeatInterval must stay below IdleTimeout so that an otherwise
	// silent stream is never closed as idle.
	HeartbeatInterval time.Duration

	// CORS settings
	CORSEnabled bool
	CORSOrigins []string

	// Submission settings
	RateLimit int // Submissions per minute per IP (0 to disable)
	DedupeTTL time.Duration

	// HTTP timeouts. Stream handlers clear the write deadline for their
	// own responses.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "localhost",
		Port:              8080,
		PathPrefix:        "/api/v1",
		Mode:              handlers.ModeBroadcast,
		HeartbeatInterval: registry.DefaultHeartbeatInterval,
		CORSEnabled:       false,
		CORSOrigins:       []string{},
		RateLimit:         600,
		DedupeTTL:         cache.DefaultTTL,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.NewConfigError("server", fmt.Sprintf("port out of range: %d", c.Port), nil)
	}

	switch c.Mode {
	case handlers.ModeBroadcast:
		if c.HeartbeatInterval <= 0 {
			return errors.NewConfigError("server", "heartbeat interval must be positive", nil)
		}
		if c.IdleTimeout > 0 && c.HeartbeatInterval >= c.IdleTimeout {
			return errors.NewConfigError("server",
				fmt.Sprintf("heartbeat interval %s must be shorter than idle timeout %s", c.HeartbeatInterval, c.IdleTimeout), nil)
		}
	case handlers.ModeRelay:
		if c.UpstreamURL == "" {
			return errors.NewConfigError("server", "relay mode requires an upstream URL", nil)
		}
		u, err := url.Parse(c.UpstreamURL)
		if err != nil {
			return errors.NewConfigError("server", "invalid upstream URL", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.NewConfigError("server", fmt.Sprintf("unsupported upstream scheme %q", u.Scheme), nil)
		}
	default:
		return errors.NewConfigError("server", fmt.Sprintf("unknown mode %q", c.Mode), nil)
	}

	if c.RateLimit < 0 {
		return errors.NewConfigError("server", "rate limit must not be negative", nil)
	}
	return nil
}
