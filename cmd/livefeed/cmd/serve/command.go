// Package serve provides the server command for the livefeed CLI.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/livefeed/internal/cmd/application"
	"github.com/agentstation/livefeed/internal/cmd/emoji"
	"github.com/agentstation/livefeed/internal/server"
	"github.com/agentstation/livefeed/internal/server/handlers"
)

// shutdownTimeout bounds how long a graceful shutdown may take.
const shutdownTimeout = 30 * time.Second

// NewCommand creates the serve command. settings supplies the configured
// values; flags given on the command line override them.
func NewCommand(app application.Application, settings func() server.Config) *cobra.Command {
	d := server.DefaultConfig()

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Start the event distribution server",
		Long: `Start the livefeed server.

Broadcast mode (default):
  - Dashboards connect over SSE ({prefix}/events/stream) or
    WebSocket ({prefix}/events/ws)
  - Backend producers POST envelopes to {prefix}/events
  - Every event is written to every open connection; failed connections
    are dropped
  - Each connection gets a heartbeat so idle streams stay open
  - Submissions carrying an Idempotency-Key are delivered once

Relay mode (--mode relay):
  - Each SSE client gets its own upstream request to --upstream
  - Upstream bytes are forwarded unchanged and flushed per chunk
  - Upstream failures are reported to the client as an error event`,
		Example: `  # Broadcast on the default port
  livefeed serve

  # Relay an upstream stream
  livefeed serve --mode relay --upstream http://backend:8000/api/events

  # Allow a dashboard origin and heartbeat every 15 seconds
  livefeed serve --cors-origins https://dash.example.com --heartbeat 15s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, app, settings())
		},
	}

	// Server configuration flags
	cmd.Flags().Int("port", d.Port, "Server port")
	cmd.Flags().String("host", d.Host, "Bind address")
	cmd.Flags().String("prefix", d.PathPrefix, "API path prefix")
	cmd.Flags().String("mode", string(d.Mode), "Server mode: broadcast or relay")
	cmd.Flags().String("upstream", "", "Upstream event stream URL (relay mode)")
	cmd.Flags().Duration("heartbeat", d.HeartbeatInterval, "Heartbeat interval per connection (broadcast mode)")

	// CORS flags
	cmd.Flags().Bool("cors", false, "Enable CORS for all origins")
	cmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS and WebSocket origins (comma-separated)")

	// Submission flags
	cmd.Flags().Int("rate-limit", d.RateLimit, "Event submissions per minute per IP (0 to disable)")
	cmd.Flags().Duration("dedupe-ttl", d.DedupeTTL, "How long Idempotency-Key values are remembered")

	// Timeout flags
	cmd.Flags().Duration("read-timeout", d.ReadTimeout, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", d.WriteTimeout, "HTTP write timeout for non-streaming responses")
	cmd.Flags().Duration("idle-timeout", d.IdleTimeout, "HTTP idle timeout")

	return cmd
}

// runServer starts the server and blocks until the command context ends.
func runServer(cmd *cobra.Command, app application.Application, base server.Config) error {
	cfg := parseConfig(cmd, base)
	logger := app.Logger()

	logger.Info().
		Int("port", cfg.Port).
		Str("host", cfg.Host).
		Str("prefix", cfg.PathPrefix).
		Str("mode", string(cfg.Mode)).
		Str("upstream", cfg.UpstreamURL).
		Dur("heartbeat_interval", cfg.HeartbeatInterval).
		Bool("cors", cfg.CORSEnabled).
		Int("rate_limit", cfg.RateLimit).
		Msg("Starting livefeed server")

	srv, err := server.New(app, cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logger.Debug().
		Str("addr", cfg.Addr()).
		Dur("read_timeout", cfg.ReadTimeout).
		Dur("write_timeout", cfg.WriteTimeout).
		Dur("idle_timeout", cfg.IdleTimeout).
		Msg("Creating HTTP server")

	// Pass cmd.Context() which has signal handling from main.go
	return startWithGracefulShutdown(cmd.Context(), srv.HTTPServer(), srv, logger)
}

// parseConfig applies the flags that were set on the command line over base.
// HTTP_PORT and HTTP_HOST override base but not explicit flags.
func parseConfig(cmd *cobra.Command, base server.Config) server.Config {
	cfg := base

	if envPort := os.Getenv("HTTP_PORT"); envPort != "" {
		if p, err := parsePort(envPort); err == nil {
			cfg.Port = p
		}
	}
	if envHost := os.Getenv("HTTP_HOST"); envHost != "" {
		cfg.Host = envHost
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = mustGetInt(cmd, "port")
	}
	if flags.Changed("host") {
		cfg.Host = mustGetString(cmd, "host")
	}
	if flags.Changed("prefix") {
		cfg.PathPrefix = mustGetString(cmd, "prefix")
	}
	if flags.Changed("mode") {
		cfg.Mode = handlers.Mode(mustGetString(cmd, "mode"))
	}
	if flags.Changed("upstream") {
		cfg.UpstreamURL = mustGetString(cmd, "upstream")
	}
	if flags.Changed("heartbeat") {
		cfg.HeartbeatInterval = mustGetDuration(cmd, "heartbeat")
	}
	if flags.Changed("cors") {
		cfg.CORSEnabled = mustGetBool(cmd, "cors")
	}
	if flags.Changed("cors-origins") {
		cfg.CORSOrigins = mustGetStringSlice(cmd, "cors-origins")
		cfg.CORSEnabled = true
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit = mustGetInt(cmd, "rate-limit")
	}
	if flags.Changed("dedupe-ttl") {
		cfg.DedupeTTL = mustGetDuration(cmd, "dedupe-ttl")
	}
	if flags.Changed("read-timeout") {
		cfg.ReadTimeout = mustGetDuration(cmd, "read-timeout")
	}
	if flags.Changed("write-timeout") {
		cfg.WriteTimeout = mustGetDuration(cmd, "write-timeout")
	}
	if flags.Changed("idle-timeout") {
		cfg.IdleTimeout = mustGetDuration(cmd, "idle-timeout")
	}

	return cfg
}

// parsePort safely parses a port string to integer.
func parsePort(portStr string) (int, error) {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return port, nil
}

// startWithGracefulShutdown starts the HTTP server with graceful shutdown.
// The context is used to detect shutdown signals - when cancelled, server will shutdown gracefully.
func startWithGracefulShutdown(ctx context.Context, httpServer *http.Server, srv *server.Server, logger *zerolog.Logger) error {
	serverErr := make(chan error, 1)

	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Str("mode", string(srv.Mode())).
			Msg("HTTP server listening")

		fmt.Printf("%s livefeed listening on %s (%s)\n", emoji.Listening, httpServer.Addr, srv.Mode())
		fmt.Println("   Press Ctrl+C to stop")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		_ = srv.Shutdown(context.Background())
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received via context")

		fmt.Printf("\n%s Shutting down livefeed...\n", emoji.Stop)

		// The parent context is already cancelled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Close streams first; http.Server.Shutdown waits for active
		// connections and a stream never goes idle on its own.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Closing streams had issues")
		}

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("Server stopped gracefully")
		fmt.Printf("%s livefeed stopped gracefully\n", emoji.Success)
		return nil
	}
}

// mustGetInt retrieves an integer flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetBool retrieves a boolean flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetStringSlice retrieves a string slice flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	val, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetDuration retrieves a duration flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	val, err := cmd.Flags().GetDuration(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}
