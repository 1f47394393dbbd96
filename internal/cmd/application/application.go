// Package application provides the application interface for livefeed
// commands.
//
// The Application interface is the contract between the application layer
// and command implementations. Commands accept it rather than the concrete
// App type so they can be tested with Mock.
//
// Usage in Commands:
//
//	func NewCommand(app application.Application) *cobra.Command {
//	    return &cobra.Command{
//	        RunE: func(cmd *cobra.Command, args []string) error {
//	            app.Logger().Info().Msg("running")
//	            return nil
//	        },
//	    }
//	}
package application

import (
	"github.com/rs/zerolog"
)

// Application provides the application interface that commands need.
// The App struct in cmd/livefeed/app implements it.
//
// Thread Safety: All methods must be safe for concurrent access.
type Application interface {
	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (json, yaml).
	OutputFormat() string

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}

// Mock is an Application for tests. Nil funcs return zero values, except
// Logger which returns a no-op logger.
type Mock struct {
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	VersionValue     string
}

// Logger implements Application.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat implements Application.
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "json"
}

// Version implements Application.
func (m *Mock) Version() string { return m.VersionValue }

// Commit implements Application.
func (m *Mock) Commit() string { return "" }

// Date implements Application.
func (m *Mock) Date() string { return "" }

// BuiltBy implements Application.
func (m *Mock) BuiltBy() string { return "" }
