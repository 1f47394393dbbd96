// Package emoji provides symbol constants for CLI output.
// These symbols create a consistent visual language across all command-line commands.
package emoji

// Symbol constants for CLI output.
const (
	// Success represents successful completion of an operation.
	// Used for: accepted submissions, graceful shutdown.
	Success = "✓"

	// Error represents failures.
	// Used for: commands that exit with an error.
	Error = "✗"

	// Stop represents shutdowns.
	// Used for: graceful shutdowns, stop signals.
	Stop = "✗"

	// Warning represents non-critical issues.
	// Used for: duplicate submissions, reconnect notices.
	Warning = "!"

	// Listening marks a server that is accepting connections.
	Listening = "🚀"
)
