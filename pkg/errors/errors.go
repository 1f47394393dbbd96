// Package errors provides custom error types for the livefeed system.
// These errors let callers classify failures of the event distribution
// layer (connect, write, decode, validation) without string matching.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the livefeed system
var (
	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrConnect indicates that a stream could not be opened
	ErrConnect = errors.New("connect failed")

	// ErrWrite indicates that a write to a connection failed
	ErrWrite = errors.New("write failed")

	// ErrDecode indicates that a wire message could not be decoded
	ErrDecode = errors.New("decode failed")

	// ErrClosed indicates use of a connection or registry after close
	ErrClosed = errors.New("closed")

	// ErrStreamingUnsupported indicates the response writer cannot flush
	ErrStreamingUnsupported = errors.New("streaming not supported")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConnectError represents a failure to open a stream, either the upstream
// origin of a relay or the inbound stream of a client hub.
type ConnectError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *ConnectError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connect to %s failed with status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("connect to %s failed: %v", e.Endpoint, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConnectError) Is(target error) bool {
	return target == ErrConnect
}

// NewConnectError creates a new ConnectError
func NewConnectError(endpoint string, statusCode int, err error) *ConnectError {
	return &ConnectError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Err:        err,
	}
}

// WriteError represents a failed write to one connection
type WriteError struct {
	ConnectionID string
	Err          error
}

// Error implements the error interface
func (e *WriteError) Error() string {
	return fmt.Sprintf("write to connection %s failed: %v", e.ConnectionID, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *WriteError) Is(target error) bool {
	return target == ErrWrite
}

// NewWriteError creates a new WriteError
func NewWriteError(connectionID string, err error) *WriteError {
	return &WriteError{ConnectionID: connectionID, Err: err}
}

// DecodeError represents a malformed wire message
type DecodeError struct {
	Data string
	Err  error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message %q: %v", truncate(e.Data, 64), e.Err)
}

// Unwrap implements errors.Unwrap
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// NewDecodeError creates a new DecodeError
func NewDecodeError(data string, err error) *DecodeError {
	return &DecodeError{Data: data, Err: err}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// Helper functions for error checking

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConnectError checks if an error is a connect failure
func IsConnectError(err error) bool {
	return errors.Is(err, ErrConnect)
}

// IsWriteError checks if an error is a write failure
func IsWriteError(err error) bool {
	return errors.Is(err, ErrWrite)
}

// IsDecodeError checks if an error is a decode failure
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrDecode)
}

// IsClosed checks if an error reports use after close
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
