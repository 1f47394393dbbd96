package errors_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	pkgerrors "github.com/agentstation/livefeed/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{
			Field:   "type",
			Message: "cannot be empty",
		}
		assert.Equal(t, "validation failed for field type: cannot be empty", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrInvalidInput))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "invalid envelope"}
		assert.Equal(t, "validation failed: invalid envelope", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})
}

func TestConnectError(t *testing.T) {
	t.Run("status code", func(t *testing.T) {
		err := pkgerrors.NewConnectError("http://origin/events", 502, nil)
		assert.Equal(t, "connect to http://origin/events failed with status 502", err.Error())
		assert.True(t, pkgerrors.IsConnectError(err))
	})

	t.Run("wrapped cause", func(t *testing.T) {
		err := pkgerrors.NewConnectError("http://origin/events", 0, context.DeadlineExceeded)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.True(t, pkgerrors.IsConnectError(fmt.Errorf("relay: %w", err)))
	})
}

func TestWriteError(t *testing.T) {
	cause := errors.New("broken pipe")
	err := pkgerrors.NewWriteError("c1", cause)
	assert.Equal(t, "write to connection c1 failed: broken pipe", err.Error())
	assert.True(t, pkgerrors.IsWriteError(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, pkgerrors.IsDecodeError(err))
}

func TestDecodeError(t *testing.T) {
	long := strings.Repeat("x", 100)
	err := pkgerrors.NewDecodeError(long, errors.New("unexpected end of JSON input"))
	assert.True(t, pkgerrors.IsDecodeError(err))
	assert.Contains(t, err.Error(), "...")
	assert.NotContains(t, err.Error(), long)
}

func TestConfigError(t *testing.T) {
	err := pkgerrors.NewConfigError("heartbeat", "interval must be positive", nil)
	assert.Equal(t, "configuration error in heartbeat: interval must be positive", err.Error())
	assert.True(t, pkgerrors.IsValidationError(err))
}

func TestIsClosed(t *testing.T) {
	assert.True(t, pkgerrors.IsClosed(fmt.Errorf("register: %w", pkgerrors.ErrClosed)))
	assert.False(t, pkgerrors.IsClosed(pkgerrors.ErrWrite))
}
