// Package registry implements the in-process connection registry that fans
// every emitted envelope out to all open dashboard streams.
//
// The registry is transport-agnostic: SSE and WebSocket streams both
// register a Connection. Writes are handed to a per-connection Outbox so
// Broadcast never waits on the network; a connection whose Outbox rejects
// a write is reaped immediately.
package registry

import (
	"errors"
	"sync"

	pkgerrors "github.com/agentstation/livefeed/pkg/errors"
)

// DefaultOutboxSize is the number of frames a connection may have queued
// before further writes count as a write failure.
const DefaultOutboxSize = 256

var errOutboxFull = errors.New("outbox full")

// Connection is one open output stream to a browser tab.
type Connection interface {
	// ID returns a unique identifier for the connection.
	ID() string

	// Send hands a serialized envelope to the connection. It must not block
	// on the network or call back into the registry. A non-nil error means
	// the connection is unusable.
	Send(payload []byte) error

	// Close releases the connection. It must be safe to call more than once.
	Close() error
}

// Outbox is a bounded per-connection write queue. Transports embed it and
// drain Queue from the goroutine that owns the underlying writer, which
// keeps writes to a single stream strictly ordered.
type Outbox struct {
	id    string
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

// NewOutbox creates an outbox holding up to size frames.
func NewOutbox(id string, size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		id:    id,
		queue: make(chan []byte, size),
		done:  make(chan struct{}),
	}
}

// ID implements Connection.
func (o *Outbox) ID() string {
	return o.id
}

// Send implements Connection.
func (o *Outbox) Send(payload []byte) error {
	select {
	case <-o.done:
		return pkgerrors.NewWriteError(o.id, pkgerrors.ErrClosed)
	default:
	}

	select {
	case o.queue <- payload:
		return nil
	case <-o.done:
		return pkgerrors.NewWriteError(o.id, pkgerrors.ErrClosed)
	default:
		return pkgerrors.NewWriteError(o.id, errOutboxFull)
	}
}

// Close implements Connection. The queue channel is never closed so a
// racing Send cannot panic; readers select on Done instead.
func (o *Outbox) Close() error {
	o.once.Do(func() { close(o.done) })
	return nil
}

// Queue returns the frames waiting to be written.
func (o *Outbox) Queue() <-chan []byte {
	return o.queue
}

// Done is closed once the outbox is closed.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}
