package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/agentstation/livefeed/pkg/errors"
	"github.com/agentstation/livefeed/pkg/events"
)

// Registry owns the set of open connections. All mutation goes through
// Register, Unregister and Shutdown.
type Registry struct {
	mu      sync.Mutex
	entries []*entry
	closed  bool

	heartbeatInterval time.Duration
	meterProvider     metric.MeterProvider
	metrics           *metrics
	logger            *zerolog.Logger
}

// entry tracks one registered connection.
type entry struct {
	conn      Connection
	createdAt time.Time
	heartbeat *Heartbeat

	mu        sync.Mutex
	lastWrite time.Time
	removed   bool
}

// send hands payload to the connection unless the entry has already left
// the live set, in which case it reports false and writes nothing.
func (e *entry) send(payload []byte, now time.Time) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false, nil
	}
	if err := e.conn.Send(payload); err != nil {
		return true, err
	}
	e.lastWrite = now
	return true, nil
}

func (e *entry) markRemoved() {
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
}

// Info describes a registered connection.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	LastWrite time.Time `json:"last_write,omitempty"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithHeartbeatInterval sets the keep-alive period. Zero disables heartbeats.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(r *Registry) {
		r.heartbeatInterval = d
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider used for
// registry metrics. The global provider is used by default.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Registry) {
		r.meterProvider = mp
	}
}

// New creates an empty registry.
func New(logger *zerolog.Logger, opts ...Option) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	r := &Registry{
		heartbeatInterval: DefaultHeartbeatInterval,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.metrics = newMetrics(r.meterProvider, r, logger)
	return r
}

// Register adds conn to the live set and starts its heartbeat. Callers
// must not register the same connection twice.
func (r *Registry) Register(conn Connection) error {
	e := &entry{conn: conn, createdAt: time.Now()}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.ErrClosed
	}
	r.entries = append(r.entries, e)
	total := len(r.entries)
	if r.heartbeatInterval > 0 {
		e.heartbeat = StartHeartbeat(r.heartbeatInterval,
			func(now time.Time) error { return r.beat(e, now) },
			func(err error) { r.reap(conn, err, "heartbeat") },
		)
	}
	r.mu.Unlock()

	r.logger.Info().
		Str("connection_id", conn.ID()).
		Int("total_connections", total).
		Msg("Connection registered")
	return nil
}

// Unregister removes conn, cancels its heartbeat and closes it. Calling it
// for a connection that is not registered is a no-op.
func (r *Registry) Unregister(conn Connection) {
	e, total := r.remove(conn)
	if e == nil {
		return
	}
	r.release(e)

	r.logger.Info().
		Str("connection_id", conn.ID()).
		Int("total_connections", total).
		Msg("Connection unregistered")
}

// Broadcast serializes env once and hands it to every registered
// connection in registration order. Connections that fail are reaped and
// do not affect delivery to the rest. It returns the number of
// connections the envelope was handed to.
func (r *Registry) Broadcast(env events.Envelope) int {
	payload, err := json.Marshal(env)
	if err != nil {
		r.logger.Error().Err(err).Str("event_type", env.Type.String()).Msg("Failed to marshal envelope")
		return 0
	}

	// Iterate a snapshot; reaping mutates the live set
	r.mu.Lock()
	snapshot := make([]*entry, len(r.entries))
	copy(snapshot, r.entries)
	r.mu.Unlock()

	delivered := 0
	now := time.Now()
	for _, e := range snapshot {
		sent, err := e.send(payload, now)
		if err != nil {
			r.reap(e.conn, err, "broadcast")
			continue
		}
		if sent {
			delivered++
		}
	}

	r.metrics.broadcast(env.Type.String(), delivered)
	r.logger.Debug().
		Str("event_type", env.Type.String()).
		Int("connections", len(snapshot)).
		Int("delivered", delivered).
		Msg("Envelope broadcast")
	return delivered
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Closed reports whether Shutdown has been called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Connections describes the registered connections in registration order.
func (r *Registry) Connections() []Info {
	r.mu.Lock()
	snapshot := make([]*entry, len(r.entries))
	copy(snapshot, r.entries)
	r.mu.Unlock()

	infos := make([]Info, 0, len(snapshot))
	for _, e := range snapshot {
		e.mu.Lock()
		infos = append(infos, Info{ID: e.conn.ID(), CreatedAt: e.createdAt, LastWrite: e.lastWrite})
		e.mu.Unlock()
	}
	return infos
}

// Shutdown closes every connection, cancels every heartbeat and rejects
// later registrations.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = nil
	for _, e := range entries {
		e.markRemoved()
	}
	r.mu.Unlock()

	for _, e := range entries {
		r.release(e)
	}

	for _, e := range entries {
		if e.heartbeat == nil {
			continue
		}
		select {
		case <-e.heartbeat.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.logger.Info().Int("closed_connections", len(entries)).Msg("Connection registry shut down")
	return nil
}

// beat writes one heartbeat envelope to e.
func (r *Registry) beat(e *entry, now time.Time) error {
	payload, err := json.Marshal(events.NewAt(&events.HeartbeatData{Timestamp: now.UTC()}, now))
	if err != nil {
		return err
	}
	_, err = e.send(payload, now)
	return err
}

// reap removes a connection after a failed write.
func (r *Registry) reap(conn Connection, err error, source string) {
	e, total := r.remove(conn)
	if e == nil {
		return
	}
	r.release(e)
	r.metrics.reap(source)

	r.logger.Warn().
		Err(err).
		Str("connection_id", conn.ID()).
		Str("source", source).
		Int("total_connections", total).
		Msg("Write failed, connection removed")
}

// remove deletes conn from the live set and returns its entry, or nil if
// it was not registered. Once remove returns, no broadcast or heartbeat
// writes to conn again.
func (r *Registry) remove(conn Connection) (*entry, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.conn == conn {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			e.markRemoved()
			return e, len(r.entries)
		}
	}
	return nil, len(r.entries)
}

func (r *Registry) release(e *entry) {
	if e.heartbeat != nil {
		e.heartbeat.Stop()
	}
	if err := e.conn.Close(); err != nil {
		r.logger.Debug().Err(err).Str("connection_id", e.conn.ID()).Msg("Connection close failed")
	}
}
