// Package client consumes a livefeed event stream.
//
// A Hub keeps one inbound stream open, decodes each message into an
// envelope and dispatches it to the matching subscribers of its Registry.
// When the stream fails the Hub reconnects with exponential backoff. While
// disconnected nothing is delivered; missed events are not replayed.
//
//	hub := client.New("http://localhost:8080/api/v1/events/stream")
//	unsubscribe := hub.Subscribe(
//	    client.And(client.OfType(events.CameraStatusChanged), client.ForCamera(7)),
//	    func(env events.Envelope) { ... },
//	)
//	defer unsubscribe()
//	err := hub.Run(ctx)
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/livefeed/pkg/errors"
	"github.com/agentstation/livefeed/pkg/events"
)

// State is the state of the hub's stream connection.
type State int

// Connection states. A hub moves from Connecting to Open, and from Open to
// Errored (then Connecting again) or Closed.
const (
	Connecting State = iota
	Open
	Errored
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Errored:
		return "errored"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Reconnect and liveness defaults.
const (
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultStaleAfter     = 60 * time.Second
)

var (
	errStale       = errors.New("no frames received before stale deadline")
	errStreamEnded = errors.New("stream ended by server")
)

// Hub maintains one inbound stream and fans envelopes out to subscribers.
type Hub struct {
	url        string
	id         string
	client     *http.Client
	logger     *zerolog.Logger
	subs       *Registry
	staleAfter time.Duration
	backoff    backoff.BackOff

	mu        sync.Mutex
	state     State
	observers map[uint64]func(State)
	nextObs   uint64
	running   atomic.Bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithHTTPClient sets the client used to open the stream. The client must
// not set an overall Timeout, since the response body is long-lived.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Hub) { h.client = c }
}

// WithLogger sets the hub logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// WithStaleAfter sets how long the stream may stay silent before it is
// treated as dead. Servers send heartbeats, so this should exceed the
// heartbeat interval. Zero disables the check.
func WithStaleAfter(d time.Duration) Option {
	return func(h *Hub) { h.staleAfter = d }
}

// WithBackOff replaces the reconnect policy.
func WithBackOff(b backoff.BackOff) Option {
	return func(h *Hub) { h.backoff = b }
}

// WithRegistry shares a subscription registry between hubs.
func WithRegistry(r *Registry) Option {
	return func(h *Hub) { h.subs = r }
}

// NewBackOff returns the default reconnect policy: 1s doubling to 30s with
// 50% jitter, never giving up.
func NewBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultInitialBackoff
	b.MaxInterval = DefaultMaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.Reset()
	return b
}

// New creates a hub for the stream at url. It does not connect until Run.
func New(url string, opts ...Option) *Hub {
	h := &Hub{
		url:        url,
		id:         uuid.NewString(),
		client:     &http.Client{},
		staleAfter: DefaultStaleAfter,
		state:      Closed,
		observers:  make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		nop := zerolog.Nop()
		h.logger = &nop
	}
	if h.subs == nil {
		h.subs = NewRegistry(h.logger)
	}
	if h.backoff == nil {
		h.backoff = NewBackOff()
	}
	return h
}

// Subscribe registers a subscriber. See Registry.Subscribe.
func (h *Hub) Subscribe(pred Predicate, fn Callback, opts ...SubscribeOption) Unsubscribe {
	return h.subs.Subscribe(pred, fn, opts...)
}

// Registry returns the hub's subscription registry.
func (h *Hub) Registry() *Registry {
	return h.subs
}

// State returns the current connection state.
func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// OnStateChange registers fn to be called on every state transition, on the
// goroutine running the hub. The returned func removes it.
func (h *Hub) OnStateChange(fn func(State)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextObs++
	id := h.nextObs
	h.observers[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.observers, id)
	}
}

func (h *Hub) setState(s State) {
	h.mu.Lock()
	if h.state == s {
		h.mu.Unlock()
		return
	}
	h.state = s
	observers := make([]func(State), 0, len(h.observers))
	for _, fn := range h.observers {
		observers = append(observers, fn)
	}
	h.mu.Unlock()

	h.logger.Debug().Str("hub", h.id).Stringer("state", s).Msg("Stream state changed")
	for _, fn := range observers {
		fn(s)
	}
}

// Run connects and keeps the stream open until ctx is done, reconnecting
// after every failure. It returns nil once ctx is done, or an error if the
// hub is already running or the backoff policy gives up.
func (h *Hub) Run(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return errors.New("hub is already running")
	}
	defer h.running.Store(false)
	defer h.setState(Closed)

	h.backoff.Reset()
	for {
		h.setState(Connecting)
		err := h.stream(ctx)
		if ctx.Err() != nil {
			return nil
		}

		h.setState(Errored)
		wait := h.backoff.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("giving up on %s: %w", h.url, err)
		}
		h.logger.Warn().
			Err(err).
			Str("hub", h.id).
			Dur("retry_in", wait).
			Msg("Event stream lost")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// stream runs one connection attempt. It always returns a non-nil error
// describing why the stream ended.
func (h *Hub) stream(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return errors.NewConnectError(h.url, 0, err)
	}
	req.Header.Set("Accept", events.ContentType)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := h.client.Do(req)
	if err != nil {
		return errors.NewConnectError(h.url, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.NewConnectError(h.url, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	var stale atomic.Bool
	var watchdog *time.Timer
	if h.staleAfter > 0 {
		watchdog = time.AfterFunc(h.staleAfter, func() {
			stale.Store(true)
			cancel()
		})
		defer watchdog.Stop()
	}

	h.backoff.Reset()
	h.setState(Open)

	dec := events.NewDecoder(resp.Body)
	for {
		env, err := dec.Next()
		if watchdog != nil && (err == nil || errors.IsDecodeError(err)) {
			watchdog.Reset(h.staleAfter)
		}
		switch {
		case err == nil:
			h.subs.Dispatch(env)
		case errors.IsDecodeError(err):
			h.logger.Warn().Err(err).Str("hub", h.id).Msg("Dropping undecodable message")
		case stale.Load():
			return errStale
		case err == io.EOF:
			return errStreamEnded
		default:
			return err
		}
	}
}
