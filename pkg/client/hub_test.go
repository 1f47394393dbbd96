package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/livefeed/pkg/events"
)

// scriptedServer serves attempt i with handlers[i], repeating the last one.
type scriptedServer struct {
	*httptest.Server
	attempts atomic.Int32
}

func newScriptedServer(t *testing.T, handlers ...http.HandlerFunc) *scriptedServer {
	t.Helper()
	s := &scriptedServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(s.attempts.Add(1)) - 1
		if i >= len(handlers) {
			i = len(handlers) - 1
		}
		handlers[i](w, r)
	}))
	return s
}

// streamThenHold writes envs and keeps the stream open until the client leaves.
func streamThenHold(envs ...events.Envelope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", events.ContentType)
		for _, env := range envs {
			_ = events.Write(w, env)
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}
}

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(code), code)
	}
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) snapshot() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

type countingBackOff struct {
	backoff.BackOff
	resets atomic.Int32
}

func (c *countingBackOff) Reset() {
	c.resets.Add(1)
	c.BackOff.Reset()
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}

// runHub starts h and returns a func that stops it and returns Run's error.
func runHub(t *testing.T, h *Hub) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	var once sync.Once
	var runErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case runErr = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("hub did not stop")
			}
		})
		return runErr
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func TestHub_DispatchesMatchingEnvelopes(t *testing.T) {
	srv := newScriptedServer(t, streamThenHold(
		events.NewAt(&events.ConnectedData{Message: "hello"}, testTime),
		cameraStatus(7),
		cameraStatus(9),
	))
	defer srv.Close()

	h := New(srv.URL, WithBackOff(fastBackOff()))

	matched := make(chan events.Envelope, 4)
	h.Subscribe(And(OfType(events.CameraStatusChanged), ForCamera(7)), func(env events.Envelope) {
		matched <- env
	})
	var seen atomic.Int32
	h.Subscribe(nil, func(events.Envelope) { seen.Add(1) })

	stop := runHub(t, h)

	require.Eventually(t, func() bool { return seen.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Open, h.State())
	require.Len(t, matched, 1)
	env := <-matched
	camera, _ := events.CameraOf(env)
	assert.Equal(t, 7, camera)

	assert.NoError(t, stop())
	assert.Equal(t, Closed, h.State())
}

func TestHub_ReconnectsAfterConnectFailure(t *testing.T) {
	srv := newScriptedServer(t,
		status(http.StatusServiceUnavailable),
		streamThenHold(cameraStatus(3)),
	)
	defer srv.Close()

	h := New(srv.URL, WithBackOff(fastBackOff()))
	var log stateLog
	h.OnStateChange(log.record)

	received := make(chan struct{}, 1)
	h.Subscribe(OfType(events.CameraStatusChanged), func(events.Envelope) { received <- struct{}{} })

	stop := runHub(t, h)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope after reconnect")
	}
	require.NoError(t, stop())

	assert.Equal(t, []State{Connecting, Errored, Connecting, Open, Closed}, log.snapshot())
	assert.Equal(t, int32(2), srv.attempts.Load())
}

func TestHub_ReconnectsWhenServerEndsStream(t *testing.T) {
	srv := newScriptedServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", events.ContentType)
			_ = events.Write(w, cameraStatus(1))
		},
		streamThenHold(),
	)
	defer srv.Close()

	h := New(srv.URL, WithBackOff(fastBackOff()))
	runHub(t, h)

	require.Eventually(t, func() bool { return srv.attempts.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.State() == Open }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_DropsUndecodableMessages(t *testing.T) {
	srv := newScriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", events.ContentType)
		_, _ = io.WriteString(w, "data: {not json\n\n")
		_ = events.Write(w, cameraStatus(5))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	defer srv.Close()

	h := New(srv.URL, WithBackOff(fastBackOff()))
	received := make(chan events.Envelope, 2)
	h.Subscribe(nil, func(env events.Envelope) { received <- env })

	runHub(t, h)

	select {
	case env := <-received:
		assert.Equal(t, events.CameraStatusChanged, env.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("valid envelope after malformed one was not delivered")
	}
	assert.Equal(t, int32(1), srv.attempts.Load(), "a decode failure must not drop the connection")
}

func TestHub_StaleLinkReconnects(t *testing.T) {
	srv := newScriptedServer(t, streamThenHold(events.NewAt(&events.ConnectedData{Message: "hello"}, testTime)))
	defer srv.Close()

	h := New(srv.URL, WithBackOff(fastBackOff()), WithStaleAfter(50*time.Millisecond))
	runHub(t, h)

	require.Eventually(t, func() bool { return srv.attempts.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_ResetsBackOffOnceOpen(t *testing.T) {
	srv := newScriptedServer(t, status(http.StatusBadGateway), streamThenHold())
	defer srv.Close()

	b := &countingBackOff{BackOff: fastBackOff()}
	h := New(srv.URL, WithBackOff(b))
	runHub(t, h)

	require.Eventually(t, func() bool { return h.State() == Open }, 2*time.Second, 5*time.Millisecond)
	// Once when Run starts and once when the second attempt opened.
	assert.Equal(t, int32(2), b.resets.Load())
}

func TestHub_GivesUpWhenBackOffStops(t *testing.T) {
	srv := newScriptedServer(t, status(http.StatusInternalServerError))
	defer srv.Close()

	h := New(srv.URL, WithBackOff(&backoff.StopBackOff{}))
	err := h.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up")
	assert.Equal(t, Closed, h.State())
}

func TestHub_RunTwice(t *testing.T) {
	srv := newScriptedServer(t, streamThenHold())
	defer srv.Close()

	h := New(srv.URL, WithBackOff(fastBackOff()))
	runHub(t, h)
	require.Eventually(t, func() bool { return h.State() == Open }, 2*time.Second, 5*time.Millisecond)

	assert.Error(t, h.Run(context.Background()))
}

func TestNewBackOff(t *testing.T) {
	b := NewBackOff()
	assert.Equal(t, time.Second, b.InitialInterval)
	assert.Equal(t, 30*time.Second, b.MaxInterval)

	first := b.NextBackOff()
	assert.GreaterOrEqual(t, first, 500*time.Millisecond)
	assert.LessOrEqual(t, first, 1500*time.Millisecond)

	for range 20 {
		assert.LessOrEqual(t, b.NextBackOff(), 45*time.Second)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "errored", Errored.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "State(9)", State(9).String())
}
