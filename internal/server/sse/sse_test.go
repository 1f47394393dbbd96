package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/livefeed/internal/server/registry"
	"github.com/agentstation/livefeed/pkg/events"
)

func newTestServer(t *testing.T, reg *registry.Registry) *httptest.Server {
	t.Helper()
	logger := zerolog.Nop()
	srv := httptest.NewServer(NewHandler(reg, &logger))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRegistry() *registry.Registry {
	logger := zerolog.Nop()
	return registry.New(&logger, registry.WithHeartbeatInterval(0))
}

func openStream(t *testing.T, ctx context.Context, url string) (*http.Response, *events.Decoder) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp, events.NewDecoder(resp.Body)
}

func TestHandler_StreamLifecycle(t *testing.T) {
	reg := newTestRegistry()
	srv := newTestServer(t, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resp, dec := openStream(t, ctx, srv.URL)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	first, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, events.Connected, first.Type)
	connected, ok := events.As[*events.ConnectedData](first)
	require.True(t, ok)
	assert.NotEmpty(t, connected.ConnectionID)

	require.Eventually(t, func() bool { return reg.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	delivered := reg.Broadcast(events.New(&events.CameraStatusData{CameraID: 7, Status: "online"}))
	assert.Equal(t, 1, delivered)

	env, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, events.CameraStatusChanged, env.Type)

	// Client abort must unregister the connection
	cancel()
	assert.Eventually(t, func() bool { return reg.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_RegistryShutdownEndsStream(t *testing.T) {
	reg := newTestRegistry()
	srv := newTestServer(t, reg)

	_, dec := openStream(t, context.Background(), srv.URL)
	_, err := dec.Next()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return reg.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, reg.Shutdown(context.Background()))

	_, err = dec.Next()
	assert.Error(t, err)
}

func TestHandler_ClosedRegistrySendsErrorEnvelope(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Shutdown(context.Background()))
	srv := newTestServer(t, reg)

	_, dec := openStream(t, context.Background(), srv.URL)

	first, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, events.Connected, first.Type)

	second, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, events.Error, second.Type)
}

// noFlushWriter hides the Flusher of the wrapped recorder.
type noFlushWriter struct {
	header http.Header
	status int
}

func (w *noFlushWriter) Header() http.Header         { return w.header }
func (w *noFlushWriter) Write(b []byte) (int, error) { return len(b), nil }
func (w *noFlushWriter) WriteHeader(code int)        { w.status = code }

func TestHandler_StreamingUnsupported(t *testing.T) {
	reg := newTestRegistry()
	logger := zerolog.Nop()
	h := NewHandler(reg, &logger)

	w := &noFlushWriter{header: http.Header{}}
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, 0, reg.Count())
}

// chanWriter reports every write on a channel.
type chanWriter struct {
	header http.Header
	writes chan string
}

func (w *chanWriter) Header() http.Header { return w.header }
func (w *chanWriter) Write(b []byte) (int, error) {
	w.writes <- string(b)
	return len(b), nil
}
func (w *chanWriter) WriteHeader(int) {}
func (w *chanWriter) Flush()          {}

func TestConn_PumpWritesQueuedFramesInOrder(t *testing.T) {
	w := &chanWriter{header: http.Header{}, writes: make(chan string, 4)}
	conn := NewConn("c1", w, 4)

	require.NoError(t, conn.Send([]byte(`{"n":1}`)))
	require.NoError(t, conn.Send([]byte(`{"n":2}`)))

	done := make(chan error, 1)
	go func() { done <- conn.Pump(context.Background()) }()

	assert.Equal(t, "data: {\"n\":1}\n\n", <-w.writes)
	assert.Equal(t, "data: {\"n\":2}\n\n", <-w.writes)

	require.NoError(t, conn.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Pump did not return after Close")
	}
}
