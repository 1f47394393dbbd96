package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// TestChain_ExecutionOrder verifies first added is outermost middleware.
func TestChain_ExecutionOrder(t *testing.T) {
	var executionLog []string

	wrap := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				executionLog = append(executionLog, "start-"+name)
				next.ServeHTTP(w, r)
				executionLog = append(executionLog, "end-"+name)
			})
		}
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		executionLog = append(executionLog, "handler")
	})

	Chain(wrap("1"), wrap("2"))(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	expected := []string{"start-1", "start-2", "handler", "end-2", "end-1"}
	if strings.Join(executionLog, ",") != strings.Join(expected, ",") {
		t.Errorf("expected %v, got %v", expected, executionLog)
	}
}

// TestChain_Empty verifies an empty chain calls the handler directly.
func TestChain_Empty(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	Chain()(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !called {
		t.Error("handler not called")
	}
}

// TestLogger tests request logging middleware.
func TestLogger(t *testing.T) {
	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
	}{
		{"stream request", "GET", "/api/v1/events/stream", http.StatusOK},
		{"publish request", "POST", "/api/v1/events", http.StatusAccepted},
		{"bad submission", "POST", "/api/v1/events", http.StatusBadRequest},
		{"unknown path", "GET", "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf).With().Timestamp().Logger()

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.handlerStatus)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.RemoteAddr = "192.168.1.1:12345"
			w := httptest.NewRecorder()

			Logger(&logger)(handler).ServeHTTP(w, req)

			if w.Code != tt.handlerStatus {
				t.Errorf("expected status %d, got %d", tt.handlerStatus, w.Code)
			}

			var logEntry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
				t.Fatalf("log is not valid JSON: %v", err)
			}
			if logEntry["method"] != tt.method {
				t.Errorf("log method: expected %s, got %v", tt.method, logEntry["method"])
			}
			if logEntry["path"] != tt.path {
				t.Errorf("log path: expected %s, got %v", tt.path, logEntry["path"])
			}
			if status, ok := logEntry["status"].(float64); !ok || int(status) != tt.handlerStatus {
				t.Errorf("log status: expected %d, got %v", tt.handlerStatus, logEntry["status"])
			}
			if logEntry["remote_addr"] != "192.168.1.1:12345" {
				t.Errorf("log missing remote_addr: %s", buf.String())
			}
			if _, ok := logEntry["duration_ms"]; !ok {
				t.Error("log missing duration_ms field")
			}
		})
	}
}

// TestLogger_ContextLogger verifies handlers can log through the request context.
func TestLogger_ContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside handler")
	})

	Logger(&logger)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/ready", nil))

	first := strings.SplitN(buf.String(), "\n", 2)[0]
	if !strings.Contains(first, "inside handler") || !strings.Contains(first, `"path":"/api/v1/ready"`) {
		t.Errorf("context logger missing request fields: %s", first)
	}
}

// TestLogger_KeepsFlusher verifies stream handlers can flush through the wrapper.
func TestLogger_KeepsFlusher(t *testing.T) {
	logger := zerolog.Nop()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: {}\n\n"))
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("flush through middleware failed: %v", err)
		}
	})

	w := httptest.NewRecorder()
	Logger(&logger)(handler).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if !w.Flushed {
		t.Error("expected recorder to be flushed")
	}
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

// TestLogger_KeepsHijacker verifies WebSocket upgrades can hijack through the wrapper.
func TestLogger_KeepsHijacker(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("wrapper does not implement http.Hijacker")
		}
		_, _, _ = hj.Hijack()
	})

	Logger(&logger)(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/events/ws", nil))

	if !rec.hijacked {
		t.Error("underlying writer not hijacked")
	}
	if !strings.Contains(buf.String(), `"status":101`) {
		t.Errorf("expected status 101 in log: %s", buf.String())
	}
}

// TestRecovery tests panic recovery middleware.
func TestRecovery(t *testing.T) {
	tests := []struct {
		name         string
		panicValue   any
		expectStatus int
	}{
		{"no panic", nil, http.StatusOK},
		{"panic with string", "something went wrong", http.StatusInternalServerError},
		{"panic with error", json.ErrUnsupportedValue, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.panicValue != nil {
					panic(tt.panicValue)
				}
				w.WriteHeader(http.StatusOK)
			})

			w := httptest.NewRecorder()
			Recovery(&logger)(handler).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

			if w.Code != tt.expectStatus {
				t.Errorf("expected status %d, got %d", tt.expectStatus, w.Code)
			}
			if tt.panicValue == nil {
				if buf.Len() != 0 {
					t.Errorf("unexpected log output: %s", buf.String())
				}
				return
			}
			if !strings.Contains(buf.String(), "Panic recovered") {
				t.Errorf("expected panic log, got %s", buf.String())
			}
			if !strings.Contains(w.Body.String(), "INTERNAL_ERROR") {
				t.Errorf("expected error body, got %s", w.Body.String())
			}
		})
	}
}

// TestRecovery_AbortHandlerPropagates verifies http.ErrAbortHandler is not swallowed.
func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	logger := zerolog.Nop()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected http.ErrAbortHandler, got %v", r)
		}
	}()

	Recovery(&logger)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	t.Error("expected panic to propagate")
}
