// Package relay proxies one upstream event stream per browser connection.
//
// A relay holds no registry: each request opens its own upstream request,
// bound to the browser request's context, and forwards the upstream bytes
// verbatim. When the browser goes away the upstream request is cancelled
// with it.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/livefeed/internal/server/sse"
	"github.com/agentstation/livefeed/pkg/errors"
	"github.com/agentstation/livefeed/pkg/events"
)

const copyBufferSize = 32 * 1024

// Relay forwards an upstream SSE endpoint to browser clients.
type Relay struct {
	upstream string
	client   *http.Client
	logger   *zerolog.Logger
}

// New creates a relay for upstreamURL. A nil client uses a client without
// an overall timeout, since the response body is long-lived.
func New(upstreamURL string, client *http.Client, logger *zerolog.Logger) *Relay {
	if client == nil {
		client = &http.Client{}
	}
	return &Relay{
		upstream: upstreamURL,
		client:   client,
		logger:   logger,
	}
}

// ServeHTTP relays the upstream stream for the lifetime of the request.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	sse.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		rl.logger.Error().Err(err).Msg("Response writer cannot stream")
		return
	}

	id := uuid.NewString()
	logger := rl.logger.With().Str("connection_id", id).Str("transport", "relay").Logger()
	out := &writer{w: w, rc: rc}

	if err := out.envelope(events.New(&events.ConnectedData{
		ConnectionID: id,
		Message:      "Connected to live event stream",
	})); err != nil {
		logger.Debug().Err(err).Msg("Client gone before connect confirmation")
		return
	}

	body, err := rl.open(r.Context())
	if err != nil {
		logger.Warn().Err(err).Msg("Upstream connect failed")
		_ = out.envelope(events.New(&events.ErrorData{
			Message: "upstream unavailable",
			Reason:  err.Error(),
		}))
		return
	}
	defer func() { _ = body.Close() }()

	logger.Debug().Str("upstream", rl.upstream).Msg("Relay opened")

	n, err := rl.copy(out, body)
	switch {
	case err == nil:
		logger.Debug().Int64("bytes", n).Msg("Upstream stream ended")
	case r.Context().Err() != nil:
		logger.Debug().Int64("bytes", n).Msg("Client disconnected")
	case errors.IsWriteError(err):
		logger.Debug().Err(err).Int64("bytes", n).Msg("Client write failed")
	default:
		logger.Warn().Err(err).Int64("bytes", n).Msg("Upstream read failed")
		_ = out.envelope(events.New(&events.ErrorData{
			Message: "upstream stream interrupted",
			Reason:  err.Error(),
		}))
	}
}

// open issues the upstream request. A transport error or non-2xx status is
// a connect failure.
func (rl *Relay) open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rl.upstream, nil)
	if err != nil {
		return nil, errors.NewConnectError(rl.upstream, 0, err)
	}
	req.Header.Set("Accept", events.ContentType)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := rl.client.Do(req)
	if err != nil {
		return nil, errors.NewConnectError(rl.upstream, 0, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, errors.NewConnectError(rl.upstream, resp.StatusCode,
			fmt.Errorf("unexpected status %s", resp.Status))
	}
	return resp.Body, nil
}

// copy forwards chunks as they arrive. It returns nil at upstream EOF, a
// *WriteError when the client side fails, and the read error otherwise.
func (rl *Relay) copy(out *writer, body io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var total int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if err := out.chunk(buf[:n]); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

// writer forwards bytes to the client and remembers the last few written,
// so a synthetic envelope never lands inside a partially relayed frame.
type writer struct {
	w    io.Writer
	rc   *http.ResponseController
	tail []byte
}

func (o *writer) chunk(p []byte) error {
	if _, err := o.w.Write(p); err != nil {
		return errors.NewWriteError("relay", err)
	}
	if err := o.rc.Flush(); err != nil {
		return errors.NewWriteError("relay", err)
	}
	o.remember(p)
	return nil
}

func (o *writer) remember(p []byte) {
	const keep = 4
	if len(p) >= keep {
		o.tail = append(o.tail[:0], p[len(p)-keep:]...)
		return
	}
	o.tail = append(o.tail, p...)
	if len(o.tail) > keep {
		o.tail = append(o.tail[:0], o.tail[len(o.tail)-keep:]...)
	}
}

// atBoundary reports whether the bytes written so far end a message.
func (o *writer) atBoundary() bool {
	return len(o.tail) == 0 ||
		bytes.HasSuffix(o.tail, []byte("\n\n")) ||
		bytes.HasSuffix(o.tail, []byte("\r\n\r\n"))
}

// envelope writes env as its own message. A partial upstream frame is
// terminated first and reaches the client as one malformed message.
func (o *writer) envelope(env events.Envelope) error {
	frame, err := events.Encode(env)
	if err != nil {
		return err
	}
	if !o.atBoundary() {
		if err := o.chunk([]byte("\n\n")); err != nil {
			return err
		}
	}
	return o.chunk(frame)
}
