package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/agentstation/livefeed/internal/server/response"
	"github.com/agentstation/livefeed/pkg/errors"
	"github.com/agentstation/livefeed/pkg/events"
)

// MaxEventSize bounds the body of one submission.
const MaxEventSize = 64 << 10

// IdempotencyHeader names the request header carrying the dedupe key.
const IdempotencyHeader = "Idempotency-Key"

// PublishResult acknowledges a submission.
type PublishResult struct {
	Delivered int  `json:"delivered"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// HandlePublish handles POST /api/v1/events.
// The body is one envelope. A missing timestamp is set to the time of
// receipt. The response reports how many connections the envelope was
// handed to.
func (h *Handlers) HandlePublish(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxEventSize)

	var env events.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			response.RequestTooLarge(w, tooLarge.Limit)
			return
		}
		response.BadRequest(w, "Invalid event", err.Error())
		return
	}

	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}

	if err := events.Validate(env); err != nil {
		response.ErrorFromType(w, err)
		return
	}

	if h.registry.Closed() {
		response.ErrorFromType(w, errors.ErrClosed)
		return
	}

	key := r.Header.Get(IdempotencyHeader)
	ack, duplicate := h.cache.Do(key, func() int {
		return h.registry.Broadcast(env)
	})

	h.logger.Debug().
		Str("type", env.Type.String()).
		Int("delivered", ack.Delivered).
		Bool("duplicate", duplicate).
		Msg("Event submitted")

	response.OK(w, PublishResult{Delivered: ack.Delivered, Duplicate: duplicate})
}
