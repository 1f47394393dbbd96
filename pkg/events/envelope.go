package events

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/agentstation/livefeed/pkg/errors"
)

// Envelope is the unit of transmission. It is built, serialized once and
// discarded; nothing in this module stores envelopes.
type Envelope struct {
	Type      Type
	Data      Payload
	Timestamp time.Time
}

// New wraps p in an envelope stamped with the current UTC time.
func New(p Payload) Envelope {
	return NewAt(p, time.Now())
}

// NewAt wraps p in an envelope stamped with ts.
func NewAt(p Payload, ts time.Time) Envelope {
	return Envelope{
		Type:      p.EventType(),
		Data:      p,
		Timestamp: ts.UTC(),
	}
}

// As narrows the payload of env to T.
func As[T Payload](env Envelope) (T, bool) {
	p, ok := env.Data.(T)
	return p, ok
}

// wireEnvelope is the JSON shape of an Envelope.
type wireEnvelope struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Type == "" {
		return nil, errors.NewValidationError("type", e.Type, "cannot be empty")
	}

	data := json.RawMessage("{}")
	if e.Data != nil {
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		data = raw
	}

	return json.Marshal(wireEnvelope{
		Type:      e.Type,
		Data:      data,
		Timestamp: e.Timestamp,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Known types decode into their
// payload struct; unknown types are kept as *Raw.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Type == "" {
		return errors.NewValidationError("type", w.Type, "cannot be empty")
	}

	factory, ok := factories[w.Type]
	if !ok {
		e.Type = w.Type
		e.Data = &Raw{Kind: w.Type, Data: w.Data}
		e.Timestamp = w.Timestamp
		return nil
	}

	payload := factory()
	if len(w.Data) > 0 && !bytes.Equal(w.Data, []byte("null")) {
		if err := json.Unmarshal(w.Data, payload); err != nil {
			return err
		}
	}

	e.Type = w.Type
	e.Data = payload
	e.Timestamp = w.Timestamp
	return nil
}
