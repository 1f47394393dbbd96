package client

import (
	"slices"

	"github.com/agentstation/livefeed/pkg/events"
)

// OfType matches envelopes of any of the given types.
func OfType(types ...events.Type) Predicate {
	return func(env events.Envelope) bool {
		return slices.Contains(types, env.Type)
	}
}

// ForCamera matches envelopes concerning camera id.
func ForCamera(id int) Predicate {
	return func(env events.Envelope) bool {
		camera, ok := events.CameraOf(env)
		return ok && camera == id
	}
}

// And matches when every predicate matches.
func And(preds ...Predicate) Predicate {
	return func(env events.Envelope) bool {
		for _, p := range preds {
			if !p(env) {
				return false
			}
		}
		return true
	}
}

// Or matches when any predicate matches.
func Or(preds ...Predicate) Predicate {
	return func(env events.Envelope) bool {
		for _, p := range preds {
			if p(env) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(env events.Envelope) bool {
		return !p(env)
	}
}

// Domain matches every envelope that is not synthetic (connected,
// heartbeat, error).
func Domain() Predicate {
	return func(env events.Envelope) bool {
		return !env.Type.IsSynthetic()
	}
}
