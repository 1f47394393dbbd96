package client

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/agentstation/livefeed/pkg/events"
)

// Predicate selects the envelopes a subscriber wants.
type Predicate func(events.Envelope) bool

// Callback receives a matching envelope.
type Callback func(events.Envelope)

// Unsubscribe removes the registration it was returned for. Calling it more
// than once is a no-op.
type Unsubscribe func()

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscription)

// WithDependency ties a subscription to a logical owner. Subscribing again
// for the same owner with the same key keeps the existing registration; a
// different key replaces it, so an owner never holds two registrations.
func WithDependency(owner string, key any) SubscribeOption {
	return func(s *subscription) {
		s.owner = owner
		s.key = fmt.Sprint(key)
	}
}

type subscription struct {
	id     uint64
	match  Predicate
	fn     Callback
	owner  string
	key    string
	active atomic.Bool
	cancel Unsubscribe
}

// Registry holds subscriptions in registration order.
type Registry struct {
	mu     sync.Mutex
	subs   []*subscription
	owners map[string]*subscription
	nextID uint64
	logger *zerolog.Logger
}

// NewRegistry creates an empty registry. A nil logger discards output.
func NewRegistry(logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		owners: make(map[string]*subscription),
		logger: logger,
	}
}

// Subscribe registers fn for envelopes matching pred. A nil pred matches
// every envelope.
func (r *Registry) Subscribe(pred Predicate, fn Callback, opts ...SubscribeOption) Unsubscribe {
	s := &subscription{match: pred, fn: fn}
	for _, opt := range opts {
		opt(s)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s.owner != "" {
		if existing, ok := r.owners[s.owner]; ok {
			if existing.key == s.key {
				return existing.cancel
			}
			r.removeLocked(existing)
		}
	}

	r.nextID++
	s.id = r.nextID
	s.active.Store(true)
	s.cancel = r.unsubscriber(s)
	r.subs = append(r.subs, s)
	if s.owner != "" {
		r.owners[s.owner] = s
	}
	return s.cancel
}

func (r *Registry) unsubscriber(s *subscription) Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.removeLocked(s)
		})
	}
}

func (r *Registry) removeLocked(s *subscription) {
	if !s.active.Swap(false) {
		return
	}
	for i, sub := range r.subs {
		if sub == s {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			break
		}
	}
	if s.owner != "" && r.owners[s.owner] == s {
		delete(r.owners, s.owner)
	}
}

// Dispatch offers env to every subscription in registration order and
// returns the number of callbacks invoked. Subscriptions added during a
// dispatch are not offered env; subscriptions removed during it are skipped
// if not yet reached. A panicking predicate or callback is logged and does
// not affect the others.
func (r *Registry) Dispatch(env events.Envelope) int {
	r.mu.Lock()
	snapshot := make([]*subscription, len(r.subs))
	copy(snapshot, r.subs)
	r.mu.Unlock()

	invoked := 0
	for _, s := range snapshot {
		if !s.active.Load() {
			continue
		}
		if r.deliver(s, env) {
			invoked++
		}
	}
	return invoked
}

func (r *Registry) deliver(s *subscription, env events.Envelope) (called bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().
				Interface("panic", p).
				Uint64("subscription", s.id).
				Str("owner", s.owner).
				Str("type", env.Type.String()).
				Msg("Subscriber panicked")
		}
	}()

	if s.match != nil && !s.match(env) {
		return false
	}
	called = true
	s.fn(env)
	return called
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
