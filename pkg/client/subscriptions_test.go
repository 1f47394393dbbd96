package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/livefeed/pkg/events"
	"github.com/agentstation/livefeed/pkg/logging"
)

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func cameraStatus(camera int) events.Envelope {
	return events.NewAt(&events.CameraStatusData{CameraID: camera, Status: "online"}, testTime)
}

func TestRegistry_PredicateSelectsCamera(t *testing.T) {
	r := NewRegistry(nil)
	var got []int
	r.Subscribe(
		func(env events.Envelope) bool {
			p, ok := events.As[*events.CameraStatusData](env)
			return ok && p.CameraID == 7
		},
		func(env events.Envelope) {
			p, _ := events.As[*events.CameraStatusData](env)
			got = append(got, p.CameraID)
		},
	)

	r.Dispatch(cameraStatus(7))
	r.Dispatch(cameraStatus(9))

	assert.Equal(t, []int{7}, got)
}

func TestRegistry_UnsubscribeStopsDelivery(t *testing.T) {
	r := NewRegistry(nil)
	calls := 0
	unsubscribe := r.Subscribe(nil, func(events.Envelope) { calls++ })

	unsubscribe()
	r.Dispatch(cameraStatus(7))

	assert.Zero(t, calls)
	assert.Zero(t, r.Len())
}

func TestRegistry_UnsubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	var order []string
	first := r.Subscribe(nil, func(events.Envelope) { order = append(order, "first") })
	r.Subscribe(nil, func(events.Envelope) { order = append(order, "second") })

	first()
	first()

	assert.Equal(t, 1, r.Len())
	r.Dispatch(cameraStatus(1))
	assert.Equal(t, []string{"second"}, order)
}

func TestRegistry_InvocationFollowsRegistrationOrder(t *testing.T) {
	r := NewRegistry(nil)
	var order []int
	for i := range 5 {
		r.Subscribe(nil, func(events.Envelope) { order = append(order, i) })
	}

	assert.Equal(t, 5, r.Dispatch(cameraStatus(1)))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestRegistry_PanickingCallbackIsIsolated(t *testing.T) {
	logger := logging.NewTestLogger(t)
	r := NewRegistry(logger.Logger)
	var order []string
	r.Subscribe(nil, func(events.Envelope) { order = append(order, "before") })
	r.Subscribe(nil, func(events.Envelope) { panic("render failed") })
	r.Subscribe(func(events.Envelope) bool { panic("bad predicate") }, func(events.Envelope) {})
	r.Subscribe(nil, func(events.Envelope) { order = append(order, "after") })

	require.NotPanics(t, func() { r.Dispatch(cameraStatus(1)) })

	assert.Equal(t, []string{"before", "after"}, order)
	assert.True(t, logger.Contains("Subscriber panicked"))
	assert.True(t, logger.Contains("render failed"))
	assert.True(t, logger.Contains("bad predicate"))
}

func TestRegistry_DependencyKey(t *testing.T) {
	r := NewRegistry(nil)
	var got []string

	first := r.Subscribe(nil, func(events.Envelope) { got = append(got, "v1") }, WithDependency("camera-card", 7))

	// Same key keeps the existing registration.
	again := r.Subscribe(nil, func(events.Envelope) { got = append(got, "dup") }, WithDependency("camera-card", 7))
	assert.Equal(t, 1, r.Len())

	r.Dispatch(cameraStatus(7))
	assert.Equal(t, []string{"v1"}, got)

	// A changed key replaces it.
	got = nil
	r.Subscribe(nil, func(events.Envelope) { got = append(got, "v2") }, WithDependency("camera-card", 9))
	assert.Equal(t, 1, r.Len())

	r.Dispatch(cameraStatus(9))
	assert.Equal(t, []string{"v2"}, got)

	// Stale unsubscribers do not remove the replacement.
	first()
	again()
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_DifferentOwnersCoexist(t *testing.T) {
	r := NewRegistry(nil)
	calls := 0
	r.Subscribe(nil, func(events.Envelope) { calls++ }, WithDependency("a", 1))
	r.Subscribe(nil, func(events.Envelope) { calls++ }, WithDependency("b", 1))

	r.Dispatch(cameraStatus(1))

	assert.Equal(t, 2, calls)
}

func TestRegistry_MutationDuringDispatch(t *testing.T) {
	r := NewRegistry(nil)
	var order []string
	var unsubscribeLast Unsubscribe

	r.Subscribe(nil, func(events.Envelope) {
		order = append(order, "first")
		unsubscribeLast()
		r.Subscribe(nil, func(events.Envelope) { order = append(order, "added") })
	})
	unsubscribeLast = r.Subscribe(nil, func(events.Envelope) { order = append(order, "removed") })

	r.Dispatch(cameraStatus(1))
	assert.Equal(t, []string{"first"}, order)

	order = nil
	unsubscribeLast = func() {}
	r.Dispatch(cameraStatus(1))
	assert.Equal(t, []string{"first", "added"}, order)
}
