package registry

import (
	"sync"
	"time"
)

// DefaultHeartbeatInterval keeps streams alive through proxies whose idle
// timeout is 60s or more.
const DefaultHeartbeatInterval = 30 * time.Second

// Heartbeat periodically writes a keep-alive to one connection.
type Heartbeat struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartHeartbeat calls beat every interval until Stop is called or beat
// returns an error. On error the timer is cancelled first and onFailure is
// then called from the heartbeat goroutine.
func StartHeartbeat(interval time.Duration, beat func(time.Time) error, onFailure func(error)) *Heartbeat {
	h := &Heartbeat{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(h.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-h.stop:
				return
			case now := <-ticker.C:
				// Stop may have raced with the tick
				select {
				case <-h.stop:
					return
				default:
				}
				if err := beat(now); err != nil {
					h.Stop()
					if onFailure != nil {
						onFailure(err)
					}
					return
				}
			}
		}
	}()

	return h
}

// Stop cancels the timer. It is safe to call more than once and from
// within onFailure.
func (h *Heartbeat) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// Done is closed when the heartbeat goroutine has exited.
func (h *Heartbeat) Done() <-chan struct{} {
	return h.done
}
