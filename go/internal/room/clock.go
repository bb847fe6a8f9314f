package room

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// turnClock holds at most one pending callback for a room: the turn timeout
// of a human seat or the think delay of a bot seat. Every Schedule and Cancel
// bumps the generation, and a callback must check Current under the room lock
// before acting, so a timer that fired while its turn was being resolved
// elsewhere does nothing.
type turnClock struct {
	clock clockwork.Clock

	mu    sync.Mutex
	gen   uint64
	timer clockwork.Timer
	stop  chan struct{}
}

func newTurnClock(clock clockwork.Clock) *turnClock {
	return &turnClock{clock: clock}
}

// Schedule replaces any pending callback with fire, run after d with the
// generation it was scheduled under.
func (t *turnClock) Schedule(d time.Duration, fire func(gen uint64)) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked()
	gen := t.gen
	timer := t.clock.NewTimer(d)
	stop := make(chan struct{})
	t.timer, t.stop = timer, stop

	go func() {
		select {
		case <-timer.Chan():
			fire(gen)
		case <-stop:
		}
	}()
	return gen
}

// Cancel drops the pending callback, if any.
func (t *turnClock) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

// Current reports whether gen is still the live generation.
func (t *turnClock) Current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen && t.timer != nil
}

func (t *turnClock) cancelLocked() {
	t.gen++
	if t.timer != nil {
		stopAndDrainTimer(t.timer)
		close(t.stop)
		t.timer, t.stop = nil, nil
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
