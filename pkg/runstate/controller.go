// Package runstate holds the state shared between a synchronization worker and
// the surface controlling it: the start/pause/stop state machine and the run's
// escalating error level.
package runstate

import (
	"sync"
	"sync/atomic"
)

// Signal is the view of a Controller that the tree walkers need. Walkers call
// Checkpoint before every file and every directory they process.
type Signal interface {
	// WaitWhilePaused blocks while the run is paused.
	WaitWhilePaused()
	// IsStopping reports whether the run should unwind.
	IsStopping() bool
}

// Checkpoint waits while the run is paused and then reports whether the caller
// has to stop. A nil signal never pauses or stops.
func Checkpoint(s Signal) bool {
	if s == nil {
		return false
	}
	s.WaitWhilePaused()
	return s.IsStopping()
}

// Controller implements the STOP -> START -> (PAUSE <-> START) -> STOPPING -> STOP
// state machine. It is safe for concurrent use: the worker reads it while the
// controlling surface changes it.
type Controller struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    State
	onChange func(State)
}

// NewController returns a Controller in the Stop state. onChange, if not nil,
// is called after every state transition, outside the internal lock.
func NewController(onChange func(State)) *Controller {
	c := &Controller{state: Stop, onChange: onChange}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// transition applies fn under the lock and notifies listeners when the state changed.
func (c *Controller) transition(fn func(State) State) bool {
	c.mu.Lock()
	old := c.state
	next := fn(old)
	c.state = next
	if next != old {
		c.cond.Broadcast()
	}
	c.mu.Unlock()

	if next != old && c.onChange != nil {
		c.onChange(next)
	}
	return next != old
}

// Start moves Stop to Start. It is ignored in every other state and reports
// whether the run may begin.
func (c *Controller) Start() bool {
	return c.transition(func(s State) State {
		if s == Stop {
			return Start
		}
		return s
	})
}

// Pause toggles between Start and Pause. It is a no-op in Stop and Stopping.
func (c *Controller) Pause() {
	c.transition(func(s State) State {
		switch s {
		case Start:
			return Pause
		case Pause:
			return Start
		default:
			return s
		}
	})
}

// Stop requests the active run to unwind. Paused waiters are released.
func (c *Controller) Stop() {
	c.transition(func(s State) State {
		if s == Stop {
			return s
		}
		return Stopping
	})
}

// Finish settles the state to Stop once the worker has unwound.
func (c *Controller) Finish() {
	c.transition(func(State) State { return Stop })
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsStopping reports whether a stop was requested for the active run.
func (c *Controller) IsStopping() bool {
	return c.State() == Stopping
}

// IsRunning reports whether a run is active (started, paused or stopping).
func (c *Controller) IsRunning() bool {
	return c.State() != Stop
}

// WaitWhilePaused blocks until the state leaves Pause.
func (c *Controller) WaitWhilePaused() {
	c.mu.Lock()
	for c.state == Pause {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

var _ Signal = (*Controller)(nil)

// ErrorTracker holds the error level of a run. The level only rises, except on Reset.
type ErrorTracker struct {
	level atomic.Int32
}

// Raise lifts the level to at least l. ErrorThisDirectory always replaces
// ErrorOtherDirectory: both are errors for the run outcome, but only the former
// marks the directory in progress and suppresses its delete phase.
func (t *ErrorTracker) Raise(l ErrorLevel) {
	if l == ErrorThisDirectory {
		t.level.Store(int32(ErrorThisDirectory))
		return
	}
	for {
		cur := t.level.Load()
		if int32(l) <= cur {
			return
		}
		if t.level.CompareAndSwap(cur, int32(l)) {
			return
		}
	}
}

// Level returns the current level.
func (t *ErrorTracker) Level() ErrorLevel {
	return ErrorLevel(t.level.Load())
}

// Reset clears the level at the start of a run.
func (t *ErrorTracker) Reset() {
	t.level.Store(int32(NoError))
}

// NextDirectory turns an error of the directory that just finished into an
// error of "another directory" before the next directory starts.
func (t *ErrorTracker) NextDirectory() {
	t.level.CompareAndSwap(int32(ErrorThisDirectory), int32(ErrorOtherDirectory))
}
