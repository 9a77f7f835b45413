package presence

import (
	"sync"
	"time"
)

// ActivityTracker turns a stream of input events into a monotonic last-active
// timestamp and a single away transition per idle gap. One timer is
// outstanding at a time; every Touch resets it, and once it fires it stays
// disarmed until the next Touch.
type ActivityTracker struct {
	timeout time.Duration
	onAway  func()

	mu         sync.Mutex
	lastActive time.Time
	timer      *time.Timer
	stopped    bool
}

func NewActivityTracker(timeout time.Duration, onAway func()) *ActivityTracker {
	return &ActivityTracker{
		timeout:    timeout,
		onAway:     onAway,
		lastActive: time.Now(),
	}
}

// Start arms the away timer. Touch before Start is safe but will not schedule
// an away transition.
func (t *ActivityTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.timer != nil {
		return
	}
	t.timer = time.AfterFunc(t.timeout, t.fire)
}

// Touch records an input event and re-arms the away timer. Returns the
// recorded timestamp. The timestamp never moves backwards.
func (t *ActivityTracker) Touch() time.Time {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.After(t.lastActive) {
		t.lastActive = now
	}
	if t.stopped {
		return t.lastActive
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.timeout, t.fire)
	return t.lastActive
}

func (t *ActivityTracker) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()
	t.onAway()
}

// LastActive returns the most recent recorded activity timestamp.
func (t *ActivityTracker) LastActive() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActive
}

// Stop disarms the timer permanently. Idempotent.
func (t *ActivityTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
