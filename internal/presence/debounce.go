package presence

import (
	"sync"
	"time"

	"presence-service/internal/domain"
)

// Publisher coalesces rapid presence snapshots into at most one emit per
// window, always emitting the most recent snapshot. The first Schedule call
// arms the timer; later calls within the window only replace the pending
// value, so a continuous stream of updates still flushes once per window
// instead of being postponed forever.
type Publisher struct {
	window time.Duration
	emit   func(domain.UserPresence)

	mu      sync.Mutex
	timer   *time.Timer
	pending *domain.UserPresence
}

func NewPublisher(window time.Duration, emit func(domain.UserPresence)) *Publisher {
	return &Publisher{window: window, emit: emit}
}

// Schedule records snapshot as the value to send when the current window
// closes, arming the window timer if none is running.
func (p *Publisher) Schedule(snapshot domain.UserPresence) {
	p.mu.Lock()
	p.pending = &snapshot
	if p.timer == nil {
		p.timer = time.AfterFunc(p.window, p.fire)
	}
	p.mu.Unlock()
}

func (p *Publisher) fire() {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.timer = nil
	p.mu.Unlock()

	if pending != nil {
		p.emit(*pending)
	}
}

// Flush sends the pending snapshot immediately, bypassing the window timer.
// Used for transitions that must not wait out the window, like starting or
// stopping an edit session.
func (p *Publisher) Flush() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	if pending != nil {
		p.emit(*pending)
	}
}

// Cancel drops any pending snapshot without sending it. Called on teardown.
func (p *Publisher) Cancel() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending = nil
	p.mu.Unlock()
}
