package presence

import (
	"math/rand"
	"time"
)

// backoffDelay returns the base reconnection delay for the given zero-based
// attempt: min(maxDelay, initial * 2^attempt). Jitter is applied separately so
// the base schedule stays a pure function of the attempt counter.
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	if initial >= max {
		return max
	}
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}

// withJitter adds 0-25% random jitter to a delay so that clients knocked off
// a channel at the same moment do not reconnect in lockstep.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}
