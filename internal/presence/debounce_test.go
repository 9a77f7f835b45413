package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence-service/internal/domain"
)

type emitRecorder struct {
	mu    sync.Mutex
	sends []domain.UserPresence
}

func (r *emitRecorder) emit(p domain.UserPresence) {
	r.mu.Lock()
	r.sends = append(r.sends, p)
	r.mu.Unlock()
}

func (r *emitRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sends)
}

func (r *emitRecorder) last() domain.UserPresence {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sends[len(r.sends)-1]
}

func presenceWithStatus(status domain.PresenceStatus) domain.UserPresence {
	return domain.UserPresence{
		UserID: uuid.New(),
		TripID: uuid.New(),
		Status: status,
	}
}

func TestPublisherCoalescesWithinWindow(t *testing.T) {
	rec := &emitRecorder{}
	pub := NewPublisher(30*time.Millisecond, rec.emit)

	pub.Schedule(presenceWithStatus(domain.PresenceStatusOnline))
	pub.Schedule(presenceWithStatus(domain.PresenceStatusAway))
	pub.Schedule(presenceWithStatus(domain.PresenceStatusEditing))

	require.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)

	// latest value wins, earlier ones are dropped
	assert.Equal(t, domain.PresenceStatusEditing, rec.last().Status)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestPublisherContinuousStreamStillFlushes(t *testing.T) {
	rec := &emitRecorder{}
	pub := NewPublisher(25*time.Millisecond, rec.emit)

	// keep scheduling faster than the window for ~4 windows
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		pub.Schedule(presenceWithStatus(domain.PresenceStatusOnline))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return rec.count() >= 2 },
		time.Second, 5*time.Millisecond)
}

func TestPublisherFlushBypassesWindow(t *testing.T) {
	rec := &emitRecorder{}
	pub := NewPublisher(time.Hour, rec.emit)

	pub.Schedule(presenceWithStatus(domain.PresenceStatusEditing))
	pub.Flush()

	assert.Equal(t, 1, rec.count())
	assert.Equal(t, domain.PresenceStatusEditing, rec.last().Status)

	// nothing pending after a flush
	pub.Flush()
	assert.Equal(t, 1, rec.count())
}

func TestPublisherCancelDropsPending(t *testing.T) {
	rec := &emitRecorder{}
	pub := NewPublisher(20*time.Millisecond, rec.emit)

	pub.Schedule(presenceWithStatus(domain.PresenceStatusOnline))
	pub.Cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}
