package presence

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence-service/internal/domain"
)

func tripPresence(userID uuid.UUID, status domain.PresenceStatus, lastActive time.Time) domain.UserPresence {
	return domain.UserPresence{
		UserID:     userID,
		TripID:     uuid.New(),
		Status:     status,
		LastActive: lastActive,
	}
}

func TestStoreApplySyncReplacesView(t *testing.T) {
	self := uuid.New()
	peer := uuid.New()
	store := NewStore(self)

	now := time.Now()
	store.ApplySync([]domain.UserPresence{
		tripPresence(self, domain.PresenceStatusOnline, now),
		tripPresence(peer, domain.PresenceStatusEditing, now),
	})
	assert.Equal(t, 2, store.Len())

	// next sync no longer contains the peer
	store.ApplySync([]domain.UserPresence{
		tripPresence(self, domain.PresenceStatusOnline, now),
	})
	assert.Equal(t, 1, store.Len())
}

func TestStoreApplySyncDropsOffline(t *testing.T) {
	store := NewStore(uuid.New())
	store.ApplySync([]domain.UserPresence{
		tripPresence(uuid.New(), domain.PresenceStatusOffline, time.Now()),
	})
	assert.Equal(t, 0, store.Len())
}

func TestStoreApplySyncLastWriteWins(t *testing.T) {
	user := uuid.New()
	store := NewStore(uuid.New())

	older := tripPresence(user, domain.PresenceStatusOnline, time.Now().Add(-time.Minute))
	newer := tripPresence(user, domain.PresenceStatusEditing, time.Now())

	store.ApplySync([]domain.UserPresence{newer, older})
	users := store.ActiveUsers()
	require.Len(t, users, 1)
	assert.Equal(t, domain.PresenceStatusEditing, users[0].Status)
}

func TestStoreJoinAndLeave(t *testing.T) {
	peer := uuid.New()
	store := NewStore(uuid.New())

	store.ApplyJoin(tripPresence(peer, domain.PresenceStatusOnline, time.Now()))
	assert.Equal(t, 1, store.Len())

	store.ApplyLeave(peer)
	assert.Equal(t, 0, store.Len())
}

func TestStoreOfflineJoinIsLeave(t *testing.T) {
	peer := uuid.New()
	store := NewStore(uuid.New())

	store.ApplyJoin(tripPresence(peer, domain.PresenceStatusOnline, time.Now()))
	store.ApplyJoin(tripPresence(peer, domain.PresenceStatusOffline, time.Now()))
	assert.Equal(t, 0, store.Len())
}

func TestStoreMyIsDerivedFromView(t *testing.T) {
	self := uuid.New()
	store := NewStore(self)

	_, ok := store.My()
	assert.False(t, ok)

	store.ApplyJoin(tripPresence(self, domain.PresenceStatusEditing, time.Now()))
	mine, ok := store.My()
	require.True(t, ok)
	assert.Equal(t, self, mine.UserID)
	assert.Equal(t, domain.PresenceStatusEditing, mine.Status)
}
