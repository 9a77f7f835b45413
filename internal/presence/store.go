package presence

import (
	"sync"

	"github.com/google/uuid"

	"presence-service/internal/domain"
)

// Store holds the channel's view of all active users for one trip. The local
// user's record is always derived by looking up the local user id in that
// view, never mutated on its own, so what the session broadcasts and what the
// channel reports cannot diverge.
type Store struct {
	selfID uuid.UUID

	mu    sync.RWMutex
	users map[uuid.UUID]domain.UserPresence
}

func NewStore(selfID uuid.UUID) *Store {
	return &Store{
		selfID: selfID,
		users:  make(map[uuid.UUID]domain.UserPresence),
	}
}

// ApplySync replaces the whole view with the channel's current presence set.
// Stale duplicates for the same user resolve last-write-wins by LastActive.
// Offline entries are dropped; an offline user is not an active user.
func (s *Store) ApplySync(presences []domain.UserPresence) {
	users := make(map[uuid.UUID]domain.UserPresence, len(presences))
	for _, p := range presences {
		if p.Status == domain.PresenceStatusOffline {
			continue
		}
		if existing, ok := users[p.UserID]; ok && !p.NewerThan(&existing) {
			continue
		}
		users[p.UserID] = p
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
}

// ApplyJoin patches a single user into the view between syncs. A join
// carrying an offline status is treated as a leave.
func (s *Store) ApplyJoin(p domain.UserPresence) {
	if p.Status == domain.PresenceStatusOffline {
		s.ApplyLeave(p.UserID)
		return
	}

	s.mu.Lock()
	s.users[p.UserID] = p
	s.mu.Unlock()
}

// ApplyLeave removes a user from the view.
func (s *Store) ApplyLeave(userID uuid.UUID) {
	s.mu.Lock()
	delete(s.users, userID)
	s.mu.Unlock()
}

// ActiveUsers returns a copy of the current view.
func (s *Store) ActiveUsers() []domain.UserPresence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserPresence, 0, len(s.users))
	for _, p := range s.users {
		users = append(users, p)
	}
	return users
}

// My returns the local user's record as reported by the channel, if present.
func (s *Store) My() (domain.UserPresence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[s.selfID]
	return p, ok
}

// Len returns the number of active users in the view.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
