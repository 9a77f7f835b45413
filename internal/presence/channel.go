package presence

import (
	"context"

	"github.com/google/uuid"

	"presence-service/internal/domain"
)

// EventType identifies a realtime channel event.
type EventType string

const (
	EventSync  EventType = "sync"
	EventJoin  EventType = "join"
	EventLeave EventType = "leave"
	EventError EventType = "error"
)

// Event is one delivery from the channel to its subscriber. Sync carries the
// full presence set; join carries one presence; leave carries a user id.
// Error events report transport failures the channel cannot recover from
// itself; the session's reconnection supervisor owns the retry policy.
type Event struct {
	Type      EventType
	Presences []domain.UserPresence
	Presence  domain.UserPresence
	UserID    uuid.UUID
	Err       error
}

// EventHandler receives channel events. Called from the channel's receive
// goroutine; implementations must not block.
type EventHandler func(Event)

// Channel is the realtime transport for one (user, trip) scope. Subscribe is
// idempotent per scope: any prior subscription is torn down before a new one
// is created, so remounts never leave duplicate listeners behind.
type Channel interface {
	// Subscribe attaches handler to the trip's topic and delivers an initial
	// sync event from the channel's current presence set.
	Subscribe(ctx context.Context, handler EventHandler) error

	// Track publishes the local snapshot to the topic and records it in the
	// channel's presence set, making it visible in peers' sync results.
	Track(ctx context.Context, snapshot domain.UserPresence) error

	// Snapshot reads the channel's full current presence set for the trip.
	Snapshot(ctx context.Context) ([]domain.UserPresence, error)

	// Untrack removes the local user from the presence set and broadcasts a
	// leave to peers.
	Untrack(ctx context.Context) error

	// Close tears the subscription down. Safe to call more than once.
	Close() error
}
