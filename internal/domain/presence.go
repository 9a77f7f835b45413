package domain

import (
	"time"

	"github.com/google/uuid"
)

// PresenceStatus defines user presence status within a trip
type PresenceStatus string

const (
	PresenceStatusOnline  PresenceStatus = "ONLINE"
	PresenceStatusAway    PresenceStatus = "AWAY"
	PresenceStatusEditing PresenceStatus = "EDITING"
	PresenceStatusOffline PresenceStatus = "OFFLINE"
)

// Valid reports whether s is one of the four known statuses.
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceStatusOnline, PresenceStatusAway, PresenceStatusEditing, PresenceStatusOffline:
		return true
	}
	return false
}

// CursorPosition is a broadcast-only cursor sample. It is never persisted;
// cursor traffic is too high-frequency and too low-stakes for the database.
type CursorPosition struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Timestamp time.Time `json:"timestamp"`
}

// UserPresence represents one user's presence within one trip. A single row
// exists per (user, trip); the realtime channel carries the same shape as its
// broadcast snapshot, with the cursor attached.
type UserPresence struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_presence_user_trip" json:"userId"`
	TripID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_presence_user_trip;index:idx_presence_trip_status" json:"tripId"`
	Status        PresenceStatus `gorm:"type:varchar(20);default:'ONLINE';index:idx_presence_trip_status" json:"status"`
	EditingItemID *uuid.UUID     `gorm:"type:uuid" json:"editingItemId,omitempty"`
	LastActive    time.Time      `gorm:"type:timestamptz;not null" json:"lastActive"`

	// Denormalized display fields, refreshed on every upsert.
	Name      string `gorm:"type:varchar(100)" json:"name,omitempty"`
	AvatarURL string `gorm:"type:varchar(500)" json:"avatarUrl,omitempty"`
	Email     string `gorm:"type:varchar(255)" json:"email,omitempty"`

	Cursor *CursorPosition `gorm:"-" json:"cursor,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;default:now();not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"type:timestamptz;default:now();not null" json:"updatedAt"`
}

func (UserPresence) TableName() string {
	return "user_presences"
}

// Normalize enforces the editing invariant: EditingItemID is only meaningful
// while the status is EDITING.
func (p *UserPresence) Normalize() {
	if p.Status != PresenceStatusEditing {
		p.EditingItemID = nil
	}
}

// NewerThan reports whether p is a more recent observation of the same user
// than other. Used for last-write-wins reconciliation of stale duplicates.
func (p *UserPresence) NewerThan(other *UserPresence) bool {
	return p.LastActive.After(other.LastActive)
}
