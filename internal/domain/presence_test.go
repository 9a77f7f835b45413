package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPresenceStatusValid(t *testing.T) {
	assert.True(t, PresenceStatusOnline.Valid())
	assert.True(t, PresenceStatusAway.Valid())
	assert.True(t, PresenceStatusEditing.Valid())
	assert.True(t, PresenceStatusOffline.Valid())

	assert.False(t, PresenceStatus("").Valid())
	assert.False(t, PresenceStatus("BUSY").Valid())
	assert.False(t, PresenceStatus("online").Valid())
}

func TestNormalizeClearsEditingTarget(t *testing.T) {
	itemID := uuid.New()

	p := UserPresence{Status: PresenceStatusEditing, EditingItemID: &itemID}
	p.Normalize()
	assert.NotNil(t, p.EditingItemID)

	p.Status = PresenceStatusOnline
	p.Normalize()
	assert.Nil(t, p.EditingItemID)
}

func TestNewerThan(t *testing.T) {
	now := time.Now()
	older := UserPresence{LastActive: now.Add(-time.Minute)}
	newer := UserPresence{LastActive: now}

	assert.True(t, newer.NewerThan(&older))
	assert.False(t, older.NewerThan(&newer))
	assert.False(t, newer.NewerThan(&newer))
}
