package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"presence-service/internal/presence"
)

// The reconnect metric counts retries: the first connecting transition is
// the initial connect and stays uncounted; every later one is a reconnect,
// whether the supervisor scheduled it or the client asked for a manual
// recovery.
func TestReconnectCounterSkipsInitialConnect(t *testing.T) {
	rc := &reconnectCounter{}

	assert.False(t, rc.observe(presence.StateConnecting))
	assert.False(t, rc.observe(presence.StateConnected))
	assert.False(t, rc.observe(presence.StateDisconnected))

	// supervisor retry
	assert.True(t, rc.observe(presence.StateConnecting))
	// manual recovery
	assert.True(t, rc.observe(presence.StateConnecting))
}
