package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8004, cfg.Server.Port)
	assert.Equal(t, "/api/presence", cfg.Server.BasePath)

	assert.Equal(t, 30*time.Second, cfg.Presence.UpdateInterval())
	assert.Equal(t, 2*time.Minute, cfg.Presence.AwayTimeout())
	assert.Equal(t, time.Second, cfg.Presence.PresenceDebounce())
	assert.Equal(t, 50*time.Millisecond, cfg.Presence.CursorDebounce())
	assert.Equal(t, time.Second, cfg.Presence.ReconnectInitialDelay())
	assert.Equal(t, 30*time.Second, cfg.Presence.ReconnectMaxDelay())
	assert.Equal(t, 5, cfg.Presence.MaxReconnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.Presence.CleanupTimeout())
	assert.Equal(t, 10*time.Minute, cfg.Presence.OfflineAfter())
	assert.Equal(t, "@every 1m", cfg.Presence.ReaperSchedule)

	// cursor broadcast is opt-in
	assert.False(t, cfg.Presence.TrackCursor)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9100
  base_path: /api/presence
presence:
  away_timeout_sec: 60
  track_cursor: true
  max_reconnect_attempts: 3
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Presence.AwayTimeout())
	assert.True(t, cfg.Presence.TrackCursor)
	assert.Equal(t, 3, cfg.Presence.MaxReconnectAttempts)

	// untouched fields keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Presence.UpdateInterval())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9200")
	t.Setenv("PRESENCE_AWAY_TIMEOUT_SEC", "45")
	t.Setenv("PRESENCE_TRACK_CURSOR", "true")
	t.Setenv("PRESENCE_MAX_RECONNECT_ATTEMPTS", "7")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Presence.AwayTimeout())
	assert.True(t, cfg.Presence.TrackCursor)
	assert.Equal(t, 7, cfg.Presence.MaxReconnectAttempts)
}
