package presence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// A re-subscribe on a live channel closes the prior pubsub on purpose. The
// retiring receive loop must recognize that and stay silent: if it reported
// its own replacement as a transport error, every reconnect would seed the
// next one and the channel would flap forever.
func TestRedisChannelResubscribeIsNotATransportFailure(t *testing.T) {
	ch := NewRedisChannel(nil, uuid.New(), uuid.New(), zap.NewNop())

	first := &redis.PubSub{}
	ch.mu.Lock()
	ch.pubsub = first
	ch.mu.Unlock()

	// A live subscription whose stream ends is a genuine failure.
	assert.False(t, ch.retired(first))

	// Subscribe replaced it: the old loop is retired, the new one is live.
	second := &redis.PubSub{}
	ch.mu.Lock()
	ch.pubsub = second
	ch.mu.Unlock()
	assert.True(t, ch.retired(first))
	assert.False(t, ch.retired(second))
}

func TestRedisChannelCloseRetiresSubscription(t *testing.T) {
	ch := NewRedisChannel(nil, uuid.New(), uuid.New(), zap.NewNop())

	// Close before any subscription just records the shutdown, and is
	// idempotent.
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	current := &redis.PubSub{}
	ch.mu.Lock()
	ch.pubsub = current
	ch.closed = true
	ch.mu.Unlock()

	assert.True(t, ch.retired(current))
}
