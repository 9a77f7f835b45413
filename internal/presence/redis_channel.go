package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"presence-service/internal/domain"
)

const (
	// stateTTL bounds how long a trip's presence hash survives without any
	// heartbeat re-tracking it. Crashed clients disappear from sync results
	// after at most this long even if the reaper never runs.
	stateTTL = 10 * time.Minute

	subscribeTimeout = 5 * time.Second
)

// wireMessage is the pub/sub payload for join/leave broadcasts.
type wireMessage struct {
	Type     string               `json:"type"`
	Presence *domain.UserPresence `json:"presence,omitempty"`
	UserID   string               `json:"userId,omitempty"`
}

// RedisChannel implements Channel on Redis: a pub/sub topic per trip for
// join/leave broadcasts, plus a hash per trip holding each tracked user's
// latest snapshot as the channel's authoritative presence set.
type RedisChannel struct {
	rdb    *redis.Client
	tripID uuid.UUID
	userID uuid.UUID
	logger *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
}

func NewRedisChannel(rdb *redis.Client, tripID, userID uuid.UUID, logger *zap.Logger) *RedisChannel {
	return &RedisChannel{
		rdb:    rdb,
		tripID: tripID,
		userID: userID,
		logger: logger,
	}
}

func topicKey(tripID uuid.UUID) string {
	return fmt.Sprintf("trip-presence:%s", tripID)
}

func stateKey(tripID uuid.UUID) string {
	return fmt.Sprintf("trip-presence:state:%s", tripID)
}

// Subscribe tears down any prior subscription for this scope, subscribes to
// the trip topic, and delivers an initial sync event from the current
// presence hash before returning.
func (c *RedisChannel) Subscribe(ctx context.Context, handler EventHandler) error {
	c.mu.Lock()
	if c.pubsub != nil {
		c.pubsub.Close()
		c.pubsub = nil
	}
	c.closed = false

	pubsub := c.rdb.Subscribe(ctx, topicKey(c.tripID))
	c.pubsub = pubsub
	c.mu.Unlock()

	// Wait for the subscription confirmation so a broken broker surfaces
	// here rather than as a silent dead channel.
	confirmCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	if _, err := pubsub.Receive(confirmCtx); err != nil {
		c.Close()
		return fmt.Errorf("subscribe to %s: %w", topicKey(c.tripID), err)
	}

	go c.receive(pubsub, handler)

	presences, err := c.Snapshot(ctx)
	if err != nil {
		c.Close()
		return fmt.Errorf("initial snapshot for %s: %w", topicKey(c.tripID), err)
	}
	handler(Event{Type: EventSync, Presences: presences})

	return nil
}

func (c *RedisChannel) receive(pubsub *redis.PubSub, handler EventHandler) {
	for msg := range pubsub.Channel() {
		var wm wireMessage
		if err := json.Unmarshal([]byte(msg.Payload), &wm); err != nil {
			c.logger.Warn("dropping malformed presence broadcast",
				zap.String("trip_id", c.tripID.String()),
				zap.Error(err))
			continue
		}

		switch wm.Type {
		case "join":
			if wm.Presence == nil {
				continue
			}
			handler(Event{Type: EventJoin, Presence: *wm.Presence})
		case "leave":
			userID, err := uuid.Parse(wm.UserID)
			if err != nil {
				continue
			}
			handler(Event{Type: EventLeave, UserID: userID})
		default:
			c.logger.Warn("unknown presence broadcast type",
				zap.String("type", wm.Type))
		}
	}

	// The message stream only ends when its pubsub is closed. That happens
	// on purpose two ways: Close, and Subscribe retiring this subscription
	// in favor of a newer one. Anything else is a transport failure the
	// reconnection supervisor needs to hear about.
	if c.retired(pubsub) {
		return
	}
	handler(Event{Type: EventError, Err: fmt.Errorf("presence channel %s closed unexpectedly", topicKey(c.tripID))})
}

// retired reports whether pubsub was shut down deliberately: the channel was
// closed, or a newer subscription has already replaced this one.
func (c *RedisChannel) retired(pubsub *redis.PubSub) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.pubsub != pubsub
}

// Track writes the snapshot into the trip's presence hash and broadcasts a
// join so peers patch their views without waiting for a resync.
func (c *RedisChannel) Track(ctx context.Context, snapshot domain.UserPresence) error {
	payload, err := json.Marshal(&snapshot)
	if err != nil {
		return err
	}
	broadcast, err := json.Marshal(wireMessage{Type: "join", Presence: &snapshot})
	if err != nil {
		return err
	}

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, stateKey(c.tripID), c.userID.String(), payload)
	pipe.Expire(ctx, stateKey(c.tripID), stateTTL)
	pipe.Publish(ctx, topicKey(c.tripID), broadcast)
	_, err = pipe.Exec(ctx)
	return err
}

// Snapshot reads the full presence set from the trip's hash.
func (c *RedisChannel) Snapshot(ctx context.Context) ([]domain.UserPresence, error) {
	return ReadTripSnapshot(ctx, c.rdb, c.tripID)
}

// Untrack removes the local user from the hash and broadcasts a leave.
func (c *RedisChannel) Untrack(ctx context.Context) error {
	broadcast, err := json.Marshal(wireMessage{Type: "leave", UserID: c.userID.String()})
	if err != nil {
		return err
	}

	pipe := c.rdb.Pipeline()
	pipe.HDel(ctx, stateKey(c.tripID), c.userID.String())
	pipe.Publish(ctx, topicKey(c.tripID), broadcast)
	_, err = pipe.Exec(ctx)
	return err
}

// Close shuts the subscription down without touching the presence hash.
func (c *RedisChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.pubsub != nil {
		err := c.pubsub.Close()
		c.pubsub = nil
		return err
	}
	return nil
}

// ReadTripSnapshot reads every tracked snapshot for a trip straight from
// Redis. Shared by the channel adapter and the REST active-users query.
func ReadTripSnapshot(ctx context.Context, rdb *redis.Client, tripID uuid.UUID) ([]domain.UserPresence, error) {
	fields, err := rdb.HGetAll(ctx, stateKey(tripID)).Result()
	if err != nil {
		return nil, err
	}

	presences := make([]domain.UserPresence, 0, len(fields))
	for _, raw := range fields {
		var p domain.UserPresence
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		presences = append(presences, p)
	}
	return presences, nil
}
