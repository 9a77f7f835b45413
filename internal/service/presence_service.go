package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"presence-service/internal/config"
	"presence-service/internal/domain"
	"presence-service/internal/presence"
)

// ChannelFactory builds the realtime channel for one (trip, user) scope.
// Swappable for tests.
type ChannelFactory func(tripID, userID uuid.UUID) presence.Channel

// PresenceStore is the durable side of the service: the session's Recorder
// plus the read queries the REST surface needs.
type PresenceStore interface {
	presence.Recorder
	FindActiveByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.UserPresence, error)
	FindByUser(ctx context.Context, tripID, userID uuid.UUID) (*domain.UserPresence, error)
}

// PresenceService owns every live presence session in the process. At most
// one session exists per (trip, user): starting a new one for the same scope
// stops and replaces the old, so a reconnecting client can never leave a
// duplicate session ticking behind it.
type PresenceService struct {
	cfg     *config.Config
	repo    PresenceStore
	redis   *redis.Client
	logger  *zap.Logger
	channel ChannelFactory

	mu       sync.Mutex
	sessions map[string]*presence.Session
}

func NewPresenceService(
	cfg *config.Config,
	repo PresenceStore,
	rdb *redis.Client,
	logger *zap.Logger,
) *PresenceService {
	s := &PresenceService{
		cfg:      cfg,
		repo:     repo,
		redis:    rdb,
		logger:   logger,
		sessions: make(map[string]*presence.Session),
	}
	s.channel = func(tripID, userID uuid.UUID) presence.Channel {
		return presence.NewRedisChannel(rdb, tripID, userID, logger)
	}
	return s
}

func sessionKey(tripID, userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", tripID, userID)
}

// StartSession creates and starts a presence session for the given user
// within a trip. An existing session for the same scope is stopped first.
func (s *PresenceService) StartSession(profile presence.Profile, tripID uuid.UUID, onEvent func(presence.SessionEvent)) (*presence.Session, error) {
	pc := s.cfg.Presence
	cfg := presence.Config{
		TripID:                tripID,
		Profile:               profile,
		UpdateInterval:        pc.UpdateInterval(),
		AwayTimeout:           pc.AwayTimeout(),
		TrackCursor:           pc.TrackCursor,
		PresenceDebounce:      pc.PresenceDebounce(),
		CursorDebounce:        pc.CursorDebounce(),
		ReconnectInitialDelay: pc.ReconnectInitialDelay(),
		ReconnectMaxDelay:     pc.ReconnectMaxDelay(),
		MaxReconnectAttempts:  pc.MaxReconnectAttempts,
		CleanupTimeout:        pc.CleanupTimeout(),
		OnEvent:               onEvent,
	}

	session, err := presence.NewSession(cfg, s.channel(tripID, profile.UserID), s.repo, s.logger)
	if err != nil {
		return nil, err
	}

	key := sessionKey(tripID, profile.UserID)

	s.mu.Lock()
	old := s.sessions[key]
	s.sessions[key] = session
	s.mu.Unlock()

	if old != nil {
		s.logger.Info("replacing existing presence session",
			zap.String("trip_id", tripID.String()),
			zap.String("user_id", profile.UserID.String()))
		old.Stop()
	}

	if err := session.Start(); err != nil {
		s.mu.Lock()
		if s.sessions[key] == session {
			delete(s.sessions, key)
		}
		s.mu.Unlock()
		return nil, err
	}

	return session, nil
}

// StopSession tears down the session for (trip, user) if it is still the
// registered one.
func (s *PresenceService) StopSession(tripID, userID uuid.UUID, session *presence.Session) {
	key := sessionKey(tripID, userID)

	s.mu.Lock()
	current := s.sessions[key]
	if current == session {
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	// A replaced session stops itself through StartSession; stopping it
	// again here is a harmless no-op.
	if session != nil {
		session.Stop()
	}
}

// SessionCount returns the number of live sessions in the process.
func (s *PresenceService) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ActiveUsers returns the trip's current presence set from the realtime
// channel, falling back to the durable mirror when Redis is unavailable.
func (s *PresenceService) ActiveUsers(ctx context.Context, tripID uuid.UUID) ([]domain.UserPresence, error) {
	if s.redis != nil {
		presences, err := presence.ReadTripSnapshot(ctx, s.redis, tripID)
		if err == nil {
			return presences, nil
		}
		s.logger.Warn("realtime snapshot unavailable, falling back to database",
			zap.String("trip_id", tripID.String()),
			zap.Error(err))
	}

	return s.repo.FindActiveByTrip(ctx, tripID)
}

// UserStatus returns one user's durable presence row within a trip.
func (s *PresenceService) UserStatus(ctx context.Context, tripID, userID uuid.UUID) (*domain.UserPresence, error) {
	return s.repo.FindByUser(ctx, tripID, userID)
}

// StopAll stops every live session. Called on shutdown so each user gets an
// offline broadcast and a durable offline write before the process exits.
func (s *PresenceService) StopAll() {
	s.mu.Lock()
	sessions := make([]*presence.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.sessions = make(map[string]*presence.Session)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, session := range sessions {
		wg.Add(1)
		go func(sess *presence.Session) {
			defer wg.Done()
			sess.Stop()
		}(session)
	}
	wg.Wait()

	s.logger.Info("all presence sessions stopped", zap.Int("count", len(sessions)))
}
