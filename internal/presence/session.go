package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"presence-service/internal/domain"
)

// ConnectionState is the reconnection supervisor's externally visible state.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	StateDisconnected ConnectionState = "DISCONNECTED"
)

const (
	connectTimeout   = 10 * time.Second
	heartbeatTimeout = 5 * time.Second
	publishTimeout   = 5 * time.Second
)

// Profile is the read-only identity supplied by the auth layer.
type Profile struct {
	UserID    uuid.UUID
	Name      string
	AvatarURL string
	Email     string
}

// Recorder mirrors presence snapshots into durable storage. The session
// caches the row id returned by the first Upsert and addresses every later
// write by that id.
type Recorder interface {
	Upsert(ctx context.Context, p *domain.UserPresence) (uuid.UUID, error)
	UpdateByID(ctx context.Context, id uuid.UUID, p domain.UserPresence) error

	// SetOffline marks the row offline unless it has been active after
	// notActiveSince, so a delayed cleanup cannot clobber a session that
	// reclaimed the row in the meantime.
	SetOffline(ctx context.Context, id uuid.UUID, notActiveSince time.Time) error
}

// EventKind identifies a session notification.
type EventKind string

const (
	KindSync  EventKind = "sync"
	KindJoin  EventKind = "join"
	KindLeave EventKind = "leave"
	KindState EventKind = "state"
	KindError EventKind = "error"
)

// SessionEvent is delivered to Config.OnEvent on the session's internal
// goroutines; handlers must not block.
type SessionEvent struct {
	Kind     EventKind
	Active   []domain.UserPresence
	Presence *domain.UserPresence
	UserID   uuid.UUID
	State    ConnectionState
	Err      error
}

// Config tunes one presence session. Zero values fall back to the defaults
// documented per field.
type Config struct {
	TripID  uuid.UUID
	Profile Profile

	UpdateInterval   time.Duration         // heartbeat period, default 30s
	AwayTimeout      time.Duration         // idle demotion, default 120s
	TrackCursor      bool                  // forward cursor samples, default off
	InitialStatus    domain.PresenceStatus // default ONLINE
	PresenceDebounce time.Duration         // general publish window, default 1s
	CursorDebounce   time.Duration         // cursor publish window, default 50ms

	ReconnectInitialDelay time.Duration // default 1s
	ReconnectMaxDelay     time.Duration // default 30s
	MaxReconnectAttempts  int           // default 5
	CleanupTimeout        time.Duration // default 5s

	OnEvent func(SessionEvent)
}

func (c *Config) applyDefaults() {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = 30 * time.Second
	}
	if c.AwayTimeout <= 0 {
		c.AwayTimeout = 120 * time.Second
	}
	if c.InitialStatus == "" {
		c.InitialStatus = domain.PresenceStatusOnline
	}
	if c.PresenceDebounce <= 0 {
		c.PresenceDebounce = time.Second
	}
	if c.CursorDebounce <= 0 {
		c.CursorDebounce = 50 * time.Millisecond
	}
	if c.ReconnectInitialDelay <= 0 {
		c.ReconnectInitialDelay = time.Second
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = 5 * time.Second
	}
}

// Session owns one user's presence within one trip: the realtime channel
// subscription, the away timer, both debounced publishers, the durable
// mirror, the reconnection supervisor, and teardown. Every timer and handle
// lives on the session and dies with Stop; nothing leaks across remounts.
type Session struct {
	cfg      Config
	channel  Channel
	recorder Recorder
	logger   *zap.Logger

	store       *Store
	activity    *ActivityTracker
	presencePub *Publisher
	cursorPub   *Publisher
	stopCh      chan struct{}

	// persistMu serializes durable writes: concurrent upserts before the
	// row id is cached would race into duplicate inserts.
	persistMu sync.Mutex

	mu               sync.Mutex
	status           domain.PresenceStatus
	editingItemID    *uuid.UUID
	cursor           *domain.CursorPosition
	connState        ConnectionState
	attempts         int
	reconnectTimer   *time.Timer
	reconnectPending bool
	recordID         uuid.UUID
	lastErr          error
	loading          bool
	cleaning         bool
	started          bool
	stopped          bool
	offlineDone      bool
}

// NewSession validates configuration and builds a session. Missing identity,
// trip scope, or backing clients fail here, before any network call.
func NewSession(cfg Config, ch Channel, rec Recorder, logger *zap.Logger) (*Session, error) {
	if cfg.Profile.UserID == uuid.Nil {
		return nil, ErrMissingUser
	}
	if cfg.TripID == uuid.Nil {
		return nil, ErrMissingTrip
	}
	if ch == nil || rec == nil {
		return nil, ErrMissingClient
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		cfg:       cfg,
		channel:   ch,
		recorder:  rec,
		logger:    logger,
		store:     NewStore(cfg.Profile.UserID),
		stopCh:    make(chan struct{}),
		status:    cfg.InitialStatus,
		connState: StateDisconnected,
	}
	s.activity = NewActivityTracker(cfg.AwayTimeout, s.handleAway)
	s.presencePub = NewPublisher(cfg.PresenceDebounce, s.publish)
	s.cursorPub = NewPublisher(cfg.CursorDebounce, s.publish)
	return s, nil
}

// Start begins the session: arms the away timer, starts the heartbeat loop,
// and connects in the background. Events report progress.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("presence: session already started")
	}
	s.started = true
	s.loading = true
	s.mu.Unlock()

	s.activity.Start()
	go s.heartbeatLoop()
	go s.connect()
	return nil
}

// connect is both the initial setup and the recovery procedure: tear down is
// implicit in the channel's idempotent Subscribe, then the durable id is
// re-resolved, the current snapshot re-tracked, and the full active-user set
// re-fetched through the channel's initial sync. Recovery is a full
// resynchronization, never an incremental resume.
func (s *Session) connect() {
	s.setState(StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := s.channel.Subscribe(ctx, s.handleChannelEvent); err != nil {
		s.scheduleReconnect(err)
		return
	}

	// Durable mirror is best-effort: a failed upsert surfaces through Err()
	// but never blocks the realtime path.
	s.persist(ctx)

	if err := s.channel.Track(ctx, s.snapshot()); err != nil {
		s.scheduleReconnect(err)
		return
	}

	s.mu.Lock()
	s.attempts = 0
	s.loading = false
	// A transport error is healed by reconnecting; a persistence error heals
	// only when a later write succeeds.
	var perr *PersistenceError
	if s.lastErr != nil && !errors.As(s.lastErr, &perr) {
		s.lastErr = nil
	}
	s.mu.Unlock()
	s.setState(StateConnected)

	s.logger.Info("presence session connected",
		zap.String("trip_id", s.cfg.TripID.String()),
		zap.String("user_id", s.cfg.Profile.UserID.String()))
}

func (s *Session) handleChannelEvent(ev Event) {
	switch ev.Type {
	case EventSync:
		s.store.ApplySync(ev.Presences)
		s.notify(SessionEvent{Kind: KindSync, Active: s.store.ActiveUsers()})
	case EventJoin:
		s.store.ApplyJoin(ev.Presence)
		p := ev.Presence
		s.notify(SessionEvent{Kind: KindJoin, Presence: &p})
	case EventLeave:
		s.store.ApplyLeave(ev.UserID)
		s.notify(SessionEvent{Kind: KindLeave, UserID: ev.UserID})
	case EventError:
		s.scheduleReconnect(ev.Err)
	}
}

// scheduleReconnect is the reconnection supervisor. Each failure moves the
// state to disconnected and arms a single backoff timer; once the attempt
// budget is exhausted the disconnected state is terminal and only a manual
// Recover restarts the machine.
func (s *Session) scheduleReconnect(cause error) {
	s.mu.Lock()
	if s.stopped || s.reconnectPending {
		s.mu.Unlock()
		return
	}
	s.attempts++
	attempts := s.attempts
	terminal := attempts > s.cfg.MaxReconnectAttempts
	if terminal {
		s.lastErr = ErrMaxReconnects
	} else {
		s.reconnectPending = true
	}
	s.loading = false
	s.mu.Unlock()

	s.setState(StateDisconnected)

	if terminal {
		s.logger.Error("presence reconnection budget exhausted",
			zap.String("trip_id", s.cfg.TripID.String()),
			zap.Int("attempts", s.cfg.MaxReconnectAttempts),
			zap.Error(cause))
		s.notify(SessionEvent{Kind: KindError, Err: ErrMaxReconnects})
		return
	}

	delay := withJitter(backoffDelay(attempts-1, s.cfg.ReconnectInitialDelay, s.cfg.ReconnectMaxDelay))
	s.logger.Warn("presence channel lost, reconnecting",
		zap.String("trip_id", s.cfg.TripID.String()),
		zap.Int("attempt", attempts),
		zap.Duration("delay", delay),
		zap.Error(cause))

	timer := time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.reconnectPending = false
		s.reconnectTimer = nil
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}
		s.connect()
	})

	s.mu.Lock()
	if s.stopped {
		timer.Stop()
		s.reconnectPending = false
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = timer
	s.mu.Unlock()
}

// Recover manually restarts the reconnection machine, clearing the attempt
// counter and any terminal error. This is the escape hatch after the
// automatic budget is spent.
func (s *Session) Recover() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.attempts = 0
	s.lastErr = nil
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.reconnectPending = false
	s.mu.Unlock()

	go s.connect()
}

func (s *Session) heartbeatLoop() {
	ticker := time.NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.ConnectionState() != StateConnected {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), heartbeatTimeout)
			s.persist(ctx)
			if err := s.channel.Track(ctx, s.snapshot()); err != nil {
				cancel()
				s.scheduleReconnect(err)
				continue
			}
			// Periodic full reconciliation keeps join/leave ordering
			// glitches from outliving one heartbeat.
			if presences, err := s.channel.Snapshot(ctx); err == nil {
				s.store.ApplySync(presences)
				s.notify(SessionEvent{Kind: KindSync, Active: s.store.ActiveUsers()})
			}
			cancel()
		}
	}
}

// Activity records an input event. Local state wins immediately: a user who
// was away or offline is online right now, regardless of network latency;
// the broadcast follows within the presence debounce window.
func (s *Session) Activity() {
	s.activity.Touch()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.status == domain.PresenceStatusAway || s.status == domain.PresenceStatusOffline {
		s.status = domain.PresenceStatusOnline
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.presencePub.Schedule(snap)
}

// Cursor records a cursor sample. Cursor traffic rides the tighter debounce
// window; a cursor move also counts as activity.
func (s *Session) Cursor(x, y float64) {
	if !s.cfg.TrackCursor {
		return
	}
	s.Activity()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.cursor = &domain.CursorPosition{X: x, Y: y, Timestamp: time.Now()}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.cursorPub.Schedule(snap)
}

// SetStatus applies an explicit status change, flushing the publisher so the
// transition does not wait out the debounce window. EDITING is rejected
// here: it must enter through StartEditing so it always carries an editing
// target.
func (s *Session) SetStatus(status domain.PresenceStatus) {
	if !status.Valid() || status == domain.PresenceStatusEditing {
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.editingItemID = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.presencePub.Schedule(snap)
	s.presencePub.Flush()
	s.persistSoon()
}

// StartEditing brackets the start of an edit session on itemID.
func (s *Session) StartEditing(itemID uuid.UUID) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.status = domain.PresenceStatusEditing
	id := itemID
	s.editingItemID = &id
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.presencePub.Schedule(snap)
	s.presencePub.Flush()
	s.persistSoon()
}

// StopEditing brackets the end of an edit session, returning to online.
func (s *Session) StopEditing() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.status = domain.PresenceStatusOnline
	s.editingItemID = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.presencePub.Schedule(snap)
	s.presencePub.Flush()
	s.persistSoon()
}

func (s *Session) handleAway() {
	s.mu.Lock()
	if s.stopped ||
		s.status == domain.PresenceStatusAway ||
		s.status == domain.PresenceStatusOffline {
		s.mu.Unlock()
		return
	}
	s.status = domain.PresenceStatusAway
	s.editingItemID = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.presencePub.Schedule(snap)
	s.persistSoon()
}

// publish is the shared emit path for both debounced publishers.
func (s *Session) publish(snap domain.UserPresence) {
	s.mu.Lock()
	send := !s.stopped && s.connState == StateConnected
	s.mu.Unlock()
	if !send {
		// connect re-tracks the current snapshot on reconnection, so a
		// dropped publish heals itself.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.channel.Track(ctx, snap); err != nil {
		s.scheduleReconnect(err)
	}
}

func (s *Session) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	snap := s.snapshot()
	s.mu.Lock()
	id := s.recordID
	s.mu.Unlock()

	if id == uuid.Nil {
		newID, err := s.recorder.Upsert(ctx, &snap)
		if err != nil {
			s.recordPersistenceError(err)
			return
		}
		s.mu.Lock()
		s.recordID = newID
		s.mu.Unlock()
		s.clearPersistenceError()
		return
	}

	if err := s.recorder.UpdateByID(ctx, id, snap); err != nil {
		s.recordPersistenceError(err)
		return
	}
	s.clearPersistenceError()
}

func (s *Session) clearPersistenceError() {
	s.mu.Lock()
	var perr *PersistenceError
	if errors.As(s.lastErr, &perr) {
		s.lastErr = nil
	}
	s.mu.Unlock()
}

func (s *Session) persistSoon() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), heartbeatTimeout)
		defer cancel()
		s.persist(ctx)
	}()
}

func (s *Session) recordPersistenceError(err error) {
	perr := ClassifyPersistenceError(err)
	s.logger.Warn("presence persistence failed",
		zap.String("trip_id", s.cfg.TripID.String()),
		zap.String("kind", string(perr.Kind)),
		zap.Error(err))

	s.mu.Lock()
	s.lastErr = perr
	s.mu.Unlock()
	s.notify(SessionEvent{Kind: KindError, Err: perr})
}

// Stop is the cleanup supervisor: broadcast offline, leave the channel, and
// mark the durable row offline, all bounded by CleanupTimeout. A failsafe
// timer races the primary path so the durable write happens even if the
// channel hangs; a completion flag keeps the write exactly-once.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cleaning = true
	s.status = domain.PresenceStatusOffline
	s.editingItemID = nil
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.reconnectPending = false
	off := s.snapshotLocked()
	s.mu.Unlock()

	close(s.stopCh)
	s.activity.Stop()
	s.presencePub.Cancel()
	s.cursorPub.Cancel()

	notActiveSince := off.LastActive

	failsafe := time.AfterFunc(s.cfg.CleanupTimeout, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CleanupTimeout)
		defer cancel()
		s.markOffline(ctx, notActiveSince, "failsafe")
	})

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CleanupTimeout)
	defer cancel()

	if err := s.channel.Track(ctx, off); err != nil {
		s.logger.Debug("offline broadcast failed during cleanup", zap.Error(err))
	}
	if err := s.channel.Untrack(ctx); err != nil {
		s.logger.Debug("untrack failed during cleanup", zap.Error(err))
	}
	if err := s.channel.Close(); err != nil {
		s.logger.Debug("channel close failed during cleanup", zap.Error(err))
	}

	s.markOffline(ctx, notActiveSince, "primary")
	failsafe.Stop()

	s.mu.Lock()
	s.cleaning = false
	s.mu.Unlock()
	s.setState(StateDisconnected)

	s.logger.Info("presence session stopped",
		zap.String("trip_id", s.cfg.TripID.String()),
		zap.String("user_id", s.cfg.Profile.UserID.String()))
}

func (s *Session) markOffline(ctx context.Context, notActiveSince time.Time, path string) {
	s.mu.Lock()
	if s.offlineDone {
		s.mu.Unlock()
		return
	}
	s.offlineDone = true
	id := s.recordID
	s.mu.Unlock()

	if id == uuid.Nil {
		return
	}
	if err := s.recorder.SetOffline(ctx, id, notActiveSince); err != nil {
		s.logger.Warn("durable offline write failed",
			zap.String("path", path),
			zap.Error(err))
		return
	}
	s.logger.Debug("presence marked offline",
		zap.String("path", path),
		zap.String("user_id", s.cfg.Profile.UserID.String()))
}

func (s *Session) setState(st ConnectionState) {
	s.mu.Lock()
	if s.connState == st {
		s.mu.Unlock()
		return
	}
	s.connState = st
	s.mu.Unlock()
	s.notify(SessionEvent{Kind: KindState, State: st})
}

func (s *Session) notify(ev SessionEvent) {
	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(ev)
	}
}

func (s *Session) snapshot() domain.UserPresence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() domain.UserPresence {
	p := domain.UserPresence{
		ID:         s.recordID,
		UserID:     s.cfg.Profile.UserID,
		TripID:     s.cfg.TripID,
		Status:     s.status,
		LastActive: s.activity.LastActive(),
		Name:       s.cfg.Profile.Name,
		AvatarURL:  s.cfg.Profile.AvatarURL,
		Email:      s.cfg.Profile.Email,
	}
	if s.editingItemID != nil {
		id := *s.editingItemID
		p.EditingItemID = &id
	}
	if s.cfg.TrackCursor && s.cursor != nil {
		c := *s.cursor
		p.Cursor = &c
	}
	p.Normalize()
	return p
}

// TripID returns the collaboration scope this session belongs to.
func (s *Session) TripID() uuid.UUID { return s.cfg.TripID }

// UserID returns the local user id.
func (s *Session) UserID() uuid.UUID { return s.cfg.Profile.UserID }

// ActiveUsers returns the channel's current view of the trip.
func (s *Session) ActiveUsers() []domain.UserPresence {
	return s.store.ActiveUsers()
}

// My returns the local user's record: the channel-reported one when
// available, otherwise the locally built snapshot.
func (s *Session) My() domain.UserPresence {
	if p, ok := s.store.My(); ok {
		return p
	}
	return s.snapshot()
}

// Status returns the locally authoritative status.
func (s *Session) Status() domain.PresenceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// EditingItemID returns the item currently being edited, if any.
func (s *Session) EditingItemID() *uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editingItemID == nil {
		return nil
	}
	id := *s.editingItemID
	return &id
}

// ConnectionState returns the supervisor's current state.
func (s *Session) ConnectionState() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

// Err returns the most recent surfaced error, nil when healthy.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// IsLoading reports whether the initial setup is still in progress.
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// IsCleaningUp reports whether teardown is in progress.
func (s *Session) IsCleaningUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleaning
}

// ReconnectAttempts returns the consecutive failure count since the last
// successful connection, clamped to the configured maximum once the
// supervisor goes terminal.
func (s *Session) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts > s.cfg.MaxReconnectAttempts {
		return s.cfg.MaxReconnectAttempts
	}
	return s.attempts
}
