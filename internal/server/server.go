package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/alfredjeanlab/klicker/internal/auth"
	"github.com/alfredjeanlab/klicker/internal/events"
	"github.com/alfredjeanlab/klicker/internal/idgen"
	"github.com/alfredjeanlab/klicker/internal/metrics"
	"github.com/alfredjeanlab/klicker/internal/model"
	"github.com/alfredjeanlab/klicker/internal/presence"
	"github.com/alfredjeanlab/klicker/internal/store"
)

// SessionServer owns the session and active pointer documents. Every
// successful write is published as a full document snapshot on the
// document's topic.
type SessionServer struct {
	store     store.Store
	publisher events.Publisher
	issuer    *auth.TokenIssuer
	metrics   *metrics.Server
	clock     clockwork.Clock
	sseHub    *sseHub
	presence  *presence.Tracker
	docLocks  docLocks
}

// docLocks serializes writes per document topic. The lock is held across the
// store write and the publish, so snapshots of one document go out in the
// order they were committed and subscribers see commandId increase.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	sync.Mutex
	refs int
}

// lock acquires the lock for topic and returns its release func.
func (l *docLocks) lock(topic string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*docLock)
	}
	dl, ok := l.locks[topic]
	if !ok {
		dl = &docLock{}
		l.locks[topic] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.Lock()
	return func() {
		dl.Unlock()
		l.mu.Lock()
		if dl.refs--; dl.refs == 0 {
			delete(l.locks, topic)
		}
		l.mu.Unlock()
	}
}

// NewSessionServer returns a SessionServer backed by the given store and
// publisher. m may be nil.
func NewSessionServer(s store.Store, p events.Publisher, iss *auth.TokenIssuer, m *metrics.Server) *SessionServer {
	return &SessionServer{
		store:     s,
		publisher: p,
		issuer:    iss,
		metrics:   m,
		clock:     clockwork.NewRealClock(),
		sseHub:    newSSEHub(),
		presence:  presence.New(nil),
	}
}

// WithClock replaces the clock used for document timestamps.
func (s *SessionServer) WithClock(c clockwork.Clock) *SessionServer {
	s.clock = c
	return s
}

// WithPresence replaces the bridge roster, e.g. one with a running reaper.
func (s *SessionServer) WithPresence(t *presence.Tracker) *SessionServer {
	s.presence = t
	return s
}

// publishDoc fans a document snapshot out to NATS and SSE subscribers.
// Both are best-effort; failures are logged but do not fail the write.
func (s *SessionServer) publishDoc(ctx context.Context, topic string, doc any) {
	if err := s.publisher.Publish(ctx, topic, doc); err != nil {
		slog.Warn("failed to publish document", "topic", topic, "error", err)
		if s.metrics != nil {
			s.metrics.PublishErrors.WithLabelValues("nats").Inc()
		}
	}
	s.broadcastEvent(topic, doc)
}

// inputError indicates invalid user input.
// Transport layers map this to 400.
type inputError string

func (e inputError) Error() string { return string(e) }

// SignInAnonymously issues a fresh presenter identity.
func (s *SessionServer) SignInAnonymously() (*auth.Identity, error) {
	return s.issuer.SignInAnonymously()
}

// CreateSession creates an empty session owned by presenterUID.
func (s *SessionServer) CreateSession(ctx context.Context, presenterUID string) (*model.Session, error) {
	if presenterUID == "" {
		return nil, inputError("presenterUid is required")
	}
	id, err := idgen.SessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	now := s.clock.Now().UTC()
	sess := &model.Session{
		ID:           id,
		PresenterUID: presenterUID,
		SlideIndex:   0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := model.ValidateSession(sess); err != nil {
		return nil, inputError(err.Error())
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	slog.Info("session created", "session_id", sess.ID, "presenter_uid", presenterUID)
	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}
	s.publishDoc(ctx, events.SessionTopic(sess.ID), sess)
	return sess, nil
}

// SendCommand merges command and a fresh commandId into the session.
func (s *SessionServer) SendCommand(ctx context.Context, sessionID, presenterUID, command string) (*model.Session, error) {
	if sessionID == "" {
		return nil, inputError("session id is required")
	}
	cmd, err := model.ParseCommand(strings.TrimSpace(command))
	if err != nil {
		return nil, inputError(err.Error())
	}

	topic := events.SessionTopic(sessionID)
	defer s.docLocks.lock(topic)()

	sess, err := s.store.MergeCommand(ctx, sessionID, presenterUID, cmd, s.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}

	slog.Debug("command sent", "session_id", sessionID, "command", cmd, "command_id", sess.CommandID)
	if s.metrics != nil {
		s.metrics.CommandsSent.WithLabelValues(cmd.String()).Inc()
	}
	s.publishDoc(ctx, topic, sess)
	return sess, nil
}

// SetActiveSession overwrites the active pointer. The session must exist.
func (s *SessionServer) SetActiveSession(ctx context.Context, sessionID, presenterUID string) (*model.ActivePointer, error) {
	if sessionID == "" {
		return nil, inputError("sessionId is required")
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("set active session: %w", err)
	}

	p := &model.ActivePointer{
		SessionID:    sessionID,
		PresenterUID: presenterUID,
		UpdatedAt:    s.clock.Now().UTC(),
	}
	if err := model.ValidateActivePointer(p); err != nil {
		return nil, inputError(err.Error())
	}
	defer s.docLocks.lock(events.TopicActive)()
	if err := s.store.SetActive(ctx, p); err != nil {
		return nil, fmt.Errorf("set active session: %w", err)
	}

	slog.Info("active session set", "session_id", sessionID, "presenter_uid", presenterUID)
	if s.metrics != nil {
		s.metrics.ActiveChanges.Inc()
	}
	s.publishDoc(ctx, events.TopicActive, p)
	return p, nil
}

func (s *SessionServer) GetSession(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, inputError("session id is required")
	}
	return s.store.GetSession(ctx, id)
}

func (s *SessionServer) GetActive(ctx context.Context) (*model.ActivePointer, error) {
	return s.store.GetActive(ctx)
}

func (s *SessionServer) ListSessions(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	if filter.Limit < 0 {
		return nil, inputError("limit must be >= 0")
	}
	return s.store.ListSessions(ctx, filter)
}

// RecordHeartbeat notes that a bridge is listening.
func (s *SessionServer) RecordHeartbeat(hb presence.Heartbeat) error {
	if hb.BridgeID == "" {
		return inputError("bridgeId is required")
	}
	s.presence.Record(hb)
	return nil
}

// ListBridges returns the bridge roster, optionally without stale bridges.
func (s *SessionServer) ListBridges(liveOnly bool) []presence.Entry {
	return s.presence.Roster(liveOnly)
}
