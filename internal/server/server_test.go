package server

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/alfredjeanlab/klicker/internal/auth"
	"github.com/alfredjeanlab/klicker/internal/events"
	"github.com/alfredjeanlab/klicker/internal/metrics"
	"github.com/alfredjeanlab/klicker/internal/model"
	"github.com/alfredjeanlab/klicker/internal/store"
)

type mockStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	active   *model.ActivePointer

	// failWith, when non-nil, is returned by every write.
	failWith error
}

func newMockStore() *mockStore {
	return &mockStore{sessions: make(map[string]*model.Session)}
}

func (m *mockStore) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	clone := *s
	m.sessions[s.ID] = &clone
	return nil
}

func (m *mockStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *mockStore) ListSessions(_ context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Session
	for _, s := range m.sessions {
		if filter.PresenterUID != "" && s.PresenterUID != filter.PresenterUID {
			continue
		}
		clone := *s
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *mockStore) MergeCommand(_ context.Context, id, presenterUID string, cmd model.Command, now time.Time) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	s.PresenterUID = presenterUID
	s.Command = cmd
	s.CommandID = nextCommandID(s.CommandID, now)
	s.UpdatedAt = now
	clone := *s
	return &clone, nil
}

// nextCommandID mirrors the GREATEST(now_ms, previous + 1) in the postgres
// MergeCommand query.
func nextCommandID(prev int64, now time.Time) int64 {
	return max(now.UnixMilli(), prev+1)
}

func (m *mockStore) SetActive(_ context.Context, p *model.ActivePointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	clone := *p
	m.active = &clone
	return nil
}

func (m *mockStore) GetActive(_ context.Context) (*model.ActivePointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, store.ErrNotFound
	}
	clone := *m.active
	return &clone, nil
}

func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error { return nil }

// published is one document handed to the publisher.
type published struct {
	Topic string
	Doc   json.RawMessage
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, doc any) error {
	data, _ := json.Marshal(doc)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{Topic: topic, Doc: data})
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Topic
	}
	return out
}

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	srv     *SessionServer
	store   *mockStore
	pub     *recordingPublisher
	clock   *clockwork.FakeClock
	reg     *prometheus.Registry
	metrics *metrics.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	reg := prometheus.NewRegistry()
	m := metrics.NewServer(reg)
	ms := newMockStore()
	pub := &recordingPublisher{}
	iss := auth.NewTokenIssuerWithClock("test-secret", time.Hour, clock)
	srv := NewSessionServer(ms, pub, iss, m).WithClock(clock)
	return &testEnv{srv: srv, store: ms, pub: pub, clock: clock, reg: reg, metrics: m}
}

func requireInputError(t *testing.T, err error) {
	t.Helper()
	var ie inputError
	if !errors.As(err, &ie) {
		t.Fatalf("expected inputError, got %v", err)
	}
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.srv.CreateSession(ctx, "anon-alice")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.PresenterUID != "anon-alice" || sess.SlideIndex != 0 {
		t.Errorf("got %+v", sess)
	}
	if sess.HasCommand() {
		t.Error("new session should carry no command")
	}
	if !sess.CreatedAt.Equal(testEpoch) || !sess.UpdatedAt.Equal(testEpoch) {
		t.Errorf("timestamps = %v/%v, want %v", sess.CreatedAt, sess.UpdatedAt, testEpoch)
	}
	if _, err := env.store.GetSession(ctx, sess.ID); err != nil {
		t.Errorf("session not stored: %v", err)
	}

	topics := env.pub.topics()
	if len(topics) != 1 || topics[0] != events.SessionTopic(sess.ID) {
		t.Errorf("published topics = %v", topics)
	}
	if got := testutil.ToFloat64(env.metrics.SessionsCreated); got != 1 {
		t.Errorf("sessions_created_total = %v, want 1", got)
	}
}

func TestCreateSession_DistinctIDs(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.srv.CreateSession(context.Background(), "anon-alice")
	if err != nil {
		t.Fatal(err)
	}
	b, err := env.srv.CreateSession(context.Background(), "anon-alice")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Fatalf("two sessions share id %q", a.ID)
	}
}

func TestCreateSession_Errors(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.srv.CreateSession(context.Background(), "")
	requireInputError(t, err)

	env.store.failWith = errors.New("connection refused")
	if _, err := env.srv.CreateSession(context.Background(), "anon-alice"); err == nil {
		t.Fatal("expected store error")
	}
	if len(env.pub.topics()) != 0 {
		t.Error("failed write must not publish")
	}
}

func TestSendCommand(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, err := env.srv.CreateSession(ctx, "anon-alice")
	if err != nil {
		t.Fatal(err)
	}

	first, err := env.srv.SendCommand(ctx, sess.ID, "anon-alice", "next")
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if first.Command != model.CommandNext || first.CommandID != testEpoch.UnixMilli() {
		t.Errorf("first = %+v", first)
	}

	// Same millisecond: the id still moves forward.
	second, err := env.srv.SendCommand(ctx, sess.ID, "anon-alice", "prev")
	if err != nil {
		t.Fatal(err)
	}
	if second.CommandID <= first.CommandID {
		t.Errorf("commandId did not increase: %d then %d", first.CommandID, second.CommandID)
	}
	if second.Command != model.CommandPrev {
		t.Errorf("command = %q, want prev", second.Command)
	}

	env.clock.Advance(time.Second)
	third, err := env.srv.SendCommand(ctx, sess.ID, "anon-alice", " next ")
	if err != nil {
		t.Fatal(err)
	}
	if third.CommandID != env.clock.Now().UnixMilli() {
		t.Errorf("commandId = %d, want wall-clock ms %d", third.CommandID, env.clock.Now().UnixMilli())
	}

	want := events.SessionTopic(sess.ID)
	for _, topic := range env.pub.topics() {
		if topic != want {
			t.Errorf("published on %q, want %q", topic, want)
		}
	}
	if got := testutil.ToFloat64(env.metrics.CommandsSent.WithLabelValues("next")); got != 2 {
		t.Errorf("commands_total{next} = %v, want 2", got)
	}
}

// gatedStore holds the first MergeCommand after it commits until release
// is closed.
type gatedStore struct {
	*mockStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) MergeCommand(ctx context.Context, id, presenterUID string, cmd model.Command, now time.Time) (*model.Session, error) {
	sess, err := g.mockStore.MergeCommand(ctx, id, presenterUID, cmd, now)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return sess, err
}

func TestSendCommand_ConcurrentSendsPublishInOrder(t *testing.T) {
	gs := &gatedStore{mockStore: newMockStore(), entered: make(chan struct{}), release: make(chan struct{})}
	pub := &recordingPublisher{}
	clock := clockwork.NewFakeClockAt(testEpoch)
	srv := NewSessionServer(gs, pub, auth.NewTokenIssuerWithClock("test-secret", time.Hour, clock), nil).WithClock(clock)
	ctx := context.Background()

	sess, err := srv.CreateSession(ctx, "anon-alice")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := srv.SendCommand(ctx, sess.ID, "anon-alice", "prev"); err != nil {
			t.Errorf("first send: %v", err)
		}
	}()
	<-gs.entered

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		if _, err := srv.SendCommand(ctx, sess.ID, "anon-alice", "next"); err != nil {
			t.Errorf("second send: %v", err)
		}
	}()
	select {
	case <-secondDone:
		t.Fatal("second send finished while the first was still publishing")
	case <-time.After(100 * time.Millisecond):
	}

	close(gs.release)
	wg.Wait()
	<-secondDone

	pub.mu.Lock()
	defer pub.mu.Unlock()
	var ids []int64
	var cmds []model.Command
	for _, m := range pub.msgs {
		if m.Topic != events.SessionTopic(sess.ID) {
			continue
		}
		var doc model.Session
		if err := json.Unmarshal(m.Doc, &doc); err != nil {
			t.Fatal(err)
		}
		if doc.HasCommand() {
			ids = append(ids, doc.CommandID)
			cmds = append(cmds, doc.Command)
		}
	}
	if len(ids) != 2 || ids[0] >= ids[1] {
		t.Fatalf("published commandIds = %v, want two increasing", ids)
	}
	if cmds[0] != model.CommandPrev || cmds[1] != model.CommandNext {
		t.Fatalf("published commands = %v, want [prev next]", cmds)
	}
}

func TestDocLocks_ReleaseForgetsTopic(t *testing.T) {
	var l docLocks
	unlockA := l.lock("a")
	unlockB := l.lock("b") // different topics do not block each other
	unlockA()
	unlockB()
	if len(l.locks) != 0 {
		t.Fatalf("locks = %v, want none left", l.locks)
	}
}

func TestSendCommand_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, err := env.srv.CreateSession(ctx, "anon-alice")
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.srv.SendCommand(ctx, sess.ID, "anon-alice", "jump")
	requireInputError(t, err)
	if !strings.Contains(err.Error(), `"jump"`) {
		t.Errorf("error %q should name the rejected command", err)
	}

	_, err = env.srv.SendCommand(ctx, "", "anon-alice", "next")
	requireInputError(t, err)

	_, err = env.srv.SendCommand(ctx, "ses-missing", "anon-alice", "next")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing session: err = %v, want ErrNotFound", err)
	}
}

func TestSetActiveSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.srv.CreateSession(ctx, "anon-alice")
	if err != nil {
		t.Fatal(err)
	}
	b, err := env.srv.CreateSession(ctx, "anon-alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.srv.SetActiveSession(ctx, a.ID, "anon-alice"); err != nil {
		t.Fatal(err)
	}
	p, err := env.srv.SetActiveSession(ctx, b.ID, "anon-alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.SessionID != b.ID {
		t.Errorf("pointer = %q, want %q", p.SessionID, b.ID)
	}

	got, err := env.srv.GetActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.SessionID != b.ID {
		t.Errorf("stored pointer = %q, want the later session %q", got.SessionID, b.ID)
	}

	topics := env.pub.topics()
	if topics[len(topics)-1] != events.TopicActive {
		t.Errorf("last published topic = %q, want %q", topics[len(topics)-1], events.TopicActive)
	}
	if n := testutil.ToFloat64(env.metrics.ActiveChanges); n != 2 {
		t.Errorf("active_changes_total = %v, want 2", n)
	}
}

func TestSetActiveSession_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.srv.SetActiveSession(ctx, "", "anon-alice")
	requireInputError(t, err)

	_, err = env.srv.SetActiveSession(ctx, "ses-missing", "anon-alice")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := env.srv.GetActive(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("pointer should stay unset, err = %v", err)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	env := newTestEnv(t)
	env.pub.err = errors.New("nats: connection closed")

	if _, err := env.srv.CreateSession(context.Background(), "anon-alice"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if got := testutil.ToFloat64(env.metrics.PublishErrors.WithLabelValues("nats")); got != 1 {
		t.Errorf("publish_errors_total{nats} = %v, want 1", got)
	}
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, uid := range []string{"anon-alice", "anon-bob", "anon-alice"} {
		if _, err := env.srv.CreateSession(ctx, uid); err != nil {
			t.Fatal(err)
		}
		env.clock.Advance(time.Second)
	}

	all, err := env.srv.ListSessions(ctx, model.SessionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
	alice, err := env.srv.ListSessions(ctx, model.SessionFilter{PresenterUID: "anon-alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(alice) != 2 {
		t.Errorf("len(alice) = %d, want 2", len(alice))
	}
	_, err = env.srv.ListSessions(ctx, model.SessionFilter{Limit: -1})
	requireInputError(t, err)
}
