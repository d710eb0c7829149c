package sync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/klicker/internal/model"
	"github.com/alfredjeanlab/klicker/internal/store"
)

// mockStore serves the documents an export reads. Writes are not used.
type mockStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	active   *model.ActivePointer
	listErr  error
}

func newMockStore() *mockStore {
	return &mockStore{sessions: make(map[string]*model.Session)}
}

func (m *mockStore) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *mockStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) ListSessions(_ context.Context, _ model.SessionFilter) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (m *mockStore) MergeCommand(context.Context, string, string, model.Command, time.Time) (*model.Session, error) {
	return nil, errors.New("not implemented")
}

func (m *mockStore) SetActive(_ context.Context, p *model.ActivePointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = p
	return nil
}

func (m *mockStore) GetActive(context.Context) (*model.ActivePointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, store.ErrNotFound
	}
	return m.active, nil
}

func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error { return nil }

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
