package store

import (
	"context"
	"errors"
	"time"

	"github.com/alfredjeanlab/klicker/internal/model"
)

// ErrNotFound is returned when a session or the active pointer does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for the session documents.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error)
	// MergeCommand merges presenterUid, command, a fresh commandId and
	// updatedAt into the session and returns the resulting document.
	MergeCommand(ctx context.Context, id, presenterUID string, cmd model.Command, now time.Time) (*model.Session, error)

	// Active session pointer (singleton, full overwrite)
	SetActive(ctx context.Context, p *model.ActivePointer) error
	GetActive(ctx context.Context) (*model.ActivePointer, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
