// Package client provides a transport-agnostic interface for the session
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/klicker/internal/auth"
	"github.com/alfredjeanlab/klicker/internal/model"
)

var (
	// ErrStoreUnavailable covers transport failures and server-side (5xx)
	// errors: the document store could not be reached or failed.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized matches 401 responses; the caller should sign in again.
	ErrUnauthorized = errors.New("unauthorized")
)

// Client is the interface the presenter front ends and the CLI use to talk
// to the session service. Calls are not retried.
type Client interface {
	// Identity
	SignInAnonymously(ctx context.Context) (*auth.Identity, error)
	SetToken(token string)

	// Presenter writes
	CreateSession(ctx context.Context) (*model.Session, error)
	SendCommand(ctx context.Context, sessionID string, cmd model.Command) (*model.Session, error)
	SetActiveSession(ctx context.Context, sessionID string) (*model.ActivePointer, error)

	// Reads
	GetSession(ctx context.Context, id string) (*model.Session, error)
	GetActive(ctx context.Context) (*model.ActivePointer, error)
	ListSessions(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}
