// Package postgres stores sessions and the active pointer in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/klicker/internal/model"
	"github.com/alfredjeanlab/klicker/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements store.Store. The same type serves the pool and a
// transaction: inside RunInTransaction, exec is the *sql.Tx and db is nil.
type Store struct {
	db   *sql.DB
	exec executor
}

var _ store.Store = (*Store)(nil)

// New connects to databaseURL, sizes the pool for a small, write-light
// service and applies pending migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an open database without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, exec: db}
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	drv, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "klicker_schema_migrations"})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the pool. It is a no-op on a transaction-scoped Store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	return queryCreateSession(ctx, s.exec, sess)
}

func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	return queryGetSession(ctx, s.exec, id)
}

func (s *Store) ListSessions(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	return queryListSessions(ctx, s.exec, filter)
}

func (s *Store) MergeCommand(ctx context.Context, id, presenterUID string, cmd model.Command, now time.Time) (*model.Session, error) {
	return queryMergeCommand(ctx, s.exec, id, presenterUID, cmd, now)
}

func (s *Store) SetActive(ctx context.Context, p *model.ActivePointer) error {
	return querySetActive(ctx, s.exec, p)
}

func (s *Store) GetActive(ctx context.Context) (*model.ActivePointer, error) {
	return queryGetActive(ctx, s.exec)
}

// RunInTransaction runs fn against a transaction-scoped Store, committing
// when fn returns nil. Called on a transaction-scoped Store it joins the
// open transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Store{exec: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
