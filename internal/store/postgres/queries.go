package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/klicker/internal/model"
	"github.com/alfredjeanlab/klicker/internal/store"
)

// sessionColumns is the column list used for SELECT and RETURNING clauses on
// the sessions table.
const sessionColumns = `id, presenter_uid, command, command_id, slide_index, created_at, updated_at`

// defaultListLimit caps ListSessions when the filter sets no limit.
const defaultListLimit = 50

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateSession(ctx context.Context, db executor, s *model.Session) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, presenter_uid, command, command_id, slide_index, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID,
		s.PresenterUID,
		nullString(string(s.Command)),
		s.CommandID,
		s.SlideIndex,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func queryGetSession(ctx context.Context, db executor, id string) (*model.Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return s, nil
}

func queryListSessions(ctx context.Context, db executor, filter model.SessionFilter) ([]*model.Session, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if filter.PresenterUID != "" {
		rows, err = db.QueryContext(ctx,
			`SELECT `+sessionColumns+` FROM sessions WHERE presenter_uid = $1 ORDER BY created_at DESC LIMIT $2`,
			filter.PresenterUID, limit)
	} else {
		rows, err = db.QueryContext(ctx,
			`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC LIMIT $1`,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// queryMergeCommand bumps command_id to max(now_ms, previous+1) in the same
// statement that writes the command, so concurrent sends on one session
// still produce strictly increasing ids.
func queryMergeCommand(ctx context.Context, db executor, id, presenterUID string, cmd model.Command, now time.Time) (*model.Session, error) {
	row := db.QueryRowContext(ctx, `
		UPDATE sessions
		SET presenter_uid = $2,
			command = $3,
			command_id = GREATEST($4, command_id + 1),
			updated_at = $5
		WHERE id = $1
		RETURNING `+sessionColumns,
		id,
		presenterUID,
		string(cmd),
		now.UnixMilli(),
		now,
	)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("merge command into %s: %w", id, err)
	}
	return s, nil
}

func querySetActive(ctx context.Context, db executor, p *model.ActivePointer) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO active_pointer (id, session_id, presenter_uid, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			presenter_uid = EXCLUDED.presenter_uid,
			updated_at = EXCLUDED.updated_at`,
		model.ActiveDocID,
		p.SessionID,
		p.PresenterUID,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("set active session: %w", err)
	}
	return nil
}

func queryGetActive(ctx context.Context, db executor) (*model.ActivePointer, error) {
	row := db.QueryRowContext(ctx,
		`SELECT session_id, presenter_uid, updated_at FROM active_pointer WHERE id = $1`,
		model.ActiveDocID)
	var p model.ActivePointer
	err := row.Scan(&p.SessionID, &p.PresenterUID, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return &p, nil
}
