package postgres

import (
	"database/sql"

	"github.com/alfredjeanlab/klicker/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanSession scans a single row into a model.Session.
// The row must contain columns in the order defined by sessionColumns.
func scanSession(row scannable) (*model.Session, error) {
	var (
		s       model.Session
		command sql.NullString
	)
	err := row.Scan(
		&s.ID,
		&s.PresenterUID,
		&command,
		&s.CommandID,
		&s.SlideIndex,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Command = model.Command(command.String)
	return &s, nil
}

// nullString returns a sql.NullString that is valid only when s is non-empty.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
