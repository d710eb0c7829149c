// Package sync periodically exports the session documents as JSONL to
// off-box destinations (S3, a git repository).
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/klicker/internal/model"
	"github.com/alfredjeanlab/klicker/internal/store"
)

// FormatVersion is written in every export header.
const FormatVersion = "1"

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	SessionCount int       `json:"session_count"`
	HasActive    bool      `json:"has_active"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every session, sorted by id, followed by the active
// pointer when one is set. now stamps the header.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer, now time.Time) error {
	sessions, err := s.ListSessions(ctx, model.SessionFilter{})
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID < sessions[j].ID
	})

	active, err := s.GetActive(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("get active pointer: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      FormatVersion,
		Type:         "header",
		Timestamp:    now.UTC(),
		SessionCount: len(sessions),
		HasActive:    active != nil,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, sess := range sessions {
		if err := enc.Encode(record{Type: model.CollectionSessions, Data: sess}); err != nil {
			return fmt.Errorf("encode session %s: %w", sess.ID, err)
		}
	}
	if active != nil {
		if err := enc.Encode(record{Type: model.CollectionActive, Data: active}); err != nil {
			return fmt.Errorf("encode active pointer: %w", err)
		}
	}
	return nil
}
