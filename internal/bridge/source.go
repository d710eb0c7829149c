// Package bridge follows the active session and turns each new command into
// a local arrow-key press.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/klicker/internal/client"
	"github.com/alfredjeanlab/klicker/internal/events"
	"github.com/alfredjeanlab/klicker/internal/model"
)

// DocRef names a watched document.
type DocRef struct {
	Collection string
	ID         string
}

// PointerRef is the active session pointer document.
var PointerRef = DocRef{Collection: model.CollectionActive, ID: model.ActiveDocID}

// SessionRef returns the ref of the session document id.
func SessionRef(id string) DocRef {
	return DocRef{Collection: model.CollectionSessions, ID: id}
}

// Topic returns the event topic the document is published on.
func (r DocRef) Topic() string {
	return events.DocTopic(r.Collection, r.ID)
}

func (r DocRef) String() string {
	return r.Collection + "/" + r.ID
}

// Snapshot is one observed state of a document. Exists is false when the
// document is absent.
type Snapshot struct {
	Exists bool
	Data   json.RawMessage
}

// Source delivers snapshots of a document: the current state first, then
// every change. The returned cancel function stops delivery, closes the
// channel and returns only once no further snapshot can be sent.
type Source interface {
	Watch(ctx context.Context, ref DocRef) (<-chan Snapshot, func(), error)
}

// Fetcher reads the current JSON of a document. client.HTTPClient satisfies it.
type Fetcher interface {
	GetDocument(ctx context.Context, collection, id string) (json.RawMessage, error)
}

// fetchSnapshot reads ref through f. A missing document is a snapshot with
// Exists false, not an error.
func fetchSnapshot(ctx context.Context, f Fetcher, ref DocRef) (Snapshot, error) {
	data, err := f.GetDocument(ctx, ref.Collection, ref.ID)
	if errors.Is(err, client.ErrNotFound) {
		return Snapshot{Exists: false}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching %s: %w", ref, err)
	}
	return Snapshot{Exists: true, Data: data}, nil
}
