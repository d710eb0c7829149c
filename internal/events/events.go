package events

import (
	"context"
	"strings"

	"github.com/alfredjeanlab/klicker/internal/model"
)

// Topic constants. Every document write is published on the topic of the
// document it changed, with the full document as payload.
const (
	// TopicPrefix is the root of all klicker subjects.
	TopicPrefix = "klicker"

	// TopicActive carries model.ActivePointer snapshots.
	TopicActive = TopicPrefix + "." + model.CollectionActive + "." + model.ActiveDocID

	// TopicSessionsAll matches every session topic (NATS wildcard).
	TopicSessionsAll = TopicPrefix + "." + model.CollectionSessions + ".*"

	// TopicAll matches every klicker topic.
	TopicAll = TopicPrefix + ".>"
)

// SessionTopic returns the topic carrying model.Session snapshots for id.
func SessionTopic(id string) string {
	return DocTopic(model.CollectionSessions, id)
}

// DocTopic returns the topic for the document collection/id. Dots in the id
// would split the NATS subject, so they are replaced.
func DocTopic(collection, id string) string {
	return TopicPrefix + "." + collection + "." + strings.ReplaceAll(id, ".", "_")
}

// Publisher is the interface for emitting document changes.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
