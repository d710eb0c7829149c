package events

import "context"

// NoopPublisher drops every snapshot. The server uses it when KLICKER_NATS_URL
// is unset; bridges then fall back to polling.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (NoopPublisher) Close() error { return nil }
