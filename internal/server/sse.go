package server

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// sseRetainedDocs bounds how many documents keep a replayable snapshot.
	sseRetainedDocs = 1000

	sseClientBuffer      = 16
	sseKeepaliveInterval = 15 * time.Second
)

// sseEvent is one document snapshot as sent to SSE clients.
type sseEvent struct {
	ID    uint64 // hub-wide sequence number
	Topic string
	Data  []byte // JSON-encoded document
}

// sseHub fans document snapshots out to connected SSE clients (the web
// presenter page and bridges without NATS). A snapshot supersedes every
// earlier one for the same document, so the hub keeps only the newest
// snapshot per topic. A reconnecting client replays those instead of the
// full history.
type sseHub struct {
	mu      sync.Mutex
	clients map[*sseClient]struct{}
	seq     uint64
	latest  map[string]*sseEvent
}

// sseClient is one connected consumer. A client that falls sseClientBuffer
// snapshots behind is cut off through lagged; it reconnects with
// Last-Event-ID and catches up from the retained snapshots.
type sseClient struct {
	topics []string // glob patterns; empty matches everything
	ch     chan *sseEvent
	lagged chan struct{}
	once   sync.Once
}

func newSSEHub() *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
		latest:  make(map[string]*sseEvent),
	}
}

// broadcast records payload as the newest snapshot of topic and delivers it
// to matching clients.
func (h *sseHub) broadcast(topic string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	evt := &sseEvent{ID: h.seq, Topic: topic, Data: payload}
	h.latest[topic] = evt
	if len(h.latest) > sseRetainedDocs {
		h.evictOldestLocked()
	}

	for c := range h.clients {
		if !c.matchesTopic(topic) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			c.once.Do(func() { close(c.lagged) })
		}
	}
}

func (h *sseHub) evictOldestLocked() {
	var oldest *sseEvent
	for _, evt := range h.latest {
		if oldest == nil || evt.ID < oldest.ID {
			oldest = evt
		}
	}
	delete(h.latest, oldest.Topic)
}

// subscribe registers a client. When replayFrom is non-nil it also returns
// the retained snapshots newer than *replayFrom that match topics, oldest
// first. Both happen under one lock so no snapshot is missed or doubled.
func (h *sseHub) subscribe(topics []string, replayFrom *uint64) (*sseClient, []*sseEvent) {
	c := &sseClient{
		topics: topics,
		ch:     make(chan *sseEvent, sseClientBuffer),
		lagged: make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if replayFrom == nil {
		return c, nil
	}
	return c, h.snapshotsSinceLocked(*replayFrom, c.matchesTopic)
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// snapshotsSince returns the retained snapshots with ID > lastID, oldest first.
func (h *sseHub) snapshotsSince(lastID uint64) []*sseEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotsSinceLocked(lastID, func(string) bool { return true })
}

func (h *sseHub) snapshotsSinceLocked(lastID uint64, match func(topic string) bool) []*sseEvent {
	var out []*sseEvent
	for topic, evt := range h.latest {
		if evt.ID > lastID && match(topic) {
			out = append(out, evt)
		}
	}
	slices.SortFunc(out, func(a, b *sseEvent) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// matchesTopic checks whether the client's topic filters match the given topic.
// An empty filter list matches all topics.
// Supports simple glob patterns: "klicker.sessions.*" matches
// "klicker.sessions.ses-abc".
func (c *sseClient) matchesTopic(topic string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if matchTopicPattern(pattern, topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic against a pattern.
// Supports "*" as a single-segment wildcard and ">" as a multi-segment
// suffix wildcard (NATS-style).
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patParts := strings.Split(pattern, ".")
	topParts := strings.Split(topic, ".")

	for i, pp := range patParts {
		if pp == ">" {
			// ">" matches one or more remaining segments.
			return i < len(topParts)
		}
		if i >= len(topParts) {
			return false
		}
		if pp != "*" && pp != topParts[i] {
			return false
		}
	}

	return len(patParts) == len(topParts)
}

// handleEventStream handles GET /v1/events/stream.
//
// Query: topics=<comma-separated patterns>, snapshot=true to start with the
// current snapshot of every matching document. A Last-Event-ID header
// replays the snapshots written after that event.
func (s *SessionServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var topics []string
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}

	var replayFrom *uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			replayFrom = &id
		}
	} else if r.URL.Query().Get("snapshot") == "true" {
		replayFrom = new(uint64)
	}

	client, replay := s.sseHub.subscribe(topics, replayFrom)
	defer s.sseHub.unsubscribe(client)
	if s.metrics != nil {
		s.metrics.SSEClients.Inc()
		defer s.metrics.SSEClients.Dec()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	for _, evt := range replay {
		writeSSEEvent(w, evt)
	}
	flusher.Flush()

	keepalive := s.clock.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.lagged:
			slog.Debug("dropping lagging SSE client", "remote", r.RemoteAddr)
			if s.metrics != nil {
				s.metrics.PublishErrors.WithLabelValues("sse_lagged").Inc()
			}
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.Chan():
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}

// broadcastEvent is called by publishDoc to fan a snapshot out to SSE clients.
func (s *SessionServer) broadcastEvent(topic string, doc any) {
	if s.sseHub == nil {
		return
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		slog.Warn("failed to marshal document for SSE broadcast", "topic", topic, "error", err)
		if s.metrics != nil {
			s.metrics.PublishErrors.WithLabelValues("sse").Inc()
		}
		return
	}
	s.sseHub.broadcast(topic, payload)
}
