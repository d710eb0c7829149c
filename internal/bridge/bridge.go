package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/klicker/internal/metrics"
	"github.com/alfredjeanlab/klicker/internal/model"
)

// Bridge follows the active pointer and presses one key for each new command
// in the pointed-to session. It holds at most one session subscription.
type Bridge struct {
	source   Source
	injector Injector
	metrics  *metrics.Bridge

	mu               sync.Mutex // guards currentSessionID for readers outside Run
	currentSessionID string
	lastCommandID    int64
	sessionCh        <-chan Snapshot
	cancelSession    func()
}

// New returns a bridge reading from source and pressing keys through inj.
// m may be nil.
func New(source Source, inj Injector, m *metrics.Bridge) *Bridge {
	return &Bridge{source: source, injector: inj, metrics: m}
}

// CurrentSession returns the id of the session being followed, or "".
func (b *Bridge) CurrentSession() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentSessionID
}

// Run watches the active pointer until ctx is done. Snapshots are handled
// one at a time on the calling goroutine.
func (b *Bridge) Run(ctx context.Context) error {
	pointerCh, cancelPointer, err := b.source.Watch(ctx, PointerRef)
	if err != nil {
		return fmt.Errorf("watching active pointer: %w", err)
	}
	defer cancelPointer()
	defer b.closeSession()

	slog.Info("bridge running; waiting for an active session", "injector", b.injector.Name())
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-pointerCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("active pointer watch ended")
			}
			b.handlePointer(ctx, snap)
		case snap, ok := <-b.sessionCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				slog.Warn("session watch ended", "session_id", b.currentSessionID)
				b.sessionCh = nil
				continue
			}
			b.handleSession(ctx, snap)
		}
	}
}

func (b *Bridge) handlePointer(ctx context.Context, snap Snapshot) {
	if !snap.Exists {
		slog.Warn("no active session pointer; keeping current subscription", "session_id", b.currentSessionID)
		return
	}
	var p model.ActivePointer
	if err := json.Unmarshal(snap.Data, &p); err != nil {
		slog.Warn("malformed active pointer", "error", err)
		return
	}
	if p.SessionID == "" {
		slog.Warn("active pointer has no sessionId")
		return
	}
	if p.SessionID == b.currentSessionID {
		return
	}

	// Until the new watch opens nothing is followed, so a failed watch is
	// retried by the next pointer snapshot.
	b.closeSession()
	b.setCurrent("")
	b.lastCommandID = 0
	ch, cancel, err := b.source.Watch(ctx, SessionRef(p.SessionID))
	if err != nil {
		slog.Error("failed to watch session", "session_id", p.SessionID, "error", err)
		return
	}
	b.setCurrent(p.SessionID)
	b.sessionCh, b.cancelSession = ch, cancel
	if b.metrics != nil {
		b.metrics.SessionSwitches.Inc()
	}
	slog.Info("listening to session", "session_id", p.SessionID)
}

func (b *Bridge) handleSession(ctx context.Context, snap Snapshot) {
	if !snap.Exists {
		return
	}
	var sess model.Session
	if err := json.Unmarshal(snap.Data, &sess); err != nil {
		slog.Warn("malformed session", "session_id", b.currentSessionID, "error", err)
		return
	}
	if !sess.HasCommand() {
		return
	}
	if sess.CommandID <= b.lastCommandID {
		slog.Debug("ignoring handled command", "session_id", sess.ID, "command_id", sess.CommandID)
		if b.metrics != nil {
			b.metrics.Duplicates.Inc()
		}
		return
	}
	b.lastCommandID = sess.CommandID

	if !sess.Command.IsValid() {
		slog.Warn("ignoring unrecognized command", "session_id", sess.ID, "command", sess.Command)
		if b.metrics != nil {
			b.metrics.Unrecognized.Inc()
		}
		return
	}

	slog.Info("received command", "session_id", sess.ID, "command", sess.Command, "command_id", sess.CommandID)
	status := "ok"
	if err := b.injector.Press(ctx, sess.Command); err != nil {
		slog.Error("key press failed", "command", sess.Command, "error", err)
		status = "error"
	}
	if b.metrics != nil {
		b.metrics.KeyPresses.WithLabelValues(sess.Command.String(), status).Inc()
	}
}

func (b *Bridge) setCurrent(id string) {
	b.mu.Lock()
	b.currentSessionID = id
	b.mu.Unlock()
}

func (b *Bridge) closeSession() {
	if b.cancelSession != nil {
		b.cancelSession()
	}
	b.sessionCh, b.cancelSession = nil, nil
}
