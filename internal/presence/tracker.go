// Package presence tracks which bridges are listening, so a presenter can
// tell whether the laptop will react before pressing next.
//
// Bridges post a heartbeat every few seconds. A background reaper marks a
// bridge stale once its heartbeats stop and later evicts it.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Heartbeat is what a bridge reports about itself.
type Heartbeat struct {
	BridgeID  string `json:"bridgeId"`
	Host      string `json:"host,omitempty"`
	Injector  string `json:"injector,omitempty"`
	Transport string `json:"transport,omitempty"` // "nats" or "poll"
	SessionID string `json:"sessionId,omitempty"` // session the bridge follows
}

// Entry is one bridge's presence state.
type Entry struct {
	Heartbeat
	FirstSeen  time.Time `json:"firstSeen"`
	LastSeen   time.Time `json:"lastSeen"`
	IdleSecs   float64   `json:"idleSecs"`
	Heartbeats int64     `json:"heartbeats"`
	Stale      bool      `json:"stale,omitempty"`
	StaleAt    time.Time `json:"staleAt,omitzero"`
}

// ReaperConfig configures the background reaper.
type ReaperConfig struct {
	// StaleAfter is how long a bridge may go without a heartbeat before it
	// is marked stale. Default: 45 seconds.
	StaleAfter time.Duration

	// EvictAfter is how long a stale bridge stays listed. Default: 10 minutes.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans. Default: 15 seconds.
	SweepInterval time.Duration

	// OnStale is called outside the lock for each bridge newly marked stale.
	OnStale func(e Entry)
}

func (c *ReaperConfig) withDefaults() *ReaperConfig {
	out := ReaperConfig{}
	if c != nil {
		out = *c
	}
	if out.StaleAfter == 0 {
		out.StaleAfter = 45 * time.Second
	}
	if out.EvictAfter == 0 {
		out.EvictAfter = 10 * time.Minute
	}
	if out.SweepInterval == 0 {
		out.SweepInterval = 15 * time.Second
	}
	return &out
}

// Tracker maintains an in-memory roster of bridges.
type Tracker struct {
	clock clockwork.Clock

	mu      sync.RWMutex
	bridges map[string]*bridgeState

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type bridgeState struct {
	hb         Heartbeat
	firstSeen  time.Time
	lastSeen   time.Time
	heartbeats int64
	stale      bool
	staleAt    time.Time
}

func (s *bridgeState) entry(now time.Time) Entry {
	return Entry{
		Heartbeat:  s.hb,
		FirstSeen:  s.firstSeen,
		LastSeen:   s.lastSeen,
		IdleSecs:   now.Sub(s.lastSeen).Seconds(),
		Heartbeats: s.heartbeats,
		Stale:      s.stale,
		StaleAt:    s.staleAt,
	}
}

// New creates a tracker. A nil clock means the real clock.
func New(clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{clock: clock, bridges: make(map[string]*bridgeState)}
}

// Record stores a heartbeat. Heartbeats without a bridge id are ignored.
func (t *Tracker) Record(hb Heartbeat) {
	if hb.BridgeID == "" {
		return
	}

	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.bridges[hb.BridgeID]
	if !ok {
		state = &bridgeState{firstSeen: now}
		t.bridges[hb.BridgeID] = state
		slog.Info("presence: bridge connected", "bridge_id", hb.BridgeID, "host", hb.Host)
	}
	if state.stale {
		slog.Info("presence: bridge back", "bridge_id", hb.BridgeID)
		state.stale = false
		state.staleAt = time.Time{}
	}

	state.hb = hb
	state.lastSeen = now
	state.heartbeats++
}

// Roster returns all tracked bridges, most recently seen first. Stale
// bridges are included unless liveOnly is set.
func (t *Tracker) Roster(liveOnly bool) []Entry {
	now := t.clock.Now()
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]Entry, 0, len(t.bridges))
	for _, state := range t.bridges {
		if liveOnly && state.stale {
			continue
		}
		entries = append(entries, state.entry(now))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastSeen.Equal(entries[j].LastSeen) {
			return entries[i].BridgeID < entries[j].BridgeID
		}
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

// StartReaper launches the reaper goroutine. Call Stop to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	cfg = cfg.withDefaults()
	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"stale_after", cfg.StaleAfter,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := t.clock.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.Chan():
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := t.clock.Now()
	var newlyStale []Entry

	t.mu.Lock()
	for id, state := range t.bridges {
		if state.stale {
			if now.Sub(state.staleAt) > cfg.EvictAfter {
				delete(t.bridges, id)
			}
			continue
		}
		if now.Sub(state.lastSeen) > cfg.StaleAfter {
			state.stale = true
			state.staleAt = now
			newlyStale = append(newlyStale, state.entry(now))
		}
	}
	t.mu.Unlock()

	for _, e := range newlyStale {
		slog.Info("presence: bridge stale", "bridge_id", e.BridgeID, "idle_secs", e.IdleSecs)
		if cfg.OnStale != nil {
			cfg.OnStale(e)
		}
	}
}
