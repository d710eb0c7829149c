// Package timer implements the presenter's speaking-time stopwatch.
//
// Elapsed time is derived from absolute timestamps, never from counting
// ticks, so a late or skipped wake-up cannot make the display drift.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultLimitMinutes is the speaking-time limit a new Stopwatch starts with.
const DefaultLimitMinutes = 10

// Stopwatch is safe for concurrent use.
type Stopwatch struct {
	clock clockwork.Clock

	mu          sync.Mutex
	running     bool
	startedAt   time.Time
	accumulated time.Duration
	limit       int // minutes, >= 1

	changed chan struct{}
}

func New(clock clockwork.Clock) *Stopwatch {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Stopwatch{
		clock:   clock,
		limit:   DefaultLimitMinutes,
		changed: make(chan struct{}, 1),
	}
}

// Start is a no-op when already running.
func (s *Stopwatch) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.startedAt = s.clock.Now()
	s.notify()
}

// Pause folds the running interval into the accumulated total.
func (s *Stopwatch) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.accumulated += s.clock.Since(s.startedAt)
	s.running = false
	s.startedAt = time.Time{}
	s.notify()
}

// Toggle starts a paused stopwatch or pauses a running one and reports
// whether it is now running.
func (s *Stopwatch) Toggle() bool {
	if s.Running() {
		s.Pause()
		return false
	}
	s.Start()
	return true
}

// Reset stops the stopwatch and clears elapsed time. The limit is kept.
func (s *Stopwatch) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.startedAt = time.Time{}
	s.accumulated = 0
	s.notify()
}

func (s *Stopwatch) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Stopwatch) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Stopwatch) elapsedLocked() time.Duration {
	if !s.running {
		return s.accumulated
	}
	return s.accumulated + s.clock.Since(s.startedAt)
}

// SetLimit sets the limit in minutes. Values below 1 are clamped to 1.
func (s *Stopwatch) SetLimit(minutes int) {
	if minutes < 1 {
		minutes = 1
	}
	s.mu.Lock()
	s.limit = minutes
	s.mu.Unlock()
}

// Limit returns the limit in minutes.
func (s *Stopwatch) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// Over reports whether elapsed time is strictly past the limit.
func (s *Stopwatch) Over() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked() > time.Duration(s.limit)*time.Minute
}

// Ticks returns a channel that receives the elapsed time once per second
// while the stopwatch runs. No ticker exists while it is paused or reset.
// The channel is closed when ctx ends. Only one Ticks loop per Stopwatch is
// supported.
func (s *Stopwatch) Ticks(ctx context.Context) <-chan time.Duration {
	out := make(chan time.Duration, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-s.changed:
			default:
			}
			if !s.Running() {
				select {
				case <-ctx.Done():
					return
				case <-s.changed:
					continue
				}
			}

			ticker := s.clock.NewTicker(time.Second)
		running:
			for {
				select {
				case <-ctx.Done():
					ticker.Stop()
					return
				case <-s.changed:
					ticker.Stop()
					break running
				case <-ticker.Chan():
					select {
					case out <- s.Elapsed():
					default:
						// Consumer is behind; it will read the fresh value next time.
					}
				}
			}
		}
	}()
	return out
}

func (s *Stopwatch) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Format renders d as MM:SS. Minutes keep counting past 59.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
