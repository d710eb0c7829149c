package bridge

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultPollInterval is how often PollSource reads a watched document.
const DefaultPollInterval = 500 * time.Millisecond

// PollSource watches documents by reading them at a fixed interval. A
// snapshot is emitted on the first read and whenever the document's
// existence or content changes. It is used when no NATS server is
// configured.
type PollSource struct {
	fetch    Fetcher
	interval time.Duration
	clock    clockwork.Clock
}

func NewPollSource(fetch Fetcher, interval time.Duration, clock clockwork.Clock) *PollSource {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PollSource{fetch: fetch, interval: interval, clock: clock}
}

func (s *PollSource) Watch(ctx context.Context, ref DocRef) (<-chan Snapshot, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Snapshot, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)

		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()

		var (
			last    Snapshot
			emitted bool
		)
		poll := func() bool {
			snap, err := fetchSnapshot(ctx, s.fetch, ref)
			if err != nil {
				if ctx.Err() == nil {
					slog.Debug("poll failed", "doc", ref.String(), "error", err)
				}
				return true
			}
			if emitted && snap.Exists == last.Exists && bytes.Equal(snap.Data, last.Data) {
				return true
			}
			select {
			case out <- snap:
				last, emitted = snap, true
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !poll() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if !poll() {
					return
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	return out, stop, nil
}
