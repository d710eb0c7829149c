package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/klicker/internal/events"
	"github.com/alfredjeanlab/klicker/internal/metrics"
)

// NATSSource watches documents through their NATS topics. Each watch first
// subscribes and then fetches the current document over HTTP, so no write
// can fall between the two. After a NATS reconnect every open watch fetches
// again to recover updates published while the connection was down.
type NATSSource struct {
	sub     events.Subscriber
	fetch   Fetcher
	metrics *metrics.Bridge

	mu      sync.Mutex
	watches map[chan struct{}]struct{}
}

// NewNATSSource returns a source reading from sub. m may be nil.
func NewNATSSource(sub events.Subscriber, fetch Fetcher, m *metrics.Bridge) *NATSSource {
	return &NATSSource{
		sub:     sub,
		fetch:   fetch,
		metrics: m,
		watches: make(map[chan struct{}]struct{}),
	}
}

// Reconnected makes every open watch re-fetch its document. Wire it to the
// NATS reconnect handler.
func (s *NATSSource) Reconnected() {
	if s.metrics != nil {
		s.metrics.SourceReconnects.Inc()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watches {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *NATSSource) Watch(ctx context.Context, ref DocRef) (<-chan Snapshot, func(), error) {
	msgs, unsubscribe, err := s.sub.Subscribe(ref.Topic())
	if err != nil {
		return nil, nil, fmt.Errorf("watching %s: %w", ref, err)
	}

	refetch := make(chan struct{}, 1)
	refetch <- struct{}{} // initial snapshot
	s.mu.Lock()
	s.watches[refetch] = struct{}{}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Snapshot, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)
		defer unsubscribe()

		send := func(snap Snapshot) bool {
			select {
			case out <- snap:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-refetch:
				snap, err := fetchSnapshot(ctx, s.fetch, ref)
				if err != nil {
					if ctx.Err() == nil {
						slog.Warn("fetch failed; waiting for the next change", "doc", ref.String(), "error", err)
					}
					continue
				}
				if !send(snap) {
					return
				}
			case data, ok := <-msgs:
				if !ok {
					return
				}
				if !send(Snapshot{Exists: true, Data: data}) {
					return
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watches, refetch)
			s.mu.Unlock()
			cancel()
			<-done
		})
	}
	return out, stop, nil
}
