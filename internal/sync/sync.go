package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alfredjeanlab/klicker/internal/store"
)

// Destination receives each export (an S3 object, a file in a git clone).
type Destination interface {
	Write(ctx context.Context, data []byte) error
	Name() string
}

// Scheduler exports the session documents on an interval. A destination is
// only written when the documents changed since its last successful write;
// the header timestamp does not count as a change.
type Scheduler struct {
	store    store.Store
	dests    []Destination
	interval time.Duration
	logger   *slog.Logger
	clock    clockwork.Clock

	mu      sync.Mutex
	written map[string][sha256.Size]byte

	stop context.CancelFunc
	done chan struct{}
}

func NewScheduler(s store.Store, dests []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		dests:    dests,
		interval: interval,
		logger:   logger,
		clock:    clockwork.NewRealClock(),
		written:  make(map[string][sha256.Size]byte),
	}
}

// WithClock replaces the clock driving the ticker and header timestamps.
func (s *Scheduler) WithClock(c clockwork.Clock) *Scheduler {
	s.clock = c
	return s
}

// Start syncs once immediately, then every interval until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.SyncOnce(ctx)
		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.SyncOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sync.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	s.stop()
	<-s.done
}

// SyncOnce exports and writes to each destination whose copy is out of
// date. A failed destination is retried on the next round.
func (s *Scheduler) SyncOnce(ctx context.Context) {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf, s.clock.Now()); err != nil {
		s.logger.Error("sync export failed", "err", err)
		return
	}
	data := buf.Bytes()
	digest := sha256.Sum256(documentLines(data))

	s.mu.Lock()
	defer s.mu.Unlock()

	var wrote, skipped, failed int
	for _, d := range s.dests {
		if prev, ok := s.written[d.Name()]; ok && prev == digest {
			skipped++
			continue
		}
		if err := d.Write(ctx, data); err != nil {
			failed++
			s.logger.Error("sync destination write failed", "destination", d.Name(), "err", err)
			continue
		}
		s.written[d.Name()] = digest
		wrote++
	}
	s.logger.Info("sync completed", "wrote", wrote, "unchanged", skipped, "failed", failed, "bytes", len(data))
}

// documentLines strips the header record, which carries the export time.
func documentLines(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[i+1:]
	}
	return nil
}
