package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alfredjeanlab/klicker/internal/presence"
)

// DefaultHeartbeatInterval is how often a bridge reports itself.
const DefaultHeartbeatInterval = 15 * time.Second

// Reporter sends heartbeats. client.HTTPClient satisfies it.
type Reporter interface {
	Heartbeat(ctx context.Context, hb presence.Heartbeat) error
}

// HeartbeatConfig describes the bridge in its heartbeats.
type HeartbeatConfig struct {
	BridgeID  string
	Host      string
	Transport string
	Interval  time.Duration
	Clock     clockwork.Clock
}

// RunHeartbeat reports the bridge and the session it follows until ctx is
// done. Failures are logged at debug level; the next beat tries again.
func (b *Bridge) RunHeartbeat(ctx context.Context, r Reporter, cfg HeartbeatConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHeartbeatInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	beat := func() {
		hb := presence.Heartbeat{
			BridgeID:  cfg.BridgeID,
			Host:      cfg.Host,
			Injector:  b.injector.Name(),
			Transport: cfg.Transport,
			SessionID: b.CurrentSession(),
		}
		if err := r.Heartbeat(ctx, hb); err != nil && ctx.Err() == nil {
			slog.Debug("heartbeat failed", "error", err)
		}
	}

	ticker := cfg.Clock.NewTicker(cfg.Interval)
	defer ticker.Stop()

	beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			beat()
		}
	}
}
