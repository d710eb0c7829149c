// Package metrics defines the Prometheus collectors for the server and the
// bridge. Collectors are registered on an injected registry so tests can use
// a fresh one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "klicker"

// Server holds the session service collectors.
type Server struct {
	SessionsCreated prometheus.Counter
	CommandsSent    *prometheus.CounterVec // command
	ActiveChanges   prometheus.Counter
	PublishErrors   *prometheus.CounterVec // transport
	SSEClients      prometheus.Gauge
}

func NewServer(reg prometheus.Registerer) *Server {
	m := &Server{
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "sessions_created_total",
			Help:      "Sessions created.",
		}),
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "commands_total",
			Help:      "Commands merged into sessions, by command.",
		}, []string{"command"}),
		ActiveChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_changes_total",
			Help:      "Writes to the active session pointer.",
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "publish_errors_total",
			Help:      "Document snapshots that failed to publish, by transport.",
		}, []string{"transport"}),
		SSEClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "sse_clients",
			Help:      "Connected SSE clients.",
		}),
	}
	reg.MustRegister(m.SessionsCreated, m.CommandsSent, m.ActiveChanges, m.PublishErrors, m.SSEClients)
	return m
}

// Bridge holds the bridge collectors.
type Bridge struct {
	KeyPresses       *prometheus.CounterVec // command, status
	Duplicates       prometheus.Counter
	Unrecognized     prometheus.Counter
	SessionSwitches  prometheus.Counter
	SourceReconnects prometheus.Counter
}

func NewBridge(reg prometheus.Registerer) *Bridge {
	m := &Bridge{
		KeyPresses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "key_presses_total",
			Help:      "Key presses injected, by command and status.",
		}, []string{"command", "status"}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "duplicates_total",
			Help:      "Session snapshots ignored because their commandId was already handled.",
		}),
		Unrecognized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "unrecognized_commands_total",
			Help:      "Session snapshots carrying a command other than next or prev.",
		}),
		SessionSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "session_switches_total",
			Help:      "Times the bridge moved its subscription to a different session.",
		}),
		SourceReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "source_reconnects_total",
			Help:      "Event bus reconnects that triggered a document re-fetch.",
		}),
	}
	reg.MustRegister(m.KeyPresses, m.Duplicates, m.Unrecognized, m.SessionSwitches, m.SourceReconnects)
	return m
}
