package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/klicker/internal/bridge"
	"github.com/alfredjeanlab/klicker/internal/events"
	"github.com/alfredjeanlab/klicker/internal/idgen"
	"github.com/alfredjeanlab/klicker/internal/metrics"
)

var bridgeCmd = &cobra.Command{
	Use:     "bridge",
	Short:   "Follow the active session and press arrow keys on this machine",
	GroupID: "present",
	Long: `Runs on the presenting machine. The bridge follows the active session
pointer and turns every new next/prev command into a right/left arrow key
press in the focused window.

Change events arrive over NATS when --nats-url is set; otherwise the bridge
polls the session service.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := bridge.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if name, _ := cmd.Flags().GetString("injector"); name != "" {
			cfg.Injector = name
		}
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			cfg.Injector = "log"
		}
		injector, err := bridge.NewInjector(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m := metrics.NewBridge(reg)
		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			stopMetrics := serveBridgeMetrics(addr, reg)
			defer stopMetrics()
		}

		var (
			source    bridge.Source
			transport string
		)
		if natsURL != "" {
			var natsSource atomic.Pointer[bridge.NATSSource]
			sub, err := events.NewNATSSubscriber(natsURL,
				nats.Name("klicker-bridge"),
				nats.ReconnectHandler(func(*nats.Conn) {
					slog.Info("NATS reconnected; re-reading documents")
					if src := natsSource.Load(); src != nil {
						src.Reconnected()
					}
				}),
				nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
					slog.Warn("NATS disconnected", "error", err)
				}),
			)
			if err != nil {
				return err
			}
			defer sub.Close()
			src := bridge.NewNATSSource(sub, kc, m)
			natsSource.Store(src)
			source, transport = src, "nats"
		} else {
			interval, _ := cmd.Flags().GetDuration("poll-interval")
			source, transport = bridge.NewPollSource(kc, interval, nil), "poll"
		}

		b := bridge.New(source, injector, m)

		if noHeartbeat, _ := cmd.Flags().GetBool("no-heartbeat"); !noHeartbeat {
			id, err := idgen.BridgeID()
			if err != nil {
				return err
			}
			host, _ := os.Hostname()
			go b.RunHeartbeat(ctx, kc, bridge.HeartbeatConfig{BridgeID: id, Host: host, Transport: transport})
		}

		slog.Info("bridge starting", "url", serverURL, "transport", transport, "injector", injector.Name())
		if err := b.Run(ctx); err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
		slog.Info("bridge stopped")
		return nil
	},
}

// bridgeMetricsHandler exposes the bridge's registry on GET /metrics.
func bridgeMetricsHandler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// serveBridgeMetrics listens on addr in the background and returns a func
// that shuts the listener down.
func serveBridgeMetrics(addr string, g prometheus.Gatherer) func() {
	srv := &http.Server{Addr: addr, Handler: bridgeMetricsHandler(g), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("bridge metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("bridge metrics server failed", "addr", addr, "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func defaultBridgeConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "klicker", "bridge.toml")
}

func init() {
	bridgeCmd.Flags().String("config", defaultBridgeConfigPath(), "bridge TOML config (injector and key codes)")
	bridgeCmd.Flags().String("injector", "", "key injector: auto, applescript, xdotool or log (overrides config)")
	bridgeCmd.Flags().Bool("dry-run", false, "log commands instead of pressing keys")
	bridgeCmd.Flags().Duration("poll-interval", bridge.DefaultPollInterval, "poll interval when NATS is not configured")
	bridgeCmd.Flags().Bool("no-heartbeat", false, "do not report this bridge to the service")
	bridgeCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9101 (disabled when empty)")
}
