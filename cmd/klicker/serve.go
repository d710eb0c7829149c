package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/klicker/internal/auth"
	"github.com/alfredjeanlab/klicker/internal/config"
	"github.com/alfredjeanlab/klicker/internal/events"
	"github.com/alfredjeanlab/klicker/internal/metrics"
	"github.com/alfredjeanlab/klicker/internal/presence"
	"github.com/alfredjeanlab/klicker/internal/server"
	"github.com/alfredjeanlab/klicker/internal/store"
	"github.com/alfredjeanlab/klicker/internal/store/postgres"
	klsync "github.com/alfredjeanlab/klicker/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the session service (HTTP API, presenter page, gRPC health)",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// The service is configured from the environment, not the client state.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		slog.SetDefault(logger)

		st, err := postgres.New(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (KLICKER_NATS_URL not set); bridges will poll")
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		tracker := presence.New(nil)
		tracker.StartReaper(nil)

		issuer := auth.NewTokenIssuer(cfg.AuthSecret, cfg.TokenTTL)
		sessionServer := server.NewSessionServer(st, publisher, issuer, metrics.NewServer(reg)).WithPresence(tracker)
		grpcServer, healthServer := server.NewGRPCServer()

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			tracker.Stop()
			publisher.Close()
			st.Close()
			return err
		}
		go func() {
			logger.Info("gRPC health listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           sessionServer.NewHTTPHandler(reg, metrics.NewHTTP(reg)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		scheduler := startSync(cfg, st, logger)

		logger.Info("klicker server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Report NOT_SERVING first so load balancers drain.
		healthServer.Shutdown()

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		tracker.Stop()
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// startSync starts the export scheduler when a destination is configured.
func startSync(cfg *config.Config, st store.Store, logger *slog.Logger) *klsync.Scheduler {
	if cfg.SyncInterval <= 0 {
		return nil
	}
	var dests []klsync.Destination

	if cfg.SyncS3Bucket != "" {
		s3Dest, err := klsync.NewS3Destination(context.Background(), cfg.SyncS3Bucket, cfg.SyncS3Key, cfg.SyncS3Region, cfg.SyncS3Endpoint)
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}
	if cfg.SyncGitRepo != "" {
		dests = append(dests, klsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}
	if len(dests) == 0 {
		return nil
	}

	scheduler := klsync.NewScheduler(st, dests, cfg.SyncInterval, logger)
	scheduler.Start()
	logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
	return scheduler
}
