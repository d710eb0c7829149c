package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/klicker/internal/client"
	"github.com/alfredjeanlab/klicker/internal/config"
	"github.com/alfredjeanlab/klicker/internal/ui"
)

var (
	serverURL  string
	natsURL    string
	logLevel   string
	jsonOutput bool

	kc    *client.HTTPClient
	state *State
)

// defaultClientConfig reads the KLICKER_* client settings, falling back to
// built-in defaults when the environment is invalid.
func defaultClientConfig() *config.ClientConfig {
	cfg, err := config.LoadClient()
	if err != nil {
		return &config.ClientConfig{URL: "http://localhost:8080", LogLevel: slog.LevelInfo}
	}
	return cfg
}

// setupLogging installs a text slog handler on stderr at the given level.
func setupLogging(level string) error {
	lvl, err := config.ParseLogLevel(level)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

var rootCmd = &cobra.Command{
	Use:           "klicker <command>",
	Short:         "Remote slide clicker: presenter controls, session service and key-press bridge",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(logLevel); err != nil {
			return err
		}
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		var err error
		state, err = loadState()
		if err != nil {
			return fmt.Errorf("reading state: %w", err)
		}
		kc = client.NewHTTPClient(serverURL)
		if token := state.TokenFor(serverURL); token != "" {
			kc.SetToken(token)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if kc != nil {
			kc.Close()
		}
	},
}

func init() {
	defaults := defaultClientConfig()
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaults.URL, "session service URL (KLICKER_URL)")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", defaults.NATSURL, "NATS URL for change events (KLICKER_NATS_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaults.LogLevel.String(), "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "present", Title: "Presenting:"},
		&cobra.Group{ID: "sessions", Title: "Sessions:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Presenting
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(bridgeCmd)

	// Sessions
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(activeCmd)
	rootCmd.AddCommand(loginCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bridgesCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
