package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string        // KLICKER_DATABASE_URL (required)
	GRPCAddr    string        // KLICKER_GRPC_ADDR (default ":9090")
	HTTPAddr    string        // KLICKER_HTTP_ADDR (default ":8080")
	NATSURL     string        // KLICKER_NATS_URL (optional, empty = SSE only)
	AuthSecret  string        // KLICKER_AUTH_SECRET (required, HS256 signing key)
	TokenTTL    time.Duration // KLICKER_TOKEN_TTL (default 720h)
	LogLevel    slog.Level    // KLICKER_LOG_LEVEL (default info)

	// Sync settings
	SyncInterval   time.Duration // KLICKER_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // KLICKER_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // KLICKER_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // KLICKER_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // KLICKER_SYNC_S3_KEY (default "klicker/sessions.jsonl")
	SyncGitRepo    string        // KLICKER_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // KLICKER_SYNC_GIT_FILE (default "sessions.jsonl")
	SyncGitBranch  string        // KLICKER_SYNC_GIT_BRANCH (default "main")
}

// Load reads the server configuration from the environment.
func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("KLICKER_DATABASE_URL"),
		GRPCAddr:       envOrDefault("KLICKER_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("KLICKER_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("KLICKER_NATS_URL"),
		AuthSecret:     os.Getenv("KLICKER_AUTH_SECRET"),
		SyncS3Bucket:   os.Getenv("KLICKER_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("KLICKER_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("KLICKER_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("KLICKER_SYNC_S3_KEY", "klicker/sessions.jsonl"),
		SyncGitRepo:    os.Getenv("KLICKER_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("KLICKER_SYNC_GIT_FILE", "sessions.jsonl"),
		SyncGitBranch:  envOrDefault("KLICKER_SYNC_GIT_BRANCH", "main"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("KLICKER_DATABASE_URL is required")
	}
	if c.AuthSecret == "" {
		return nil, fmt.Errorf("KLICKER_AUTH_SECRET is required")
	}

	ttl, err := time.ParseDuration(envOrDefault("KLICKER_TOKEN_TTL", "720h"))
	if err != nil {
		return nil, fmt.Errorf("KLICKER_TOKEN_TTL: %w", err)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("KLICKER_TOKEN_TTL must be positive, got %s", ttl)
	}
	c.TokenTTL = ttl

	level, err := ParseLogLevel(os.Getenv("KLICKER_LOG_LEVEL"))
	if err != nil {
		return nil, err
	}
	c.LogLevel = level

	intervalStr := envOrDefault("KLICKER_SYNC_INTERVAL", "3m")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("KLICKER_SYNC_INTERVAL: %w", err)
		}
		c.SyncInterval = d
	}

	return c, nil
}

// ClientConfig holds the settings shared by the bridge and the CLI commands
// that talk to a running server. Flags override these.
type ClientConfig struct {
	URL      string     // KLICKER_URL (default "http://localhost:8080")
	NATSURL  string     // KLICKER_NATS_URL (optional, empty = poll over HTTP)
	LogLevel slog.Level // KLICKER_LOG_LEVEL
}

func LoadClient() (*ClientConfig, error) {
	level, err := ParseLogLevel(os.Getenv("KLICKER_LOG_LEVEL"))
	if err != nil {
		return nil, err
	}
	return &ClientConfig{
		URL:      envOrDefault("KLICKER_URL", "http://localhost:8080"),
		NATSURL:  os.Getenv("KLICKER_NATS_URL"),
		LogLevel: level,
	}, nil
}

// ParseLogLevel accepts debug, info, warn or error. Empty means info.
func ParseLogLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("KLICKER_LOG_LEVEL: %w", err)
	}
	return level, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
