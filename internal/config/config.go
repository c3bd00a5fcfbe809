// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the worker.
type Config struct {
	// Ops HTTP server (health, metrics)
	OpsPort int `env:"OPS_PORT, default=8080" json:"ops_port"`

	// Worker settings
	Workers       int           `env:"WORKERS, default=4" json:"workers"`
	StuckJobLease time.Duration `env:"STUCK_JOB_LEASE, default=30m" json:"stuck_job_lease"`

	// Persistence. Empty PostgresDSN selects the in-memory store; empty
	// RedisAddr selects the in-memory queue and ledger.
	PostgresDSN   string `env:"POSTGRES_DSN" json:"-"` // May embed credentials
	RedisAddr     string `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword string `env:"REDIS_PASSWORD" json:"-"`

	// Storage settings
	DataDir string `env:"DATA_DIR, default=/var/lib/clipflow" json:"data_dir"`
	TempDir string `env:"TEMP_DIR, default=/tmp/clipflow" json:"temp_dir"`

	// Optional S3 settings; when set, media references resolve against S3
	// instead of the local data directory.
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Transcription settings
	OpenAIAPIKey string `env:"OPENAI_API_KEY" json:"-"` // Masked in JSON

	// Media tool paths
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Processing settings
	MaxConcurrentChunks int `env:"MAX_CONCURRENT_CHUNKS, default=3" json:"max_concurrent_chunks"`
	ChunkWindowSec      int `env:"CHUNK_WINDOW_SEC, default=600" json:"chunk_window_sec"`

	// Retry settings
	MaxRetries     int           `env:"MAX_RETRIES, default=3" json:"max_retries"`
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY, default=2s" json:"retry_base_delay"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// PostgresEnabled returns true if a Postgres DSN is configured.
func (c *Config) PostgresEnabled() bool {
	return c.PostgresDSN != ""
}

// RedisEnabled returns true if a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{OpsPort: %d, Workers: %d, StuckJobLease: %s, Postgres: %t, Redis: %s, DataDir: %s, TempDir: %s, S3Bucket: %s, S3Region: %s, MaxConcurrentChunks: %d, ChunkWindowSec: %d, LogFormat: %s, LogLevel: %s}",
		c.OpsPort,
		c.Workers,
		c.StuckJobLease,
		c.PostgresEnabled(),
		c.RedisAddr,
		c.DataDir,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.MaxConcurrentChunks,
		c.ChunkWindowSec,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
