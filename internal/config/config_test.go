package config

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv removes every variable the loader reads so defaults apply.
func clearEnv() {
	for _, key := range []string{
		"OPS_PORT", "WORKERS", "STUCK_JOB_LEASE",
		"POSTGRES_DSN", "REDIS_ADDR", "REDIS_PASSWORD",
		"DATA_DIR", "TEMP_DIR",
		"S3_BUCKET", "S3_REGION", "S3_ENDPOINT",
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
		"OPENAI_API_KEY", "FFMPEG_PATH", "FFPROBE_PATH",
		"MAX_CONCURRENT_CHUNKS", "CHUNK_WINDOW_SEC",
		"MAX_RETRIES", "RETRY_BASE_DELAY",
		"LOG_FORMAT", "LOG_LEVEL",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.OpsPort)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30*time.Minute, cfg.StuckJobLease)
	assert.Equal(t, "/var/lib/clipflow", cfg.DataDir)
	assert.Equal(t, "/tmp/clipflow", cfg.TempDir)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.Equal(t, 3, cfg.MaxConcurrentChunks)
	assert.Equal(t, 600, cfg.ChunkWindowSec)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)

	assert.False(t, cfg.PostgresEnabled())
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv()
	t.Setenv("OPS_PORT", "9090")
	t.Setenv("WORKERS", "8")
	t.Setenv("STUCK_JOB_LEASE", "10m")
	t.Setenv("POSTGRES_DSN", "postgres://clipflow:secret@db:5432/jobs")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("CHUNK_WINDOW_SEC", "300")
	t.Setenv("RETRY_BASE_DELAY", "500ms")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.OpsPort)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 10*time.Minute, cfg.StuckJobLease)
	assert.Equal(t, 300, cfg.ChunkWindowSec)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
	assert.True(t, cfg.PostgresEnabled())
	assert.True(t, cfg.RedisEnabled())
}

func TestLoad_InvalidValue(t *testing.T) {
	clearEnv()
	t.Setenv("WORKERS", "many")

	_, err := Load(context.Background())
	require.Error(t, err)
}

func TestS3Enabled(t *testing.T) {
	cfg := &Config{S3Bucket: "media"}
	assert.False(t, cfg.S3Enabled(), "bucket without region is incomplete")

	cfg.S3Region = "eu-west-1"
	assert.True(t, cfg.S3Enabled())
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		format string
		level  string
		want   slog.Level
	}{
		{"text", "debug", slog.LevelDebug},
		{"json", "info", slog.LevelInfo},
		{"text", "warning", slog.LevelWarn},
		{"json", "error", slog.LevelError},
		{"text", "bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.format+"_"+tt.level, func(t *testing.T) {
			cfg := &Config{LogFormat: tt.format, LogLevel: tt.level}
			logger := cfg.NewLogger()
			require.NotNil(t, logger)
			assert.True(t, logger.Enabled(context.Background(), tt.want))
			if tt.want > slog.LevelDebug {
				assert.False(t, logger.Enabled(context.Background(), tt.want-4))
			}
		})
	}
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := &Config{
		PostgresDSN:        "postgres://user:hunter2@db/jobs",
		RedisPassword:      "hunter2",
		AWSSecretAccessKey: "hunter2",
		OpenAIAPIKey:       "sk-hunter2",
	}

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
}
