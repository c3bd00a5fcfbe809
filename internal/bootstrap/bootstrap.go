// Package bootstrap provides dependency initialization for the pipeline
// worker: persistence, queue, ledger, storage, media tools, and the worker
// pool itself, selected by configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clipflow/pipeline/internal/config"
	"github.com/clipflow/pipeline/internal/job"
	"github.com/clipflow/pipeline/internal/ledger"
	"github.com/clipflow/pipeline/internal/media"
	"github.com/clipflow/pipeline/internal/metrics"
	"github.com/clipflow/pipeline/internal/pipeline"
	"github.com/clipflow/pipeline/internal/queue"
	"github.com/clipflow/pipeline/internal/retry"
	"github.com/clipflow/pipeline/internal/service"
	"github.com/clipflow/pipeline/internal/storage"
	"github.com/clipflow/pipeline/internal/transcribe"
	"github.com/clipflow/pipeline/internal/worker"
)

// Dependencies holds all initialized components of the worker.
type Dependencies struct {
	Store      job.Store
	Queue      queue.Queue
	Ledger     ledger.Ledger
	JobService *service.JobService
	Pool       *worker.Pool
	Sweeper    *worker.Sweeper
	Collector  *metrics.Collector

	pgPool      *pgxpool.Pool
	redisClient *redis.Client
}

// NewDependencies creates and initializes all dependencies for the worker.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Collector: metrics.NewCollector(),
	}

	if err := deps.initStore(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if err := deps.initQueueAndLedger(cfg, logger); err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	transcriber := initTranscriber(cfg, logger)
	ffmpeg := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)

	policy := retry.Policy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
	}

	builder := pipeline.NewBuilder(ffmpeg, transcriber, store, policy,
		pipeline.WithChunkWindow(cfg.ChunkWindowSec),
		pipeline.WithChunkConcurrency(cfg.MaxConcurrentChunks),
	)
	sequencer := pipeline.NewSequencer(deps.Store, deps.Ledger, builder, policy, store.TempDir(), logger)

	deps.JobService = service.NewJobService(deps.Store, deps.Queue, deps.Ledger, logger)
	deps.Pool = worker.NewPool(deps.Queue, sequencer, deps.Collector, cfg.Workers, logger)
	deps.Sweeper = worker.NewSweeper(deps.Store, deps.Collector, cfg.StuckJobLease, 0, logger)

	return deps, nil
}

// Close releases external connections. Safe to call once, after the pool has
// drained.
func (d *Dependencies) Close() error {
	var errs []error
	if d.Queue != nil {
		if err := d.Queue.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.pgPool != nil {
		d.pgPool.Close()
	}
	return errors.Join(errs...)
}

func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if !cfg.PostgresEnabled() {
		logger.Info("in-memory job store configured")
		d.Store = job.NewMemoryStore()
		return nil
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("create postgres pool: %w", err)
	}
	store, err := job.NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return fmt.Errorf("create postgres job store: %w", err)
	}
	logger.Info("postgres job store configured")
	d.pgPool = pool
	d.Store = store
	return nil
}

func (d *Dependencies) initQueueAndLedger(cfg *config.Config, logger *slog.Logger) error {
	if !cfg.RedisEnabled() {
		logger.Info("in-memory queue and progress ledger configured")
		d.Queue = queue.NewMemoryQueue(0)
		d.Ledger = ledger.NewMemoryLedger(ledger.DefaultTTL)
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	logger.Info("redis queue and progress ledger configured",
		slog.String("addr", cfg.RedisAddr),
	)
	d.redisClient = client
	d.Queue = queue.NewRedisQueue(client, "")
	d.Ledger = ledger.NewRedisLedger(client, ledger.DefaultTTL)
	return nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.DataDir, cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("data_dir", cfg.DataDir),
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}

// initTranscriber builds the transcription client, or a disabled stand-in when
// no API key is configured so that non-transcription pipelines keep working.
func initTranscriber(cfg *config.Config, logger *slog.Logger) transcribe.Client {
	client, err := transcribe.NewClient(cfg.OpenAIAPIKey)
	if err != nil {
		logger.Warn("transcription disabled: no API key configured")
		return transcribe.Disabled{}
	}
	return client
}
