package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/clipflow/pipeline/internal/job"
	"github.com/clipflow/pipeline/internal/ledger"
	"github.com/clipflow/pipeline/internal/retry"
)

// Stages resolves the ordered stage list for a claimed job. Implementations
// decode and validate the job's parameters; an error here fails the job
// before any stage runs.
type Stages interface {
	Stages(j *job.Job) ([]Stage, error)
}

// Sequencer claims jobs and runs them through their stage pipeline. The job
// record store stays authoritative for state; the progress ledger receives
// best-effort copies of every progress write.
type Sequencer struct {
	store    job.Store
	ledger   ledger.Ledger
	builder  Stages
	policy   retry.Policy
	tempRoot string
	logger   *slog.Logger
}

// NewSequencer creates a sequencer. tempRoot is the directory per-job work
// directories are created under.
func NewSequencer(store job.Store, led ledger.Ledger, builder Stages, policy retry.Policy, tempRoot string, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		store:    store,
		ledger:   led,
		builder:  builder,
		policy:   policy,
		tempRoot: tempRoot,
		logger:   logger,
	}
}

// Run claims the job and executes its stages in order. Every exit path leaves
// the job in a terminal state (or still QUEUED when another worker won the
// claim) and removes the job's work directory. The returned error reports
// infrastructure problems only; job-level failures are expressed through the
// RunResult and the job record.
func (s *Sequencer) Run(ctx context.Context, jobID string) (RunResult, error) {
	claimed, err := s.store.Claim(ctx, jobID)
	if errors.Is(err, job.ErrAlreadyClaimed) {
		s.logger.Info("job already claimed, skipping", "job_id", jobID)
		return RunResult{JobID: jobID}, nil
	}
	if err != nil {
		return RunResult{JobID: jobID}, fmt.Errorf("claiming job %s: %w", jobID, err)
	}

	res := RunResult{JobID: claimed.ID, Type: claimed.Type}
	log := s.logger.With("job_id", claimed.ID, "job_type", string(claimed.Type))

	stages, err := s.builder.Stages(claimed)
	if err != nil {
		return s.fail(ctx, res, log, "resolving pipeline", err)
	}

	workDir, err := os.MkdirTemp(s.tempRoot, "job_"+claimed.ID+"_")
	if err != nil {
		return s.fail(ctx, res, log, "preparing workspace", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			log.Warn("failed to remove work directory", "dir", workDir, "error", rmErr)
		}
	}()

	env := &Env{Job: claimed, WorkDir: workDir}
	started := time.Now()
	progress := 0

	for _, stage := range stages {
		cancelled, err := s.checkCancelled(ctx, claimed.ID)
		if err != nil {
			return res, err
		}
		if cancelled {
			log.Info("job cancelled, stopping pipeline", "last_checkpoint", progress)
			res.Status = job.StatusCancelled
			s.dropLedger(ctx, claimed.ID, log)
			return res, nil
		}

		log.Info("stage starting", "stage", stage.Name, "checkpoint", stage.Checkpoint)
		s.writeLedger(ctx, claimed.ID, progress, stage.Name, started, log)

		run := func() error { return stage.Run(ctx, env) }
		if stage.Retryable {
			err = retry.Do(ctx, s.policy, run)
		} else {
			err = run()
		}
		if err != nil {
			if ctx.Err() != nil {
				// Worker shutdown, not a job failure: leave the job
				// PROCESSING for the stuck-job sweeper to reclaim.
				return res, fmt.Errorf("stage %q interrupted: %w", stage.Name, ctx.Err())
			}
			return s.fail(ctx, res, log, stage.Name, err)
		}

		progress = stage.Checkpoint
		if err := s.store.SetProgress(ctx, claimed.ID, progress, stage.Name); err != nil {
			return res, fmt.Errorf("recording checkpoint for job %s: %w", claimed.ID, err)
		}
		s.writeLedger(ctx, claimed.ID, progress, stage.Name, started, log)
		log.Info("stage completed", "stage", stage.Name, "progress", progress)
	}

	if env.OutputRef == "" {
		return s.fail(ctx, res, log, "publishing result", errors.New("pipeline produced no output reference"))
	}
	if err := s.store.MarkCompleted(ctx, claimed.ID, env.OutputRef); err != nil {
		return res, fmt.Errorf("completing job %s: %w", claimed.ID, err)
	}
	s.dropLedger(ctx, claimed.ID, log)
	log.Info("job completed", "output_ref", env.OutputRef, "duration", time.Since(started).String())
	res.Status = job.StatusCompleted
	return res, nil
}

// checkCancelled re-reads the job record so an external Cancel observed
// between stages stops the pipeline at the next stage boundary.
func (s *Sequencer) checkCancelled(ctx context.Context, jobID string) (bool, error) {
	cur, err := s.store.FindByID(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("checking job %s for cancellation: %w", jobID, err)
	}
	return cur.Status == job.StatusCancelled, nil
}

func (s *Sequencer) fail(ctx context.Context, res RunResult, log *slog.Logger, stageName string, cause error) (RunResult, error) {
	detail := cause.Error()
	log.Error("stage failed", "stage", stageName, "error", detail)
	if err := s.store.MarkFailed(ctx, res.JobID, stageName, detail); err != nil {
		return res, fmt.Errorf("marking job %s failed: %w", res.JobID, err)
	}
	s.dropLedger(ctx, res.JobID, log)
	res.Status = job.StatusFailed
	res.FailedStage = stageName
	res.Detail = detail
	return res, nil
}

// writeLedger mirrors progress into the ledger. Ledger writes are best-effort:
// the store already holds the authoritative record.
func (s *Sequencer) writeLedger(ctx context.Context, jobID string, percent int, label string, started time.Time, log *slog.Logger) {
	p := ledger.Progress{Percent: percent, StageLabel: label}
	if percent > 0 && percent < 100 {
		elapsed := time.Since(started).Seconds()
		eta := int(elapsed / float64(percent) * float64(100-percent))
		p.ETASeconds = &eta
	}
	if err := s.ledger.Set(ctx, jobID, p); err != nil {
		log.Warn("progress ledger write failed", "error", err)
	}
}

func (s *Sequencer) dropLedger(ctx context.Context, jobID string, log *slog.Logger) {
	if err := s.ledger.Delete(ctx, jobID); err != nil {
		log.Warn("progress ledger delete failed", "error", err)
	}
}
