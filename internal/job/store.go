package job

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a job cannot be found by ID.
var ErrNotFound = errors.New("job not found")

// ErrAlreadyClaimed is returned when a claim races with another worker or the
// job is no longer QUEUED.
var ErrAlreadyClaimed = errors.New("job already claimed")

// Store defines the interface for job persistence. It is the single source of
// truth for job state; the progress ledger is only a best-effort cache on top.
type Store interface {
	// Create persists a new job. The job is expected to be in QUEUED state.
	Create(ctx context.Context, j *Job) error

	// FindByID retrieves a job by its unique identifier.
	// Returns ErrNotFound if the job does not exist.
	FindByID(ctx context.Context, jobID string) (*Job, error)

	// List returns all jobs.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes a job. Returns ErrNotFound if the job does not exist.
	Delete(ctx context.Context, jobID string) error

	// Claim atomically transitions the job QUEUED->PROCESSING and returns the
	// claimed job. Exactly one concurrent claimant succeeds; the rest receive
	// ErrAlreadyClaimed.
	Claim(ctx context.Context, jobID string) (*Job, error)

	// SetProgress records a checkpoint percentage and stage label. Progress
	// never regresses; lower values are ignored.
	SetProgress(ctx context.Context, jobID string, percent int, stageLabel string) error

	// MarkCompleted transitions the job to COMPLETED and sets the output
	// reference. Returns ErrInvalidTransition if the job is not PROCESSING.
	MarkCompleted(ctx context.Context, jobID string, outputRef string) error

	// MarkFailed transitions the job to FAILED and records the failure detail
	// and the stage that failed. Progress stays at the last checkpoint.
	MarkFailed(ctx context.Context, jobID string, stageLabel, detail string) error

	// Cancel transitions the job to CANCELLED. Only QUEUED and PROCESSING
	// jobs can be cancelled; PROCESSING jobs stop at the next stage boundary.
	Cancel(ctx context.Context, jobID string) error

	// FailStuck fails PROCESSING jobs not updated within the lease window,
	// recovering jobs orphaned by a worker that died mid-run. Returns the IDs
	// of the jobs that were failed.
	FailStuck(ctx context.Context, lease time.Duration) ([]string, error)
}
