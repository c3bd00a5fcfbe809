// Package service exposes the job lifecycle operations callers use: submit,
// query, cancel, delete. It sits between external surfaces and the store,
// queue, and ledger.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/clipflow/pipeline/internal/job"
	"github.com/clipflow/pipeline/internal/ledger"
	"github.com/clipflow/pipeline/internal/queue"
)

// ErrNotTerminal is returned when deleting a job that is still queued or
// running. Cancel it first.
var ErrNotTerminal = errors.New("job is not in a terminal state")

// ErrInvalidJobType is returned for a submission naming an unknown job type.
var ErrInvalidJobType = errors.New("invalid job type")

// EnqueueInput is a job submission.
type EnqueueInput struct {
	// Type selects the processing pipeline.
	Type job.Type `validate:"required"`
	// InputRef is the opaque reference to the source media.
	InputRef string `validate:"required"`
	// Params is the raw per-type parameter payload; validated against the
	// type's parameter schema before the job is accepted.
	Params json.RawMessage
}

// StatusView is the caller-facing snapshot of a job. For running jobs the
// progress fields come from the ledger when it has a fresher entry.
type StatusView struct {
	JobID       string     `json:"job_id"`
	Type        job.Type   `json:"type,omitempty"`
	Status      job.Status `json:"status"`
	Progress    int        `json:"progress"`
	StageLabel  string     `json:"stage_label,omitempty"`
	ETASeconds  *int       `json:"eta_seconds,omitempty"`
	OutputRef   string     `json:"output_ref,omitempty"`
	ErrorDetail string     `json:"error_detail,omitempty"`
}

// JobService implements the job lifecycle operations.
type JobService struct {
	store    job.Store
	queue    queue.Queue
	ledger   ledger.Ledger
	validate *validator.Validate
	logger   *slog.Logger
}

// NewJobService creates the service over the given store, queue, and ledger.
func NewJobService(store job.Store, q queue.Queue, led ledger.Ledger, logger *slog.Logger) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		store:    store,
		queue:    q,
		ledger:   led,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Enqueue validates the submission, persists the job in QUEUED state, and
// pushes its ID onto the work queue.
func (s *JobService) Enqueue(ctx context.Context, input EnqueueInput) (*job.Job, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid submission: %w", err)
	}
	if err := s.validateParams(input.Type, input.Params); err != nil {
		return nil, err
	}

	j := job.New(input.Type, input.InputRef, input.Params)

	s.logger.Info("enqueuing job",
		slog.String("job_id", j.ID),
		slog.String("job_type", string(j.Type)),
		slog.String("input_ref", j.InputRef),
	)

	if err := s.store.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("persisting job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, j.ID); err != nil {
		// Leave the record QUEUED; the caller can re-enqueue or cancel.
		s.logger.Error("queue push failed",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("dispatching job %s: %w", j.ID, err)
	}
	return j, nil
}

// validateParams decodes the raw payload into the type's parameter struct and
// runs the struct validation rules.
func (s *JobService) validateParams(t job.Type, raw json.RawMessage) error {
	var params any
	switch t {
	case job.TypeTranscription:
		params = &job.TranscriptionParams{}
	case job.TypeMediaExport:
		params = &job.ExportParams{}
	case job.TypeSubtitleBurn:
		params = &job.SubtitleBurnParams{}
	case job.TypeHighlightDetection:
		params = &job.HighlightParams{}
	case job.TypeBatchItem:
		params = &job.BatchItemParams{}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidJobType, t)
	}
	if err := job.DecodeParams(raw, params); err != nil {
		return err
	}
	if err := s.validate.Struct(params); err != nil {
		return fmt.Errorf("invalid %s params: %w", t, err)
	}
	return nil
}

// Status returns the job's current state. For in-flight jobs the ledger entry
// wins when present, avoiding a store round trip for the common polling case;
// the store remains authoritative for everything else.
func (s *JobService) Status(ctx context.Context, jobID string) (StatusView, error) {
	if p, err := s.ledger.Get(ctx, jobID); err == nil {
		return StatusView{
			JobID:      jobID,
			Status:     job.StatusProcessing,
			Progress:   p.Percent,
			StageLabel: p.StageLabel,
			ETASeconds: p.ETASeconds,
		}, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		s.logger.Warn("progress ledger read failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	j, err := s.store.FindByID(ctx, jobID)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{
		JobID:       j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Progress:    j.Progress,
		StageLabel:  j.StageLabel,
		OutputRef:   j.OutputRef,
		ErrorDetail: j.ErrorDetail,
	}, nil
}

// List returns every known job.
func (s *JobService) List(ctx context.Context) ([]*job.Job, error) {
	return s.store.List(ctx)
}

// Cancel requests cancellation. QUEUED jobs are cancelled immediately;
// PROCESSING jobs stop at their next stage boundary.
func (s *JobService) Cancel(ctx context.Context, jobID string) error {
	if err := s.store.Cancel(ctx, jobID); err != nil {
		return err
	}
	s.logger.Info("job cancelled", slog.String("job_id", jobID))
	return nil
}

// Delete removes a terminal job's record. Running or queued jobs are refused
// with ErrNotTerminal.
func (s *JobService) Delete(ctx context.Context, jobID string) error {
	j, err := s.store.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if !j.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, jobID, j.Status)
	}
	if err := s.store.Delete(ctx, jobID); err != nil {
		return err
	}
	if err := s.ledger.Delete(ctx, jobID); err != nil {
		s.logger.Warn("progress ledger delete failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
