// Package job provides the Job aggregate for multi-stage media processing work.
// It includes the Job entity with its state machine, typed per-type parameters,
// and the Store port used by workers for persistence and claiming.
package job

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/clipflow/pipeline/internal/job/id"
)

// Type identifies the processing pipeline a job runs through.
type Type string

const (
	// TypeTranscription transcribes the source media to a timed transcript.
	TypeTranscription Type = "transcription"
	// TypeMediaExport trims and re-encodes the source to a target format.
	TypeMediaExport Type = "media-export"
	// TypeSubtitleBurn transcribes the source and burns subtitles into it.
	TypeSubtitleBurn Type = "subtitle-burn"
	// TypeHighlightDetection extracts an activity-based highlight reel.
	TypeHighlightDetection Type = "highlight-detection"
	// TypeBatchItem normalizes a single item of a batch upload.
	TypeBatchItem Type = "batch-item"
)

// IsValid returns true if the job type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeTranscription, TypeMediaExport, TypeSubtitleBurn, TypeHighlightDetection, TypeBatchItem:
		return true
	default:
		return false
	}
}

// Status represents the current state of a Job.
type Status string

const (
	// StatusQueued indicates the job is waiting to be claimed by a worker.
	StatusQueued Status = "QUEUED"
	// StatusProcessing indicates a worker has claimed the job and is running it.
	StatusProcessing Status = "PROCESSING"
	// StatusCompleted indicates the job finished and OutputRef is set.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job failed terminally; ErrorDetail is set.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the caller cancelled the job.
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines the forward-only state machine. A failed job is
// never resumed in place; retrying means enqueuing a new job.
var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusCancelled:  {},
}

func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job is the unit of orchestrated work. It is created QUEUED by the enqueuing
// caller and exclusively mutated by the worker that claimed it.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Type selects the stage pipeline the job runs through.
	Type Type
	// Status is the current job state.
	Status Status
	// Progress is the percentage of completion (0-100), non-decreasing
	// within a single run.
	Progress int
	// StageLabel is a short human-readable description of the current step.
	StageLabel string
	// InputRef is an opaque reference to the source media.
	InputRef string
	// OutputRef is an opaque reference to the result; empty until COMPLETED.
	OutputRef string
	// ErrorDetail is the failure reason; empty unless FAILED.
	ErrorDetail string
	// Params holds the type-specific parameters, encoded as JSON.
	Params json.RawMessage
	// CreatedAt is when the job was enqueued.
	CreatedAt time.Time
	// UpdatedAt is when the job was last mutated.
	UpdatedAt time.Time
	// StartedAt is when a worker claimed the job.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID in QUEUED state.
func New(t Type, inputRef string, params json.RawMessage) *Job {
	now := time.Now()
	return &Job{
		ID:        id.Generate(),
		Type:      t,
		Status:    StatusQueued,
		InputRef:  inputRef,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewWithID creates a new Job with the specified ID in QUEUED state.
// Useful for testing or when the ID is externally generated.
func NewWithID(jobID string, t Type, inputRef string, params json.RawMessage) *Job {
	j := New(t, inputRef, params)
	j.ID = jobID
	return j
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusProcessing:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Claim transitions the job from QUEUED to PROCESSING.
func (j *Job) Claim() error {
	return j.TransitionTo(StatusProcessing)
}

// Complete transitions the job to COMPLETED and records the output reference.
// OutputRef is set if and only if the transition succeeds.
func (j *Job) Complete(outputRef string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.OutputRef = outputRef
	j.Progress = 100
	return nil
}

// Fail transitions the job to FAILED with a failure detail. Progress stays
// frozen at the last completed checkpoint.
func (j *Job) Fail(detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.ErrorDetail = detail
	return nil
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// SetProgress records a checkpoint. Lower percentages are ignored so progress
// never regresses within a run.
func (j *Job) SetProgress(percent int, stageLabel string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if percent > 100 {
		percent = 100
	}
	if percent > j.Progress {
		j.Progress = percent
	}
	if stageLabel != "" {
		j.StageLabel = stageLabel
	}
	j.UpdatedAt = time.Now()
}

// setStageLabel updates the stage label without touching progress. Used when
// recording which stage a job failed in.
func (j *Job) setStageLabel(label string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.StageLabel = label
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.GetStatus().IsTerminal()
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	params := make(json.RawMessage, len(j.Params))
	copy(params, j.Params)

	return &Job{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Progress:    j.Progress,
		StageLabel:  j.StageLabel,
		InputRef:    j.InputRef,
		OutputRef:   j.OutputRef,
		ErrorDetail: j.ErrorDetail,
		Params:      params,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
