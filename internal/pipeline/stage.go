// Package pipeline contains the job step sequencer: it drives a claimed job
// through the ordered stage list for its type, recording progress after every
// stage and translating any failure into the job's durable FAILED state.
package pipeline

import (
	"context"

	"github.com/clipflow/pipeline/internal/chunk"
	"github.com/clipflow/pipeline/internal/job"
	"github.com/clipflow/pipeline/internal/media"
	"github.com/clipflow/pipeline/internal/transcribe"
)

// Stage is one step of a job's pipeline. Stage functions must be idempotent
// with respect to their inputs: on crash recovery the next un-run stage is
// re-derived from the last recorded checkpoint, so a stage may run again.
type Stage struct {
	// Name is the human-readable label recorded while the stage runs and,
	// on failure, the diagnostic naming the stage that failed.
	Name string
	// Checkpoint is the progress percentage recorded when the stage succeeds.
	Checkpoint int
	// Retryable routes the stage through the retry controller. Stages doing
	// their own per-chunk retries leave this false.
	Retryable bool
	// Run executes the stage against the shared run environment.
	Run func(ctx context.Context, env *Env) error
}

// Env is the in-memory state shared by the stages of a single run. It lives
// for exactly one Sequencer.Run call; nothing in it is persisted.
type Env struct {
	// Job is the claimed job snapshot.
	Job *job.Job
	// WorkDir is the scoped temp directory; the sequencer removes it on
	// every exit path.
	WorkDir string

	// SourcePath is the fetched source media.
	SourcePath string
	// AudioPath is the extracted audio track, where a pipeline needs one.
	AudioPath string
	// Chunks are the planned and extracted audio chunks.
	Chunks []chunk.Chunk
	// Transcript is the merged transcription result.
	Transcript transcribe.Transcript
	// Spans are selected source intervals (trim ranges, highlights).
	Spans []media.Span
	// SubtitlePath is the rendered SRT file.
	SubtitlePath string
	// OutputPath is the local result artifact to publish.
	OutputPath string
	// OutputRef is the published output reference; set by the final stage.
	OutputRef string
}

// RunResult is the explicit outcome of one sequencer run, reported to the
// worker pool instead of letting stage errors propagate as panics or bare
// errors.
type RunResult struct {
	JobID string
	Type  job.Type
	// Status is the terminal status the job was left in.
	Status job.Status
	// FailedStage names the stage that failed; empty unless Status is FAILED.
	FailedStage string
	// Detail is the recorded failure reason; empty unless Status is FAILED.
	Detail string
}
