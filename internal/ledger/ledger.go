// Package ledger provides the ephemeral progress ledger used for
// high-frequency polling. It is a best-effort cache with a TTL; the job store
// remains authoritative and callers must fall back to it when an entry is
// absent or expired.
package ledger

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL bounds how long a progress entry outlives its last write, so
// entries self-expire if a worker crashes without cleanup.
const DefaultTTL = time.Hour

// ErrNotFound is returned when no (unexpired) entry exists for a job. It is
// distinct from a 0% entry so a caller can tell "unknown" from "just started".
var ErrNotFound = errors.New("progress entry not found")

// Progress is the record written per job.
type Progress struct {
	// Percent is the completion percentage (0-100).
	Percent int `json:"percent"`
	// StageLabel is a short human-readable description of the current step.
	StageLabel string `json:"stage_label"`
	// ETASeconds is an optional estimate of remaining seconds; nil when the
	// worker has no estimate.
	ETASeconds *int `json:"eta_seconds,omitempty"`
}

// Ledger is the port for the progress store.
type Ledger interface {
	// Set upserts the progress entry for a job, refreshing its TTL.
	Set(ctx context.Context, jobID string, p Progress) error

	// Get returns the last written entry, or ErrNotFound if none exists or
	// the entry has expired.
	Get(ctx context.Context, jobID string) (Progress, error)

	// Delete removes the entry for a job. Missing entries are not an error.
	Delete(ctx context.Context, jobID string) error
}
