// Package queue provides the work-dispatch channel between the enqueuing
// caller and the worker pool. The queue carries only job IDs; all job state
// lives in the job store.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned when the queue has been shut down.
var ErrClosed = errors.New("queue closed")

// Queue is the port for job dispatch.
type Queue interface {
	// Enqueue signals that a job is ready for processing.
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue blocks until a job ID is available, the context is cancelled,
	// or the queue is closed.
	Dequeue(ctx context.Context) (string, error)

	// Close releases queue resources. Blocked Dequeue calls return ErrClosed.
	Close() error
}
