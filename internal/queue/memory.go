package queue

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time check that MemoryQueue implements Queue.
var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is a buffered-channel implementation of Queue for development
// and tests. Production uses RedisQueue so jobs survive worker restarts.
type MemoryQueue struct {
	ch chan string

	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue creates a memory queue with the given buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan string, size)}
}

// Enqueue pushes a job ID onto the channel.
func (q *MemoryQueue) Enqueue(ctx context.Context, jobID string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()

	select {
	case q.ch <- jobID:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue cancelled: %w", ctx.Err())
	}
}

// Dequeue blocks until a job ID is available.
func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case jobID, ok := <-q.ch:
		if !ok {
			return "", ErrClosed
		}
		return jobID, nil
	case <-ctx.Done():
		return "", fmt.Errorf("dequeue cancelled: %w", ctx.Err())
	}
}

// Close shuts the queue down. Pending IDs already in the buffer are still
// delivered to waiting consumers.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ch)
	return nil
}
