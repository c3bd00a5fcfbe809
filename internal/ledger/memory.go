package ledger

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryLedger implements Ledger.
var _ Ledger = (*MemoryLedger)(nil)

type memoryEntry struct {
	progress  Progress
	expiresAt time.Time
}

// MemoryLedger is an in-memory implementation of Ledger with per-entry TTL.
// Suitable for development and testing; production uses RedisLedger.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration

	// now overrides the clock, for TTL tests.
	now func() time.Time
}

// NewMemoryLedger creates an in-memory ledger. A zero ttl falls back to
// DefaultTTL.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryLedger{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Set upserts the progress entry, refreshing its TTL.
func (l *MemoryLedger) Set(_ context.Context, jobID string, p Progress) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[jobID] = memoryEntry{
		progress:  p,
		expiresAt: l.now().Add(l.ttl),
	}
	return nil
}

// Get returns the last written entry or ErrNotFound. Expired entries are
// dropped lazily on read.
func (l *MemoryLedger) Get(_ context.Context, jobID string) (Progress, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[jobID]
	if !ok {
		return Progress{}, ErrNotFound
	}
	if l.now().After(e.expiresAt) {
		delete(l.entries, jobID)
		return Progress{}, ErrNotFound
	}
	return e.progress, nil
}

// Delete removes the entry for a job.
func (l *MemoryLedger) Delete(_ context.Context, jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, jobID)
	return nil
}
