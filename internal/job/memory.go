package job

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store.
// It uses a map with a mutex for thread-safe access.
// Suitable for development and testing; production uses PostgresStore.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates a new in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
	}
}

// Create persists a job to the in-memory storage.
// Stores a clone to avoid external mutations.
func (s *MemoryStore) Create(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j.Clone()
	return nil
}

// FindByID retrieves a job by its ID.
// Returns a clone to prevent external mutations.
func (s *MemoryStore) FindByID(_ context.Context, jobID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

// List returns all jobs in the store.
func (s *MemoryStore) List(_ context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		result = append(result, j.Clone())
	}
	return result, nil
}

// Delete removes a job from the store.
func (s *MemoryStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, jobID)
	return nil
}

// Claim atomically transitions the job QUEUED->PROCESSING. The write lock is
// held across the check-and-set so concurrent claimants serialize; exactly
// one observes QUEUED.
func (s *MemoryStore) Claim(_ context.Context, jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if j.GetStatus() != StatusQueued {
		return nil, ErrAlreadyClaimed
	}
	if err := j.Claim(); err != nil {
		return nil, ErrAlreadyClaimed
	}
	return j.Clone(), nil
}

// SetProgress records a checkpoint on the stored job.
func (s *MemoryStore) SetProgress(_ context.Context, jobID string, percent int, stageLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	j.SetProgress(percent, stageLabel)
	return nil
}

// MarkCompleted finalizes the stored job with its output reference.
func (s *MemoryStore) MarkCompleted(_ context.Context, jobID string, outputRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	return j.Complete(outputRef)
}

// MarkFailed finalizes the stored job with its failure detail.
func (s *MemoryStore) MarkFailed(_ context.Context, jobID string, stageLabel, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if err := j.Fail(detail); err != nil {
		return err
	}
	if stageLabel != "" {
		j.setStageLabel(stageLabel)
	}
	return nil
}

// FailStuck fails PROCESSING jobs whose UpdatedAt is older than the lease.
func (s *MemoryStore) FailStuck(_ context.Context, lease time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-lease)

	var ids []string
	for _, j := range s.jobs {
		if j.GetStatus() == StatusProcessing && j.UpdatedAt.Before(cutoff) {
			if err := j.Fail("worker lease expired"); err == nil {
				ids = append(ids, j.ID)
			}
		}
	}
	return ids, nil
}

// Cancel marks the stored job CANCELLED.
func (s *MemoryStore) Cancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	return j.Cancel()
}
