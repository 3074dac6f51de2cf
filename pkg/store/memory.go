package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation, safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
	}
}

// CreateJob creates a new job record
func (m *MemoryStore) CreateJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		return ErrInvalidJobID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return ErrJobExists
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	m.jobs[job.ID] = copyJob(job)
	return nil
}

// GetJob retrieves a job by ID
func (m *MemoryStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, ErrInvalidJobID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return nil, ErrJobNotFound
	}

	return copyJob(job), nil
}

// UpdateJob replaces an existing job record
func (m *MemoryStore) UpdateJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		return ErrInvalidJobID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; !exists {
		return ErrJobNotFound
	}

	job.UpdatedAt = time.Now()
	m.jobs[job.ID] = copyJob(job)
	return nil
}

// DeleteJob deletes a job by ID
func (m *MemoryStore) DeleteJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		return ErrInvalidJobID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[jobID]; !exists {
		return ErrJobNotFound
	}

	delete(m.jobs, jobID)
	return nil
}

// ListJobs lists jobs, newest first
func (m *MemoryStore) ListJobs(ctx context.Context, filter *ListFilter) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var jobs []*Job
	for _, job := range m.jobs {
		if matchesFilter(job, filter) {
			jobs = append(jobs, copyJob(job))
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(jobs) {
				return nil, nil
			}
			jobs = jobs[filter.Offset:]
		}
		if filter.Limit > 0 && filter.Limit < len(jobs) {
			jobs = jobs[:filter.Limit]
		}
	}

	return jobs, nil
}

// UpdateStatus updates job state and progress
func (m *MemoryStore) UpdateStatus(ctx context.Context, jobID string, status State, progress *Progress) error {
	if jobID == "" {
		return ErrInvalidJobID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}
	if job.IsTerminal() {
		return ErrJobTerminal
	}

	now := time.Now()
	job.Status = status
	job.UpdatedAt = now
	if progress != nil {
		p := *progress
		job.Progress = &p
	}
	if status == StateRunning && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if job.IsTerminal() && job.CompletedAt == nil {
		job.CompletedAt = &now
	}

	return nil
}

// Close releases store resources; a no-op for the memory store
func (m *MemoryStore) Close() error {
	return nil
}

// copyJob deep-copies a job so callers cannot mutate stored records.
func copyJob(job *Job) *Job {
	jobCopy := *job

	if job.Spec != nil {
		spec := *job.Spec
		if job.Spec.Inputs != nil {
			spec.Inputs = append([]string(nil), job.Spec.Inputs...)
		}
		jobCopy.Spec = &spec
	}
	if job.Progress != nil {
		progress := *job.Progress
		jobCopy.Progress = &progress
	}
	if job.Result != nil {
		result := *job.Result
		jobCopy.Result = &result
	}
	if job.StartedAt != nil {
		t := *job.StartedAt
		jobCopy.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		jobCopy.CompletedAt = &t
	}

	return &jobCopy
}
