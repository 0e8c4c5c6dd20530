package repository

import (
	"context"
	"sync"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// InMemoryJobRepository implements JobRepository using in-memory storage.
// Once limit records exist the oldest is dropped.
type InMemoryJobRepository struct {
	mu    sync.RWMutex
	jobs  map[domain.JobID]*domain.DownloadJob
	order []domain.JobID // insertion order, oldest first
	limit int
}

// NewInMemoryJobRepository creates a new in-memory job repository.
func NewInMemoryJobRepository(limit int) *InMemoryJobRepository {
	if limit <= 0 {
		limit = 500
	}
	return &InMemoryJobRepository{
		jobs:  make(map[domain.JobID]*domain.DownloadJob),
		order: make([]domain.JobID, 0),
		limit: limit,
	}
}

// Save inserts or replaces the job record.
func (r *InMemoryJobRepository) Save(ctx context.Context, job *domain.DownloadJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *job
	cp.Files = append([]string(nil), job.Files...)

	if _, ok := r.jobs[job.ID]; !ok {
		r.order = append(r.order, job.ID)
		if len(r.order) > r.limit {
			delete(r.jobs, r.order[0])
			r.order = r.order[1:]
		}
	}
	r.jobs[job.ID] = &cp

	return nil
}

// Get retrieves a job by ID.
func (r *InMemoryJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.DownloadJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	cp := *job
	return &cp, nil
}

// List returns the most recent jobs, newest first.
func (r *InMemoryJobRepository) List(ctx context.Context, limit int) ([]*domain.DownloadJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.order) {
		limit = len(r.order)
	}

	result := make([]*domain.DownloadJob, 0, limit)
	for i := len(r.order) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *r.jobs[r.order[i]]
		result = append(result, &cp)
	}

	return result, nil
}

// Stats returns job counts by lifecycle stage.
func (r *InMemoryJobRepository) Stats(ctx context.Context) (*JobStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &JobStats{}
	for _, job := range r.jobs {
		countStatus(stats, job.Status, 1)
	}

	return stats, nil
}

// Clear removes all jobs (useful for testing).
func (r *InMemoryJobRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs = make(map[domain.JobID]*domain.DownloadJob)
	r.order = make([]domain.JobID, 0)
}
