package repository

import (
	"context"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// JobRepository records download job history.
type JobRepository interface {
	// Save inserts or replaces the job record.
	Save(ctx context.Context, job *domain.DownloadJob) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.DownloadJob, error)

	// List returns the most recent jobs, newest first.
	List(ctx context.Context, limit int) ([]*domain.DownloadJob, error)

	// Stats returns job counts by lifecycle stage.
	Stats(ctx context.Context) (*JobStats, error)
}

// JobStats contains download job statistics.
type JobStats struct {
	Active    int
	Completed int
	Failed    int
}

// Total returns the number of recorded jobs.
func (s JobStats) Total() int {
	return s.Active + s.Completed + s.Failed
}

func countStatus(stats *JobStats, status domain.JobStatus, n int) {
	switch status {
	case domain.JobStatusPurged:
		stats.Completed += n
	case domain.JobStatusFailed:
		stats.Failed += n
	default:
		stats.Active += n
	}
}
