package domain

import (
	"time"
)

// JobID is a unique identifier for a download job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// JobStatus represents the lifecycle stage of a download job.
type JobStatus string

const (
	JobStatusCreated   JobStatus = "created"
	JobStatusPopulated JobStatus = "populated"
	JobStatusDelivered JobStatus = "delivered"
	JobStatusPurged    JobStatus = "purged"
	JobStatusFailed    JobStatus = "failed"
)

// VideoStrategy selects how video downloads are produced.
type VideoStrategy string

const (
	// StrategyMux downloads video-only and audio-only streams and muxes them.
	StrategyMux VideoStrategy = "mux"
	// StrategyDirect downloads a single stream that already carries audio.
	StrategyDirect VideoStrategy = "direct"
	// StrategyTool lets the extractor select, download and merge on its own.
	StrategyTool VideoStrategy = "tool"
)

// Valid reports whether s names a known strategy.
func (s VideoStrategy) Valid() bool {
	switch s {
	case StrategyMux, StrategyDirect, StrategyTool:
		return true
	}
	return false
}

// DownloadJob is a single request-scoped download.
type DownloadJob struct {
	ID       JobID
	Source   SourceReference
	Kind     MediaKind
	Quality  string
	Strategy VideoStrategy
	// FormatID is the stream id or selector string handed to the extractor.
	FormatID string
	// Dir is the download directory snapshotted when the job was created.
	Dir        string
	Files      []string
	Status     JobStatus
	Error      string
	SizeBytes  int64
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// NewJob creates a job in the created state.
func NewJob(id JobID, source SourceReference, kind MediaKind, quality, dir string) *DownloadJob {
	return &DownloadJob{
		ID:        id,
		Source:    source,
		Kind:      kind,
		Quality:   quality,
		Dir:       dir,
		Status:    JobStatusCreated,
		CreatedAt: time.Now(),
	}
}

// Track registers a temporary file owned by the job.
func (j *DownloadJob) Track(path string) {
	j.Files = append(j.Files, path)
}

// MarkPopulated records that the external tools produced the output.
func (j *DownloadJob) MarkPopulated(size int64) {
	j.Status = JobStatusPopulated
	j.SizeBytes = size
}

// MarkDelivered records that the output was handed to the caller.
func (j *DownloadJob) MarkDelivered() {
	j.Status = JobStatusDelivered
}

// MarkPurged records that the temporary files were removed.
func (j *DownloadJob) MarkPurged() {
	now := time.Now()
	j.Status = JobStatusPurged
	j.FinishedAt = &now
}

// MarkFailed records a failure with an error message.
func (j *DownloadJob) MarkFailed(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.Error = err
	j.FinishedAt = &now
}

// IsFinished returns true once the job has been purged or has failed.
func (j *DownloadJob) IsFinished() bool {
	return j.Status == JobStatusPurged || j.Status == JobStatusFailed
}
