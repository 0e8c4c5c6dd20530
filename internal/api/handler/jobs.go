package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
)

const (
	defaultJobsLimit = 50
	maxJobsLimit     = 500
)

// JobsHandler exposes recent download job history.
type JobsHandler struct {
	jobs   repository.JobRepository
	logger *slog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(jobs repository.JobRepository, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{jobs: jobs, logger: logger}
}

// JobResponse is the JSON form of a download job.
type JobResponse struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	Kind       string     `json:"kind"`
	Quality    string     `json:"quality"`
	Strategy   string     `json:"strategy,omitempty"`
	FormatID   string     `json:"format_id,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	SizeBytes  int64      `json:"size_bytes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobListResponse is the JSON response for GET /api/jobs.
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Count int           `json:"count"`
}

// List handles GET /api/jobs
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxJobsLimit)
	}

	jobs, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list jobs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	resp.Count = len(resp.Jobs)
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/jobs/{jobID}
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(chi.URLParam(r, "jobID"))
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			writeError(w, status, "job not found")
			return
		}
		h.logger.Error("get job failed", "job_id", id, "error", err)
		writeError(w, status, "failed to get job")
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

func newJobResponse(j *domain.DownloadJob) JobResponse {
	return JobResponse{
		ID:         j.ID.String(),
		URL:        j.Source.String(),
		Kind:       string(j.Kind),
		Quality:    j.Quality,
		Strategy:   string(j.Strategy),
		FormatID:   j.FormatID,
		Status:     string(j.Status),
		Error:      j.Error,
		SizeBytes:  j.SizeBytes,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.FinishedAt,
	}
}
