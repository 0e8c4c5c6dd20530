package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
)

var startTime = time.Now()

// DiskReporter reports the download directory and the disk holding it.
type DiskReporter interface {
	Get() string
	Usage() service.DiskUsage
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	jobRepo repository.JobRepository
	dir     DiskReporter
	tools   map[string]string
	cpu     cpuSampler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(jobRepo repository.JobRepository, dir DiskReporter) *HealthHandler {
	return &HealthHandler{
		jobRepo: jobRepo,
		dir:     dir,
	}
}

// WithToolVersions sets the external tool versions reported by Stats.
func (h *HealthHandler) WithToolVersions(versions map[string]string) *HealthHandler {
	h.tools = versions
	return h
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Jobs      *JobStats `json:"jobs,omitempty"`
}

// JobStats contains download job statistics.
type JobStats struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Check job history is accessible
	stats, err := h.jobRepo.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Jobs: &JobStats{
			Active:    stats.Active,
			Completed: stats.Completed,
			Failed:    stats.Failed,
		},
	})
}

// SystemStats contains system resource statistics.
type SystemStats struct {
	Uptime         int64             `json:"uptime_seconds"`
	UptimeHuman    string            `json:"uptime_human"`
	MemAllocMB     int64             `json:"mem_alloc_mb"`
	MemSysMB       int64             `json:"mem_sys_mb"`
	MemHeapMB      int64             `json:"mem_heap_mb"`
	NumGoroutines  int               `json:"num_goroutines"`
	NumCPU         int               `json:"num_cpu"`
	CPUPercent     float64           `json:"cpu_percent"`
	DiskUsedBytes  int64             `json:"disk_used_bytes"`
	DiskFreeBytes  int64             `json:"disk_free_bytes"`
	DiskTotalBytes int64             `json:"disk_total_bytes"`
	DiskUsedPct    float64           `json:"disk_used_pct"`
	DownloadPath   string            `json:"download_path"`
	Tools          map[string]string `json:"tools,omitempty"`
	Jobs           *JobStats         `json:"jobs,omitempty"`
}

// Stats handles GET /api/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		MemHeapMB:     int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CPUPercent:    h.cpu.sample(),
		DownloadPath:  h.dir.Get(),
		Tools:         h.tools,
	}

	usage := h.dir.Usage()
	stats.DiskTotalBytes = usage.TotalBytes
	stats.DiskFreeBytes = usage.FreeBytes
	stats.DiskUsedBytes = usage.UsedBytes
	stats.DiskUsedPct = usage.UsedPct

	if js, err := h.jobRepo.Stats(r.Context()); err == nil {
		stats.Jobs = &JobStats{Active: js.Active, Completed: js.Completed, Failed: js.Failed}
	}

	writeJSON(w, http.StatusOK, stats)
}

// cpuSampler tracks process CPU time between polls.
type cpuSampler struct {
	mu       sync.Mutex
	lastCPU  time.Duration
	lastWall time.Time
	primed   bool
}

// sample returns CPU usage since the previous call as a percentage of one
// core, capped at 100. The first call returns 0.
func (s *cpuSampler) sample() float64 {
	cpu, ok := processCPUTime()
	if !ok {
		return 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed {
		s.lastCPU, s.lastWall, s.primed = cpu, now, true
		return 0
	}

	cpuDelta := cpu - s.lastCPU
	wallDelta := now.Sub(s.lastWall)
	s.lastCPU, s.lastWall = cpu, now

	if wallDelta <= 0 {
		return 0
	}
	pct := float64(cpuDelta) / float64(wallDelta) * 100
	return max(0, min(pct, 100))
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
