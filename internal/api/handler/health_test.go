package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
)

func newHealthHandler(t *testing.T, repo *mockJobRepository) *HealthHandler {
	t.Helper()
	dir, err := service.NewDownloadDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDownloadDir failed: %v", err)
	}
	return NewHealthHandler(repo, dir)
}

func TestHealthHandler_Live(t *testing.T) {
	handler := newHealthHandler(t, newMockJobRepository())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.Live(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want %q", contentType, "application/json")
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}

	if resp.Timestamp == "" {
		t.Error("timestamp should not be empty")
	}
}

func TestHealthHandler_Ready_Success(t *testing.T) {
	repo := newMockJobRepository()
	repo.stats = &repository.JobStats{
		Active:    2,
		Completed: 100,
		Failed:    3,
	}
	handler := newHealthHandler(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	handler.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}

	if resp.Jobs == nil {
		t.Fatal("job stats should not be nil")
	}

	if resp.Jobs.Active != 2 {
		t.Errorf("active = %d, want %d", resp.Jobs.Active, 2)
	}
	if resp.Jobs.Completed != 100 {
		t.Errorf("completed = %d, want %d", resp.Jobs.Completed, 100)
	}
	if resp.Jobs.Failed != 3 {
		t.Errorf("failed = %d, want %d", resp.Jobs.Failed, 3)
	}
}

func TestHealthHandler_Ready_Error(t *testing.T) {
	repo := newMockJobRepository()
	repo.statsErr = errors.New("database unavailable")
	handler := newHealthHandler(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	handler.Ready(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "error" {
		t.Errorf("status = %q, want %q", resp.Status, "error")
	}
}

func TestHealthHandler_Stats(t *testing.T) {
	repo := newMockJobRepository()
	repo.stats = &repository.JobStats{Completed: 7}
	handler := newHealthHandler(t, repo).WithToolVersions(map[string]string{
		"yt-dlp": "2024.08.06",
		"ffmpeg": "ffmpeg version 6.1",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()

	handler.Stats(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want %q", contentType, "application/json")
	}

	var stats SystemStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if stats.DownloadPath == "" {
		t.Error("download path should not be empty")
	}
	if stats.DiskTotalBytes <= 0 {
		t.Errorf("disk total = %d, want > 0", stats.DiskTotalBytes)
	}
	if stats.NumCPU <= 0 || stats.NumGoroutines <= 0 {
		t.Errorf("runtime stats missing: %+v", stats)
	}
	if stats.Jobs == nil || stats.Jobs.Completed != 7 {
		t.Errorf("jobs = %+v, want completed 7", stats.Jobs)
	}
	if stats.Tools["yt-dlp"] != "2024.08.06" || stats.Tools["ffmpeg"] != "ffmpeg version 6.1" {
		t.Errorf("tools = %v", stats.Tools)
	}
}

func TestCPUSampler(t *testing.T) {
	var s cpuSampler

	if got := s.sample(); got != 0 {
		t.Errorf("first sample = %v, want 0", got)
	}

	// Burn some CPU so the second sample has a delta to report.
	deadline := time.Now().Add(20 * time.Millisecond)
	for time.Now().Before(deadline) {
	}

	got := s.sample()
	if got < 0 || got > 100 {
		t.Errorf("sample = %v, want within [0, 100]", got)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Minute, "5m"},
		{3*time.Hour + 2*time.Minute, "3h 2m"},
		{50*time.Hour + 30*time.Minute, "2d 2h 30m"},
	}

	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
