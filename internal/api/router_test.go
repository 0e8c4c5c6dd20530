package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/iconidentify/ytgrabba/internal/api/handler"
	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
	"github.com/iconidentify/ytgrabba/pkg/ytdlp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubExtractor struct{}

func (stubExtractor) Describe(ctx context.Context, url string) (*ytdlp.Info, error) {
	return &ytdlp.Info{Title: "Clip"}, nil
}

func (stubExtractor) Download(ctx context.Context, url string, opts ytdlp.DownloadOptions) error {
	ext := "mp4"
	if opts.ExtractAudio {
		ext = opts.AudioFormat
	} else if strings.Contains(opts.Format, "audio") {
		ext = "m4a"
	}
	return os.WriteFile(strings.Replace(opts.Output, "%(ext)s", ext, 1), []byte("data"), 0644)
}

type stubMuxer struct{}

func (stubMuxer) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	return os.WriteFile(outputPath, []byte("muxed"), 0644)
}

func newTestRouter(t *testing.T, cfg RouterConfig) http.Handler {
	t.Helper()

	dir, err := service.NewDownloadDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDownloadDir failed: %v", err)
	}
	jobs := repository.NewInMemoryJobRepository(10)
	logger := testLogger()
	metadata := service.NewMetadataService(stubExtractor{}, logger)
	downloads := service.NewDownloadService(stubExtractor{}, stubMuxer{}, metadata, dir, jobs,
		service.DownloadConfig{Strategy: domain.StrategyMux}, logger)

	return NewRouter(
		handler.NewMediaHandler(metadata, downloads, true, logger),
		handler.NewPathHandler(dir, logger),
		handler.NewJobsHandler(jobs, logger),
		handler.NewHealthHandler(jobs, dir),
		cfg,
	)
}

func serve(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthWithoutAuth(t *testing.T) {
	r := newTestRouter(t, RouterConfig{APIKey: "secret", RateLimit: 10, RateBurst: 10})

	for _, path := range []string{"/health", "/ready", "//ready"} {
		if w := serve(r, http.MethodGet, path, "", nil); w.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestRouter_APIKey(t *testing.T) {
	r := newTestRouter(t, RouterConfig{APIKey: "secret", RateLimit: 10, RateBurst: 10})
	const body = `{"url":"https://youtu.be/dQw4w9WgXcQ"}`

	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		want    int
	}{
		{"info without key", http.MethodPost, "/api/info", nil, http.StatusUnauthorized},
		{"info with header", http.MethodPost, "/api/info", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"info with bearer", http.MethodPost, "/api/info", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"audio without key", http.MethodPost, "/api/audio", nil, http.StatusUnauthorized},
		{"audio with api_key link", http.MethodPost, "/api/audio?api_key=secret", nil, http.StatusOK},
		{"audio with wrong key", http.MethodPost, "/api/audio?api_key=nope", nil, http.StatusUnauthorized},
		{"download path with key param", http.MethodGet, "/api/download-path?key=secret", nil, http.StatusOK},
		{"health stays open", http.MethodGet, "/health", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := serve(r, tt.method, tt.path, body, tt.headers); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRouter_RejectedKeyDoesNotSpendRateLimit(t *testing.T) {
	r := newTestRouter(t, RouterConfig{APIKey: "secret", RateLimit: 0.001, RateBurst: 1})
	const body = `{"url":"https://youtu.be/dQw4w9WgXcQ"}`

	if w := serve(r, http.MethodPost, "/api/audio", body, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("without key = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if w := serve(r, http.MethodPost, "/api/audio?api_key=secret", body, nil); w.Code != http.StatusOK {
		t.Errorf("first authorized download = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_NoAPIKeyConfigured(t *testing.T) {
	r := newTestRouter(t, RouterConfig{RateLimit: 10, RateBurst: 10})

	if w := serve(r, http.MethodGet, "/api/jobs", "", nil); w.Code != http.StatusOK {
		t.Errorf("GET /api/jobs = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_Routes(t *testing.T) {
	r := newTestRouter(t, RouterConfig{RateLimit: 100, RateBurst: 100})
	const body = `{"url":"https://youtu.be/dQw4w9WgXcQ","format":"720p"}`

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodPost, "/api/info", body, http.StatusOK},
		{http.MethodPost, "/api/audio", body, http.StatusOK},
		{http.MethodPost, "/api/audio/128", body, http.StatusOK},
		{http.MethodPost, "/api/video", body, http.StatusOK},
		{http.MethodPost, "/api/video/480p", body, http.StatusOK},
		{http.MethodGet, "/api/stats", "", http.StatusOK},
		{http.MethodGet, "/api/jobs/unknown", "", http.StatusNotFound},
		{http.MethodGet, "/api/audio", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if w := serve(r, tt.method, tt.path, tt.body, nil); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRouter_DownloadsRateLimited(t *testing.T) {
	r := newTestRouter(t, RouterConfig{RateLimit: 0.001, RateBurst: 1})
	const body = `{"url":"https://youtu.be/dQw4w9WgXcQ"}`

	if w := serve(r, http.MethodPost, "/api/audio", body, nil); w.Code != http.StatusOK {
		t.Fatalf("first download = %d, want %d", w.Code, http.StatusOK)
	}
	if w := serve(r, http.MethodPost, "/api/audio", body, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("second download = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	// Metadata lookups are not limited.
	if w := serve(r, http.MethodPost, "/api/info", body, nil); w.Code != http.StatusOK {
		t.Errorf("info after limit = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newTestRouter(t, RouterConfig{APIKey: "secret", RateLimit: 10, RateBurst: 10})

	w := serve(r, http.MethodOptions, "/api/audio", "", nil)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing Access-Control-Allow-Origin")
	}
}
