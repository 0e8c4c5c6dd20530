package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
	"github.com/iconidentify/ytgrabba/pkg/ytdlp"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockJobRepository is a test implementation of repository.JobRepository.
type mockJobRepository struct {
	mu       sync.Mutex
	stats    *repository.JobStats
	statsErr error
	listErr  error
	jobs     map[domain.JobID]*domain.DownloadJob
	limits   []int
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{
		stats: &repository.JobStats{},
		jobs:  make(map[domain.JobID]*domain.DownloadJob),
	}
}

func (m *mockJobRepository) Save(ctx context.Context, job *domain.DownloadJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *mockJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.DownloadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) List(ctx context.Context, limit int) ([]*domain.DownloadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = append(m.limits, limit)
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*domain.DownloadJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockJobRepository) Stats(ctx context.Context) (*repository.JobStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

// mockFetcher is a test implementation of MetadataFetcher.
type mockFetcher struct {
	meta  *domain.MediaMetadata
	err   error
	calls int
}

func (m *mockFetcher) Fetch(ctx context.Context, source domain.SourceReference) (*domain.MediaMetadata, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.meta, nil
}

// stubExtractor writes a fixed payload for every download.
type stubExtractor struct {
	mu      sync.Mutex
	payload string
	err     error
	calls   int
}

func (s *stubExtractor) Describe(ctx context.Context, url string) (*ytdlp.Info, error) {
	return nil, domain.ErrExternalTool
}

func (s *stubExtractor) Download(ctx context.Context, url string, opts ytdlp.DownloadOptions) error {
	s.mu.Lock()
	s.calls++
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}
	ext := "mp4"
	if opts.ExtractAudio {
		ext = opts.AudioFormat
	} else if strings.Contains(opts.Format, "audio") {
		ext = "m4a"
	}
	return os.WriteFile(strings.Replace(opts.Output, "%(ext)s", ext, 1), []byte(s.payload), 0644)
}

func (s *stubExtractor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubMuxer struct {
	err error
}

func (m stubMuxer) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if m.err != nil {
		return m.err
	}
	return os.WriteFile(outputPath, []byte("muxed"), 0644)
}

func sampleMetadata() *domain.MediaMetadata {
	return &domain.MediaMetadata{
		Title:           "Test Clip",
		DurationSeconds: 125,
		Uploader:        "Uploader",
		ViewCount:       42,
		UploadDate:      "20240102",
		ThumbnailURL:    "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq.jpg",
		Formats: []domain.StreamDescriptor{
			{FormatID: "140", Container: "m4a", AudioCodec: "mp4a", BitrateKbps: 129},
			{FormatID: "22", Container: "mp4", Height: 720, Width: 1280, VideoCodec: "avc1", AudioCodec: "mp4a"},
		},
	}
}

type mediaFixture struct {
	handler   *MediaHandler
	fetcher   *mockFetcher
	extractor *stubExtractor
	jobs      *mockJobRepository
	dir       *service.DownloadDir
	router    chi.Router
}

func newMediaFixture(t *testing.T, fallback bool, muxer service.Muxer) *mediaFixture {
	t.Helper()

	dir, err := service.NewDownloadDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDownloadDir failed: %v", err)
	}
	if muxer == nil {
		muxer = stubMuxer{}
	}

	f := &mediaFixture{
		fetcher:   &mockFetcher{meta: sampleMetadata()},
		extractor: &stubExtractor{payload: "media-bytes"},
		jobs:      newMockJobRepository(),
		dir:       dir,
	}
	downloads := service.NewDownloadService(f.extractor, muxer, nil, dir, f.jobs,
		service.DownloadConfig{Strategy: domain.StrategyMux, AudioFormat: "mp3"}, testLogger())
	f.handler = NewMediaHandler(f.fetcher, downloads, fallback, testLogger())

	r := chi.NewRouter()
	r.Post("/api/info", f.handler.Info)
	r.Post("/api/audio", f.handler.Audio)
	r.Post("/api/audio/{quality}", f.handler.Audio)
	r.Post("/api/video", f.handler.Video)
	r.Post("/api/video/{quality}", f.handler.Video)
	f.router = r
	return f
}

func (f *mediaFixture) post(path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected no residual files, found %v", names)
	}
}
