package bot

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
	"github.com/iconidentify/ytgrabba/internal/session"
	"github.com/iconidentify/ytgrabba/pkg/ytdlp"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentFile struct {
	chatID   int64
	filename string
	content  string
}

// mockMessenger records everything the handler sends.
type mockMessenger struct {
	mu    sync.Mutex
	texts []string
	files []sentFile
}

func (m *mockMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *mockMessenger) SendFile(ctx context.Context, chatID int64, path, filename string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, sentFile{chatID: chatID, filename: filename, content: string(data)})
	return nil
}

func (m *mockMessenger) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		return ""
	}
	return m.texts[len(m.texts)-1]
}

// mockFetcher is a test implementation of MetadataFetcher. With release
// set, Fetch signals started and waits for release before answering.
type mockFetcher struct {
	meta    *domain.MediaMetadata
	err     error
	calls   int
	started chan struct{}
	release chan struct{}
}

func (m *mockFetcher) Fetch(ctx context.Context, source domain.SourceReference) (*domain.MediaMetadata, error) {
	m.calls++
	if m.release != nil {
		close(m.started)
		<-m.release
	}
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

type stubMuxer struct{}

func (stubMuxer) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	return os.WriteFile(outputPath, []byte("muxed"), 0644)
}

func sampleMetadata() *domain.MediaMetadata {
	return &domain.MediaMetadata{
		Title:           "Test Clip",
		DurationSeconds: 125,
		Uploader:        "Uploader",
		ViewCount:       1234567,
		Formats: []domain.StreamDescriptor{
			{FormatID: "140", Container: "m4a", AudioCodec: "mp4a", BitrateKbps: 129},
			{FormatID: "18", Container: "mp4", Height: 360, VideoCodec: "avc1", AudioCodec: "mp4a", SizeBytes: 5 * 1000 * 1000},
			{FormatID: "136", Container: "mp4", Height: 720, VideoCodec: "avc1"},
			{FormatID: "137", Container: "mp4", Height: 1080, VideoCodec: "avc1", SizeBytes: 40 * 1000 * 1000},
			{FormatID: "248", Container: "webm", Height: 1080, VideoCodec: "vp9"},
		},
	}
}

type botFixture struct {
	handler   *Handler
	messenger *mockMessenger
	fetcher   *mockFetcher
	extractor *stubExtractor
	sessions  *session.Store
	dir       string
}

func newBotFixture(t *testing.T, maxUpload int64) *botFixture {
	t.Helper()

	dlDir, err := service.NewDownloadDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDownloadDir failed: %v", err)
	}

	f := &botFixture{
		messenger: &mockMessenger{},
		fetcher:   &mockFetcher{meta: sampleMetadata()},
		extractor: &stubExtractor{payload: "media-bytes"},
		sessions:  session.NewStore(100, time.Hour),
		dir:       dlDir.Get(),
	}
	downloads := service.NewDownloadService(f.extractor, stubMuxer{}, nil, dlDir,
		repository.NewInMemoryJobRepository(10),
		service.DownloadConfig{Strategy: domain.StrategyMux, AudioFormat: "mp3"}, testLogger())

	f.handler = NewHandler(f.sessions, f.fetcher, downloads, dlDir, f.messenger, maxUpload, testLogger())
	return f
}

func (f *botFixture) send(chatID int64, text string) string {
	f.handler.Handle(context.Background(), Message{ChatID: chatID, Text: text})
	return f.messenger.last()
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
