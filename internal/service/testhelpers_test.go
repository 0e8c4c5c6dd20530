package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/pkg/ytdlp"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeExtractor is a test implementation of Extractor. Downloads write a
// small file at the requested output, expanding %(ext)s the way the real
// tool would.
type fakeExtractor struct {
	mu sync.Mutex

	info          *ytdlp.Info
	describeErr   error
	describeCalls int
	// describeFailures limits describeErr to the first n calls when set.
	describeFailures int

	// downloadErr fails every download. When writePartial is set the output
	// file is written before failing.
	downloadErr  error
	writePartial bool
	// failAudio fails only the audio half of a mux.
	failAudio bool
	// skipWrite reports success without producing a file.
	skipWrite bool
	// onDownload runs before each download returns.
	onDownload func()

	downloads []ytdlp.DownloadOptions
}

func (f *fakeExtractor) Describe(ctx context.Context, url string) (*ytdlp.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeCalls++
	if f.describeErr != nil && (f.describeFailures == 0 || f.describeCalls <= f.describeFailures) {
		return nil, f.describeErr
	}
	return f.info, nil
}

func (f *fakeExtractor) Download(ctx context.Context, url string, opts ytdlp.DownloadOptions) error {
	f.mu.Lock()
	f.downloads = append(f.downloads, opts)
	hook := f.onDownload
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	isAudio := strings.Contains(opts.Format, "audio") && !strings.Contains(opts.Format, "+")
	if f.failAudio && isAudio {
		return &domain.ToolError{Tool: "yt-dlp", Stderr: "ERROR: audio unavailable", Err: domain.ErrExternalTool}
	}

	ext := "mp4"
	switch {
	case opts.ExtractAudio:
		ext = opts.AudioFormat
	case opts.MergeOutputFormat != "":
		ext = opts.MergeOutputFormat
	case isAudio:
		ext = "m4a"
	}
	path := strings.Replace(opts.Output, "%(ext)s", ext, 1)

	if f.downloadErr != nil {
		if f.writePartial {
			os.WriteFile(path+".part", []byte("partial"), 0644)
		}
		return f.downloadErr
	}
	if f.skipWrite {
		return nil
	}
	return os.WriteFile(path, []byte("media:"+opts.Format), 0644)
}

func (f *fakeExtractor) downloadCalls() []ytdlp.DownloadOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ytdlp.DownloadOptions(nil), f.downloads...)
}

// fakeMuxer is a test implementation of Muxer.
type fakeMuxer struct {
	err error
	// writeOnError leaves a partial output behind when failing.
	writeOnError bool
	calls        int
}

func (m *fakeMuxer) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	m.calls++
	if m.err != nil {
		if m.writeOnError {
			os.WriteFile(outputPath, []byte("broken"), 0644)
		}
		return m.err
	}
	v, err := os.ReadFile(videoPath)
	if err != nil {
		return err
	}
	a, err := os.ReadFile(audioPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, append(v, a...), 0644)
}

// sampleInfo returns an extractor document with a typical format ladder.
func sampleInfo() *ytdlp.Info {
	return &ytdlp.Info{
		ID:       "dQw4w9WgXcQ",
		Title:    "Never Gonna Give You Up",
		Duration: 213,
		Uploader: "Rick Astley",
		Formats: []ytdlp.Format{
			{FormatID: "139", Ext: "m4a", VCodec: "none", ACodec: "mp4a.40.5", ABR: 48},
			{FormatID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a.40.2", ABR: 129},
			{FormatID: "251", Ext: "webm", VCodec: "none", ACodec: "opus", ABR: 160},
			{FormatID: "18", Ext: "mp4", Height: 360, Width: 640, VCodec: "avc1", ACodec: "mp4a.40.2", Filesize: 1000},
			{FormatID: "22", Ext: "mp4", Height: 720, Width: 1280, VCodec: "avc1", ACodec: "mp4a.40.2"},
			{FormatID: "136", Ext: "mp4", Height: 720, Width: 1280, VCodec: "avc1", ACodec: "none"},
			{FormatID: "137", Ext: "mp4", Height: 1080, Width: 1920, VCodec: "avc1", ACodec: "none"},
			{FormatID: "248", Ext: "webm", Height: 1080, Width: 1920, VCodec: "vp9", ACodec: "none"},
		},
	}
}

type serviceFixture struct {
	dir       string
	extractor *fakeExtractor
	muxer     *fakeMuxer
	jobs      *repository.InMemoryJobRepository
	downloads *DownloadService
	dlDir     *DownloadDir
}

func newFixture(t *testing.T, strategy domain.VideoStrategy) *serviceFixture {
	t.Helper()

	dir := t.TempDir()
	dlDir, err := NewDownloadDir(dir)
	if err != nil {
		t.Fatalf("NewDownloadDir failed: %v", err)
	}

	f := &serviceFixture{
		dir:       dlDir.Get(),
		extractor: &fakeExtractor{info: sampleInfo()},
		muxer:     &fakeMuxer{},
		jobs:      repository.NewInMemoryJobRepository(10),
		dlDir:     dlDir,
	}
	meta := NewMetadataService(f.extractor, testLogger())
	f.downloads = NewDownloadService(f.extractor, f.muxer, meta, dlDir, f.jobs,
		DownloadConfig{Strategy: strategy, AudioFormat: "mp3"}, testLogger())
	return f
}

// listDir returns the names of all entries in dir.
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("expected no residual files in %s, found %v", filepath.Base(dir), names)
	}
}
