package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

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
	return nil, domain.ErrExternalTool
}

func (stubExtractor) Download(ctx context.Context, url string, opts ytdlp.DownloadOptions) error {
	ext := "mp4"
	if opts.ExtractAudio {
		ext = opts.AudioFormat
	} else if strings.Contains(opts.Format, "audio") {
		ext = "m4a"
	}
	return os.WriteFile(strings.Replace(opts.Output, "%(ext)s", ext, 1), []byte("payload"), 0644)
}

type stubMuxer struct{}

func (stubMuxer) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	return os.WriteFile(outputPath, []byte("muxed"), 0644)
}

func newDownloads(t *testing.T) (*service.DownloadService, string) {
	t.Helper()
	dir, err := service.NewDownloadDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDownloadDir failed: %v", err)
	}
	return service.NewDownloadService(stubExtractor{}, stubMuxer{}, nil, dir,
		repository.NewInMemoryJobRepository(1),
		service.DownloadConfig{Strategy: domain.StrategyMux, AudioFormat: "mp3"},
		testLogger()), dir.Get()
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantKind domain.MediaKind
		wantURL  string
		wantErr  bool
	}{
		{"video default", []string{"-url", "https://youtu.be/abc"}, domain.KindVideo, "https://youtu.be/abc", false},
		{"audio", []string{"-audio", "-url", "https://youtu.be/abc"}, domain.KindAudio, "https://youtu.be/abc", false},
		{"positional url", []string{"-audio", "https://youtu.be/abc"}, domain.KindAudio, "https://youtu.be/abc", false},
		{"missing url", []string{"-audio"}, "", "", true},
		{"both kinds", []string{"-audio", "-video", "-url", "https://youtu.be/abc"}, "", "", true},
		{"unknown flag", []string{"-nope"}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseFlags(tt.args, io.Discard)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if opts.kind != tt.wantKind || opts.url != tt.wantURL {
				t.Errorf("got kind=%q url=%q", opts.kind, opts.url)
			}
		})
	}
}

func TestGrab_ToFile(t *testing.T) {
	downloads, workDir := newDownloads(t)
	out := filepath.Join(t.TempDir(), "song.mp3")
	var stderr bytes.Buffer

	opts := &options{url: "https://youtu.be/dQw4w9WgXcQ", kind: domain.KindAudio, quality: "192", output: out}
	if err := grab(context.Background(), opts, downloads, io.Discard, &stderr); err != nil {
		t.Fatalf("grab failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("output = %q, want payload", data)
	}
	if !strings.Contains(stderr.String(), "saved "+out) {
		t.Errorf("stderr = %q", stderr.String())
	}

	entries, _ := os.ReadDir(workDir)
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %d", len(entries))
	}
}

func TestGrab_ToStdout(t *testing.T) {
	downloads, _ := newDownloads(t)
	var stdout bytes.Buffer

	opts := &options{url: "https://youtu.be/dQw4w9WgXcQ", kind: domain.KindVideo, quality: "720p", output: "-"}
	if err := grab(context.Background(), opts, downloads, &stdout, io.Discard); err != nil {
		t.Fatalf("grab failed: %v", err)
	}
	if stdout.String() != "muxed" {
		t.Errorf("stdout = %q, want muxed", stdout.String())
	}
}

func TestGrab_InvalidInput(t *testing.T) {
	downloads, _ := newDownloads(t)

	tests := []struct {
		name    string
		opts    *options
		wantErr error
	}{
		{"bad url", &options{url: "https://example.com/x", kind: domain.KindAudio}, domain.ErrInvalidSource},
		{"bad quality", &options{url: "https://youtu.be/abc", kind: domain.KindVideo, quality: "8k"}, domain.ErrInvalidQuality},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := grab(context.Background(), tt.opts, downloads, io.Discard, io.Discard)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRun_RefusesTerminalStdout(t *testing.T) {
	old := isTerminal
	isTerminal = func(*os.File) bool { return true }
	t.Cleanup(func() { isTerminal = old })

	opts := &options{url: "https://youtu.be/abc", kind: domain.KindAudio, output: "-"}
	if err := run(context.Background(), opts, testLogger()); !errors.Is(err, errTerminalOutput) {
		t.Errorf("err = %v, want errTerminalOutput", err)
	}
}
