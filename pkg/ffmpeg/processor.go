package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/iconidentify/ytgrabba/pkg/toolexec"
)

// Muxer combines separate video and audio files using ffmpeg.
type Muxer struct {
	runner toolexec.Runner
}

// NewMuxer creates a new muxer. An empty path is resolved from PATH.
func NewMuxer(ffmpegPath string, timeout time.Duration, logger *slog.Logger) (*Muxer, error) {
	if ffmpegPath == "" {
		p, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
		ffmpegPath = p
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Muxer{
		runner: toolexec.Runner{Path: ffmpegPath, Timeout: timeout, Logger: logger},
	}, nil
}

// Path returns the ffmpeg binary in use.
func (m *Muxer) Path() string {
	return m.runner.Path
}

// MuxArgs returns the ffmpeg arguments that combine the first video stream
// of videoPath with the first audio stream of audioPath into outputPath.
// The video stream is copied; audio is re-encoded to AAC so any source codec
// fits an mp4 container.
func MuxArgs(videoPath, audioPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		outputPath,
	}
}

// Mux combines videoPath and audioPath into outputPath.
func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	_, err := m.runner.Run(ctx, MuxArgs(videoPath, audioPath, outputPath)...)
	return err
}

// Version returns the ffmpeg version string.
func (m *Muxer) Version(ctx context.Context) (string, error) {
	return m.runner.Version(ctx, "-version")
}
