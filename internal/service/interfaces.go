package service

import (
	"context"

	"github.com/iconidentify/ytgrabba/pkg/ytdlp"
)

// Extractor queries and downloads from the video host.
type Extractor interface {
	// Describe returns the extractor's JSON description of url.
	Describe(ctx context.Context, url string) (*ytdlp.Info, error)

	// Download writes the rendition selected by opts to opts.Output.
	Download(ctx context.Context, url string, opts ytdlp.DownloadOptions) error
}

// Muxer combines a video-only and an audio-only file into one container.
type Muxer interface {
	Mux(ctx context.Context, videoPath, audioPath, outputPath string) error
}
