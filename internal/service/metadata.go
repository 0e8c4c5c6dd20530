package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/pkg/retry"
	"github.com/iconidentify/ytgrabba/pkg/ytdlp"
)

// MetadataService fetches and normalizes source descriptions.
type MetadataService struct {
	extractor Extractor
	retry     retry.Config
	logger    *slog.Logger
}

// NewMetadataService creates a new metadata service.
func NewMetadataService(extractor Extractor, logger *slog.Logger) *MetadataService {
	return &MetadataService{
		extractor: extractor,
		retry:     retry.Config{MaxAttempts: 1},
		logger:    logger,
	}
}

// WithRetry makes Fetch retry transient extractor failures.
func (s *MetadataService) WithRetry(cfg retry.Config) *MetadataService {
	s.retry = cfg
	return s
}

// Fetch returns metadata for source. Extractor failures are reported as
// errors wrapping domain.ErrMetadataUnavailable; callers decide whether to
// fall back to domain.PlaceholderMetadata.
func (s *MetadataService) Fetch(ctx context.Context, source domain.SourceReference) (*domain.MediaMetadata, error) {
	attempt := 0
	info, err := retry.Do(ctx, s.retry, func(ctx context.Context) (*ytdlp.Info, error) {
		attempt++
		if attempt > 1 {
			s.logger.Debug("retrying metadata fetch", "url", source, "attempt", attempt)
		}
		return s.extractor.Describe(ctx, source.String())
	}, isTransient)
	if err != nil {
		s.logger.Warn("metadata fetch failed", "url", source, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrMetadataUnavailable, err)
	}

	meta := Normalize(info)
	s.logger.Info("metadata fetched",
		"url", source,
		"title", meta.Title,
		"formats", len(meta.Formats),
	)
	return meta, nil
}

// Normalize converts an extractor document into MediaMetadata. A missing
// title stays empty; only PlaceholderMetadata carries the placeholder title.
func Normalize(info *ytdlp.Info) *domain.MediaMetadata {
	meta := &domain.MediaMetadata{
		Title:           info.Title,
		DurationSeconds: info.Duration,
		Uploader:        info.Uploader,
		ViewCount:       info.ViewCount,
		UploadDate:      info.UploadDate,
		ThumbnailURL:    info.Thumbnail,
		Formats:         make([]domain.StreamDescriptor, 0, len(info.Formats)),
	}
	for _, f := range info.Formats {
		if f.FormatID == "" {
			continue
		}
		d := domain.StreamDescriptor{
			FormatID:   f.FormatID,
			Container:  strings.ToLower(f.Ext),
			Height:     f.Height,
			Width:      f.Width,
			VideoCodec: codec(f.VCodec),
			AudioCodec: codec(f.ACodec),
			SizeBytes:  f.Filesize,
		}
		if d.SizeBytes == 0 {
			d.SizeBytes = f.FilesizeApprox
		}
		d.BitrateKbps = f.ABR
		if d.BitrateKbps == 0 && d.IsAudioOnly() {
			d.BitrateKbps = f.TBR
		}
		meta.Formats = append(meta.Formats, d)
	}

	return meta
}

// codec maps the extractor's "none" marker to an empty codec.
func codec(c string) string {
	if c == "none" {
		return ""
	}
	return c
}

// transientMarkers appear in extractor output for failures worth retrying.
var transientMarkers = []string{
	"HTTP Error 429",
	"HTTP Error 500",
	"HTTP Error 502",
	"HTTP Error 503",
	"HTTP Error 504",
	"Connection reset",
	"Temporary failure in name resolution",
	"timed out",
}

// isTransient reports whether err looks like a network or rate-limit
// failure rather than a problem with the video itself.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrToolTimeout) {
		return true
	}
	details := domain.ToolDetails(err)
	for _, m := range transientMarkers {
		if strings.Contains(details, m) {
			return true
		}
	}
	return false
}
