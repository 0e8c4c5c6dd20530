package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/pkg/ytdlp"
)

// TempPrefix starts every file a job writes into the download directory.
const TempPrefix = "ytg-"

// DownloadService orchestrates extractor and muxer invocations for a single
// request and owns the temporary files they produce.
type DownloadService struct {
	extractor   Extractor
	muxer       Muxer
	metadata    *MetadataService
	dir         *DownloadDir
	jobs        repository.JobRepository
	strategy    domain.VideoStrategy
	audioFormat string
	logger      *slog.Logger
}

// DownloadConfig configures a DownloadService.
type DownloadConfig struct {
	Strategy    domain.VideoStrategy
	AudioFormat string
}

// NewDownloadService creates a new download service.
func NewDownloadService(
	extractor Extractor,
	muxer Muxer,
	metadata *MetadataService,
	dir *DownloadDir,
	jobs repository.JobRepository,
	cfg DownloadConfig,
	logger *slog.Logger,
) *DownloadService {
	if !cfg.Strategy.Valid() {
		cfg.Strategy = domain.StrategyMux
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "mp3"
	}
	return &DownloadService{
		extractor:   extractor,
		muxer:       muxer,
		metadata:    metadata,
		dir:         dir,
		jobs:        jobs,
		strategy:    cfg.Strategy,
		audioFormat: cfg.AudioFormat,
		logger:      logger,
	}
}

// Strategy returns the configured video strategy.
func (s *DownloadService) Strategy() domain.VideoStrategy {
	return s.strategy
}

// DownloadRequest describes one download.
type DownloadRequest struct {
	Source  domain.SourceReference
	Quality domain.QualityRequest
	// Metadata is optional. When nil it is fetched; a failed fetch or
	// placeholder metadata means the extractor selects the stream itself.
	Metadata *domain.MediaMetadata
}

// Audio extracts an audio rendition of the source.
func (s *DownloadService) Audio(ctx context.Context, req DownloadRequest) (*Delivery, error) {
	if req.Quality.Kind != domain.KindAudio {
		return nil, domain.ErrInvalidQuality
	}

	meta := s.resolveMetadata(ctx, req)
	job := s.newJob(req, domain.KindAudio)
	job.FormatID = formatFor(meta, req.Quality, Select)
	base := filepath.Join(job.Dir, TempPrefix+job.ID.String())
	job.Track(base + "." + s.audioFormat)
	s.record(ctx, job)

	err := s.extractor.Download(ctx, req.Source.String(), ytdlp.DownloadOptions{
		Format:       job.FormatID,
		Output:       base + ".%(ext)s",
		ExtractAudio: true,
		AudioFormat:  s.audioFormat,
		AudioQuality: audioQuality(req.Quality),
	})
	if err != nil {
		return nil, s.fail(ctx, job, "extract audio", err)
	}

	out, err := locateOutput(job.Dir, filepath.Base(base))
	if err != nil {
		return nil, s.fail(ctx, job, "extract audio", err)
	}
	return s.deliver(ctx, job, out, meta)
}

// Video produces an mp4 of the source using the configured strategy.
func (s *DownloadService) Video(ctx context.Context, req DownloadRequest) (*Delivery, error) {
	if req.Quality.Kind != domain.KindVideo {
		return nil, domain.ErrInvalidQuality
	}

	meta := s.resolveMetadata(ctx, req)
	job := s.newJob(req, domain.KindVideo)

	var (
		out string
		err error
	)
	switch s.strategy {
	case domain.StrategyDirect:
		out, err = s.videoDirect(ctx, job, req, meta)
	case domain.StrategyTool:
		out, err = s.videoTool(ctx, job, req)
	default:
		out, err = s.videoMux(ctx, job, req, meta)
	}
	if err != nil {
		return nil, err
	}
	return s.deliver(ctx, job, out, meta)
}

// videoMux downloads the video-only and audio-only halves concurrently and
// combines them with the muxer.
func (s *DownloadService) videoMux(ctx context.Context, job *domain.DownloadJob, req DownloadRequest, meta *domain.MediaMetadata) (string, error) {
	base := filepath.Join(job.Dir, TempPrefix+job.ID.String())
	videoBase, audioBase := base+"-v", base+"-a"
	final := base + "-final.mp4"

	videoFormat := VideoOnlySelectorString(req.Quality)
	if meta != nil {
		if f, err := Select(meta.Formats, req.Quality); err == nil {
			videoFormat = f.FormatID
		}
	}
	job.FormatID = videoFormat
	job.Track(videoBase + ".mp4")
	job.Track(audioBase + ".m4a")
	job.Track(final)
	s.record(ctx, job)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.extractor.Download(gctx, req.Source.String(), ytdlp.DownloadOptions{
			Format: videoFormat,
			Output: videoBase + ".%(ext)s",
		})
	})
	g.Go(func() error {
		return s.extractor.Download(gctx, req.Source.String(), ytdlp.DownloadOptions{
			Format: "bestaudio[ext=m4a]/bestaudio",
			Output: audioBase + ".%(ext)s",
		})
	})
	if err := g.Wait(); err != nil {
		return "", s.fail(ctx, job, "download streams", err)
	}

	videoPath, err := locateOutput(job.Dir, filepath.Base(videoBase))
	if err != nil {
		return "", s.fail(ctx, job, "download streams", err)
	}
	audioPath, err := locateOutput(job.Dir, filepath.Base(audioBase))
	if err != nil {
		return "", s.fail(ctx, job, "download streams", err)
	}

	if err := s.muxer.Mux(ctx, videoPath, audioPath, final); err != nil {
		return "", s.fail(ctx, job, "mux", fmt.Errorf("%w: %w", domain.ErrProcessingFailed, err))
	}
	if _, err := os.Stat(final); err != nil {
		return "", s.fail(ctx, job, "mux", domain.ErrOutputMissing)
	}

	s.removeFiles(job, videoPath, audioPath)
	return final, nil
}

// videoDirect downloads a single stream that already carries audio.
func (s *DownloadService) videoDirect(ctx context.Context, job *domain.DownloadJob, req DownloadRequest, meta *domain.MediaMetadata) (string, error) {
	base := filepath.Join(job.Dir, TempPrefix+job.ID.String())
	job.FormatID = formatFor(meta, req.Quality, SelectMuxed)
	job.Track(base + ".mp4")
	s.record(ctx, job)

	err := s.extractor.Download(ctx, req.Source.String(), ytdlp.DownloadOptions{
		Format: job.FormatID,
		Output: base + ".%(ext)s",
	})
	if err != nil {
		return "", s.fail(ctx, job, "download video", err)
	}

	out, err := locateOutput(job.Dir, filepath.Base(base))
	if err != nil {
		return "", s.fail(ctx, job, "download video", err)
	}
	return out, nil
}

// videoTool lets the extractor select both halves and drive the muxer.
func (s *DownloadService) videoTool(ctx context.Context, job *domain.DownloadJob, req DownloadRequest) (string, error) {
	base := filepath.Join(job.Dir, TempPrefix+job.ID.String())
	job.FormatID = MergeSelectorString(req.Quality)
	job.Track(base + ".mp4")
	s.record(ctx, job)

	err := s.extractor.Download(ctx, req.Source.String(), ytdlp.DownloadOptions{
		Format:            job.FormatID,
		Output:            base + ".%(ext)s",
		MergeOutputFormat: "mp4",
	})
	if err != nil {
		return "", s.fail(ctx, job, "download video", err)
	}

	out, err := locateOutput(job.Dir, filepath.Base(base))
	if err != nil {
		return "", s.fail(ctx, job, "download video", err)
	}
	return out, nil
}

func (s *DownloadService) newJob(req DownloadRequest, kind domain.MediaKind) *domain.DownloadJob {
	job := domain.NewJob(domain.JobID(uuid.New().String()), req.Source, kind, req.Quality.Label, s.dir.Get())
	if kind == domain.KindVideo {
		job.Strategy = s.strategy
	}
	return job
}

// resolveMetadata returns metadata usable for stream selection, or nil.
func (s *DownloadService) resolveMetadata(ctx context.Context, req DownloadRequest) *domain.MediaMetadata {
	if req.Metadata != nil {
		if req.Metadata.Placeholder {
			return nil
		}
		return req.Metadata
	}
	if req.Quality.IsDefault() || s.metadata == nil {
		return nil
	}
	meta, err := s.metadata.Fetch(ctx, req.Source)
	if err != nil {
		s.logger.Debug("using extractor selector", "url", req.Source, "reason", err)
		return nil
	}
	return meta
}

// formatFor resolves the -f argument: a concrete stream id when one matches,
// otherwise the extractor selector string.
func formatFor(meta *domain.MediaMetadata, q domain.QualityRequest, sel func([]domain.StreamDescriptor, domain.QualityRequest) (domain.StreamDescriptor, error)) string {
	if meta != nil {
		if f, err := sel(meta.Formats, q); err == nil {
			return f.FormatID
		}
	}
	return SelectorString(q)
}

func audioQuality(q domain.QualityRequest) string {
	if q.IsDefault() {
		return "0"
	}
	return fmt.Sprintf("%dK", q.Target)
}

func (s *DownloadService) deliver(ctx context.Context, job *domain.DownloadJob, path string, meta *domain.MediaMetadata) (*Delivery, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, s.fail(ctx, job, "deliver", domain.ErrOutputMissing)
	}
	job.MarkPopulated(info.Size())
	s.record(ctx, job)

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	title := ""
	if meta != nil {
		title = meta.Title
	}

	s.logger.Info("download ready",
		"job_id", job.ID,
		"kind", job.Kind,
		"quality", job.Quality,
		"format", job.FormatID,
		"size", info.Size(),
	)

	return &Delivery{
		Job:         job,
		Path:        path,
		Filename:    DeliveryFilename(title, job.Kind, ext),
		ContentType: ContentType(ext),
		Size:        info.Size(),
		service:     s,
	}, nil
}

// fail purges the job's files, records the failure and wraps err.
func (s *DownloadService) fail(ctx context.Context, job *domain.DownloadJob, op string, err error) error {
	if cerr := s.purge(job); cerr != nil {
		s.logger.Warn("cleanup failed", "job_id", job.ID, "error", cerr)
	}
	job.MarkFailed(err.Error())
	s.record(ctx, job)
	s.logger.Error("download failed", "job_id", job.ID, "op", op, "error", err)
	return domain.NewJobError(job.ID, op, err)
}

// purge removes every file tracked by the job along with anything else the
// tools left behind under the job's prefix.
func (s *DownloadService) purge(job *domain.DownloadJob) error {
	var first error
	remove := func(path string) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && first == nil {
			first = err
		}
	}

	for _, f := range job.Files {
		remove(f)
	}

	entries, err := os.ReadDir(job.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return first
		}
		return err
	}
	prefix := TempPrefix + job.ID.String()
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			remove(filepath.Join(job.Dir, e.Name()))
		}
	}
	return first
}

func (s *DownloadService) removeFiles(job *domain.DownloadJob, paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove intermediate failed", "job_id", job.ID, "path", p, "error", err)
		}
	}
}

// record persists job state. History is best effort and survives request
// cancellation.
func (s *DownloadService) record(ctx context.Context, job *domain.DownloadJob) {
	if s.jobs == nil {
		return
	}
	if err := s.jobs.Save(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Warn("record job failed", "job_id", job.ID, "error", err)
	}
}

// locateOutput finds the file the extractor wrote for base, whatever
// extension it chose.
func locateOutput(dir, base string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrOutputMissing, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, base+".") {
			continue
		}
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		return filepath.Join(dir, name), nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrOutputMissing, base)
}

// Delivery is a populated job ready to be streamed to the caller. Close
// must be called once the caller is done with the file.
type Delivery struct {
	Job         *domain.DownloadJob
	Path        string
	Filename    string
	ContentType string
	Size        int64

	service   *DownloadService
	closeOnce sync.Once
}

// Open opens the output for reading.
func (d *Delivery) Open() (*os.File, error) {
	return os.Open(d.Path)
}

// Delivered records that the bytes reached the caller.
func (d *Delivery) Delivered(ctx context.Context) {
	d.Job.MarkDelivered()
	d.service.record(ctx, d.Job)
}

// Close purges the job's files. Cleanup failures are logged, never returned.
func (d *Delivery) Close() error {
	d.closeOnce.Do(func() {
		s := d.service
		if err := s.purge(d.Job); err != nil {
			s.logger.Warn("cleanup failed", "job_id", d.Job.ID, "error", err)
		}
		d.Job.MarkPurged()
		s.record(context.Background(), d.Job)
		s.logger.Debug("job purged", "job_id", d.Job.ID, "status", d.Job.Status)
	})
	return nil
}
