package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
	"github.com/iconidentify/ytgrabba/pkg/ffmpeg"
	"github.com/iconidentify/ytgrabba/pkg/ytdlp"
)

var errTerminalOutput = errors.New("refusing to write binary data to a terminal; use -o FILE or redirect stdout")

type options struct {
	url        string
	kind       domain.MediaKind
	quality    string
	output     string
	infoOnly   bool
	configPath string
	verbose    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("grab", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.url, "url", "", "YouTube URL (required)")
	audio := fs.Bool("audio", false, "Download audio")
	video := fs.Bool("video", false, "Download video (default)")
	fs.StringVar(&opts.quality, "quality", "", "Quality label (audio: 320|256|192|128|best, video: 4k|2k|1080p|720p|480p|360p)")
	fs.StringVar(&opts.output, "o", "", "Output file, or - for stdout (default: title-based name in the current directory)")
	fs.BoolVar(&opts.infoOnly, "info", false, "Print metadata as JSON and exit")
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose logging to stderr")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.url == "" && fs.NArg() == 1 {
		opts.url = fs.Arg(0)
	}
	if opts.url == "" {
		return nil, errors.New("-url is required")
	}
	if *audio && *video {
		return nil, errors.New("-audio and -video are mutually exclusive")
	}
	opts.kind = domain.KindVideo
	if *audio {
		opts.kind = domain.KindAudio
	}
	return opts, nil
}

// Fetcher describes a source.
type Fetcher interface {
	Fetch(ctx context.Context, source domain.SourceReference) (*domain.MediaMetadata, error)
}

// Downloader produces files for delivery.
type Downloader interface {
	Audio(ctx context.Context, req service.DownloadRequest) (*service.Delivery, error)
	Video(ctx context.Context, req service.DownloadRequest) (*service.Delivery, error)
}

// isTerminal is replaced in tests.
var isTerminal = func(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "grab: %v\n", err)
		os.Exit(2)
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		fmt.Fprintf(os.Stderr, "grab: %v\n", err)
		if d := domain.ToolDetails(err); d != "" {
			fmt.Fprintln(os.Stderr, d)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, logger *slog.Logger) error {
	if opts.output == "-" && !opts.infoOnly && isTerminal(os.Stdout) {
		return errTerminalOutput
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	muxer, err := ffmpeg.NewMuxer(cfg.Muxer.Path, cfg.Muxer.Timeout, logger)
	if err != nil {
		return err
	}
	extractor, err := ytdlp.NewClient(ytdlp.Config{
		Path:            cfg.Extractor.Path,
		UserAgent:       cfg.Extractor.UserAgent,
		FFmpegLocation:  muxer.Path(),
		MetadataTimeout: cfg.Extractor.MetadataTimeout,
		DownloadTimeout: cfg.Extractor.DownloadTimeout,
	}, logger)
	if err != nil {
		return err
	}

	tmp, err := os.MkdirTemp("", "ytgrabba-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)
	dir, err := service.NewDownloadDir(tmp)
	if err != nil {
		return err
	}

	metadata := service.NewMetadataService(extractor, logger).WithRetry(cfg.Extractor.MetadataRetry())
	downloads := service.NewDownloadService(extractor, muxer, metadata, dir,
		repository.NewInMemoryJobRepository(1),
		service.DownloadConfig{Strategy: cfg.Download.VideoStrategy, AudioFormat: cfg.Download.AudioFormat},
		logger)

	if opts.infoOnly {
		return printInfo(ctx, opts, metadata, os.Stdout)
	}
	return grab(ctx, opts, downloads, os.Stdout, os.Stderr)
}

func printInfo(ctx context.Context, opts *options, metadata Fetcher, stdout io.Writer) error {
	source, err := domain.ParseSource(opts.url)
	if err != nil {
		return err
	}
	meta, err := metadata.Fetch(ctx, source)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

// grab downloads one file and copies it to the requested output.
func grab(ctx context.Context, opts *options, downloads Downloader, stdout, stderr io.Writer) error {
	source, err := domain.ParseSource(opts.url)
	if err != nil {
		return err
	}
	quality, err := domain.ParseQuality(opts.kind, opts.quality)
	if err != nil {
		return fmt.Errorf("%w: %q", err, opts.quality)
	}

	req := service.DownloadRequest{Source: source, Quality: quality}
	var d *service.Delivery
	if opts.kind == domain.KindAudio {
		d, err = downloads.Audio(ctx, req)
	} else {
		d, err = downloads.Video(ctx, req)
	}
	if err != nil {
		return err
	}
	defer d.Close()

	src, err := d.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	if opts.output == "-" {
		if _, err := io.Copy(stdout, src); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
		d.Delivered(ctx)
		return nil
	}

	name := opts.output
	if name == "" {
		name = d.Filename
	}
	dst, err := os.Create(name)
	if err != nil {
		return err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(name)
		return fmt.Errorf("write %s: %w", name, err)
	}
	d.Delivered(ctx)

	fmt.Fprintf(stderr, "saved %s (%s, %s)\n", name, humanize.Bytes(uint64(n)), quality.Label)
	return nil
}
