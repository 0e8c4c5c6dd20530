package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/iconidentify/ytgrabba/internal/api"
	"github.com/iconidentify/ytgrabba/internal/api/handler"
	"github.com/iconidentify/ytgrabba/internal/bot"
	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
	"github.com/iconidentify/ytgrabba/internal/session"
	"github.com/iconidentify/ytgrabba/internal/worker"
	"github.com/iconidentify/ytgrabba/pkg/ffmpeg"
	"github.com/iconidentify/ytgrabba/pkg/ytdlp"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ytgrabba %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting ytgrabba",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// External tools
	muxer, err := ffmpeg.NewMuxer(cfg.Muxer.Path, cfg.Muxer.Timeout, logger)
	if err != nil {
		logger.Error("failed to initialize ffmpeg", "error", err)
		os.Exit(1)
	}
	extractor, err := ytdlp.NewClient(ytdlp.Config{
		Path:            cfg.Extractor.Path,
		UserAgent:       cfg.Extractor.UserAgent,
		FFmpegLocation:  muxer.Path(),
		MetadataTimeout: cfg.Extractor.MetadataTimeout,
		DownloadTimeout: cfg.Extractor.DownloadTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize yt-dlp", "error", err)
		os.Exit(1)
	}

	// Download directory
	dir, err := service.NewDownloadDir(cfg.Download.Path)
	if err != nil {
		logger.Error("failed to prepare download directory", "error", err)
		os.Exit(1)
	}
	logger.Info("download directory ready", "path", dir.Get())

	// Job history
	var jobRepo repository.JobRepository
	if cfg.History.SQLitePath != "" {
		sqliteRepo, err := repository.NewSQLiteJobRepository(cfg.History.SQLitePath)
		if err != nil {
			logger.Error("failed to open job history", "path", cfg.History.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer sqliteRepo.Close()
		jobRepo = sqliteRepo
	} else {
		jobRepo = repository.NewInMemoryJobRepository(cfg.History.MemoryLimit)
	}

	// Initialize services
	metadataSvc := service.NewMetadataService(extractor, logger).WithRetry(cfg.Extractor.MetadataRetry())
	downloadSvc := service.NewDownloadService(
		extractor,
		muxer,
		metadataSvc,
		dir,
		jobRepo,
		service.DownloadConfig{
			Strategy:    cfg.Download.VideoStrategy,
			AudioFormat: cfg.Download.AudioFormat,
		},
		logger,
	)

	// Initialize handlers
	mediaHandler := handler.NewMediaHandler(metadataSvc, downloadSvc, cfg.Metadata.PlaceholderFallback, logger)
	pathHandler := handler.NewPathHandler(dir, logger)
	jobsHandler := handler.NewJobsHandler(jobRepo, logger)
	healthHandler := handler.NewHealthHandler(jobRepo, dir).WithToolVersions(toolVersions(extractor, muxer, logger))

	// Setup router
	router := api.NewRouter(mediaHandler, pathHandler, jobsHandler, healthHandler, api.RouterConfig{
		APIKey:         cfg.Server.APIKey,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	// Start temp file sweeper
	sweeper := worker.NewSweeper(worker.Config{
		Interval: cfg.Sweeper.Interval,
		MaxAge:   cfg.Sweeper.MaxAge,
	}, dir, logger)
	sweeper.Start()

	// Start chat bot if configured
	botCtx, cancelBot := context.WithCancel(context.Background())
	var botWG sync.WaitGroup
	if cfg.BotEnabled() {
		tg, err := bot.NewTelegram(cfg.Bot.Token, cfg.Bot.PollTimeout, logger)
		if err != nil {
			logger.Error("failed to start telegram bot", "error", err)
			os.Exit(1)
		}
		sessions := session.NewStore(cfg.Bot.SessionCapacity, cfg.Bot.SessionTTL)
		chat := bot.NewHandler(sessions, metadataSvc, downloadSvc, dir, tg, cfg.Bot.MaxUploadBytes, logger)

		botWG.Add(1)
		go func() {
			defer botWG.Done()
			if err := tg.Run(botCtx, chat); err != nil {
				logger.Error("telegram bot stopped", "error", err)
			}
		}()
	} else {
		logger.Info("telegram bot disabled (TELEGRAM_BOT_TOKEN not set)")
	}

	// Setup HTTP server
	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr, "video_strategy", downloadSvc.Strategy())
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop polling for chat updates
	cancelBot()
	botWG.Wait()

	if err := sweeper.Stop(5 * time.Second); err != nil {
		logger.Error("sweeper shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// versioner is implemented by the external tool wrappers.
type versioner interface {
	Version(ctx context.Context) (string, error)
}

// toolVersions asks each tool for its version and logs it. A tool that
// cannot report one is listed as "unknown".
func toolVersions(extractor, muxer versioner, logger *slog.Logger) map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	versions := make(map[string]string, 2)
	for name, tool := range map[string]versioner{"yt-dlp": extractor, "ffmpeg": muxer} {
		v, err := tool.Version(ctx)
		if err != nil {
			logger.Warn("tool version unavailable", "tool", name, "error", err)
			v = "unknown"
		} else {
			logger.Info("external tool found", "tool", name, "version", v)
		}
		versions[name] = v
	}
	return versions
}
