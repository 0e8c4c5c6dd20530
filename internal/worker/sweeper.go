package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/iconidentify/ytgrabba/internal/service"
)

// ErrShutdownTimeout is returned when the sweeper doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("sweeper shutdown timed out")

// DirProvider returns the active download directory.
type DirProvider interface {
	Get() string
}

// Sweeper periodically removes temporary job files left behind by crashes
// or killed processes. A directory replaced by a download path change stays
// on its list until it no longer exists or holds no temp files.
type Sweeper struct {
	interval time.Duration
	maxAge   time.Duration
	dir      DirProvider
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds sweeper configuration.
type Config struct {
	Interval time.Duration
	// MaxAge must exceed the longest download, or in-flight files are removed.
	MaxAge time.Duration
}

// NewSweeper creates a new temp-file sweeper.
func NewSweeper(cfg Config, dir DirProvider, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Sweeper{
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		dir:      dir,
		logger:   logger,
		seen:     make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	s.logger.Info("starting temp file sweeper", "interval", s.interval, "max_age", s.maxAge)

	s.wg.Add(1)
	go s.run()
}

// Stop gracefully stops the sweep loop.
func (s *Sweeper) Stop(timeout time.Duration) error {
	s.logger.Info("stopping temp file sweeper")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("temp file sweeper stopped")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(time.Now())
		}
	}
}

// Sweep removes job files older than the configured age and returns how
// many were removed.
func (s *Sweeper) Sweep(now time.Time) int {
	active := s.dir.Get()

	s.mu.Lock()
	s.seen[active] = struct{}{}
	dirs := make([]string, 0, len(s.seen))
	for d := range s.seen {
		dirs = append(dirs, d)
	}
	s.mu.Unlock()

	cutoff := now.Add(-s.maxAge)
	removed := 0
	var done []string
	for _, dir := range dirs {
		n, left := s.sweepDir(dir, cutoff)
		removed += n
		if dir != active && left == 0 {
			done = append(done, dir)
		}
	}

	if len(done) > 0 {
		s.mu.Lock()
		for _, dir := range done {
			delete(s.seen, dir)
		}
		s.mu.Unlock()
	}
	if removed > 0 {
		s.logger.Info("removed stale temp files", "count", removed)
	}
	return removed
}

// sweepDir removes stale temp files in dir. It returns how many were
// removed and how many temp files are left. An unreadable directory counts
// as having files left unless it is gone.
func (s *Sweeper) sweepDir(dir string, cutoff time.Time) (removed, left int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, 0
		}
		s.logger.Warn("sweep read dir failed", "dir", dir, "error", err)
		return 0, 1
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), service.TempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			left++
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("sweep remove failed", "path", path, "error", err)
			left++
			continue
		}
		s.logger.Debug("removed stale temp file", "path", path, "modified", info.ModTime())
		removed++
	}
	return removed, left
}

// tracked returns the number of directories on the sweep list.
func (s *Sweeper) tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
