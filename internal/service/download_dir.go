package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// DownloadDir holds the directory new jobs write into. Jobs copy the value
// when they are created, so changing it never affects jobs in flight.
type DownloadDir struct {
	mu   sync.RWMutex
	path string
}

// NewDownloadDir validates path and returns a DownloadDir rooted there.
func NewDownloadDir(path string) (*DownloadDir, error) {
	abs, err := prepareDir(path)
	if err != nil {
		return nil, err
	}
	return &DownloadDir{path: abs}, nil
}

// Get returns the current directory.
func (d *DownloadDir) Get() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.path
}

// Set switches to path after creating it and checking it is writable.
// On failure the previous directory stays active.
func (d *DownloadDir) Set(path string) (string, error) {
	abs, err := prepareDir(path)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.path = abs
	d.mu.Unlock()
	return abs, nil
}

func prepareDir(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", domain.ErrPathInvalid)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrPathInvalid, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrPathInvalid, err)
	}

	probe, err := os.CreateTemp(abs, ".ytg-probe-*")
	if err != nil {
		return "", fmt.Errorf("%w: not writable: %w", domain.ErrPathInvalid, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return abs, nil
}
