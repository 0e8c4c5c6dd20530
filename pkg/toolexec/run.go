// Package toolexec runs external command-line tools with bounded time and
// captured output.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/alessio/shellescape"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// Runner executes a single tool binary.
type Runner struct {
	Path    string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Run executes the tool with args and returns its stdout. A non-zero exit
// yields a *domain.ToolError wrapping domain.ErrExternalTool; exceeding the
// timeout yields one wrapping domain.ErrToolTimeout.
func (r Runner) Run(ctx context.Context, args ...string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tool := filepath.Base(r.Path)
	logger.Debug("exec", "tool", tool, "cmd", shellescape.QuoteCommand(append([]string{r.Path}, args...)))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of the tool may hold the output pipes after it is killed.
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	if err == nil {
		logger.Debug("exec finished", "tool", tool, "duration", time.Since(start))
		return stdout.Bytes(), nil
	}

	cause := domain.ErrExternalTool
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		cause = domain.ErrToolTimeout
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		logger.Warn("exec failed", "tool", tool, "exit_code", exitErr.ExitCode(), "duration", time.Since(start))
	} else {
		logger.Warn("exec failed", "tool", tool, "error", err)
	}

	return stdout.Bytes(), &domain.ToolError{
		Tool:   tool,
		Args:   args,
		Stderr: stderr.String(),
		Err:    cause,
	}
}

// Version runs the tool with a single version flag and returns the first line.
func (r Runner) Version(ctx context.Context, flag string) (string, error) {
	out, err := r.Run(ctx, flag)
	if err != nil {
		return "", err
	}
	line, _, _ := bytes.Cut(bytes.TrimSpace(out), []byte("\n"))
	return string(bytes.TrimSpace(line)), nil
}
