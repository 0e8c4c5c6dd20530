package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Domain errors.
var (
	// ErrInvalidInput is returned when a required request field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidSource is returned when a URL is not a recognized video page URL.
	ErrInvalidSource = errors.New("invalid YouTube URL")

	// ErrInvalidQuality is returned when a quality label is not part of the known set.
	ErrInvalidQuality = errors.New("unknown quality")

	// ErrQualityUnavailable is returned when no stream matches the requested quality.
	ErrQualityUnavailable = errors.New("requested quality unavailable")

	// ErrMetadataUnavailable is returned when the extractor could not describe a source.
	ErrMetadataUnavailable = errors.New("metadata unavailable")

	// ErrExternalTool is returned when the extractor or muxer exits with an error.
	ErrExternalTool = errors.New("external tool failed")

	// ErrToolTimeout is returned when an external tool exceeds its time budget.
	ErrToolTimeout = errors.New("external tool timed out")

	// ErrProcessingFailed is returned when muxing the video and audio streams fails.
	ErrProcessingFailed = errors.New("failed to process video")

	// ErrOutputMissing is returned when a tool reports success but the expected file is absent.
	ErrOutputMissing = errors.New("expected output file missing")

	// ErrPathInvalid is returned when a download directory cannot be created or written.
	ErrPathInvalid = errors.New("invalid download path")

	// ErrJobNotFound is returned when a job record cannot be found.
	ErrJobNotFound = errors.New("job not found")
)

// ToolError describes a failed external tool invocation.
type ToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := e.Tool + ": " + e.Err.Error()
	if d := e.Details(); d != "" {
		msg += ": " + d
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

const maxDetailsBytes = 500

// Details returns the last meaningful lines of the tool's stderr, capped
// so it can be surfaced to API callers.
func (e *ToolError) Details() string {
	s := strings.TrimSpace(e.Stderr)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	s = strings.Join(lines, "\n")
	if len(s) > maxDetailsBytes {
		i := len(s) - maxDetailsBytes
		for i < len(s) && !utf8.RuneStart(s[i]) {
			i++
		}
		s = s[i:]
	}
	return s
}

// ToolDetails extracts the tool message from err if it wraps a ToolError.
func ToolDetails(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Details()
	}
	return ""
}

// JobError wraps an error with download job context.
type JobError struct {
	JobID JobID
	Op    string
	Err   error
}

func (e *JobError) Error() string {
	if e.JobID != "" {
		return e.Op + " [" + e.JobID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError creates a new JobError.
func NewJobError(jobID JobID, op string, err error) *JobError {
	return &JobError{
		JobID: jobID,
		Op:    op,
		Err:   err,
	}
}
