// Package ytdlp wraps the yt-dlp command-line extractor.
package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/iconidentify/ytgrabba/pkg/toolexec"
)

// DefaultUserAgent is a browser identification sent with every request.
// Sites reject clients that do not identify as a browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config configures a Client.
type Config struct {
	Path            string
	UserAgent       string
	FFmpegLocation  string
	MetadataTimeout time.Duration
	DownloadTimeout time.Duration
}

// Client invokes yt-dlp.
type Client struct {
	meta     toolexec.Runner
	download toolexec.Runner
	cfg      Config
}

// NewClient creates a client. An empty Path is resolved from PATH.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Path == "" {
		p, err := exec.LookPath("yt-dlp")
		if err != nil {
			return nil, fmt.Errorf("yt-dlp not found in PATH: %w", err)
		}
		cfg.Path = p
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = 30 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 5 * time.Minute
	}

	return &Client{
		meta:     toolexec.Runner{Path: cfg.Path, Timeout: cfg.MetadataTimeout, Logger: logger},
		download: toolexec.Runner{Path: cfg.Path, Timeout: cfg.DownloadTimeout, Logger: logger},
		cfg:      cfg,
	}, nil
}

// Info is the subset of yt-dlp's JSON dump that callers use.
type Info struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Duration   float64  `json:"duration"`
	Uploader   string   `json:"uploader"`
	ViewCount  int64    `json:"view_count"`
	UploadDate string   `json:"upload_date"`
	Thumbnail  string   `json:"thumbnail"`
	Formats    []Format `json:"formats"`
}

// Format is one entry of Info.Formats.
type Format struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	ABR            float64 `json:"abr"`
	TBR            float64 `json:"tbr"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
}

// ParseInfo decodes a --dump-single-json document.
func ParseInfo(data []byte) (*Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode yt-dlp json: %w", err)
	}
	if info.Title == "" && len(info.Formats) == 0 {
		return nil, fmt.Errorf("decode yt-dlp json: empty document")
	}
	return &info, nil
}

// commonArgs are sent with every invocation.
func (c *Client) commonArgs() []string {
	return []string{
		"--no-warnings",
		"--no-check-certificates",
		"--no-playlist",
		"--add-header", "User-Agent:" + c.cfg.UserAgent,
	}
}

// InfoArgs returns the argument list for a metadata dump of url.
func (c *Client) InfoArgs(url string) []string {
	args := []string{"--dump-single-json", "--skip-download"}
	args = append(args, c.commonArgs()...)
	return append(args, "--", url)
}

// Describe fetches the JSON description of url.
func (c *Client) Describe(ctx context.Context, url string) (*Info, error) {
	out, err := c.meta.Run(ctx, c.InfoArgs(url)...)
	if err != nil {
		return nil, err
	}
	return ParseInfo(out)
}

// DownloadOptions controls a single download invocation.
type DownloadOptions struct {
	// Format is a format id or selector string passed to -f.
	Format string
	// Output is the output path template; %(ext)s is replaced by yt-dlp.
	Output string
	// ExtractAudio converts the result to AudioFormat at AudioQuality.
	ExtractAudio bool
	AudioFormat  string
	AudioQuality string
	// MergeOutputFormat lets yt-dlp merge separate streams itself.
	MergeOutputFormat string
}

// DownloadArgs returns the argument list for downloading url with opts.
func (c *Client) DownloadArgs(url string, opts DownloadOptions) []string {
	args := c.commonArgs()
	args = append(args, "--no-part", "--force-overwrites")
	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}
	if opts.ExtractAudio {
		args = append(args, "-x")
		if opts.AudioFormat != "" {
			args = append(args, "--audio-format", opts.AudioFormat)
		}
		if opts.AudioQuality != "" {
			args = append(args, "--audio-quality", opts.AudioQuality)
		}
	}
	if opts.MergeOutputFormat != "" {
		args = append(args, "--merge-output-format", opts.MergeOutputFormat)
	}
	if c.cfg.FFmpegLocation != "" && (opts.ExtractAudio || opts.MergeOutputFormat != "") {
		args = append(args, "--ffmpeg-location", c.cfg.FFmpegLocation)
	}
	args = append(args, "-o", opts.Output)
	return append(args, "--", url)
}

// Download retrieves url to opts.Output.
func (c *Client) Download(ctx context.Context, url string, opts DownloadOptions) error {
	_, err := c.download.Run(ctx, c.DownloadArgs(url, opts)...)
	return err
}

// Version returns the installed yt-dlp version.
func (c *Client) Version(ctx context.Context) (string, error) {
	return c.meta.Version(ctx, "--version")
}
