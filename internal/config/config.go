package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/pkg/retry"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Download  DownloadConfig  `yaml:"download"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Muxer     MuxerConfig     `yaml:"muxer"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Bot       BotConfig       `yaml:"bot"`
	History   HistoryConfig   `yaml:"history"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
}

// ServerConfig holds HTTP server configuration. RequestTimeout bounds a
// single request, including the external tools it runs. RateLimit is the
// sustained number of download requests per second.
type ServerConfig struct {
	Host           string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port           int           `yaml:"port" envconfig:"PORT" default:"3001"`
	APIKey         string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout    time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"15m"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"SERVER_REQUEST_TIMEOUT" default:"10m"`
	RateLimit      float64       `yaml:"rate_limit" envconfig:"SERVER_RATE_LIMIT" default:"2"`
	RateBurst      int           `yaml:"rate_burst" envconfig:"SERVER_RATE_BURST" default:"5"`
}

// DownloadConfig holds download orchestration configuration.
type DownloadConfig struct {
	Path          string               `yaml:"path" envconfig:"DOWNLOAD_PATH" default:"downloads"`
	VideoStrategy domain.VideoStrategy `yaml:"video_strategy" envconfig:"VIDEO_STRATEGY" default:"mux"`
	AudioFormat   string               `yaml:"audio_format" envconfig:"AUDIO_FORMAT" default:"mp3"`
}

// ExtractorConfig holds yt-dlp configuration. MetadataAttempts bounds
// metadata lookups retried after rate limits or network errors.
type ExtractorConfig struct {
	Path               string        `yaml:"path" envconfig:"YTDLP_PATH"`
	UserAgent          string        `yaml:"user_agent" envconfig:"YTDLP_USER_AGENT"`
	MetadataTimeout    time.Duration `yaml:"metadata_timeout" envconfig:"YTDLP_METADATA_TIMEOUT" default:"30s"`
	DownloadTimeout    time.Duration `yaml:"download_timeout" envconfig:"YTDLP_DOWNLOAD_TIMEOUT" default:"5m"`
	MetadataAttempts   int           `yaml:"metadata_attempts" envconfig:"YTDLP_METADATA_ATTEMPTS" default:"3"`
	MetadataRetryDelay time.Duration `yaml:"metadata_retry_delay" envconfig:"YTDLP_METADATA_RETRY_DELAY" default:"2s"`
}

// MetadataRetry returns the retry policy for metadata lookups: the package
// defaults with the configured attempts and initial delay applied.
func (c ExtractorConfig) MetadataRetry() retry.Config {
	cfg := retry.Default()
	if c.MetadataAttempts > 0 {
		cfg.MaxAttempts = c.MetadataAttempts
	}
	if c.MetadataRetryDelay > 0 {
		cfg.InitialDelay = c.MetadataRetryDelay
	}
	return cfg
}

// MuxerConfig holds ffmpeg configuration.
type MuxerConfig struct {
	Path    string        `yaml:"path" envconfig:"FFMPEG_PATH"`
	Timeout time.Duration `yaml:"timeout" envconfig:"FFMPEG_TIMEOUT" default:"5m"`
}

// MetadataConfig controls how metadata failures are presented.
type MetadataConfig struct {
	// PlaceholderFallback makes the HTTP API answer with placeholder metadata
	// when the extractor fails instead of returning an error.
	PlaceholderFallback bool `yaml:"placeholder_fallback" envconfig:"METADATA_PLACEHOLDER_FALLBACK" default:"true"`
}

// BotConfig holds chat bot configuration. The bot only starts when Token is set.
type BotConfig struct {
	Token           string        `yaml:"token" envconfig:"TELEGRAM_BOT_TOKEN"`
	SessionCapacity int           `yaml:"session_capacity" envconfig:"BOT_SESSION_CAPACITY" default:"1000"`
	SessionTTL      time.Duration `yaml:"session_ttl" envconfig:"BOT_SESSION_TTL" default:"24h"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" envconfig:"BOT_MAX_UPLOAD_BYTES" default:"52428800"` // 50MB
	PollTimeout     int           `yaml:"poll_timeout" envconfig:"BOT_POLL_TIMEOUT" default:"60"`
}

// HistoryConfig holds job history configuration.
type HistoryConfig struct {
	// SQLitePath enables persistent job history. Empty keeps history in memory.
	SQLitePath string `yaml:"sqlite_path" envconfig:"HISTORY_SQLITE_PATH"`
	// MemoryLimit caps the in-memory history.
	MemoryLimit int `yaml:"memory_limit" envconfig:"HISTORY_MEMORY_LIMIT" default:"500"`
}

// SweeperConfig holds orphaned temp file sweeper configuration.
type SweeperConfig struct {
	Interval time.Duration `yaml:"interval" envconfig:"SWEEPER_INTERVAL" default:"10m"`
	MaxAge   time.Duration `yaml:"max_age" envconfig:"SWEEPER_MAX_AGE" default:"1h"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Download.Path == "" {
		return fmt.Errorf("DOWNLOAD_PATH is required")
	}
	if !c.Download.VideoStrategy.Valid() {
		return fmt.Errorf("VIDEO_STRATEGY %q is not one of mux, direct, tool", c.Download.VideoStrategy)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
		return fmt.Errorf("rate limit and burst must be positive")
	}
	if c.Bot.SessionCapacity <= 0 {
		return fmt.Errorf("BOT_SESSION_CAPACITY must be positive")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BotEnabled reports whether the chat bot should start.
func (c *Config) BotEnabled() bool {
	return c.Bot.Token != ""
}
