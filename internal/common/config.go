package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Retention   RetentionConfig `toml:"retention"`
	Downloads   DownloadsConfig `toml:"downloads"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host"`
}

// StorageConfig holds the filesystem roots for job output and scratch files
type StorageConfig struct {
	OutputDir  string `toml:"output_dir" validate:"required"`
	ScratchDir string `toml:"scratch_dir" validate:"required"`
}

// RetentionConfig controls the periodic disk/record sweep
type RetentionConfig struct {
	SweepIntervalSeconds int `toml:"sweep_interval_seconds" validate:"gt=0"`
	MaxAgeSeconds        int `toml:"max_age_seconds" validate:"gt=0"`
}

// SweepInterval returns the sweep cadence as a duration
func (r RetentionConfig) SweepInterval() time.Duration {
	return time.Duration(r.SweepIntervalSeconds) * time.Second
}

// MaxAge returns the eviction threshold as a duration
func (r RetentionConfig) MaxAge() time.Duration {
	return time.Duration(r.MaxAgeSeconds) * time.Second
}

// DownloadsConfig holds the external tool paths and the public URL base
// under which completed files are served
type DownloadsConfig struct {
	PublicBasePath string `toml:"public_base_path"`
	YtdlpPath      string `toml:"ytdlp_path"`
	FfmpegPath     string `toml:"ffmpeg_path"`
	FfprobePath    string `toml:"ffprobe_path"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// WebSocketConfig controls the live job-event channel
type WebSocketConfig struct {
	Enabled    bool `toml:"enabled"`
	ThrottleMs int  `toml:"throttle_ms"` // minimum gap between pushed events per type
}

// NewDefaultConfig returns the built-in defaults, overridable by config
// files, CAPTO_* environment variables, and CLI flags in that order
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 13959,
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			OutputDir:  "./downloads",
			ScratchDir: "./tmp",
		},
		Retention: RetentionConfig{
			SweepIntervalSeconds: 300,
			MaxAgeSeconds:        300,
		},
		Downloads: DownloadsConfig{
			PublicBasePath: "/api/download",
			YtdlpPath:      "yt-dlp",
			FfmpegPath:     "ffmpeg",
			FfprobePath:    "ffprobe",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		WebSocket: WebSocketConfig{
			Enabled:    true,
			ThrottleMs: 250,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier
// files; CLI flags are applied afterwards by the caller and win overall.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks the loaded configuration against its struct constraints
func (c *Config) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CAPTO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("CAPTO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CAPTO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if outputDir := os.Getenv("CAPTO_OUTPUT_DIR"); outputDir != "" {
		config.Storage.OutputDir = outputDir
	}
	if scratchDir := os.Getenv("CAPTO_SCRATCH_DIR"); scratchDir != "" {
		config.Storage.ScratchDir = scratchDir
	}

	// Retention configuration (seconds, matching the service's env surface)
	if interval := os.Getenv("CAPTO_CLEANUP_INTERVAL"); interval != "" {
		if v, err := strconv.Atoi(interval); err == nil {
			config.Retention.SweepIntervalSeconds = v
		}
	}
	if maxAge := os.Getenv("CAPTO_MAX_FILE_AGE"); maxAge != "" {
		if v, err := strconv.Atoi(maxAge); err == nil {
			config.Retention.MaxAgeSeconds = v
		}
	}

	// External tool paths
	if ytdlp := os.Getenv("CAPTO_YTDLP_PATH"); ytdlp != "" {
		config.Downloads.YtdlpPath = ytdlp
	}
	if ffmpeg := os.Getenv("CAPTO_FFMPEG_PATH"); ffmpeg != "" {
		config.Downloads.FfmpegPath = ffmpeg
	}
	if ffprobe := os.Getenv("CAPTO_FFPROBE_PATH"); ffprobe != "" {
		config.Downloads.FfprobePath = ffprobe
	}

	// Logging configuration
	if level := os.Getenv("CAPTO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CAPTO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// WebSocket configuration
	if enabled := os.Getenv("CAPTO_WEBSOCKET_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.WebSocket.Enabled = e
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// EnsureDirectories creates the output and scratch directories if missing
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.OutputDir, c.Storage.ScratchDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
