// Package config loads photarc configuration from file, environment, and
// defaults.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (PHOTARC_* and the legacy flat names)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mbianchi/photarc/internal/logger"
)

// Config represents the photarc configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging logger.Config `mapstructure:"logging" yaml:"logging"`

	// Library points at the photo root and the writable data directory.
	Library LibraryConfig `mapstructure:"library" yaml:"library"`

	// Server contains HTTP API server settings.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Pipeline contains worker pool and queue settings.
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`

	// Vision configures the external captioning/tagging endpoint.
	Vision VisionConfig `mapstructure:"vision" yaml:"vision"`
}

// LibraryConfig locates the photo library on disk.
type LibraryConfig struct {
	// PhotosPath is the read-only photo root. Default: /photos
	PhotosPath string `mapstructure:"photos_path" validate:"required" yaml:"photos_path"`

	// DataDir is the writable data root holding db/, thumbs/, faces/ and
	// motion_videos/. Default: /data
	DataDir string `mapstructure:"data_dir" validate:"required" yaml:"data_dir"`

	// WatchInterval is the filesystem watch debounce window in seconds.
	// Default: 30
	WatchInterval int `mapstructure:"watch_interval" validate:"gte=1" yaml:"watch_interval"`
}

// DatabasePath returns the catalog database file path under DataDir.
func (c *LibraryConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, "db", "photarc.db")
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Port is the TCP port for the HTTP API. Default: 8080
	Port int `mapstructure:"port" validate:"gt=0,lte=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Kept generous because original photo downloads can be large.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// PipelineConfig contains pipeline tuning knobs.
type PipelineConfig struct {
	// QueueSize is the per-stage bounded queue length. Default: 1000
	QueueSize int `mapstructure:"queue_size" validate:"gte=1" yaml:"queue_size"`

	// MaxAttempts is the per-stage retry limit for transient errors.
	// Default: 3
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=1" yaml:"max_attempts"`

	// ThumbnailSizes are longest-edge pixel sizes for generated thumbnails.
	ThumbnailSizes []int `mapstructure:"thumbnail_sizes" yaml:"thumbnail_sizes"`
}

// VisionConfig configures the Ollama-compatible vision endpoint used for
// captioning and tagging. An empty URL disables both stages.
type VisionConfig struct {
	// OllamaURL is the endpoint base URL. Empty disables captioning/tagging.
	OllamaURL string `mapstructure:"ollama_url" yaml:"ollama_url"`

	// Model is the vision model name.
	Model string `mapstructure:"model" yaml:"model"`

	// RequestsPerMinute caps calls to the endpoint across both stages.
	RequestsPerMinute int `mapstructure:"requests_per_minute" validate:"gte=1" yaml:"requests_per_minute"`
}

// GetDefaultConfig returns a configuration with all defaults applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in missing configuration with default values.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Library.PhotosPath == "" {
		cfg.Library.PhotosPath = "/photos"
	}
	if cfg.Library.DataDir == "" {
		cfg.Library.DataDir = "/data"
	}
	if cfg.Library.WatchInterval == 0 {
		cfg.Library.WatchInterval = 30
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Pipeline.QueueSize == 0 {
		cfg.Pipeline.QueueSize = 1000
	}
	if cfg.Pipeline.MaxAttempts == 0 {
		cfg.Pipeline.MaxAttempts = 3
	}
	if len(cfg.Pipeline.ThumbnailSizes) == 0 {
		cfg.Pipeline.ThumbnailSizes = []int{200, 600, 1200}
	}
	if cfg.Vision.Model == "" {
		cfg.Vision.Model = "qwen3-vl:30b-a3b-instruct"
	}
	if cfg.Vision.RequestsPerMinute == 0 {
		cfg.Vision.RequestsPerMinute = 30
	}
}

// Validate checks the configuration for errors.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location and falls back to defaults
// when no file exists.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if found {
		if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyLegacyEnv(&cfg)
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig writes the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPath returns $XDG_CONFIG_HOME/photarc/config.yaml.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

func getConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "photarc")
}

func setupViper(v *viper.Viper, configPath string) {
	// PHOTARC_LIBRARY_PHOTOS_PATH style overrides for every key.
	v.SetEnvPrefix("PHOTARC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// applyLegacyEnv honors the flat environment names the container images
// document: PHOTOS_PATH, DATA_DIR, WATCH_INTERVAL, OLLAMA_URL, LOG_LEVEL,
// PORT. They win over the config file but lose to PHOTARC_* variables,
// which viper resolves during unmarshal.
func applyLegacyEnv(cfg *Config) {
	if p := os.Getenv("PHOTOS_PATH"); p != "" {
		cfg.Library.PhotosPath = p
	}
	if d := os.Getenv("DATA_DIR"); d != "" {
		cfg.Library.DataDir = d
	}
	if w := os.Getenv("WATCH_INTERVAL"); w != "" {
		if n, err := parsePositiveInt(w); err == nil {
			cfg.Library.WatchInterval = n
		}
	}
	if u, ok := os.LookupEnv("OLLAMA_URL"); ok {
		cfg.Vision.OllamaURL = u
	}
	if l := os.Getenv("LOG_LEVEL"); l != "" {
		cfg.Logging.Level = l
	}
	if p := os.Getenv("PORT"); p != "" {
		if n, err := parsePositiveInt(p); err == nil {
			cfg.Server.Port = n
		}
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("value must be positive: %d", n)
	}
	return n, nil
}

// durationDecodeHook lets config files use "30s" style duration strings.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.StringToTimeDurationHookFunc()
}
