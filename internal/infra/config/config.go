// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/speedreader/internal/app/playback"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig            `yaml:"server"`
	Reader  ReaderConfig            `yaml:"reader"`
	Filters map[string]FilterConfig `yaml:"filters"`
	Log     LogConfig               `yaml:"log"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr           string      `yaml:"addr" default:":8080" validate:"required"`
	AdminToken     string      `yaml:"admin_token"` // Empty disables authentication
	AllowAnyOrigin bool        `yaml:"allow_any_origin"`
	Hooks          HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// ReaderConfig holds the defaults applied to readers created without options.
type ReaderConfig struct {
	SpeedWPM      float64 `yaml:"speed_wpm" default:"250" validate:"gte=0.01,lte=10000"`
	WordsPerChunk int     `yaml:"words_per_chunk" default:"1" validate:"gte=1,lte=100"`
	AutoPlay      bool    `yaml:"auto_play"`
	MaxReaders    int     `yaml:"max_readers" default:"100" validate:"gte=1"`
}

// FilterConfig represents a passage filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `yaml:"output" default:"stdout"` // "stdout", "stderr" or a file path
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var cfg Config
	cfg.overrideFromEnv()
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return &cfg, nil
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPEEDREADER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SPEEDREADER_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := os.Getenv("SPEEDREADER_SPEED_WPM"); v != "" {
		if wpm, err := strconv.ParseFloat(v, 64); err == nil {
			c.Reader.SpeedWPM = wpm
		}
	}
	if v := os.Getenv("SPEEDREADER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// EnabledFilters returns the names of enabled filters in a stable order.
func (c *Config) EnabledFilters() []string {
	names := make([]string, 0, len(c.Filters))
	for name, f := range c.Filters {
		if f.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AuthEnabled reports whether mutating API calls require the admin token.
func (c *Config) AuthEnabled() bool {
	return c.Server.AdminToken != ""
}

// PlaybackConfig returns the engine configuration for a reader created
// without explicit options.
func (c *Config) PlaybackConfig() playback.Config {
	return playback.Config{
		SpeedWPM:      c.Reader.SpeedWPM,
		WordsPerChunk: c.Reader.WordsPerChunk,
		AutoPlay:      c.Reader.AutoPlay,
	}
}

// PlaybackOptions returns the reader defaults as loosely typed options, for
// merging with options supplied by a host.
func (c *Config) PlaybackOptions() map[string]any {
	return map[string]any{
		"speed":           c.Reader.SpeedWPM,
		"words_per_chunk": c.Reader.WordsPerChunk,
		"auto_play":       c.Reader.AutoPlay,
	}
}
