package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConfig_Validate_RequiredFields(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{Addr: ":8080"},
			Reader: ReaderConfig{SpeedWPM: 250, WordsPerChunk: 1, MaxReaders: 10},
			Log:    LogConfig{Level: "info", Output: "stdout"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing addr",
			mutate:  func(c *Config) { c.Server.Addr = "" },
			wantErr: true,
			errMsg:  "Addr",
		},
		{
			name:    "zero speed",
			mutate:  func(c *Config) { c.Reader.SpeedWPM = 0 },
			wantErr: true,
			errMsg:  "SpeedWPM",
		},
		{
			name:    "speed too low",
			mutate:  func(c *Config) { c.Reader.SpeedWPM = 0.001 },
			wantErr: true,
			errMsg:  "SpeedWPM",
		},
		{
			name:    "speed too high",
			mutate:  func(c *Config) { c.Reader.SpeedWPM = 20000 },
			wantErr: true,
			errMsg:  "SpeedWPM",
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.Reader.WordsPerChunk = 0 },
			wantErr: true,
			errMsg:  "WordsPerChunk",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
			errMsg:  "Level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  admin_token: secret\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "secret", cfg.Server.AdminToken)
	assert.True(t, cfg.AuthEnabled())
	assert.Equal(t, float64(250), cfg.Reader.SpeedWPM)
	assert.Equal(t, 1, cfg.Reader.WordsPerChunk)
	assert.Equal(t, 100, cfg.Reader.MaxReaders)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
reader:
  speed_wpm: 400
  words_per_chunk: 3
  auto_play: true
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.False(t, cfg.AuthEnabled())

	pc := cfg.PlaybackConfig()
	assert.Equal(t, float64(400), pc.SpeedWPM)
	assert.Equal(t, 3, pc.WordsPerChunk)
	assert.True(t, pc.AutoPlay)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SPEEDREADER_ADDR", ":9999")
	t.Setenv("SPEEDREADER_ADMIN_TOKEN", "from-env")
	t.Setenv("SPEEDREADER_SPEED_WPM", "600")

	path := writeConfig(t, "server:\n  addr: \":8080\"\n  admin_token: from-file\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "from-env", cfg.Server.AdminToken)
	assert.Equal(t, float64(600), cfg.Reader.SpeedWPM)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "malformed yaml",
			content: "server: [",
			errMsg:  "failed to parse config file",
		},
		{
			name:    "negative chunk size",
			content: "reader:\n  words_per_chunk: -1\n",
			errMsg:  "WordsPerChunk",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, map[string]any{
		"speed":           float64(250),
		"words_per_chunk": 1,
		"auto_play":       false,
	}, cfg.PlaybackOptions())
}

func TestLoad_Filters(t *testing.T) {
	path := writeConfig(t, `
filters:
  word_limit_filter:
    enabled: true
    settings:
      max_words: 5000
  duplicate_text_filter:
    enabled: true
  speed_limit_filter:
    enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsFilterEnabled("word_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("speed_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("missing_filter"))
	assert.Equal(t, []string{"duplicate_text_filter", "word_limit_filter"}, cfg.EnabledFilters())
	assert.Equal(t, 5000, cfg.Filters["word_limit_filter"].Settings["max_words"])
}
