// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Limits on KEYFLASH_RUN_COUNT.
const (
	MinRunCount = 1
	MaxRunCount = 100
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken  string
	GitHubAPIURL string
	UseMockAPI   bool
	ListenAddr   string
	DataDir      string
	DBPath       string
	RunCount     int
	VolumesDir   string
	FlashStep    time.Duration
	LogLevel     slog.Level
}

// UseVolumeDetection reports whether devices are discovered by scanning
// mounted UF2 volumes instead of the built-in mock device set.
func (c *Config) UseVolumeDetection() bool {
	return c.VolumesDir != ""
}

// LoadDotEnv preloads variables from a .env file in the working directory.
// Variables already set in the environment win. A missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables and returns a validated Config.
// All variables are optional:
//   - KEYFLASH_GITHUB_TOKEN (anonymous API access when empty)
//   - KEYFLASH_GITHUB_API_URL (api.github.com when empty)
//   - KEYFLASH_USE_MOCK_API (false)
//   - KEYFLASH_LISTEN_ADDR (127.0.0.1:8484)
//   - KEYFLASH_DATA_DIR (<user config dir>/keyflash)
//   - KEYFLASH_DB_PATH (<data dir>/keyflash.db)
//   - KEYFLASH_RUN_COUNT (3, between 1 and 100)
//   - KEYFLASH_VOLUMES_DIR (mock devices when empty)
//   - KEYFLASH_FLASH_STEP (500ms)
//   - KEYFLASH_LOG_LEVEL (info)
//
// Invalid values are errors.
func Load() (*Config, error) {
	cfg := &Config{
		GitHubToken:  os.Getenv("KEYFLASH_GITHUB_TOKEN"),
		GitHubAPIURL: os.Getenv("KEYFLASH_GITHUB_API_URL"),
		ListenAddr:   "127.0.0.1:8484",
		RunCount:     3,
		VolumesDir:   os.Getenv("KEYFLASH_VOLUMES_DIR"),
		FlashStep:    500 * time.Millisecond,
		LogLevel:     slog.LevelInfo,
	}

	if v, ok := os.LookupEnv("KEYFLASH_USE_MOCK_API"); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("KEYFLASH_USE_MOCK_API has invalid boolean %q: %w", v, err)
		}
		cfg.UseMockAPI = parsed
	}

	if v, ok := os.LookupEnv("KEYFLASH_LISTEN_ADDR"); ok && v != "" {
		cfg.ListenAddr = v
	}

	if v, ok := os.LookupEnv("KEYFLASH_DATA_DIR"); ok && v != "" {
		cfg.DataDir = v
	} else {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("KEYFLASH_DATA_DIR unset and no user config dir: %w", err)
		}
		cfg.DataDir = filepath.Join(base, "keyflash")
	}

	cfg.DBPath = filepath.Join(cfg.DataDir, "keyflash.db")
	if v, ok := os.LookupEnv("KEYFLASH_DB_PATH"); ok && v != "" {
		cfg.DBPath = v
	}

	if v, ok := os.LookupEnv("KEYFLASH_RUN_COUNT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("KEYFLASH_RUN_COUNT has invalid integer %q: %w", v, err)
		}
		if n < MinRunCount || n > MaxRunCount {
			return nil, fmt.Errorf("KEYFLASH_RUN_COUNT must be between %d and %d, got %d", MinRunCount, MaxRunCount, n)
		}
		cfg.RunCount = n
	}

	if v, ok := os.LookupEnv("KEYFLASH_FLASH_STEP"); ok && v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("KEYFLASH_FLASH_STEP has invalid duration %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("KEYFLASH_FLASH_STEP must be positive, got %s", parsed)
		}
		cfg.FlashStep = parsed
	}

	if v, ok := os.LookupEnv("KEYFLASH_LOG_LEVEL"); ok && v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			return nil, fmt.Errorf("KEYFLASH_LOG_LEVEL has invalid level %q: %w", v, err)
		}
		cfg.LogLevel = level
	}

	return cfg, nil
}
