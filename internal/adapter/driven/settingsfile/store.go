package settingsfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// FileName is the settings document inside the data directory.
const FileName = "settings.json"

// Compile-time interface satisfaction check.
var _ driven.SettingsStore = (*Store)(nil)

// Store implements driven.SettingsStore on a JSON file in the data directory.
type Store struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a Store for <dir>/settings.json.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Path returns the full path of the settings document.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Load reads and migrates the settings document. Any failure is logged and
// yields the default settings.
func (s *Store) Load(ctx context.Context) model.Settings {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.DebugContext(ctx, "no settings file, using defaults", "path", s.Path())
		} else {
			s.logger.WarnContext(ctx, "failed to read settings, using defaults", "path", s.Path(), "error", err)
		}
		return model.DefaultSettings()
	}

	raw, err := Decode(data)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to parse settings, using defaults", "path", s.Path(), "error", err)
		return model.DefaultSettings()
	}

	settings, err := Migrate(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to migrate settings, using defaults",
			"path", s.Path(),
			"version", raw.SchemaVersion(),
			"error", err,
		)
		return model.DefaultSettings()
	}

	if raw.SchemaVersion() != CurrentVersion {
		s.logger.InfoContext(ctx, "migrated settings",
			"from", raw.SchemaVersion(),
			"to", CurrentVersion,
		)
	}

	return settings
}

// Save writes settings in the current shape, replacing the document atomically.
func (s *Store) Save(ctx context.Context, settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}

	data, err := json.MarshalIndent(fromModel(settings), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating settings directory %s: %w", s.dir, err)
	}

	if err := atomic.WriteFile(s.Path(), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing settings %s: %w", s.Path(), err)
	}

	s.logger.DebugContext(ctx, "settings saved", "path", s.Path(), "repositories", len(settings.Repositories))
	return nil
}
