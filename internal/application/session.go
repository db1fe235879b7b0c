package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// Session moves user state between the settings store and the in-memory
// services at the start and end of a run.
type Session struct {
	store     driven.SettingsStore
	selection *RepositorySelection
	prefs     *Preferences
	logger    *slog.Logger
}

// NewSession creates a Session with the required dependencies.
func NewSession(store driven.SettingsStore, selection *RepositorySelection, prefs *Preferences, logger *slog.Logger) *Session {
	return &Session{
		store:     store,
		selection: selection,
		prefs:     prefs,
		logger:    logger,
	}
}

// Restore loads the persisted settings and seeds selection and preferences.
// A stored language that is not a valid tag falls back to the default.
func (s *Session) Restore(ctx context.Context) model.Settings {
	settings := s.store.Load(ctx)

	if err := s.prefs.SetLanguage(settings.Language); err != nil {
		s.logger.WarnContext(ctx, "ignoring stored language", "language", settings.Language, "error", err)
		_ = s.prefs.SetLanguage(model.DefaultLanguage)
	}
	s.selection.Restore(settings)

	s.logger.InfoContext(ctx, "settings restored",
		"language", s.prefs.Language(),
		"repositories", len(settings.Repositories),
	)
	return s.Settings()
}

// Settings returns the current state in settings form.
func (s *Session) Settings() model.Settings {
	settings := s.selection.Snapshot()
	settings.Language = s.prefs.Language()
	return settings
}

// Persist writes the current state through the settings store.
func (s *Session) Persist(ctx context.Context) error {
	if err := s.store.Save(ctx, s.Settings()); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	return nil
}
