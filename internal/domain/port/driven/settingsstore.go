package driven

import (
	"context"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

// SettingsStore defines the driven port for persisting user settings.
// Load never fails: unreadable or unrecognized records are logged and the
// default settings are returned. Save replaces the stored record wholesale.
type SettingsStore interface {
	Load(ctx context.Context) model.Settings
	Save(ctx context.Context, settings model.Settings) error
}
