// Package settingsfile persists user settings as a versioned JSON document and
// migrates older document shapes to the current one on load.
package settingsfile

import (
	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

// Schema versions, oldest first.
const (
	Version20250602 = "2025-06-02"
	Version20250603 = "2025-06-03"

	// CurrentVersion is the version written by Save.
	CurrentVersion = Version20250603
)

// VersionedSettings is any on-disk settings shape. The set of implementations
// is closed: SettingsV20250602 and SettingsV20250603.
type VersionedSettings interface {
	SchemaVersion() string
}

// SettingsV20250602 is the first settings shape. It carried its tag under
// "__version__" and nothing but the UI language.
type SettingsV20250602 struct {
	Version  string `json:"__version__"`
	Language string `json:"language"`
}

// SchemaVersion returns the document's version tag.
func (s SettingsV20250602) SchemaVersion() string { return s.Version }

// RepositoryV20250603 is a registered repository as stored on disk.
type RepositoryV20250603 struct {
	URL        string `json:"url"`
	WorkflowID *int64 `json:"workflowId,omitempty"`
}

// SettingsV20250603 adds registered repositories and the selected repository.
type SettingsV20250603 struct {
	Version               string                `json:"version"`
	Language              string                `json:"language"`
	Repositories          []RepositoryV20250603 `json:"repositories"`
	SelectedRepositoryURL *string               `json:"selectedRepositoryUrl"`
}

// SchemaVersion returns the document's version tag.
func (s SettingsV20250603) SchemaVersion() string { return s.Version }

// toModel converts the current shape to domain settings.
func (s SettingsV20250603) toModel() model.Settings {
	repos := make([]model.Repository, 0, len(s.Repositories))
	for _, r := range s.Repositories {
		repos = append(repos, model.Repository{URL: r.URL}.WithWorkflowID(r.WorkflowID))
	}

	var selected *string
	if s.SelectedRepositoryURL != nil {
		v := *s.SelectedRepositoryURL
		selected = &v
	}

	return model.Settings{
		Language:              s.Language,
		Repositories:          repos,
		SelectedRepositoryURL: selected,
	}
}

// fromModel converts domain settings to the current on-disk shape.
func fromModel(settings model.Settings) SettingsV20250603 {
	repos := make([]RepositoryV20250603, 0, len(settings.Repositories))
	for _, r := range settings.Repositories {
		copied := r.WithWorkflowID(r.WorkflowID)
		repos = append(repos, RepositoryV20250603{URL: copied.URL, WorkflowID: copied.WorkflowID})
	}

	var selected *string
	if settings.SelectedRepositoryURL != nil {
		v := *settings.SelectedRepositoryURL
		selected = &v
	}

	return SettingsV20250603{
		Version:               CurrentVersion,
		Language:              settings.Language,
		Repositories:          repos,
		SelectedRepositoryURL: selected,
	}
}
