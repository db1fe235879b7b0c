package model

// DefaultLanguage is the UI language used when none has been chosen.
const DefaultLanguage = "en"

// Settings is the user state persisted between sessions, independent of the
// on-disk schema version.
type Settings struct {
	Language              string
	Repositories          []Repository
	SelectedRepositoryURL *string
}

// DefaultSettings returns the settings used on first start or when the
// settings file cannot be read.
func DefaultSettings() Settings {
	return Settings{
		Language:     DefaultLanguage,
		Repositories: []Repository{},
	}
}
