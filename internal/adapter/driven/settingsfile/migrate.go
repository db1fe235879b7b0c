package settingsfile

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/jsonc"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

var (
	// ErrUnknownSchemaVersion is returned for a version tag outside the known set.
	ErrUnknownSchemaVersion = errors.New("unknown settings schema version")

	// ErrMissingVersion is returned when a document carries no version tag.
	ErrMissingVersion = errors.New("settings document has no version tag")

	// ErrInvalidContent is returned when a document's fields fail validation.
	ErrInvalidContent = errors.New("invalid settings content")
)

// Migrate upgrades any known settings shape to the current one and returns it
// as domain settings. Each step keeps surviving fields verbatim and fills new
// fields with their defaults. The current version migrates to itself.
func Migrate(raw VersionedSettings) (model.Settings, error) {
	switch s := raw.(type) {
	case SettingsV20250602:
		if s.Version != Version20250602 {
			return model.Settings{}, fmt.Errorf("%w: %q", ErrUnknownSchemaVersion, s.Version)
		}
		return Migrate(upgradeFrom20250602(s))
	case SettingsV20250603:
		if s.Version != Version20250603 {
			return model.Settings{}, fmt.Errorf("%w: %q", ErrUnknownSchemaVersion, s.Version)
		}
		return s.toModel(), nil
	case nil:
		return model.Settings{}, ErrMissingVersion
	default:
		return model.Settings{}, fmt.Errorf("%w: %q", ErrUnknownSchemaVersion, raw.SchemaVersion())
	}
}

// upgradeFrom20250602 adds the repository list and the selection.
func upgradeFrom20250602(s SettingsV20250602) SettingsV20250603 {
	return SettingsV20250603{
		Version:               Version20250603,
		Language:              s.Language,
		Repositories:          []RepositoryV20250603{},
		SelectedRepositoryURL: nil,
	}
}

// versionProbe reads the tag under either of its historical keys.
type versionProbe struct {
	Version       *string `json:"version"`
	LegacyVersion *string `json:"__version__"`
}

// Decode parses a settings document into its versioned shape. Comments and
// trailing commas are tolerated.
func Decode(data []byte) (VersionedSettings, error) {
	data = jsonc.ToJSON(data)

	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing settings document: %w", err)
	}

	var tag string
	switch {
	case probe.Version != nil:
		tag = *probe.Version
	case probe.LegacyVersion != nil:
		tag = *probe.LegacyVersion
	default:
		return nil, ErrMissingVersion
	}

	switch tag {
	case Version20250602:
		var s SettingsV20250602
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing %s settings: %w", tag, err)
		}
		s.Version = tag
		if s.Language == "" {
			return nil, fmt.Errorf("%w: empty language", ErrInvalidContent)
		}
		return s, nil
	case Version20250603:
		var s SettingsV20250603
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing %s settings: %w", tag, err)
		}
		s.Version = tag
		if err := validate20250603(s); err != nil {
			return nil, err
		}
		if s.Repositories == nil {
			s.Repositories = []RepositoryV20250603{}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchemaVersion, tag)
	}
}

func validate20250603(s SettingsV20250603) error {
	if s.Language == "" {
		return fmt.Errorf("%w: empty language", ErrInvalidContent)
	}

	seen := make(map[string]struct{}, len(s.Repositories))
	for i, r := range s.Repositories {
		if r.URL == "" {
			return fmt.Errorf("%w: repository %d has no url", ErrInvalidContent, i)
		}
		if _, dup := seen[r.URL]; dup {
			return fmt.Errorf("%w: repository %q listed twice", ErrInvalidContent, r.URL)
		}
		seen[r.URL] = struct{}{}
	}
	return nil
}
