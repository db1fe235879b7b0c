package application

import (
	"fmt"
	"sync"

	"golang.org/x/text/language"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

// Preferences holds user preferences that are not tied to a repository.
type Preferences struct {
	mu       sync.RWMutex
	language string
}

// NewPreferences creates preferences with the default language.
func NewPreferences() *Preferences {
	return &Preferences{language: model.DefaultLanguage}
}

// Language returns the UI language as a BCP 47 tag.
func (p *Preferences) Language() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.language
}

// SetLanguage validates tag as BCP 47 and stores its canonical form.
func (p *Preferences) SetLanguage(tag string) error {
	canonical, err := CanonicalLanguage(tag)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.language = canonical
	return nil
}

// CanonicalLanguage parses a BCP 47 tag and returns its canonical form.
func CanonicalLanguage(tag string) (string, error) {
	if tag == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidLanguage)
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidLanguage, tag, err)
	}
	return parsed.String(), nil
}
