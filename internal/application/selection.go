package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// workflowPageSize is how many workflows a single load requests.
const workflowPageSize = 100

// RepositorySelection holds the registered repositories, which one is
// selected, and the workflows last loaded for it. The selection is kept as a
// URL and resolved by lookup on every access, so removing a repository
// invalidates it without a dangling reference.
//
// Every workflow load runs under its own cancellable context. Selecting
// another repository, or starting another load, cancels the one in flight,
// and a load commits its result only if it is still the latest one for the
// current selection.
type RepositorySelection struct {
	source driven.ArtifactSource
	logger *slog.Logger

	mu           sync.Mutex
	repositories []model.Repository
	selectedURL  *string
	workflows    []model.Workflow
	loading      bool
	generation   uint64
	cancelLoad   context.CancelFunc
}

// NewRepositorySelection creates an empty selection state.
func NewRepositorySelection(source driven.ArtifactSource, logger *slog.Logger) *RepositorySelection {
	return &RepositorySelection{
		source:       source,
		logger:       logger,
		repositories: []model.Repository{},
		workflows:    []model.Workflow{},
	}
}

// Restore seeds the state from persisted settings. A selected URL that names
// no registered repository is dropped.
func (s *RepositorySelection) Restore(settings model.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidateLoadLocked()
	s.repositories = make([]model.Repository, 0, len(settings.Repositories))
	for _, r := range settings.Repositories {
		s.repositories = append(s.repositories, r.WithWorkflowID(r.WorkflowID))
	}
	s.workflows = []model.Workflow{}
	s.selectedURL = nil

	if settings.SelectedRepositoryURL != nil {
		url := *settings.SelectedRepositoryURL
		if s.indexLocked(url) >= 0 {
			s.selectedURL = &url
		} else {
			s.logger.Warn("dropping selection of unregistered repository", "url", url)
		}
	}
}

// Snapshot returns the repositories and selection in settings form. Language
// is left empty for the caller to fill.
func (s *RepositorySelection) Snapshot() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := model.Settings{Repositories: s.repositoriesLocked()}
	if s.selectedURL != nil {
		url := *s.selectedURL
		settings.SelectedRepositoryURL = &url
	}
	return settings
}

// Repositories returns a copy of the registered repositories in insertion order.
func (s *RepositorySelection) Repositories() []model.Repository {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repositoriesLocked()
}

// AddRepository registers url and selects it.
func (s *RepositorySelection) AddRepository(url string) error {
	if !model.IsValidRepoURL(url) {
		return fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(url) >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateRepository, url)
	}

	s.repositories = append(s.repositories, model.Repository{URL: url})
	s.selectLocked(&url)
	return nil
}

// RemoveRepository unregisters url. If it was selected the selection is
// cleared; no other repository is selected in its place.
func (s *RepositorySelection) RemoveRepository(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(url)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrRepositoryNotFound, url)
	}

	s.repositories = slices.Delete(s.repositories, i, i+1)
	if s.selectedURL != nil && *s.selectedURL == url {
		s.selectLocked(nil)
	}
	return nil
}

// SelectRepository changes the selection. A nil url clears it. Any change
// discards the loaded workflows and cancels a workflow load in flight.
func (s *RepositorySelection) SelectRepository(url *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectLocked(url)
}

// UpdateRepository replaces the registered repository with the same URL.
func (s *RepositorySelection) UpdateRepository(repo model.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(repo.URL)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrRepositoryNotFound, repo.URL)
	}
	s.repositories[i] = repo.WithWorkflowID(repo.WorkflowID)
	return nil
}

// SetSelectedWorkflowID records the chosen workflow on the selected
// repository. A nil id clears it.
func (s *RepositorySelection) SetSelectedWorkflowID(id *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.selectedLocked()
	if !ok {
		return ErrNoRepositorySelected
	}
	s.repositories[s.indexLocked(repo.URL)] = repo.WithWorkflowID(id)
	return nil
}

// SelectedRepository returns the selected repository, or false when nothing is
// selected or the selected URL is no longer registered.
func (s *RepositorySelection) SelectedRepository() (model.Repository, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedLocked()
}

// SelectedWorkflow returns the loaded workflow matching the selected
// repository's workflow ID. An ID absent from the loaded workflows counts as
// no selection.
func (s *RepositorySelection) SelectedWorkflow() (model.Workflow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.selectedLocked()
	if !ok || repo.WorkflowID == nil {
		return model.Workflow{}, false
	}
	for _, w := range s.workflows {
		if w.ID == *repo.WorkflowID {
			return w, true
		}
	}
	return model.Workflow{}, false
}

// Workflows returns a copy of the workflows loaded for the current selection.
func (s *RepositorySelection) Workflows() []model.Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.workflows)
}

// IsLoadingWorkflows reports whether a workflow load is in flight.
func (s *RepositorySelection) IsLoadingWorkflows() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LoadWorkflows fetches the workflows of the selected repository and, unless
// the load was cancelled or superseded in the meantime, replaces the loaded
// workflows with the result. A discarded result yields driven.ErrCancelled and
// leaves the state untouched.
func (s *RepositorySelection) LoadWorkflows(ctx context.Context) ([]model.Workflow, error) {
	s.mu.Lock()
	repo, ok := s.selectedLocked()
	if !ok {
		s.mu.Unlock()
		return nil, ErrNoRepositorySelected
	}
	s.invalidateLoadLocked()
	loadCtx, cancel := context.WithCancel(ctx)
	gen := s.generation
	s.cancelLoad = cancel
	s.loading = true
	s.mu.Unlock()

	workflows, err := s.source.ListWorkflows(loadCtx, repo, 1, workflowPageSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		cancel()
		s.logger.Debug("discarding superseded workflow load", "repo", repo.URL)
		return nil, fmt.Errorf("workflow load for %s superseded: %w", repo.URL, driven.ErrCancelled)
	}
	stale := loadCtx.Err() != nil
	cancel()
	s.cancelLoad = nil
	s.loading = false

	if stale || errors.Is(err, driven.ErrCancelled) {
		return nil, fmt.Errorf("workflow load for %s: %w", repo.URL, driven.ErrCancelled)
	}
	if err != nil {
		return nil, fmt.Errorf("loading workflows for %s: %w", repo.URL, err)
	}

	if workflows == nil {
		workflows = []model.Workflow{}
	}
	s.workflows = workflows
	return slices.Clone(workflows), nil
}

func (s *RepositorySelection) selectLocked(url *string) {
	if equalURL(s.selectedURL, url) {
		return
	}

	s.invalidateLoadLocked()
	s.workflows = []model.Workflow{}
	if url == nil {
		s.selectedURL = nil
		return
	}
	v := *url
	s.selectedURL = &v
}

// invalidateLoadLocked cancels any load in flight and makes its result stale.
func (s *RepositorySelection) invalidateLoadLocked() {
	s.generation++
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	s.loading = false
}

func (s *RepositorySelection) selectedLocked() (model.Repository, bool) {
	if s.selectedURL == nil {
		return model.Repository{}, false
	}
	i := s.indexLocked(*s.selectedURL)
	if i < 0 {
		return model.Repository{}, false
	}
	r := s.repositories[i]
	return r.WithWorkflowID(r.WorkflowID), true
}

func (s *RepositorySelection) indexLocked(url string) int {
	return slices.IndexFunc(s.repositories, func(r model.Repository) bool { return r.URL == url })
}

func (s *RepositorySelection) repositoriesLocked() []model.Repository {
	out := make([]model.Repository, 0, len(s.repositories))
	for _, r := range s.repositories {
		out = append(out, r.WithWorkflowID(r.WorkflowID))
	}
	return out
}

func equalURL(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
