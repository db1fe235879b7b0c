package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// ErrNoSourceFactory is returned by SetToken when the provider cannot build
// new sources.
var ErrNoSourceFactory = errors.New("artifact source cannot be rebuilt")

// ArtifactSourceFactory builds an ArtifactSource for a GitHub token. An empty
// token means anonymous access.
type ArtifactSourceFactory func(token string) (driven.ArtifactSource, error)

// Compile-time interface satisfaction check.
var _ driven.ArtifactSource = (*ArtifactSourceProvider)(nil)

// ArtifactSourceProvider enables runtime hot-swap of the artifact source.
// It holds a mutex-protected reference to the current driven.ArtifactSource
// and itself satisfies the port by delegating to it, so consumers keep a
// single reference while credential updates take effect without restarting.
type ArtifactSourceProvider struct {
	mu      sync.RWMutex
	source  driven.ArtifactSource
	factory ArtifactSourceFactory
}

// NewArtifactSourceProvider creates a provider with the given initial source.
// factory may be nil when the source never needs to be rebuilt (mock mode).
func NewArtifactSourceProvider(source driven.ArtifactSource, factory ArtifactSourceFactory) *ArtifactSourceProvider {
	return &ArtifactSourceProvider{
		source:  source,
		factory: factory,
	}
}

// Get returns the current source.
func (p *ArtifactSourceProvider) Get() driven.ArtifactSource {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source
}

// Replace swaps the current source. Calls already in flight finish on the
// old one.
func (p *ArtifactSourceProvider) Replace(source driven.ArtifactSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
}

// SetToken rebuilds the source with a new token and swaps it in.
func (p *ArtifactSourceProvider) SetToken(token string) error {
	if p.factory == nil {
		return ErrNoSourceFactory
	}

	source, err := p.factory(token)
	if err != nil {
		return fmt.Errorf("building artifact source: %w", err)
	}

	p.Replace(source)
	return nil
}

// ListWorkflows delegates to the current source.
func (p *ArtifactSourceProvider) ListWorkflows(ctx context.Context, repo model.Repository, page, perPage int) ([]model.Workflow, error) {
	return p.Get().ListWorkflows(ctx, repo, page, perPage)
}

// ListWorkflowRuns delegates to the current source.
func (p *ArtifactSourceProvider) ListWorkflowRuns(ctx context.Context, repo model.Repository, workflowID int64, page, perPage int) ([]model.WorkflowRun, error) {
	return p.Get().ListWorkflowRuns(ctx, repo, workflowID, page, perPage)
}

// ListRunArtifacts delegates to the current source.
func (p *ArtifactSourceProvider) ListRunArtifacts(ctx context.Context, repo model.Repository, runID int64) ([]model.Artifact, error) {
	return p.Get().ListRunArtifacts(ctx, repo, runID)
}
