package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

// Pagination defaults applied when a caller passes a page or page size <= 0.
const (
	DefaultPage    = 1
	DefaultPerPage = 10
)

// Sentinel errors returned by ArtifactSource implementations.
var (
	// ErrInvalidRepository indicates the repository URL could not be parsed
	// into an owner and repository name.
	ErrInvalidRepository = errors.New("invalid repository url")

	// ErrCancelled indicates the call observed its context being cancelled
	// before it completed. Callers treat it as a silent no-op.
	ErrCancelled = errors.New("request cancelled")
)

// UpstreamError is returned when the remote CI API answers with a
// non-success status.
type UpstreamError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream responded with status %d: %s", e.Status, e.Body)
}

// ArtifactSource defines the driven port for reading CI workflows, their runs,
// and run artifacts for a repository. Both the network-backed and the mock
// implementation validate the repository URL and honour ctx cancellation
// identically.
type ArtifactSource interface {
	// ListWorkflows returns one page of workflows defined in the repository.
	ListWorkflows(ctx context.Context, repo model.Repository, page, perPage int) ([]model.Workflow, error)

	// ListWorkflowRuns returns one page of successful runs of a workflow,
	// newest first as ordered by the provider.
	ListWorkflowRuns(ctx context.Context, repo model.Repository, workflowID int64, page, perPage int) ([]model.WorkflowRun, error)

	// ListRunArtifacts returns the artifacts attached to a run.
	ListRunArtifacts(ctx context.Context, repo model.Repository, runID int64) ([]model.Artifact, error)
}

// NormalizePage applies DefaultPage and DefaultPerPage to non-positive values.
func NormalizePage(page, perPage int) (int, int) {
	if page <= 0 {
		page = DefaultPage
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return page, perPage
}
