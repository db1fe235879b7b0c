package github

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ArtifactSource = (*MockClient)(nil)

// mockBuildSize is the reported size of every canned firmware artifact.
const mockBuildSize = 245760

// MockClient is a deterministic driven.ArtifactSource that never touches the
// network. It validates repository URLs and honours cancellation exactly like
// Client so callers cannot tell the two apart by their error behaviour.
type MockClient struct {
	// Latency delays every call. The delay is interrupted by ctx cancellation.
	Latency time.Duration

	now func() time.Time
}

// NewMockClient creates a MockClient whose timestamps are derived from the
// current time.
func NewMockClient() *MockClient {
	return &MockClient{now: time.Now}
}

// ListWorkflows returns two canned workflows for any valid repository.
func (m *MockClient) ListWorkflows(ctx context.Context, repo model.Repository, page, perPage int) ([]model.Workflow, error) {
	info, err := m.begin(ctx, repo)
	if err != nil {
		return nil, err
	}
	now := m.clock()
	base := fmt.Sprintf("https://api.github.com/repos/%s/actions/workflows", info.FullName())
	html := fmt.Sprintf("https://github.com/%s/actions/workflows", info.FullName())
	workflows := []model.Workflow{
		{
			ID:        1,
			Name:      "Build ZMK firmware",
			Path:      ".github/workflows/build.yml",
			State:     "active",
			CreatedAt: now,
			UpdatedAt: now,
			URL:       base + "/1",
			HTMLURL:   html + "/build.yml",
			BadgeURL:  html + "/build.yml/badge.svg",
		},
		{
			ID:        2,
			Name:      "Build Custom firmware",
			Path:      ".github/workflows/custom.yml",
			State:     "active",
			CreatedAt: now,
			UpdatedAt: now,
			URL:       base + "/2",
			HTMLURL:   html + "/custom.yml",
			BadgeURL:  html + "/custom.yml/badge.svg",
		},
	}

	return pageOf(workflows, page, perPage), nil
}

// ListWorkflowRuns returns a single successful run on main for any workflow.
func (m *MockClient) ListWorkflowRuns(ctx context.Context, repo model.Repository, workflowID int64, page, perPage int) ([]model.WorkflowRun, error) {
	if _, err := m.begin(ctx, repo); err != nil {
		return nil, err
	}

	now := m.clock()
	runs := []model.WorkflowRun{
		{
			ID:                101,
			Name:              "Build",
			WorkflowID:        workflowID,
			HeadBranch:        "main",
			HeadCommitMessage: "Update keymap",
			Status:            "completed",
			Conclusion:        "success",
			CreatedAt:         now,
			UpdatedAt:         now,
		},
	}
	return pageOf(runs, page, perPage), nil
}

// ListRunArtifacts returns left and right Corne firmware images for any run.
func (m *MockClient) ListRunArtifacts(ctx context.Context, repo model.Repository, runID int64) ([]model.Artifact, error) {
	info, err := m.begin(ctx, repo)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	download := fmt.Sprintf("https://api.github.com/repos/%s/actions/artifacts", info.FullName())
	return []model.Artifact{
		{
			ID:                 201,
			Name:               "corne_left.uf2",
			SizeInBytes:        mockBuildSize,
			ArchiveDownloadURL: download + "/201/zip",
			CreatedAt:          now,
			UpdatedAt:          now,
		},
		{
			ID:                 202,
			Name:               "corne_right.uf2",
			SizeInBytes:        mockBuildSize,
			ArchiveDownloadURL: download + "/202/zip",
			CreatedAt:          now,
			UpdatedAt:          now,
		},
	}, nil
}

// begin applies the shared validation, latency and cancellation checks.
func (m *MockClient) begin(ctx context.Context, repo model.Repository) (model.RepoInfo, error) {
	info, err := repoInfo(repo)
	if err != nil {
		return model.RepoInfo{}, err
	}

	if m.Latency > 0 {
		timer := time.NewTimer(m.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return model.RepoInfo{}, fmt.Errorf("mock %s: %w", info.FullName(), driven.ErrCancelled)
		case <-timer.C:
		}
	}

	if ctx.Err() != nil {
		return model.RepoInfo{}, fmt.Errorf("mock %s: %w", info.FullName(), driven.ErrCancelled)
	}
	return info, nil
}

func (m *MockClient) clock() time.Time {
	if m.now == nil {
		return time.Now().UTC()
	}
	return m.now().UTC()
}

// pageOf returns the items on the given 1-based page. Pages past the end are
// empty so callers paging until an empty page terminate.
func pageOf[T any](items []T, page, perPage int) []T {
	page, perPage = driven.NormalizePage(page, perPage)
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := min(start+perPage, len(items))
	return items[start:end]
}
