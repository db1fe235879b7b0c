// Package github implements the ArtifactSource port on top of the GitHub
// Actions REST API, plus a deterministic mock with the same error contract.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ArtifactSource = (*Client)(nil)

// Client implements the driven.ArtifactSource port using the go-github library.
type Client struct {
	gh     *gh.Client
	logger *slog.Logger
}

// NewClient creates a GitHub Actions client with the following transport stack:
//  1. oauth2 static token source (only when token is non-empty)
//  2. httpcache (ETag-based conditional request caching)
//  3. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  4. go-github (GitHub REST API client)
//
// apiURL selects a GitHub Enterprise API root; empty means api.github.com.
func NewClient(token, apiURL string, logger *slog.Logger) (*Client, error) {
	var base http.RoundTripper = http.DefaultTransport
	if token != "" {
		base = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   base,
		}
	}

	cacheTransport := httpcache.NewMemoryCacheTransport()
	cacheTransport.Transport = base
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)

	client := gh.NewClient(rateLimitClient)
	if apiURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(apiURL, apiURL)
		if err != nil {
			return nil, fmt.Errorf("configuring enterprise URL %q: %w", apiURL, err)
		}
	}

	return &Client{gh: client, logger: logger}, nil
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, logger *slog.Logger) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client, logger: logger}, nil
}

// ListWorkflows retrieves one page of workflows for the repository.
func (c *Client) ListWorkflows(ctx context.Context, repo model.Repository, page, perPage int) ([]model.Workflow, error) {
	info, err := repoInfo(repo)
	if err != nil {
		return nil, err
	}
	page, perPage = driven.NormalizePage(page, perPage)

	opts := &gh.ListOptions{Page: page, PerPage: perPage}
	result, resp, err := c.gh.Actions.ListWorkflows(ctx, info.Owner, info.Repo, opts)
	if err != nil {
		return nil, mapError(ctx, "listing workflows for "+info.FullName(), resp, err)
	}

	workflows := make([]model.Workflow, 0, len(result.Workflows))
	for _, w := range result.Workflows {
		workflows = append(workflows, mapWorkflow(w))
	}

	c.logRateLimit(resp, info.FullName()+"/workflows", page, len(workflows))

	return workflows, nil
}

// ListWorkflowRuns retrieves one page of successful runs of a workflow.
// GitHub orders runs newest first; the order is preserved.
func (c *Client) ListWorkflowRuns(ctx context.Context, repo model.Repository, workflowID int64, page, perPage int) ([]model.WorkflowRun, error) {
	info, err := repoInfo(repo)
	if err != nil {
		return nil, err
	}
	page, perPage = driven.NormalizePage(page, perPage)

	opts := &gh.ListWorkflowRunsOptions{
		Status:      "success",
		ListOptions: gh.ListOptions{Page: page, PerPage: perPage},
	}
	result, resp, err := c.gh.Actions.ListWorkflowRunsByID(ctx, info.Owner, info.Repo, workflowID, opts)
	if err != nil {
		return nil, mapError(ctx, fmt.Sprintf("listing runs of workflow %d for %s", workflowID, info.FullName()), resp, err)
	}

	runs := make([]model.WorkflowRun, 0, len(result.WorkflowRuns))
	for _, r := range result.WorkflowRuns {
		runs = append(runs, mapWorkflowRun(r))
	}

	c.logRateLimit(resp, info.FullName()+"/runs", page, len(runs))

	return runs, nil
}

// ListRunArtifacts retrieves the artifacts attached to a workflow run.
func (c *Client) ListRunArtifacts(ctx context.Context, repo model.Repository, runID int64) ([]model.Artifact, error) {
	info, err := repoInfo(repo)
	if err != nil {
		return nil, err
	}

	opts := &gh.ListOptions{PerPage: 100}
	result, resp, err := c.gh.Actions.ListWorkflowRunArtifacts(ctx, info.Owner, info.Repo, runID, opts)
	if err != nil {
		return nil, mapError(ctx, fmt.Sprintf("listing artifacts of run %d for %s", runID, info.FullName()), resp, err)
	}

	artifacts := make([]model.Artifact, 0, len(result.Artifacts))
	for _, a := range result.Artifacts {
		artifacts = append(artifacts, mapArtifact(a))
	}

	c.logRateLimit(resp, info.FullName()+"/artifacts", 0, len(artifacts))

	return artifacts, nil
}

// repoInfo parses the repository URL or returns driven.ErrInvalidRepository.
func repoInfo(repo model.Repository) (model.RepoInfo, error) {
	info, ok := model.ParseRepoURL(repo.URL)
	if !ok {
		return model.RepoInfo{}, fmt.Errorf("%w: %q", driven.ErrInvalidRepository, repo.URL)
	}
	return info, nil
}

// mapError converts a go-github error into the port's error contract:
// cancellation becomes driven.ErrCancelled and any HTTP-level failure becomes
// a *driven.UpstreamError carrying the status and message.
func mapError(ctx context.Context, op string, resp *gh.Response, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, driven.ErrCancelled)
	}

	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		body := errResp.Message
		if body == "" {
			body = err.Error()
		}
		return fmt.Errorf("%s: %w", op, &driven.UpstreamError{Status: errResp.Response.StatusCode, Body: body})
	}

	if resp != nil && resp.Response != nil {
		return fmt.Errorf("%s: %w", op, &driven.UpstreamError{Status: resp.StatusCode, Body: err.Error()})
	}

	return fmt.Errorf("%s: %w", op, err)
}

// logRateLimit logs the GitHub API rate limit status after each call.
func (c *Client) logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil || c.logger == nil {
		return
	}

	c.logger.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		c.logger.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// mapWorkflow converts a go-github Workflow to a domain model Workflow.
func mapWorkflow(w *gh.Workflow) model.Workflow {
	return model.Workflow{
		ID:        w.GetID(),
		Name:      w.GetName(),
		Path:      w.GetPath(),
		State:     w.GetState(),
		CreatedAt: w.GetCreatedAt().Time,
		UpdatedAt: w.GetUpdatedAt().Time,
		URL:       w.GetURL(),
		HTMLURL:   w.GetHTMLURL(),
		BadgeURL:  w.GetBadgeURL(),
	}
}

// mapWorkflowRun converts a go-github WorkflowRun to a domain model WorkflowRun.
func mapWorkflowRun(r *gh.WorkflowRun) model.WorkflowRun {
	return model.WorkflowRun{
		ID:                r.GetID(),
		Name:              r.GetName(),
		WorkflowID:        r.GetWorkflowID(),
		HeadBranch:        r.GetHeadBranch(),
		HeadCommitMessage: r.GetHeadCommit().GetMessage(),
		Status:            r.GetStatus(),
		Conclusion:        r.GetConclusion(),
		CreatedAt:         r.GetCreatedAt().Time,
		UpdatedAt:         r.GetUpdatedAt().Time,
	}
}

// mapArtifact converts a go-github Artifact to a domain model Artifact.
func mapArtifact(a *gh.Artifact) model.Artifact {
	return model.Artifact{
		ID:                 a.GetID(),
		Name:               a.GetName(),
		SizeInBytes:        a.GetSizeInBytes(),
		ArchiveDownloadURL: a.GetArchiveDownloadURL(),
		Expired:            a.GetExpired(),
		CreatedAt:          a.GetCreatedAt().Time,
		UpdatedAt:          a.GetUpdatedAt().Time,
	}
}
