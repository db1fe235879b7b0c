package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// DefaultRunCount is how many recent runs ResolveLatest inspects by default.
const DefaultRunCount = 3

// runArtifactCacheSize bounds the number of runs whose artifact lists are cached.
const runArtifactCacheSize = 128

// ResolutionState is the stage of the most recent resolution attempt.
type ResolutionState int

const (
	StateIdle ResolutionState = iota
	StateFetchingWorkflows
	StateWorkflowsReady
	StateFetchingRuns
	StateFetchingArtifacts
	StateArtifactsReady
	StateError
)

// String returns a human-readable name for the state.
func (s ResolutionState) String() string {
	switch s {
	case StateFetchingWorkflows:
		return "fetching_workflows"
	case StateWorkflowsReady:
		return "workflows_ready"
	case StateFetchingRuns:
		return "fetching_runs"
	case StateFetchingArtifacts:
		return "fetching_artifacts"
	case StateArtifactsReady:
		return "artifacts_ready"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Resolver turns the selected repository and workflow into candidate
// firmware. Candidates accumulate across resolutions for the same repository,
// deduplicated by ID, and are also written to the firmware catalog so they
// survive restarts.
type Resolver struct {
	source    driven.ArtifactSource
	selection *RepositorySelection
	catalog   driven.FirmwareStore
	cache     *lru.Cache[string, []model.Artifact]
	runCount  int
	logger    *slog.Logger

	mu         sync.Mutex
	state      ResolutionState
	lastErr    error
	generation uint64
	repoURL    string
	candidates []model.Firmware
	loaded     bool
}

// NewResolver creates a Resolver. catalog may be nil to keep candidates in
// memory only. A runCount <= 0 selects DefaultRunCount.
func NewResolver(
	source driven.ArtifactSource,
	selection *RepositorySelection,
	catalog driven.FirmwareStore,
	runCount int,
	logger *slog.Logger,
) (*Resolver, error) {
	if runCount <= 0 {
		runCount = DefaultRunCount
	}

	cache, err := lru.New[string, []model.Artifact](runArtifactCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating run artifact cache: %w", err)
	}

	return &Resolver{
		source:     source,
		selection:  selection,
		catalog:    catalog,
		cache:      cache,
		runCount:   runCount,
		logger:     logger,
		candidates: []model.Firmware{},
	}, nil
}

// State returns the current resolution state and the error that put it into
// StateError, if any.
func (r *Resolver) State() (ResolutionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.lastErr
}

// LoadWorkflows loads the selected repository's workflows, tracking the
// FetchingWorkflows and WorkflowsReady states.
func (r *Resolver) LoadWorkflows(ctx context.Context) ([]model.Workflow, error) {
	gen := r.begin(StateFetchingWorkflows)

	workflows, err := r.selection.LoadWorkflows(ctx)
	if err != nil {
		r.fail(gen, err)
		return nil, err
	}

	r.advance(gen, StateWorkflowsReady)
	return workflows, nil
}

// ResolveLatest fetches the artifacts of the most recent successful runs of
// the selected workflow and merges them into the candidate list, which it
// returns. The workflow must be among the loaded workflows; a saved ID that
// was never loaded, or no longer exists upstream, is ErrNoWorkflowSelected.
// Cancellation leaves the candidate list untouched.
func (r *Resolver) ResolveLatest(ctx context.Context) ([]model.Firmware, error) {
	repo, ok := r.selection.SelectedRepository()
	if !ok {
		return nil, ErrNoRepositorySelected
	}
	workflow, ok := r.selection.SelectedWorkflow()
	if !ok {
		return nil, ErrNoWorkflowSelected
	}
	workflowID := workflow.ID

	gen := r.begin(StateFetchingRuns)

	runs, err := r.source.ListWorkflowRuns(ctx, repo, workflowID, 1, r.runCount)
	if err != nil {
		err = fmt.Errorf("listing runs of workflow %d: %w", workflowID, err)
		r.fail(gen, err)
		return nil, err
	}
	if len(runs) == 0 {
		err := fmt.Errorf("%w: workflow %d of %s", ErrNoSuccessfulRuns, workflowID, repo.URL)
		r.fail(gen, err)
		return nil, err
	}

	r.advance(gen, StateFetchingArtifacts)

	fresh, err := r.fetchFirmware(ctx, repo, runs)
	if err != nil {
		r.fail(gen, err)
		return nil, err
	}
	if len(fresh) == 0 {
		err := fmt.Errorf("%w: workflow %d of %s", ErrNoArtifacts, workflowID, repo.URL)
		r.fail(gen, err)
		return nil, err
	}

	merged, err := r.commit(ctx, gen, repo.URL, fresh)
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "resolved latest firmware",
		"repo", repo.URL,
		"workflow_id", workflowID,
		"runs", len(runs),
		"fetched", len(fresh),
		"candidates", len(merged),
	)
	return merged, nil
}

// Candidates returns the candidate list for the selected repository, loading
// it from the catalog when the selection changed since the last call.
func (r *Resolver) Candidates(ctx context.Context) ([]model.Firmware, error) {
	repo, ok := r.selection.SelectedRepository()
	if !ok {
		return []model.Firmware{}, nil
	}

	if err := r.load(ctx, repo.URL); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repoURL != repo.URL {
		// The selection moved on while loading.
		return []model.Firmware{}, nil
	}
	return slices.Clone(r.candidates), nil
}

// load seeds the in-memory candidates of repoURL from the catalog unless they
// are already loaded. Candidates held for another repository are dropped.
func (r *Resolver) load(ctx context.Context, repoURL string) error {
	r.mu.Lock()
	if r.repoURL == repoURL && r.loaded {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	stored := []model.Firmware{}
	if r.catalog != nil {
		var err error
		stored, err = r.catalog.ListByRepository(ctx, repoURL)
		if err != nil {
			return fmt.Errorf("loading firmware catalog for %s: %w", repoURL, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repoURL != repoURL {
		r.repoURL = repoURL
		r.candidates = []model.Firmware{}
	}
	r.candidates = MergeByID(stored, r.candidates)
	r.loaded = true
	return nil
}

// FindCandidate looks up a candidate of the selected repository by ID.
func (r *Resolver) FindCandidate(ctx context.Context, id string) (model.Firmware, bool, error) {
	candidates, err := r.Candidates(ctx)
	if err != nil {
		return model.Firmware{}, false, err
	}
	for _, fw := range candidates {
		if fw.ID == id {
			return fw, true, nil
		}
	}
	return model.Firmware{}, false, nil
}

// Forget drops the catalog of a repository, typically after it is removed.
func (r *Resolver) Forget(ctx context.Context, repoURL string) error {
	r.mu.Lock()
	if r.repoURL == repoURL {
		r.repoURL = ""
		r.candidates = []model.Firmware{}
		r.loaded = false
	}
	r.mu.Unlock()

	if r.catalog == nil {
		return nil
	}
	if err := r.catalog.DeleteByRepository(ctx, repoURL); err != nil {
		return fmt.Errorf("forgetting firmware of %s: %w", repoURL, err)
	}
	return nil
}

// fetchFirmware fetches the artifacts of every run concurrently and returns
// them as firmware, in run order.
func (r *Resolver) fetchFirmware(ctx context.Context, repo model.Repository, runs []model.WorkflowRun) ([]model.Firmware, error) {
	perRun := make([][]model.Artifact, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	for i, run := range runs {
		g.Go(func() error {
			artifacts, err := r.runArtifacts(gctx, repo, run.ID)
			if err != nil {
				return fmt.Errorf("listing artifacts of run %d: %w", run.ID, err)
			}
			perRun[i] = artifacts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetching artifacts: %w", driven.ErrCancelled)
		}
		return nil, err
	}

	firmware := []model.Firmware{}
	for i, run := range runs {
		for _, a := range perRun[i] {
			firmware = append(firmware, model.FirmwareFromArtifact(a, run))
		}
	}
	return firmware, nil
}

// runArtifacts returns a run's artifacts, served from the cache when the run
// was seen before. Completed runs never gain artifacts.
func (r *Resolver) runArtifacts(ctx context.Context, repo model.Repository, runID int64) ([]model.Artifact, error) {
	key := repo.URL + "#" + strconv.FormatInt(runID, 10)
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	artifacts, err := r.source.ListRunArtifacts(ctx, repo, runID)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, artifacts)
	return artifacts, nil
}

// commit merges fresh firmware into the candidate list if gen is still the
// latest attempt and repoURL is still selected.
func (r *Resolver) commit(ctx context.Context, gen uint64, repoURL string, fresh []model.Firmware) ([]model.Firmware, error) {
	if current, ok := r.selection.SelectedRepository(); !ok || current.URL != repoURL {
		err := fmt.Errorf("resolution for %s: repository deselected: %w", repoURL, driven.ErrCancelled)
		r.fail(gen, err)
		return nil, err
	}

	// Merge into the catalogued list, not an empty one, when this repository's
	// candidates were never read in this process.
	if err := r.load(ctx, repoURL); err != nil && ctx.Err() == nil {
		r.logger.WarnContext(ctx, "failed to load firmware catalog", "repo", repoURL, "error", err)
	}

	r.mu.Lock()
	if gen != r.generation || ctx.Err() != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("resolution for %s superseded: %w", repoURL, driven.ErrCancelled)
	}
	if r.repoURL != repoURL {
		r.repoURL = repoURL
		r.candidates = []model.Firmware{}
		r.loaded = false
	}
	r.candidates = MergeByID(r.candidates, fresh)
	r.state = StateArtifactsReady
	r.lastErr = nil
	merged := slices.Clone(r.candidates)
	r.mu.Unlock()

	if r.catalog != nil {
		added, err := r.catalog.AddAll(context.WithoutCancel(ctx), repoURL, fresh)
		if err != nil {
			r.logger.WarnContext(ctx, "failed to catalog firmware", "repo", repoURL, "error", err)
		} else {
			r.logger.DebugContext(ctx, "catalogued firmware", "repo", repoURL, "added", added)
		}
	}

	return merged, nil
}

func (r *Resolver) begin(state ResolutionState) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.state = state
	r.lastErr = nil
	return r.generation
}

func (r *Resolver) advance(gen uint64, state ResolutionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen == r.generation {
		r.state = state
	}
}

// fail records err for attempt gen. Cancellation returns the flow to idle
// instead of the error state.
func (r *Resolver) fail(gen uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		return
	}
	if errors.Is(err, driven.ErrCancelled) {
		r.state = StateIdle
		r.lastErr = nil
		return
	}
	r.state = StateError
	r.lastErr = err
}

// MergeByID appends the items of fresh whose ID is not yet in existing, nor
// earlier in fresh. Existing items are never replaced.
func MergeByID(existing, fresh []model.Firmware) []model.Firmware {
	seen := make(map[string]struct{}, len(existing)+len(fresh))
	out := make([]model.Firmware, 0, len(existing)+len(fresh))
	for _, fw := range existing {
		if _, dup := seen[fw.ID]; dup {
			continue
		}
		seen[fw.ID] = struct{}{}
		out = append(out, fw)
	}
	for _, fw := range fresh {
		if _, dup := seen[fw.ID]; dup {
			continue
		}
		seen[fw.ID] = struct{}{}
		out = append(out, fw)
	}
	return out
}
