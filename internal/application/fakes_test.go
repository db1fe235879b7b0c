package application_test

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

// workflowsOf returns a workflowsFn listing the given workflow IDs.
func workflowsOf(ids ...int64) func(context.Context, model.Repository) ([]model.Workflow, error) {
	return func(context.Context, model.Repository) ([]model.Workflow, error) {
		out := make([]model.Workflow, 0, len(ids))
		for _, id := range ids {
			out = append(out, model.Workflow{ID: id, Name: "Build " + strconv.FormatInt(id, 10)})
		}
		return out, nil
	}
}

// fakeSource is a configurable driven.ArtifactSource.
type fakeSource struct {
	mu            sync.Mutex
	workflowsFn   func(ctx context.Context, repo model.Repository) ([]model.Workflow, error)
	runsFn        func(ctx context.Context, repo model.Repository, workflowID int64, perPage int) ([]model.WorkflowRun, error)
	artifactsFn   func(ctx context.Context, repo model.Repository, runID int64) ([]model.Artifact, error)
	artifactCalls int
}

func (f *fakeSource) ListWorkflows(ctx context.Context, repo model.Repository, _, _ int) ([]model.Workflow, error) {
	if f.workflowsFn == nil {
		return []model.Workflow{}, nil
	}
	return f.workflowsFn(ctx, repo)
}

func (f *fakeSource) ListWorkflowRuns(ctx context.Context, repo model.Repository, workflowID int64, _, perPage int) ([]model.WorkflowRun, error) {
	if f.runsFn == nil {
		return []model.WorkflowRun{}, nil
	}
	return f.runsFn(ctx, repo, workflowID, perPage)
}

func (f *fakeSource) ListRunArtifacts(ctx context.Context, repo model.Repository, runID int64) ([]model.Artifact, error) {
	f.mu.Lock()
	f.artifactCalls++
	f.mu.Unlock()
	if f.artifactsFn == nil {
		return []model.Artifact{}, nil
	}
	return f.artifactsFn(ctx, repo, runID)
}

func (f *fakeSource) ArtifactCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.artifactCalls
}

// fakeSettingsStore keeps settings in memory.
type fakeSettingsStore struct {
	mu       sync.Mutex
	settings model.Settings
	saves    int
	saveErr  error
}

func (f *fakeSettingsStore) Load(context.Context) model.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeSettingsStore) Save(_ context.Context, s model.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.settings = s
	f.saves++
	return nil
}

// fakeFirmwareStore is an in-memory driven.FirmwareStore.
type fakeFirmwareStore struct {
	mu    sync.Mutex
	byURL map[string][]model.Firmware
}

func newFakeFirmwareStore() *fakeFirmwareStore {
	return &fakeFirmwareStore{byURL: make(map[string][]model.Firmware)}
}

func (f *fakeFirmwareStore) AddAll(_ context.Context, repoURL string, fws []model.Firmware) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	added := 0
	for _, fw := range fws {
		dup := false
		for _, existing := range f.byURL[repoURL] {
			if existing.ID == fw.ID {
				dup = true
				break
			}
		}
		if !dup {
			f.byURL[repoURL] = append(f.byURL[repoURL], fw)
			added++
		}
	}
	return added, nil
}

func (f *fakeFirmwareStore) ListByRepository(_ context.Context, repoURL string) ([]model.Firmware, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Firmware{}, f.byURL[repoURL]...), nil
}

func (f *fakeFirmwareStore) DeleteByRepository(_ context.Context, repoURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byURL, repoURL)
	return nil
}

// fakeHistory is an in-memory driven.FlashHistoryStore.
type fakeHistory struct {
	mu      sync.Mutex
	records map[string]model.FlashRecord
	order   []string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{records: make(map[string]model.FlashRecord)}
}

func (f *fakeHistory) Record(_ context.Context, r model.FlashRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[r.ID]; !ok {
		f.order = append(f.order, r.ID)
	}
	f.records[r.ID] = r
	return nil
}

func (f *fakeHistory) ListRecent(_ context.Context, limit int) ([]model.FlashRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.FlashRecord{}
	for i := len(f.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, f.records[f.order[i]])
	}
	return out, nil
}

func (f *fakeHistory) Get(id string) (model.FlashRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	return r, ok
}

// scriptedFlasher replays a fixed list of events.
type scriptedFlasher struct {
	events []model.FlashProgress
	err    error
}

func (f *scriptedFlasher) Flash(context.Context, model.Device, model.Firmware) (<-chan model.FlashProgress, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan model.FlashProgress, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// fakeEnumerator returns a settable device list.
type fakeEnumerator struct {
	mu      sync.Mutex
	devices []model.Device
	calls   int
}

func (f *fakeEnumerator) Enumerate(context.Context) ([]model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]model.Device{}, f.devices...), nil
}

func (f *fakeEnumerator) set(devices []model.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = devices
}

// fakeWatcher counts Start/Stop and lets the test fire notifications.
type fakeWatcher struct {
	mu     sync.Mutex
	ch     chan struct{}
	starts int
	stops  int
}

func (f *fakeWatcher) Start() (<-chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.ch = make(chan struct{}, 1)
	return f.ch, nil
}

func (f *fakeWatcher) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.ch != nil {
		close(f.ch)
		f.ch = nil
	}
	return nil
}

func (f *fakeWatcher) fire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch != nil {
		select {
		case f.ch <- struct{}{}:
		default:
		}
	}
}

func (f *fakeWatcher) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

var _ driven.ArtifactSource = (*fakeSource)(nil)
