package httphandler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/keyflash/internal/application"
	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

// defaultHistoryLimit bounds GET /api/v1/flash/history when no limit is given.
const defaultHistoryLimit = 20

// TokenSetter swaps the credential used for CI API calls at runtime.
type TokenSetter interface {
	SetToken(token string) error
}

// Services groups the application services the API drives. Tokens may be nil,
// in which case the token endpoint is not registered.
type Services struct {
	Session   *application.Session
	Selection *application.RepositorySelection
	Prefs     *application.Preferences
	Resolver  *application.Resolver
	Devices   *application.DeviceMonitor
	Flash     *application.FlashService
	Tokens    TokenSetter
}

// Handler is the HTTP driving adapter that serves the REST and websocket API.
type Handler struct {
	session   *application.Session
	selection *application.RepositorySelection
	prefs     *application.Preferences
	resolver  *application.Resolver
	devices   *application.DeviceMonitor
	flash     *application.FlashService
	tokens    TokenSetter
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(svc Services, logger *slog.Logger) *Handler {
	return &Handler{
		session:   svc.Session,
		selection: svc.Selection,
		prefs:     svc.Prefs,
		resolver:  svc.Resolver,
		devices:   svc.Devices,
		flash:     svc.Flash,
		tokens:    svc.Tokens,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging, cross-origin and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("GET /api/v1/settings", h.GetSettings)
	mux.HandleFunc("PUT /api/v1/settings/language", h.SetLanguage)
	if h.tokens != nil {
		mux.HandleFunc("PUT /api/v1/settings/token", h.SetToken)
	}

	mux.HandleFunc("GET /api/v1/repos", h.ListRepos)
	mux.HandleFunc("POST /api/v1/repos", h.AddRepo)
	mux.HandleFunc("DELETE /api/v1/repos", h.RemoveRepo)
	mux.HandleFunc("PUT /api/v1/repos/selected", h.SelectRepo)

	mux.HandleFunc("GET /api/v1/workflows", h.ListWorkflows)
	mux.HandleFunc("PUT /api/v1/workflows/selected", h.SelectWorkflow)

	mux.HandleFunc("GET /api/v1/firmware", h.ListFirmware)
	mux.HandleFunc("POST /api/v1/firmware/latest", h.ResolveLatest)

	mux.HandleFunc("GET /api/v1/devices", h.ListDevices)
	mux.HandleFunc("GET /api/v1/devices/ws", h.DevicesWS)
	mux.HandleFunc("GET /api/v1/compatibility", h.Compatibility)

	mux.HandleFunc("GET /api/v1/flash/ws", h.FlashWS)
	mux.HandleFunc("GET /api/v1/flash/history", h.FlashHistory)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = crossOriginMiddleware(logger, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// GetSettings returns the user state as it would be persisted.
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSettingsResponse(h.session.Settings()))
}

// SetLanguage changes the UI language preference.
func (h *Handler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	var req LanguageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.prefs.SetLanguage(req.Language); err != nil {
		h.writeServiceError(w, r, "set language", err)
		return
	}
	h.persist(r.Context())

	writeJSON(w, http.StatusOK, toSettingsResponse(h.session.Settings()))
}

// SetToken replaces the GitHub token used for subsequent API calls. The token
// is held in memory only.
func (h *Handler) SetToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.tokens.SetToken(req.Token); err != nil {
		h.writeServiceError(w, r, "set token", err)
		return
	}
	h.logger.InfoContext(r.Context(), "github token replaced", "anonymous", req.Token == "")

	w.WriteHeader(http.StatusNoContent)
}

// ListRepos returns the registered repositories in insertion order.
func (h *Handler) ListRepos(w http.ResponseWriter, _ *http.Request) {
	settings := h.selection.Snapshot()

	resp := make([]RepositoryResponse, 0, len(settings.Repositories))
	for _, repo := range settings.Repositories {
		resp = append(resp, toRepositoryResponse(repo, settings.SelectedRepositoryURL))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddRepo registers a repository and selects it.
func (h *Handler) AddRepo(w http.ResponseWriter, r *http.Request) {
	var req AddRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.selection.AddRepository(req.URL); err != nil {
		h.writeServiceError(w, r, "add repository", err)
		return
	}
	h.persist(r.Context())

	selected := req.URL
	writeJSON(w, http.StatusCreated, toRepositoryResponse(model.Repository{URL: req.URL}, &selected))
}

// RemoveRepo unregisters the repository given by the url query parameter and
// drops its firmware catalog.
func (h *Handler) RemoveRepo(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	if err := h.selection.RemoveRepository(url); err != nil {
		h.writeServiceError(w, r, "remove repository", err)
		return
	}
	if err := h.resolver.Forget(r.Context(), url); err != nil {
		h.logger.WarnContext(r.Context(), "failed to drop firmware catalog", "repo", url, "error", err)
	}
	h.persist(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

// SelectRepo changes the selected repository. A null url clears the selection.
func (h *Handler) SelectRepo(w http.ResponseWriter, r *http.Request) {
	var req SelectRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL != nil && !h.isRegistered(*req.URL) {
		h.writeServiceError(w, r, "select repository",
			fmt.Errorf("%w: %q", application.ErrRepositoryNotFound, *req.URL))
		return
	}

	h.selection.SelectRepository(req.URL)
	h.persist(r.Context())

	writeJSON(w, http.StatusOK, toSettingsResponse(h.session.Settings()))
}

// ListWorkflows fetches the workflows of the selected repository.
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.selection.LoadWorkflows(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list workflows", err)
		return
	}

	var selectedID *int64
	if repo, ok := h.selection.SelectedRepository(); ok {
		selectedID = repo.WorkflowID
	}

	resp := make([]WorkflowResponse, 0, len(workflows))
	for _, wf := range workflows {
		resp = append(resp, toWorkflowResponse(wf, selectedID))
	}

	writeJSON(w, http.StatusOK, resp)
}

// SelectWorkflow records the workflow chosen for the selected repository.
func (h *Handler) SelectWorkflow(w http.ResponseWriter, r *http.Request) {
	var req SelectWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.selection.SetSelectedWorkflowID(req.ID); err != nil {
		h.writeServiceError(w, r, "select workflow", err)
		return
	}
	h.persist(r.Context())

	repo, _ := h.selection.SelectedRepository()
	writeJSON(w, http.StatusOK, toRepositoryResponse(repo, &repo.URL))
}

// ListFirmware returns the firmware candidates of the selected repository and
// the state of the last resolution.
func (h *Handler) ListFirmware(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.resolver.Candidates(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list firmware", err)
		return
	}

	writeJSON(w, http.StatusOK, h.firmwareList(candidates))
}

// ResolveLatest fetches the newest successful builds of the selected workflow
// and merges their artifacts into the candidate list.
func (h *Handler) ResolveLatest(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.resolver.ResolveLatest(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "resolve latest firmware", err)
		return
	}

	writeJSON(w, http.StatusOK, h.firmwareList(candidates))
}

// ListDevices returns the currently detected devices.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.Enumerate(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list devices", err)
		return
	}

	writeJSON(w, http.StatusOK, toDeviceResponses(devices))
}

// Compatibility reports whether the firmware given by the firmware query
// parameter suits the device given by the device parameter. A missing
// parameter yields the unknown result.
func (h *Handler) Compatibility(w http.ResponseWriter, r *http.Request) {
	device, fw, ok := h.lookupPair(w, r)
	if !ok {
		return
	}

	result := application.CheckCompatibility(device, fw)
	writeJSON(w, http.StatusOK, CompatibilityResponse{
		Result:     result.String(),
		Compatible: result.Bool(),
	})
}

// FlashHistory returns the most recent flash attempts, newest first.
func (h *Handler) FlashHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.flash.History(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, "list flash history", err)
		return
	}

	resp := make([]FlashRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toFlashRecordResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

// lookupPair resolves the device and firmware query parameters. An absent
// parameter yields nil; an unknown ID writes 404 and returns false.
func (h *Handler) lookupPair(w http.ResponseWriter, r *http.Request) (*model.Device, *model.Firmware, bool) {
	q := r.URL.Query()
	var (
		device *model.Device
		fw     *model.Firmware
	)

	if id := q.Get("device"); id != "" {
		d, found, err := h.devices.FindDevice(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, r, "find device", err)
			return nil, nil, false
		}
		if !found {
			writeError(w, http.StatusNotFound, "device not found")
			return nil, nil, false
		}
		device = &d
	}

	if id := q.Get("firmware"); id != "" {
		f, found, err := h.resolver.FindCandidate(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, r, "find firmware", err)
			return nil, nil, false
		}
		if !found {
			writeError(w, http.StatusNotFound, "firmware not found")
			return nil, nil, false
		}
		fw = &f
	}

	return device, fw, true
}

func (h *Handler) firmwareList(candidates []model.Firmware) FirmwareListResponse {
	state, err := h.resolver.State()
	resp := FirmwareListResponse{
		State:    state.String(),
		Firmware: toFirmwareResponses(candidates),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (h *Handler) isRegistered(url string) bool {
	for _, repo := range h.selection.Repositories() {
		if repo.URL == url {
			return true
		}
	}
	return false
}

// persist saves the user state after a mutation. A failure is logged and
// retried implicitly by the next mutation or at shutdown.
func (h *Handler) persist(ctx context.Context) {
	if err := h.session.Persist(context.WithoutCancel(ctx)); err != nil {
		h.logger.WarnContext(ctx, "failed to persist settings", "error", err)
	}
}
