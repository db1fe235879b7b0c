package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/keyflash/internal/application"
	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorStatus maps a service error to the HTTP status it is reported with.
// Unrecognised errors are internal errors.
func errorStatus(err error) int {
	var upstream *driven.UpstreamError
	switch {
	case errors.Is(err, driven.ErrCancelled):
		return http.StatusNoContent
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	case errors.Is(err, application.ErrInvalidURL),
		errors.Is(err, driven.ErrInvalidRepository),
		errors.Is(err, application.ErrInvalidLanguage):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrDuplicateRepository),
		errors.Is(err, application.ErrIncompatibleFirmware),
		errors.Is(err, application.ErrFlashInProgress):
		return http.StatusConflict
	case errors.Is(err, application.ErrNoRepositorySelected),
		errors.Is(err, application.ErrNoWorkflowSelected),
		errors.Is(err, application.ErrNoDeviceSelected),
		errors.Is(err, application.ErrNoFirmwareSelected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, application.ErrRepositoryNotFound),
		errors.Is(err, application.ErrNoSuccessfulRuns),
		errors.Is(err, application.ErrNoArtifacts):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError reports err with the status errorStatus assigns it.
// Cancellation is silent: 204 with no body. Upstream failures carry the
// remote status and body so the caller can show them.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)

	switch status {
	case http.StatusNoContent:
		h.logger.DebugContext(r.Context(), "request cancelled", "op", op)
		w.WriteHeader(status)
		return
	case http.StatusBadGateway:
		var upstream *driven.UpstreamError
		errors.As(err, &upstream)
		h.logger.WarnContext(r.Context(), "upstream request failed", "op", op, "status", upstream.Status)
		writeJSON(w, status, upstreamErrorResponse{
			Error:          "upstream request failed",
			UpstreamStatus: upstream.Status,
			UpstreamBody:   upstream.Body,
		})
		return
	case http.StatusInternalServerError:
		h.logger.ErrorContext(r.Context(), "request failed", "op", op, "error", err)
		writeError(w, status, "internal server error")
		return
	}

	writeError(w, status, err.Error())
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// upstreamErrorResponse is the error body for a failed call to the CI provider.
type upstreamErrorResponse struct {
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstream_status"`
	UpstreamBody   string `json:"upstream_body"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// SettingsResponse is the JSON representation of the persisted user state.
type SettingsResponse struct {
	Language              string               `json:"language"`
	Repositories          []RepositoryResponse `json:"repositories"`
	SelectedRepositoryURL *string              `json:"selected_repository_url"`
}

// RepositoryResponse is the JSON representation of a registered repository.
type RepositoryResponse struct {
	URL        string `json:"url"`
	FullName   string `json:"full_name"`
	WorkflowID *int64 `json:"workflow_id"`
	Selected   bool   `json:"selected"`
}

// WorkflowResponse is the JSON representation of a CI workflow.
type WorkflowResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	State     string `json:"state"`
	HTMLURL   string `json:"html_url"`
	BadgeURL  string `json:"badge_url"`
	Selected  bool   `json:"selected"`
	UpdatedAt string `json:"updated_at"`
}

// FirmwareResponse is the JSON representation of a firmware candidate.
type FirmwareResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DownloadURL   string `json:"download_url"`
	Downloadable  bool   `json:"downloadable"`
	BuildDate     string `json:"build_date"`
	Branch        string `json:"branch"`
	CommitMessage string `json:"commit_message"`
	CommitHTML    string `json:"commit_html"`
	SizeKB        int64  `json:"size_kb"`
}

// FirmwareListResponse is the candidate list with the resolution state.
type FirmwareListResponse struct {
	State    string             `json:"state"`
	Error    string             `json:"error,omitempty"`
	Firmware []FirmwareResponse `json:"firmware"`
}

// DeviceResponse is the JSON representation of a detected device.
type DeviceResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Side         string `json:"side,omitempty"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	BoardID      string `json:"board_id,omitempty"`
	MountPath    string `json:"mount_path,omitempty"`
}

// CompatibilityResponse reports the tri-state compatibility of a pair.
// Compatible is null when either side is missing.
type CompatibilityResponse struct {
	Result     string `json:"result"`
	Compatible *bool  `json:"compatible"`
}

// FlashEventResponse is one message on the flash progress stream.
type FlashEventResponse struct {
	Type         string `json:"type"`
	OperationID  string `json:"operation_id,omitempty"`
	Percentage   int    `json:"percentage"`
	BytesWritten int64  `json:"bytes_written"`
	TotalBytes   int64  `json:"total_bytes"`
	Status       string `json:"status,omitempty"`
	Message      string `json:"message,omitempty"`
}

// FlashRecordResponse is the JSON representation of a past flash attempt.
type FlashRecordResponse struct {
	ID           string `json:"id"`
	DeviceID     string `json:"device_id"`
	DeviceName   string `json:"device_name"`
	FirmwareID   string `json:"firmware_id"`
	FirmwareName string `json:"firmware_name"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at,omitempty"`
}

// LanguageRequest is the JSON body for the language endpoint.
type LanguageRequest struct {
	Language string `json:"language"`
}

// TokenRequest is the JSON body for the token endpoint. An empty token
// switches to anonymous API access.
type TokenRequest struct {
	Token string `json:"token"`
}

// AddRepoRequest is the JSON body for the add repository endpoint.
type AddRepoRequest struct {
	URL string `json:"url"`
}

// SelectRepoRequest is the JSON body for the repository selection endpoint.
// A null URL clears the selection.
type SelectRepoRequest struct {
	URL *string `json:"url"`
}

// SelectWorkflowRequest is the JSON body for the workflow selection endpoint.
// A null ID clears the selection.
type SelectWorkflowRequest struct {
	ID *int64 `json:"id"`
}

func toSettingsResponse(s model.Settings) SettingsResponse {
	repos := make([]RepositoryResponse, 0, len(s.Repositories))
	for _, repo := range s.Repositories {
		repos = append(repos, toRepositoryResponse(repo, s.SelectedRepositoryURL))
	}
	return SettingsResponse{
		Language:              s.Language,
		Repositories:          repos,
		SelectedRepositoryURL: s.SelectedRepositoryURL,
	}
}

func toRepositoryResponse(repo model.Repository, selected *string) RepositoryResponse {
	return RepositoryResponse{
		URL:        repo.URL,
		FullName:   model.RepoDisplayName(repo.URL),
		WorkflowID: repo.WorkflowID,
		Selected:   selected != nil && *selected == repo.URL,
	}
}

func toWorkflowResponse(wf model.Workflow, selectedID *int64) WorkflowResponse {
	return WorkflowResponse{
		ID:        wf.ID,
		Name:      wf.Name,
		Path:      wf.Path,
		State:     wf.State,
		HTMLURL:   wf.HTMLURL,
		BadgeURL:  wf.BadgeURL,
		Selected:  selectedID != nil && *selectedID == wf.ID,
		UpdatedAt: formatTime(wf.UpdatedAt),
	}
}

// toFirmwareResponse converts a firmware candidate, rendering its commit
// message to sanitized HTML.
func toFirmwareResponse(fw model.Firmware) FirmwareResponse {
	return FirmwareResponse{
		ID:            fw.ID,
		Name:          fw.Name,
		DownloadURL:   fw.Path,
		Downloadable:  fw.IsDownloadable(),
		BuildDate:     formatTime(fw.BuildDate),
		Branch:        fw.Branch,
		CommitMessage: fw.CommitMessage,
		CommitHTML:    RenderCommitMessage(fw.CommitMessage),
		SizeKB:        fw.SizeKB(),
	}
}

func toFirmwareResponses(fws []model.Firmware) []FirmwareResponse {
	resp := make([]FirmwareResponse, 0, len(fws))
	for _, fw := range fws {
		resp = append(resp, toFirmwareResponse(fw))
	}
	return resp
}

func toDeviceResponse(d model.Device) DeviceResponse {
	return DeviceResponse{
		ID:           d.ID,
		Name:         d.Name,
		Side:         string(d.Side),
		VID:          d.VID,
		PID:          d.PID,
		Manufacturer: d.Manufacturer,
		BoardID:      d.BoardID,
		MountPath:    d.MountPath,
	}
}

func toDeviceResponses(devices []model.Device) []DeviceResponse {
	resp := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		resp = append(resp, toDeviceResponse(d))
	}
	return resp
}

func toFlashEventResponse(p model.FlashProgress) FlashEventResponse {
	return FlashEventResponse{
		Type:         "progress",
		Percentage:   p.Percentage,
		BytesWritten: p.BytesWritten,
		TotalBytes:   p.TotalBytes,
		Status:       string(p.Status),
		Message:      p.Message,
	}
}

func toFlashRecordResponse(rec model.FlashRecord) FlashRecordResponse {
	return FlashRecordResponse{
		ID:           rec.ID,
		DeviceID:     rec.DeviceID,
		DeviceName:   rec.DeviceName,
		FirmwareID:   rec.FirmwareID,
		FirmwareName: rec.FirmwareName,
		Status:       string(rec.Status),
		Message:      rec.Message,
		StartedAt:    formatTime(rec.StartedAt),
		FinishedAt:   formatTime(rec.FinishedAt),
	}
}

// formatTime renders t as RFC 3339 in UTC, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
