// Package application contains use-case orchestration services.
package application

import "errors"

// Input validation errors.
var (
	ErrInvalidURL          = errors.New("invalid repository url")
	ErrInvalidLanguage     = errors.New("invalid language tag")
	ErrDuplicateRepository = errors.New("repository already registered")
	ErrRepositoryNotFound  = errors.New("repository not registered")
)

// Precondition errors. The action is aborted before any remote call.
var (
	ErrNoRepositorySelected = errors.New("no repository selected")
	ErrNoWorkflowSelected   = errors.New("no workflow selected")
	ErrNoDeviceSelected     = errors.New("no device selected")
	ErrNoFirmwareSelected   = errors.New("no firmware selected")
)

// Resolution errors.
var (
	ErrNoSuccessfulRuns = errors.New("workflow has no successful runs")
	ErrNoArtifacts      = errors.New("workflow runs produced no artifacts")
)

// Flash errors.
var (
	ErrIncompatibleFirmware = errors.New("firmware is not compatible with device")
	ErrFlashInProgress      = errors.New("a flash is already running on this device")
)
