package model

import (
	"strconv"
	"strings"
	"time"
)

// ArtifactIDPrefix namespaces firmware IDs derived from CI artifacts so that
// IDs stay unique across fetches and providers.
const ArtifactIDPrefix = "github-artifact-"

// UnknownBranch is used when a workflow run does not report its head branch.
const UnknownBranch = "unknown"

// Firmware is a candidate firmware image. Immutable once constructed.
type Firmware struct {
	ID            string
	Name          string
	Path          string // Download URL.
	BuildDate     time.Time
	Branch        string
	CommitMessage string
	BoardID       string
	FamilyID      string
	Size          int64 // Bytes.
}

// FirmwareFromArtifact builds a Firmware from an artifact and the run that produced it.
func FirmwareFromArtifact(a Artifact, run WorkflowRun) Firmware {
	branch := run.HeadBranch
	if branch == "" {
		branch = UnknownBranch
	}

	return Firmware{
		ID:            ArtifactIDPrefix + strconv.FormatInt(a.ID, 10),
		Name:          a.Name,
		Path:          a.ArchiveDownloadURL,
		BuildDate:     a.CreatedAt,
		Branch:        branch,
		CommitMessage: run.HeadCommitMessage,
		Size:          a.SizeInBytes,
	}
}

// IsDownloadable reports whether the firmware came from a CI artifact and has
// a download location.
func (f Firmware) IsDownloadable() bool {
	return f.Path != "" && strings.HasPrefix(f.ID, ArtifactIDPrefix)
}

// SizeKB returns the size rounded to the nearest kilobyte.
func (f Firmware) SizeKB() int64 {
	return (f.Size + 512) / 1024
}
