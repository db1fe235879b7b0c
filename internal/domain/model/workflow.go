package model

import "time"

// Workflow is a CI workflow definition as reported by the upstream API.
// Workflows are replaced wholesale on every fetch and never edited locally.
type Workflow struct {
	ID        int64
	Name      string
	Path      string // e.g. ".github/workflows/build.yml".
	State     string // active, disabled_manually, ...
	CreatedAt time.Time
	UpdatedAt time.Time
	URL       string
	HTMLURL   string
	BadgeURL  string
}

// WorkflowRun is a single execution of a workflow. Transient: used only to
// locate the artifacts of recent builds.
type WorkflowRun struct {
	ID                int64
	Name              string
	WorkflowID        int64
	HeadBranch        string
	HeadCommitMessage string
	Status            string // queued, in_progress, completed.
	Conclusion        string // success, failure, cancelled, ...
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Artifact is a build output attached to a workflow run.
type Artifact struct {
	ID                 int64
	Name               string
	SizeInBytes        int64
	ArchiveDownloadURL string
	Expired            bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
