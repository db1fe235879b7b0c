package model

// Repository is a registered firmware source. Identity is the URL by exact
// string equality; no normalization is applied.
type Repository struct {
	URL        string
	WorkflowID *int64 // Selected workflow, persisted on the repository itself. Nil when none chosen.
}

// WithWorkflowID returns a copy of r with the selected workflow replaced.
func (r Repository) WithWorkflowID(id *int64) Repository {
	if id != nil {
		v := *id
		id = &v
	}
	r.WorkflowID = id
	return r
}
