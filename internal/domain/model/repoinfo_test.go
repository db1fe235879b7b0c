package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRepoURL_Valid(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		owner string
		repo  string
	}{
		{"plain", "https://github.com/zmkfirmware/zmk", "zmkfirmware", "zmk"},
		{"trailing slash", "https://github.com/zmkfirmware/zmk/", "zmkfirmware", "zmk"},
		{"deep path", "https://github.com/owner/repo/tree/main/config", "owner", "repo"},
		{"other host", "https://gitea.example.com/team/keyboards", "team", "keyboards"},
		{"empty segments skipped", "https://github.com//owner//repo", "owner", "repo"},
		{"query", "https://github.com/owner/repo?tab=readme", "owner", "repo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := ParseRepoURL(tt.url)
			assert.True(t, ok)
			assert.Equal(t, tt.owner, info.Owner)
			assert.Equal(t, tt.repo, info.Repo)
			assert.True(t, IsValidRepoURL(tt.url))
			assert.Equal(t, tt.owner+"/"+tt.repo, RepoDisplayName(tt.url))
		})
	}
}

func TestParseRepoURL_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"github.com/owner/repo",
		"http://github.com/owner/repo",
		"https://github.com",
		"https://github.com/",
		"https://github.com/owner",
		"https:///owner/repo",
		"ftp://github.com/owner/repo",
		"git@github.com:owner/repo.git",
		"https://user@github.com/owner/repo",
		"not a url at all",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, ok := ParseRepoURL(in)
			assert.False(t, ok)
			assert.False(t, IsValidRepoURL(in))
			assert.Equal(t, in, RepoDisplayName(in), "invalid URLs display unchanged")
		})
	}
}

func TestRepository_WithWorkflowID_Copies(t *testing.T) {
	id := int64(7)
	repo := Repository{URL: "https://github.com/a/b"}.WithWorkflowID(&id)
	id = 9

	assert.Equal(t, int64(7), *repo.WorkflowID)
	assert.Nil(t, repo.WithWorkflowID(nil).WorkflowID)
}
