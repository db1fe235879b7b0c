package model

import (
	"net/url"
	"strings"
)

// RepoInfo holds the owner and repository name extracted from a repository URL.
type RepoInfo struct {
	Host  string
	Owner string
	Repo  string
}

// FullName returns the "owner/repo" form.
func (i RepoInfo) FullName() string {
	return i.Owner + "/" + i.Repo
}

// ParseRepoURL extracts owner and repository from a URL shaped like
// https://<host>/<owner>/<repo>[/...]. Owner and repo are the first two
// non-empty path segments. The second return value is false on any mismatch.
func ParseRepoURL(raw string) (RepoInfo, bool) {
	if !strings.HasPrefix(raw, "https://") {
		return RepoInfo{}, false
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" || u.User != nil {
		return RepoInfo{}, false
	}

	segments := make([]string, 0, 2)
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == "" {
			continue
		}
		segments = append(segments, seg)
		if len(segments) == 2 {
			break
		}
	}
	if len(segments) < 2 {
		return RepoInfo{}, false
	}

	return RepoInfo{
		Host:  u.Host,
		Owner: segments[0],
		Repo:  segments[1],
	}, true
}

// RepoDisplayName returns "owner/repo" for a parseable URL and the raw URL otherwise.
func RepoDisplayName(raw string) string {
	info, ok := ParseRepoURL(raw)
	if !ok {
		return raw
	}
	return info.FullName()
}

// IsValidRepoURL reports whether raw can be parsed by ParseRepoURL.
func IsValidRepoURL(raw string) bool {
	_, ok := ParseRepoURL(raw)
	return ok
}
