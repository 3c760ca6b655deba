// Package shared holds the domain types passed between the API layer,
// the session edit buffers and the commit pipeline.
package shared

import (
	"context"
	"time"

	"github.com/ReignOfTea/protest-dash/internal/github"
)

// FileChange is a single file payload inside a batch push.
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// CommitRequest is a batch of file changes landed as one commit. The
// actor tag is never part of the request; the server derives it from
// the authenticated session.
type CommitRequest struct {
	Message string       `json:"commitMessage"`
	Files   []FileChange `json:"files"`
}

// CommitResult reports the outcome of a successful push.
type CommitResult struct {
	SHA    string   `json:"sha"`
	Report string   `json:"report"`
	Files  []string `json:"files"`
}

// TrackedFile is one file held in a session's edit buffer. A nil
// RevisionMarker means the file does not exist remotely yet (or was
// never fetched); Dirty means the content has local edits not yet
// committed.
type TrackedFile struct {
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	Content        string    `json:"content"`
	RevisionMarker *string   `json:"revisionMarker"`
	Dirty          bool      `json:"dirty"`
	FetchedAt      time.Time `json:"fetchedAt"`
}

// RemoteStore is the slice of the GitHub Git Data API that the edit
// buffer and the commit pipeline depend on.
type RemoteStore interface {
	GetFile(ctx context.Context, path string) (*github.RemoteFile, error)

	// BranchHead resolves the configured branch ref to its commit SHA.
	BranchHead(ctx context.Context) (string, error)

	// CommitTree returns the tree SHA a commit points at.
	CommitTree(ctx context.Context, commitSHA string) (string, error)

	// CreateBlob uploads content and returns the new blob SHA.
	CreateBlob(ctx context.Context, content string) (string, error)

	// CreateTree builds a tree on top of baseTree from the given entries.
	CreateTree(ctx context.Context, baseTree string, entries []github.TreeEntry) (string, error)

	// CreateCommit creates a commit object for tree with the given parents.
	CreateCommit(ctx context.Context, message, tree string, parents []string) (string, error)

	// UpdateRef moves the branch ref to sha without forcing, so a stale
	// parent is rejected upstream instead of clobbering newer commits.
	UpdateRef(ctx context.Context, sha string) error

	// RecentCommits lists the newest commits on the branch.
	RecentCommits(ctx context.Context, limit int) ([]github.Commit, error)
}
