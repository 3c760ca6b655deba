// Package github speaks the slice of the GitHub REST and Git Data APIs
// the dashboard needs: reading content files, uploading blobs, building
// trees and commits, and advancing the target branch ref.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ReignOfTea/protest-dash/internal/errors"
)

const defaultAPIBase = "https://api.github.com"

// Options configures a Client. Token is sent as a bearer credential on
// every request.
type Options struct {
	APIBase string
	Owner   string
	Repo    string
	Branch  string
	Token   string
}

type Client struct {
	baseURL    string
	owner      string
	repo       string
	branch     string
	token      string
	httpClient *http.Client
}

func New(opts Options) *Client {
	base := opts.APIBase
	if base == "" {
		base = defaultAPIBase
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		owner:   opts.Owner,
		repo:    opts.Repo,
		branch:  opts.Branch,
		token:   opts.Token,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
	}
}

// Branch returns the branch this client reads from and commits to.
func (c *Client) Branch() string {
	return c.branch
}

// GetFile reads path on the configured branch. A missing file returns a
// NOT_FOUND error; content that is not valid JSON returns a PARSE error,
// since everything this dashboard stores is JSON.
func (c *Client) GetFile(ctx context.Context, path string) (*RemoteFile, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", c.baseURL, c.owner, c.repo, path, c.branch)

	var out contentsResponse
	if err := c.do(ctx, http.MethodGet, url, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}

	if out.Encoding != "base64" {
		return nil, errors.Upstream("unexpected content encoding", map[string]any{
			"path":     path,
			"encoding": out.Encoding,
		})
	}

	// GitHub wraps base64 payloads with newlines.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(out.Content, "\n", ""))
	if err != nil {
		return nil, errors.Upstream("invalid base64 content", map[string]any{"path": path})
	}

	if !json.Valid(raw) {
		return nil, errors.ParseError("remote file is not valid JSON", map[string]any{"path": path})
	}

	return &RemoteFile{Path: path, SHA: out.SHA, Content: raw}, nil
}

// BranchHead resolves the configured branch ref to its commit SHA.
func (c *Client) BranchHead(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/ref/heads/%s", c.baseURL, c.owner, c.repo, c.branch)

	var out refResponse
	if err := c.do(ctx, http.MethodGet, url, nil, &out, http.StatusOK); err != nil {
		return "", err
	}
	return out.Object.SHA, nil
}

// CommitTree returns the tree SHA the given commit points at.
func (c *Client) CommitTree(ctx context.Context, commitSHA string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/commits/%s", c.baseURL, c.owner, c.repo, commitSHA)

	var out commitResponse
	if err := c.do(ctx, http.MethodGet, url, nil, &out, http.StatusOK); err != nil {
		return "", err
	}
	return out.Tree.SHA, nil
}

// CreateBlob uploads content and returns the new blob SHA. Content is
// sent as utf-8 text, never base64, so the repository diff stays readable.
func (c *Client) CreateBlob(ctx context.Context, content string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/blobs", c.baseURL, c.owner, c.repo)

	var out shaResponse
	err := c.do(ctx, http.MethodPost, url, blobRequest{Content: content, Encoding: "utf-8"}, &out, http.StatusCreated)
	if err != nil {
		return "", err
	}
	return out.SHA, nil
}

// CreateTree builds a new tree on top of baseTree. Paths not listed in
// entries are inherited from the base unchanged.
func (c *Client) CreateTree(ctx context.Context, baseTree string, entries []TreeEntry) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees", c.baseURL, c.owner, c.repo)

	req := treeRequest{BaseTree: baseTree}
	for _, e := range entries {
		req.Tree = append(req.Tree, treeEntryJSON{
			Path: e.Path,
			Mode: "100644",
			Type: "blob",
			SHA:  e.SHA,
		})
	}

	var out shaResponse
	if err := c.do(ctx, http.MethodPost, url, req, &out, http.StatusCreated); err != nil {
		return "", err
	}
	return out.SHA, nil
}

// CreateCommit creates a commit object for tree with the given parents.
func (c *Client) CreateCommit(ctx context.Context, message, tree string, parents []string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/commits", c.baseURL, c.owner, c.repo)

	var out shaResponse
	err := c.do(ctx, http.MethodPost, url, createCommitRequest{
		Message: message,
		Tree:    tree,
		Parents: parents,
	}, &out, http.StatusCreated)
	if err != nil {
		return "", err
	}
	return out.SHA, nil
}

// UpdateRef moves the branch ref to sha. Force is never set, so GitHub
// rejects the update when the branch has advanced past the commit's
// parent; that rejection comes back as a CONFLICT error.
func (c *Client) UpdateRef(ctx context.Context, sha string) error {
	url := fmt.Sprintf("%s/repos/%s/%s/git/refs/heads/%s", c.baseURL, c.owner, c.repo, c.branch)
	return c.do(ctx, http.MethodPatch, url, updateRefRequest{SHA: sha, Force: false}, nil, http.StatusOK)
}

// RecentCommits lists the newest commits on the branch, capped at limit.
func (c *Client) RecentCommits(ctx context.Context, limit int) ([]Commit, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits?sha=%s&per_page=%d", c.baseURL, c.owner, c.repo, c.branch, limit)

	var items []listCommitsItem
	if err := c.do(ctx, http.MethodGet, url, nil, &items, http.StatusOK); err != nil {
		return nil, err
	}

	commits := make([]Commit, 0, len(items))
	for _, it := range items {
		commits = append(commits, Commit{
			SHA:     it.SHA,
			Message: it.Commit.Message,
			Author:  it.Commit.Author.Name,
			Date:    it.Commit.Author.Date,
			URL:     it.URL,
		})
	}
	return commits, nil
}

// do issues one API call and decodes the response into out (when out is
// non-nil). Non-success statuses are classified into the error taxonomy:
// 404 → NOT_FOUND, 409/422 on ref updates → CONFLICT, everything else →
// UPSTREAM with the raw status and body attached for diagnostics.
func (c *Client) do(ctx context.Context, method, url string, body any, out any, want int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Internal(fmt.Sprintf("encode request: %v", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Internal(fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "protest-dash")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Upstream(fmt.Sprintf("github request failed: %v", err), nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		return classifyStatus(method, resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Upstream(fmt.Sprintf("decode github response: %v", err), nil)
		}
	}
	return nil
}

func classifyStatus(method string, status int, body []byte) error {
	switch {
	case status == http.StatusNotFound:
		return errors.NotFound("not found on remote")
	case method == http.MethodPatch && (status == http.StatusConflict || status == http.StatusUnprocessableEntity):
		// Non-fast-forward ref updates come back as 409 or 422 depending
		// on the API version.
		return errors.Conflict("ref update rejected, branch has moved")
	default:
		return errors.Upstream("unexpected github response", map[string]any{
			"status": status,
			"body":   strings.TrimSpace(string(body)),
		})
	}
}
