// client/client.go
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ReignOfTea/protest-dash/internal/actions"
	"github.com/ReignOfTea/protest-dash/internal/github"
	"github.com/ReignOfTea/protest-dash/internal/journal"
	"github.com/ReignOfTea/protest-dash/internal/users"
)

// Client speaks to a running protest-dash server with a bearer token,
// either a session token or the configured admin token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
	}
}

// FileView is the server's view of one content file, staged edits
// included.
type FileView struct {
	SHA      *string         `json:"sha"`
	Content  json.RawMessage `json:"content"`
	Dirty    bool            `json:"dirty"`
	NotFound bool            `json:"notFound"`
}

// BufferFile is one tracked file in the session buffer summary.
type BufferFile struct {
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	Dirty          bool      `json:"dirty"`
	RevisionMarker *string   `json:"revisionMarker"`
	FetchedAt      time.Time `json:"fetchedAt"`
}

// BufferState summarizes the session's staged edits.
type BufferState struct {
	Files []BufferFile `json:"files"`
	Dirty []string     `json:"dirty"`
}

// CommitOutcome reports a landed push.
type CommitOutcome struct {
	OK        bool     `json:"ok"`
	CommitSHA string   `json:"commitSha"`
	Report    string   `json:"report"`
	Files     []string `json:"files"`
}

// Identity is the authenticated caller as the server sees it.
type Identity struct {
	User     users.User `json:"user"`
	ActorTag string     `json:"actorTag"`
}

func (c *Client) GetFile(name string) (*FileView, error) {
	var view FileView
	if err := c.do("GET", "/api/file/"+name, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) StageFile(name string, content json.RawMessage) (*FileView, error) {
	var view FileView
	body := map[string]json.RawMessage{"content": content}
	if err := c.do("PUT", "/api/file/"+name, body, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) BufferState() (*BufferState, error) {
	var state BufferState
	if err := c.do("GET", "/api/buffer", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Push commits every dirty file in the server-side buffer.
func (c *Client) Push(message string) (*CommitOutcome, error) {
	var outcome CommitOutcome
	body := map[string]string{"commitMessage": message}
	if err := c.do("POST", "/api/buffer/push", body, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// Discard drops staged edits. No paths means everything.
func (c *Client) Discard(paths []string) error {
	body := map[string][]string{"paths": paths}
	return c.do("POST", "/api/buffer/discard", body, nil)
}

func (c *Client) RecentCommits(limit int) ([]journal.Entry, error) {
	var resp struct {
		Commits []journal.Entry `json:"commits"`
	}
	path := "/api/commits/recent?limit=" + strconv.Itoa(limit)
	if err := c.do("GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Commits, nil
}

// UpstreamCommits lists the branch history as the hosting provider
// sees it, which includes pushes made outside the dashboard.
func (c *Client) UpstreamCommits(limit int) ([]github.Commit, error) {
	var resp struct {
		Commits []github.Commit `json:"commits"`
	}
	path := "/api/commits/recent?source=upstream&limit=" + strconv.Itoa(limit)
	if err := c.do("GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Commits, nil
}

func (c *Client) ActionsLatest() (*actions.RunStatus, error) {
	var run actions.RunStatus
	if err := c.do("GET", "/api/actions/latest", nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *Client) Me() (*Identity, error) {
	var id Identity
	if err := c.do("GET", "/api/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

func (c *Client) do(method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s", apiErr.Error.Message)
		}
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
