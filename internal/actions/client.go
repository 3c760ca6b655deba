// Package actions is a read-only proxy over the repository's GitHub
// Actions API: the latest workflow run on the target branch plus its
// per-job statuses. Responses are cached briefly so a dashboard full of
// polling clients does not eat the API rate limit.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ReignOfTea/protest-dash/internal/errors"
)

// RunStatus is the latest workflow run, flattened for the dashboard.
type RunStatus struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Status     string      `json:"status"`
	Conclusion string      `json:"conclusion,omitempty"`
	Branch     string      `json:"branch"`
	SHA        string      `json:"sha"`
	URL        string      `json:"url"`
	StartedAt  time.Time   `json:"started_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Jobs       []JobStatus `json:"jobs"`
}

type JobStatus struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion,omitempty"`
}

type runsResponse struct {
	WorkflowRuns []struct {
		ID           int64     `json:"id"`
		Name         string    `json:"name"`
		Status       string    `json:"status"`
		Conclusion   string    `json:"conclusion"`
		HeadBranch   string    `json:"head_branch"`
		HeadSHA      string    `json:"head_sha"`
		URL          string    `json:"html_url"`
		RunStartedAt time.Time `json:"run_started_at"`
		UpdatedAt    time.Time `json:"updated_at"`
	} `json:"workflow_runs"`
}

type jobsResponse struct {
	Jobs []struct {
		Name       string `json:"name"`
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
	} `json:"jobs"`
}

type Options struct {
	APIBase  string
	Owner    string
	Repo     string
	Branch   string
	Token    string
	CacheTTL time.Duration
}

type Client struct {
	baseURL    string
	owner      string
	repo       string
	branch     string
	token      string
	httpClient *http.Client
	cache      *expirable.LRU[string, *RunStatus]
}

func New(opts Options) *Client {
	base := opts.APIBase
	if base == "" {
		base = "https://api.github.com"
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		owner:   opts.Owner,
		repo:    opts.Repo,
		branch:  opts.Branch,
		token:   opts.Token,
		httpClient: &http.Client{
			Timeout: time.Second * 15,
		},
		cache: expirable.NewLRU[string, *RunStatus](4, nil, ttl),
	}
}

// Latest returns the newest workflow run on the branch with its job
// statuses. A repository with no runs yet reports NOT_FOUND.
func (c *Client) Latest(ctx context.Context) (*RunStatus, error) {
	if cached, ok := c.cache.Get("latest"); ok {
		return cached, nil
	}

	runsURL := fmt.Sprintf("%s/repos/%s/%s/actions/runs?branch=%s&per_page=1", c.baseURL, c.owner, c.repo, c.branch)
	var runs runsResponse
	if err := c.get(ctx, runsURL, &runs); err != nil {
		return nil, err
	}
	if len(runs.WorkflowRuns) == 0 {
		return nil, errors.NotFound("no workflow runs on branch")
	}

	run := runs.WorkflowRuns[0]
	status := &RunStatus{
		ID:         run.ID,
		Name:       run.Name,
		Status:     run.Status,
		Conclusion: run.Conclusion,
		Branch:     run.HeadBranch,
		SHA:        run.HeadSHA,
		URL:        run.URL,
		StartedAt:  run.RunStartedAt,
		UpdatedAt:  run.UpdatedAt,
	}

	jobsURL := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d/jobs", c.baseURL, c.owner, c.repo, run.ID)
	var jobs jobsResponse
	if err := c.get(ctx, jobsURL, &jobs); err != nil {
		return nil, err
	}
	for _, j := range jobs.Jobs {
		status.Jobs = append(status.Jobs, JobStatus{
			Name:       j.Name,
			Status:     j.Status,
			Conclusion: j.Conclusion,
		})
	}

	c.cache.Add("latest", status)
	return status, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Internal(fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "protest-dash")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Upstream(fmt.Sprintf("actions request failed: %v", err), nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errors.Upstream("unexpected actions response", map[string]any{
			"status": resp.StatusCode,
			"body":   strings.TrimSpace(string(body)),
		})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Upstream(fmt.Sprintf("decode actions response: %v", err), nil)
	}
	return nil
}
