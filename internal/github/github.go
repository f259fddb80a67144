package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"

	"github.com/Cloudsky01/gh-ipabuild/pkg/models"
)

const DefaultTimeout = 30 * time.Second

// maxLogRedirects bounds the redirect chain GitHub uses for log archives
const maxLogRedirects = 4

type Client struct {
	gh      *github.Client
	http    *http.Client
	timeout time.Duration
}

type options struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*options)

// WithHTTPClient sets the HTTP client used for API calls and downloads.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithBaseURL points the client at a different API root (GitHub Enterprise or tests).
func WithBaseURL(base string) Option {
	return func(o *options) { o.baseURL = base }
}

func NewClient(token string, opts ...Option) *Client {
	return NewClientWithTimeout(token, DefaultTimeout, opts...)
}

func NewClientWithTimeout(token string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	o := options{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}

	gh := github.NewClient(o.httpClient).WithAuthToken(token)
	if o.baseURL != "" {
		if u, err := url.Parse(strings.TrimRight(o.baseURL, "/") + "/"); err == nil {
			gh.BaseURL = u
		}
	}

	return &Client{
		gh:      gh,
		http:    o.httpClient,
		timeout: timeout,
	}
}

// APIError carries the platform's error message verbatim.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (%d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the API answered 404.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func (c *Client) wrap(ctx context.Context, op string, resp *github.Response, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s timed out after %v", op, c.timeout)
	}
	apiErr := &APIError{Op: op, Message: err.Error(), Err: err}
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) {
		apiErr.Message = errResp.Message
		if len(errResp.Errors) > 0 {
			details := make([]string, 0, len(errResp.Errors))
			for _, e := range errResp.Errors {
				if e.Message != "" {
					details = append(details, e.Message)
				}
			}
			if len(details) > 0 {
				apiErr.Message += ": " + strings.Join(details, "; ")
			}
		}
	}
	if resp != nil && resp.Response != nil {
		apiErr.StatusCode = resp.StatusCode
	}
	return apiErr
}

// GetAuthenticatedUser returns the login of the token's owner
func (c *Client) GetAuthenticatedUser(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	user, resp, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", c.wrap(ctx, "get authenticated user", resp, err)
	}
	return user.GetLogin(), nil
}

// CreateRepository creates a public repository without an initial commit
func (c *Client) CreateRepository(ctx context.Context, name string) (*models.Repository, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	repo, resp, err := c.gh.Repositories.Create(ctx, "", &github.Repository{
		Name:     github.Ptr(name),
		Private:  github.Ptr(false),
		AutoInit: github.Ptr(false),
	})
	if err != nil {
		return nil, c.wrap(ctx, "create repository", resp, err)
	}
	return toRepository(repo), nil
}

func (c *Client) GetRepository(ctx context.Context, owner, name string) (*models.Repository, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	repo, resp, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, c.wrap(ctx, "get repository", resp, err)
	}
	return toRepository(repo), nil
}

// SetActionsPermissions enables Actions for all actions and grants workflows contents:write
func (c *Client) SetActionsPermissions(ctx context.Context, repo models.Repository) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, resp, err := c.gh.Repositories.EditActionsPermissions(ctx, repo.Owner, repo.Name, github.ActionsPermissionsRepository{
		Enabled:        github.Ptr(true),
		AllowedActions: github.Ptr("all"),
	})
	if err != nil {
		return c.wrap(ctx, "set actions permissions", resp, err)
	}

	_, resp, err = c.gh.Repositories.EditDefaultWorkflowPermissions(ctx, repo.Owner, repo.Name, github.DefaultWorkflowPermissionRepository{
		DefaultWorkflowPermissions: github.Ptr("write"),
	})
	if err != nil {
		return c.wrap(ctx, "set workflow permissions", resp, err)
	}
	return nil
}

// GetWorkflows fetches the workflow definitions registered in a repository
func (c *Client) GetWorkflows(ctx context.Context, repo models.Repository) ([]models.GHWorkflow, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var workflows []models.GHWorkflow
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := c.gh.Actions.ListWorkflows(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, c.wrap(ctx, "list workflows", resp, err)
		}
		for _, wf := range page.Workflows {
			workflows = append(workflows, models.GHWorkflow{
				ID:    wf.GetID(),
				Name:  wf.GetName(),
				Path:  wf.GetPath(),
				State: wf.GetState(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return workflows, nil
}

// DispatchWorkflow requests a workflow_dispatch run and returns the HTTP status code
func (c *Client) DispatchWorkflow(ctx context.Context, repo models.Repository, workflowFile, ref string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.gh.Actions.CreateWorkflowDispatchEventByFileName(ctx, repo.Owner, repo.Name, workflowFile,
		github.CreateWorkflowDispatchEventRequest{Ref: ref})
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	if err != nil {
		return status, c.wrap(ctx, "dispatch workflow", resp, err)
	}
	return status, nil
}

// ListRuns returns workflow_dispatch runs for a branch, newest first
func (c *Client) ListRuns(ctx context.Context, repo models.Repository, workflowFile, branch string) ([]models.GHRun, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	page, resp, err := c.gh.Actions.ListWorkflowRunsByFileName(ctx, repo.Owner, repo.Name, workflowFile,
		&github.ListWorkflowRunsOptions{
			Branch:      branch,
			Event:       "workflow_dispatch",
			ListOptions: github.ListOptions{PerPage: 20},
		})
	if err != nil {
		return nil, c.wrap(ctx, "list workflow runs", resp, err)
	}

	runs := make([]models.GHRun, 0, len(page.WorkflowRuns))
	for _, r := range page.WorkflowRuns {
		runs = append(runs, toRun(r))
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].DatabaseID > runs[j].DatabaseID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs, nil
}

func (c *Client) GetRun(ctx context.Context, repo models.Repository, runID int64) (*models.GHRun, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	r, resp, err := c.gh.Actions.GetWorkflowRunByID(ctx, repo.Owner, repo.Name, runID)
	if err != nil {
		return nil, c.wrap(ctx, "get workflow run", resp, err)
	}
	run := toRun(r)
	return &run, nil
}

// ListReleases returns releases in the platform's order (newest first)
func (c *Client) ListReleases(ctx context.Context, repo models.Repository) ([]models.GHRelease, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	releases, resp, err := c.gh.Repositories.ListReleases(ctx, repo.Owner, repo.Name, &github.ListOptions{PerPage: 10})
	if err != nil {
		return nil, c.wrap(ctx, "list releases", resp, err)
	}

	out := make([]models.GHRelease, 0, len(releases))
	for _, rel := range releases {
		out = append(out, models.GHRelease{
			ID:        rel.GetID(),
			TagName:   rel.GetTagName(),
			Name:      rel.GetName(),
			CreatedAt: rel.GetCreatedAt().Time,
		})
	}
	return out, nil
}

func (c *Client) ListReleaseAssets(ctx context.Context, repo models.Repository, releaseID int64) ([]models.GHAsset, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out []models.GHAsset
	opts := &github.ListOptions{PerPage: 100}
	for {
		assets, resp, err := c.gh.Repositories.ListReleaseAssets(ctx, repo.Owner, repo.Name, releaseID, opts)
		if err != nil {
			return nil, c.wrap(ctx, "list release assets", resp, err)
		}
		for _, a := range assets {
			out = append(out, models.GHAsset{
				ID:          a.GetID(),
				Name:        a.GetName(),
				Size:        int64(a.GetSize()),
				DownloadURL: a.GetBrowserDownloadURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// DownloadAsset streams a release asset into w. Transfers are bounded only by ctx,
// since artifacts can take far longer than a single API call.
func (c *Client) DownloadAsset(ctx context.Context, repo models.Repository, assetID int64, w io.Writer) (int64, error) {
	rc, _, err := c.gh.Repositories.DownloadReleaseAsset(ctx, repo.Owner, repo.Name, assetID, c.http)
	if err != nil {
		return 0, c.wrap(ctx, "download release asset", nil, err)
	}
	defer rc.Close()

	n, err := io.Copy(w, rc)
	if err != nil {
		return n, fmt.Errorf("download interrupted after %d bytes: %w", n, err)
	}
	return n, nil
}

// GetRunLogs downloads the zip archive of a run's logs
func (c *Client) GetRunLogs(ctx context.Context, repo models.Repository, runID int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logURL, resp, err := c.gh.Actions.GetWorkflowRunLogs(ctx, repo.Owner, repo.Name, runID, maxLogRedirects)
	if err != nil {
		return nil, c.wrap(ctx, "get run logs", resp, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build log request: %w", err)
	}

	logResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch run logs: %w", err)
	}
	defer logResp.Body.Close()

	if logResp.StatusCode < 200 || logResp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(logResp.Body, 1024))
		return nil, &APIError{Op: "download run logs", StatusCode: logResp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	data, err := io.ReadAll(logResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read run logs: %w", err)
	}
	return data, nil
}

func toRepository(r *github.Repository) *models.Repository {
	return &models.Repository{
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		DefaultBranch: r.GetDefaultBranch(),
		CloneURL:      r.GetCloneURL(),
	}
}

func toRun(r *github.WorkflowRun) models.GHRun {
	return models.GHRun{
		DatabaseID: r.GetID(),
		Name:       r.GetName(),
		Status:     r.GetStatus(),
		Conclusion: r.GetConclusion(),
		CreatedAt:  r.GetCreatedAt().Time,
		HeadBranch: r.GetHeadBranch(),
		Event:      r.GetEvent(),
		URL:        r.GetHTMLURL(),
	}
}
