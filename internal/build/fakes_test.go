package build

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Cloudsky01/gh-ipabuild/pkg/models"
)

var (
	testRepo   = models.Repository{Owner: "octocat", Name: "app", DefaultBranch: "main"}
	testTarget = models.RunTarget{Repository: testRepo, Branch: "main", Workflow: "build_ios.yml"}
	epoch      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type notFoundError struct{}

func (notFoundError) Error() string  { return "404 Not Found" }
func (notFoundError) NotFound() bool { return true }

// fakeStatus replays one scripted observation per API call
type fakeStatus struct {
	mu sync.Mutex

	workflows    [][]models.GHWorkflow
	workflowErrs []error
	runs         [][]models.GHRun
	runErrs      []error
	getRun       []*models.GHRun
	getRunErrs   []error

	workflowCalls int
	listCalls     int
	getCalls      int
}

func pick[T any](items []T, i int) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	if i >= len(items) {
		return items[len(items)-1]
	}
	return items[i]
}

func (f *fakeStatus) GetWorkflows(_ context.Context, _ models.Repository) ([]models.GHWorkflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.workflowCalls
	f.workflowCalls++
	if err := pick(f.workflowErrs, i); err != nil {
		return nil, err
	}
	return pick(f.workflows, i), nil
}

func (f *fakeStatus) ListRuns(_ context.Context, _ models.Repository, _, _ string) ([]models.GHRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.listCalls
	f.listCalls++
	if err := pick(f.runErrs, i); err != nil {
		return nil, err
	}
	return pick(f.runs, i), nil
}

func (f *fakeStatus) GetRun(_ context.Context, _ models.Repository, _ int64) (*models.GHRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.getCalls
	f.getCalls++
	if err := pick(f.getRunErrs, i); err != nil {
		return nil, err
	}
	return pick(f.getRun, i), nil
}

var buildWorkflow = []models.GHWorkflow{{ID: 7, Name: "iOS Build", Path: ".github/workflows/build_ios.yml", State: "active"}}

func run(id int64, status, conclusion string, created time.Time) models.GHRun {
	return models.GHRun{
		DatabaseID: id,
		Status:     status,
		Conclusion: conclusion,
		CreatedAt:  created,
		HeadBranch: "main",
		Event:      "workflow_dispatch",
		URL:        "https://github.com/octocat/app/actions/runs/1",
	}
}

func runPtr(r models.GHRun) *models.GHRun { return &r }

type fakeDispatch struct {
	status int
	err    error
	calls  int
	ref    string
}

func (f *fakeDispatch) DispatchWorkflow(_ context.Context, _ models.Repository, _, ref string) (int, error) {
	f.calls++
	f.ref = ref
	return f.status, f.err
}

type fakeReleases struct {
	releases    []models.GHRelease
	releasesErr error
	assets      map[int64][]models.GHAsset
	content     map[int64][]byte
	downloadErr error

	downloads []int64
}

func (f *fakeReleases) ListReleases(_ context.Context, _ models.Repository) ([]models.GHRelease, error) {
	return f.releases, f.releasesErr
}

func (f *fakeReleases) ListReleaseAssets(_ context.Context, _ models.Repository, id int64) ([]models.GHAsset, error) {
	return f.assets[id], nil
}

func (f *fakeReleases) DownloadAsset(_ context.Context, _ models.Repository, id int64, w io.Writer) (int64, error) {
	f.downloads = append(f.downloads, id)
	n, err := io.Copy(w, bytes.NewReader(f.content[id]))
	if err != nil {
		return n, err
	}
	if f.downloadErr != nil {
		return n, f.downloadErr
	}
	return n, nil
}

type fakeLogs struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeLogs) GetRunLogs(_ context.Context, _ models.Repository, _ int64) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

var errBoom = errors.New("boom")
