package models

import "time"

// Run status values reported by GitHub Actions
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// ConclusionSuccess is the only conclusion that counts as a passing build
const ConclusionSuccess = "success"

// Repository identifies a GitHub repository
type Repository struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch,omitempty"`
	CloneURL      string `json:"cloneUrl,omitempty"`
}

// FullName returns the repository in owner/repo format
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// RunTarget identifies which workflow to dispatch and track
type RunTarget struct {
	Repository Repository
	Branch     string
	Workflow   string
}

// GHWorkflow is a workflow definition registered in a repository
type GHWorkflow struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Path  string `json:"path"`
	State string `json:"state"`
}

// GHRun represents a GitHub workflow run
type GHRun struct {
	DatabaseID int64     `json:"databaseId"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	CreatedAt  time.Time `json:"createdAt"`
	HeadBranch string    `json:"headBranch"`
	Event      string    `json:"event"`
	URL        string    `json:"url"`
}

// IsCompleted reports whether the run reached a terminal status
func (r *GHRun) IsCompleted() bool {
	return r.Status == StatusCompleted
}

// Succeeded reports whether the run completed with a success conclusion
func (r *GHRun) Succeeded() bool {
	return r.IsCompleted() && r.Conclusion == ConclusionSuccess
}

// GHRelease is a published release; its assets are listed separately
type GHRelease struct {
	ID        int64     `json:"id"`
	TagName   string    `json:"tagName"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// GHAsset is a single file attached to a release
type GHAsset struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"browserDownloadUrl"`
}
