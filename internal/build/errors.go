package build

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDispatchRejected = errors.New("workflow dispatch rejected")
	ErrTimeout          = errors.New("timed out waiting for workflow run")
	ErrBuildFailed      = errors.New("workflow run failed")
	ErrNoReleases       = errors.New("no releases found")
	ErrArtifactNotFound = errors.New("artifact not found in latest release")
	ErrDownload         = errors.New("artifact download failed")
)

// DispatchError is a dispatch answered with anything but 204 No Content
type DispatchError struct {
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("%v (status %d)", ErrDispatchRejected, e.StatusCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DispatchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDispatchRejected}
	}
	return []error{ErrDispatchRejected, e.Err}
}

// RunFailedError is a run that completed with a non-success conclusion
type RunFailedError struct {
	RunID      int64
	Conclusion string
	URL        string
}

func (e *RunFailedError) Error() string {
	conclusion := e.Conclusion
	if conclusion == "" {
		conclusion = "unknown"
	}
	return fmt.Sprintf("workflow run %d failed with conclusion: %s", e.RunID, conclusion)
}

func (e *RunFailedError) Unwrap() error {
	return ErrBuildFailed
}

// TimeoutError records how far the poller got before the budget ran out
type TimeoutError struct {
	Timeout time.Duration
	State   State
	RunID   int64
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("workflow did not complete within %v (last state: %s", e.Timeout, e.State)
	if e.RunID != 0 {
		msg += fmt.Sprintf(", run %d", e.RunID)
	}
	return msg + ")"
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}
