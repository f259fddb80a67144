package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const DefaultTimeout = 2 * time.Minute

// CommandFunc runs git with args in dir and returns combined output and exit code.
// A non-nil error means git could not be run or was killed, not that it exited non-zero.
type CommandFunc func(ctx context.Context, dir string, args ...string) (output []byte, exitCode int, err error)

// ExecCommand runs the git binary found on PATH.
func ExecCommand(ctx context.Context, dir string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return out.Bytes(), exitErr.ExitCode(), nil
		}
		return out.Bytes(), -1, err
	}
	return out.Bytes(), 0, nil
}

// CommitOutcome classifies the result of git commit
type CommitOutcome int

const (
	CommitCreated CommitOutcome = iota
	CommitNoop
	CommitFailed
)

func (o CommitOutcome) String() string {
	switch o {
	case CommitCreated:
		return "created"
	case CommitNoop:
		return "nothing to commit"
	default:
		return "failed"
	}
}

var noopMarkers = []string{
	"nothing to commit",
	"nothing added to commit",
	"no changes added to commit",
}

// ClassifyCommit maps a commit's exit code and output to an outcome
func ClassifyCommit(exitCode int, output string) CommitOutcome {
	if exitCode == 0 {
		return CommitCreated
	}
	lower := strings.ToLower(output)
	for _, marker := range noopMarkers {
		if strings.Contains(lower, marker) {
			return CommitNoop
		}
	}
	return CommitFailed
}

// CommandError is a git invocation that exited non-zero
type CommandError struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s failed (exit %d): %s", strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Output))
}

// Client drives a local working copy through the git CLI
type Client struct {
	dir     string
	timeout time.Duration
	run     CommandFunc
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCommand replaces the git runner (useful for testing).
func WithCommand(fn CommandFunc) ClientOption {
	return func(c *Client) { c.run = fn }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func NewClient(dir string, opts ...ClientOption) *Client {
	c := &Client{
		dir:     dir,
		timeout: DefaultTimeout,
		run:     ExecCommand,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) git(ctx context.Context, args ...string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("running git", "args", strings.Join(args, " "), "dir", c.dir)
	out, code, err := c.run(ctx, c.dir, args...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return string(out), code, fmt.Errorf("git %s timed out after %v", args[0], c.timeout)
		}
		return string(out), code, fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), code, nil
}

func (c *Client) mustGit(ctx context.Context, args ...string) (string, error) {
	out, code, err := c.git(ctx, args...)
	if err != nil {
		return out, err
	}
	if code != 0 {
		return out, &CommandError{Args: args, ExitCode: code, Output: out}
	}
	return out, nil
}

// IsRepository reports whether dir already holds a .git directory
func (c *Client) IsRepository() bool {
	info, err := os.Stat(filepath.Join(c.dir, ".git"))
	return err == nil && info.IsDir()
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.mustGit(ctx, "init")
	return err
}

// Remotes lists configured remote names
func (c *Client) Remotes(ctx context.Context) ([]string, error) {
	out, err := c.mustGit(ctx, "remote")
	if err != nil {
		return nil, err
	}
	var remotes []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			remotes = append(remotes, name)
		}
	}
	return remotes, nil
}

func (c *Client) AddRemote(ctx context.Context, name, url string) error {
	_, err := c.mustGit(ctx, "remote", "add", name, url)
	return err
}

// Add stages paths; no paths stages the whole tree
func (c *Client) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	_, err := c.mustGit(ctx, append([]string{"add", "--"}, paths...)...)
	return err
}

// Commit records staged changes. An empty index is reported as CommitNoop, not an error.
func (c *Client) Commit(ctx context.Context, message string) (CommitOutcome, error) {
	args := []string{"commit", "-m", message}
	out, code, err := c.git(ctx, args...)
	if err != nil {
		return CommitFailed, err
	}

	outcome := ClassifyCommit(code, out)
	switch outcome {
	case CommitFailed:
		return outcome, &CommandError{Args: args, ExitCode: code, Output: out}
	case CommitNoop:
		c.logger.Info("nothing to commit, working tree clean")
	}
	return outcome, nil
}

// SetBranch renames the current branch, forcing over an existing one
func (c *Client) SetBranch(ctx context.Context, name string) error {
	_, err := c.mustGit(ctx, "branch", "-M", name)
	return err
}

// PushOptions controls git push
type PushOptions struct {
	Remote      string
	Branch      string
	SetUpstream bool
	Force       bool
}

func (c *Client) Push(ctx context.Context, opts PushOptions) error {
	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}
	args := []string{"push"}
	if opts.SetUpstream {
		args = append(args, "-u")
	}
	if opts.Force {
		args = append(args, "--force")
	}
	args = append(args, remote)
	if opts.Branch != "" {
		args = append(args, opts.Branch)
	}
	_, err := c.mustGit(ctx, args...)
	return err
}
