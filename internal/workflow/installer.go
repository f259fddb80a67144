package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Cloudsky01/gh-ipabuild/internal/clock"
	"github.com/Cloudsky01/gh-ipabuild/internal/git"
)

// DefaultSettleDelay gives GitHub time to index a freshly pushed workflow
const DefaultSettleDelay = 30 * time.Second

const commitMessage = "Add GitHub Actions workflow for iOS build"

// SourceControl is the subset of the git client the installer needs
type SourceControl interface {
	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string) (git.CommitOutcome, error)
	Push(ctx context.Context, opts git.PushOptions) error
}

type InstallerOptions struct {
	// Dir is the project root the workflow path is resolved against
	Dir         string
	FileName    string
	Branch      string
	SettleDelay time.Duration
	Clock       clock.Clock
	Logger      *slog.Logger
}

type Installer struct {
	scm  SourceControl
	opts InstallerOptions
}

// InstallResult describes what Install changed
type InstallResult struct {
	Path    string
	Outcome git.CommitOutcome
}

func NewInstaller(scm SourceControl, opts InstallerOptions) *Installer {
	if opts.FileName == "" {
		opts.FileName = DefaultFileName
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Installer{scm: scm, opts: opts}
}

// Install overwrites the workflow file, commits and pushes it, then waits out the settle delay
func (i *Installer) Install(ctx context.Context, p Params) (*InstallResult, error) {
	content, err := Render(p)
	if err != nil {
		return nil, err
	}

	rel := Path(i.opts.FileName)
	full := filepath.Join(i.opts.Dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, fmt.Errorf("failed to create workflow directory: %w", err)
	}
	if err := os.WriteFile(full, content, 0644); err != nil {
		return nil, fmt.Errorf("failed to write workflow file: %w", err)
	}
	i.opts.Logger.Info("workflow written", "path", rel, "artifact", p.ArtifactName)

	if err := i.scm.Add(ctx, rel); err != nil {
		return nil, fmt.Errorf("failed to stage workflow: %w", err)
	}

	outcome, err := i.scm.Commit(ctx, commitMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to commit workflow: %w", err)
	}

	if err := i.scm.Push(ctx, git.PushOptions{Branch: i.opts.Branch}); err != nil {
		return nil, fmt.Errorf("failed to push workflow: %w", err)
	}
	i.opts.Logger.Info("workflow pushed", "branch", i.opts.Branch, "commit", outcome.String())

	if i.opts.SettleDelay > 0 {
		i.opts.Logger.Info("waiting for GitHub to register the workflow", "delay", i.opts.SettleDelay)
		if err := i.opts.Clock.Sleep(ctx, i.opts.SettleDelay); err != nil {
			return nil, err
		}
	}

	return &InstallResult{Path: rel, Outcome: outcome}, nil
}
