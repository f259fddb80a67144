// Package pipeline drives one invocation: provision the repository, upload the
// project, then install the workflow, dispatch a build, wait for it and fetch the .ipa.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Cloudsky01/gh-ipabuild/internal/build"
	"github.com/Cloudsky01/gh-ipabuild/internal/clock"
	"github.com/Cloudsky01/gh-ipabuild/internal/config"
	"github.com/Cloudsky01/gh-ipabuild/internal/credentials"
	"github.com/Cloudsky01/gh-ipabuild/internal/git"
	"github.com/Cloudsky01/gh-ipabuild/internal/ui"
	"github.com/Cloudsky01/gh-ipabuild/internal/workflow"
	"github.com/Cloudsky01/gh-ipabuild/pkg/models"
)

const (
	remoteName = "origin"

	// clockSkew widens the run filter so a run stamped slightly before our dispatch still counts
	clockSkew = time.Minute
)

var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrRemoteRejected     = errors.New("GitHub rejected the request")
)

// HostingAPI is everything the pipeline asks of GitHub
type HostingAPI interface {
	GetAuthenticatedUser(ctx context.Context) (string, error)
	CreateRepository(ctx context.Context, name string) (*models.Repository, error)
	GetRepository(ctx context.Context, owner, name string) (*models.Repository, error)
	SetActionsPermissions(ctx context.Context, repo models.Repository) error
	build.DispatchAPI
	build.StatusAPI
	build.ReleaseAPI
	build.LogsAPI
}

// SourceControl is the local git repository of the project
type SourceControl interface {
	workflow.SourceControl
	IsRepository() bool
	Init(ctx context.Context) error
	Remotes(ctx context.Context) ([]string, error)
	AddRemote(ctx context.Context, name, url string) error
	SetBranch(ctx context.Context, name string) error
}

type Bootstrapper interface {
	Ensure(ctx context.Context) error
}

type Deps struct {
	API       HostingAPI
	SCM       SourceControl
	Bootstrap Bootstrapper
	Clock     clock.Clock
	Logger    *slog.Logger
	// LogOutput receives fetched workflow logs
	LogOutput io.Writer
	// Step wraps each stage with progress output; nil runs stages bare
	Step         ui.Step
	OnTransition func(from, to build.State, run *models.GHRun)
}

// Result is what a run got done, filled in as far as it progressed
type Result struct {
	Repository models.Repository
	Created    bool
	Uploaded   bool
	Workflow   *workflow.InstallResult
	Outcome    *build.Outcome
	Download   *build.Download
	// LogsFetched is true when run logs were printed
	LogsFetched bool
}

type Pipeline struct {
	cfg  *config.Config
	deps Deps
}

func New(cfg *config.Config, deps Deps) *Pipeline {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.LogOutput == nil {
		deps.LogOutput = io.Discard
	}
	if deps.Step == nil {
		deps.Step = func(ctx context.Context, _ string, fn func(context.Context) error) error {
			return fn(ctx)
		}
	}
	return &Pipeline{cfg: cfg, deps: deps}
}

// Run executes every stage the config enables. The result is non-nil even on error.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	if p.cfg.Token == "" {
		return res, credentials.ErrNoToken
	}

	if !p.cfg.SkipDependencies && p.deps.Bootstrap != nil {
		if err := p.deps.Step(ctx, "Checking git and GitHub CLI", p.deps.Bootstrap.Ensure); err != nil {
			return res, err
		}
	}

	if err := p.provision(ctx, res); err != nil {
		return res, err
	}

	if !p.cfg.SkipUpload {
		if err := p.deps.Step(ctx, "Uploading project to "+res.Repository.FullName(), func(ctx context.Context) error {
			return p.upload(ctx, res.Repository)
		}); err != nil {
			return res, err
		}
		res.Uploaded = true
	}

	if p.cfg.SkipBuild {
		p.deps.Logger.Info("skipping build and download")
		return res, nil
	}

	return res, p.build(ctx, res)
}

func (p *Pipeline) provision(ctx context.Context, res *Result) error {
	owner, name, err := git.ParseRepository(p.cfg.Repository)
	if err != nil {
		return err
	}

	if p.cfg.CreatesRepository() {
		if owner != "" {
			return fmt.Errorf("%w: %s creates %s under the authenticated user; pass the bare name", config.ErrInvalidConfig, config.ActionCreateRepo, p.cfg.Repository)
		}
		return p.deps.Step(ctx, "Creating repository "+name, func(ctx context.Context) error {
			repo, err := p.deps.API.CreateRepository(ctx, name)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrRemoteRejected, err)
			}
			if err := p.deps.API.SetActionsPermissions(ctx, *repo); err != nil {
				return fmt.Errorf("%w: %w", ErrRemoteRejected, err)
			}
			res.Repository = *repo
			res.Created = true
			p.deps.Logger.Info("repository created", "repo", repo.FullName())
			return nil
		})
	}

	if owner == "" {
		login, err := p.deps.API.GetAuthenticatedUser(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve repository owner: %w", err)
		}
		owner = login
	}

	repo, err := p.deps.API.GetRepository(ctx, owner, name)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ErrRepositoryNotFound, owner, name, err)
	}
	res.Repository = *repo
	p.deps.Logger.Info("using existing repository", "repo", repo.FullName())
	return nil
}

func (p *Pipeline) upload(ctx context.Context, repo models.Repository) error {
	scm := p.deps.SCM

	if !scm.IsRepository() {
		p.deps.Logger.Info("initializing git repository")
		if err := scm.Init(ctx); err != nil {
			return err
		}
	}

	remotes, err := scm.Remotes(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(remotes, remoteName) {
		url := git.RemoteURL(repo.Owner, repo.Name)
		p.deps.Logger.Info("adding remote", "name", remoteName, "url", url)
		if err := scm.AddRemote(ctx, remoteName, url); err != nil {
			return err
		}
	}

	if err := scm.Add(ctx, p.uploadPathspec()...); err != nil {
		return err
	}
	outcome, err := scm.Commit(ctx, p.cfg.CommitMessage)
	if err != nil {
		return err
	}
	p.deps.Logger.Info("project committed", "result", outcome.String())

	if err := scm.SetBranch(ctx, p.cfg.Branch); err != nil {
		return err
	}
	return scm.Push(ctx, git.PushOptions{
		Remote:      remoteName,
		Branch:      p.cfg.Branch,
		SetUpstream: true,
		Force:       p.cfg.ForcePush,
	})
}

func (p *Pipeline) build(ctx context.Context, res *Result) error {
	target := models.RunTarget{
		Repository: res.Repository,
		Branch:     p.cfg.Branch,
		Workflow:   p.cfg.WorkflowFile,
	}

	installer := workflow.NewInstaller(p.deps.SCM, workflow.InstallerOptions{
		Dir:         p.cfg.ProjectDir,
		FileName:    p.cfg.WorkflowFile,
		Branch:      p.cfg.Branch,
		SettleDelay: p.cfg.SettleDelayDuration(),
		Clock:       p.deps.Clock,
		Logger:      p.deps.Logger,
	})
	if err := p.deps.Step(ctx, "Installing build workflow", func(ctx context.Context) error {
		installed, err := installer.Install(ctx, workflow.Params{
			ArtifactName: p.cfg.ArtifactName,
			ReleaseTag:   p.cfg.ReleaseTag,
		})
		res.Workflow = installed
		return err
	}); err != nil {
		return err
	}

	dispatchedAt := p.deps.Clock.Now()
	dispatcher := build.NewDispatcher(p.deps.API, p.deps.Logger)
	if err := p.deps.Step(ctx, "Dispatching build", func(ctx context.Context) error {
		return dispatcher.Dispatch(ctx, target)
	}); err != nil {
		return err
	}

	poller := build.NewPoller(p.deps.API, build.PollerOptions{
		Interval:     p.cfg.PollIntervalDuration(),
		Timeout:      p.cfg.BuildTimeoutDuration(),
		NotBefore:    dispatchedAt.Add(-clockSkew),
		Clock:        p.deps.Clock,
		Logger:       p.deps.Logger,
		OnTransition: p.deps.OnTransition,
	})
	var waitErr error
	_ = p.deps.Step(ctx, "Waiting for the build to finish", func(ctx context.Context) error {
		res.Outcome, waitErr = poller.Wait(ctx, target)
		return waitErr
	})

	if p.wantLogs(res.Outcome, waitErr) {
		fetcher := build.NewLogFetcher(p.deps.API, p.deps.LogOutput, p.deps.Logger)
		// a log failure is reported by the fetcher and never replaces waitErr
		if err := fetcher.Fetch(ctx, res.Repository, res.Outcome.Run.DatabaseID); err == nil {
			res.LogsFetched = true
		}
	}
	if waitErr != nil {
		return waitErr
	}

	retriever := build.NewRetriever(p.deps.API, p.deps.Logger)
	return p.deps.Step(ctx, "Downloading "+p.cfg.ArtifactName, func(ctx context.Context) error {
		dl, err := retriever.Retrieve(ctx, res.Repository, p.cfg.ArtifactName, p.buildDir())
		res.Download = dl
		return err
	})
}

// wantLogs: always after a failed run, and in verbose mode whenever a run was tracked
func (p *Pipeline) wantLogs(out *build.Outcome, waitErr error) bool {
	if out == nil || out.Run == nil {
		return false
	}
	if errors.Is(waitErr, build.ErrBuildFailed) {
		return true
	}
	return p.cfg.Verbose && (waitErr == nil || errors.Is(waitErr, build.ErrTimeout))
}

// uploadPathspec stages the project but keeps downloaded artifacts out of the commit
func (p *Pipeline) uploadPathspec() []string {
	rel, err := filepath.Rel(p.cfg.ProjectDir, p.buildDir())
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return []string{"."}
	}
	return []string{".", ":(exclude)" + filepath.ToSlash(rel)}
}

func (p *Pipeline) buildDir() string {
	if filepath.IsAbs(p.cfg.BuildDir) {
		return p.cfg.BuildDir
	}
	return filepath.Join(p.cfg.ProjectDir, p.cfg.BuildDir)
}
