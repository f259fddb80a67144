package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Cloudsky01/gh-ipabuild/internal/ascii"
	"github.com/Cloudsky01/gh-ipabuild/internal/bootstrap"
	"github.com/Cloudsky01/gh-ipabuild/internal/config"
	"github.com/Cloudsky01/gh-ipabuild/internal/credentials"
	"github.com/Cloudsky01/gh-ipabuild/internal/git"
	"github.com/Cloudsky01/gh-ipabuild/internal/github"
	"github.com/Cloudsky01/gh-ipabuild/internal/paths"
	"github.com/Cloudsky01/gh-ipabuild/internal/pipeline"
	"github.com/Cloudsky01/gh-ipabuild/internal/ui"
	"github.com/Cloudsky01/gh-ipabuild/internal/workflow"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "ipabuild",
		Short: "Build a Flutter iOS app on GitHub Actions and download the .ipa",
		Long: `ipabuild pushes a Flutter project to GitHub, installs an iOS build
workflow, runs it on a macOS runner and downloads the resulting .ipa.

Requirements:
  - git and the GitHub CLI (gh); installed automatically unless --skip-dependencies
  - A GitHub token with repo and workflow scopes (--token, $GITHUB_TOKEN or prompt)

Get started:
  ipabuild -a createrepo -r my_app      # New repository under your account
  ipabuild -a repo -r owner/my_app      # Existing repository`,
		RunE:          runBuild,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a config file (replaces user and project config)")
	registerBuildFlags(rootCmd.PersistentFlags())

	rootCmd.SetVersionTemplate(fmt.Sprintf("ipabuild {{.Version}} (commit %s, built %s)\n", commit, date))
}

// registerBuildFlags declares every flag config.Load binds
func registerBuildFlags(f *pflag.FlagSet) {
	f.StringP("action", "a", "", "createrepo to create a new repository, repo to use an existing one")
	f.StringP("repo", "r", "", "Repository NAME, or OWNER/NAME for an existing repository")
	f.StringP("token", "t", "", "GitHub token (default $"+credentials.EnvToken+", else prompt)")
	f.String("project-dir", ".", "Flutter project directory")
	f.String("artifact", config.DefaultArtifactName, "File name of the .ipa the workflow produces")
	f.String("build-dir", config.DefaultBuildDir, "Directory the .ipa is downloaded to")
	f.Int("poll-interval", config.DefaultPollInterval, "Seconds between build status checks")
	f.Int("build-timeout", config.DefaultBuildTimeout, "Seconds to wait for the build before giving up")
	f.Int("settle-delay", config.DefaultSettleDelay, "Seconds to wait after pushing the workflow")
	f.Int("request-timeout", config.DefaultRequestTimeout, "Seconds allowed for each GitHub API call")
	f.String("branch", config.DefaultBranch, "Branch to push and build")
	f.String("release-tag", workflow.DefaultReleaseTag, "Release tag the workflow uploads to")
	f.String("workflow-file", workflow.DefaultFileName, "Workflow file name under .github/workflows")
	f.String("commit-message", config.DefaultCommitMessage, "Message for the project upload commit")
	f.Bool("skip-dependencies", false, "Do not check or install git and gh")
	f.Bool("skip-build", false, "Stop after uploading the project")
	f.Bool("skip-upload", false, "Do not commit and push the project")
	f.Bool("force-push", false, "Force-push the project branch")
	f.BoolP("verbose", "v", false, "Debug logging and workflow logs even on success")
}

// loadConfig resolves the project directory first so its .ipabuild.yaml can take part
func loadConfig(flags *pflag.FlagSet, explicit string) (*config.Config, *paths.Paths, error) {
	projectDir, _ := flags.GetString("project-dir")
	if projectDir == "" {
		projectDir = "."
	}
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	p, err := paths.NewWithProject(abs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize paths: %w", err)
	}

	cfg, err := config.Load(config.LoadOptions{ExplicitPath: explicit, Paths: p, Flags: flags})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !filepath.IsAbs(cfg.ProjectDir) {
		cfg.ProjectDir = abs
	}
	return cfg, p, nil
}

// newLogger: Debug when verbose, Warn under a spinner so log lines do not tear it, Info otherwise
func newLogger(w io.Writer, verbose, spinner bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case spinner:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg, _, err := loadConfig(cmd.Flags(), configPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, bannerStyle.Render(ascii.GetASCIIArt()))

	if err := cfg.Validate(); err != nil {
		return explain(err)
	}

	interactive := ui.IsTTY()
	useSpinner := interactive && !cfg.Verbose
	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose, useSpinner)
	slog.SetDefault(logger)

	flagToken, _ := cmd.Flags().GetString("token")
	token, err := credentials.Resolver{
		LookupEnv:   os.LookupEnv,
		Prompt:      credentials.HuhPrompt,
		Interactive: interactive,
	}.Resolve(flagToken)
	if err != nil {
		return explain(err)
	}
	cfg.Token = token.Value
	logger.Debug("token resolved", "source", string(token.Source))

	p := pipeline.New(cfg, pipeline.Deps{
		API: github.NewClientWithTimeout(cfg.Token, cfg.RequestTimeoutDuration()),
		SCM: git.NewClient(cfg.ProjectDir, git.WithLogger(logger)),
		Bootstrap: bootstrap.New(bootstrap.Options{
			Platform:    bootstrap.PlatformFor(runtime.GOOS),
			Interactive: interactive,
			Logger:      logger,
		}),
		Logger:    logger,
		LogOutput: out,
		Step:      ui.NewStep(out, useSpinner),
	})

	res, err := p.Run(ctx)
	if err != nil {
		return explain(err)
	}

	printSummary(out, cfg, res)
	return nil
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}
