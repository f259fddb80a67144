package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/Cloudsky01/gh-ipabuild/internal/bootstrap"
	"github.com/Cloudsky01/gh-ipabuild/internal/build"
	"github.com/Cloudsky01/gh-ipabuild/internal/config"
	"github.com/Cloudsky01/gh-ipabuild/internal/credentials"
	"github.com/Cloudsky01/gh-ipabuild/internal/pipeline"
)

var (
	bannerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
)

// UserError carries a short message and what to do about it
type UserError struct {
	Message string
	Hint    string
	Err     error
}

func (e *UserError) Error() string {
	msg := e.Message
	if e.Hint != "" {
		msg += "\n\nHint: " + e.Hint
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n\nDetails: %v", e.Err)
	}
	return msg
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// explain maps pipeline errors onto user-facing messages. Timeout and build failure stay distinct.
func explain(err error) error {
	if err == nil {
		return nil
	}

	var timeout *build.TimeoutError
	var failed *build.RunFailedError

	switch {
	case errors.Is(err, config.ErrInvalidConfig):
		return &UserError{Message: "Invalid configuration", Hint: "Run 'ipabuild --help' for the available flags, or 'ipabuild config show' to see merged settings.", Err: err}
	case errors.Is(err, credentials.ErrNoToken):
		return &UserError{Message: "GitHub token missing", Hint: "Pass --token or set " + credentials.EnvToken + ". The token needs repo and workflow scopes.", Err: err}
	case errors.Is(err, bootstrap.ErrUnsupportedPlatform), errors.Is(err, bootstrap.ErrToolMissing):
		return &UserError{Message: "Required tools are missing", Hint: "Install git and the GitHub CLI (https://cli.github.com/) manually, then rerun with --skip-dependencies.", Err: err}
	case errors.Is(err, pipeline.ErrRepositoryNotFound):
		return &UserError{Message: "Repository not found", Hint: "Use --action createrepo to create it, or pass --repo OWNER/NAME for a repository you can access.", Err: err}
	case errors.Is(err, pipeline.ErrRemoteRejected):
		return &UserError{Message: "GitHub rejected the request", Hint: "Check that the repository name is free and the token has repo scope.", Err: err}
	case errors.Is(err, build.ErrDispatchRejected):
		return &UserError{Message: "Workflow dispatch was rejected", Hint: "The token needs the workflow scope and Actions must be enabled for the repository.", Err: err}
	case errors.As(err, &timeout):
		hint := "The build may still be running on GitHub. Raise --build-timeout to wait longer."
		if timeout.RunID != 0 {
			hint += fmt.Sprintf(" Last tracked run: %d.", timeout.RunID)
		}
		return &UserError{Message: "Timed out waiting for the build", Hint: hint, Err: err}
	case errors.As(err, &failed):
		hint := "See the workflow logs above."
		if failed.URL != "" {
			hint = "See the workflow logs above or at " + failed.URL
		}
		return &UserError{Message: "The iOS build failed", Hint: hint, Err: err}
	case errors.Is(err, build.ErrNoReleases), errors.Is(err, build.ErrArtifactNotFound):
		return &UserError{Message: "Build artifact not found", Hint: "The workflow finished but did not publish a matching .ipa. Check --artifact and --release-tag.", Err: err}
	case errors.Is(err, build.ErrDownload):
		return &UserError{Message: "Artifact download failed", Err: err}
	}
	return err
}

func renderError(err error) string {
	var ue *UserError
	if !errors.As(err, &ue) {
		return errorStyle.Render("Error: ") + err.Error()
	}

	msg := errorStyle.Render("✗ " + ue.Message)
	if ue.Hint != "" {
		msg += "\n\n" + hintStyle.Render("Hint: "+ue.Hint)
	}
	if ue.Err != nil {
		msg += "\n\n" + labelStyle.Render("Details: ") + ue.Err.Error()
	}
	return msg
}

func printSummary(w io.Writer, cfg *config.Config, res *pipeline.Result) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Done"))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Repository:"), res.Repository.FullName())

	switch {
	case res.Download != nil:
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Release:   "), res.Download.Release)
		fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("✓ %s saved to %s (%d bytes)", cfg.ArtifactName, res.Download.Path, res.Download.Bytes)))
	case cfg.SkipBuild:
		fmt.Fprintln(w, successStyle.Render("✓ Project uploaded; build skipped"))
	}
}
