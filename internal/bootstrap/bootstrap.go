// Package bootstrap makes sure git and the GitHub CLI are available before any
// project work starts, installing them with the platform's package manager.
package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

var (
	ErrToolMissing         = errors.New("required tool is not installed")
	ErrUnsupportedPlatform = errors.New("automatic installation is not supported on this platform")
)

type Platform int

const (
	PlatformUnsupported Platform = iota
	PlatformWindows
	PlatformLinux
	PlatformDarwin
)

func (p Platform) String() string {
	switch p {
	case PlatformWindows:
		return "windows"
	case PlatformLinux:
		return "linux"
	case PlatformDarwin:
		return "darwin"
	default:
		return "unsupported"
	}
}

// PlatformFor maps a GOOS value to a Platform
func PlatformFor(goos string) Platform {
	switch goos {
	case "windows":
		return PlatformWindows
	case "linux":
		return PlatformLinux
	case "darwin":
		return PlatformDarwin
	default:
		return PlatformUnsupported
	}
}

// PackageManager installs packages on one platform
type PackageManager struct {
	Name string
	// Probe verifies the manager itself is present
	Probe []string
	// Prepare runs once before the first install
	Prepare []string
	// Install is the command prefix; the package name is appended
	Install []string
	Hint    string
}

var packageManagers = map[Platform]PackageManager{
	PlatformWindows: {
		Name:    "Chocolatey",
		Probe:   []string{"choco", "-v"},
		Install: []string{"choco", "install", "-y"},
		Hint:    "Visit https://chocolatey.org/install for installation instructions.",
	},
	PlatformLinux: {
		Name:    "apt",
		Probe:   []string{"apt-get", "--version"},
		Prepare: []string{"sudo", "apt-get", "update"},
		Install: []string{"sudo", "apt-get", "install", "-y"},
		Hint:    "Install the package manually with your distribution's tools.",
	},
	PlatformDarwin: {
		Name:    "Homebrew",
		Probe:   []string{"brew", "--version"},
		Install: []string{"brew", "install"},
		Hint:    "Visit https://brew.sh/ for installation instructions.",
	},
}

// ManagerFor returns the package manager table entry for p
func ManagerFor(p Platform) (PackageManager, bool) {
	m, ok := packageManagers[p]
	return m, ok
}

// Tool is a binary the build needs on PATH
type Tool struct {
	Binary  string
	Package string
	Display string
}

var RequiredTools = []Tool{
	{Binary: "git", Package: "git", Display: "Git"},
	{Binary: "gh", Package: "gh", Display: "GitHub CLI (gh)"},
}

const notLoggedInMarker = "You are not logged into any GitHub hosts"

// Runner executes commands. Output captures, Attach hands the terminal to the command.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	Attach(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

func (execRunner) Attach(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

type Options struct {
	Platform Platform
	LookPath func(string) (string, error)
	Runner   Runner
	// Interactive allows running `gh auth login` when the CLI is not authenticated
	Interactive bool
	Logger      *slog.Logger
}

type Bootstrapper struct {
	opts     Options
	prepared bool
}

func New(opts Options) *Bootstrapper {
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.Runner == nil {
		opts.Runner = execRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bootstrapper{opts: opts}
}

// Ensure installs every missing tool, then checks gh authentication
func (b *Bootstrapper) Ensure(ctx context.Context) error {
	for _, tool := range RequiredTools {
		if err := b.ensureTool(ctx, tool); err != nil {
			return err
		}
	}
	return b.ensureGHAuth(ctx)
}

func (b *Bootstrapper) ensureTool(ctx context.Context, tool Tool) error {
	if _, err := b.opts.LookPath(tool.Binary); err == nil {
		b.opts.Logger.Info("tool found", "tool", tool.Display)
		return nil
	}

	b.opts.Logger.Warn("tool not installed", "tool", tool.Display)
	if err := b.install(ctx, tool); err != nil {
		return err
	}

	if _, err := b.opts.LookPath(tool.Binary); err != nil {
		return fmt.Errorf("%w: %s still not on PATH after install", ErrToolMissing, tool.Display)
	}
	return nil
}

func (b *Bootstrapper) install(ctx context.Context, tool Tool) error {
	pm, ok := ManagerFor(b.opts.Platform)
	if !ok {
		return fmt.Errorf("%w (%s): install %s manually", ErrUnsupportedPlatform, b.opts.Platform, tool.Display)
	}

	if _, err := b.opts.Runner.Output(ctx, pm.Probe[0], pm.Probe[1:]...); err != nil {
		return fmt.Errorf("%w: %s needs %s, which is not installed. %s", ErrToolMissing, tool.Display, pm.Name, pm.Hint)
	}

	if len(pm.Prepare) > 0 && !b.prepared {
		if err := b.opts.Runner.Attach(ctx, pm.Prepare[0], pm.Prepare[1:]...); err != nil {
			return fmt.Errorf("%w: %s failed: %w", ErrToolMissing, strings.Join(pm.Prepare, " "), err)
		}
		b.prepared = true
	}

	args := append(append([]string{}, pm.Install[1:]...), tool.Package)
	b.opts.Logger.Info("installing", "tool", tool.Display, "manager", pm.Name)
	if err := b.opts.Runner.Attach(ctx, pm.Install[0], args...); err != nil {
		return fmt.Errorf("%w: installing %s with %s failed: %w. Please install %s manually", ErrToolMissing, tool.Display, pm.Name, err, tool.Package)
	}
	return nil
}

func (b *Bootstrapper) ensureGHAuth(ctx context.Context) error {
	// gh auth status exits non-zero when logged out, so inspect the output rather than the error
	out, _ := b.opts.Runner.Output(ctx, "gh", "auth", "status")
	if !strings.Contains(string(out), notLoggedInMarker) {
		return nil
	}

	if !b.opts.Interactive {
		b.opts.Logger.Warn("GitHub CLI is not authenticated; run `gh auth login`")
		return nil
	}

	b.opts.Logger.Info("GitHub CLI is not authenticated, starting login")
	if err := b.opts.Runner.Attach(ctx, "gh", "auth", "login"); err != nil {
		return fmt.Errorf("gh auth login failed: %w", err)
	}
	if err := b.opts.Runner.Attach(ctx, "gh", "auth", "setup-git"); err != nil {
		return fmt.Errorf("gh auth setup-git failed: %w", err)
	}
	return nil
}
