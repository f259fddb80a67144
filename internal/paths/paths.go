package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// AppName is the application name used in config paths
	AppName = "ipabuild"

	// ConfigFileName is the name of the user config file
	ConfigFileName = "config.yaml"

	// ProjectConfigFileName is the per-project config kept next to pubspec.yaml
	ProjectConfigFileName = ".ipabuild.yaml"
)

// ConfigSource indicates where a setting came from
type ConfigSource int

const (
	SourceDefault ConfigSource = iota
	SourceUserConfig
	SourceProjectConfig
	SourceEnvVar
	SourceCLIFlag
	SourceExplicitFile
)

func (s ConfigSource) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceUserConfig:
		return "user config"
	case SourceProjectConfig:
		return "project config"
	case SourceEnvVar:
		return "environment variable"
	case SourceCLIFlag:
		return "CLI flag"
	case SourceExplicitFile:
		return "--config file"
	default:
		return "unknown"
	}
}

// Paths resolves where configuration lives, following the XDG Base Directory layout
type Paths struct {
	// UserConfigDir is the user's config directory (~/.config/ipabuild)
	UserConfigDir string

	// ProjectRoot is the Flutter project being built
	ProjectRoot string

	// ProjectConfigPath is <ProjectRoot>/.ipabuild.yaml
	ProjectConfigPath string
}

func New() (*Paths, error) {
	// XDG_CONFIG_HOME or ~/.config on Unix, %AppData% on Windows
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config directory: %w", err)
	}
	return &Paths{UserConfigDir: filepath.Join(configDir, AppName)}, nil
}

// NewWithProject adds the project-specific config location
func NewWithProject(projectRoot string) (*Paths, error) {
	p, err := New()
	if err != nil {
		return nil, err
	}

	p.ProjectRoot = projectRoot
	p.ProjectConfigPath = filepath.Join(projectRoot, ProjectConfigFileName)

	return p, nil
}

// UserConfigFile returns the path to the user's main config file
func (p *Paths) UserConfigFile() string {
	return filepath.Join(p.UserConfigDir, ConfigFileName)
}

// EnsureDirs creates the user config directory with permission 0700 (XDG base directory convention)
func (p *Paths) EnsureDirs() error {
	if err := os.MkdirAll(p.UserConfigDir, 0700); err != nil {
		if os.IsPermission(err) {
			return p.formatPermissionError(p.UserConfigDir, err)
		}
		return fmt.Errorf("failed to create configuration directory %s: %w", p.UserConfigDir, err)
	}
	return nil
}

func (p *Paths) formatPermissionError(path string, originalErr error) error {
	parent := filepath.Dir(path)
	return fmt.Errorf(
		"permission denied: cannot create configuration directory %s\n\n"+
			"Possible solutions:\n"+
			"  1. Fix permissions: sudo chown -R $USER %s\n"+
			"  2. Set custom location: export XDG_CONFIG_HOME=/tmp/%s-config\n"+
			"  3. Pass a file explicitly: %s --config ./config.yaml\n\n"+
			"Original error: %v",
		path, parent, AppName, AppName, originalErr)
}

// GetConfigPaths returns existing config files in order of precedence (lowest to highest)
func (p *Paths) GetConfigPaths() []string {
	paths := []string{}

	userConfig := p.UserConfigFile()
	if _, err := os.Stat(userConfig); err == nil {
		paths = append(paths, userConfig)
	}

	if p.ProjectConfigPath != "" {
		if _, err := os.Stat(p.ProjectConfigPath); err == nil {
			paths = append(paths, p.ProjectConfigPath)
		}
	}

	return paths
}

// GetConfigSource determines which source a config path corresponds to
func (p *Paths) GetConfigSource(path string) ConfigSource {
	switch path {
	case p.UserConfigFile():
		return SourceUserConfig
	case p.ProjectConfigPath:
		return SourceProjectConfig
	default:
		return SourceExplicitFile
	}
}
