package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Cloudsky01/gh-ipabuild/internal/git"
	"github.com/Cloudsky01/gh-ipabuild/internal/paths"
	"github.com/Cloudsky01/gh-ipabuild/internal/workflow"
)

const (
	ActionCreateRepo = "createrepo"
	ActionRepo       = "repo"

	EnvPrefix = "IPABUILD"

	DefaultArtifactName   = "FlutterIpaExport.ipa"
	DefaultBuildDir       = "builds"
	DefaultBranch         = "main"
	DefaultCommitMessage  = "Initial commit"
	DefaultPollInterval   = 30
	DefaultBuildTimeout   = 1800
	DefaultSettleDelay    = 30
	DefaultRequestTimeout = 30
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is built once per invocation and handed to every collaborator.
// Durations are whole seconds so they read naturally in YAML and env vars.
type Config struct {
	Action         string `yaml:"action,omitempty"`
	Repository     string `yaml:"repository,omitempty"`
	Token          string `yaml:"-" mapstructure:"-"`
	ProjectDir     string `yaml:"projectDir,omitempty"`
	ArtifactName   string `yaml:"artifactName"`
	BuildDir       string `yaml:"buildDir"`
	PollInterval   int    `yaml:"pollInterval"`
	BuildTimeout   int    `yaml:"buildTimeout"`
	SettleDelay    int    `yaml:"settleDelay"`
	RequestTimeout int    `yaml:"requestTimeout"`
	Branch         string `yaml:"branch"`
	ReleaseTag     string `yaml:"releaseTag"`
	WorkflowFile   string `yaml:"workflowFile"`
	CommitMessage  string `yaml:"commitMessage"`

	SkipDependencies bool `yaml:"skipDependencies,omitempty"`
	SkipBuild        bool `yaml:"skipBuild,omitempty"`
	SkipUpload       bool `yaml:"skipUpload,omitempty"`
	ForcePush        bool `yaml:"forcePush,omitempty"`
	Verbose          bool `yaml:"verbose,omitempty"`
}

// Default returns the configuration used when no source sets a value
func Default() *Config {
	return &Config{
		ProjectDir:     ".",
		ArtifactName:   DefaultArtifactName,
		BuildDir:       DefaultBuildDir,
		PollInterval:   DefaultPollInterval,
		BuildTimeout:   DefaultBuildTimeout,
		SettleDelay:    DefaultSettleDelay,
		RequestTimeout: DefaultRequestTimeout,
		Branch:         DefaultBranch,
		ReleaseTag:     workflow.DefaultReleaseTag,
		WorkflowFile:   workflow.DefaultFileName,
		CommitMessage:  DefaultCommitMessage,
	}
}

// flagKeys maps CLI flag names to config keys
var flagKeys = map[string]string{
	"action":            "action",
	"repo":              "repository",
	"project-dir":       "projectDir",
	"artifact":          "artifactName",
	"build-dir":         "buildDir",
	"poll-interval":     "pollInterval",
	"build-timeout":     "buildTimeout",
	"settle-delay":      "settleDelay",
	"request-timeout":   "requestTimeout",
	"branch":            "branch",
	"release-tag":       "releaseTag",
	"workflow-file":     "workflowFile",
	"commit-message":    "commitMessage",
	"skip-dependencies": "skipDependencies",
	"skip-build":        "skipBuild",
	"skip-upload":       "skipUpload",
	"force-push":        "forcePush",
	"verbose":           "verbose",
}

// LoadOptions selects the sources Load merges
type LoadOptions struct {
	// ExplicitPath replaces the user and project files when set
	ExplicitPath string
	Paths        *paths.Paths
	Flags        *pflag.FlagSet
}

// Load merges defaults, config files, IPABUILD_* env vars and changed flags, lowest first.
// It does not validate.
func Load(opts LoadOptions) (*Config, error) {
	cfg, _, err := LoadWithViper(opts)
	return cfg, err
}

// LoadWithViper also returns the viper instance so callers can report where a value came from
func LoadWithViper(opts LoadOptions) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	files, err := configFiles(opts)
	if err != nil {
		return nil, nil, err
	}
	for _, f := range files {
		v.SetConfigFile(f)
		if err := v.MergeInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file %s: %w", f, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for flag, key := range flagKeys {
			f := opts.Flags.Lookup(flag)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, nil, fmt.Errorf("failed to bind flag --%s: %w", flag, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// the token only comes from --token, GITHUB_TOKEN or the prompt
	config.Token = ""

	return &config, v, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("action", "")
	v.SetDefault("repository", "")
	v.SetDefault("projectDir", d.ProjectDir)
	v.SetDefault("artifactName", d.ArtifactName)
	v.SetDefault("buildDir", d.BuildDir)
	v.SetDefault("pollInterval", d.PollInterval)
	v.SetDefault("buildTimeout", d.BuildTimeout)
	v.SetDefault("settleDelay", d.SettleDelay)
	v.SetDefault("requestTimeout", d.RequestTimeout)
	v.SetDefault("branch", d.Branch)
	v.SetDefault("releaseTag", d.ReleaseTag)
	v.SetDefault("workflowFile", d.WorkflowFile)
	v.SetDefault("commitMessage", d.CommitMessage)
	v.SetDefault("skipDependencies", false)
	v.SetDefault("skipBuild", false)
	v.SetDefault("skipUpload", false)
	v.SetDefault("forcePush", false)
	v.SetDefault("verbose", false)
}

func configFiles(opts LoadOptions) ([]string, error) {
	if opts.ExplicitPath != "" {
		if _, err := os.Stat(opts.ExplicitPath); err != nil {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return []string{opts.ExplicitPath}, nil
	}
	if opts.Paths == nil {
		return nil, nil
	}
	return opts.Paths.GetConfigPaths(), nil
}

// Source reports which layer supplied key
func Source(key string, flags *pflag.FlagSet, files []string, p *paths.Paths) paths.ConfigSource {
	for flag, k := range flagKeys {
		if k != key || flags == nil {
			continue
		}
		if f := flags.Lookup(flag); f != nil && f.Changed {
			return paths.SourceCLIFlag
		}
	}
	if _, ok := os.LookupEnv(EnvKey(key)); ok {
		return paths.SourceEnvVar
	}
	source := paths.SourceDefault
	for _, f := range files {
		fv := viper.New()
		fv.SetConfigFile(f)
		if err := fv.ReadInConfig(); err == nil && fv.IsSet(key) {
			if p != nil {
				source = p.GetConfigSource(f)
			} else {
				source = paths.SourceExplicitFile
			}
		}
	}
	return source
}

// EnvKey is the environment variable viper consults for key
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

func (c *Config) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

func (c *Config) BuildTimeoutDuration() time.Duration {
	return time.Duration(c.BuildTimeout) * time.Second
}

func (c *Config) SettleDelayDuration() time.Duration {
	return time.Duration(c.SettleDelay) * time.Second
}

func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// CreatesRepository reports whether the invocation provisions a new repository
func (c *Config) CreatesRepository() bool {
	return c.Action == ActionCreateRepo
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# ipabuild configuration
# Learn more: https://github.com/Cloudsky01/gh-ipabuild
#
# Every key can also be set with an IPABUILD_<KEY> environment variable
# or the matching command-line flag. The GitHub token is never written here;
# set GITHUB_TOKEN or pass --token.
#
# - artifactName: file name of the .ipa the workflow packages and uploads
# - buildDir: local directory the artifact is downloaded to
# - pollInterval / buildTimeout / settleDelay / requestTimeout: seconds

`
	fullContent := header + string(data)

	if err := os.WriteFile(path, []byte(fullContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	switch c.Action {
	case ActionCreateRepo, ActionRepo:
	case "":
		return fmt.Errorf("%w: --action is required (%s or %s)", ErrInvalidConfig, ActionCreateRepo, ActionRepo)
	default:
		return fmt.Errorf("%w: unknown action %q (want %s or %s)", ErrInvalidConfig, c.Action, ActionCreateRepo, ActionRepo)
	}

	if c.Repository == "" {
		return fmt.Errorf("%w: --repo is required", ErrInvalidConfig)
	}
	owner, _, err := git.ParseRepository(c.Repository)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if owner != "" && c.CreatesRepository() {
		return fmt.Errorf("%w: %s always creates the repository under the authenticated user; pass a bare name instead of %q", ErrInvalidConfig, ActionCreateRepo, c.Repository)
	}

	if err := workflow.ValidateArtifactName(c.ArtifactName); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	checks := []struct {
		name  string
		value int
	}{
		{"pollInterval", c.PollInterval},
		{"buildTimeout", c.BuildTimeout},
		{"requestTimeout", c.RequestTimeout},
	}
	for _, check := range checks {
		if check.value <= 0 {
			return fmt.Errorf("%w: %s must be a positive number of seconds, got %d", ErrInvalidConfig, check.name, check.value)
		}
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("%w: settleDelay cannot be negative", ErrInvalidConfig)
	}

	if c.BuildDir == "" {
		return fmt.Errorf("%w: buildDir cannot be empty", ErrInvalidConfig)
	}
	if c.Branch == "" {
		return fmt.Errorf("%w: branch cannot be empty", ErrInvalidConfig)
	}
	if c.WorkflowFile == "" || strings.ContainsAny(c.WorkflowFile, `/\`) {
		return fmt.Errorf("%w: workflowFile must be a bare file name, got %q", ErrInvalidConfig, c.WorkflowFile)
	}

	return nil
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	out := *c
	if out.Token != "" {
		out.Token = "********"
	}
	return &out
}
