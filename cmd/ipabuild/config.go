package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Cloudsky01/gh-ipabuild/internal/config"
	"github.com/Cloudsky01/gh-ipabuild/internal/git"
	"github.com/Cloudsky01/gh-ipabuild/internal/paths"
)

var (
	force bool

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage ipabuild configuration",
		Long: `Manage ipabuild configuration files.

Configuration Locations:
  User config:     ~/.config/ipabuild/config.yaml (user-specific settings)
  Project config:  <project>/.ipabuild.yaml (per-project settings)

Configuration Precedence (lowest to highest):
  1. Built-in defaults
  2. User config
  3. Project config
  4. Environment variables (IPABUILD_*)
  5. CLI flags

--config FILE replaces both files. The GitHub token is never read from or
written to a config file.`,
	}

	configPathCmd = &cobra.Command{
		Use:   "path",
		Short: "Show configuration file locations",
		Long:  `Display the paths to all configuration files and their existence status.`,
		RunE:  runConfigPath,
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Display merged configuration",
		Long:  `Show the effective configuration after merging all sources, and where each value came from.`,
		RunE:  runConfigShow,
	}

	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Create the user configuration file",
		Long: `Write a user configuration file with the default settings. If the project
directory is a git repository with a GitHub remote, it is used as the repository.`,
		RunE: runConfigInit,
	}

	configEditCmd = &cobra.Command{
		Use:   "edit",
		Short: "Edit user configuration file",
		Long:  `Open the user configuration file in $EDITOR (or vim/nano if not set).`,
		RunE:  runConfigEdit,
	}
)

func init() {
	configInitCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing user configuration file")

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configEditCmd)
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	_, p, err := loadConfig(cmd.Flags(), configPath)
	if err != nil {
		return err
	}
	printConfigPaths(cmd.OutOrStdout(), p)
	return nil
}

func printConfigPaths(w io.Writer, p *paths.Paths) {
	fmt.Fprintln(w, "Configuration File Locations")
	fmt.Fprintln(w, "════════════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	userConfigPath := p.UserConfigFile()
	fmt.Fprintf(w, "User Config:        %s %s\n", userConfigPath, existsIndicator(fileExists(userConfigPath)))

	if p.ProjectRoot != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Project Root:       %s\n", p.ProjectRoot)
		fmt.Fprintf(w, "Project Config:     %s %s\n", p.ProjectConfigPath, existsIndicator(fileExists(p.ProjectConfigPath)))
	}

	if configPath != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "--config:           %s %s\n", configPath, existsIndicator(fileExists(configPath)))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Environment:        %s_<KEY> (e.g. %s)\n", config.EnvPrefix, config.EnvKey("buildTimeout"))
}

// settingKeys is the display order for config show
var settingKeys = []string{
	"action", "repository", "projectDir", "artifactName", "buildDir",
	"pollInterval", "buildTimeout", "settleDelay", "requestTimeout",
	"branch", "releaseTag", "workflowFile", "commitMessage",
	"skipDependencies", "skipBuild", "skipUpload", "forcePush", "verbose",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, p, err := loadConfig(cmd.Flags(), configPath)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Merged Configuration")
	fmt.Fprintln(w, "════════════════════════════════════════════════════════════")

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprintln(w, string(data))

	files := p.GetConfigPaths()
	if configPath != "" {
		files = []string{configPath}
	}

	fmt.Fprintln(w, "════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "Value Sources:")
	for _, key := range settingKeys {
		fmt.Fprintf(w, "  %-17s %s\n", key, config.Source(key, cmd.Flags(), files, p))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Active Configuration Files:")
	if len(files) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, path := range files {
		fmt.Fprintf(w, "  • %s (%s)\n", path, p.GetConfigSource(path))
	}

	return nil
}

// writeDefaultUserConfig creates the user config, prefilling the repository from git when possible
func writeDefaultUserConfig(p *paths.Paths, overwrite bool) (string, error) {
	userConfigPath := p.UserConfigFile()
	if fileExists(userConfigPath) && !overwrite {
		return "", fmt.Errorf("configuration file %s already exists. Use --force to overwrite", userConfigPath)
	}

	if err := p.EnsureDirs(); err != nil {
		return "", fmt.Errorf("failed to ensure config directory: %w", err)
	}

	cfg := config.Default()
	if p.ProjectRoot != "" {
		if repo, err := git.DetectRepository(p.ProjectRoot); err == nil {
			cfg.Repository = repo
			cfg.Action = config.ActionRepo
		}
	}
	// the project directory is per invocation, not per user
	cfg.ProjectDir = ""

	if err := cfg.Save(userConfigPath); err != nil {
		return "", fmt.Errorf("failed to save configuration: %w", err)
	}
	return userConfigPath, nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	_, p, err := loadConfig(cmd.Flags(), "")
	if err != nil {
		return err
	}

	path, err := writeDefaultUserConfig(p, force)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration saved to: %s\n", path)
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	_, p, err := loadConfig(cmd.Flags(), "")
	if err != nil {
		return err
	}

	userConfigPath := p.UserConfigFile()
	if !fileExists(userConfigPath) {
		fmt.Fprintf(cmd.OutOrStdout(), "Creating new user config at: %s\n", userConfigPath)
		if _, err := writeDefaultUserConfig(p, false); err != nil {
			return err
		}
	}

	editor := findEditor()
	if editor == "" {
		return fmt.Errorf("no editor found. Set $EDITOR or $VISUAL environment variable")
	}

	editorCmd := exec.Command(editor, userConfigPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor exited with error: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration saved to: %s\n", userConfigPath)
	return nil
}

func findEditor() string {
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}
	if editor := os.Getenv("VISUAL"); editor != "" {
		return editor
	}
	for _, e := range []string{"vim", "nano", "vi"} {
		if _, err := exec.LookPath(e); err == nil {
			return e
		}
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func existsIndicator(exists bool) string {
	if exists {
		return "✓"
	}
	return "✗"
}
