package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gantrybuild/gantry/internal/config"
	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/errors"
	"github.com/gantrybuild/gantry/internal/tui"
)

// initOptions contains options for the init command.
type initOptions struct {
	force   bool
	noInput bool
}

// initConfig is the YAML shape written by `gantry init`. It mirrors
// config.Config but keeps durations as strings so the generated file
// stays readable.
type initConfig struct {
	Project initProjectConfig `yaml:"project"`
	Build   initBuildConfig   `yaml:"build"`
	Run     initRunConfig     `yaml:"run"`
	History initHistoryConfig `yaml:"history"`
	Logging initLoggingConfig `yaml:"logging"`
}

type initProjectConfig struct {
	Name string `yaml:"name"`
}

type initBuildConfig struct {
	Wrapper            string             `yaml:"wrapper"`
	SDKModule          string             `yaml:"sdk_module"`
	AppModule          string             `yaml:"app_module"`
	Artifacts          initArtifactConfig `yaml:"artifacts"`
	IntegrationTestDir string             `yaml:"integration_test_dir"`
}

type initArtifactConfig struct {
	Debug   string `yaml:"debug"`
	Release string `yaml:"release"`
	Library string `yaml:"library"`
}

type initRunConfig struct {
	StepTimeout    string `yaml:"step_timeout"`
	CommandTimeout string `yaml:"command_timeout"`
	EnvFile        string `yaml:"env_file"`
	PipelinesDir   string `yaml:"pipelines_dir"`
}

type initHistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

type initLoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// samplePipelineFileName is the example pipeline written by init.
const samplePipelineFileName = "sample.yaml"

// samplePipelineYAML is the example pipeline file content. It is a
// valid pipeline so `gantry run sample` works immediately after init.
const samplePipelineYAML = `# Sample gantry pipeline.
# Copy this file, adjust the steps, and run it with:
#   gantry run sample
name: sample
description: Example pipeline
steps:
  - name: unit-tests
    description: Run SDK unit tests
    commands:
      - ./gradlew :sdk:test
    timeout: 10m
  - name: assemble
    description: Assemble the debug application
    commands:
      - ./gradlew :app:assembleDebug
    on_failure: abort
`

// AddInitCommand adds the init command to the root command.
func AddInitCommand(root *cobra.Command) {
	root.AddCommand(newInitCmd())
}

// newInitCmd creates the init command.
func newInitCmd() *cobra.Command {
	var (
		force   bool
		noInput bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize gantry in a project",
		Long: `Create the .gantry directory in the current project: a config.yaml
with the default settings, a pipelines directory, and a sample pipeline
file to start from.

When a configuration already exists the command asks before
overwriting it, and keeps a .backup copy of the previous file.

Examples:
  gantry init             # Initialize the current project
  gantry init --force     # Overwrite an existing configuration`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := initOptions{force: force, noInput: noInput}
			return runInit(cmd.Context(), cmd, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration without asking")
	cmd.Flags().BoolVar(&noInput, "no-input", false, "Never prompt; fail instead of asking to overwrite")

	return cmd
}

// runInit executes the init command.
func runInit(ctx context.Context, cmd *cobra.Command, w io.Writer, opts initOptions) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	outputFormat := cmd.Flag("output").Value.String()
	tui.CheckNoColor()
	out := tui.NewOutput(w, outputFormat)

	projectDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}

	configPath := config.ProjectConfigPathIn(projectDir)
	overwriting, err := checkExistingConfig(configPath, opts)
	if err != nil {
		if outputFormat == OutputJSON {
			out.Error(err)
		}
		return err
	}

	name := projectName(projectDir, opts)

	result, err := scaffoldProject(projectDir, name, overwriting)
	if err != nil {
		if outputFormat == OutputJSON {
			out.Error(err)
		}
		return err
	}

	if outputFormat == OutputJSON {
		return out.JSON(result)
	}

	displayInitSuccess(out, result)
	return nil
}

// checkExistingConfig decides whether init may proceed over an existing
// configuration. It returns true when a previous config will be
// overwritten.
func checkExistingConfig(configPath string, opts initOptions) (bool, error) {
	if _, err := os.Stat(configPath); err != nil {
		return false, nil
	}
	if opts.force {
		return true, nil
	}
	if opts.noInput || !tui.IsInteractive() {
		return false, fmt.Errorf("%w: %s", errors.ErrAlreadyInitialized, configPath)
	}

	overwrite, err := tui.Confirm("Overwrite the existing gantry configuration?", false)
	if err != nil {
		if stderrors.Is(err, errors.ErrDialogDismissed) {
			return false, fmt.Errorf("%w: %s", errors.ErrAlreadyInitialized, configPath)
		}
		return false, err
	}
	if !overwrite {
		return false, fmt.Errorf("%w: %s", errors.ErrAlreadyInitialized, configPath)
	}
	return true, nil
}

// projectName determines the project name to write into the config,
// prompting when a terminal is available.
func projectName(projectDir string, opts initOptions) string {
	name := filepath.Base(projectDir)
	if opts.noInput || !tui.IsInteractive() {
		return name
	}

	field := huh.NewInput().
		Title("Project name").
		Placeholder(name).
		Value(&name)

	form := huh.NewForm(huh.NewGroup(field)).WithTheme(tui.GantryTheme())
	if err := form.Run(); err != nil {
		// Dismissing the prompt keeps the directory name.
		return filepath.Base(projectDir)
	}
	if name == "" {
		return filepath.Base(projectDir)
	}
	return name
}

// initResult describes what init created.
type initResult struct {
	ProjectDir   string `json:"project_dir"`
	ConfigPath   string `json:"config_path"`
	PipelinesDir string `json:"pipelines_dir"`
	SamplePath   string `json:"sample_path"`
	BackupPath   string `json:"backup_path,omitempty"`
	Overwritten  bool   `json:"overwritten"`
}

// scaffoldProject writes the .gantry directory, config file, pipelines
// directory, and sample pipeline.
func scaffoldProject(projectDir, name string, overwriting bool) (*initResult, error) {
	gantryDir := filepath.Join(projectDir, constants.GantryHome)
	pipelinesDir := filepath.Join(gantryDir, constants.PipelinesDir)
	configPath := config.ProjectConfigPathIn(projectDir)

	result := &initResult{
		ProjectDir:   projectDir,
		ConfigPath:   configPath,
		PipelinesDir: pipelinesDir,
		SamplePath:   filepath.Join(pipelinesDir, samplePipelineFileName),
		Overwritten:  overwriting,
	}

	if err := os.MkdirAll(pipelinesDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", pipelinesDir, err)
	}

	if overwriting {
		backupPath := configPath + ".backup"
		if err := copyFile(configPath, backupPath); err != nil {
			return nil, fmt.Errorf("failed to back up existing config: %w", err)
		}
		result.BackupPath = backupPath
	}

	content, err := renderInitConfig(name)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(configPath, content, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	// The sample is a starting point; never clobber user edits to it.
	if _, err := os.Stat(result.SamplePath); os.IsNotExist(err) {
		if err := os.WriteFile(result.SamplePath, []byte(samplePipelineYAML), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", result.SamplePath, err)
		}
	}

	return result, nil
}

// renderInitConfig marshals the default configuration with a generated
// header comment.
func renderInitConfig(name string) ([]byte, error) {
	cfg := defaultInitConfig(name)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	header := fmt.Sprintf("# Gantry project configuration\n# Generated by gantry init on %s\n\n",
		time.Now().Format(time.RFC3339))
	return append([]byte(header), data...), nil
}

// defaultInitConfig builds the initial configuration values.
func defaultInitConfig(name string) initConfig {
	return initConfig{
		Project: initProjectConfig{Name: name},
		Build: initBuildConfig{
			Wrapper:   constants.DefaultBuildWrapper,
			SDKModule: constants.DefaultSDKModule,
			AppModule: constants.DefaultAppModule,
			Artifacts: initArtifactConfig{
				Debug:   constants.DefaultDebugArtifact,
				Release: constants.DefaultReleaseArtifact,
				Library: constants.DefaultLibraryArtifact,
			},
			IntegrationTestDir: constants.DefaultIntegrationTestDir,
		},
		Run: initRunConfig{
			StepTimeout:    constants.DefaultStepTimeout.String(),
			CommandTimeout: constants.DefaultCommandTimeout.String(),
			PipelinesDir:   constants.PipelinesDir,
		},
		History: initHistoryConfig{
			Enabled: true,
			Limit:   constants.DefaultHistoryLimit,
		},
		Logging: initLoggingConfig{
			Level: "info",
		},
	}
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src) //nolint:gosec // source is the project config file
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}

// displayInitSuccess shows what was created and suggests next steps.
func displayInitSuccess(out tui.Output, result *initResult) {
	out.Success(fmt.Sprintf("Initialized gantry in %s", result.ProjectDir))
	out.Info("")
	out.Info("Created:")
	out.Info("  " + result.ConfigPath)
	out.Info("  " + result.SamplePath)
	if result.BackupPath != "" {
		out.Info("")
		out.Info("Previous configuration backed up to:")
		out.Info("  " + result.BackupPath)
	}
	out.Info("")
	out.Info("Suggested next commands:")
	out.Info("  gantry doctor         - Check build prerequisites")
	out.Info("  gantry run --dry-run  - Preview the release pipeline")
	out.Info("  gantry run            - Run the release pipeline")
}
