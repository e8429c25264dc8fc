package config

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/gantrybuild/gantry/internal/constants"
	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// newViperInstance creates a Viper instance with standard gantry
// configuration: defaults, the GANTRY_ env prefix, and the key replacer.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults configures all default values on the Viper instance.
// These defaults match the values from DefaultConfig().
// IMPORTANT: Keys must match the YAML tag names exactly for proper mapping.
func setDefaults(v *viper.Viper) {
	// Project defaults
	v.SetDefault("project.name", "")

	// Build defaults
	v.SetDefault("build.wrapper", constants.DefaultBuildWrapper)
	v.SetDefault("build.sdk_module", constants.DefaultSDKModule)
	v.SetDefault("build.app_module", constants.DefaultAppModule)
	v.SetDefault("build.artifacts.debug", constants.DefaultDebugArtifact)
	v.SetDefault("build.artifacts.release", constants.DefaultReleaseArtifact)
	v.SetDefault("build.artifacts.library", constants.DefaultLibraryArtifact)
	v.SetDefault("build.integration_test_dir", constants.DefaultIntegrationTestDir)

	// Run defaults
	v.SetDefault("run.step_timeout", constants.DefaultStepTimeout.String())
	v.SetDefault("run.command_timeout", constants.DefaultCommandTimeout.String())
	v.SetDefault("run.env_file", "")
	v.SetDefault("run.pipelines_dir", constants.PipelinesDir)

	// History defaults
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.limit", constants.DefaultHistoryLimit)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
}

// isConfigNotFoundError returns true if the error is a viper config file
// not found error.
func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var configNotFoundErr viper.ConfigFileNotFoundError
	return stderrors.As(err, &configNotFoundErr)
}

// unmarshalAndValidate unmarshals viper config into Config and validates it.
func unmarshalAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, gantryerrors.Wrap(err, "failed to unmarshal config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads configuration from all available sources with proper precedence.
// Configuration is loaded in the following order (highest precedence first):
//  1. Environment variables (GANTRY_* prefix)
//  2. Project config (.gantry/config.yaml in the working directory)
//  3. Global config (~/.gantry/config.yaml)
//  4. Built-in defaults
//
// For CLI flag overrides, use LoadWithOverrides instead.
//
// The function returns an error only for actual configuration problems,
// not for missing config files (which are expected in many scenarios).
func Load(ctx context.Context) (*Config, error) {
	v := newViperInstance()

	// Load global config first (lower precedence)
	if err := loadGlobalConfig(v); err != nil {
		return nil, err
	}

	// Load project config (higher precedence, merges over global)
	if err := mergeConfigFile(v, ProjectConfigPath()); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, gantryerrors.Wrap(err, "failed to unmarshal config")
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "config").Logger()
	logger.Debug().
		Str("build.wrapper", cfg.Build.Wrapper).
		Dur("run.step_timeout", cfg.Run.StepTimeout).
		Bool("history.enabled", cfg.History.Enabled).
		Msg("configuration loaded and unmarshaled")

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadForProject loads configuration with the project config read from
// projectDir instead of the working directory. Used when `gantry run`
// targets a project elsewhere.
func LoadForProject(_ context.Context, projectDir string) (*Config, error) {
	v := newViperInstance()

	if err := loadGlobalConfig(v); err != nil {
		return nil, err
	}

	if err := mergeConfigFile(v, ProjectConfigPathIn(projectDir)); err != nil {
		return nil, err
	}

	return unmarshalAndValidate(v)
}

// LoadFromPaths loads configuration from specific file paths for testing.
//
// projectConfigPath is the path to project-level config (higher priority).
// globalConfigPath is the path to global config (lower priority).
// Either path can be empty to skip that level.
func LoadFromPaths(_ context.Context, projectConfigPath, globalConfigPath string) (*Config, error) {
	v := newViperInstance()

	if globalConfigPath != "" {
		v.SetConfigFile(globalConfigPath)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, gantryerrors.Wrapf(err, "failed to read global config: %s", globalConfigPath)
		}
	}

	if projectConfigPath != "" {
		v.SetConfigFile(projectConfigPath)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, gantryerrors.Wrapf(err, "failed to read project config: %s", projectConfigPath)
		}
	}

	return unmarshalAndValidate(v)
}

// loadGlobalConfig attempts to load the global config file
// (~/.gantry/config.yaml). Missing files are skipped silently.
func loadGlobalConfig(v *viper.Viper) error {
	globalConfigPath, ok := globalConfigPathIfExists()
	if !ok {
		return nil
	}

	v.SetConfigFile(globalConfigPath)
	if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
		return gantryerrors.Wrap(err, "failed to read global config file")
	}
	return nil
}

// globalConfigPathIfExists returns the global config path if it exists.
func globalConfigPathIfExists() (string, bool) {
	globalDir, err := GlobalConfigDir()
	if err != nil {
		return "", false
	}

	globalConfigPath := filepath.Join(globalDir, configFileName)
	if _, err := os.Stat(globalConfigPath); err != nil {
		return "", false
	}

	return globalConfigPath, true
}

// mergeConfigFile merges the config file at path when it exists.
func mergeConfigFile(v *viper.Viper, path string) error {
	if !fileExists(path) {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
		return gantryerrors.Wrapf(err, "failed to read config file: %s", path)
	}
	return nil
}

// fileExists returns true if the file at path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadWithOverrides loads configuration and applies CLI flag overrides.
// The overrides parameter contains values from CLI flags which have the
// highest precedence in the configuration hierarchy.
//
// Only non-zero values in overrides are applied. Zero values are ignored
// to allow partial overrides.
func LoadWithOverrides(ctx context.Context, overrides *Config) (*Config, error) {
	cfg, err := Load(ctx)
	if err != nil {
		return nil, err
	}

	if overrides != nil {
		applyOverrides(cfg, overrides)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyOverrides merges non-zero override values into the config.
//
// IMPORTANT: History.Enabled cannot be overridden to false through this
// function because Go's zero value for bool is false, making "explicitly
// set to false" indistinguishable from "not set". CLI implementations
// handle boolean flags separately:
//
//	if cmd.Flags().Changed("no-history") {
//	    cfg.History.Enabled = false
//	}
func applyOverrides(cfg, overrides *Config) {
	if overrides.Project.Name != "" {
		cfg.Project.Name = overrides.Project.Name
	}

	applyBuildOverrides(cfg, overrides)

	if overrides.Run.StepTimeout != 0 {
		cfg.Run.StepTimeout = overrides.Run.StepTimeout
	}
	if overrides.Run.CommandTimeout != 0 {
		cfg.Run.CommandTimeout = overrides.Run.CommandTimeout
	}
	if overrides.Run.EnvFile != "" {
		cfg.Run.EnvFile = overrides.Run.EnvFile
	}
	if overrides.Run.PipelinesDir != "" {
		cfg.Run.PipelinesDir = overrides.Run.PipelinesDir
	}

	if overrides.History.Limit != 0 {
		cfg.History.Limit = overrides.History.Limit
	}

	if overrides.Logging.Level != "" {
		cfg.Logging.Level = overrides.Logging.Level
	}
	if overrides.Logging.File != "" {
		cfg.Logging.File = overrides.Logging.File
	}
}

// applyBuildOverrides applies build-related overrides to the config.
func applyBuildOverrides(cfg, overrides *Config) {
	if overrides.Build.Wrapper != "" {
		cfg.Build.Wrapper = overrides.Build.Wrapper
	}
	if overrides.Build.SDKModule != "" {
		cfg.Build.SDKModule = overrides.Build.SDKModule
	}
	if overrides.Build.AppModule != "" {
		cfg.Build.AppModule = overrides.Build.AppModule
	}
	if overrides.Build.Artifacts.Debug != "" {
		cfg.Build.Artifacts.Debug = overrides.Build.Artifacts.Debug
	}
	if overrides.Build.Artifacts.Release != "" {
		cfg.Build.Artifacts.Release = overrides.Build.Artifacts.Release
	}
	if overrides.Build.Artifacts.Library != "" {
		cfg.Build.Artifacts.Library = overrides.Build.Artifacts.Library
	}
	if overrides.Build.IntegrationTestDir != "" {
		cfg.Build.IntegrationTestDir = overrides.Build.IntegrationTestDir
	}
}

// viperDecoderOption returns the decoder options for Viper unmarshal.
// This configures mapstructure to handle time.Duration conversion from strings.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)
}
