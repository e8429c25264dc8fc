// Package config provides configuration management for gantry with layered precedence.
//
// Configuration sources are loaded in the following order (highest precedence first):
//  1. CLI flags (passed via LoadWithOverrides)
//  2. Environment variables (GANTRY_* prefix)
//  3. Project config (.gantry/config.yaml)
//  4. Global config (~/.gantry/config.yaml)
//  5. Built-in defaults
//
// Each higher level completely overrides the lower level for the same key.
//
// IMPORTANT: This package may import internal/constants and internal/errors,
// but MUST NOT import internal/domain or other internal packages.
package config

import "time"

// Config is the root configuration structure for gantry.
type Config struct {
	// Project contains project identity settings.
	Project ProjectConfig `yaml:"project" mapstructure:"project"`

	// Build contains the project layout the built-in pipeline is generated from.
	Build BuildConfig `yaml:"build" mapstructure:"build"`

	// Run contains execution settings shared by all pipelines.
	Run RunConfig `yaml:"run" mapstructure:"run"`

	// History contains run-index settings.
	History HistoryConfig `yaml:"history" mapstructure:"history"`

	// Logging contains application log settings.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ProjectConfig identifies the project.
type ProjectConfig struct {
	// Name is the display name used in logs and reports. When empty the
	// project directory's base name is used.
	Name string `yaml:"name" mapstructure:"name"`
}

// BuildConfig describes the project layout: the wrapper script, module
// names, and the artifacts the verify step checks for.
type BuildConfig struct {
	// Wrapper is the build tool invocation, either a project-relative
	// script ("./gradlew") or an executable on the PATH.
	Wrapper string `yaml:"wrapper" mapstructure:"wrapper"`

	// SDKModule is the library module name.
	SDKModule string `yaml:"sdk_module" mapstructure:"sdk_module"`

	// AppModule is the application module name.
	AppModule string `yaml:"app_module" mapstructure:"app_module"`

	// Artifacts are the build outputs the verify step requires.
	Artifacts ArtifactConfig `yaml:"artifacts" mapstructure:"artifacts"`

	// IntegrationTestDir gates the device integration test step: the
	// step only runs when this directory exists in the project.
	IntegrationTestDir string `yaml:"integration_test_dir" mapstructure:"integration_test_dir"`
}

// ArtifactConfig lists expected build outputs, relative to the project root.
type ArtifactConfig struct {
	// Debug is the debug application package path.
	Debug string `yaml:"debug" mapstructure:"debug"`

	// Release is the release application package path.
	Release string `yaml:"release" mapstructure:"release"`

	// Library is the library archive path.
	Library string `yaml:"library" mapstructure:"library"`
}

// RunConfig contains execution settings.
type RunConfig struct {
	// StepTimeout is the default per-step timeout for steps that do not
	// define their own.
	StepTimeout time.Duration `yaml:"step_timeout" mapstructure:"step_timeout"`

	// CommandTimeout is the default per-command timeout.
	CommandTimeout time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"`

	// EnvFile is an optional dotenv file loaded into the environment of
	// build commands before the pipeline starts.
	EnvFile string `yaml:"env_file" mapstructure:"env_file"`

	// PipelinesDir is where project pipeline files are looked up,
	// relative to the project root.
	PipelinesDir string `yaml:"pipelines_dir" mapstructure:"pipelines_dir"`
}

// HistoryConfig controls the run index.
type HistoryConfig struct {
	// Enabled toggles recording runs into the history database.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Limit is the default number of runs shown by `gantry history`.
	Limit int `yaml:"limit" mapstructure:"limit"`
}

// LoggingConfig controls the application log.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// File overrides the log file location. When empty the log is
	// written to ~/.gantry/logs/gantry.log.
	File string `yaml:"file" mapstructure:"file"`
}
