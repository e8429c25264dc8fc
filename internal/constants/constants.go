// Package constants provides centralized constant values used throughout gantry.
// This package is the single source of truth for all shared constants and MUST NOT
// import any other internal packages.
package constants

import "time"

// File names used by gantry for state persistence.
const (
	// RunFileName is the name of the JSON file that stores run state within a run directory.
	RunFileName = "run.json"

	// RunLogFileName is the name of the JSON-lines log file kept alongside each run.
	RunLogFileName = "run.log"

	// LogFileName is the name of the rotating application log file.
	LogFileName = "gantry.log"

	// ConfigFileName is the base name (without extension) of gantry config files.
	ConfigFileName = "config"

	// RunLockFileName is the name of the project-level lock file that serializes runs.
	RunLockFileName = "run.lock"
)

// Directory names and paths used by gantry for organizing data.
const (
	// GantryHome is the hidden directory name where gantry stores its data.
	// It appears both in the user's home directory (global config, logs, history)
	// and at a project root (project config, pipelines, run records).
	GantryHome = ".gantry"

	// RunsDir is the directory name where per-run state and artifacts are stored.
	RunsDir = "runs"

	// PipelinesDir is the directory name where project pipeline files live.
	PipelinesDir = "pipelines"

	// ArtifactsDir is the directory name where step output artifacts are stored.
	ArtifactsDir = "artifacts"

	// LogsDir is the directory name where log files are stored.
	LogsDir = "logs"

	// HistoryDBFileName is the SQLite database file that indexes completed runs.
	HistoryDBFileName = "history.db"
)

// Environment variables recognized by gantry.
const (
	// GantryHomeEnv overrides the location of the global gantry home directory.
	GantryHomeEnv = "GANTRY_HOME"

	// EnvPrefix is the prefix for all gantry environment variable overrides.
	EnvPrefix = "GANTRY"
)

// Timeout configurations for various operations.
const (
	// DefaultStepTimeout is the default maximum duration for a single pipeline step.
	// Assembling a release artifact for a large project can legitimately take minutes.
	DefaultStepTimeout = 10 * time.Minute

	// DefaultCommandTimeout is the default maximum duration for a single command
	// within a step when the step itself carries no timeout.
	DefaultCommandTimeout = 5 * time.Minute
)

// Pipeline defaults.
const (
	// DefaultPipelineName is the pipeline used when `gantry run` is given no name.
	DefaultPipelineName = "release"

	// DefaultBuildWrapper is the build-tool wrapper script invoked by the built-in
	// pipeline when no wrapper is configured.
	DefaultBuildWrapper = "./gradlew"

	// DefaultSDKModule is the default name of the library module.
	DefaultSDKModule = "sdk"

	// DefaultAppModule is the default name of the application module.
	DefaultAppModule = "app"

	// DefaultIntegrationTestDir is the test-source directory whose presence gates
	// the integration test step.
	DefaultIntegrationTestDir = "app/src/androidTest"
)

// Default artifact paths verified by the built-in pipeline, relative to the project root.
const (
	// DefaultDebugArtifact is the expected debug application package.
	DefaultDebugArtifact = "app/build/outputs/apk/debug/app-debug.apk"

	// DefaultReleaseArtifact is the expected release application package.
	DefaultReleaseArtifact = "app/build/outputs/apk/release/app-release-unsigned.apk"

	// DefaultLibraryArtifact is the expected library archive produced by the SDK module.
	DefaultLibraryArtifact = "sdk/build/outputs/aar/sdk-release.aar"
)

// History defaults.
const (
	// DefaultHistoryLimit is the number of runs listed by `gantry history`
	// when no limit flag is given.
	DefaultHistoryLimit = 20
)

// Process exit codes. The engine records the resolved code on the run
// record; the CLI maps errors to the same values.
const (
	// ExitSuccess indicates the run completed (advisory failures included).
	ExitSuccess = 0

	// ExitError indicates a fatal step failed, the run was interrupted,
	// or an internal error occurred.
	ExitError = 1

	// ExitInvalidInput indicates invalid user input (unknown flag, bad
	// pipeline name, malformed configuration).
	ExitInvalidInput = 2
)

// Log rotation settings for the application log file.
const (
	// LogMaxSizeMB is the maximum size in megabytes of a log file before rotation.
	LogMaxSizeMB = 10

	// LogMaxBackups is the maximum number of rotated log files to retain.
	LogMaxBackups = 3

	// LogMaxAgeDays is the maximum number of days to retain rotated log files.
	LogMaxAgeDays = 28

	// LogCompress controls whether rotated log files are gzip compressed.
	LogCompress = true
)

// Schema version constants for data migration support.
const (
	// RunSchemaVersion is the current version of the run JSON schema.
	// This enables forward-compatible schema migrations.
	RunSchemaVersion = "1.0"
)

// Watch mode settings.
const (
	// WatchDebounce is how long the watch command waits after the last filesystem
	// event before triggering a new run. Build tools emit bursts of change events.
	WatchDebounce = 2 * time.Second

	// WatchRefreshInterval is the refresh interval of the history watch dashboard.
	WatchRefreshInterval = 2 * time.Second
)

// Prerequisite tools checked before a run and by `gantry doctor`.
const (
	// ToolJava is the Java runtime executable required by the build tool.
	ToolJava = "java"

	// ToolGit is the git executable used for repository metadata.
	ToolGit = "git"

	// ToolADB is the Android debug bridge used by device integration tests.
	ToolADB = "adb"

	// MinVersionJava is the minimum Java runtime version required by
	// current Android Gradle Plugin releases.
	MinVersionJava = "17"

	// VersionFlagStandard is the version flag used by most tools.
	VersionFlagStandard = "--version"

	// VersionFlagJava is the single-dash version flag the Java runtime
	// accepts on every release line.
	VersionFlagJava = "-version"

	// ToolDetectionTimeout bounds total prerequisite detection time.
	ToolDetectionTimeout = 10 * time.Second
)
