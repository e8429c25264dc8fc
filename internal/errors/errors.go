// Package errors provides centralized error handling for gantry.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the application. All error types can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
// All errors use lowercase descriptions per Go conventions.
var (
	// ErrStepFailed indicates that a fatal pipeline step failed and the run
	// was aborted.
	ErrStepFailed = errors.New("step failed")

	// ErrCommandFailed indicates that an external build command exited non-zero.
	ErrCommandFailed = errors.New("command failed")

	// ErrCommandTimeout indicates that an external command exceeded its
	// configured timeout and was terminated.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrArtifactMissing indicates that an expected build output file does not
	// exist after the assemble steps.
	ErrArtifactMissing = errors.New("artifact missing")

	// ErrMissingPrerequisite indicates that a required tool or file was not
	// found before the pipeline started.
	ErrMissingPrerequisite = errors.New("missing prerequisite")

	// ErrWrapperNotFound indicates that the configured build-tool wrapper
	// script is not present in the project or on the PATH.
	ErrWrapperNotFound = errors.New("build wrapper not found")

	// ErrProjectDirNotFound indicates that the project directory for a run
	// does not exist.
	ErrProjectDirNotFound = errors.New("project directory not found")

	// ErrPipelineNotFound indicates that the requested pipeline name is not
	// registered and no pipeline file with that name exists.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrPipelineNil indicates a nil pipeline was passed where one is required.
	ErrPipelineNil = errors.New("pipeline is nil")

	// ErrPipelineNameEmpty indicates a pipeline with an empty name.
	ErrPipelineNameEmpty = errors.New("pipeline name is empty")

	// ErrPipelineExists indicates an attempt to register a pipeline name that
	// is already registered.
	ErrPipelineExists = errors.New("pipeline already registered")

	// ErrAliasExists indicates an attempt to register an alias that is
	// already taken by another pipeline.
	ErrAliasExists = errors.New("alias already registered")

	// ErrInvalidPipeline indicates that a pipeline definition failed validation.
	ErrInvalidPipeline = errors.New("invalid pipeline")

	// ErrNoSteps indicates that a pipeline defines no steps.
	ErrNoSteps = errors.New("pipeline has no steps")

	// ErrInvalidStep indicates that a step definition is malformed.
	ErrInvalidStep = errors.New("invalid step definition")

	// ErrPipelineFileMissing indicates that a pipeline file path does not exist.
	ErrPipelineFileMissing = errors.New("pipeline file missing")

	// ErrPipelineParseError indicates that a pipeline file could not be parsed.
	ErrPipelineParseError = errors.New("pipeline parse error")

	// ErrUnsupportedFormat indicates a pipeline file with an unrecognized
	// extension.
	ErrUnsupportedFormat = errors.New("unsupported pipeline file format")

	// ErrRunNotFound indicates that the requested run ID does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunExists indicates an attempt to create a run that already exists.
	ErrRunExists = errors.New("run already exists")

	// ErrRunInProgress indicates that another gantry run holds the project
	// run lock.
	ErrRunInProgress = errors.New("another run is in progress")

	// ErrInvalidTransition indicates an attempted run status transition that
	// the state machine does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrLockTimeout indicates that a file lock could not be acquired within
	// the timeout.
	ErrLockTimeout = errors.New("lock acquisition timeout")

	// ErrEmptyValue indicates a required value was empty.
	ErrEmptyValue = errors.New("must not be empty")

	// ErrPathTraversal indicates a file name containing path traversal
	// sequences was rejected.
	ErrPathTraversal = errors.New("path traversal detected")

	// ErrTooManyVersions indicates versioned artifact numbering exceeded its
	// safety limit.
	ErrTooManyVersions = errors.New("too many artifact versions")

	// ErrHistoryDisabled indicates run history is disabled in configuration.
	ErrHistoryDisabled = errors.New("run history disabled")

	// ErrHistoryEmpty indicates no runs have been recorded yet.
	ErrHistoryEmpty = errors.New("no runs recorded")

	// ErrDialogDismissed indicates a dialog or prompt was dismissed by the
	// host (non-interactive stdin, escape, or interrupt) rather than answered
	// through a control.
	ErrDialogDismissed = errors.New("dialog dismissed")

	// ErrEnvFileNotFound indicates the requested environment file does not exist.
	ErrEnvFileNotFound = errors.New("environment file not found")

	// ErrInvalidConfig indicates a configuration value failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidOutputFormat indicates an unrecognized --output value.
	ErrInvalidOutputFormat = errors.New("invalid output format")

	// ErrProjectNotInitialized indicates no .gantry directory exists where one
	// was required.
	ErrProjectNotInitialized = errors.New("project not initialized")

	// ErrAlreadyInitialized indicates `gantry init` found an existing .gantry
	// directory and the user declined to overwrite it.
	ErrAlreadyInitialized = errors.New("project already initialized")

	// ErrWatchNothingToWatch indicates the watch command found no directories
	// to monitor.
	ErrWatchNothingToWatch = errors.New("no directories to watch")

	// ErrInterrupted indicates the run was interrupted by the operator.
	ErrInterrupted = errors.New("run interrupted")
)

// ExitCode2Error wraps an error to indicate exit code 2 should be used.
type ExitCode2Error struct {
	Err error
}

// NewExitCode2Error wraps an error to indicate exit code 2.
func NewExitCode2Error(err error) *ExitCode2Error {
	return &ExitCode2Error{Err: err}
}

// Error implements the error interface.
func (e *ExitCode2Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitCode2Error) Unwrap() error {
	return e.Err
}

// IsExitCode2Error checks if an error should result in exit code 2.
func IsExitCode2Error(err error) bool {
	var e *ExitCode2Error
	return errors.As(err, &e)
}
