package errors

import "errors"

// ErrorInfo holds user-facing message and suggested action for an error.
type ErrorInfo struct {
	// Message is the user-friendly error description.
	Message string
	// Action is a suggested action to resolve the issue (empty if none).
	Action string
}

// errorEntry pairs a sentinel error with its user-facing info.
type errorEntry struct {
	err  error
	info ErrorInfo
}

// errorInfoEntries is the pre-built mapping of sentinel errors to their user-facing messages.
// This single source of truth ensures UserMessage and Actionable stay in sync.
// Using a slice (not a map) because errors.Is() requires proper error chain traversal.
//
//nolint:gochecknoglobals // Pre-built mapping for efficiency
var errorInfoEntries = []errorEntry{
	// ===================
	// Pipeline execution
	// ===================
	{
		err: ErrStepFailed,
		info: ErrorInfo{
			Message: "A fatal pipeline step failed. Check the output above for the failing command.",
			Action:  "Fix the reported build or test errors and run the pipeline again.",
		},
	},
	{
		err: ErrCommandFailed,
		info: ErrorInfo{
			Message: "A build command exited with a non-zero status.",
			Action:  "Re-run with --verbose to see the full command output.",
		},
	},
	{
		err: ErrCommandTimeout,
		info: ErrorInfo{
			Message: "A build command exceeded its timeout and was terminated.",
			Action:  "Increase the step timeout in .gantry/config.yaml or the pipeline file.",
		},
	},
	{
		err: ErrArtifactMissing,
		info: ErrorInfo{
			Message: "An expected build artifact was not produced.",
			Action:  "Check the assemble step output and the artifact paths in your configuration.",
		},
	},
	{
		err: ErrInterrupted,
		info: ErrorInfo{
			Message: "The run was interrupted before it completed.",
			Action:  "Run the pipeline again to produce a complete build.",
		},
	},

	// ===================
	// Prerequisites
	// ===================
	{
		err: ErrMissingPrerequisite,
		info: ErrorInfo{
			Message: "Required tools are missing or outdated.",
			Action:  "Run 'gantry doctor' to see what is missing and how to install it.",
		},
	},
	{
		err: ErrWrapperNotFound,
		info: ErrorInfo{
			Message: "The build-tool wrapper script was not found.",
			Action:  "Check the build.wrapper setting in .gantry/config.yaml, or run from the project root.",
		},
	},
	{
		err: ErrProjectDirNotFound,
		info: ErrorInfo{
			Message: "The project directory does not exist.",
			Action:  "Check the path and try again.",
		},
	},

	// ===================
	// Pipelines
	// ===================
	{
		err: ErrPipelineNotFound,
		info: ErrorInfo{
			Message: "The requested pipeline is not registered.",
			Action:  "Run 'gantry pipelines' to list available pipelines.",
		},
	},
	{
		err: ErrInvalidPipeline,
		info: ErrorInfo{
			Message: "The pipeline definition is invalid.",
			Action:  "Check the pipeline file against 'gantry pipelines show release' for the expected shape.",
		},
	},
	{
		err: ErrPipelineParseError,
		info: ErrorInfo{
			Message: "A pipeline file could not be parsed.",
			Action:  "Check the YAML or JSON syntax of the files in .gantry/pipelines/.",
		},
	},

	// ===================
	// Runs & history
	// ===================
	{
		err: ErrRunNotFound,
		info: ErrorInfo{
			Message: "No run with that ID was found.",
			Action:  "Run 'gantry history' to list recorded runs.",
		},
	},
	{
		err: ErrRunInProgress,
		info: ErrorInfo{
			Message: "Another gantry run is already executing in this project.",
			Action:  "Wait for the other run to finish, or remove .gantry/run.lock if it is stale.",
		},
	},
	{
		err: ErrHistoryDisabled,
		info: ErrorInfo{
			Message: "Run history is disabled in configuration.",
			Action:  "Set history.enabled to true in .gantry/config.yaml.",
		},
	},
	{
		err: ErrHistoryEmpty,
		info: ErrorInfo{
			Message: "No runs have been recorded yet.",
			Action:  "Run 'gantry run' to execute a pipeline first.",
		},
	},
	{
		err: ErrWatchNothingToWatch,
		info: ErrorInfo{
			Message: "No watchable source directories were found in this project.",
			Action:  "Pass --path <dir>, or check the build.sdk_module and build.app_module settings.",
		},
	},

	// ===================
	// Project setup
	// ===================
	{
		err: ErrProjectNotInitialized,
		info: ErrorInfo{
			Message: "No .gantry directory was found in this project.",
			Action:  "Run 'gantry init' to create the project configuration.",
		},
	},
	{
		err: ErrAlreadyInitialized,
		info: ErrorInfo{
			Message: "This project already has a .gantry directory.",
			Action:  "Edit the existing configuration, or re-run 'gantry init' and confirm the overwrite.",
		},
	},
	{
		err: ErrEnvFileNotFound,
		info: ErrorInfo{
			Message: "The environment file does not exist.",
			Action:  "Check the --env-file path or the build.env_file setting.",
		},
	},
	{
		err: ErrInvalidOutputFormat,
		info: ErrorInfo{
			Message: "An invalid output format was provided.",
			Action:  "Use --output text or --output json.",
		},
	},
}

// errorInfoMap provides O(1) lookup for direct sentinel error matches.
// Built once from errorInfoEntries during package initialization.
//
//nolint:gochecknoglobals // Pre-built mapping for O(1) lookup performance
var errorInfoMap = buildErrorInfoMap()

// buildErrorInfoMap creates a map from the errorInfoEntries slice.
// This is called once during package init for O(1) direct lookups.
func buildErrorInfoMap() map[error]ErrorInfo {
	m := make(map[error]ErrorInfo, len(errorInfoEntries))
	for _, entry := range errorInfoEntries {
		m[entry.err] = entry.info
	}
	return m
}

// getErrorInfo looks up the ErrorInfo for a given error.
// It first tries O(1) direct map lookup for unwrapped sentinel errors,
// then falls back to errors.Is() traversal for wrapped errors.
// Returns an ErrorInfo with the original error message if not found.
func getErrorInfo(err error) ErrorInfo {
	// Fast path: O(1) lookup for direct sentinel errors
	if info, ok := errorInfoMap[err]; ok {
		return info
	}

	// Slow path: errors.Is() for wrapped errors
	for _, entry := range errorInfoEntries {
		if errors.Is(err, entry.err) {
			return entry.info
		}
	}

	return ErrorInfo{Message: err.Error()}
}

// UserMessage returns a user-friendly message for common errors.
// This function maps sentinel errors to helpful, actionable messages
// that are suitable for display to end users.
//
// For unrecognized errors, it returns the error's original message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return getErrorInfo(err).Message
}

// Actionable returns a user-friendly error message along with a suggested
// action the user can take to resolve or work around the issue.
//
// For errors that are not recoverable or have no clear action, the action
// string will be empty.
func Actionable(err error) (message, action string) {
	if err == nil {
		return "", ""
	}
	info := getErrorInfo(err)
	return info.Message, info.Action
}
