package constants

// RunStatus represents the state of a pipeline run in the gantry state machine.
// Status values use snake_case for JSON serialization compatibility.
type RunStatus string

// Run status constants define the valid states a run can be in.
// These follow the linear state machine of the pipeline engine:
//
//	Pending → Running, Aborted
//	Running → Completed, Aborted
//
// Completed and Aborted are terminal. A run aborts from Pending only when a
// prerequisite check fails before the first step executes.
const (
	// RunStatusPending indicates a run is created but no step has started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the engine is actively executing steps.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted indicates every step was executed or skipped and no
	// fatal step failed. Advisory failures do not prevent this state.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusAborted indicates a fatal step failed, a prerequisite was
	// missing, or the operator interrupted the run.
	RunStatusAborted RunStatus = "aborted"
)

// String returns the string representation of the RunStatus.
// This implements fmt.Stringer for convenient logging and debugging.
func (s RunStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status is a terminal state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusAborted
}

// StepStatus represents the outcome of a single pipeline step.
// Status values use snake_case for JSON serialization compatibility.
type StepStatus string

// Step status constants define the per-step outcomes recorded on a run.
const (
	// StepStatusPending indicates the step has not started.
	StepStatusPending StepStatus = "pending"

	// StepStatusRunning indicates the step is executing.
	StepStatusRunning StepStatus = "running"

	// StepStatusSucceeded indicates every command in the step exited zero.
	StepStatusSucceeded StepStatus = "succeeded"

	// StepStatusFailed indicates a fatal step failed and the run aborted.
	StepStatusFailed StepStatus = "failed"

	// StepStatusWarned indicates an advisory step failed; the run continued.
	StepStatusWarned StepStatus = "warned"

	// StepStatusSkipped indicates the step's condition was not met
	// (publish flag not set, or the gated directory does not exist).
	StepStatusSkipped StepStatus = "skipped"
)

// String returns the string representation of the StepStatus.
func (s StepStatus) String() string {
	return string(s)
}
