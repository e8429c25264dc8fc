// Package domain provides shared domain types for the gantry pipeline runner.
// These types are used across all internal packages to ensure consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case.
package domain

import "time"

// StepType categorizes the kind of work a step performs.
// This determines which executor handles the step.
type StepType string

// Step type constants define the valid execution types for steps.
const (
	// StepTypeRun indicates the step executes shell commands.
	StepTypeRun StepType = "run"

	// StepTypeVerify indicates the step checks that expected artifacts exist.
	StepTypeVerify StepType = "verify"
)

// String returns the string representation of the StepType.
// This implements fmt.Stringer for convenient logging and debugging.
func (s StepType) String() string {
	return string(s)
}

// FailureMode controls how the engine reacts when a step fails.
type FailureMode string

// Failure mode constants define the valid reactions to a failed step.
const (
	// FailureAbort stops the pipeline; no later step runs.
	FailureAbort FailureMode = "abort"

	// FailureWarn records a warning and lets the pipeline continue.
	FailureWarn FailureMode = "warn"
)

// String returns the string representation of the FailureMode.
func (f FailureMode) String() string {
	return string(f)
}

// Pipeline defines an ordered sequence of steps to execute against a
// project. Pipelines are either built in or loaded from YAML/JSON files.
//
// Example JSON representation:
//
//	{
//	    "name": "release",
//	    "description": "Clean, test, build and verify release artifacts",
//	    "steps": [...]
//	}
type Pipeline struct {
	// Name is the unique identifier for this pipeline (e.g., "release").
	Name string `json:"name" yaml:"name"`

	// Description explains what this pipeline is used for.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Steps defines the ordered sequence of step definitions.
	Steps []StepDefinition `json:"steps" yaml:"steps"`
}

// StepDefinition describes a step within a pipeline.
// This is the blueprint from which StepResult instances are created.
//
// Example JSON representation:
//
//	{
//	    "name": "unit-test-sdk",
//	    "type": "run",
//	    "description": "Run SDK unit tests",
//	    "commands": ["./gradlew :sdk:test"],
//	    "on_failure": "abort",
//	    "timeout": "10m"
//	}
type StepDefinition struct {
	// Name identifies this step definition.
	Name string `json:"name" yaml:"name"`

	// Type specifies the execution type (run, verify).
	// If empty, defaults to "run".
	Type StepType `json:"type,omitempty" yaml:"type,omitempty"`

	// Description explains what this step does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Commands are the shell commands executed in order for a run step.
	Commands []string `json:"commands,omitempty" yaml:"commands,omitempty"`

	// Artifacts lists the paths a verify step requires to exist,
	// relative to the project directory.
	Artifacts []string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`

	// OnFailure controls whether a failed step aborts the pipeline
	// or only records a warning. If empty, defaults to "abort".
	OnFailure FailureMode `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`

	// OnlyIf gates the step on a runtime condition. A step whose
	// condition is not met is recorded as skipped, not failed.
	OnlyIf *Condition `json:"only_if,omitempty" yaml:"only_if,omitempty"`

	// ContinueOnError runs every command in the step even when an
	// earlier one fails, collecting all results before the step's
	// outcome is decided.
	ContinueOnError bool `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`

	// Timeout is the maximum duration for this step.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Fatal reports whether a failure of this step aborts the pipeline.
func (s StepDefinition) Fatal() bool {
	return s.OnFailure != FailureWarn
}

// Condition gates a step on runtime state. Zero-value fields are
// ignored; all set fields must hold for the step to run.
type Condition struct {
	// PublishFlag requires the run to have been started with
	// publication enabled.
	PublishFlag bool `json:"publish_flag,omitempty" yaml:"publish_flag,omitempty"`

	// DirExists requires the named directory to exist relative to
	// the project directory.
	DirExists string `json:"dir_exists,omitempty" yaml:"dir_exists,omitempty"`
}

// Clone creates a deep copy of the pipeline.
// Value types are copied via struct assignment, while slices
// are explicitly deep copied to prevent shared references.
func (p *Pipeline) Clone() *Pipeline {
	// Shallow copy handles all value types
	clone := *p

	// Deep copy Steps slice with nested slices
	if p.Steps != nil {
		clone.Steps = make([]StepDefinition, len(p.Steps))
		for i, s := range p.Steps {
			clone.Steps[i] = s.Clone()
		}
	}

	return &clone
}

// Clone creates a deep copy of the step definition.
func (s StepDefinition) Clone() StepDefinition {
	clone := s
	if s.Commands != nil {
		clone.Commands = make([]string, len(s.Commands))
		copy(clone.Commands, s.Commands)
	}
	if s.Artifacts != nil {
		clone.Artifacts = make([]string, len(s.Artifacts))
		copy(clone.Artifacts, s.Artifacts)
	}
	if s.OnlyIf != nil {
		cond := *s.OnlyIf
		clone.OnlyIf = &cond
	}
	return clone
}
