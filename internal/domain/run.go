package domain

import (
	"time"

	"github.com/gantrybuild/gantry/internal/constants"
)

// Run represents a single execution of a pipeline against a project.
// Runs track progress through the pipeline's steps and are persisted
// after every state change so an interrupted run can be inspected.
//
// Example JSON representation:
//
//	{
//	    "id": "run-20260823-100000",
//	    "trace_id": "3e9c4f1a-...",
//	    "pipeline": "release",
//	    "project_dir": "/home/dev/scanner",
//	    "status": "running",
//	    "publish": false,
//	    "current_step": 2,
//	    "steps": [...],
//	    "created_at": "2026-08-23T10:00:00Z",
//	    "updated_at": "2026-08-23T10:05:00Z",
//	    "schema_version": "1.0"
//	}
type Run struct {
	// ID is the unique identifier for the run.
	// Format: run-YYYYMMDD-HHMMSS
	ID string `json:"id"`

	// TraceID correlates log lines and history records for this run.
	TraceID string `json:"trace_id"`

	// Pipeline is the name of the pipeline this run executes.
	Pipeline string `json:"pipeline"`

	// ProjectDir is the absolute path of the project the run operates on.
	ProjectDir string `json:"project_dir"`

	// Status represents the current state in the run lifecycle.
	// Uses constants.RunStatus values (pending, running, completed, aborted).
	Status constants.RunStatus `json:"status"`

	// Publish records whether publication was requested for this run.
	Publish bool `json:"publish"`

	// CurrentStep is the zero-based index of the currently executing step.
	CurrentStep int `json:"current_step"`

	// Steps is the ordered list of per-step results for this run.
	// It has one entry per pipeline step, in pipeline order.
	Steps []StepResult `json:"steps"`

	// Transitions is the audit trail of status changes.
	Transitions []Transition `json:"transitions,omitempty"`

	// Git captures repository state at the start of the run
	// (nil if the project is not a git repository).
	Git *GitInfo `json:"git,omitempty"`

	// CreatedAt is when the run was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the run was last modified.
	UpdatedAt time.Time `json:"updated_at"`

	// CompletedAt is when the run finished (nil if not yet complete).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ExitCode is the process exit code the run resolved to.
	// Only meaningful once Status is terminal.
	ExitCode int `json:"exit_code"`

	// SchemaVersion indicates the version of the Run struct schema.
	// This enables forward-compatible schema migrations.
	SchemaVersion string `json:"schema_version"`
}

// StepResult tracks the execution of a single pipeline step within a run.
//
// Example JSON representation:
//
//	{
//	    "name": "unit-test-sdk",
//	    "status": "failed",
//	    "commands": [...],
//	    "started_at": "2026-08-23T10:01:00Z",
//	    "completed_at": "2026-08-23T10:03:00Z",
//	    "error": "command exited with code 1",
//	    "attempts": 1
//	}
type StepResult struct {
	// Name identifies which pipeline step produced this result.
	Name string `json:"name"`

	// Status is the current state of this step.
	// Uses constants.StepStatus values (pending, running, succeeded,
	// failed, warned, skipped).
	Status constants.StepStatus `json:"status"`

	// Commands holds the result of each command the step executed.
	Commands []CommandResult `json:"commands,omitempty"`

	// StartedAt is when step execution began (nil if not yet started).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when step execution finished (nil if not yet complete).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains the error message if the step failed.
	Error string `json:"error,omitempty"`

	// Attempts counts how many times this step has been executed.
	// Greater than 1 when the operator chose to retry a fatal failure.
	Attempts int `json:"attempts"`

	// Duration is how long the most recent attempt took.
	Duration time.Duration `json:"duration,omitempty"`

	// SkipReason explains why the step was skipped (empty unless
	// Status is skipped).
	SkipReason string `json:"skip_reason,omitempty"`
}

// CommandResult captures the outcome of a single shell command.
//
// Example JSON representation:
//
//	{
//	    "command": "./gradlew :sdk:test",
//	    "success": false,
//	    "exit_code": 1,
//	    "output": "FAILURE: Build failed...",
//	    "duration": 45000000000
//	}
type CommandResult struct {
	// Command is the shell command that was executed.
	Command string `json:"command"`

	// Success indicates whether the command exited with code zero.
	Success bool `json:"success"`

	// ExitCode is the command's process exit code.
	ExitCode int `json:"exit_code"`

	// Output contains combined stdout and stderr.
	Output string `json:"output,omitempty"`

	// Error contains the execution error if the command could not
	// run or exited non-zero.
	Error string `json:"error,omitempty"`

	// Duration is how long the command took to execute.
	Duration time.Duration `json:"duration"`
}

// Transition records a single status change in a run's lifecycle.
type Transition struct {
	// From is the status before the change.
	From constants.RunStatus `json:"from"`

	// To is the status after the change.
	To constants.RunStatus `json:"to"`

	// Step is the zero-based step index current at the transition.
	Step int `json:"step"`

	// Reason is a short human-readable cause (e.g., "step unit-test-sdk failed").
	Reason string `json:"reason,omitempty"`

	// At is when the transition happened.
	At time.Time `json:"at"`
}

// GitInfo captures repository state at the start of a run.
type GitInfo struct {
	// Branch is the checked-out branch name.
	Branch string `json:"branch"`

	// Commit is the HEAD commit hash.
	Commit string `json:"commit"`

	// Dirty reports whether the worktree had uncommitted changes.
	Dirty bool `json:"dirty"`
}

// ShortCommit returns the abbreviated commit hash used in displays.
func (g *GitInfo) ShortCommit() string {
	if len(g.Commit) < 8 {
		return g.Commit
	}
	return g.Commit[:8]
}

// NewRun creates a pending run for the given pipeline with one pending
// step result per pipeline step.
func NewRun(id, traceID string, p *Pipeline, projectDir string, publish bool, now time.Time) *Run {
	steps := make([]StepResult, len(p.Steps))
	for i, def := range p.Steps {
		steps[i] = StepResult{
			Name:   def.Name,
			Status: constants.StepStatusPending,
		}
	}

	return &Run{
		ID:            id,
		TraceID:       traceID,
		Pipeline:      p.Name,
		ProjectDir:    projectDir,
		Status:        constants.RunStatusPending,
		Publish:       publish,
		CurrentStep:   0,
		Steps:         steps,
		CreatedAt:     now,
		UpdatedAt:     now,
		SchemaVersion: constants.RunSchemaVersion,
	}
}

// Duration returns the wall-clock duration of the run, or zero if the
// run has not completed.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.CreatedAt)
}

// StepByName returns the step result with the given name, or nil.
func (r *Run) StepByName(name string) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}
