// Package engine provides run lifecycle management for gantry.
//
// This file contains progress notification logic extracted from engine.go.
// The progress callback lets the CLI and TUI render live step status
// without coupling the engine to any output layer.
package engine

import (
	"time"

	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/domain"
)

// StepProgressEvent describes a step lifecycle event during a run.
type StepProgressEvent struct {
	// Type is "start", "complete", or "skip".
	Type string

	// RunID identifies the run the event belongs to.
	RunID string

	// Pipeline is the name of the pipeline being executed.
	Pipeline string

	// StepIndex is the zero-based index of the step.
	StepIndex int

	// TotalSteps is the number of steps in the pipeline.
	TotalSteps int

	// StepName is the name of the step.
	StepName string

	// StepType is the kind of step (run or verify).
	StepType domain.StepType

	// Fatal reports whether a failure of this step aborts the run.
	Fatal bool

	// Attempt is the attempt number for this step (1-based, greater
	// than 1 after an operator-requested retry).
	Attempt int

	// Status is the step outcome. Only set on "complete" and "skip" events.
	Status constants.StepStatus

	// SkipReason explains why the step was skipped. Only set on "skip" events.
	SkipReason string

	// Duration is how long the step took. Only set on "complete" events.
	Duration time.Duration
}

// ProgressCallback receives step lifecycle events during a run.
type ProgressCallback func(StepProgressEvent)

// notifyStepStart calls the progress callback with a "start" event if configured.
func (e *Engine) notifyStepStart(run *domain.Run, step *domain.StepDefinition, totalSteps int) {
	if e.progress == nil {
		return
	}

	e.progress(StepProgressEvent{
		Type:       "start",
		RunID:      run.ID,
		Pipeline:   run.Pipeline,
		StepIndex:  run.CurrentStep,
		TotalSteps: totalSteps,
		StepName:   step.Name,
		StepType:   effectiveStepType(step),
		Fatal:      step.Fatal(),
		Attempt:    run.Steps[run.CurrentStep].Attempts,
	})
}

// notifyStepComplete calls the progress callback with a "complete" event if configured.
func (e *Engine) notifyStepComplete(run *domain.Run, step *domain.StepDefinition, totalSteps int) {
	if e.progress == nil {
		return
	}

	sr := run.Steps[run.CurrentStep]

	e.progress(StepProgressEvent{
		Type:       "complete",
		RunID:      run.ID,
		Pipeline:   run.Pipeline,
		StepIndex:  run.CurrentStep,
		TotalSteps: totalSteps,
		StepName:   step.Name,
		StepType:   effectiveStepType(step),
		Fatal:      step.Fatal(),
		Attempt:    sr.Attempts,
		Status:     sr.Status,
		Duration:   sr.Duration,
	})
}

// notifyStepSkipped calls the progress callback with a "skip" event if configured.
func (e *Engine) notifyStepSkipped(run *domain.Run, step *domain.StepDefinition, totalSteps int, reason string) {
	if e.progress == nil {
		return
	}

	e.progress(StepProgressEvent{
		Type:       "skip",
		RunID:      run.ID,
		Pipeline:   run.Pipeline,
		StepIndex:  run.CurrentStep,
		TotalSteps: totalSteps,
		StepName:   step.Name,
		StepType:   effectiveStepType(step),
		Fatal:      step.Fatal(),
		Status:     constants.StepStatusSkipped,
		SkipReason: reason,
	})
}

// effectiveStepType normalizes an unset step type to the default run type.
func effectiveStepType(step *domain.StepDefinition) domain.StepType {
	if step.Type == "" {
		return domain.StepTypeRun
	}
	return step.Type
}
