// Package engine provides run lifecycle management for gantry.
//
// This file implements the run engine, which executes pipeline steps in
// order, persists a checkpoint after every state change, and resolves
// fatal failures through an optional handler.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gantrybuild/gantry/internal/artifact"
	"github.com/gantrybuild/gantry/internal/clock"
	"github.com/gantrybuild/gantry/internal/command"
	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/domain"
	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// ArtifactVerifier checks build outputs on disk.
type ArtifactVerifier interface {
	Verify(ctx context.Context, paths []string) ([]artifact.Info, error)
}

// VerifierFactory builds an ArtifactVerifier rooted at a project directory.
type VerifierFactory func(projectDir string) ArtifactVerifier

// Engine executes pipeline runs. It coordinates command execution,
// manages state transitions, and checkpoints the run after each step.
type Engine struct {
	store        Store
	runner       command.Runner
	clk          clock.Clock
	logger       zerolog.Logger
	progress     ProgressCallback
	fatalHandler FatalHandler
	liveOutput   io.Writer
	newVerifier  VerifierFactory
	cmdTimeout   time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRunner sets the command runner. Used by tests to stub out
// shell execution.
func WithRunner(r command.Runner) EngineOption {
	return func(e *Engine) {
		e.runner = r
	}
}

// WithClock sets the clock used for run and step timestamps.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clk = c
	}
}

// WithCommandTimeout sets the timeout applied to each shell command.
// Zero keeps the built-in default. Step timeouts bound the whole step
// independently of this value.
func WithCommandTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.cmdTimeout = d
	}
}

// WithFatalHandler sets the handler consulted when a fatal step fails.
// The interactive dialog is installed through this option; without it
// every fatal failure aborts the run.
func WithFatalHandler(h FatalHandler) EngineOption {
	return func(e *Engine) {
		e.fatalHandler = h
	}
}

// WithProgressCallback sets the callback receiving step lifecycle events.
func WithProgressCallback(cb ProgressCallback) EngineOption {
	return func(e *Engine) {
		e.progress = cb
	}
}

// WithLiveOutput streams command output to w as it is produced.
func WithLiveOutput(w io.Writer) EngineOption {
	return func(e *Engine) {
		e.liveOutput = w
	}
}

// WithVerifierFactory sets the factory for artifact verifiers.
// Used by tests to stub out filesystem checks.
func WithVerifierFactory(f VerifierFactory) EngineOption {
	return func(e *Engine) {
		e.newVerifier = f
	}
}

// NewEngine creates a run engine with the given store and logger.
// Optional EngineOption functions configure the runner, clock, fatal
// handler, progress callback, and live output.
func NewEngine(store Store, logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		runner: &command.DefaultRunner{},
		clk:    clock.RealClock{},
		logger: logger,
		newVerifier: func(projectDir string) ArtifactVerifier {
			return artifact.NewVerifier(projectDir)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOptions describes a single run request.
type RunOptions struct {
	// Pipeline is the pipeline to execute. Required.
	Pipeline *domain.Pipeline

	// ProjectDir is the project directory the pipeline operates on. Required.
	ProjectDir string

	// Publish enables steps gated on the publish flag.
	Publish bool

	// TraceID correlates logs and history records for this run.
	// Generated when empty.
	TraceID string

	// Git captures repository state to record on the run.
	Git *domain.GitInfo
}

// Execute creates and runs a new pipeline run.
//
// The run is persisted before the first step executes and checkpointed
// after every state change, so an interrupted run can be inspected.
// Even if execution fails partway through, the run is returned so the
// caller can inspect its state.
func (e *Engine) Execute(ctx context.Context, opts RunOptions) (*domain.Run, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if opts.Pipeline == nil {
		return nil, gantryerrors.ErrPipelineNil
	}
	if len(opts.Pipeline.Steps) == 0 {
		return nil, fmt.Errorf("pipeline '%s': %w", opts.Pipeline.Name, gantryerrors.ErrNoSteps)
	}

	projectDir, err := filepath.Abs(opts.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}
	if info, statErr := os.Stat(projectDir); statErr != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", gantryerrors.ErrProjectDirNotFound, projectDir)
	}

	traceID := opts.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}

	runID := e.generateRunID(ctx)

	run := domain.NewRun(runID, traceID, opts.Pipeline, projectDir, opts.Publish, e.clk.Now().UTC())
	run.Git = opts.Git

	e.logger.Info().
		Str("run_id", run.ID).
		Str("trace_id", run.TraceID).
		Str("pipeline", run.Pipeline).
		Str("project_dir", run.ProjectDir).
		Bool("publish", run.Publish).
		Msg("creating new run")

	// Transition to Running
	if err := ApplyTransition(ctx, run, constants.RunStatusRunning, "run started"); err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	// Create run in store (initial persistence)
	if err := e.store.Create(ctx, run); err != nil {
		if errors.Is(err, gantryerrors.ErrRunExists) {
			// Concurrent run in the same second; regenerate with ms suffix
			run.ID = GenerateRunIDUnique(map[string]bool{run.ID: true})
			err = e.store.Create(ctx, run)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save run: %w", err)
		}
	}

	e.appendRunLog(ctx, run, "run_started", "", "", "")

	// Inject logger with run context for command execution
	ctx = e.injectLoggerContext(ctx, run)

	if err := e.runSteps(ctx, run, opts.Pipeline); err != nil {
		// Run state is already saved; return error for caller to handle
		return run, err
	}

	return run, nil
}

// generateRunID produces a run ID unique among the stored runs.
func (e *Engine) generateRunID(ctx context.Context) string {
	existing := make(map[string]bool)
	if runs, err := e.store.List(ctx); err == nil {
		for _, r := range runs {
			existing[r.ID] = true
		}
	}
	return GenerateRunIDUnique(existing)
}

// runSteps executes pipeline steps in order, saving state after each.
// It checks for context cancellation between steps, skips steps whose
// conditions are not met, and resolves fatal failures through the
// fatal handler.
func (e *Engine) runSteps(ctx context.Context, run *domain.Run, p *domain.Pipeline) error {
	total := len(p.Steps)

	for run.CurrentStep < total {
		if ctx.Err() != nil {
			return e.abortInterrupted(ctx, run)
		}

		step := &p.Steps[run.CurrentStep]

		if skip, reason := e.shouldSkipStep(run, step); skip {
			if err := e.handleSkippedStep(ctx, run, step, total, reason); err != nil {
				return err
			}
			continue
		}

		e.markStepRunning(run)
		e.notifyStepStart(run, step, total)
		e.appendRunLog(ctx, run, "step_started", step.Name, "", "")

		// Checkpoint so observers see the step as running
		if err := e.store.Update(ctx, run); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}

		stepErr := e.executeStep(ctx, run, step)

		if stepErr != nil {
			if ctx.Err() != nil || errors.Is(stepErr, context.Canceled) {
				e.finishStep(run, constants.StepStatusFailed, stepErr)
				return e.abortInterrupted(ctx, run)
			}

			if !step.Fatal() {
				if err := e.handleAdvisoryFailure(ctx, run, step, total, stepErr); err != nil {
					return err
				}
				continue
			}

			retry, err := e.handleFatalFailure(ctx, run, step, total, stepErr)
			if err != nil {
				return err
			}
			if retry {
				continue // re-execute the same step without advancing
			}

			return e.abortRun(ctx, run, step, stepErr)
		}

		e.finishStep(run, constants.StepStatusSucceeded, nil)
		e.notifyStepComplete(run, step, total)
		e.appendRunLog(ctx, run, "step_completed", step.Name, string(constants.StepStatusSucceeded), "")

		if err := e.advanceToNextStep(ctx, run); err != nil {
			return err
		}
	}

	return e.completeRun(ctx, run)
}

// handleAdvisoryFailure records a warned step and advances the run.
func (e *Engine) handleAdvisoryFailure(ctx context.Context, run *domain.Run, step *domain.StepDefinition, totalSteps int, stepErr error) error {
	e.finishStep(run, constants.StepStatusWarned, stepErr)
	e.notifyStepComplete(run, step, totalSteps)
	e.appendRunLog(ctx, run, "step_completed", step.Name, string(constants.StepStatusWarned), stepErr.Error())

	e.logger.Warn().
		Err(stepErr).
		Str("run_id", run.ID).
		Str("step_name", step.Name).
		Msg("advisory step failed, continuing")

	return e.advanceToNextStep(ctx, run)
}

// handleFatalFailure records a failed step, persists it, and consults
// the fatal handler. Returns retry=true when the step should be
// re-executed.
func (e *Engine) handleFatalFailure(ctx context.Context, run *domain.Run, step *domain.StepDefinition, totalSteps int, stepErr error) (bool, error) {
	e.finishStep(run, constants.StepStatusFailed, stepErr)
	e.notifyStepComplete(run, step, totalSteps)
	e.appendRunLog(ctx, run, "step_completed", step.Name, string(constants.StepStatusFailed), stepErr.Error())

	// Persist the failed state before consulting the handler so
	// observers see the failure while the handler waits for input
	if err := e.store.Update(ctx, run); err != nil {
		return false, fmt.Errorf("failed to save error state: %w", err)
	}

	return e.decideFatal(ctx, run, step, stepErr) == DecisionRetry, nil
}

// shouldSkipStep evaluates the step's condition against the run.
func (e *Engine) shouldSkipStep(run *domain.Run, step *domain.StepDefinition) (bool, string) {
	return EvaluateStepCondition(step, run.ProjectDir, run.Publish)
}

// EvaluateStepCondition reports whether a step's condition excludes it
// from execution, and why. All set conditions must hold for the step
// to execute. Also used to predict skips for dry-run plans.
func EvaluateStepCondition(step *domain.StepDefinition, projectDir string, publish bool) (bool, string) {
	cond := step.OnlyIf
	if cond == nil {
		return false, ""
	}

	if cond.PublishFlag && !publish {
		return true, "publication not requested"
	}

	if cond.DirExists != "" {
		dir := cond.DirExists
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(projectDir, dir)
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return true, fmt.Sprintf("directory %s not present", cond.DirExists)
		}
	}

	return false, ""
}

// handleSkippedStep marks a step as skipped and advances to the next step.
func (e *Engine) handleSkippedStep(ctx context.Context, run *domain.Run, step *domain.StepDefinition, totalSteps int, reason string) error {
	e.logger.Info().
		Str("run_id", run.ID).
		Str("step_name", step.Name).
		Str("reason", reason).
		Msg("skipping step")

	now := e.clk.Now().UTC()
	sr := &run.Steps[run.CurrentStep]
	sr.Status = constants.StepStatusSkipped
	sr.StartedAt = &now
	sr.CompletedAt = &now
	sr.SkipReason = reason

	e.notifyStepSkipped(run, step, totalSteps, reason)
	e.appendRunLog(ctx, run, "step_skipped", step.Name, string(constants.StepStatusSkipped), "")

	return e.advanceToNextStep(ctx, run)
}

// markStepRunning transitions the current step to running and starts a
// new attempt, clearing results from a previous attempt.
func (e *Engine) markStepRunning(run *domain.Run) {
	now := e.clk.Now().UTC()
	sr := &run.Steps[run.CurrentStep]
	sr.Status = constants.StepStatusRunning
	sr.StartedAt = &now
	sr.CompletedAt = nil
	sr.Attempts++
	sr.Error = ""
	sr.Commands = nil
}

// finishStep records the outcome of the current step attempt.
func (e *Engine) finishStep(run *domain.Run, status constants.StepStatus, stepErr error) {
	now := e.clk.Now().UTC()
	sr := &run.Steps[run.CurrentStep]
	sr.Status = status
	sr.CompletedAt = &now
	if sr.StartedAt != nil {
		sr.Duration = now.Sub(*sr.StartedAt)
	}
	if stepErr != nil {
		sr.Error = stepErr.Error()
	}
}

// executeStep dispatches the current step by type and logs timing.
// A step with a timeout runs under its own deadline.
func (e *Engine) executeStep(ctx context.Context, run *domain.Run, step *domain.StepDefinition) error {
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	log := zerolog.Ctx(ctx)
	log.Info().
		Str("step_name", step.Name).
		Str("step_type", effectiveStepType(step).String()).
		Int("attempt", run.Steps[run.CurrentStep].Attempts).
		Msg("executing step")

	start := e.clk.Now()

	var err error
	if effectiveStepType(step) == domain.StepTypeVerify {
		err = e.executeVerifyStep(ctx, run, step)
	} else {
		err = e.executeRunStep(ctx, run, step)
	}

	duration := e.clk.Now().Sub(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("step_name", step.Name).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("step execution failed")
		return err
	}

	log.Info().
		Str("step_name", step.Name).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("step completed")

	return nil
}

// executeRunStep executes the step's shell commands.
func (e *Engine) executeRunStep(ctx context.Context, run *domain.Run, step *domain.StepDefinition) error {
	exec := command.NewExecutorWithRunner(e.cmdTimeout, e.runner)
	if e.liveOutput != nil {
		exec.SetLiveOutput(e.liveOutput)
	}

	var (
		results []domain.CommandResult
		err     error
	)
	if step.ContinueOnError {
		results, err = exec.RunAll(ctx, step.Commands, run.ProjectDir)
	} else {
		results, err = exec.Run(ctx, step.Commands, run.ProjectDir)
	}

	run.Steps[run.CurrentStep].Commands = results
	return err
}

// executeVerifyStep checks the step's expected artifacts on disk.
// Each artifact is recorded as a command result so reports display
// run and verify steps uniformly.
func (e *Engine) executeVerifyStep(ctx context.Context, run *domain.Run, step *domain.StepDefinition) error {
	verifier := e.newVerifier(run.ProjectDir)

	infos, err := verifier.Verify(ctx, step.Artifacts)
	if err != nil {
		return err
	}

	results := make([]domain.CommandResult, len(infos))
	for i, info := range infos {
		cr := domain.CommandResult{
			Command: "verify " + info.Path,
			Success: info.Exists,
		}
		if info.Exists {
			cr.Output = fmt.Sprintf("%d bytes sha256=%s", info.Size, info.SHA256)
		} else {
			cr.ExitCode = 1
			cr.Error = "not found"
		}
		results[i] = cr
	}
	run.Steps[run.CurrentStep].Commands = results

	return artifact.MissingError(infos)
}

// advanceToNextStep increments the step counter, updates timestamp, and
// saves a checkpoint.
func (e *Engine) advanceToNextStep(ctx context.Context, run *domain.Run) error {
	run.CurrentStep++
	run.UpdatedAt = e.clk.Now().UTC()

	// Save checkpoint
	if err := e.store.Update(ctx, run); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// abortRun transitions the run to Aborted after a fatal step failure.
func (e *Engine) abortRun(ctx context.Context, run *domain.Run, step *domain.StepDefinition, stepErr error) error {
	reason := fmt.Sprintf("step %s failed", step.Name)

	if err := ApplyTransition(ctx, run, constants.RunStatusAborted, reason); err != nil {
		return err
	}
	run.ExitCode = constants.ExitError

	e.appendRunLog(ctx, run, "run_aborted", step.Name, "", stepErr.Error())

	if err := e.store.Update(ctx, run); err != nil {
		return fmt.Errorf("failed to save aborted state: %w", err)
	}

	e.logger.Error().
		Err(stepErr).
		Str("run_id", run.ID).
		Str("step_name", step.Name).
		Msg("run aborted")

	return fmt.Errorf("%w: %s", gantryerrors.ErrStepFailed, step.Name)
}

// abortInterrupted transitions the run to Aborted after an interrupt.
// Persistence uses a detached context because the run context is
// already canceled.
func (e *Engine) abortInterrupted(ctx context.Context, run *domain.Run) error {
	pctx := context.WithoutCancel(ctx)

	e.logger.Warn().
		Str("run_id", run.ID).
		Int("current_step", run.CurrentStep).
		Msg("run interrupted")

	if err := ApplyTransition(pctx, run, constants.RunStatusAborted, "run interrupted"); err != nil {
		e.logger.Error().
			Err(err).
			Str("run_id", run.ID).
			Msg("failed to transition interrupted run")
	}
	run.ExitCode = constants.ExitError

	e.appendRunLog(pctx, run, "run_aborted", "", "", "run interrupted")

	if err := e.store.Update(pctx, run); err != nil {
		return fmt.Errorf("failed to save interrupted state: %w", err)
	}

	return gantryerrors.ErrInterrupted
}

// completeRun transitions the run to Completed and records exit code zero.
// Advisory failures and skipped steps do not prevent completion.
func (e *Engine) completeRun(ctx context.Context, run *domain.Run) error {
	if err := ApplyTransition(ctx, run, constants.RunStatusCompleted, "all steps processed"); err != nil {
		return err
	}
	run.ExitCode = constants.ExitSuccess

	e.appendRunLog(ctx, run, "run_completed", "", "", "")

	if err := e.store.Update(ctx, run); err != nil {
		return fmt.Errorf("failed to save completed state: %w", err)
	}

	warned := 0
	skipped := 0
	for _, sr := range run.Steps {
		if sr.Status == constants.StepStatusWarned {
			warned++
		}
		if sr.Status == constants.StepStatusSkipped {
			skipped++
		}
	}

	e.logger.Info().
		Str("run_id", run.ID).
		Int("steps", len(run.Steps)).
		Int("warned", warned).
		Int("skipped", skipped).
		Dur("duration", run.Duration()).
		Msg("run completed")

	return nil
}

// runLogEntry is one JSON line of the per-run log file.
type runLogEntry struct {
	Time   time.Time `json:"ts"`
	Event  string    `json:"event"`
	Step   string    `json:"step,omitempty"`
	Status string    `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// appendRunLog writes a structured event to the per-run log file.
// Failures are logged but never fail the run.
func (e *Engine) appendRunLog(ctx context.Context, run *domain.Run, event, stepName, status, errMsg string) {
	entry := runLogEntry{
		Time:   e.clk.Now().UTC(),
		Event:  event,
		Step:   stepName,
		Status: status,
		Error:  errMsg,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	if err := e.store.AppendLog(ctx, run.ID, data); err != nil {
		e.logger.Warn().
			Err(err).
			Str("run_id", run.ID).
			Msg("failed to append run log entry")
	}
}

// injectLoggerContext creates a context with an enriched logger containing
// run_id, trace_id, and pipeline fields. Command execution retrieves this
// logger using zerolog.Ctx(ctx) to include these fields in all log entries.
func (e *Engine) injectLoggerContext(ctx context.Context, run *domain.Run) context.Context {
	logger := e.logger.With().
		Str("run_id", run.ID).
		Str("trace_id", run.TraceID).
		Str("pipeline", run.Pipeline).
		Logger()
	return logger.WithContext(ctx)
}
