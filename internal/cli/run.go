package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gantrybuild/gantry/internal/config"
	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/domain"
	"github.com/gantrybuild/gantry/internal/engine"
	"github.com/gantrybuild/gantry/internal/errors"
	"github.com/gantrybuild/gantry/internal/flock"
	"github.com/gantrybuild/gantry/internal/gitmeta"
	"github.com/gantrybuild/gantry/internal/history"
	"github.com/gantrybuild/gantry/internal/pipeline"
	"github.com/gantrybuild/gantry/internal/signal"
	"github.com/gantrybuild/gantry/internal/tui"
)

// AddRunCommand adds the run command to the root command.
func AddRunCommand(root *cobra.Command) {
	root.AddCommand(newRunCmd())
}

// runOptions contains all options for the run command.
type runOptions struct {
	publish   bool
	envFile   string
	noInput   bool
	dryRun    bool
	noHistory bool
}

// newRunCmd creates the run command.
func newRunCmd() *cobra.Command {
	var (
		publish   bool
		envFile   string
		noInput   bool
		dryRun    bool
		noHistory bool
	)

	cmd := &cobra.Command{
		Use:   "run [pipeline]",
		Short: "Execute a pipeline against the current project",
		Long: `Execute a pipeline against the project in the current directory.

Without a pipeline name the built-in release pipeline runs, taking the
project from a clean build through tests, artifact verification, and
optional publication. Pipeline files in .gantry/pipelines/ extend or
replace the built-in pipelines.

Examples:
  gantry run
  gantry run --publish
  gantry run --dry-run
  gantry run nightly --env-file .env.ci
  gantry run --no-input --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := constants.DefaultPipelineName
			if len(args) > 0 {
				name = args[0]
			}
			return runRun(cmd.Context(), cmd, cmd.OutOrStdout(), name, runOptions{
				publish:   publish,
				envFile:   envFile,
				noInput:   noInput,
				dryRun:    dryRun,
				noHistory: noHistory,
			})
		},
	}

	cmd.Flags().BoolVar(&publish, "publish", false,
		"Enable publication steps (upload and post-publish verification)")
	cmd.Flags().StringVar(&envFile, "env-file", "",
		"Dotenv file loaded into the environment before the pipeline starts")
	cmd.Flags().BoolVar(&noInput, "no-input", false,
		"Disable interactive prompts; fatal step failures abort the run")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"Show the execution plan without running any step")
	cmd.Flags().BoolVar(&noHistory, "no-history", false,
		"Skip recording this run in the history database")

	return cmd
}

// runContext holds shared state for the run command execution.
type runContext struct {
	w            io.Writer
	out          tui.Output
	outputFormat string
	logger       zerolog.Logger
}

// runRun executes the run command.
func runRun(ctx context.Context, cmd *cobra.Command, w io.Writer, name string, opts runOptions) error {
	// Check context cancellation at entry
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Create signal handler for graceful shutdown on Ctrl+C
	sigHandler := signal.NewHandler(ctx)
	defer sigHandler.Stop()
	ctx = sigHandler.Context()

	logger := GetLogger()
	outputFormat := cmd.Flag("output").Value.String()
	verbose := cmd.Flag("verbose").Value.String() == "true"
	quiet := cmd.Flag("quiet").Value.String() == "true"

	// Respect NO_COLOR environment variable
	tui.CheckNoColor()

	out := tui.NewOutput(w, outputFormat)
	rc := &runContext{
		w:            w,
		out:          out,
		outputFormat: outputFormat,
		logger:       logger,
	}

	cfg, err := loadRunConfig(ctx, cmd, opts)
	if err != nil {
		return rc.handleError(err)
	}

	projectDir, err := os.Getwd()
	if err != nil {
		return rc.handleError(fmt.Errorf("failed to determine working directory: %w", err))
	}

	if err = applyRunEnvFile(cfg, projectDir); err != nil {
		return rc.handleError(err)
	}

	p, err := resolveRunPipeline(cfg, projectDir, name)
	if err != nil {
		return rc.handleError(err)
	}

	// Handle dry-run mode early
	if opts.dryRun {
		return displayRunPlan(rc, p, projectDir, opts.publish)
	}

	if err = checkPrerequisites(ctx, projectDir, cfg.Build.Wrapper); err != nil {
		return rc.handleError(err)
	}

	return executePipeline(ctx, rc, sigHandler, cfg, p, projectDir, verbose, quiet, opts) //nolint:contextcheck // context is properly checked and used
}

// handleError handles errors based on output format.
func (rc *runContext) handleError(err error) error {
	if rc.outputFormat == OutputJSON {
		rc.out.Error(err)
	}
	return err
}

// loadRunConfig loads configuration with run command flag overrides applied.
func loadRunConfig(ctx context.Context, cmd *cobra.Command, opts runOptions) (*config.Config, error) {
	overrides := &config.Config{}
	if opts.envFile != "" {
		overrides.Run.EnvFile = opts.envFile
	}

	cfg, err := config.LoadWithOverrides(ctx, overrides)
	if err != nil {
		return nil, err
	}

	// A bool override cannot express "force off", so the flag is
	// applied only when the user set it.
	if opts.noHistory || cmd.Flags().Changed("no-history") {
		cfg.History.Enabled = false
	}

	return cfg, nil
}

// applyRunEnvFile loads the configured dotenv file, if any, into the
// process environment so pipeline commands inherit it.
func applyRunEnvFile(cfg *config.Config, projectDir string) error {
	path := cfg.Run.EnvFile
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectDir, path)
	}
	return config.ApplyEnvFile(path)
}

// buildPipelineRegistry assembles the registry of built-in pipelines
// and overlays any pipeline files found in the project.
func buildPipelineRegistry(cfg *config.Config, projectDir string) (*pipeline.Registry, error) {
	settings := pipeline.ReleaseSettings{
		Wrapper:            cfg.Build.Wrapper,
		SDKModule:          cfg.Build.SDKModule,
		AppModule:          cfg.Build.AppModule,
		DebugArtifact:      cfg.Build.Artifacts.Debug,
		ReleaseArtifact:    cfg.Build.Artifacts.Release,
		LibraryArtifact:    cfg.Build.Artifacts.Library,
		IntegrationTestDir: cfg.Build.IntegrationTestDir,
	}
	registry := pipeline.NewDefaultRegistry(settings)

	loader := pipeline.NewLoader(filepath.Join(projectDir, constants.GantryHome))
	loaded, err := loader.LoadDir(cfg.Run.PipelinesDir)
	if err != nil {
		return nil, err
	}
	for _, lp := range loaded {
		if err = registry.RegisterOrReplace(lp); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// resolveRunPipeline returns the requested pipeline with default step
// timeouts filled in.
func resolveRunPipeline(cfg *config.Config, projectDir, name string) (*domain.Pipeline, error) {
	registry, err := buildPipelineRegistry(cfg, projectDir)
	if err != nil {
		return nil, err
	}

	p, err := registry.Get(name)
	if err != nil {
		return nil, err
	}

	for i := range p.Steps {
		if p.Steps[i].Timeout == 0 {
			p.Steps[i].Timeout = cfg.Run.StepTimeout
		}
	}

	return p, nil
}

// checkPrerequisites verifies the required build tools are available
// before any step runs.
func checkPrerequisites(ctx context.Context, projectDir, wrapper string) error {
	tools, err := config.NewToolDetector(projectDir, wrapper).Detect(ctx)
	if err != nil {
		return fmt.Errorf("failed to detect build tools: %w", err)
	}

	missing := config.MissingRequiredTools(tools)
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w\n%s", errors.ErrMissingPrerequisite, config.FormatMissingToolsError(missing))
}

// executePipeline acquires the project lock, wires up the engine, and
// runs the pipeline to completion.
func executePipeline(ctx context.Context, rc *runContext, sigHandler *signal.Handler, cfg *config.Config, p *domain.Pipeline, projectDir string, verbose, quiet bool, opts runOptions) error {
	lock, err := acquireRunLock(projectDir)
	if err != nil {
		return rc.handleError(err)
	}
	defer releaseRunLock(lock)

	home, err := config.GantryHome()
	if err != nil {
		return rc.handleError(err)
	}
	store, err := engine.NewFileStore(home)
	if err != nil {
		return rc.handleError(fmt.Errorf("failed to open run store: %w", err))
	}

	// Re-initialize the logger so run-scoped log lines are also
	// persisted next to the run's checkpoint file.
	logger := InitLoggerWithRunStore(verbose, quiet, store)
	rc.logger = logger

	sp := newRunSpinner(rc.w, rc.outputFormat)

	engOpts := []engine.EngineOption{
		engine.WithCommandTimeout(cfg.Run.CommandTimeout),
	}
	// JSON mode stays silent during execution: the final response
	// document carries every step outcome.
	if rc.outputFormat != OutputJSON {
		static := !tui.IsInteractive()
		engOpts = append(engOpts, engine.WithProgressCallback(createRunProgressCallback(ctx, sp, rc.out, static)))
		if tui.IsInteractive() && !opts.noInput {
			engOpts = append(engOpts, engine.WithFatalHandler(createRunFatalHandler(sp, rc.out)))
		}
		if verbose {
			engOpts = append(engOpts, engine.WithLiveOutput(liveOutputWriter(sp, rc.w)))
		}
	}

	eng := engine.NewEngine(store, logger, engOpts...)

	hs := openHistoryStore(home, cfg, logger)
	if hs != nil {
		defer func() { _ = hs.Close() }()
	}

	git := snapshotGit(projectDir, logger)

	run, runErr := eng.Execute(ctx, engine.RunOptions{
		Pipeline:   p,
		ProjectDir: projectDir,
		Publish:    opts.publish,
		Git:        git,
	})

	recordRunHistory(ctx, hs, run, logger) //nolint:contextcheck // context is properly checked and used

	// Drain a pending interrupt so the summary is not racing the
	// signal handler's context cancellation.
	select {
	case <-sigHandler.Interrupted():
	default:
	}

	if derr := displayRunSummary(rc, run, runErr); derr != nil && runErr == nil {
		return derr
	}
	return runErr
}

// acquireRunLock takes the project-level run lock. A held lock means
// another gantry process is already running a pipeline here.
func acquireRunLock(projectDir string) (*os.File, error) {
	gantryDir := filepath.Join(projectDir, constants.GantryHome)
	if err := os.MkdirAll(gantryDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", constants.GantryHome, err)
	}

	path := filepath.Join(gantryDir, constants.RunLockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // path is derived from the project directory
	if err != nil {
		return nil, fmt.Errorf("failed to open run lock: %w", err)
	}

	if err = flock.Exclusive(f.Fd()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w in %s", errors.ErrRunInProgress, projectDir)
	}
	return f, nil
}

// releaseRunLock releases and closes the project run lock.
func releaseRunLock(f *os.File) {
	_ = flock.Unlock(f.Fd())
	_ = f.Close()
}

// newRunSpinner picks the progress display: an animated spinner on an
// interactive terminal, otherwise a no-op with plain log lines.
func newRunSpinner(w io.Writer, outputFormat string) tui.Spinner {
	if outputFormat == OutputJSON || !tui.IsInteractive() {
		return tui.NewNoopSpinner()
	}
	return tui.NewTerminalSpinner(w)
}

// liveOutputWriter returns the writer verbose command output streams
// to. The spinner's writer keeps output from tearing the animation.
func liveOutputWriter(sp tui.Spinner, w io.Writer) io.Writer {
	if ts, ok := sp.(*tui.TerminalSpinner); ok {
		return ts.Writer()
	}
	return w
}

// createRunProgressCallback creates the progress callback for UI feedback.
func createRunProgressCallback(ctx context.Context, sp tui.Spinner, out tui.Output, static bool) engine.ProgressCallback {
	return func(event engine.StepProgressEvent) {
		switch event.Type {
		case "start":
			handleStepStart(ctx, sp, out, static, event)
		case "complete":
			handleStepComplete(sp, out, static, event)
		case "skip":
			handleStepSkip(out, event)
		}
	}
}

// handleStepStart announces a step beginning execution.
func handleStepStart(ctx context.Context, sp tui.Spinner, out tui.Output, static bool, event engine.StepProgressEvent) {
	message := tui.FormatStepWithName(event.StepIndex+1, event.TotalSteps, event.StepName)
	if event.Attempt > 1 {
		message = fmt.Sprintf("%s (attempt %d)", message, event.Attempt)
	}
	if static {
		out.Info(message + "...")
		return
	}
	sp.Start(ctx, message)
}

// handleStepComplete reports a finished step with its outcome and timing.
func handleStepComplete(sp tui.Spinner, out tui.Output, static bool, event engine.StepProgressEvent) {
	message := fmt.Sprintf("%s (%s)",
		tui.FormatStepWithName(event.StepIndex+1, event.TotalSteps, event.StepName),
		tui.FormatDuration(event.Duration))

	switch event.Status {
	case constants.StepStatusSucceeded:
		if static {
			out.Success(message)
		} else {
			sp.StopWithSuccess(message)
		}
	case constants.StepStatusWarned:
		if static {
			out.Warning(message)
		} else {
			sp.StopWithWarning(message)
		}
	default:
		if static {
			out.Error(stderrors.New(message))
		} else {
			sp.StopWithError(message)
		}
	}
}

// handleStepSkip reports a step excluded by its condition. Skipped
// steps never start, so there is no spinner to stop.
func handleStepSkip(out tui.Output, event engine.StepProgressEvent) {
	message := fmt.Sprintf("%s %s skipped",
		tui.FormatStepCounter(event.StepIndex+1, event.TotalSteps), event.StepName)
	if event.SkipReason != "" {
		message = fmt.Sprintf("%s: %s", message, event.SkipReason)
	}
	out.Info(message)
}

// createRunFatalHandler creates the interactive retry dialog shown when
// a fatal step fails.
func createRunFatalHandler(sp tui.Spinner, out tui.Output) engine.FatalHandler {
	return func(_ context.Context, _ *domain.Run, step *domain.StepDefinition, stepErr error) engine.Decision {
		sp.Stop()

		message, action := errors.Actionable(stepErr)
		body := fmt.Sprintf("Step %q failed: %s", step.Name, message)
		if action != "" {
			body += "\n\n" + action
		}

		decision := engine.DecisionAbort
		dialog := tui.RetryDialog(body, nil, func() {
			decision = engine.DecisionRetry
		})
		if err := dialog.Run(); err != nil {
			out.Warning("dialog failed, aborting run")
			return engine.DecisionAbort
		}
		return decision
	}
}

// openHistoryStore opens the run history database when history is
// enabled. Failures degrade to a warning: history is an index, not a
// requirement for running pipelines.
func openHistoryStore(home string, cfg *config.Config, logger zerolog.Logger) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	hs, err := history.NewStore(filepath.Join(home, constants.HistoryDBFileName))
	if err != nil {
		logger.Warn().Err(err).Msg("run history unavailable")
		return nil
	}
	return hs
}

// recordRunHistory indexes the finished run. Best effort: a failure
// here never fails the run itself.
func recordRunHistory(ctx context.Context, hs *history.Store, run *domain.Run, logger zerolog.Logger) {
	if hs == nil || run == nil {
		return
	}
	if err := hs.Record(ctx, run); err != nil {
		logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record run in history")
	}
}

// snapshotGit captures repository state for the run record. Projects
// outside a git repository simply run without git metadata.
func snapshotGit(projectDir string, logger zerolog.Logger) *domain.GitInfo {
	info, err := gitmeta.Snapshot(projectDir)
	if err != nil {
		logger.Debug().Err(err).Msg("git metadata unavailable")
		return nil
	}
	return info
}

// displayRunPlan shows the execution plan without running anything.
func displayRunPlan(rc *runContext, p *domain.Pipeline, projectDir string, publish bool) error {
	if rc.outputFormat == OutputJSON {
		return rc.out.JSON(buildRunPlanResponse(p, projectDir, publish))
	}

	rc.out.Info(fmt.Sprintf("Pipeline: %s", p.Name))
	if p.Description != "" {
		rc.out.Info(p.Description)
	}
	rc.out.Info("")

	for i := range p.Steps {
		step := &p.Steps[i]
		line := fmt.Sprintf("  %s %s", tui.FormatStepCounter(i+1, len(p.Steps)), step.Name)
		if skip, reason := engine.EvaluateStepCondition(step, projectDir, publish); skip {
			line = fmt.Sprintf("%s  (skip: %s)", line, reason)
		}
		rc.out.Info(line)
	}

	rc.out.Info("")
	rc.out.Info("Dry run only. Re-run without --dry-run to execute.")
	return nil
}

// buildRunPlanResponse builds the JSON representation of a dry-run plan.
func buildRunPlanResponse(p *domain.Pipeline, projectDir string, publish bool) runPlanResponse {
	resp := runPlanResponse{
		Pipeline:    p.Name,
		Description: p.Description,
		Publish:     publish,
		Steps:       make([]runPlanStep, 0, len(p.Steps)),
	}
	for i := range p.Steps {
		step := &p.Steps[i]
		typ := step.Type
		if typ == "" {
			typ = domain.StepTypeRun
		}
		ps := runPlanStep{
			Name:   step.Name,
			Type:   typ.String(),
			Fatal:  step.Fatal(),
			Action: "run",
		}
		if skip, reason := engine.EvaluateStepCondition(step, projectDir, publish); skip {
			ps.Action = "skip"
			ps.SkipReason = reason
		}
		resp.Steps = append(resp.Steps, ps)
	}
	return resp
}

// displayRunSummary reports the run outcome in the requested format.
func displayRunSummary(rc *runContext, run *domain.Run, runErr error) error {
	if rc.outputFormat == OutputJSON {
		if run == nil {
			rc.out.Error(runErr)
			return nil
		}
		return rc.out.JSON(buildRunResponse(run, runErr))
	}

	if run == nil {
		return nil
	}

	rc.out.Info("")
	duration := runDuration(run)

	switch {
	case runErr == nil:
		rc.out.Success(fmt.Sprintf("Run %s completed in %s", run.ID, tui.FormatDuration(duration)))
	case stderrors.Is(runErr, errors.ErrInterrupted):
		rc.out.Warning(fmt.Sprintf("Run %s interrupted at step %d/%d",
			run.ID, run.CurrentStep+1, len(run.Steps)))
	default:
		rc.out.Error(fmt.Errorf("run %s failed after %s", run.ID, tui.FormatDuration(duration)))
	}

	succeeded, warned, skipped := countStepOutcomes(run)
	rc.out.Info(fmt.Sprintf("  %d succeeded, %d warned, %d skipped of %d steps",
		succeeded, warned, skipped, len(run.Steps)))
	rc.out.Info(fmt.Sprintf("  Report: gantry report %s", run.ID))
	return nil
}

// runDuration returns the wall-clock duration of a run, falling back to
// zero when the run never completed.
func runDuration(run *domain.Run) time.Duration {
	if run.CompletedAt != nil {
		return run.CompletedAt.Sub(run.CreatedAt)
	}
	return run.UpdatedAt.Sub(run.CreatedAt)
}

// countStepOutcomes tallies per-step results for the summary line.
func countStepOutcomes(run *domain.Run) (succeeded, warned, skipped int) {
	for i := range run.Steps {
		switch run.Steps[i].Status {
		case constants.StepStatusSucceeded:
			succeeded++
		case constants.StepStatusWarned:
			warned++
		case constants.StepStatusSkipped:
			skipped++
		}
	}
	return succeeded, warned, skipped
}

// buildRunResponse builds the JSON representation of a finished run.
func buildRunResponse(run *domain.Run, runErr error) runResponse {
	resp := runResponse{
		RunID:    run.ID,
		TraceID:  run.TraceID,
		Pipeline: run.Pipeline,
		Status:   string(run.Status),
		ExitCode: run.ExitCode,
		Publish:  run.Publish,
		Steps:    make([]runStepInfo, 0, len(run.Steps)),
	}
	if run.CompletedAt != nil {
		resp.Duration = runDuration(run).String()
	}
	if runErr != nil {
		resp.Error = runErr.Error()
	}
	for i := range run.Steps {
		sr := &run.Steps[i]
		si := runStepInfo{
			Name:       sr.Name,
			Status:     string(sr.Status),
			Attempts:   sr.Attempts,
			SkipReason: sr.SkipReason,
			Error:      sr.Error,
		}
		if sr.Duration > 0 {
			si.Duration = sr.Duration.String()
		}
		resp.Steps = append(resp.Steps, si)
	}
	return resp
}

// runResponse represents the JSON output for run operations.
type runResponse struct {
	RunID    string        `json:"run_id"`
	TraceID  string        `json:"trace_id,omitempty"`
	Pipeline string        `json:"pipeline"`
	Status   string        `json:"status"`
	ExitCode int           `json:"exit_code"`
	Publish  bool          `json:"publish"`
	Duration string        `json:"duration,omitempty"`
	Steps    []runStepInfo `json:"steps"`
	Error    string        `json:"error,omitempty"`
}

// runStepInfo contains per-step details for JSON output.
type runStepInfo struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Duration   string `json:"duration,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// runPlanResponse represents the JSON output for dry-run plans.
type runPlanResponse struct {
	Pipeline    string        `json:"pipeline"`
	Description string        `json:"description,omitempty"`
	Publish     bool          `json:"publish"`
	Steps       []runPlanStep `json:"steps"`
}

// runPlanStep describes one planned step in a dry-run.
type runPlanStep struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Fatal      bool   `json:"fatal"`
	Action     string `json:"action"`
	SkipReason string `json:"skip_reason,omitempty"`
}
