package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/domain"
	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// Executor runs the shell commands of a pipeline step.
type Executor struct {
	runner     Runner
	timeout    time.Duration
	liveOutput io.Writer // Optional: if set, streams command output in real-time
}

// NewExecutor creates an executor with the default command runner.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = constants.DefaultCommandTimeout
	}
	return &Executor{
		runner:  &DefaultRunner{},
		timeout: timeout,
	}
}

// NewExecutorWithRunner creates an executor with a custom runner (for testing).
func NewExecutorWithRunner(timeout time.Duration, runner Runner) *Executor {
	if timeout <= 0 {
		timeout = constants.DefaultCommandTimeout
	}
	return &Executor{
		runner:  runner,
		timeout: timeout,
	}
}

// SetLiveOutput configures the executor to stream command output in real-time.
// When set, stdout and stderr are written to w as they are produced.
func (e *Executor) SetLiveOutput(w io.Writer) {
	e.liveOutput = w
}

// Run executes commands sequentially, stopping on first failure.
// Returns all collected results and an error if any command failed.
func (e *Executor) Run(ctx context.Context, commands []string, workDir string) ([]domain.CommandResult, error) {
	results := make([]domain.CommandResult, 0, len(commands))
	total := len(commands)

	for i, cmd := range commands {
		// Check for context cancellation between commands
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		result, err := e.runSingle(ctx, cmd, workDir, i+1, total)
		if result != nil {
			results = append(results, *result)
		}

		if err != nil {
			return results, err
		}
	}

	return results, nil
}

// RunAll executes every command even when earlier ones fail, collecting
// all results. The returned error reflects the first failure, so callers
// can report the step as failed while still having attempted everything.
func (e *Executor) RunAll(ctx context.Context, commands []string, workDir string) ([]domain.CommandResult, error) {
	results := make([]domain.CommandResult, 0, len(commands))
	total := len(commands)

	var firstErr error
	for i, cmd := range commands {
		select {
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			return results, firstErr
		default:
		}

		result, err := e.runSingle(ctx, cmd, workDir, i+1, total)
		if result != nil {
			results = append(results, *result)
		}

		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return results, firstErr
}

// RunSingle executes a single command with timeout handling.
func (e *Executor) RunSingle(ctx context.Context, command, workDir string) (*domain.CommandResult, error) {
	return e.runSingle(ctx, command, workDir, 0, 0)
}

// runSingle executes a single command with position context for logging.
func (e *Executor) runSingle(ctx context.Context, command, workDir string, cmdNum, totalCmds int) (*domain.CommandResult, error) {
	log := zerolog.Ctx(ctx)

	// Pre-flight check: verify workDir exists
	if result, err := e.validateWorkDir(command, workDir, log); err != nil {
		return result, err
	}

	startTime := time.Now()
	e.logCommandStart(log, command, workDir, cmdNum, totalCmds)

	// Execute command with timeout
	cmdCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	stdout, stderr, exitCode, runErr := e.executeCommand(cmdCtx, command, workDir)

	duration := time.Since(startTime)
	result := buildResult(command, stdout, stderr, exitCode, duration)

	return e.handleCommandOutcome(ctx, cmdCtx, result, command, exitCode, duration, runErr, log)
}

// validateWorkDir checks if the work directory exists before running a command.
func (e *Executor) validateWorkDir(command, workDir string, log *zerolog.Logger) (*domain.CommandResult, error) {
	if workDir == "" {
		return nil, nil //nolint:nilnil // No validation needed when workDir is empty
	}

	if _, err := os.Stat(workDir); os.IsNotExist(err) {
		log.Error().
			Str("work_dir", workDir).
			Str("command", command).
			Msg("work directory missing before command")
		return &domain.CommandResult{
				Command: command,
				Success: false,
				Error:   fmt.Sprintf("work directory missing: %s", workDir),
			}, fmt.Errorf("work directory missing: %s: %w",
				workDir, gantryerrors.ErrProjectDirNotFound)
	}

	return nil, nil //nolint:nilnil // Validation passed, no result or error needed
}

// logCommandStart logs the start of a command with position context.
func (e *Executor) logCommandStart(log *zerolog.Logger, command, workDir string, cmdNum, totalCmds int) {
	logEvent := log.Info().
		Str("command", command).
		Str("work_dir", workDir)

	if cmdNum > 0 && totalCmds > 0 {
		logEvent = logEvent.Int("command_num", cmdNum).Int("total_commands", totalCmds)
	}

	logEvent.Msg("executing command")
}

// executeCommand runs the command and returns raw output.
func (e *Executor) executeCommand(ctx context.Context, command, workDir string) (stdout, stderr string, exitCode int, runErr error) {
	if e.liveOutput != nil {
		if liveRunner, ok := e.runner.(LiveOutputRunner); ok {
			return liveRunner.RunWithLiveOutput(ctx, workDir, command, e.liveOutput)
		}
	}

	return e.runner.Run(ctx, workDir, command)
}

// buildResult constructs a CommandResult from command execution data.
// Stdout and stderr are combined so run records show output the way a
// terminal would.
func buildResult(command, stdout, stderr string, exitCode int, duration time.Duration) *domain.CommandResult {
	output := stdout
	if stderr != "" {
		if output != "" && !strings.HasSuffix(output, "\n") {
			output += "\n"
		}
		output += stderr
	}

	return &domain.CommandResult{
		Command:  command,
		ExitCode: exitCode,
		Output:   output,
		Duration: duration,
	}
}

// handleCommandOutcome processes the result and determines success/failure.
func (e *Executor) handleCommandOutcome(ctx, cmdCtx context.Context, result *domain.CommandResult, command string, exitCode int, duration time.Duration, runErr error, log *zerolog.Logger) (*domain.CommandResult, error) {
	// Check for timeout
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		result.Success = false
		result.Error = "command timed out"

		log.Error().
			Str("command", command).
			Dur("duration_ms", duration).
			Str("output", result.Output).
			Msg("command timed out")

		return result, gantryerrors.ErrCommandTimeout
	}

	// Check for context cancellation (from parent context)
	if ctx.Err() != nil {
		result.Success = false
		result.Error = "context canceled"
		return result, ctx.Err()
	}

	// Check for command failure
	if runErr != nil || exitCode != 0 {
		result.Success = false
		if runErr != nil {
			result.Error = runErr.Error()
		} else {
			result.Error = fmt.Sprintf("exit code %d", exitCode)
		}

		log.Error().
			Str("command", command).
			Int("exit_code", exitCode).
			Dur("duration_ms", duration).
			Msg("command failed")

		return result, fmt.Errorf("%w: %s", gantryerrors.ErrCommandFailed, command)
	}

	// Success
	result.Success = true

	log.Info().
		Str("command", command).
		Int("exit_code", exitCode).
		Dur("duration_ms", duration).
		Msg("command completed")

	return result, nil
}
