// Package command provides shell command execution for pipeline steps.
//
// SECURITY NOTE: The commands executed by this package come from built-in
// pipelines or from project configuration files (.gantry/pipelines/*.yaml)
// and the user's global config (~/.gantry/config.yaml). These are treated
// as trusted input because:
//   - Pipeline files are committed to the repository (anyone who can modify
//     them already has repository write access and could add arbitrary scripts)
//   - Global configs are in the user's home directory (same trust level as .bashrc)
//
// This is the same trust model as Makefiles, npm scripts, or CI/CD configurations.
// The sh -c invocation is intentional to support shell features (pipes, redirects,
// etc.) commonly used in build commands like "./gradlew test | tee results.txt".
package command

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
)

// Runner defines the interface for executing shell commands.
// This allows for testing by injecting mock implementations.
type Runner interface {
	// Run executes a shell command and returns its output.
	Run(ctx context.Context, workDir, command string) (stdout, stderr string, exitCode int, err error)
}

// LiveOutputRunner defines a command runner that supports live output streaming.
type LiveOutputRunner interface {
	Runner
	// RunWithLiveOutput executes a command and streams output to the writer while also capturing it.
	RunWithLiveOutput(ctx context.Context, workDir, command string, liveOut io.Writer) (stdout, stderr string, exitCode int, err error)
}

// DefaultRunner implements Runner and LiveOutputRunner using os/exec.
type DefaultRunner struct{}

// Run executes a shell command using sh -c.
func (r *DefaultRunner) Run(ctx context.Context, workDir, command string) (stdout, stderr string, exitCode int, err error) {
	return r.runCommand(ctx, workDir, command, nil)
}

// RunWithLiveOutput executes a command and streams output to liveOut while also capturing it.
func (r *DefaultRunner) RunWithLiveOutput(ctx context.Context, workDir, command string, liveOut io.Writer) (stdout, stderr string, exitCode int, err error) {
	return r.runCommand(ctx, workDir, command, liveOut)
}

// runCommand executes a shell command with optional live output streaming.
// If liveOut is non-nil, output is streamed to it while also being captured.
func (r *DefaultRunner) runCommand(ctx context.Context, workDir, command string, liveOut io.Writer) (stdout, stderr string, exitCode int, err error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workDir

	var outBuf, errBuf bytes.Buffer
	if liveOut != nil {
		cmd.Stdout = io.MultiWriter(&outBuf, liveOut)
		cmd.Stderr = io.MultiWriter(&errBuf, liveOut)
	} else {
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf
	}

	err = cmd.Run()
	stdout = outBuf.String()
	stderr = errBuf.String()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
	}

	return stdout, stderr, exitCode, err
}

// Ensure DefaultRunner implements Runner and LiveOutputRunner.
var (
	_ Runner           = (*DefaultRunner)(nil)
	_ LiveOutputRunner = (*DefaultRunner)(nil)
)
