// Package report builds human-readable reports from run records.
package report

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/domain"
)

var (
	termRenderer     *glamour.TermRenderer //nolint:gochecknoglobals // cached renderer for performance
	termRendererOnce sync.Once             //nolint:gochecknoglobals // sync.Once for renderer initialization
)

// renderer returns the cached glamour renderer, initialized once and
// reused across all calls.
func renderer() *glamour.TermRenderer {
	termRendererOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err == nil {
			termRenderer = r
		}
	})
	return termRenderer
}

// Render renders markdown for the terminal. When no renderer can be
// constructed the raw markdown is returned unchanged.
func Render(markdown string) string {
	if r := renderer(); r != nil {
		if rendered, err := r.Render(markdown); err == nil {
			return rendered
		}
	}
	return markdown
}

// Markdown builds the markdown report for a run: header, step table,
// artifact checks, warnings, and failure details.
func Markdown(run *domain.Run) string {
	if run == nil {
		return ""
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Run %s\n\n", run.ID))
	writeHeader(&sb, run)
	writeStepTable(&sb, run)
	writeArtifacts(&sb, run)
	writeSkipped(&sb, run)
	writeWarnings(&sb, run)
	writeFailure(&sb, run)

	return sb.String()
}

func writeHeader(sb *strings.Builder, run *domain.Run) {
	sb.WriteString(fmt.Sprintf("**Pipeline:** %s  \n", run.Pipeline))
	sb.WriteString(fmt.Sprintf("**Status:** %s  \n", statusLabel(run.Status)))
	sb.WriteString(fmt.Sprintf("**Started:** %s  \n", run.CreatedAt.Format("2006-01-02 15:04:05 MST")))

	if d := run.Duration(); d > 0 {
		sb.WriteString(fmt.Sprintf("**Duration:** %s  \n", formatDuration(d)))
	}

	if run.Publish {
		sb.WriteString("**Publish:** requested  \n")
	}

	if run.Git != nil {
		line := fmt.Sprintf("**Git:** %s @ %s", run.Git.Branch, run.Git.ShortCommit())
		if run.Git.Dirty {
			line += " (dirty)"
		}
		sb.WriteString(line + "  \n")
	}

	sb.WriteString("\n")
}

func writeStepTable(sb *strings.Builder, run *domain.Run) {
	if len(run.Steps) == 0 {
		return
	}

	caser := cases.Title(language.English)

	sb.WriteString("## Steps\n\n")
	sb.WriteString("| # | Step | Status | Attempts | Duration |\n")
	sb.WriteString("|---|------|--------|----------|----------|\n")

	for i, step := range run.Steps {
		name := caser.String(strings.ReplaceAll(step.Name, "-", " "))
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			i+1, name, stepLabel(step.Status), formatAttempts(step.Attempts), formatDuration(step.Duration)))
	}

	sb.WriteString("\n")
}

// writeArtifacts lists the recorded artifact checks, identified by
// their "verify " command entries.
func writeArtifacts(sb *strings.Builder, run *domain.Run) {
	var checks []domain.CommandResult
	for _, step := range run.Steps {
		for _, cmd := range step.Commands {
			if strings.HasPrefix(cmd.Command, "verify ") {
				checks = append(checks, cmd)
			}
		}
	}
	if len(checks) == 0 {
		return
	}

	sb.WriteString("## Artifacts\n\n")
	for _, check := range checks {
		path := strings.TrimPrefix(check.Command, "verify ")
		if check.Success {
			sb.WriteString(fmt.Sprintf("- `%s` (%s)\n", path, check.Output))
		} else {
			sb.WriteString(fmt.Sprintf("- `%s` MISSING\n", path))
		}
	}
	sb.WriteString("\n")
}

func writeSkipped(sb *strings.Builder, run *domain.Run) {
	var skipped []domain.StepResult
	for _, step := range run.Steps {
		if step.Status == constants.StepStatusSkipped {
			skipped = append(skipped, step)
		}
	}
	if len(skipped) == 0 {
		return
	}

	sb.WriteString("## Skipped\n\n")
	for _, step := range skipped {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", step.Name, step.SkipReason))
	}
	sb.WriteString("\n")
}

func writeWarnings(sb *strings.Builder, run *domain.Run) {
	var warned []domain.StepResult
	for _, step := range run.Steps {
		if step.Status == constants.StepStatusWarned {
			warned = append(warned, step)
		}
	}
	if len(warned) == 0 {
		return
	}

	sb.WriteString("## Warnings\n\n")
	for _, step := range warned {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", step.Name, step.Error))
	}
	sb.WriteString("\n")
}

// writeFailure shows the failed step and the tail of its last command
// output. The full output lives in the run log.
func writeFailure(sb *strings.Builder, run *domain.Run) {
	if run.Status != constants.RunStatusAborted {
		return
	}

	var failed *domain.StepResult
	for i := range run.Steps {
		if run.Steps[i].Status == constants.StepStatusFailed {
			failed = &run.Steps[i]
			break
		}
	}
	if failed == nil {
		return
	}

	sb.WriteString("## Failure\n\n")
	sb.WriteString(fmt.Sprintf("Step `%s` failed: %s\n", failed.Name, failed.Error))

	if len(failed.Commands) > 0 {
		last := failed.Commands[len(failed.Commands)-1]
		if last.Output != "" {
			sb.WriteString(fmt.Sprintf("\n```\n%s\n```\n", tailLines(last.Output, 20)))
		}
	}
	sb.WriteString("\n")
}

func statusLabel(status constants.RunStatus) string {
	switch status {
	case constants.RunStatusCompleted:
		return "✓ completed"
	case constants.RunStatusAborted:
		return "✗ aborted"
	case constants.RunStatusPending, constants.RunStatusRunning:
		return string(status)
	default:
		return string(status)
	}
}

func stepLabel(status constants.StepStatus) string {
	switch status {
	case constants.StepStatusSucceeded:
		return "✓ succeeded"
	case constants.StepStatusFailed:
		return "✗ failed"
	case constants.StepStatusWarned:
		return "⚠ warned"
	case constants.StepStatusSkipped:
		return "skipped"
	case constants.StepStatusPending, constants.StepStatusRunning:
		return string(status)
	default:
		return string(status)
	}
}

func formatAttempts(attempts int) string {
	if attempts == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", attempts)
}

// formatDuration rounds durations for display: milliseconds under a
// second, whole seconds above.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

// tailLines returns the last n lines of s.
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
