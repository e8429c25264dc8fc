package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// ProgressBar wraps the charmbracelet/bubbles progress bar with gantry
// styling. Supports adaptive width and NO_COLOR compatibility.
type ProgressBar struct {
	bar   progress.Model
	width int
}

// ProgressOption is a functional option for configuring a ProgressBar.
type ProgressOption func(*ProgressBar)

// WithWidth sets the progress bar width.
func WithWidth(w int) ProgressOption {
	return func(pb *ProgressBar) {
		pb.width = w
		pb.bar.Width = w
	}
}

// NewProgressBar creates a new progress bar. Styled rendering uses the
// primary color gradient; NO_COLOR mode falls back to a solid fill.
func NewProgressBar(width int, opts ...ProgressOption) *ProgressBar {
	var bar progress.Model

	// The percentage is rendered by callers alongside the step counter, so
	// the bar itself stays bare.
	if HasColorSupport() {
		bar = progress.New(
			progress.WithWidth(width),
			progress.WithScaledGradient("#0087AF", "#00D7FF"),
			progress.WithoutPercentage(),
		)
	} else {
		bar = progress.New(
			progress.WithWidth(width),
			progress.WithSolidFill("#808080"),
			progress.WithoutPercentage(),
		)
	}

	pb := &ProgressBar{
		bar:   bar,
		width: width,
	}

	for _, opt := range opts {
		opt(pb)
	}

	return pb
}

// Render returns the progress bar as a string for the given percentage
// (0.0-1.0). Uses ViewAs for static rendering without animation.
func (pb *ProgressBar) Render(percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 1 {
		percent = 1
	}
	return pb.bar.ViewAs(percent)
}

// Width returns the current width of the progress bar.
func (pb *ProgressBar) Width() int {
	return pb.width
}

// SetWidth updates the progress bar width.
func (pb *ProgressBar) SetWidth(w int) {
	pb.width = w
	pb.bar.Width = w
}

// ProgressBarWidth picks a bar width suited to the terminal width.
func ProgressBarWidth(termWidth int) int {
	switch {
	case termWidth < 80:
		return 20
	case termWidth < 120:
		return 40
	default:
		return 60
	}
}

// FormatStepCounter formats step progress as "current/total" (e.g., "3/11").
func FormatStepCounter(current, total int) string {
	return fmt.Sprintf("%d/%d", current, total)
}

// FormatStepWithName formats step progress with the step name
// (e.g., "3/11 assemble-debug").
func FormatStepWithName(current, total int, name string) string {
	if name == "" {
		return FormatStepCounter(current, total)
	}
	return fmt.Sprintf("%d/%d %s", current, total, name)
}

// RunProgress holds progress for an in-flight pipeline run.
type RunProgress struct {
	// CurrentStep is the 1-based number of the step being executed.
	CurrentStep int

	// TotalSteps is the number of steps in the pipeline.
	TotalSteps int

	// StepName is the name of the step being executed.
	StepName string

	// Elapsed is how long the run has been going.
	Elapsed time.Duration
}

// Percent returns run completion as a fraction of steps finished, counting
// the current step as not yet done.
func (p RunProgress) Percent() float64 {
	if p.TotalSteps <= 0 {
		return 0
	}
	done := p.CurrentStep - 1
	if done < 0 {
		done = 0
	}
	if done > p.TotalSteps {
		done = p.TotalSteps
	}
	return float64(done) / float64(p.TotalSteps)
}

// RenderRunProgress renders a one-line progress summary for a run:
// "████░░░░░░░░  18% 3/11 assemble-debug (1m 5s)".
func RenderRunProgress(p RunProgress, barWidth int) string {
	bar := NewProgressBar(barWidth)
	barStr := bar.Render(p.Percent())

	percentStr := fmt.Sprintf("%3d%%", int(p.Percent()*100))
	stepStr := FormatStepWithName(p.CurrentStep, p.TotalSteps, p.StepName)

	line := fmt.Sprintf("%s %s %s", barStr, percentStr, stepStr)
	if p.Elapsed > 0 {
		elapsed := lipgloss.NewStyle().Foreground(ColorMuted).Render("(" + FormatDuration(p.Elapsed) + ")")
		line += " " + elapsed
	}
	return line
}
