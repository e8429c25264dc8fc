// Package tui provides the terminal user interface components for gantry.
//
// This package centralizes styling with Lip Gloss so every component renders
// consistently. All colors use AdaptiveColor for light/dark terminal support.
//
// # Semantic Colors
//
// Five semantic colors are exported for use across components:
//   - ColorPrimary (Blue): active states, links, primary actions
//   - ColorSuccess (Green): success states, completed runs
//   - ColorWarning (Yellow): advisory failures, attention required
//   - ColorError (Red): fatal failures, aborted runs
//   - ColorMuted (Gray): dim/inactive states, secondary text
//
// # Status Icons
//
// Status displays keep triple redundancy: icon + color + text. See
// StepStatusIcon and RunStatusIcon for the mappings.
//
// # NO_COLOR Support
//
// Call CheckNoColor() at the start of commands that print styled text to
// respect the NO_COLOR environment variable. Colors are also disabled for
// TERM=dumb and non-terminal output.
package tui

import (
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/gantrybuild/gantry/internal/constants"
)

//nolint:gochecknoglobals // Intentional package-level constants for TUI styling API
var (
	// ColorPrimary is blue, used for active states and primary actions.
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#0087AF", Dark: "#00D7FF"}

	// ColorSuccess is green, used for success states and completed runs.
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#00FF87"}

	// ColorWarning is yellow, used for advisory failures and attention-required items.
	ColorWarning = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD700"}

	// ColorError is red, used for fatal failures and aborted runs.
	ColorError = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}

	// ColorMuted is gray, used for dim/inactive states and secondary text.
	ColorMuted = lipgloss.AdaptiveColor{Light: "#585858", Dark: "#6C6C6C"}

	// StyleBold applies bold formatting to text.
	StyleBold = lipgloss.NewStyle().Bold(true)

	// StyleDim applies dim/faint formatting to text.
	StyleDim = lipgloss.NewStyle().Faint(true)
)

// OutputStyles holds common output styles.
type OutputStyles struct {
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Dim     lipgloss.Style
}

// NewOutputStyles creates common output styles using AdaptiveColor for
// light/dark terminal support.
func NewOutputStyles() *OutputStyles {
	return &OutputStyles{
		Success: lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true),
		Error: lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true),
		Warning: lipgloss.NewStyle().
			Foreground(ColorWarning),
		Info: lipgloss.NewStyle().
			Foreground(ColorPrimary),
		Dim: lipgloss.NewStyle().
			Foreground(ColorMuted),
	}
}

// TableStyles holds lipgloss styles for table rendering.
type TableStyles struct {
	Header lipgloss.Style
	Cell   lipgloss.Style
	Dim    lipgloss.Style
}

// NewTableStyles creates styles for table rendering.
func NewTableStyles() *TableStyles {
	return &TableStyles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#DDDDDD"}),
		Cell: lipgloss.NewStyle(),
		Dim: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),
	}
}

// CheckNoColor downgrades Lip Gloss rendering to plain text when the
// terminal does not support color. Call this at the start of commands that
// output styled text.
func CheckNoColor() {
	if !HasColorSupport() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// HasColorSupport returns true if styled output should be emitted on stdout.
// Detection follows the NO_COLOR standard (https://no-color.org/): any value
// of NO_COLOR disables color, as do TERM=dumb and non-terminal output.
func HasColorSupport() bool {
	profile := colorprofile.Detect(os.Stdout, os.Environ())
	return profile != colorprofile.NoTTY && profile != colorprofile.Ascii
}

// IsInteractive returns true when stdin is attached to a terminal.
// Interactive components (dialogs, confirmation prompts) must not block
// when input is piped or absent.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// StepStatusIcon returns the icon for a pipeline step status.
func StepStatusIcon(status constants.StepStatus) string {
	icons := map[constants.StepStatus]string{
		constants.StepStatusPending:   "○",
		constants.StepStatusRunning:   "●",
		constants.StepStatusSucceeded: "✓",
		constants.StepStatusFailed:    "✗",
		constants.StepStatusWarned:    "⚠",
		constants.StepStatusSkipped:   "◌",
	}
	if icon, ok := icons[status]; ok {
		return icon
	}
	return "?"
}

// StepStatusColors returns the semantic colors for step statuses.
func StepStatusColors() map[constants.StepStatus]lipgloss.AdaptiveColor {
	return map[constants.StepStatus]lipgloss.AdaptiveColor{
		constants.StepStatusPending:   ColorMuted,
		constants.StepStatusRunning:   ColorPrimary,
		constants.StepStatusSucceeded: ColorSuccess,
		constants.StepStatusFailed:    ColorError,
		constants.StepStatusWarned:    ColorWarning,
		constants.StepStatusSkipped:   ColorMuted,
	}
}

// RunStatusIcon returns the icon for a run status.
func RunStatusIcon(status constants.RunStatus) string {
	icons := map[constants.RunStatus]string{
		constants.RunStatusPending:   "○",
		constants.RunStatusRunning:   "●",
		constants.RunStatusCompleted: "✓",
		constants.RunStatusAborted:   "✗",
	}
	if icon, ok := icons[status]; ok {
		return icon
	}
	return "?"
}

// RunStatusColors returns the semantic colors for run statuses.
func RunStatusColors() map[constants.RunStatus]lipgloss.AdaptiveColor {
	return map[constants.RunStatus]lipgloss.AdaptiveColor{
		constants.RunStatusPending:   ColorMuted,
		constants.RunStatusRunning:   ColorPrimary,
		constants.RunStatusCompleted: ColorSuccess,
		constants.RunStatusAborted:   ColorError,
	}
}

// FormatStepStatus formats a step status with its icon for triple
// redundancy (icon + color + text). Color is applied by the caller's style.
func FormatStepStatus(status constants.StepStatus) string {
	return StepStatusIcon(status) + " " + status.String()
}

// FormatRunStatus formats a run status with its icon.
func FormatRunStatus(status constants.RunStatus) string {
	return RunStatusIcon(status) + " " + status.String()
}

// PadRight pads a string with spaces to the target display width. Width is
// measured in terminal cells, so wide runes count as two.
func PadRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// Truncate shortens a string to at most the given display width, appending
// an ellipsis when truncation happens.
func Truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}

// DisplayWidth returns the terminal cell width of a string.
func DisplayWidth(s string) int {
	return runewidth.StringWidth(s)
}

// DefaultTerminalWidth is used when terminal width cannot be determined.
const DefaultTerminalWidth = 80

// TerminalWidth returns the current terminal width of stdout, or
// DefaultTerminalWidth if it cannot be determined.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	return width
}
