package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// DialogTitle is the fixed title of the error dialog.
const DialogTitle = "Error"

// Control labels for the error dialog, in display order Retry before OK.
const (
	ControlOK    = "OK"
	ControlRetry = "Retry"
)

// Dialog layout constants.
const (
	// DialogMaxWidth caps the dialog width on wide terminals.
	DialogMaxWidth = 72

	// MinDialogWidth is the narrowest usable dialog width.
	MinDialogWidth = 40

	// terminalEdgeMargin keeps padding between a form and the terminal edge.
	terminalEdgeMargin = 4
)

// DialogKind discriminates the error dialog variants.
type DialogKind int

const (
	// DialogNone renders nothing and has no controls.
	DialogNone DialogKind = iota
	// DialogSimple shows the message with a single OK control.
	DialogSimple
	// DialogRetry shows the message with Retry and OK controls.
	DialogRetry
)

// String returns the variant name.
func (k DialogKind) String() string {
	switch k {
	case DialogSimple:
		return "simple"
	case DialogRetry:
		return "retry"
	case DialogNone:
		return "none"
	default:
		return "none"
	}
}

// ErrorDialog is the modal failure surface shown when a fatal pipeline step
// fails on a terminal. A dialog is a value built fresh from its inputs for
// each use; it holds no state between uses.
//
// The OK control invokes onDismiss. The Retry control exists only on the
// retry variant and invokes onRetry. Host-level dismissal (Esc, ctrl-c, or
// a non-interactive stdin) also invokes onDismiss.
type ErrorDialog struct {
	kind      DialogKind
	message   string
	onDismiss func()
	onRetry   func()
}

// NoDialog returns a dialog that renders nothing.
func NoDialog() ErrorDialog {
	return ErrorDialog{kind: DialogNone}
}

// SimpleDialog returns a dialog with the given message and an OK control.
// An empty message degrades to NoDialog.
func SimpleDialog(message string, onDismiss func()) ErrorDialog {
	if message == "" {
		return NoDialog()
	}
	return ErrorDialog{
		kind:      DialogSimple,
		message:   message,
		onDismiss: onDismiss,
	}
}

// RetryDialog returns a dialog with the given message and Retry and OK
// controls. An empty message degrades to NoDialog, and a nil onRetry
// degrades to SimpleDialog.
func RetryDialog(message string, onDismiss, onRetry func()) ErrorDialog {
	if message == "" {
		return NoDialog()
	}
	if onRetry == nil {
		return SimpleDialog(message, onDismiss)
	}
	return ErrorDialog{
		kind:      DialogRetry,
		message:   message,
		onDismiss: onDismiss,
		onRetry:   onRetry,
	}
}

// Kind returns the dialog variant.
func (d ErrorDialog) Kind() DialogKind {
	return d.kind
}

// Message returns the dialog body text.
func (d ErrorDialog) Message() string {
	return d.message
}

// Title returns the fixed dialog title, or an empty string for the none
// variant which renders nothing.
func (d ErrorDialog) Title() string {
	if d.kind == DialogNone {
		return ""
	}
	return DialogTitle
}

// Controls returns the control labels in display order. The retry variant
// lists Retry before OK; the none variant has no controls.
func (d ErrorDialog) Controls() []string {
	switch d.kind {
	case DialogSimple:
		return []string{ControlOK}
	case DialogRetry:
		return []string{ControlRetry, ControlOK}
	case DialogNone:
		return nil
	default:
		return nil
	}
}

// Run presents the dialog and invokes the callback for the chosen control.
// The none variant returns immediately without rendering. On a
// non-interactive stdin the dialog cannot be shown, so it is dismissed.
func (d ErrorDialog) Run() error {
	if d.kind == DialogNone {
		return nil
	}

	if !IsInteractive() {
		d.dismiss()
		return nil
	}

	CheckNoColor()

	controls := d.Controls()
	options := make([]huh.Option[string], len(controls))
	for i, control := range controls {
		options[i] = huh.NewOption(control, control)
	}

	var selected string
	field := huh.NewSelect[string]().
		Title(DialogTitle).
		Description(d.message).
		Options(options...).
		Value(&selected)

	form := huh.NewForm(huh.NewGroup(field)).
		WithTheme(GantryTheme()).
		WithWidth(dialogWidth()).
		WithShowHelp(true)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			d.dismiss()
			return nil
		}
		return fmt.Errorf("error dialog failed: %w", err)
	}

	if selected == ControlRetry {
		if d.onRetry != nil {
			d.onRetry()
		}
		return nil
	}

	d.dismiss()
	return nil
}

func (d ErrorDialog) dismiss() {
	if d.onDismiss != nil {
		d.onDismiss()
	}
}

// Confirm presents a yes/no prompt and returns the user's choice. Esc,
// ctrl-c, and a non-interactive stdin all return ErrDialogDismissed so
// callers can distinguish "answered no" from "never asked".
func Confirm(message string, defaultYes bool) (bool, error) {
	if !IsInteractive() {
		return false, gantryerrors.ErrDialogDismissed
	}

	CheckNoColor()

	confirmed := defaultYes
	field := huh.NewConfirm().
		Title(message).
		Affirmative("Yes").
		Negative("No").
		Value(&confirmed)

	form := huh.NewForm(huh.NewGroup(field)).
		WithTheme(GantryTheme()).
		WithWidth(dialogWidth())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, gantryerrors.ErrDialogDismissed
		}
		return false, fmt.Errorf("confirm prompt failed: %w", err)
	}

	return confirmed, nil
}

// GantryTheme returns a huh theme mapped to the gantry color palette.
// Uses AdaptiveColor for proper light/dark terminal support.
func GantryTheme() *huh.Theme {
	CheckNoColor()

	t := huh.ThemeBase()

	t.Focused.Base = t.Focused.Base.BorderForeground(ColorPrimary)
	t.Focused.Title = t.Focused.Title.Foreground(ColorError).Bold(true)
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(ColorPrimary)
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(ColorPrimary)
	t.Focused.ErrorMessage = t.Focused.ErrorMessage.Foreground(ColorError)
	t.Focused.ErrorIndicator = t.Focused.ErrorIndicator.Foreground(ColorError)

	t.Blurred.Base = t.Blurred.Base.BorderForeground(ColorMuted)
	t.Blurred.Title = t.Blurred.Title.Foreground(ColorMuted)
	t.Help.Ellipsis = t.Help.Ellipsis.Foreground(ColorMuted)

	return t
}

// dialogWidth returns the form width for the current terminal, clamped to
// the dialog minimum and maximum.
func dialogWidth() int {
	width := TerminalWidth() - terminalEdgeMargin
	if width > DialogMaxWidth {
		return DialogMaxWidth
	}
	if width < MinDialogWidth {
		return MinDialogWidth
	}
	return width
}
