package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gantrybuild/gantry/internal/constants"
)

// TerminalWidthNarrow is the width below which tables use abbreviated headers.
const TerminalWidthNarrow = 100

// TableColumn defines a column in a table.
type TableColumn struct {
	Name  string
	Width int
	Align Alignment
}

// Alignment defines text alignment in a column.
type Alignment int

// Alignment constants.
const (
	AlignLeft Alignment = iota
	AlignRight
	AlignCenter
)

// Table provides styled table rendering.
type Table struct {
	w       io.Writer
	styles  *TableStyles
	columns []TableColumn
}

// NewTable creates a new table with the given columns.
func NewTable(w io.Writer, columns []TableColumn) *Table {
	return &Table{
		w:       w,
		styles:  NewTableStyles(),
		columns: columns,
	}
}

// WriteHeader writes the table header row.
func (t *Table) WriteHeader() {
	header := ""
	for i, col := range t.columns {
		if i > 0 {
			header += " "
		}
		header += fmt.Sprintf(t.formatSpec(col), col.Name)
	}
	_, _ = fmt.Fprintln(t.w, t.styles.Header.Render(header))
}

// WriteRow writes a data row to the table. Cells wider than their column
// are truncated with an ellipsis.
func (t *Table) WriteRow(values ...string) {
	row := ""
	for i, col := range t.columns {
		if i > 0 {
			row += " "
		}
		value := ""
		if i < len(values) {
			value = values[i]
		}
		if col.Width > 1 && DisplayWidth(value) > col.Width {
			value = Truncate(value, col.Width)
		}
		row += fmt.Sprintf(t.formatSpec(col), value)
	}
	_, _ = fmt.Fprintln(t.w, row)
}

// WriteStyledRow writes a data row with one styled cell. The plain value is
// used for width math because ANSI escapes inflate the byte length.
func (t *Table) WriteStyledRow(values []string, styledIndex int, styledValue, plainValue string) {
	row := ""
	for i, col := range t.columns {
		if i > 0 {
			row += " "
		}

		if i == styledIndex {
			offset := ColorOffset(styledValue, plainValue)
			row += fmt.Sprintf(t.formatSpecWithOffset(col, offset), styledValue)
			continue
		}

		value := ""
		if i < len(values) {
			value = values[i]
		}
		if col.Width > 1 && DisplayWidth(value) > col.Width {
			value = Truncate(value, col.Width)
		}
		row += fmt.Sprintf(t.formatSpec(col), value)
	}
	_, _ = fmt.Fprintln(t.w, row)
}

// formatSpec returns the format specifier for a column.
func (t *Table) formatSpec(col TableColumn) string {
	switch col.Align {
	case AlignRight:
		return fmt.Sprintf("%%%ds", col.Width)
	case AlignLeft, AlignCenter:
		return fmt.Sprintf("%%-%ds", col.Width)
	default:
		return fmt.Sprintf("%%-%ds", col.Width)
	}
}

// formatSpecWithOffset returns the format specifier with width adjusted for
// invisible ANSI codes.
func (t *Table) formatSpecWithOffset(col TableColumn, offset int) string {
	width := col.Width + offset
	switch col.Align {
	case AlignRight:
		return fmt.Sprintf("%%%ds", width)
	case AlignLeft, AlignCenter:
		return fmt.Sprintf("%%-%ds", width)
	default:
		return fmt.Sprintf("%%-%ds", width)
	}
}

// ColorOffset calculates the difference between rendered and visible length
// caused by ANSI escape codes.
func ColorOffset(rendered, plain string) int {
	return len(rendered) - len(plain)
}

// RunRow is one row in the run history table. The CLI maps history entries
// into this shape so the table stays independent of the storage layer.
type RunRow struct {
	ID        string
	Pipeline  string
	Status    constants.RunStatus
	StepsDone int
	StepsTot  int
	Duration  time.Duration
	StartedAt time.Time
	Branch    string
	Publish   bool
}

// RunColumnWidths holds the widths for each run table column.
type RunColumnWidths struct {
	ID       int
	Pipeline int
	Status   int
	Steps    int
	Duration int
	Started  int
	Branch   int
}

// MinRunColumnWidths defines the minimum width for each run table column.
//
//nolint:gochecknoglobals // Intentional package-level constant for run table minimum widths
var MinRunColumnWidths = RunColumnWidths{
	ID:       15,
	Pipeline: 8,
	Status:   11,
	Steps:    5,
	Duration: 8,
	Started:  10,
	Branch:   10,
}

// RunTableConfig holds configuration for the run table.
type RunTableConfig struct {
	// TerminalWidth is the detected terminal width, or a forced width in tests.
	TerminalWidth int
	// Narrow switches to abbreviated headers on narrow terminals.
	Narrow bool
}

// RunTableOption is a functional option for RunTable configuration.
type RunTableOption func(*RunTable)

// WithRunTableWidth sets a specific terminal width, mainly for tests.
func WithRunTableWidth(width int) RunTableOption {
	return func(t *RunTable) {
		t.config.TerminalWidth = width
		t.config.Narrow = width > 0 && width < TerminalWidthNarrow
	}
}

// RunTable renders recent pipeline runs in a formatted table for the
// history command and the watch dashboard.
type RunTable struct {
	rows   []RunRow
	styles *TableStyles
	config RunTableConfig
}

// NewRunTable creates a run table with the given rows. Terminal width and
// narrow mode are detected unless overridden by options.
func NewRunTable(rows []RunRow, opts ...RunTableOption) *RunTable {
	t := &RunTable{
		rows:   rows,
		styles: NewTableStyles(),
		config: RunTableConfig{
			TerminalWidth: TerminalWidth(),
		},
	}

	t.config.Narrow = t.config.TerminalWidth > 0 && t.config.TerminalWidth < TerminalWidthNarrow

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// IsNarrow returns true if the table uses abbreviated headers.
func (t *RunTable) IsNarrow() bool {
	return t.config.Narrow
}

// Headers returns the column headers, abbreviated in narrow mode.
func (t *RunTable) Headers() []string {
	if t.config.Narrow {
		return []string{"RUN", "PIPE", "STAT", "STEPS", "DUR", "AGE", "BRANCH"}
	}
	return []string{"RUN", "PIPELINE", "STATUS", "STEPS", "DURATION", "STARTED", "BRANCH"}
}

// Rows returns a copy of the run rows.
func (t *RunTable) Rows() []RunRow {
	if t.rows == nil {
		return nil
	}
	result := make([]RunRow, len(t.rows))
	copy(result, t.rows)
	return result
}

// Render writes the formatted table to the writer.
func (t *RunTable) Render(w io.Writer) error {
	headers := t.Headers()
	widths := t.calculateColumnWidths()
	widthsSlice := []int{
		widths.ID, widths.Pipeline, widths.Status,
		widths.Steps, widths.Duration, widths.Started, widths.Branch,
	}

	headerParts := make([]string, len(headers))
	for i, h := range headers {
		headerParts[i] = t.styles.Header.Render(PadRight(h, widthsSlice[i]))
	}
	if _, err := fmt.Fprintln(w, strings.Join(headerParts, "  ")); err != nil {
		return err
	}

	for _, row := range t.rows {
		cells := []string{
			PadRight(Truncate(row.ID, widths.ID), widths.ID),
			PadRight(Truncate(t.pipelineCell(row), widths.Pipeline), widths.Pipeline),
			t.renderStatusCellPadded(row.Status, widths.Status),
			PadRight(t.stepsCell(row), widths.Steps),
			PadRight(t.durationCell(row), widths.Duration),
			PadRight(t.startedCell(row), widths.Started),
			PadRight(Truncate(t.branchCell(row), widths.Branch), widths.Branch),
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, "  ")); err != nil {
			return err
		}
	}

	return nil
}

// pipelineCell marks publish runs so local and publish invocations of the
// same pipeline are distinguishable at a glance.
func (t *RunTable) pipelineCell(row RunRow) string {
	if row.Publish {
		return row.Pipeline + " (publish)"
	}
	return row.Pipeline
}

// stepsCell formats the step counter for a row.
func (t *RunTable) stepsCell(row RunRow) string {
	if row.StepsTot == 0 {
		return "—"
	}
	return FormatStepCounter(row.StepsDone, row.StepsTot)
}

// durationCell formats the run duration, or a dash while still running.
func (t *RunTable) durationCell(row RunRow) string {
	if row.Duration <= 0 {
		return "—"
	}
	return FormatDuration(row.Duration)
}

// startedCell formats the start time as a relative age.
func (t *RunTable) startedCell(row RunRow) string {
	if row.StartedAt.IsZero() {
		return "—"
	}
	return RelativeTime(row.StartedAt)
}

// branchCell returns the branch, or a dash outside a repository.
func (t *RunTable) branchCell(row RunRow) string {
	if row.Branch == "" {
		return "—"
	}
	return row.Branch
}

// renderStatusCell creates the status cell with icon and colored text.
// Icon plus color plus text keeps the status readable without color too.
func (t *RunTable) renderStatusCell(status constants.RunStatus) string {
	icon := RunStatusIcon(status)
	color := RunStatusColors()[status]
	style := lipgloss.NewStyle().Foreground(color)
	return icon + " " + style.Render(string(status))
}

// renderStatusCellPlain creates the status cell without ANSI codes, used
// for width calculations.
func (t *RunTable) renderStatusCellPlain(status constants.RunStatus) string {
	return RunStatusIcon(status) + " " + string(status)
}

// renderStatusCellPadded pads the styled status cell using the visible
// width of its plain rendering.
func (t *RunTable) renderStatusCellPadded(status constants.RunStatus, width int) string {
	plainWidth := DisplayWidth(t.renderStatusCellPlain(status))
	styled := t.renderStatusCell(status)
	if plainWidth >= width {
		return styled
	}
	return styled + strings.Repeat(" ", width-plainWidth)
}

// calculateColumnWidths sizes columns from headers and content, then
// shrinks variable columns until the table fits the terminal.
func (t *RunTable) calculateColumnWidths() RunColumnWidths {
	headers := t.Headers()
	widths := RunColumnWidths{
		ID:       max(MinRunColumnWidths.ID, DisplayWidth(headers[0])),
		Pipeline: max(MinRunColumnWidths.Pipeline, DisplayWidth(headers[1])),
		Status:   max(MinRunColumnWidths.Status, DisplayWidth(headers[2])),
		Steps:    max(MinRunColumnWidths.Steps, DisplayWidth(headers[3])),
		Duration: max(MinRunColumnWidths.Duration, DisplayWidth(headers[4])),
		Started:  max(MinRunColumnWidths.Started, DisplayWidth(headers[5])),
		Branch:   max(MinRunColumnWidths.Branch, DisplayWidth(headers[6])),
	}

	for _, row := range t.rows {
		if w := DisplayWidth(row.ID); w > widths.ID {
			widths.ID = w
		}
		if w := DisplayWidth(t.pipelineCell(row)); w > widths.Pipeline {
			widths.Pipeline = w
		}
		if w := DisplayWidth(t.renderStatusCellPlain(row.Status)); w > widths.Status {
			widths.Status = w
		}
		if w := DisplayWidth(t.stepsCell(row)); w > widths.Steps {
			widths.Steps = w
		}
		if w := DisplayWidth(t.durationCell(row)); w > widths.Duration {
			widths.Duration = w
		}
		if w := DisplayWidth(t.startedCell(row)); w > widths.Started {
			widths.Started = w
		}
		if w := DisplayWidth(t.branchCell(row)); w > widths.Branch {
			widths.Branch = w
		}
	}

	return t.constrainToTerminalWidth(widths)
}

// constrainToTerminalWidth reduces column widths until the table fits.
// Variable columns shrink first (branch, then pipeline, then id); the
// status, steps, duration, and started columns keep their size so every
// row stays scannable.
func (t *RunTable) constrainToTerminalWidth(widths RunColumnWidths) RunColumnWidths {
	// 7 columns with 2-space separators.
	const separatorWidth = 12
	totalWidth := widths.ID + widths.Pipeline + widths.Status + widths.Steps +
		widths.Duration + widths.Started + widths.Branch + separatorWidth

	if t.config.TerminalWidth <= 0 || totalWidth <= t.config.TerminalWidth {
		return widths
	}

	overflow := totalWidth - t.config.TerminalWidth

	shrink := func(current, minimum int) (int, int) {
		if overflow <= 0 || current <= minimum {
			return current, overflow
		}
		reduction := min(overflow, current-minimum)
		return current - reduction, overflow - reduction
	}

	widths.Branch, overflow = shrink(widths.Branch, MinRunColumnWidths.Branch)
	widths.Pipeline, overflow = shrink(widths.Pipeline, MinRunColumnWidths.Pipeline)
	widths.ID, _ = shrink(widths.ID, MinRunColumnWidths.ID)

	return widths
}
