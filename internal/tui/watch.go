package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/history"
)

// WatchConfig holds configuration for the history watch dashboard.
type WatchConfig struct {
	// Interval is the refresh interval.
	Interval time.Duration
	// Limit caps how many runs are shown.
	Limit int
	// BellEnabled rings the terminal bell when a run fails.
	BellEnabled bool
	// Quiet suppresses the footer summary.
	Quiet bool
}

// DefaultWatchConfig returns the default watch configuration.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Interval:    constants.WatchRefreshInterval,
		Limit:       constants.DefaultHistoryLimit,
		BellEnabled: true,
		Quiet:       false,
	}
}

// RunLister lists recent runs from the history index.
// *history.Store satisfies it.
type RunLister interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// HistoryWatchModel is the Bubble Tea model for the history watch
// dashboard. It implements tea.Model (Init, Update, View).
type HistoryWatchModel struct {
	rows []RunRow
	// previousStatuses tracks run status per run ID for failure detection.
	previousStatuses map[string]constants.RunStatus
	lastUpdate       time.Time
	config           WatchConfig
	width, height    int
	quitting         bool
	err              error
	runs             RunLister
	// baseCtx is stored for use in async Bubble Tea commands. Storing a
	// context in a struct is generally discouraged, but Bubble Tea's async
	// command model needs it for cancellation propagation.
	baseCtx context.Context //nolint:containedctx // Required for Bubble Tea async commands
}

// TickMsg signals time for a refresh.
type TickMsg time.Time

// RefreshMsg carries new data from a refresh operation.
type RefreshMsg struct {
	Rows []RunRow
	Err  error
}

// BellMsg signals that a bell was emitted.
type BellMsg struct{}

// NewHistoryWatchModel creates a watch model over the given run lister.
// The context is stored for use in async Bubble Tea commands.
func NewHistoryWatchModel(ctx context.Context, runs RunLister, cfg WatchConfig) *HistoryWatchModel {
	if cfg.Interval <= 0 {
		cfg.Interval = constants.WatchRefreshInterval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = constants.DefaultHistoryLimit
	}
	return &HistoryWatchModel{
		previousStatuses: make(map[string]constants.RunStatus),
		config:           cfg,
		width:            DefaultTerminalWidth,
		height:           24,
		runs:             runs,
		baseCtx:          ctx,
	}
}

// Init returns the initial command: an immediate data load plus the
// refresh timer.
func (m *HistoryWatchModel) Init() tea.Cmd {
	return tea.Batch(
		m.refreshData(),
		m.tick(),
	)
}

// Update handles messages and returns the updated model and any commands.
func (m *HistoryWatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		return m, m.refreshData()

	case RefreshMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, m.tick()
		}
		m.rows = msg.Rows
		m.lastUpdate = time.Now()
		m.err = nil

		bellCmd := m.checkForBell()
		return m, tea.Batch(m.tick(), bellCmd)

	case BellMsg:
		// Bell already emitted by the command.
		return m, nil
	}

	return m, nil
}

// View renders the current state to a string.
func (m *HistoryWatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	if m.err != nil {
		fmt.Fprintf(&b, "Error: %v\n", m.err)
	}

	if len(m.rows) == 0 {
		b.WriteString("No runs recorded. Run 'gantry run' to start one.\n")
	} else {
		table := NewRunTable(m.rows, WithRunTableWidth(m.width))
		_ = table.Render(&b)
	}

	if !m.config.Quiet {
		b.WriteString("\n")
		b.WriteString(m.buildFooter())
		b.WriteString("\n")
	}

	if !m.lastUpdate.IsZero() {
		fmt.Fprintf(&b, "\nLast updated: %s", m.lastUpdate.Format("15:04:05"))
	}
	b.WriteString("\nPress 'q' to quit")

	return b.String()
}

// Rows returns the current run rows, useful for testing.
func (m *HistoryWatchModel) Rows() []RunRow {
	return m.rows
}

// LastUpdate returns the last refresh timestamp.
func (m *HistoryWatchModel) LastUpdate() time.Time {
	return m.lastUpdate
}

// IsQuitting returns true if the model is shutting down.
func (m *HistoryWatchModel) IsQuitting() bool {
	return m.quitting
}

// Error returns the last refresh error.
func (m *HistoryWatchModel) Error() error {
	return m.err
}

// tick returns a command that sends a TickMsg after the configured interval.
func (m *HistoryWatchModel) tick() tea.Cmd {
	return tea.Tick(m.config.Interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// refreshData loads fresh rows from the history index.
func (m *HistoryWatchModel) refreshData() tea.Cmd {
	return func() tea.Msg {
		ctx := m.baseCtx
		if ctx == nil {
			ctx = context.Background()
		}

		entries, err := m.runs.List(ctx, m.config.Limit)
		if err != nil {
			return RefreshMsg{Err: fmt.Errorf("failed to list runs: %w", err)}
		}

		return RefreshMsg{Rows: BuildRunRows(entries)}
	}
}

// BuildRunRows converts history entries into table rows. Shared with the
// history command so both surfaces render runs identically.
func BuildRunRows(entries []history.Entry) []RunRow {
	rows := make([]RunRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, RunRow{
			ID:        e.ID,
			Pipeline:  e.Pipeline,
			Status:    e.Status,
			StepsDone: countFinishedSteps(e.Steps),
			StepsTot:  len(e.Steps),
			Duration:  e.Duration,
			StartedAt: e.StartedAt,
			Branch:    e.GitBranch,
			Publish:   e.Publish,
		})
	}
	return rows
}

// countFinishedSteps counts steps that reached a terminal status.
func countFinishedSteps(steps []history.StepSummary) int {
	finished := 0
	for _, s := range steps {
		switch s.Status {
		case constants.StepStatusPending, constants.StepStatusRunning:
		case constants.StepStatusSucceeded, constants.StepStatusFailed,
			constants.StepStatusWarned, constants.StepStatusSkipped:
			finished++
		default:
		}
	}
	return finished
}

// checkForBell rings the terminal bell when a tracked run newly lands in
// the aborted state. Suppressed when bells are disabled or in quiet mode.
func (m *HistoryWatchModel) checkForBell() tea.Cmd {
	if !m.config.BellEnabled || m.config.Quiet {
		return nil
	}

	var bell tea.Cmd
	for _, row := range m.rows {
		prev, seen := m.previousStatuses[row.ID]
		if row.Status == constants.RunStatusAborted && seen && prev != constants.RunStatusAborted {
			bell = emitBell()
		}
		m.previousStatuses[row.ID] = row.Status
	}

	// Drop runs that fell off the listing so the map stays bounded.
	current := make(map[string]bool, len(m.rows))
	for _, row := range m.rows {
		current[row.ID] = true
	}
	for id := range m.previousStatuses {
		if !current[id] {
			delete(m.previousStatuses, id)
		}
	}

	return bell
}

// emitBell returns a command that rings the terminal bell.
func emitBell() tea.Cmd {
	return func() tea.Msg {
		_, _ = os.Stdout.WriteString("\a")
		return BellMsg{}
	}
}

// buildFooter creates the footer summary line.
func (m *HistoryWatchModel) buildFooter() string {
	runWord := "runs"
	if len(m.rows) == 1 {
		runWord = "run"
	}
	summary := fmt.Sprintf("%d %s", len(m.rows), runWord)

	running := 0
	for _, row := range m.rows {
		if row.Status == constants.RunStatusRunning {
			running++
		}
	}
	if running > 0 {
		summary += fmt.Sprintf(", %d running", running)
	}

	return summary
}
