package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/gantrybuild/gantry/internal/config"
	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/errors"
	"github.com/gantrybuild/gantry/internal/history"
	"github.com/gantrybuild/gantry/internal/tui"
)

// historyOptions contains options for the history command.
type historyOptions struct {
	limit  int
	watch  bool
	noBell bool
}

// historyContext carries output handles through the history command.
type historyContext struct {
	out          tui.Output
	outputFormat string
}

// handleError emits the error in JSON mode before returning it.
func (hc *historyContext) handleError(err error) error {
	if hc.outputFormat == OutputJSON {
		hc.out.Error(err)
	}
	return err
}

// AddHistoryCommand adds the history command to the root command.
func AddHistoryCommand(root *cobra.Command) {
	root.AddCommand(newHistoryCmd())
}

// newHistoryCmd creates the history command.
func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		watch  bool
		noBell bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs",
		Long: `List recent pipeline runs from the local run index, newest first.

With --watch the listing refreshes continuously in a dashboard until
'q' is pressed. Watch mode needs a terminal; without one, or with
--output json, the command falls back to a single listing.

Examples:
  gantry history                 # List recent runs
  gantry history -n 5            # List the last 5 runs
  gantry history --watch         # Live dashboard
  gantry history --output json   # Output as JSON`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := historyOptions{
				limit:  limit,
				watch:  watch,
				noBell: noBell,
			}
			return runHistory(cmd.Context(), cmd, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of runs to list (0 uses the configured limit)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Refresh the listing continuously")
	cmd.Flags().BoolVar(&noBell, "no-bell", false, "Disable the terminal bell when a watched run fails")

	return cmd
}

// runHistory executes the history command.
func runHistory(ctx context.Context, cmd *cobra.Command, w io.Writer, opts historyOptions) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	outputFormat := cmd.Flag("output").Value.String()
	quiet := cmd.Flag("quiet").Value.String() == "true"
	tui.CheckNoColor()
	hc := &historyContext{
		out:          tui.NewOutput(w, outputFormat),
		outputFormat: outputFormat,
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return hc.handleError(err)
	}
	if !cfg.History.Enabled {
		return hc.handleError(errors.ErrHistoryDisabled)
	}

	home, err := config.GantryHome()
	if err != nil {
		return hc.handleError(err)
	}

	store, err := history.NewStore(filepath.Join(home, constants.HistoryDBFileName))
	if err != nil {
		return hc.handleError(fmt.Errorf("failed to open run history: %w", err))
	}
	defer func() { _ = store.Close() }()

	limit := opts.limit
	if limit <= 0 {
		limit = cfg.History.Limit
	}
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}

	// The dashboard takes over the terminal, so it only runs for
	// human-readable output on an interactive session.
	if opts.watch && outputFormat != OutputJSON && tui.IsInteractive() {
		return watchHistory(ctx, w, store, limit, quiet, opts)
	}

	entries, err := store.List(ctx, limit)
	if err != nil {
		return hc.handleError(err)
	}

	if outputFormat == OutputJSON {
		return hc.out.JSON(buildHistoryResponse(entries))
	}

	return displayHistory(w, hc.out, entries, quiet)
}

// watchHistory runs the live dashboard until the user quits.
func watchHistory(ctx context.Context, w io.Writer, store *history.Store, limit int, quiet bool, opts historyOptions) error {
	wcfg := tui.DefaultWatchConfig()
	wcfg.Limit = limit
	wcfg.Quiet = quiet
	wcfg.BellEnabled = !opts.noBell

	model := tui.NewHistoryWatchModel(ctx, store, wcfg)
	prog := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithOutput(w),
		tea.WithAltScreen(),
	)
	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("watch dashboard failed: %w", err)
	}
	return nil
}

// displayHistory displays runs in table format.
func displayHistory(w io.Writer, out tui.Output, entries []history.Entry, quiet bool) error {
	if len(entries) == 0 {
		out.Info("No runs recorded. Run 'gantry run' to start one.")
		return nil
	}

	rows := tui.BuildRunRows(entries)
	table := tui.NewRunTable(rows)
	if err := table.Render(w); err != nil {
		return fmt.Errorf("failed to render run table: %w", err)
	}

	if !quiet {
		out.Info("")
		out.Info(historyFooter(len(entries)))
	}
	return nil
}

// historyFooter creates the footer line under the run table.
func historyFooter(count int) string {
	runWord := "runs"
	if count == 1 {
		runWord = "run"
	}
	return fmt.Sprintf("%d %s shown. Inspect one with 'gantry report <run-id>'.", count, runWord)
}

// buildHistoryResponse builds the JSON representation of the run listing.
func buildHistoryResponse(entries []history.Entry) []historyEntryInfo {
	infos := make([]historyEntryInfo, 0, len(entries))
	for i := range entries {
		infos = append(infos, newHistoryEntryInfo(&entries[i]))
	}
	return infos
}

// newHistoryEntryInfo converts one history entry to its JSON form.
func newHistoryEntryInfo(e *history.Entry) historyEntryInfo {
	info := historyEntryInfo{
		RunID:       e.ID,
		TraceID:     e.TraceID,
		Pipeline:    e.Pipeline,
		Status:      string(e.Status),
		Publish:     e.Publish,
		ExitCode:    e.ExitCode,
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
		GitBranch:   e.GitBranch,
		GitCommit:   e.GitCommit,
		GitDirty:    e.GitDirty,
		Steps:       e.Steps,
	}
	if e.Duration > 0 {
		info.Duration = e.Duration.String()
	}
	return info
}

// historyEntryInfo contains run details for JSON output.
type historyEntryInfo struct {
	RunID       string                `json:"run_id"`
	TraceID     string                `json:"trace_id,omitempty"`
	Pipeline    string                `json:"pipeline"`
	Status      string                `json:"status"`
	Publish     bool                  `json:"publish"`
	ExitCode    int                   `json:"exit_code"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Duration    string                `json:"duration,omitempty"`
	GitBranch   string                `json:"git_branch,omitempty"`
	GitCommit   string                `json:"git_commit,omitempty"`
	GitDirty    bool                  `json:"git_dirty,omitempty"`
	Steps       []history.StepSummary `json:"steps,omitempty"`
}
