package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gantrybuild/gantry/internal/config"
	"github.com/gantrybuild/gantry/internal/domain"
	"github.com/gantrybuild/gantry/internal/engine"
	"github.com/gantrybuild/gantry/internal/report"
	"github.com/gantrybuild/gantry/internal/tui"
)

// AddReportCommand adds the report command to the root command.
func AddReportCommand(root *cobra.Command) {
	root.AddCommand(newReportCmd())
}

// newReportCmd creates the report command.
func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report [run-id]",
		Short: "Show the report for a run",
		Long: `Show the markdown report for a run: step outcomes, artifact checks,
warnings, and failure details. Without a run ID the most recent run is
reported. Run IDs are listed by 'gantry history'.

Examples:
  gantry report                        # Report the latest run
  gantry report run-20260823-143000    # Report a specific run
  gantry report --output json          # Full run record as JSON`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) > 0 {
				runID = args[0]
			}
			return runReport(cmd.Context(), cmd, cmd.OutOrStdout(), runID)
		},
	}
}

// runReport executes the report command.
func runReport(ctx context.Context, cmd *cobra.Command, w io.Writer, runID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	outputFormat := cmd.Flag("output").Value.String()
	tui.CheckNoColor()
	out := tui.NewOutput(w, outputFormat)

	run, err := loadReportRun(ctx, runID)
	if err != nil {
		if outputFormat == OutputJSON {
			out.Error(err)
		}
		return err
	}

	if outputFormat == OutputJSON {
		return out.JSON(run)
	}

	markdown := report.Markdown(run)
	if tui.IsInteractive() {
		fmt.Fprint(w, report.Render(markdown))
		return nil
	}
	fmt.Fprint(w, markdown)
	return nil
}

// loadReportRun loads the requested run record, or the latest run when
// no ID is given.
func loadReportRun(ctx context.Context, runID string) (*domain.Run, error) {
	home, err := config.GantryHome()
	if err != nil {
		return nil, err
	}

	store, err := engine.NewFileStore(home)
	if err != nil {
		return nil, err
	}

	if runID == "" {
		return store.Latest(ctx)
	}
	return store.Get(ctx, runID)
}
