package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gantrybuild/gantry/internal/config"
	"github.com/gantrybuild/gantry/internal/errors"
	"github.com/gantrybuild/gantry/internal/tui"
)

// AddDoctorCommand adds the doctor command to the root command.
func AddDoctorCommand(root *cobra.Command) {
	root.AddCommand(newDoctorCmd())
}

// newDoctorCmd creates the doctor command.
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check build prerequisites",
		Long: `Check that the tools a pipeline run needs are installed: the build
wrapper, the JDK, and optional helpers like git and adb. The command
exits non-zero when a required tool is missing or outdated.

Examples:
  gantry doctor                # Check prerequisites
  gantry doctor --output json  # Output as JSON`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, cmd.OutOrStdout())
		},
	}
}

// runDoctor executes the doctor command.
func runDoctor(ctx context.Context, cmd *cobra.Command, w io.Writer) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	outputFormat := cmd.Flag("output").Value.String()
	tui.CheckNoColor()
	out := tui.NewOutput(w, outputFormat)

	cfg, err := config.Load(ctx)
	if err != nil {
		if outputFormat == OutputJSON {
			out.Error(err)
		}
		return err
	}

	projectDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}

	detector := config.NewToolDetector(projectDir, cfg.Build.Wrapper)
	tools, err := detector.Detect(ctx)
	if err != nil {
		if outputFormat == OutputJSON {
			out.Error(err)
		}
		return err
	}

	missing := config.MissingRequiredTools(tools)

	if outputFormat == OutputJSON {
		if jsonErr := out.JSON(doctorResponse{
			Tools:   tools,
			Healthy: len(missing) == 0,
		}); jsonErr != nil {
			return jsonErr
		}
		return missingToolsError(missing)
	}

	displayDoctorReport(out, tools)

	if len(missing) == 0 {
		out.Info("")
		out.Success("All required tools are available.")
		return nil
	}
	out.Info("")
	return missingToolsError(missing)
}

// displayDoctorReport displays the tool table and hints for any tool
// that is not fully available.
func displayDoctorReport(out tui.Output, tools []config.Tool) {
	out.Info(fmt.Sprintf("%-14s  %-11s  %-10s  %s", "TOOL", "STATUS", "VERSION", "REQUIRED"))
	for _, tool := range tools {
		out.Info(fmt.Sprintf("%-14s  %-11s  %-10s  %s",
			tool.Name,
			toolStatusCell(tool.Status),
			orDash(tool.CurrentVersion),
			requiredCell(tool.Required)))
	}

	hints := toolHints(tools)
	if len(hints) == 0 {
		return
	}
	out.Info("")
	for _, hint := range hints {
		out.Info(hint)
	}
}

// toolStatusCell formats a tool status with its icon.
func toolStatusCell(status config.ToolStatus) string {
	switch status {
	case config.StatusOK:
		return "✓ ok"
	case config.StatusMissing:
		return "✗ missing"
	case config.StatusOutdated:
		return "⚠ outdated"
	case config.StatusUnknown:
		return "? unknown"
	default:
		return "? unknown"
	}
}

// orDash substitutes a dash for empty values.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// requiredCell marks required tools.
func requiredCell(required bool) string {
	if required {
		return "yes"
	}
	return ""
}

// toolHints collects install hints for tools that are not fully
// available.
func toolHints(tools []config.Tool) []string {
	var hints []string
	for _, tool := range tools {
		if tool.Status == config.StatusOK || tool.InstallHint == "" {
			continue
		}
		hints = append(hints, fmt.Sprintf("%s: %s", tool.Name, tool.InstallHint))
	}
	return hints
}

// missingToolsError builds the command error for missing required
// tools, or nil when everything needed is present.
func missingToolsError(missing []config.Tool) error {
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for _, tool := range missing {
		names = append(names, tool.Name)
	}
	toolWord := "tools"
	if len(missing) == 1 {
		toolWord = "tool"
	}
	return fmt.Errorf("%w: required %s unavailable: %s",
		errors.ErrMissingPrerequisite, toolWord, strings.Join(names, ", "))
}

// doctorResponse contains the prerequisite check results for JSON output.
type doctorResponse struct {
	Tools   []config.Tool `json:"tools"`
	Healthy bool          `json:"healthy"`
}
