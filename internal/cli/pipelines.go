package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gantrybuild/gantry/internal/config"
	"github.com/gantrybuild/gantry/internal/domain"
	"github.com/gantrybuild/gantry/internal/pipeline"
	"github.com/gantrybuild/gantry/internal/tui"
)

// AddPipelinesCommand adds the pipelines command to the root command.
func AddPipelinesCommand(root *cobra.Command) {
	cmd := newPipelinesCmd()
	cmd.AddCommand(newPipelinesShowCmd())
	root.AddCommand(cmd)
}

// newPipelinesCmd creates the pipelines command.
func newPipelinesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List available pipelines",
		Long: `List the pipelines available to this project: the built-in release
pipeline plus any pipeline files found in .gantry/pipelines/.

Examples:
  gantry pipelines               # List pipelines
  gantry pipelines show release  # Show the steps of a pipeline
  gantry pipelines --output json # Output as JSON`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipelinesList(cmd.Context(), cmd, cmd.OutOrStdout())
		},
	}
}

// newPipelinesShowCmd creates the pipelines show command.
func newPipelinesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show the steps of a pipeline",
		Long: `Show the full step definition of a pipeline: execution order, step
types, failure behavior, conditions, and timeouts.

Examples:
  gantry pipelines show release
  gantry pipelines show release --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipelinesShow(cmd.Context(), cmd, cmd.OutOrStdout(), args[0])
		},
	}
}

// runPipelinesList executes the pipelines command.
func runPipelinesList(ctx context.Context, cmd *cobra.Command, w io.Writer) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	outputFormat := cmd.Flag("output").Value.String()
	tui.CheckNoColor()
	out := tui.NewOutput(w, outputFormat)

	registry, err := loadPipelineRegistry(ctx)
	if err != nil {
		if outputFormat == OutputJSON {
			out.Error(err)
		}
		return err
	}

	pipelines := registry.List()
	sort.Slice(pipelines, func(i, j int) bool {
		return pipelines[i].Name < pipelines[j].Name
	})
	aliases := registry.Aliases()

	if outputFormat == OutputJSON {
		return out.JSON(buildPipelinesResponse(pipelines, aliases))
	}

	displayPipelinesList(out, pipelines, aliases)
	return nil
}

// runPipelinesShow executes the pipelines show command.
func runPipelinesShow(ctx context.Context, cmd *cobra.Command, w io.Writer, name string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	outputFormat := cmd.Flag("output").Value.String()
	tui.CheckNoColor()
	out := tui.NewOutput(w, outputFormat)

	registry, err := loadPipelineRegistry(ctx)
	if err != nil {
		if outputFormat == OutputJSON {
			out.Error(err)
		}
		return err
	}

	p, err := registry.Get(name)
	if err != nil {
		if outputFormat == OutputJSON {
			out.Error(err)
		}
		return err
	}

	if outputFormat == OutputJSON {
		return out.JSON(p)
	}

	displayPipelineSteps(out, p)
	return nil
}

// loadPipelineRegistry loads config and builds the registry for the
// current working directory.
func loadPipelineRegistry(ctx context.Context) (*pipeline.Registry, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}

	projectDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}

	return buildPipelineRegistry(cfg, projectDir)
}

// displayPipelinesList displays pipelines in table format.
func displayPipelinesList(out tui.Output, pipelines []*domain.Pipeline, aliases map[string]string) {
	if len(pipelines) == 0 {
		out.Info("No pipelines available.")
		return
	}

	out.Info(fmt.Sprintf("%-16s  %-6s  %s", "NAME", "STEPS", "DESCRIPTION"))
	for _, p := range pipelines {
		name := p.Name
		if names := aliasesFor(aliases, p.Name); len(names) > 0 {
			name = fmt.Sprintf("%s (%s)", p.Name, strings.Join(names, ", "))
		}
		out.Info(fmt.Sprintf("%-16s  %-6d  %s", name, len(p.Steps), p.Description))
	}
}

// aliasesFor returns the sorted aliases pointing at a pipeline name.
func aliasesFor(aliases map[string]string, name string) []string {
	var names []string
	for alias, target := range aliases {
		if target == name {
			names = append(names, alias)
		}
	}
	sort.Strings(names)
	return names
}

// displayPipelineSteps displays a pipeline's step table.
func displayPipelineSteps(out tui.Output, p *domain.Pipeline) {
	out.Info(fmt.Sprintf("Pipeline: %s", p.Name))
	if p.Description != "" {
		out.Info(p.Description)
	}
	out.Info("")

	out.Info(fmt.Sprintf("  %-3s %-18s %-7s %-10s %-9s %s",
		"#", "NAME", "TYPE", "ON FAILURE", "TIMEOUT", "CONDITION"))
	for i := range p.Steps {
		step := &p.Steps[i]
		out.Info(fmt.Sprintf("  %-3d %-18s %-7s %-10s %-9s %s",
			i+1, step.Name, stepTypeLabel(step), stepFailureLabel(step),
			stepTimeoutLabel(step), stepConditionLabel(step)))
	}
}

// stepTypeLabel returns the effective type of a step for display.
func stepTypeLabel(step *domain.StepDefinition) string {
	if step.Type == "" {
		return domain.StepTypeRun.String()
	}
	return step.Type.String()
}

// stepFailureLabel returns the effective failure mode of a step.
func stepFailureLabel(step *domain.StepDefinition) string {
	if step.OnFailure == "" {
		return domain.FailureAbort.String()
	}
	return step.OnFailure.String()
}

// stepTimeoutLabel formats a step timeout, or a dash when the config
// default applies.
func stepTimeoutLabel(step *domain.StepDefinition) string {
	if step.Timeout <= 0 {
		return "-"
	}
	return step.Timeout.String()
}

// stepConditionLabel describes a step's condition, or an empty string
// for unconditional steps.
func stepConditionLabel(step *domain.StepDefinition) string {
	cond := step.OnlyIf
	if cond == nil {
		return ""
	}
	var parts []string
	if cond.PublishFlag {
		parts = append(parts, "publish")
	}
	if cond.DirExists != "" {
		parts = append(parts, "dir:"+cond.DirExists)
	}
	return strings.Join(parts, ",")
}

// buildPipelinesResponse builds the JSON representation of the
// pipeline listing.
func buildPipelinesResponse(pipelines []*domain.Pipeline, aliases map[string]string) []pipelineInfo {
	infos := make([]pipelineInfo, 0, len(pipelines))
	for _, p := range pipelines {
		infos = append(infos, pipelineInfo{
			Name:        p.Name,
			Description: p.Description,
			Steps:       len(p.Steps),
			Aliases:     aliasesFor(aliases, p.Name),
		})
	}
	return infos
}

// pipelineInfo contains pipeline details for JSON output.
type pipelineInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Steps       int      `json:"steps"`
	Aliases     []string `json:"aliases,omitempty"`
}
