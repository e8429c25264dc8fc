package engine

import (
	"context"

	"github.com/gantrybuild/gantry/internal/domain"
)

// Decision is the outcome chosen when a fatal step fails.
type Decision int

const (
	// DecisionAbort stops the run. This is the default when no fatal
	// handler is installed.
	DecisionAbort Decision = iota

	// DecisionRetry re-executes the failed step without advancing.
	DecisionRetry
)

// String returns a human-readable name for the decision.
func (d Decision) String() string {
	switch d {
	case DecisionAbort:
		return "abort"
	case DecisionRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// FatalHandler is consulted when a fatal step fails. It receives the run,
// the failed step definition, and the step error, and decides whether to
// abort the run or retry the step.
//
// Handlers may block, for example to show an interactive dialog. The
// engine persists the failed step state before calling the handler, so
// observers see the failure while the handler waits for input.
//
// A nil handler is equivalent to always returning DecisionAbort.
type FatalHandler func(ctx context.Context, run *domain.Run, step *domain.StepDefinition, stepErr error) Decision

// decideFatal consults the fatal handler for a failed fatal step.
// Without a handler the run always aborts.
func (e *Engine) decideFatal(ctx context.Context, run *domain.Run, step *domain.StepDefinition, stepErr error) Decision {
	if e.fatalHandler == nil {
		return DecisionAbort
	}

	decision := e.fatalHandler(ctx, run, step, stepErr)

	e.logger.Info().
		Str("run_id", run.ID).
		Str("step_name", step.Name).
		Str("decision", decision.String()).
		Msg("fatal step failure decision")

	return decision
}
