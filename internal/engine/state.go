// Package engine provides run lifecycle management for gantry.
//
// This file implements the run state machine, which enforces valid state
// transitions and maintains an audit trail of all status changes.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors,
//     internal/clock, internal/flock, internal/command, internal/artifact, std lib
//   - MUST NOT import: internal/config, internal/tui, internal/cli
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/domain"
	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// ValidTransitions defines all allowed state transitions in the run lifecycle.
// Format: from_status -> []to_statuses
//
// The state machine follows this flow:
//
//	Pending → Running, Aborted
//	Running → Completed, Aborted
//
// Pending → Aborted covers prerequisite failures detected before the
// first step runs. Completed and Aborted are terminal.
//
//nolint:gochecknoglobals // Exported for testing and read-only lookup table
var ValidTransitions = map[constants.RunStatus][]constants.RunStatus{
	constants.RunStatusPending: {constants.RunStatusRunning, constants.RunStatusAborted},
	constants.RunStatusRunning: {constants.RunStatusCompleted, constants.RunStatusAborted},
}

// IsValidTransition checks if a transition from one status to another is allowed.
// Returns false for transitions from terminal states or to the same state.
func IsValidTransition(from, to constants.RunStatus) bool {
	// Same status is not a valid transition
	if from == to {
		return false
	}

	validTargets, exists := ValidTransitions[from]
	if !exists {
		return false // Terminal state or unknown state
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// GetValidTargetStatuses returns all valid target statuses for a given status.
// Returns nil for terminal states or unknown statuses.
func GetValidTargetStatuses(from constants.RunStatus) []constants.RunStatus {
	targets, exists := ValidTransitions[from]
	if !exists {
		return nil
	}
	// Return a copy to prevent modification of the original slice
	result := make([]constants.RunStatus, len(targets))
	copy(result, targets)
	return result
}

// ApplyTransition validates and applies a state transition to the run.
// It records the transition in the run's history and updates timestamps.
// The caller is responsible for persisting the updated run.
//
// Returns an error if:
//   - ctx is canceled
//   - run is nil
//   - The transition is invalid (returns wrapped ErrInvalidTransition)
func ApplyTransition(ctx context.Context, run *domain.Run, to constants.RunStatus, reason string) error {
	// Check for cancellation
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Validate run is not nil
	if run == nil {
		return fmt.Errorf("%w: run is nil", gantryerrors.ErrInvalidTransition)
	}

	from := run.Status

	// Validate transition
	if !IsValidTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s",
			gantryerrors.ErrInvalidTransition, from, to)
	}

	now := time.Now().UTC()

	// Record transition in history
	transition := domain.Transition{
		From:   from,
		To:     to,
		Step:   run.CurrentStep,
		Reason: reason,
		At:     now,
	}
	run.Transitions = append(run.Transitions, transition)

	// Update run status
	run.Status = to
	run.UpdatedAt = now

	// Set CompletedAt for terminal states
	if to.IsTerminal() {
		run.CompletedAt = &now
	}

	return nil
}
