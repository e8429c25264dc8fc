package pipeline

import (
	"fmt"
	"strings"

	"github.com/gantrybuild/gantry/internal/domain"
	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// ValidStepTypes returns all valid step type values.
func ValidStepTypes() []domain.StepType {
	return []domain.StepType{
		domain.StepTypeRun,
		domain.StepTypeVerify,
	}
}

// Validate checks a pipeline has all required fields and valid values.
// Returns nil if the pipeline is valid, otherwise returns a descriptive error.
func Validate(p *domain.Pipeline) error {
	if p == nil {
		return gantryerrors.ErrPipelineNil
	}

	if strings.TrimSpace(p.Name) == "" {
		return gantryerrors.ErrPipelineNameEmpty
	}

	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: %s", gantryerrors.ErrNoSteps, p.Name)
	}

	seen := make(map[string]struct{}, len(p.Steps))
	for i, step := range p.Steps {
		if err := validateStep(&step, i); err != nil {
			return err
		}

		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("%w: step %d: duplicate name %q",
				gantryerrors.ErrInvalidStep, i, step.Name)
		}
		seen[step.Name] = struct{}{}
	}

	return nil
}

// validateStep validates a step definition at the given index.
func validateStep(step *domain.StepDefinition, index int) error {
	if strings.TrimSpace(step.Name) == "" {
		return fmt.Errorf("%w: step %d: name is required", gantryerrors.ErrInvalidStep, index)
	}

	if step.Type != "" && !IsValidStepType(step.Type) {
		return fmt.Errorf("%w: step %d (%s): invalid type %q: must be one of: %s",
			gantryerrors.ErrInvalidStep, index, step.Name, step.Type, validStepTypesString())
	}

	if step.OnFailure != "" &&
		step.OnFailure != domain.FailureAbort && step.OnFailure != domain.FailureWarn {
		return fmt.Errorf("%w: step %d (%s): invalid on_failure %q: must be abort or warn",
			gantryerrors.ErrInvalidStep, index, step.Name, step.OnFailure)
	}

	if step.Timeout < 0 {
		return fmt.Errorf("%w: step %d (%s): timeout cannot be negative",
			gantryerrors.ErrInvalidStep, index, step.Name)
	}

	switch effectiveType(step) {
	case domain.StepTypeRun:
		if len(step.Commands) == 0 {
			return fmt.Errorf("%w: step %d (%s): run step requires commands",
				gantryerrors.ErrInvalidStep, index, step.Name)
		}
	case domain.StepTypeVerify:
		if len(step.Artifacts) == 0 {
			return fmt.Errorf("%w: step %d (%s): verify step requires artifacts",
				gantryerrors.ErrInvalidStep, index, step.Name)
		}
		if len(step.Commands) > 0 {
			return fmt.Errorf("%w: step %d (%s): verify step cannot have commands",
				gantryerrors.ErrInvalidStep, index, step.Name)
		}
	}

	return nil
}

// effectiveType resolves an empty step type to the default.
func effectiveType(step *domain.StepDefinition) domain.StepType {
	if step.Type == "" {
		return domain.StepTypeRun
	}
	return step.Type
}

// IsValidStepType checks if the step type is a known valid type.
func IsValidStepType(t domain.StepType) bool {
	for _, valid := range ValidStepTypes() {
		if t == valid {
			return true
		}
	}
	return false
}

// ParseStepType converts a string to a StepType with validation.
// The conversion is case-insensitive. An empty string resolves to
// the default run type.
func ParseStepType(s string) (domain.StepType, error) {
	if strings.TrimSpace(s) == "" {
		return domain.StepTypeRun, nil
	}

	t := domain.StepType(strings.ToLower(strings.TrimSpace(s)))
	if !IsValidStepType(t) {
		return "", fmt.Errorf("%w: %q is not valid, must be one of: %s",
			gantryerrors.ErrInvalidStep, s, validStepTypesString())
	}
	return t, nil
}

// ParseFailureMode converts a string to a FailureMode with validation.
// The conversion is case-insensitive. An empty string resolves to abort.
func ParseFailureMode(s string) (domain.FailureMode, error) {
	if strings.TrimSpace(s) == "" {
		return domain.FailureAbort, nil
	}

	m := domain.FailureMode(strings.ToLower(strings.TrimSpace(s)))
	if m != domain.FailureAbort && m != domain.FailureWarn {
		return "", fmt.Errorf("%w: %q is not valid, must be abort or warn",
			gantryerrors.ErrInvalidStep, s)
	}
	return m, nil
}

// validStepTypesString returns a comma-separated list of valid step types.
func validStepTypesString() string {
	stepTypes := ValidStepTypes()
	types := make([]string, len(stepTypes))
	for i, t := range stepTypes {
		types[i] = string(t)
	}
	return strings.Join(types, ", ")
}
