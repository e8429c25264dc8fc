package config

import (
	"fmt"

	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// validLogLevels are the accepted values for logging.level. An empty level
// falls back to the default at logger construction time.
var validLogLevels = map[string]bool{
	"":      true,
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for values that would break a run.
// It returns an error wrapping ErrInvalidConfig describing the first
// problem found.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", gantryerrors.ErrInvalidConfig)
	}

	if err := validateBuild(&cfg.Build); err != nil {
		return err
	}
	if err := validateRun(&cfg.Run); err != nil {
		return err
	}
	if err := validateHistory(&cfg.History); err != nil {
		return err
	}
	return validateLogging(&cfg.Logging)
}

func validateBuild(build *BuildConfig) error {
	if build.Wrapper == "" {
		return fmt.Errorf("%w: build.wrapper must not be empty", gantryerrors.ErrInvalidConfig)
	}
	if build.SDKModule == "" {
		return fmt.Errorf("%w: build.sdk_module must not be empty", gantryerrors.ErrInvalidConfig)
	}
	if build.AppModule == "" {
		return fmt.Errorf("%w: build.app_module must not be empty", gantryerrors.ErrInvalidConfig)
	}
	if build.Artifacts.Debug == "" {
		return fmt.Errorf("%w: build.artifacts.debug must not be empty", gantryerrors.ErrInvalidConfig)
	}
	if build.Artifacts.Release == "" {
		return fmt.Errorf("%w: build.artifacts.release must not be empty", gantryerrors.ErrInvalidConfig)
	}
	if build.Artifacts.Library == "" {
		return fmt.Errorf("%w: build.artifacts.library must not be empty", gantryerrors.ErrInvalidConfig)
	}
	return nil
}

func validateRun(run *RunConfig) error {
	if run.StepTimeout < 0 {
		return fmt.Errorf("%w: run.step_timeout must not be negative", gantryerrors.ErrInvalidConfig)
	}
	if run.CommandTimeout < 0 {
		return fmt.Errorf("%w: run.command_timeout must not be negative", gantryerrors.ErrInvalidConfig)
	}
	return nil
}

func validateHistory(history *HistoryConfig) error {
	if history.Limit < 0 {
		return fmt.Errorf("%w: history.limit must not be negative", gantryerrors.ErrInvalidConfig)
	}
	return nil
}

func validateLogging(logging *LoggingConfig) error {
	if !validLogLevels[logging.Level] {
		return fmt.Errorf("%w: logging.level %q is not one of trace, debug, info, warn, error",
			gantryerrors.ErrInvalidConfig, logging.Level)
	}
	return nil
}
