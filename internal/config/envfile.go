package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// ApplyEnvFile loads KEY=VALUE pairs from the file at path into the
// process environment. Variables already set in the environment keep
// their values. An empty path is a no-op.
func ApplyEnvFile(path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", gantryerrors.ErrEnvFileNotFound, path)
	}

	if err := godotenv.Load(path); err != nil {
		return gantryerrors.Wrapf(err, "failed to load env file: %s", path)
	}

	return nil
}
