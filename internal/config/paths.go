package config

import (
	"os"
	"path/filepath"

	"github.com/gantrybuild/gantry/internal/constants"
	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// configFileName is the file name used for both global and project config.
const configFileName = "config.yaml"

// GantryHome returns the global gantry home directory. The GANTRY_HOME
// environment variable overrides the default of ~/.gantry.
func GantryHome() (string, error) {
	if override := os.Getenv(constants.GantryHomeEnv); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", gantryerrors.Wrap(err, "failed to determine home directory")
	}

	return filepath.Join(home, constants.GantryHome), nil
}

// GlobalConfigDir returns the directory that holds the global config file.
// This is the gantry home directory itself.
func GlobalConfigDir() (string, error) {
	return GantryHome()
}

// GlobalConfigPath returns the full path to the global config file
// (~/.gantry/config.yaml by default).
func GlobalConfigPath() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// ProjectConfigDir returns the project-relative directory that holds the
// project config file (.gantry).
func ProjectConfigDir() string {
	return constants.GantryHome
}

// ProjectConfigPath returns the path to the project config file relative
// to the current working directory (.gantry/config.yaml).
func ProjectConfigPath() string {
	return filepath.Join(ProjectConfigDir(), configFileName)
}

// ProjectConfigPathIn returns the path to the project config file inside
// the given project directory.
func ProjectConfigPathIn(projectDir string) string {
	return filepath.Join(projectDir, ProjectConfigDir(), configFileName)
}
