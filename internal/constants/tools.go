package constants

// Minimum tool versions required by gantry.
const (
	// MinVersionGit is the minimum git version.
	MinVersionGit = "2.20"
)
