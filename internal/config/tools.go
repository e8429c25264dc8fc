package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gantrybuild/gantry/internal/constants"
	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// maxVersionSegments is the number of dotted version segments compared.
const maxVersionSegments = 3

// ToolStatus represents the detection state of a prerequisite tool.
type ToolStatus int

const (
	// StatusUnknown means the tool was found but its version could not be read.
	StatusUnknown ToolStatus = iota
	// StatusOK means the tool is present and meets any minimum version.
	StatusOK
	// StatusMissing means the tool was not found.
	StatusMissing
	// StatusOutdated means the tool is older than the required minimum version.
	StatusOutdated
)

// String returns the human-readable status label.
func (s ToolStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMissing:
		return "missing"
	case StatusOutdated:
		return "outdated"
	case StatusUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the status as its string label.
func (s ToolStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status from its string label.
func (s *ToolStatus) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	*s = parseToolStatus(label)
	return nil
}

func parseToolStatus(label string) ToolStatus {
	switch label {
	case "ok":
		return StatusOK
	case "missing":
		return StatusMissing
	case "outdated":
		return StatusOutdated
	default:
		return StatusUnknown
	}
}

// Tool describes one prerequisite tool and the result of detecting it.
type Tool struct {
	Name           string     `json:"name"`
	Required       bool       `json:"required"`
	MinVersion     string     `json:"min_version,omitempty"`
	CurrentVersion string     `json:"current_version,omitempty"`
	Status         ToolStatus `json:"status"`
	InstallHint    string     `json:"install_hint,omitempty"`
}

// toolConfig describes how to detect a single tool.
type toolConfig struct {
	name            string
	required        bool
	minVersion      string
	versionArgs     []string
	versionPatterns []*regexp.Regexp
	installHint     string
}

// toolConfigs is the static table of PATH-resolved tools checked before a
// run and by `gantry doctor`. The build wrapper is checked separately
// because its name comes from configuration.
//
//nolint:gochecknoglobals // static tool detection table
var toolConfigs = []toolConfig{
	{
		name:        constants.ToolJava,
		required:    true,
		minVersion:  constants.MinVersionJava,
		versionArgs: []string{constants.VersionFlagJava},
		versionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`version "(\d+(?:\.\d+)*)`),
			regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`),
		},
		installHint: "Install JDK " + constants.MinVersionJava + " or newer (https://adoptium.net) and ensure java is on PATH",
	},
	{
		name:        constants.ToolGit,
		required:    false,
		versionArgs: []string{constants.VersionFlagStandard},
		versionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`git version (\d+\.\d+(?:\.\d+)?)`),
		},
		installHint: "Install git from https://git-scm.com/downloads to record branch and commit metadata",
	},
	{
		name:        constants.ToolADB,
		required:    false,
		versionArgs: []string{constants.VersionFlagStandard},
		versionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`version (\d+\.\d+(?:\.\d+)?)`),
		},
		installHint: "Install Android platform tools (adb) for device integration tests",
	},
}

// CommandExecutor abstracts tool lookup and execution for testability.
type CommandExecutor interface {
	// LookPath searches for an executable in the PATH.
	LookPath(name string) (string, error)
	// Run executes a command and returns its combined output.
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// DefaultCommandExecutor runs commands with os/exec.
type DefaultCommandExecutor struct{}

// LookPath searches for an executable in the PATH.
func (DefaultCommandExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run executes a command and returns its combined output. Version banners
// often go to stderr (java -version does), so both streams are captured.
func (DefaultCommandExecutor) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec // tool names come from the static detection table
	return string(out), err
}

// ToolDetector detects the presence and versions of prerequisite tools.
type ToolDetector interface {
	Detect(ctx context.Context) ([]Tool, error)
}

// DefaultToolDetector checks the build wrapper plus the static tool table.
type DefaultToolDetector struct {
	executor   CommandExecutor
	projectDir string
	wrapper    string
}

var _ ToolDetector = (*DefaultToolDetector)(nil)

// NewToolDetector creates a detector for the given project directory and
// build wrapper command.
func NewToolDetector(projectDir, wrapper string) *DefaultToolDetector {
	return NewToolDetectorWithExecutor(projectDir, wrapper, DefaultCommandExecutor{})
}

// NewToolDetectorWithExecutor creates a detector with a custom executor.
func NewToolDetectorWithExecutor(projectDir, wrapper string, executor CommandExecutor) *DefaultToolDetector {
	return &DefaultToolDetector{
		executor:   executor,
		projectDir: projectDir,
		wrapper:    wrapper,
	}
}

// Detect checks all prerequisite tools concurrently and returns one entry
// per tool in stable order: the build wrapper first, then the static table.
// The whole check is bounded by ToolDetectionTimeout.
func (d *DefaultToolDetector) Detect(ctx context.Context) ([]Tool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ToolDetectionTimeout)
	defer cancel()

	tools := make([]Tool, len(toolConfigs)+1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tools[0] = d.detectWrapper()
		return nil
	})
	for i, cfg := range toolConfigs {
		g.Go(func() error {
			tools[i+1] = d.detectTool(gctx, cfg)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, gantryerrors.Wrap(err, "tool detection failed")
	}
	return tools, nil
}

// detectWrapper checks that the configured build wrapper exists. A wrapper
// containing a path separator is resolved against the project directory,
// anything else is looked up on the PATH. No version probe runs because
// wrapper scripts resolve their toolchain on first use, which can take
// minutes on a cold cache.
func (d *DefaultToolDetector) detectWrapper() Tool {
	tool := Tool{
		Name:        d.wrapper,
		Required:    true,
		InstallHint: "Restore the wrapper script referenced by build.wrapper, e.g. run `gradle wrapper` in the project root",
	}

	if !strings.ContainsRune(d.wrapper, '/') {
		if _, err := d.executor.LookPath(d.wrapper); err != nil {
			tool.Status = StatusMissing
			return tool
		}
		tool.Status = StatusOK
		return tool
	}

	path := d.wrapper
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.projectDir, d.wrapper)
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		tool.Status = StatusMissing
		return tool
	}
	tool.Status = StatusOK
	return tool
}

// detectTool checks a single tool from the static table.
func (d *DefaultToolDetector) detectTool(ctx context.Context, cfg toolConfig) Tool {
	tool := Tool{
		Name:        cfg.name,
		Required:    cfg.required,
		MinVersion:  cfg.minVersion,
		InstallHint: cfg.installHint,
	}

	if _, err := d.executor.LookPath(cfg.name); err != nil {
		tool.Status = StatusMissing
		return tool
	}

	if len(cfg.versionArgs) == 0 {
		tool.Status = StatusOK
		return tool
	}

	output, err := d.executor.Run(ctx, cfg.name, cfg.versionArgs...)
	if err != nil {
		tool.Status = StatusUnknown
		return tool
	}

	version := extractVersion(output, cfg.versionPatterns)
	if version == "" {
		tool.Status = StatusUnknown
		return tool
	}

	tool.CurrentVersion = version
	if cfg.minVersion != "" && CompareVersions(version, cfg.minVersion) < 0 {
		tool.Status = StatusOutdated
		return tool
	}

	tool.Status = StatusOK
	return tool
}

// extractVersion returns the first capture group matched by any pattern.
func extractVersion(output string, patterns []*regexp.Regexp) string {
	for _, pattern := range patterns {
		if match := pattern.FindStringSubmatch(output); len(match) > 1 {
			return match[1]
		}
	}
	return ""
}

// CompareVersions compares two dotted version strings numerically.
// It returns -1 if current is older than minimum, 0 if they are equal,
// and 1 if current is newer. At most three segments are compared, and a
// missing segment counts as zero, so "2.1" equals "2.1.0".
func CompareVersions(current, minimum string) int {
	currentParts := parseVersionParts(current)
	minimumParts := parseVersionParts(minimum)

	for i := range maxVersionSegments {
		c := versionPart(currentParts, i)
		m := versionPart(minimumParts, i)
		if c < m {
			return -1
		}
		if c > m {
			return 1
		}
	}
	return 0
}

func versionPart(parts []int, i int) int {
	if i < len(parts) {
		return parts[i]
	}
	return 0
}

// parseVersionParts splits a version string into numeric segments. Parsing
// stops at the first segment without leading digits, so "1.8.0_291"
// yields [1 8 0].
func parseVersionParts(version string) []int {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	raw := strings.SplitN(version, ".", maxVersionSegments)

	parts := make([]int, 0, len(raw))
	for _, segment := range raw {
		digits := leadingDigits(segment)
		if digits == "" {
			break
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			break
		}
		parts = append(parts, n)
	}
	return parts
}

func leadingDigits(s string) string {
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}

// MissingRequiredTools returns the required tools that are missing or
// outdated.
func MissingRequiredTools(tools []Tool) []Tool {
	var missing []Tool
	for _, tool := range tools {
		if tool.Required && (tool.Status == StatusMissing || tool.Status == StatusOutdated) {
			missing = append(missing, tool)
		}
	}
	return missing
}

// FormatMissingToolsError builds a user-facing message for missing or
// outdated required tools, including install hints.
func FormatMissingToolsError(tools []Tool) string {
	var sb strings.Builder
	sb.WriteString("Missing required tools:\n\n")

	for _, tool := range tools {
		problem := "not found"
		if tool.Status == StatusOutdated {
			problem = fmt.Sprintf("version %s found, %s or newer required", tool.CurrentVersion, tool.MinVersion)
		}
		sb.WriteString(fmt.Sprintf("  • %s: %s\n", tool.Name, problem))
		if tool.InstallHint != "" {
			sb.WriteString(fmt.Sprintf("    Install: %s\n", tool.InstallHint))
		}
	}

	return sb.String()
}
