package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gantrybuild/gantry/internal/domain"
	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// FilePipeline represents the YAML/JSON structure for custom pipelines.
// Field names use both yaml and json tags for dual format support.
type FilePipeline struct {
	Name        string               `yaml:"name" json:"name"`
	Description string               `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []FileStepDefinition `yaml:"steps" json:"steps"`
}

// FileStepDefinition represents a step in the YAML/JSON file.
// Timeout uses a duration string ("10m", "90s") rather than nanoseconds.
type FileStepDefinition struct {
	Name            string         `yaml:"name" json:"name"`
	Type            string         `yaml:"type,omitempty" json:"type,omitempty"`
	Description     string         `yaml:"description,omitempty" json:"description,omitempty"`
	Commands        []string       `yaml:"commands,omitempty" json:"commands,omitempty"`
	Artifacts       []string       `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
	OnFailure       string         `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
	OnlyIf          *FileCondition `yaml:"only_if,omitempty" json:"only_if,omitempty"`
	ContinueOnError bool           `yaml:"continue_on_error,omitempty" json:"continue_on_error,omitempty"`
	Timeout         string         `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// FileCondition represents a step condition in the YAML/JSON file.
type FileCondition struct {
	PublishFlag bool   `yaml:"publish_flag,omitempty" json:"publish_flag,omitempty"`
	DirExists   string `yaml:"dir_exists,omitempty" json:"dir_exists,omitempty"`
}

// Loader loads pipelines from files.
type Loader struct {
	basePath string
}

// NewLoader creates a new pipeline loader.
// basePath is used to resolve relative pipeline paths (typically project root).
func NewLoader(basePath string) *Loader {
	return &Loader{basePath: basePath}
}

// LoadFromFile loads a pipeline from a YAML or JSON file.
// The format is auto-detected based on file extension (.json for JSON, otherwise YAML).
// Returns an error if the file cannot be read, parsed, or validated.
func (l *Loader) LoadFromFile(path string) (*domain.Pipeline, error) {
	// Resolve path (absolute or relative to basePath)
	resolvedPath := l.resolvePath(path)

	// Read file
	data, err := os.ReadFile(resolvedPath) //nolint:gosec // Path is resolved from user config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", gantryerrors.ErrPipelineFileMissing, resolvedPath)
		}
		return nil, fmt.Errorf("%w: %w", gantryerrors.ErrPipelineParseError, err)
	}

	// Parse file based on format
	var filePipeline FilePipeline
	format := l.detectFormat(path)

	if format == "json" {
		if parseErr := json.Unmarshal(data, &filePipeline); parseErr != nil {
			return nil, fmt.Errorf("%w: %w", gantryerrors.ErrPipelineParseError, parseErr)
		}
	} else {
		if parseErr := yaml.Unmarshal(data, &filePipeline); parseErr != nil {
			return nil, fmt.Errorf("%w: %w", gantryerrors.ErrPipelineParseError, parseErr)
		}
	}

	// Convert to domain.Pipeline
	p, convertErr := toPipeline(&filePipeline)
	if convertErr != nil {
		return nil, fmt.Errorf("%w: %w", gantryerrors.ErrInvalidPipeline, convertErr)
	}

	// Validate the pipeline
	if err := Validate(p); err != nil {
		return nil, err
	}

	return p, nil
}

// LoadDir loads every pipeline file from a directory. Files with
// unrecognized extensions are skipped. Returns an error on the first
// file that fails to load (fail-fast behavior).
func (l *Loader) LoadDir(dir string) ([]*domain.Pipeline, error) {
	resolvedDir := l.resolvePath(dir)

	entries, err := os.ReadDir(resolvedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading pipeline directory: %w", err)
	}

	var loaded []*domain.Pipeline
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		p, loadErr := l.LoadFromFile(filepath.Join(resolvedDir, entry.Name()))
		if loadErr != nil {
			return nil, fmt.Errorf("pipeline file %q: %w", entry.Name(), loadErr)
		}

		loaded = append(loaded, p)
	}

	return loaded, nil
}

// resolvePath resolves a pipeline path, supporting both absolute and relative paths.
// Relative paths are resolved relative to the loader's basePath.
func (l *Loader) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.basePath, path)
}

// detectFormat returns the file format based on extension.
// Returns "json" for .json files, "yaml" for everything else.
func (l *Loader) detectFormat(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		return "json"
	}
	return "yaml"
}

// toPipeline converts a FilePipeline to a domain.Pipeline.
func toPipeline(f *FilePipeline) (*domain.Pipeline, error) {
	p := &domain.Pipeline{
		Name:        f.Name,
		Description: f.Description,
	}

	p.Steps = make([]domain.StepDefinition, len(f.Steps))
	for i, fs := range f.Steps {
		step, err := toStepDefinition(&fs)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, fs.Name, err)
		}
		p.Steps[i] = step
	}

	return p, nil
}

// toStepDefinition converts a FileStepDefinition to a domain.StepDefinition.
func toStepDefinition(f *FileStepDefinition) (domain.StepDefinition, error) {
	step := domain.StepDefinition{
		Name:            f.Name,
		Description:     f.Description,
		Commands:        f.Commands,
		Artifacts:       f.Artifacts,
		ContinueOnError: f.ContinueOnError,
	}

	// Parse step type (case-insensitive)
	stepType, err := ParseStepType(f.Type)
	if err != nil {
		return step, err
	}
	step.Type = stepType

	// Parse failure mode (case-insensitive, defaults to abort)
	mode, err := ParseFailureMode(f.OnFailure)
	if err != nil {
		return step, err
	}
	step.OnFailure = mode

	if f.OnlyIf != nil {
		step.OnlyIf = &domain.Condition{
			PublishFlag: f.OnlyIf.PublishFlag,
			DirExists:   f.OnlyIf.DirExists,
		}
	}

	// Parse timeout if provided
	if f.Timeout != "" {
		timeout, parseErr := time.ParseDuration(f.Timeout)
		if parseErr != nil {
			return step, fmt.Errorf("invalid timeout %q: %w", f.Timeout, parseErr)
		}
		step.Timeout = timeout
	}

	return step, nil
}
