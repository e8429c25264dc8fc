package pipeline

import (
	"fmt"
	"time"

	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/domain"
)

// ReleaseSettings parameterizes the built-in release pipeline for a
// specific project layout. Zero-value fields fall back to defaults.
type ReleaseSettings struct {
	// Wrapper is the build tool invocation (e.g., "./gradlew").
	Wrapper string

	// SDKModule is the library module name (e.g., "sdk").
	SDKModule string

	// AppModule is the application module name (e.g., "app").
	AppModule string

	// DebugArtifact is the debug package path relative to the project.
	DebugArtifact string

	// ReleaseArtifact is the release package path relative to the project.
	ReleaseArtifact string

	// LibraryArtifact is the library archive path relative to the project.
	LibraryArtifact string

	// IntegrationTestDir is the directory whose presence enables the
	// integration test step, relative to the project.
	IntegrationTestDir string
}

// DefaultReleaseSettings returns release settings for the standard
// two-module project layout.
func DefaultReleaseSettings() ReleaseSettings {
	return ReleaseSettings{
		Wrapper:            constants.DefaultBuildWrapper,
		SDKModule:          constants.DefaultSDKModule,
		AppModule:          constants.DefaultAppModule,
		DebugArtifact:      constants.DefaultDebugArtifact,
		ReleaseArtifact:    constants.DefaultReleaseArtifact,
		LibraryArtifact:    constants.DefaultLibraryArtifact,
		IntegrationTestDir: constants.DefaultIntegrationTestDir,
	}
}

// normalize fills empty settings fields with defaults.
func (s ReleaseSettings) normalize() ReleaseSettings {
	def := DefaultReleaseSettings()
	if s.Wrapper == "" {
		s.Wrapper = def.Wrapper
	}
	if s.SDKModule == "" {
		s.SDKModule = def.SDKModule
	}
	if s.AppModule == "" {
		s.AppModule = def.AppModule
	}
	if s.DebugArtifact == "" {
		s.DebugArtifact = def.DebugArtifact
	}
	if s.ReleaseArtifact == "" {
		s.ReleaseArtifact = def.ReleaseArtifact
	}
	if s.LibraryArtifact == "" {
		s.LibraryArtifact = def.LibraryArtifact
	}
	if s.IntegrationTestDir == "" {
		s.IntegrationTestDir = def.IntegrationTestDir
	}
	return s
}

// NewReleasePipeline creates the built-in release pipeline.
// Steps: clean → unit-test-sdk → unit-test-app → lint → assemble-debug →
// assemble-release → docs → verify-artifacts → integration-test →
// test-reports → publish
//
// Test and assemble failures abort the run. Lint, docs, integration
// tests and report regeneration only warn. Publication runs only when
// the run was started with the publish flag.
func NewReleasePipeline(settings ReleaseSettings) *domain.Pipeline {
	s := settings.normalize()

	return &domain.Pipeline{
		Name:        constants.DefaultPipelineName,
		Description: "Clean, test, build and verify release artifacts",
		Steps: []domain.StepDefinition{
			{
				Name:        "clean",
				Type:        domain.StepTypeRun,
				Description: "Remove previous build outputs",
				Commands:    []string{fmt.Sprintf("%s clean", s.Wrapper)},
				OnFailure:   domain.FailureAbort,
				Timeout:     5 * time.Minute,
			},
			{
				Name:        "unit-test-sdk",
				Type:        domain.StepTypeRun,
				Description: "Run library module unit tests",
				Commands:    []string{fmt.Sprintf("%s :%s:test", s.Wrapper, s.SDKModule)},
				OnFailure:   domain.FailureAbort,
				Timeout:     constants.DefaultStepTimeout,
			},
			{
				Name:        "unit-test-app",
				Type:        domain.StepTypeRun,
				Description: "Run application module unit tests",
				Commands:    []string{fmt.Sprintf("%s :%s:testDebugUnitTest", s.Wrapper, s.AppModule)},
				OnFailure:   domain.FailureAbort,
				Timeout:     constants.DefaultStepTimeout,
			},
			{
				Name:        "lint",
				Type:        domain.StepTypeRun,
				Description: "Run static analysis",
				Commands:    []string{fmt.Sprintf("%s lint", s.Wrapper)},
				OnFailure:   domain.FailureWarn,
				Timeout:     constants.DefaultStepTimeout,
			},
			{
				Name:        "assemble-debug",
				Type:        domain.StepTypeRun,
				Description: "Assemble the debug package",
				Commands:    []string{fmt.Sprintf("%s :%s:assembleDebug", s.Wrapper, s.AppModule)},
				OnFailure:   domain.FailureAbort,
				Timeout:     15 * time.Minute,
			},
			{
				Name:        "assemble-release",
				Type:        domain.StepTypeRun,
				Description: "Assemble the release package and library archive",
				Commands: []string{
					fmt.Sprintf("%s :%s:assembleRelease", s.Wrapper, s.AppModule),
					fmt.Sprintf("%s :%s:assembleRelease", s.Wrapper, s.SDKModule),
				},
				OnFailure: domain.FailureAbort,
				Timeout:   15 * time.Minute,
			},
			{
				Name:        "docs",
				Type:        domain.StepTypeRun,
				Description: "Generate API documentation",
				Commands:    []string{fmt.Sprintf("%s :%s:dokkaHtml", s.Wrapper, s.SDKModule)},
				OnFailure:   domain.FailureWarn,
				Timeout:     constants.DefaultStepTimeout,
			},
			{
				Name:        "verify-artifacts",
				Type:        domain.StepTypeVerify,
				Description: "Check that all release artifacts exist",
				Artifacts: []string{
					s.DebugArtifact,
					s.ReleaseArtifact,
					s.LibraryArtifact,
				},
				OnFailure: domain.FailureAbort,
			},
			{
				Name:        "integration-test",
				Type:        domain.StepTypeRun,
				Description: "Run device integration tests",
				Commands:    []string{fmt.Sprintf("%s :%s:connectedDebugAndroidTest", s.Wrapper, s.AppModule)},
				OnFailure:   domain.FailureWarn,
				OnlyIf:      &domain.Condition{DirExists: s.IntegrationTestDir},
				Timeout:     20 * time.Minute,
			},
			{
				Name:        "test-reports",
				Type:        domain.StepTypeRun,
				Description: "Regenerate unit test reports for both modules",
				Commands: []string{
					fmt.Sprintf("%s :%s:test --rerun-tasks", s.Wrapper, s.SDKModule),
					fmt.Sprintf("%s :%s:testDebugUnitTest --rerun-tasks", s.Wrapper, s.AppModule),
				},
				OnFailure:       domain.FailureWarn,
				ContinueOnError: true,
				Timeout:         constants.DefaultStepTimeout,
			},
			{
				Name:        "publish",
				Type:        domain.StepTypeRun,
				Description: "Publish the library to the configured repository",
				Commands:    []string{fmt.Sprintf("%s :%s:publish", s.Wrapper, s.SDKModule)},
				OnFailure:   domain.FailureAbort,
				OnlyIf:      &domain.Condition{PublishFlag: true},
				Timeout:     15 * time.Minute,
			},
		},
	}
}

// NewDefaultRegistry creates a registry with all built-in pipelines.
// Pipelines are compiled into the binary (not external files).
func NewDefaultRegistry(settings ReleaseSettings) *Registry {
	r := NewRegistry()

	// Errors are ignored as built-in pipeline names are guaranteed unique
	_ = r.Register(NewReleasePipeline(settings))
	_ = r.RegisterAlias("rel", constants.DefaultPipelineName)

	return r
}
