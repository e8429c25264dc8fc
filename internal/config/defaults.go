package config

import (
	"github.com/gantrybuild/gantry/internal/constants"
)

// DefaultConfig returns the built-in configuration defaults.
// These values match the defaults set on the Viper instance in load.go;
// the two must stay in sync.
func DefaultConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			Name: "",
		},
		Build: BuildConfig{
			Wrapper:   constants.DefaultBuildWrapper,
			SDKModule: constants.DefaultSDKModule,
			AppModule: constants.DefaultAppModule,
			Artifacts: ArtifactConfig{
				Debug:   constants.DefaultDebugArtifact,
				Release: constants.DefaultReleaseArtifact,
				Library: constants.DefaultLibraryArtifact,
			},
			IntegrationTestDir: constants.DefaultIntegrationTestDir,
		},
		Run: RunConfig{
			StepTimeout:    constants.DefaultStepTimeout,
			CommandTimeout: constants.DefaultCommandTimeout,
			EnvFile:        "",
			PipelinesDir:   constants.PipelinesDir,
		},
		History: HistoryConfig{
			Enabled: true,
			Limit:   constants.DefaultHistoryLimit,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}
