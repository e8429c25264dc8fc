package config

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecutor is a CommandExecutor backed by canned results.
type mockExecutor struct {
	found   map[string]bool
	outputs map[string]string
	runErrs map[string]error
}

var _ CommandExecutor = (*mockExecutor)(nil)

func (m *mockExecutor) LookPath(name string) (string, error) {
	if m.found[name] {
		return "/usr/bin/" + name, nil
	}
	return "", exec.ErrNotFound
}

func (m *mockExecutor) Run(_ context.Context, name string, _ ...string) (string, error) {
	if err := m.runErrs[name]; err != nil {
		return "", err
	}
	return m.outputs[name], nil
}

// healthyExecutor returns a mock where every tool is present with a
// current version.
func healthyExecutor() *mockExecutor {
	return &mockExecutor{
		found: map[string]bool{"java": true, "git": true, "adb": true},
		outputs: map[string]string{
			"java": `openjdk version "17.0.2" 2022-01-18`,
			"git":  "git version 2.39.5",
			"adb":  "Android Debug Bridge version 1.0.41\nVersion 35.0.2",
		},
	}
}

// writeWrapperScript creates an executable wrapper stub in projectDir.
func writeWrapperScript(t *testing.T, projectDir string) {
	t.Helper()
	path := filepath.Join(projectDir, "gradlew")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o700))
}

func TestDefaultToolDetector_Detect(t *testing.T) {
	projectDir := t.TempDir()
	writeWrapperScript(t, projectDir)

	detector := NewToolDetectorWithExecutor(projectDir, "./gradlew", healthyExecutor())

	tools, err := detector.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 4)

	wrapper := tools[0]
	assert.Equal(t, "./gradlew", wrapper.Name)
	assert.True(t, wrapper.Required)
	assert.Equal(t, StatusOK, wrapper.Status)
	assert.Empty(t, wrapper.CurrentVersion)

	java := tools[1]
	assert.Equal(t, "java", java.Name)
	assert.True(t, java.Required)
	assert.Equal(t, StatusOK, java.Status)
	assert.Equal(t, "17.0.2", java.CurrentVersion)
	assert.Equal(t, "17", java.MinVersion)

	git := tools[2]
	assert.Equal(t, "git", git.Name)
	assert.False(t, git.Required)
	assert.Equal(t, StatusOK, git.Status)
	assert.Equal(t, "2.39.5", git.CurrentVersion)

	adb := tools[3]
	assert.Equal(t, "adb", adb.Name)
	assert.False(t, adb.Required)
	assert.Equal(t, StatusOK, adb.Status)
	assert.Equal(t, "1.0.41", adb.CurrentVersion)
}

func TestDefaultToolDetector_WrapperMissing(t *testing.T) {
	detector := NewToolDetectorWithExecutor(t.TempDir(), "./gradlew", healthyExecutor())

	tools, err := detector.Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusMissing, tools[0].Status)
	assert.NotEmpty(t, tools[0].InstallHint)

	missing := MissingRequiredTools(tools)
	require.Len(t, missing, 1)
	assert.Equal(t, "./gradlew", missing[0].Name)
}

func TestDefaultToolDetector_WrapperOnPath(t *testing.T) {
	executor := healthyExecutor()
	executor.found["make"] = true

	detector := NewToolDetectorWithExecutor(t.TempDir(), "make", executor)

	tools, err := detector.Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "make", tools[0].Name)
	assert.Equal(t, StatusOK, tools[0].Status)
}

func TestDefaultToolDetector_JavaMissing(t *testing.T) {
	projectDir := t.TempDir()
	writeWrapperScript(t, projectDir)

	executor := healthyExecutor()
	executor.found["java"] = false

	detector := NewToolDetectorWithExecutor(projectDir, "./gradlew", executor)

	tools, err := detector.Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusMissing, tools[1].Status)

	missing := MissingRequiredTools(tools)
	require.Len(t, missing, 1)
	assert.Equal(t, "java", missing[0].Name)
}

func TestDefaultToolDetector_JavaOutdated(t *testing.T) {
	projectDir := t.TempDir()
	writeWrapperScript(t, projectDir)

	executor := healthyExecutor()
	executor.outputs["java"] = `java version "1.8.0_291"`

	detector := NewToolDetectorWithExecutor(projectDir, "./gradlew", executor)

	tools, err := detector.Detect(context.Background())
	require.NoError(t, err)

	java := tools[1]
	assert.Equal(t, StatusOutdated, java.Status)
	assert.Equal(t, "1.8.0", java.CurrentVersion)

	missing := MissingRequiredTools(tools)
	require.Len(t, missing, 1)
	assert.Equal(t, "java", missing[0].Name)
}

func TestDefaultToolDetector_VersionProbeFails(t *testing.T) {
	projectDir := t.TempDir()
	writeWrapperScript(t, projectDir)

	executor := healthyExecutor()
	executor.runErrs = map[string]error{"java": exec.ErrNotFound}

	detector := NewToolDetectorWithExecutor(projectDir, "./gradlew", executor)

	tools, err := detector.Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusUnknown, tools[1].Status)
	assert.Empty(t, MissingRequiredTools(tools))
}

func TestDefaultToolDetector_OptionalToolMissing(t *testing.T) {
	projectDir := t.TempDir()
	writeWrapperScript(t, projectDir)

	executor := healthyExecutor()
	executor.found["adb"] = false

	detector := NewToolDetectorWithExecutor(projectDir, "./gradlew", executor)

	tools, err := detector.Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusMissing, tools[3].Status)
	assert.Empty(t, MissingRequiredTools(tools))
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		current string
		minimum string
		want    int
	}{
		{"17.0.2", "17", 1},
		{"17", "17", 0},
		{"17", "17.0.0", 0},
		{"1.8.0", "17", -1},
		{"2.1", "2.1.0", 0},
		{"2.39.5", "2.40", -1},
		{"v3.2.1", "3.2.1", 0},
		{"21.0.1", "17", 1},
	}

	for _, tt := range tests {
		t.Run(tt.current+" vs "+tt.minimum, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareVersions(tt.current, tt.minimum))
		})
	}
}

func TestParseVersionParts(t *testing.T) {
	assert.Equal(t, []int{1, 8, 0}, parseVersionParts("1.8.0_291"))
	assert.Equal(t, []int{17}, parseVersionParts("17"))
	assert.Equal(t, []int{2, 1, 3}, parseVersionParts("v2.1.3"))
	assert.Empty(t, parseVersionParts(""))
	assert.Empty(t, parseVersionParts("beta"))
}

func TestFormatMissingToolsError(t *testing.T) {
	msg := FormatMissingToolsError([]Tool{
		{
			Name:           "java",
			Status:         StatusOutdated,
			CurrentVersion: "11.0.2",
			MinVersion:     "17",
			InstallHint:    "Install JDK 17 or newer",
		},
		{
			Name:        "./gradlew",
			Status:      StatusMissing,
			InstallHint: "Run gradle wrapper in the project root",
		},
	})

	assert.Contains(t, msg, "Missing required tools:")
	assert.Contains(t, msg, "• java: version 11.0.2 found, 17 or newer required")
	assert.Contains(t, msg, "Install: Install JDK 17 or newer")
	assert.Contains(t, msg, "• ./gradlew: not found")
	assert.Contains(t, msg, "Install: Run gradle wrapper in the project root")
}

func TestToolStatus_String(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "missing", StatusMissing.String())
	assert.Equal(t, "outdated", StatusOutdated.String())
	assert.Equal(t, "unknown", StatusUnknown.String())
	assert.Equal(t, "unknown", ToolStatus(99).String())
}

func TestToolStatus_JSON(t *testing.T) {
	data, err := json.Marshal(StatusOutdated)
	require.NoError(t, err)
	assert.Equal(t, `"outdated"`, string(data))

	var status ToolStatus
	require.NoError(t, json.Unmarshal([]byte(`"missing"`), &status))
	assert.Equal(t, StatusMissing, status)
}
