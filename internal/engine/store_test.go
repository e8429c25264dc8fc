package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/domain"
	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// createTestRun creates a test run with the given ID.
func createTestRun(id string) *domain.Run {
	now := time.Now().UTC()
	return &domain.Run{
		ID:         id,
		TraceID:    "00000000-0000-4000-8000-000000000000",
		Pipeline:   "release",
		ProjectDir: "/tmp/project",
		Status:     constants.RunStatusPending,
		Steps: []domain.StepResult{
			{Name: "clean", Status: constants.StepStatusPending},
			{Name: "unit-test-sdk", Status: constants.StepStatusPending},
		},
		CreatedAt:     now,
		UpdatedAt:     now,
		SchemaVersion: constants.RunSchemaVersion,
	}
}

// setupTestStore creates a test store with a temp directory.
func setupTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	tmpDir := t.TempDir()

	store, err := NewFileStore(tmpDir)
	require.NoError(t, err)

	return store, tmpDir
}

func TestNewFileStore(t *testing.T) {
	t.Run("with custom path", func(t *testing.T) {
		tmpDir := t.TempDir()
		store, err := NewFileStore(tmpDir)
		require.NoError(t, err)
		assert.NotNil(t, store)
		assert.Equal(t, tmpDir, store.gantryHome)
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		store, err := NewFileStore("")
		require.NoError(t, err)
		assert.NotNil(t, store)
		assert.Contains(t, store.gantryHome, constants.GantryHome)
	})
}

func TestFileStore_Create(t *testing.T) {
	t.Run("creates run successfully", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)

		run := createTestRun("run-20260823-100000")

		err := store.Create(context.Background(), run)
		require.NoError(t, err)

		// Verify file exists
		runPath := filepath.Join(tmpDir, constants.RunsDir, run.ID, constants.RunFileName)
		_, err = os.Stat(runPath)
		require.NoError(t, err)

		// Verify content
		data, err := os.ReadFile(runPath) //#nosec G304 -- test file path
		require.NoError(t, err)

		var loaded domain.Run
		err = json.Unmarshal(data, &loaded)
		require.NoError(t, err)
		assert.Equal(t, run.ID, loaded.ID)
		assert.Equal(t, run.Pipeline, loaded.Pipeline)
		assert.Equal(t, constants.RunSchemaVersion, loaded.SchemaVersion)
	})

	t.Run("errors on duplicate run", func(t *testing.T) {
		store, _ := setupTestStore(t)

		run := createTestRun("run-20260823-100001")

		err := store.Create(context.Background(), run)
		require.NoError(t, err)

		err = store.Create(context.Background(), run)
		require.Error(t, err)
		assert.ErrorIs(t, err, gantryerrors.ErrRunExists)
	})

	t.Run("errors on nil run", func(t *testing.T) {
		store, _ := setupTestStore(t)

		err := store.Create(context.Background(), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, gantryerrors.ErrEmptyValue)
	})

	t.Run("errors on empty run ID", func(t *testing.T) {
		store, _ := setupTestStore(t)
		run := createTestRun("")

		err := store.Create(context.Background(), run)
		require.Error(t, err)
		assert.ErrorIs(t, err, gantryerrors.ErrEmptyValue)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		store, _ := setupTestStore(t)
		run := createTestRun("run-20260823-100002")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := store.Create(ctx, run)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestFileStore_Get(t *testing.T) {
	t.Run("gets existing run", func(t *testing.T) {
		store, _ := setupTestStore(t)

		run := createTestRun("run-20260823-110000")
		require.NoError(t, store.Create(context.Background(), run))

		loaded, err := store.Get(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, loaded.ID)
		assert.Equal(t, run.TraceID, loaded.TraceID)
		assert.Len(t, loaded.Steps, 2)
	})

	t.Run("errors on missing run", func(t *testing.T) {
		store, _ := setupTestStore(t)

		_, err := store.Get(context.Background(), "run-20260823-999999")
		require.Error(t, err)
		assert.ErrorIs(t, err, gantryerrors.ErrRunNotFound)
	})

	t.Run("errors on empty run ID", func(t *testing.T) {
		store, _ := setupTestStore(t)

		_, err := store.Get(context.Background(), "")
		require.Error(t, err)
		assert.ErrorIs(t, err, gantryerrors.ErrEmptyValue)
	})

	t.Run("errors on corrupted run file", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)

		run := createTestRun("run-20260823-110001")
		require.NoError(t, store.Create(context.Background(), run))

		runPath := filepath.Join(tmpDir, constants.RunsDir, run.ID, constants.RunFileName)
		require.NoError(t, os.WriteFile(runPath, []byte("not json"), 0o600))

		_, err := store.Get(context.Background(), run.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "corrupted")
	})
}

func TestFileStore_Update(t *testing.T) {
	t.Run("updates run state", func(t *testing.T) {
		store, _ := setupTestStore(t)

		run := createTestRun("run-20260823-120000")
		require.NoError(t, store.Create(context.Background(), run))

		run.Status = constants.RunStatusRunning
		run.CurrentStep = 1
		run.Steps[0].Status = constants.StepStatusSucceeded

		err := store.Update(context.Background(), run)
		require.NoError(t, err)

		loaded, err := store.Get(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Equal(t, constants.RunStatusRunning, loaded.Status)
		assert.Equal(t, 1, loaded.CurrentStep)
		assert.Equal(t, constants.StepStatusSucceeded, loaded.Steps[0].Status)
	})

	t.Run("errors on missing run", func(t *testing.T) {
		store, _ := setupTestStore(t)

		run := createTestRun("run-20260823-120001")
		err := store.Update(context.Background(), run)
		require.Error(t, err)
		assert.ErrorIs(t, err, gantryerrors.ErrRunNotFound)
	})

	t.Run("bumps UpdatedAt", func(t *testing.T) {
		store, _ := setupTestStore(t)

		run := createTestRun("run-20260823-120002")
		require.NoError(t, store.Create(context.Background(), run))
		before := run.UpdatedAt

		time.Sleep(5 * time.Millisecond)
		require.NoError(t, store.Update(context.Background(), run))

		assert.True(t, run.UpdatedAt.After(before))
	})
}

func TestFileStore_List(t *testing.T) {
	t.Run("returns empty slice when no runs", func(t *testing.T) {
		store, _ := setupTestStore(t)

		runs, err := store.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, runs)
	})

	t.Run("lists runs newest first", func(t *testing.T) {
		store, _ := setupTestStore(t)

		older := createTestRun("run-20260822-100000")
		older.CreatedAt = time.Date(2026, 8, 22, 10, 0, 0, 0, time.UTC)
		newer := createTestRun("run-20260823-100000")
		newer.CreatedAt = time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

		require.NoError(t, store.Create(context.Background(), older))
		require.NoError(t, store.Create(context.Background(), newer))

		runs, err := store.List(context.Background())
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, newer.ID, runs[0].ID)
		assert.Equal(t, older.ID, runs[1].ID)
	})

	t.Run("skips directories with invalid names", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)

		run := createTestRun("run-20260823-130000")
		require.NoError(t, store.Create(context.Background(), run))

		// Stray directory that is not a run
		require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, constants.RunsDir, "not-a-run"), 0o750))

		runs, err := store.List(context.Background())
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, run.ID, runs[0].ID)
	})
}

func TestFileStore_Latest(t *testing.T) {
	t.Run("returns newest run", func(t *testing.T) {
		store, _ := setupTestStore(t)

		older := createTestRun("run-20260822-100000")
		older.CreatedAt = time.Date(2026, 8, 22, 10, 0, 0, 0, time.UTC)
		newer := createTestRun("run-20260823-100000")
		newer.CreatedAt = time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

		require.NoError(t, store.Create(context.Background(), older))
		require.NoError(t, store.Create(context.Background(), newer))

		latest, err := store.Latest(context.Background())
		require.NoError(t, err)
		assert.Equal(t, newer.ID, latest.ID)
	})

	t.Run("errors when no runs exist", func(t *testing.T) {
		store, _ := setupTestStore(t)

		_, err := store.Latest(context.Background())
		require.ErrorIs(t, err, gantryerrors.ErrRunNotFound)
	})
}

func TestFileStore_Delete(t *testing.T) {
	t.Run("deletes run and artifacts", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)

		run := createTestRun("run-20260823-140000")
		require.NoError(t, store.Create(context.Background(), run))
		require.NoError(t, store.SaveArtifact(context.Background(), run.ID, "report.md", []byte("# Report")))

		err := store.Delete(context.Background(), run.ID)
		require.NoError(t, err)

		_, err = os.Stat(filepath.Join(tmpDir, constants.RunsDir, run.ID))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("errors on missing run", func(t *testing.T) {
		store, _ := setupTestStore(t)

		err := store.Delete(context.Background(), "run-20260823-999999")
		require.ErrorIs(t, err, gantryerrors.ErrRunNotFound)
	})
}

func TestFileStore_AppendLog(t *testing.T) {
	t.Run("appends JSON lines", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)

		run := createTestRun("run-20260823-150000")
		require.NoError(t, store.Create(context.Background(), run))

		require.NoError(t, store.AppendLog(context.Background(), run.ID, []byte(`{"event":"run_started"}`)))
		require.NoError(t, store.AppendLog(context.Background(), run.ID, []byte(`{"event":"step_started","step":"clean"}`)))

		data, err := os.ReadFile(filepath.Join(tmpDir, constants.RunsDir, run.ID, constants.RunLogFileName)) //#nosec G304 -- test file path
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "run_started")
		assert.Contains(t, lines[1], "clean")
	})

	t.Run("errors on missing run", func(t *testing.T) {
		store, _ := setupTestStore(t)

		err := store.AppendLog(context.Background(), "run-20260823-999999", []byte("{}"))
		require.ErrorIs(t, err, gantryerrors.ErrRunNotFound)
	})
}

func TestFileStore_Artifacts(t *testing.T) {
	t.Run("save and get artifact", func(t *testing.T) {
		store, _ := setupTestStore(t)

		run := createTestRun("run-20260823-160000")
		require.NoError(t, store.Create(context.Background(), run))

		content := []byte("# Run Report\n")
		require.NoError(t, store.SaveArtifact(context.Background(), run.ID, "report.md", content))

		loaded, err := store.GetArtifact(context.Background(), run.ID, "report.md")
		require.NoError(t, err)
		assert.Equal(t, content, loaded)
	})

	t.Run("rejects path traversal", func(t *testing.T) {
		store, _ := setupTestStore(t)

		run := createTestRun("run-20260823-160001")
		require.NoError(t, store.Create(context.Background(), run))

		err := store.SaveArtifact(context.Background(), run.ID, "../escape.md", []byte("x"))
		require.ErrorIs(t, err, gantryerrors.ErrPathTraversal)

		_, err = store.GetArtifact(context.Background(), run.ID, "../../etc/passwd")
		require.ErrorIs(t, err, gantryerrors.ErrPathTraversal)
	})

	t.Run("errors on missing artifact", func(t *testing.T) {
		store, _ := setupTestStore(t)

		run := createTestRun("run-20260823-160002")
		require.NoError(t, store.Create(context.Background(), run))

		_, err := store.GetArtifact(context.Background(), run.ID, "missing.md")
		require.ErrorIs(t, err, gantryerrors.ErrArtifactMissing)
	})

	t.Run("lists artifacts sorted", func(t *testing.T) {
		store, _ := setupTestStore(t)

		run := createTestRun("run-20260823-160003")
		require.NoError(t, store.Create(context.Background(), run))

		require.NoError(t, store.SaveArtifact(context.Background(), run.ID, "summary.txt", []byte("s")))
		require.NoError(t, store.SaveArtifact(context.Background(), run.ID, "report.md", []byte("r")))

		names, err := store.ListArtifacts(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"report.md", "summary.txt"}, names)
	})

	t.Run("list returns empty slice without artifacts dir", func(t *testing.T) {
		store, _ := setupTestStore(t)

		run := createTestRun("run-20260823-160004")
		require.NoError(t, store.Create(context.Background(), run))

		names, err := store.ListArtifacts(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestFileStore_SaveVersionedArtifact(t *testing.T) {
	t.Run("numbers versions sequentially", func(t *testing.T) {
		store, _ := setupTestStore(t)

		run := createTestRun("run-20260823-170000")
		require.NoError(t, store.Create(context.Background(), run))

		first, err := store.SaveVersionedArtifact(context.Background(), run.ID, "report.md", []byte("v1"))
		require.NoError(t, err)
		assert.Equal(t, "report.1.md", first)

		second, err := store.SaveVersionedArtifact(context.Background(), run.ID, "report.md", []byte("v2"))
		require.NoError(t, err)
		assert.Equal(t, "report.2.md", second)

		data, err := store.GetArtifact(context.Background(), run.ID, "report.2.md")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), data)
	})
}

func TestGenerateRunID(t *testing.T) {
	id := GenerateRunID()

	assert.True(t, strings.HasPrefix(id, "run-"))
	assert.Regexp(t, `^run-\d{8}-\d{6}$`, id)
	assert.True(t, validRunIDRegex.MatchString(id))
}

func TestGenerateRunIDUnique(t *testing.T) {
	t.Run("returns plain ID when unused", func(t *testing.T) {
		id := GenerateRunIDUnique(map[string]bool{})
		assert.Regexp(t, `^run-\d{8}-\d{6}$`, id)
	})

	t.Run("avoids IDs already in use", func(t *testing.T) {
		existing := map[string]bool{GenerateRunID(): true}
		id := GenerateRunIDUnique(existing)

		assert.False(t, existing[id], "generated ID must not collide")
		assert.True(t, validRunIDRegex.MatchString(id), "ID %q should match the run ID format", id)
	})
}
