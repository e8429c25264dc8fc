package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/domain"
	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// recordedRun builds a completed run fixture for history tests.
func recordedRun(id string, created time.Time) *domain.Run {
	completed := created.Add(5 * time.Minute)
	return &domain.Run{
		ID:       id,
		TraceID:  "b2a1c3d4-0000-0000-0000-000000000000",
		Pipeline: "release",
		Status:   constants.RunStatusCompleted,
		Publish:  true,
		Steps: []domain.StepResult{
			{Name: "clean", Status: constants.StepStatusSucceeded, Attempts: 1, Duration: 10 * time.Second},
			{Name: "lint", Status: constants.StepStatusWarned, Attempts: 1, Duration: 30 * time.Second, Error: "lint findings"},
		},
		Git: &domain.GitInfo{
			Branch: "main",
			Commit: "abc123def456",
			Dirty:  true,
		},
		CreatedAt:   created,
		UpdatedAt:   completed,
		CompletedAt: &completed,
		ExitCode:    constants.ExitSuccess,
	}
}

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewStore(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), constants.HistoryDBFileName)

		store, err := NewStore(dbPath)
		require.NoError(t, err)
		require.NoError(t, store.Record(context.Background(), recordedRun("run-20260823-100000", time.Now().UTC())))
		require.NoError(t, store.Close())

		_, err = os.Stat(dbPath)
		require.NoError(t, err)
	})

	t.Run("reopens existing database", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), constants.HistoryDBFileName)

		first, err := NewStore(dbPath)
		require.NoError(t, err)
		require.NoError(t, first.Record(context.Background(), recordedRun("run-20260823-100000", time.Now().UTC())))
		require.NoError(t, first.Close())

		second, err := NewStore(dbPath)
		require.NoError(t, err)
		defer func() { _ = second.Close() }()

		entries, err := second.List(context.Background(), 10)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestStore_Record(t *testing.T) {
	t.Run("roundtrips a run", func(t *testing.T) {
		store := newMemoryStore(t)
		created := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
		run := recordedRun("run-20260823-100000", created)

		require.NoError(t, store.Record(context.Background(), run))

		entry, err := store.Get(context.Background(), run.ID)
		require.NoError(t, err)

		assert.Equal(t, run.ID, entry.ID)
		assert.Equal(t, run.TraceID, entry.TraceID)
		assert.Equal(t, "release", entry.Pipeline)
		assert.Equal(t, constants.RunStatusCompleted, entry.Status)
		assert.True(t, entry.Publish)
		assert.Equal(t, constants.ExitSuccess, entry.ExitCode)
		assert.Equal(t, created.UnixMilli(), entry.StartedAt.UnixMilli())
		require.NotNil(t, entry.CompletedAt)
		assert.Equal(t, run.CompletedAt.UnixMilli(), entry.CompletedAt.UnixMilli())
		assert.Equal(t, 5*time.Minute, entry.Duration)

		assert.Equal(t, "main", entry.GitBranch)
		assert.Equal(t, "abc123def456", entry.GitCommit)
		assert.True(t, entry.GitDirty)

		require.Len(t, entry.Steps, 2)
		assert.Equal(t, "clean", entry.Steps[0].Name)
		assert.Equal(t, constants.StepStatusSucceeded, entry.Steps[0].Status)
		assert.Equal(t, 10*time.Second, entry.Steps[0].Duration)
		assert.Equal(t, "lint", entry.Steps[1].Name)
		assert.Equal(t, constants.StepStatusWarned, entry.Steps[1].Status)
		assert.Equal(t, "lint findings", entry.Steps[1].Error)
	})

	t.Run("recording the same ID replaces the row", func(t *testing.T) {
		store := newMemoryStore(t)
		created := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

		run := recordedRun("run-20260823-100000", created)
		require.NoError(t, store.Record(context.Background(), run))

		run.Status = constants.RunStatusAborted
		run.ExitCode = constants.ExitError
		require.NoError(t, store.Record(context.Background(), run))

		entries, err := store.List(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, constants.RunStatusAborted, entries[0].Status)
		assert.Equal(t, constants.ExitError, entries[0].ExitCode)
	})

	t.Run("run without git info", func(t *testing.T) {
		store := newMemoryStore(t)
		run := recordedRun("run-20260823-100000", time.Now().UTC())
		run.Git = nil

		require.NoError(t, store.Record(context.Background(), run))

		entry, err := store.Get(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Empty(t, entry.GitBranch)
		assert.Empty(t, entry.GitCommit)
		assert.False(t, entry.GitDirty)
	})

	t.Run("nil run returns error", func(t *testing.T) {
		store := newMemoryStore(t)
		err := store.Record(context.Background(), nil)
		require.ErrorIs(t, err, gantryerrors.ErrEmptyValue)
	})

	t.Run("empty run ID returns error", func(t *testing.T) {
		store := newMemoryStore(t)
		err := store.Record(context.Background(), &domain.Run{})
		require.ErrorIs(t, err, gantryerrors.ErrEmptyValue)
	})

	t.Run("canceled context returns error", func(t *testing.T) {
		store := newMemoryStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := store.Record(ctx, recordedRun("run-20260823-100000", time.Now().UTC()))
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestStore_List(t *testing.T) {
	t.Run("empty store returns no entries", func(t *testing.T) {
		store := newMemoryStore(t)

		entries, err := store.List(context.Background(), 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("returns newest first", func(t *testing.T) {
		store := newMemoryStore(t)
		base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

		for i, id := range []string{"run-20260820-090000", "run-20260821-090000", "run-20260822-090000"} {
			run := recordedRun(id, base.AddDate(0, 0, i))
			require.NoError(t, store.Record(context.Background(), run))
		}

		entries, err := store.List(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "run-20260822-090000", entries[0].ID)
		assert.Equal(t, "run-20260821-090000", entries[1].ID)
		assert.Equal(t, "run-20260820-090000", entries[2].ID)
	})

	t.Run("honors the limit", func(t *testing.T) {
		store := newMemoryStore(t)
		base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

		for i := range 5 {
			created := base.AddDate(0, 0, i)
			run := recordedRun(fmt.Sprintf("run-%s-090000", created.Format("20060102")), created)
			require.NoError(t, store.Record(context.Background(), run))
		}

		entries, err := store.List(context.Background(), 2)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("non-positive limit uses the default", func(t *testing.T) {
		store := newMemoryStore(t)
		require.NoError(t, store.Record(context.Background(), recordedRun("run-20260823-100000", time.Now().UTC())))

		entries, err := store.List(context.Background(), 0)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestStore_Get(t *testing.T) {
	t.Run("missing run returns ErrRunNotFound", func(t *testing.T) {
		store := newMemoryStore(t)

		_, err := store.Get(context.Background(), "run-20260823-999999")
		require.ErrorIs(t, err, gantryerrors.ErrRunNotFound)
	})

	t.Run("empty ID returns error", func(t *testing.T) {
		store := newMemoryStore(t)

		_, err := store.Get(context.Background(), "")
		require.ErrorIs(t, err, gantryerrors.ErrEmptyValue)
	})
}

func TestStore_Close(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.Record(context.Background(), recordedRun("run-20260823-100000", time.Now().UTC()))
	require.Error(t, err, "recording after close should fail")
}
