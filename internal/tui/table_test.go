package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantrybuild/gantry/internal/constants"
)

func TestTable(t *testing.T) {
	columns := []TableColumn{
		{Name: "NAME", Width: 10, Align: AlignLeft},
		{Name: "VALUE", Width: 15, Align: AlignLeft},
		{Name: "COUNT", Width: 5, Align: AlignRight},
	}

	t.Run("WriteHeader", func(t *testing.T) {
		var buf bytes.Buffer
		table := NewTable(&buf, columns)
		table.WriteHeader()
		output := buf.String()
		assert.Contains(t, output, "NAME")
		assert.Contains(t, output, "VALUE")
		assert.Contains(t, output, "COUNT")
	})

	t.Run("WriteRow", func(t *testing.T) {
		var buf bytes.Buffer
		table := NewTable(&buf, columns)
		table.WriteRow("release", "succeeded", "11")
		output := buf.String()
		assert.Contains(t, output, "release")
		assert.Contains(t, output, "succeeded")
		assert.Contains(t, output, "11")
	})

	t.Run("WriteRow truncates long values", func(t *testing.T) {
		var buf bytes.Buffer
		table := NewTable(&buf, columns)
		table.WriteRow("verylongpipeline", "value", "42")
		output := buf.String()
		assert.Contains(t, output, "verylongp…")
		assert.NotContains(t, output, "verylongpipeline")
	})

	t.Run("WriteRow handles missing values", func(t *testing.T) {
		var buf bytes.Buffer
		table := NewTable(&buf, columns)
		table.WriteRow("release")
		output := buf.String()
		assert.Contains(t, output, "release")
	})

	t.Run("WriteStyledRow", func(t *testing.T) {
		var buf bytes.Buffer
		table := NewTable(&buf, columns)
		styledValue := "\x1b[32msucceeded\x1b[0m"
		plainValue := "succeeded"
		table.WriteStyledRow([]string{"release", plainValue, "5"}, 1, styledValue, plainValue)
		output := buf.String()
		assert.Contains(t, output, "release")
		assert.Contains(t, output, styledValue)
	})
}

func TestColorOffset(t *testing.T) {
	tests := []struct {
		name     string
		rendered string
		plain    string
		expected int
	}{
		{
			name:     "no color",
			rendered: "succeeded",
			plain:    "succeeded",
			expected: 0,
		},
		{
			name:     "with ANSI codes",
			rendered: "\x1b[32msucceeded\x1b[0m",
			plain:    "succeeded",
			expected: 9, // len("\x1b[32m") + len("\x1b[0m") = 5 + 4 = 9
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ColorOffset(tc.rendered, tc.plain))
		})
	}
}

func TestTableAlignment(t *testing.T) {
	t.Run("AlignLeft", func(t *testing.T) {
		columns := []TableColumn{
			{Name: "LEFT", Width: 10, Align: AlignLeft},
		}
		var buf bytes.Buffer
		table := NewTable(&buf, columns)
		table.WriteRow("run")
		assert.Contains(t, buf.String(), "run       ")
	})

	t.Run("AlignRight", func(t *testing.T) {
		columns := []TableColumn{
			{Name: "RIGHT", Width: 10, Align: AlignRight},
		}
		var buf bytes.Buffer
		table := NewTable(&buf, columns)
		table.WriteRow("run")
		assert.Contains(t, buf.String(), "       run")
	})
}

func TestNewRunTable(t *testing.T) {
	t.Run("creates table with rows", func(t *testing.T) {
		rows := []RunRow{
			{ID: "run-20260823-143000", Pipeline: "release", Status: constants.RunStatusCompleted},
		}
		rt := NewRunTable(rows, WithRunTableWidth(120))
		require.NotNil(t, rt)
		assert.Len(t, rt.Rows(), 1)
	})

	t.Run("creates empty table", func(t *testing.T) {
		rt := NewRunTable(nil, WithRunTableWidth(120))
		require.NotNil(t, rt)
		assert.Empty(t, rt.Rows())
	})

	t.Run("narrow mode follows the width option", func(t *testing.T) {
		rt := NewRunTable(nil, WithRunTableWidth(80))
		assert.True(t, rt.IsNarrow())

		rt = NewRunTable(nil, WithRunTableWidth(120))
		assert.False(t, rt.IsNarrow())
	})

	t.Run("terminal width 0 assumes wide", func(t *testing.T) {
		rt := NewRunTable(nil, WithRunTableWidth(0))
		assert.False(t, rt.IsNarrow())
	})
}

func TestRunTable_Headers(t *testing.T) {
	t.Run("returns full headers for wide terminal", func(t *testing.T) {
		rt := NewRunTable(nil, WithRunTableWidth(120))
		assert.Equal(t, []string{"RUN", "PIPELINE", "STATUS", "STEPS", "DURATION", "STARTED", "BRANCH"}, rt.Headers())
	})

	t.Run("returns abbreviated headers for narrow terminal", func(t *testing.T) {
		rt := NewRunTable(nil, WithRunTableWidth(80))
		assert.Equal(t, []string{"RUN", "PIPE", "STAT", "STEPS", "DUR", "AGE", "BRANCH"}, rt.Headers())
	})

	t.Run("narrow threshold is 100", func(t *testing.T) {
		assert.Equal(t, 100, TerminalWidthNarrow)

		rt := NewRunTable(nil, WithRunTableWidth(99))
		assert.True(t, rt.IsNarrow())

		rt = NewRunTable(nil, WithRunTableWidth(100))
		assert.False(t, rt.IsNarrow())
	})
}

func TestRunTable_Render(t *testing.T) {
	t.Run("renders complete table", func(t *testing.T) {
		rows := []RunRow{
			{
				ID:        "run-20260823-143000",
				Pipeline:  "release",
				Status:    constants.RunStatusCompleted,
				StepsDone: 11,
				StepsTot:  11,
				Duration:  5*time.Minute + 3*time.Second,
				StartedAt: time.Now().Add(-2 * time.Hour),
				Branch:    "main",
			},
			{
				ID:        "run-20260823-150000",
				Pipeline:  "release",
				Status:    constants.RunStatusRunning,
				StepsDone: 3,
				StepsTot:  11,
				StartedAt: time.Now().Add(-5 * time.Minute),
				Branch:    "develop",
				Publish:   true,
			},
		}
		rt := NewRunTable(rows, WithRunTableWidth(200))
		var buf bytes.Buffer
		err := rt.Render(&buf)
		require.NoError(t, err)

		output := buf.String()

		// Header
		assert.Contains(t, output, "RUN")
		assert.Contains(t, output, "PIPELINE")
		assert.Contains(t, output, "STATUS")
		assert.Contains(t, output, "STEPS")
		assert.Contains(t, output, "DURATION")
		assert.Contains(t, output, "STARTED")
		assert.Contains(t, output, "BRANCH")

		// First row
		assert.Contains(t, output, "run-20260823-143000")
		assert.Contains(t, output, "completed")
		assert.Contains(t, output, "11/11")
		assert.Contains(t, output, "5m 3s")
		assert.Contains(t, output, "2h ago")
		assert.Contains(t, output, "main")

		// Second row
		assert.Contains(t, output, "run-20260823-150000")
		assert.Contains(t, output, "release (publish)")
		assert.Contains(t, output, "running")
		assert.Contains(t, output, "3/11")
		assert.Contains(t, output, "5m ago")
		assert.Contains(t, output, "develop")
	})

	t.Run("uses dash placeholders for missing values", func(t *testing.T) {
		rows := []RunRow{
			{ID: "run-pending", Pipeline: "release", Status: constants.RunStatusPending},
		}
		rt := NewRunTable(rows, WithRunTableWidth(200))
		var buf bytes.Buffer
		err := rt.Render(&buf)
		require.NoError(t, err)

		output := buf.String()
		assert.Contains(t, output, "run-pending")
		// Steps, duration, started, and branch all fall back to a dash.
		assert.Contains(t, output, "—")
	})

	t.Run("uses double-space column separator", func(t *testing.T) {
		rows := []RunRow{
			{ID: "run-1", Pipeline: "release", Status: constants.RunStatusCompleted},
		}
		rt := NewRunTable(rows, WithRunTableWidth(200))
		var buf bytes.Buffer
		err := rt.Render(&buf)
		require.NoError(t, err)

		assert.Contains(t, buf.String(), "  ")
	})

	t.Run("renders empty table without error", func(t *testing.T) {
		rt := NewRunTable(nil, WithRunTableWidth(120))
		var buf bytes.Buffer
		err := rt.Render(&buf)
		require.NoError(t, err)

		output := buf.String()
		assert.Contains(t, output, "RUN")
		lines := strings.Split(strings.TrimSpace(output), "\n")
		assert.Len(t, lines, 1, "Empty table should only have header row")
	})
}

func TestRunTable_StatusCellRendering(t *testing.T) {
	testCases := []struct {
		status       constants.RunStatus
		expectedIcon string
	}{
		{constants.RunStatusPending, "○"},
		{constants.RunStatusRunning, "●"},
		{constants.RunStatusCompleted, "✓"},
		{constants.RunStatusAborted, "✗"},
	}

	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			rows := []RunRow{
				{ID: "run-1", Pipeline: "release", Status: tc.status},
			}
			rt := NewRunTable(rows, WithRunTableWidth(200))
			var buf bytes.Buffer
			err := rt.Render(&buf)
			require.NoError(t, err)

			output := buf.String()
			assert.Contains(t, output, tc.expectedIcon, "status cell should contain icon for %s", tc.status)
			assert.Contains(t, output, string(tc.status), "status cell should contain status text for %s", tc.status)
		})
	}
}

func TestRunTable_StatusCellPlain(t *testing.T) {
	rt := NewRunTable(nil, WithRunTableWidth(120))

	plain := rt.renderStatusCellPlain(constants.RunStatusCompleted)
	assert.Equal(t, "✓ completed", plain)

	padded := rt.renderStatusCellPadded(constants.RunStatusCompleted, 15)
	assert.Equal(t, 15, DisplayWidth(padded))
}

func TestRunTable_ColumnWidthCalculation(t *testing.T) {
	t.Run("long content is not truncated on wide terminals", func(t *testing.T) {
		rows := []RunRow{
			{
				ID:       "run-20260823-143000",
				Pipeline: "nightly-regression",
				Status:   constants.RunStatusCompleted,
				Branch:   "feature/very-long-branch-name-here",
			},
		}
		rt := NewRunTable(rows, WithRunTableWidth(200))
		var buf bytes.Buffer
		err := rt.Render(&buf)
		require.NoError(t, err)

		output := buf.String()
		assert.Contains(t, output, "run-20260823-143000")
		assert.Contains(t, output, "nightly-regression")
		assert.Contains(t, output, "feature/very-long-branch-name-here")
	})

	t.Run("shrinks branch column first when exceeding terminal width", func(t *testing.T) {
		rows := []RunRow{
			{
				ID:        "run-20260823-143000",
				Pipeline:  "release",
				Status:    constants.RunStatusRunning,
				StepsDone: 3,
				StepsTot:  11,
				Branch:    "feature/very-long-branch-name-here",
				Publish:   true,
			},
		}
		rt := NewRunTable(rows, WithRunTableWidth(100))
		var buf bytes.Buffer
		err := rt.Render(&buf)
		require.NoError(t, err)

		output := buf.String()
		// ID stays intact; the branch gets truncated.
		assert.Contains(t, output, "run-20260823-143000")
		assert.NotContains(t, output, "feature/very-long-branch-name-here")

		for _, line := range strings.Split(output, "\n") {
			if line == "" {
				continue
			}
			assert.LessOrEqual(t, DisplayWidth(line), 100,
				"line should fit within 100 columns: %q", line)
		}
	})

	t.Run("respects minimum column widths", func(t *testing.T) {
		rows := []RunRow{
			{
				ID:       "run-20260823-143000-with-a-long-suffix",
				Pipeline: "nightly-regression",
				Status:   constants.RunStatusRunning,
				Branch:   "feature/very-long-branch-name-here",
			},
		}
		rt := NewRunTable(rows, WithRunTableWidth(80))
		var buf bytes.Buffer
		err := rt.Render(&buf)
		require.NoError(t, err)

		output := buf.String()
		assert.NotEmpty(t, output)
		assert.Contains(t, output, "STEPS")
		assert.Contains(t, output, "BRANCH")
	})

	t.Run("zero terminal width applies no constraints", func(t *testing.T) {
		rows := []RunRow{
			{
				ID:       "run-20260823-143000",
				Pipeline: "release",
				Status:   constants.RunStatusCompleted,
				Branch:   "feature/very-long-branch-name-here",
			},
		}
		rt := NewRunTable(rows, WithRunTableWidth(0))
		var buf bytes.Buffer
		err := rt.Render(&buf)
		require.NoError(t, err)

		assert.Contains(t, buf.String(), "feature/very-long-branch-name-here")
	})
}

func TestMinRunColumnWidths(t *testing.T) {
	assert.Equal(t, 15, MinRunColumnWidths.ID)
	assert.Equal(t, 8, MinRunColumnWidths.Pipeline)
	assert.Equal(t, 11, MinRunColumnWidths.Status)
	assert.Equal(t, 5, MinRunColumnWidths.Steps)
	assert.Equal(t, 8, MinRunColumnWidths.Duration)
	assert.Equal(t, 10, MinRunColumnWidths.Started)
	assert.Equal(t, 10, MinRunColumnWidths.Branch)
}

func TestRunTable_Rows(t *testing.T) {
	t.Run("returns a copy not internal slice", func(t *testing.T) {
		rows := []RunRow{
			{ID: "run-1", Pipeline: "release", Status: constants.RunStatusCompleted},
		}
		rt := NewRunTable(rows, WithRunTableWidth(120))

		returned := rt.Rows()
		returned[0].ID = "modified"

		assert.Equal(t, "run-1", rt.Rows()[0].ID, "Rows() should return a copy, not internal slice")
	})

	t.Run("returns nil for nil input", func(t *testing.T) {
		rt := NewRunTable(nil, WithRunTableWidth(120))
		assert.Nil(t, rt.Rows())
	})
}
