package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatusString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status RunStatus
		want   string
	}{
		{name: "pending", status: RunStatusPending, want: "pending"},
		{name: "running", status: RunStatusRunning, want: "running"},
		{name: "completed", status: RunStatusCompleted, want: "completed"},
		{name: "aborted", status: RunStatusAborted, want: "aborted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestRunStatusIsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status RunStatus
		want   bool
	}{
		{name: "pending is not terminal", status: RunStatusPending, want: false},
		{name: "running is not terminal", status: RunStatusRunning, want: false},
		{name: "completed is terminal", status: RunStatusCompleted, want: true},
		{name: "aborted is terminal", status: RunStatusAborted, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
}

func TestStepStatusString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status StepStatus
		want   string
	}{
		{status: StepStatusPending, want: "pending"},
		{status: StepStatusRunning, want: "running"},
		{status: StepStatusSucceeded, want: "succeeded"},
		{status: StepStatusFailed, want: "failed"},
		{status: StepStatusWarned, want: "warned"},
		{status: StepStatusSkipped, want: "skipped"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}
