package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// testError is a custom error type used to test default branches
// in UserMessage and Actionable without matching any sentinel.
type testError struct {
	msg string
}

func (e testError) Error() string {
	return e.msg
}

func TestSentinelErrors_Existence(t *testing.T) {
	// Verify all sentinel errors exist and are non-nil
	sentinels := []struct {
		name string
		err  error
	}{
		{"ErrStepFailed", gantryerrors.ErrStepFailed},
		{"ErrCommandFailed", gantryerrors.ErrCommandFailed},
		{"ErrCommandTimeout", gantryerrors.ErrCommandTimeout},
		{"ErrArtifactMissing", gantryerrors.ErrArtifactMissing},
		{"ErrMissingPrerequisite", gantryerrors.ErrMissingPrerequisite},
		{"ErrWrapperNotFound", gantryerrors.ErrWrapperNotFound},
		{"ErrPipelineNotFound", gantryerrors.ErrPipelineNotFound},
		{"ErrRunNotFound", gantryerrors.ErrRunNotFound},
		{"ErrRunInProgress", gantryerrors.ErrRunInProgress},
		{"ErrInvalidTransition", gantryerrors.ErrInvalidTransition},
		{"ErrDialogDismissed", gantryerrors.ErrDialogDismissed},
	}

	for _, tc := range sentinels {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, tc.err, "%s should not be nil", tc.name)
			assert.NotEmpty(t, tc.err.Error(), "%s should have a message", tc.name)
		})
	}
}

func TestSentinelErrors_Messages(t *testing.T) {
	// Verify sentinel errors have lowercase messages per Go conventions
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrStepFailed", gantryerrors.ErrStepFailed, "step failed"},
		{"ErrCommandFailed", gantryerrors.ErrCommandFailed, "command failed"},
		{"ErrCommandTimeout", gantryerrors.ErrCommandTimeout, "command timed out"},
		{"ErrArtifactMissing", gantryerrors.ErrArtifactMissing, "artifact missing"},
		{"ErrMissingPrerequisite", gantryerrors.ErrMissingPrerequisite, "missing prerequisite"},
		{"ErrPipelineNotFound", gantryerrors.ErrPipelineNotFound, "pipeline not found"},
		{"ErrRunInProgress", gantryerrors.ErrRunInProgress, "another run is in progress"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	// Ensure each sentinel error is unique and errors.Is() distinguishes them
	allErrors := []error{
		gantryerrors.ErrStepFailed,
		gantryerrors.ErrCommandFailed,
		gantryerrors.ErrCommandTimeout,
		gantryerrors.ErrArtifactMissing,
		gantryerrors.ErrMissingPrerequisite,
		gantryerrors.ErrWrapperNotFound,
		gantryerrors.ErrPipelineNotFound,
		gantryerrors.ErrRunNotFound,
	}

	for i, err1 := range allErrors {
		for j, err2 := range allErrors {
			if i == j {
				assert.ErrorIs(t, err1, err2, "error should match itself")
			} else {
				assert.NotErrorIs(t, err1, err2, "different errors should not match")
			}
		}
	}
}

func TestSentinelErrors_WrappingPreservesIdentity(t *testing.T) {
	wrapped := fmt.Errorf("step 'clean' in pipeline 'release': %w", gantryerrors.ErrStepFailed)

	assert.ErrorIs(t, wrapped, gantryerrors.ErrStepFailed)
	assert.NotErrorIs(t, wrapped, gantryerrors.ErrCommandFailed)
}

func TestExitCode2Error(t *testing.T) {
	t.Parallel()

	base := gantryerrors.ErrInvalidOutputFormat
	wrapped := gantryerrors.NewExitCode2Error(base)

	assert.Equal(t, base.Error(), wrapped.Error())
	assert.ErrorIs(t, wrapped, base)
	assert.True(t, gantryerrors.IsExitCode2Error(wrapped))
	assert.True(t, gantryerrors.IsExitCode2Error(fmt.Errorf("outer: %w", wrapped)))
	assert.False(t, gantryerrors.IsExitCode2Error(base))
	assert.False(t, gantryerrors.IsExitCode2Error(nil))
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("nil error returns nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, gantryerrors.Wrap(nil, "context"))
	})

	t.Run("adds context and preserves chain", func(t *testing.T) {
		t.Parallel()
		err := gantryerrors.Wrap(gantryerrors.ErrRunNotFound, "loading report")
		require.Error(t, err)
		assert.Equal(t, "loading report: run not found", err.Error())
		assert.ErrorIs(t, err, gantryerrors.ErrRunNotFound)
	})
}

func TestWrapf(t *testing.T) {
	t.Parallel()

	t.Run("nil error returns nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, gantryerrors.Wrapf(nil, "run %s", "run-20260101-000000"))
	})

	t.Run("formats context and preserves chain", func(t *testing.T) {
		t.Parallel()
		err := gantryerrors.Wrapf(gantryerrors.ErrArtifactMissing, "verifying %d artifacts", 3)
		require.Error(t, err)
		assert.Equal(t, "verifying 3 artifacts: artifact missing", err.Error())
		assert.ErrorIs(t, err, gantryerrors.ErrArtifactMissing)
	})
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil error",
			err:  nil,
			want: "",
		},
		{
			name: "known sentinel",
			err:  gantryerrors.ErrStepFailed,
			want: "A fatal pipeline step failed. Check the output above for the failing command.",
		},
		{
			name: "wrapped sentinel",
			err:  fmt.Errorf("step 'publish': %w", gantryerrors.ErrCommandTimeout),
			want: "A build command exceeded its timeout and was terminated.",
		},
		{
			name: "unknown error falls back to its message",
			err:  testError{msg: "something odd"},
			want: "something odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, gantryerrors.UserMessage(tt.err))
		})
	}
}

func TestActionable(t *testing.T) {
	t.Parallel()

	t.Run("nil error", func(t *testing.T) {
		t.Parallel()
		msg, action := gantryerrors.Actionable(nil)
		assert.Empty(t, msg)
		assert.Empty(t, action)
	})

	t.Run("sentinel with action", func(t *testing.T) {
		t.Parallel()
		msg, action := gantryerrors.Actionable(gantryerrors.ErrMissingPrerequisite)
		assert.Equal(t, "Required tools are missing or outdated.", msg)
		assert.Contains(t, action, "gantry doctor")
	})

	t.Run("unknown error has no action", func(t *testing.T) {
		t.Parallel()
		msg, action := gantryerrors.Actionable(testError{msg: "boom"})
		assert.Equal(t, "boom", msg)
		assert.Empty(t, action)
	})
}
