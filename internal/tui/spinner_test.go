package tui

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// safeSpinnerBuffer is a thread-safe buffer for spinner tests. The animation
// goroutine may still be writing when the test reads the output.
type safeSpinnerBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (sb *safeSpinnerBuffer) Write(p []byte) (n int, err error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buf.Write(p)
}

func (sb *safeSpinnerBuffer) String() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buf.String()
}

var _ io.Writer = (*safeSpinnerBuffer)(nil)

// syncRecorder records whether Sync was called.
type syncRecorder struct {
	bytes.Buffer
	synced bool
}

func (s *syncRecorder) Sync() error {
	s.synced = true
	return nil
}

func TestNewTerminalSpinner(t *testing.T) {
	var buf bytes.Buffer
	spinner := NewTerminalSpinner(&buf)
	require.NotNil(t, spinner)
	assert.Equal(t, SpinnerMessageThrottle, spinner.throttleInterval)
}

func TestTerminalSpinner_StartStop(t *testing.T) {
	buf := &safeSpinnerBuffer{}
	spinner := NewTerminalSpinner(buf)

	spinner.Start(context.Background(), "Running assemble-debug")
	spinner.Stop()

	// Stop clears the animation line.
	assert.Contains(t, buf.String(), "\r\033[K")
}

func TestTerminalSpinner_StartTwiceUpdatesMessage(t *testing.T) {
	buf := &safeSpinnerBuffer{}
	spinner := NewTerminalSpinner(buf)

	ctx := context.Background()
	spinner.Start(ctx, "First message")
	spinner.Start(ctx, "Second message")

	spinner.mu.Lock()
	message := spinner.message
	running := spinner.running
	spinner.mu.Unlock()

	assert.Equal(t, "Second message", message)
	assert.True(t, running)

	spinner.Stop()
}

func TestTerminalSpinner_RendersMessage(t *testing.T) {
	buf := &safeSpinnerBuffer{}
	spinner := NewTerminalSpinner(buf)

	spinner.Start(context.Background(), "assembling")

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "assembling")
	}, 2*time.Second, 20*time.Millisecond)

	spinner.Stop()
}

func TestTerminalSpinner_ShowsElapsedTimeForLongSteps(t *testing.T) {
	buf := &safeSpinnerBuffer{}
	spinner := NewTerminalSpinner(buf)

	spinner.Start(context.Background(), "connected-tests")

	// Backdate the start so the elapsed suffix kicks in on the next frame.
	spinner.mu.Lock()
	spinner.started = time.Now().Add(-45 * time.Second)
	spinner.mu.Unlock()

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "elapsed")
	}, 2*time.Second, 20*time.Millisecond)

	spinner.Stop()
}

func TestTerminalSpinner_UpdateMessage(t *testing.T) {
	var buf bytes.Buffer
	spinner := NewTerminalSpinner(&buf)

	// First update applies immediately.
	spinner.UpdateMessage("compiling sources")
	assert.Equal(t, "compiling sources", spinner.message)

	// Identical message is deduplicated.
	spinner.UpdateMessage("compiling sources")
	assert.Equal(t, "compiling sources", spinner.message)

	// A different message inside the throttle window is held back.
	spinner.UpdateMessage("running lint")
	assert.Equal(t, "compiling sources", spinner.message)

	// With throttling off the update applies.
	spinner.throttleInterval = 0
	spinner.UpdateMessage("running lint")
	assert.Equal(t, "running lint", spinner.message)
}

func TestTerminalSpinner_StopWithoutStart(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	spinner := NewTerminalSpinner(&buf)

	assert.NotPanics(t, func() {
		spinner.Stop()
		spinner.Stop()
	})
}

func TestTerminalSpinner_StopIsIdempotent(t *testing.T) {
	buf := &safeSpinnerBuffer{}
	spinner := NewTerminalSpinner(buf)

	spinner.Start(context.Background(), "verifying artifacts")
	spinner.Stop()

	assert.NotPanics(t, func() {
		spinner.Stop()
	})
	assert.Nil(t, GlobalSpinnerManager().GetActive())
}

func TestTerminalSpinner_StopWithSuccess(t *testing.T) {
	var buf bytes.Buffer
	spinner := NewTerminalSpinner(&buf)

	spinner.StopWithSuccess("assemble-release completed")

	output := buf.String()
	assert.Contains(t, output, "✓")
	assert.Contains(t, output, "assemble-release completed")
}

func TestTerminalSpinner_StopWithError(t *testing.T) {
	var buf bytes.Buffer
	spinner := NewTerminalSpinner(&buf)

	spinner.StopWithError("unit-tests failed")

	output := buf.String()
	assert.Contains(t, output, "✗")
	assert.Contains(t, output, "unit-tests failed")
}

func TestTerminalSpinner_StopWithWarning(t *testing.T) {
	var buf bytes.Buffer
	spinner := NewTerminalSpinner(&buf)

	spinner.StopWithWarning("integration-tests skipped")

	output := buf.String()
	assert.Contains(t, output, "⚠")
	assert.Contains(t, output, "integration-tests skipped")
}

func TestTerminalSpinner_StopWithErrorAfterStart(t *testing.T) {
	buf := &safeSpinnerBuffer{}
	spinner := NewTerminalSpinner(buf)

	spinner.Start(context.Background(), "Running unit-tests")
	spinner.StopWithError("unit-tests failed after 2 attempts")

	output := buf.String()
	assert.Contains(t, output, "✗")
	assert.Contains(t, output, "unit-tests failed after 2 attempts")
}

func TestTerminalSpinner_ContextCancellation(t *testing.T) {
	buf := &safeSpinnerBuffer{}
	spinner := NewTerminalSpinner(buf)

	ctx, cancel := context.WithCancel(context.Background())
	spinner.Start(ctx, "Cancellable step")
	assert.Same(t, spinner, GlobalSpinnerManager().GetActive())

	cancel()

	require.Eventually(t, func() bool {
		return GlobalSpinnerManager().GetActive() == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTerminalSpinner_RegistersWithManager(t *testing.T) {
	buf := &safeSpinnerBuffer{}
	spinner := NewTerminalSpinner(buf)

	spinner.Start(context.Background(), "Running lint")
	assert.Same(t, spinner, GlobalSpinnerManager().GetActive())

	spinner.Stop()
	assert.Nil(t, GlobalSpinnerManager().GetActive())
}

func TestTerminalSpinner_Writer(t *testing.T) {
	var buf bytes.Buffer
	spinner := NewTerminalSpinner(&buf)

	w := spinner.Writer()
	require.NotNil(t, w)

	_, err := w.Write([]byte("gradle output line"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "gradle output line")
}

func TestSpinnerManager(t *testing.T) {
	m := &SpinnerManager{}
	assert.Nil(t, m.GetActive())

	var buf bytes.Buffer
	spinner := NewTerminalSpinner(&buf)

	m.SetActive(spinner)
	assert.Same(t, spinner, m.GetActive())

	m.ClearActive()
	assert.Nil(t, m.GetActive())
}

func TestSafeWriter_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sw := newSafeWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = sw.Write([]byte("x"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, buf.Len())
}

func TestFlushWriter(t *testing.T) {
	t.Parallel()

	rec := &syncRecorder{}
	flushWriter(rec)
	assert.True(t, rec.synced)

	// Writers without Sync are left alone.
	assert.NotPanics(t, func() {
		flushWriter(&bytes.Buffer{})
	})
}

func TestSpinnerFrames(t *testing.T) {
	t.Parallel()

	assert.NotEmpty(t, SpinnerFrames())
	assert.Len(t, SpinnerFrames(), 10)
}

func TestSpinnerConstants(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100*time.Millisecond, SpinnerInterval)
	assert.Equal(t, 30*time.Second, ElapsedTimeThreshold)
	assert.Equal(t, 200*time.Millisecond, SpinnerMessageThrottle)
}

func TestFormatElapsedTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"under a minute", 45 * time.Second, "(45s elapsed)"},
		{"exactly a minute", time.Minute, "(1m 0s elapsed)"},
		{"minutes and seconds", 90 * time.Second, "(1m 30s elapsed)"},
		{"several minutes", 2*time.Minute + 5*time.Second, "(2m 5s elapsed)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, formatElapsedTime(tt.duration))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"zero", 0, "0ms"},
		{"milliseconds", 500 * time.Millisecond, "500ms"},
		{"just under a second", 999 * time.Millisecond, "999ms"},
		{"one second", time.Second, "1.0s"},
		{"seconds with decimal", 1234 * time.Millisecond, "1.2s"},
		{"many seconds", 59 * time.Second, "59.0s"},
		{"minutes and seconds", 65 * time.Second, "1m 5s"},
		{"whole minutes", 10 * time.Minute, "10m 0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, FormatDuration(tt.duration))
		})
	}
}

func TestNoopSpinner(t *testing.T) {
	t.Parallel()

	spinner := NewNoopSpinner()
	require.NotNil(t, spinner)

	assert.NotPanics(t, func() {
		spinner.Start(context.Background(), "ignored")
		spinner.UpdateMessage("ignored")
		spinner.Stop()
		spinner.StopWithSuccess("ignored")
		spinner.StopWithError("ignored")
		spinner.StopWithWarning("ignored")
	})
}
