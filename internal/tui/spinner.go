package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// safeWriter wraps an io.Writer with mutex protection for concurrent access.
// The same writer is shared between the spinner animation goroutine and
// command output streaming, so unsynchronized writes would interleave.
type safeWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// newSafeWriter creates a mutex-protected writer wrapper.
func newSafeWriter(w io.Writer) *safeWriter {
	return &safeWriter{w: w}
}

// Write implements io.Writer with mutex protection.
func (sw *safeWriter) Write(p []byte) (n int, err error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.w.Write(p)
}

// flushWriter attempts to flush the writer if it supports flushing.
// This ensures escape sequences reach the terminal immediately instead of
// sitting in a buffer while a step runs.
func flushWriter(w io.Writer) {
	type syncer interface {
		Sync() error
	}
	if s, ok := w.(syncer); ok {
		_ = s.Sync()
	}
}

// spinnerFrames are the animation frames for the spinner.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"} //nolint:gochecknoglobals // Package-level constant for spinner animation

// SpinnerFrames returns the animation frames for testing.
func SpinnerFrames() []string {
	return spinnerFrames
}

// SpinnerInterval is the update interval for spinner animation.
const SpinnerInterval = 100 * time.Millisecond

// ElapsedTimeThreshold is the duration after which elapsed time is shown
// next to the spinner message. Short steps stay quiet; long Gradle builds
// get a running clock.
const ElapsedTimeThreshold = 30 * time.Second

// SpinnerMessageThrottle is the minimum interval between spinner message
// updates. Command output can arrive faster than the terminal should redraw.
const SpinnerMessageThrottle = 200 * time.Millisecond

// spinnerManager is the singleton instance for tracking active spinners.
var spinnerManager = &SpinnerManager{} //nolint:gochecknoglobals // Singleton for global spinner tracking

// SpinnerManager tracks the currently active spinner so log writers can
// clear the animation line before printing. Without this, log messages
// land on the same line as the spinner frame.
type SpinnerManager struct {
	mu     sync.Mutex
	active *TerminalSpinner
}

// SetActive registers the given spinner as the currently active spinner.
func (m *SpinnerManager) SetActive(s *TerminalSpinner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = s
}

// ClearActive removes the currently active spinner.
func (m *SpinnerManager) ClearActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = nil
}

// GetActive returns the currently active spinner, or nil if none is active.
func (m *SpinnerManager) GetActive() *TerminalSpinner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// GlobalSpinnerManager returns the global spinner manager instance.
// Log writers use it to coordinate line clearing with the animation.
func GlobalSpinnerManager() *SpinnerManager {
	return spinnerManager
}

// Spinner is the progress surface the run command drives while steps
// execute. TerminalSpinner implements it for interactive output and
// NoopSpinner for JSON or piped output.
type Spinner interface {
	Start(ctx context.Context, message string)
	UpdateMessage(message string)
	Stop()
	StopWithSuccess(message string)
	StopWithError(message string)
	StopWithWarning(message string)
}

// Interface guards.
var (
	_ Spinner = (*TerminalSpinner)(nil)
	_ Spinner = (*NoopSpinner)(nil)
)

// TerminalSpinner provides animated progress indication for terminal output.
type TerminalSpinner struct {
	w       *safeWriter
	styles  *OutputStyles
	message string
	started time.Time
	done    chan struct{}
	mu      sync.Mutex
	running bool
	stopped bool // tracks if Stop() has been called for the current cycle

	lastMessageUpdate time.Time
	throttleInterval  time.Duration
}

// NewTerminalSpinner creates a new spinner that writes to w. The writer is
// wrapped with mutex protection so command output can share it safely.
func NewTerminalSpinner(w io.Writer) *TerminalSpinner {
	return &TerminalSpinner{
		w:                newSafeWriter(w),
		styles:           NewOutputStyles(),
		throttleInterval: SpinnerMessageThrottle,
	}
}

// Writer returns the thread-safe writer used by this spinner. Command
// executors write streamed output through it to avoid racing the animation.
func (s *TerminalSpinner) Writer() io.Writer {
	return s.w
}

// Start begins the spinner animation with the given message. Calling Start
// on a running spinner just updates the message.
func (s *TerminalSpinner) Start(ctx context.Context, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.message = message
	s.started = time.Now()
	s.lastMessageUpdate = time.Now()

	if s.running {
		return
	}

	s.running = true
	s.stopped = false
	s.done = make(chan struct{})

	spinnerManager.SetActive(s)

	// Capture the done channel before starting the goroutine to avoid a
	// race with a concurrent Stop().
	done := s.done
	go s.animate(ctx, done)
}

// UpdateMessage changes the spinner message without stopping the animation.
// Updates are throttled and deduplicated.
func (s *TerminalSpinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.message == message {
		return
	}

	now := time.Now()
	if now.Sub(s.lastMessageUpdate) < s.throttleInterval {
		return
	}

	s.message = message
	s.lastMessageUpdate = now
}

// Stop stops the spinner animation and clears the line.
func (s *TerminalSpinner) Stop() {
	s.mu.Lock()
	if !s.running || s.stopped {
		s.mu.Unlock()
		return
	}

	// Mark stopped while holding the lock so the done channel closes at
	// most once even if context cancellation races this call.
	s.stopped = true
	s.running = false
	done := s.done
	s.mu.Unlock()

	close(done)

	// Clear the spinner line before marking inactive so any log that
	// arrives after ClearActive() writes to an already-cleared line.
	_, _ = fmt.Fprint(s.w, "\r\033[K")
	flushWriter(s.w)

	spinnerManager.ClearActive()
}

// StopWithSuccess stops the spinner and displays a success message.
func (s *TerminalSpinner) StopWithSuccess(message string) {
	s.Stop()
	_, _ = fmt.Fprintln(s.w, s.styles.Success.Render("✓ "+message))
}

// StopWithError stops the spinner and displays an error message.
func (s *TerminalSpinner) StopWithError(message string) {
	s.Stop()
	_, _ = fmt.Fprintln(s.w, s.styles.Error.Render("✗ "+message))
}

// StopWithWarning stops the spinner and displays a warning message.
func (s *TerminalSpinner) StopWithWarning(message string) {
	s.Stop()
	_, _ = fmt.Fprintln(s.w, s.styles.Warning.Render("⚠ "+message))
}

// animate runs the spinner animation loop. The done channel is passed as a
// parameter to avoid races on the s.done field.
func (s *TerminalSpinner) animate(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(SpinnerInterval)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-done:
			// Stopped explicitly; Stop() handles line cleanup.
			return
		case <-ctx.Done():
			s.mu.Lock()
			wasRunning := s.running && !s.stopped
			if wasRunning {
				s.running = false
				s.stopped = true
			}
			s.mu.Unlock()

			if wasRunning {
				_, _ = fmt.Fprint(s.w, "\r\033[K")
				flushWriter(s.w)
				spinnerManager.ClearActive()
			}
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.running {
				s.mu.Unlock()
				return
			}

			msg := s.message
			elapsed := time.Since(s.started)
			if elapsed > ElapsedTimeThreshold {
				msg = fmt.Sprintf("%s %s", s.message, formatElapsedTime(elapsed))
			}

			spinnerFrame := s.styles.Info.Render(spinnerFrames[frame%len(spinnerFrames)])

			// Truncate to the terminal width so the animation never wraps.
			// Frame (1 column) + space (1) + safety margin (2) = 4.
			maxMsgWidth := getTerminalWidth() - 4
			if maxMsgWidth > 0 {
				msg = Truncate(msg, maxMsgWidth)
			}
			s.mu.Unlock()

			_, _ = fmt.Fprintf(s.w, "\r\033[K%s %s", spinnerFrame, msg)
			flushWriter(s.w)

			frame++
		}
	}
}

// formatElapsedTime formats a running duration for the spinner suffix.
func formatElapsedTime(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("(%ds elapsed)", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("(%dm %ds elapsed)", minutes, seconds)
}

// getTerminalWidth returns the current terminal width for spinner output.
// Uses stderr since the spinner writes there. Falls back to the default
// width when the size cannot be determined.
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stderr.Fd())) //nolint:gosec // G115: file descriptors fit in int on all supported platforms
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	return width
}

// FormatDuration formats a step or run duration for display.
// Sub-second durations show milliseconds, sub-minute show seconds with one
// decimal, and anything longer shows minutes and seconds.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// NoopSpinner is a no-op spinner for JSON or piped output.
type NoopSpinner struct{}

// NewNoopSpinner creates a spinner that renders nothing.
func NewNoopSpinner() *NoopSpinner {
	return &NoopSpinner{}
}

// Start is a no-op.
func (*NoopSpinner) Start(_ context.Context, _ string) {}

// UpdateMessage is a no-op.
func (*NoopSpinner) UpdateMessage(_ string) {}

// Stop is a no-op.
func (*NoopSpinner) Stop() {}

// StopWithSuccess is a no-op.
func (*NoopSpinner) StopWithSuccess(_ string) {}

// StopWithError is a no-op.
func (*NoopSpinner) StopWithError(_ string) {}

// StopWithWarning is a no-op.
func (*NoopSpinner) StopWithWarning(_ string) {}
