// Package cli provides the command-line interface for gantry.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gantrybuild/gantry/internal/config"
	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/logging"
)

// logFileWriter holds the log file writer for cleanup purposes.
// This is package-level to enable cleanup during shutdown.
// Access is protected by logFileMu; parallel command executions may
// re-initialize the logger.
var (
	logFileWriter io.WriteCloser //nolint:gochecknoglobals // Needed for cleanup
	logFileMu     sync.Mutex     //nolint:gochecknoglobals // Protects logFileWriter
)

// zerologConfigOnce ensures zerolog global settings are configured exactly once.
var zerologConfigOnce sync.Once //nolint:gochecknoglobals // One-time configuration

// zerologGlobalMu protects concurrent writes to the zerolog global logger.
// This is separate from globalLoggerMu to avoid deadlocks.
var zerologGlobalMu sync.Mutex //nolint:gochecknoglobals // Protects zerolog global

// configureZerologGlobals sets zerolog global field names to match the
// per-run log entry structure written by the engine. This is called once
// before any logger is created and is safe for concurrent use.
func configureZerologGlobals() {
	zerologConfigOnce.Do(func() {
		// Use "ts" for timestamp and "event" for message so CLI log lines
		// and run.log lines share a schema
		zerolog.TimestampFieldName = "ts"
		zerolog.MessageFieldName = "event"
	})
}

// loggerSetup holds the common components needed to create a logger.
type loggerSetup struct {
	level      zerolog.Level
	hook       zerolog.Hook
	fileWriter io.WriteCloser
	console    io.Writer
}

// prepareLoggerSetup creates the common logger components.
// Returns the setup and any error from file writer creation.
// The error is non-fatal - callers can proceed with console-only logging.
func prepareLoggerSetup(verbose, quiet bool) (*loggerSetup, error) {
	configureZerologGlobals()

	setup := &loggerSetup{
		level:   selectLevel(verbose, quiet),
		hook:    logging.SensitiveDataHook{},
		console: selectOutput(),
	}

	fileWriter, err := createLogFileWriter()
	if err == nil {
		setup.fileWriter = fileWriter
	}
	return setup, err
}

// buildLogger creates a zerolog.Logger from the setup and writer.
func buildLogger(setup *loggerSetup, writer io.Writer) zerolog.Logger {
	return zerolog.New(writer).Level(setup.level).Hook(setup.hook).With().Timestamp().Logger()
}

// InitLogger creates and configures a zerolog.Logger based on verbosity flags.
//
// Log levels are set as follows:
//   - verbose=true: Debug level (most detailed)
//   - quiet=true: Warn level (errors and warnings only)
//   - default: Info level (normal operation)
//
// Output format is determined by the terminal:
//   - TTY with colors enabled: Console writer with timestamps
//   - Non-TTY or NO_COLOR set: JSON output to stderr
//
// The logger also writes to ~/.gantry/logs/gantry.log with rotation enabled.
// If the log file cannot be created, the logger will continue with console-only output.
func InitLogger(verbose, quiet bool) zerolog.Logger {
	setup, err := prepareLoggerSetup(verbose, quiet)

	var writer io.Writer
	if err != nil || setup.fileWriter == nil {
		// Log file creation failed; continue with console-only output
		writer = setup.console
	} else {
		// Store file writer for cleanup
		setLogFileWriter(setup.fileWriter)
		// Multi-writer: console + file
		writer = zerolog.MultiLevelWriter(setup.console, setup.fileWriter)
	}

	logger := buildLogger(setup, writer)
	setGlobalZerolog(logger)
	return logger
}

// setLogFileWriter stores the file writer for later cleanup via CloseLogFile.
// A previously installed writer is closed first; long-lived sessions such as
// the watch command re-initialize the logger once per run.
func setLogFileWriter(w io.WriteCloser) {
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFileWriter != nil && logFileWriter != w {
		_ = logFileWriter.Close()
	}
	logFileWriter = w
}

// setGlobalZerolog configures the global zerolog logger to match our CLI logger config.
// This ensures that any code using log.Debug(), log.Info(), etc. from the
// github.com/rs/zerolog/log package uses the same formatting as our CLI logger.
// This function is safe for concurrent use.
func setGlobalZerolog(cliLogger zerolog.Logger) {
	zerologGlobalMu.Lock()
	defer zerologGlobalMu.Unlock()
	log.Logger = cliLogger
}

// InitLoggerWithWriter creates and configures a zerolog.Logger with a custom writer.
// This is primarily intended for testing purposes.
func InitLoggerWithWriter(verbose, quiet bool, w io.Writer) zerolog.Logger {
	configureZerologGlobals()

	level := selectLevel(verbose, quiet)
	logger := zerolog.New(w).Level(level).Hook(logging.SensitiveDataHook{}).With().Timestamp().Logger()

	setGlobalZerolog(logger)

	return logger
}

// RunLogAppender is a minimal interface for appending logs to per-run log files.
// This interface is satisfied by engine.FileStore.
type RunLogAppender interface {
	AppendLog(ctx context.Context, runID string, entry []byte) error
}

// InitLoggerWithRunStore creates a logger that persists run-scoped logs.
// Log entries with a run_id field are appended to that run's log file.
// All logs continue to go to console and the global log file as normal.
func InitLoggerWithRunStore(verbose, quiet bool, store RunLogAppender) zerolog.Logger {
	setup, err := prepareLoggerSetup(verbose, quiet)

	var baseWriter io.Writer
	if err != nil || setup.fileWriter == nil {
		// Log file creation failed; continue with console-only output + run logs
		baseWriter = setup.console
	} else {
		setLogFileWriter(setup.fileWriter)
		baseWriter = zerolog.MultiLevelWriter(setup.console, setup.fileWriter)
	}

	// Wrap with run log writer to persist run-scoped entries
	runWriter := newRunLogWriter(store, baseWriter)

	logger := buildLogger(setup, runWriter)
	setGlobalZerolog(logger)
	return logger
}

// runLogWriter wraps an io.Writer and persists log entries carrying a
// run_id field to that run's log file.
type runLogWriter struct {
	store  RunLogAppender
	target io.Writer
}

// newRunLogWriter creates a runLogWriter that persists run-scoped logs to the
// run store while passing all writes to the target writer.
func newRunLogWriter(store RunLogAppender, target io.Writer) *runLogWriter {
	return &runLogWriter{
		store:  store,
		target: target,
	}
}

// runLogFields represents the minimal fields extracted from log entries.
type runLogFields struct {
	RunID string `json:"run_id"`
}

// Write implements io.Writer. It parses JSON log entries to extract run_id,
// persisting matching entries to the run's log file.
func (w *runLogWriter) Write(p []byte) (n int, err error) {
	w.persistToRunLog(p)

	// Always pass through to target writer
	return w.target.Write(p)
}

// persistToRunLog attempts to parse the log entry and persist it to the run log.
// Failures are silently ignored to avoid disrupting normal logging.
func (w *runLogWriter) persistToRunLog(p []byte) {
	var fields runLogFields
	if err := json.Unmarshal(p, &fields); err != nil {
		// Not valid JSON or doesn't have our fields - skip silently
		return
	}

	if fields.RunID == "" {
		return
	}

	// Errors are ignored to avoid disrupting logging
	_ = w.store.AppendLog(context.Background(), fields.RunID, p)
}

// CloseLogFile closes the global log file writer if it was opened.
// This should be called during application shutdown for clean cleanup.
func CloseLogFile() {
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFileWriter != nil {
		_ = logFileWriter.Close()
		logFileWriter = nil
	}
}

// selectLevel determines the appropriate log level based on flags.
func selectLevel(verbose, quiet bool) zerolog.Level {
	switch {
	case verbose:
		return zerolog.DebugLevel
	case quiet:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// selectOutput determines the appropriate output writer based on
// terminal capabilities and environment settings.
func selectOutput() io.Writer {
	// Use console writer for TTY without NO_COLOR
	if term.IsTerminal(int(os.Stderr.Fd())) && os.Getenv("NO_COLOR") == "" {
		return zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
		}
	}

	// Default to JSON output for non-TTY or when NO_COLOR is set
	return os.Stderr
}

// filteringWriteCloser wraps a WriteCloser with sensitive data filtering.
// It implements io.WriteCloser so it can be used as a drop-in replacement.
type filteringWriteCloser struct {
	filter *logging.FilteringWriter
	closer io.Closer
}

// Write implements io.Writer by delegating to the filtering writer.
func (fwc *filteringWriteCloser) Write(p []byte) (n int, err error) {
	return fwc.filter.Write(p)
}

// Close implements io.Closer by delegating to the underlying closer.
func (fwc *filteringWriteCloser) Close() error {
	return fwc.closer.Close()
}

// createLogFileWriter creates a rotating file writer for the global CLI log.
// Returns a lumberjack logger configured with rotation settings, wrapped with
// a filtering writer to ensure sensitive data is never written to disk.
func createLogFileWriter() (io.WriteCloser, error) {
	gantryHome, err := config.GantryHome()
	if err != nil {
		return nil, err
	}

	logDir := filepath.Join(gantryHome, constants.LogsDir)
	logPath := filepath.Join(logDir, constants.LogFileName)

	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	lj := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    constants.LogMaxSizeMB,
		MaxBackups: constants.LogMaxBackups,
		MaxAge:     constants.LogMaxAgeDays,
		Compress:   constants.LogCompress,
	}

	// Wrap with filtering writer to redact sensitive data
	return &filteringWriteCloser{
		filter: logging.NewFilteringWriter(lj),
		closer: lj,
	}, nil
}

// LogFilePath returns the path to the global CLI log file.
// This is useful for displaying the log location to users.
func LogFilePath() (string, error) {
	gantryHome, err := config.GantryHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(gantryHome, constants.LogsDir, constants.LogFileName), nil
}
