package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/domain"
	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
	"github.com/gantrybuild/gantry/internal/flock"
)

// LockTimeout is the maximum duration to wait for acquiring a file lock.
const LockTimeout = 5 * time.Second

// Directory and file permission constants.
const (
	dirPerm  = 0o750 // Secure directory permissions
	filePerm = 0o600 // Secure file permissions
)

// validRunIDRegex matches valid run IDs (run-YYYYMMDD-HHMMSS with optional ms suffix).
var validRunIDRegex = regexp.MustCompile(`^run-\d{8}-\d{6}(-\d{3})?$`)

// Store defines the interface for run persistence operations.
type Store interface {
	// Create creates a new run record.
	// Returns error if the run already exists.
	Create(ctx context.Context, run *domain.Run) error

	// Get retrieves a run by ID.
	// Returns ErrRunNotFound if the run doesn't exist.
	Get(ctx context.Context, runID string) (*domain.Run, error)

	// Update saves the current run state (atomic write).
	// Returns error if the run doesn't exist.
	Update(ctx context.Context, run *domain.Run) error

	// List returns all runs, sorted by creation time (newest first).
	List(ctx context.Context) ([]*domain.Run, error)

	// Latest returns the most recently created run.
	// Returns ErrRunNotFound when no runs exist.
	Latest(ctx context.Context) (*domain.Run, error)

	// Delete removes a run and all its artifacts.
	Delete(ctx context.Context, runID string) error

	// AppendLog appends a log entry to the run's log file (JSON-lines format).
	AppendLog(ctx context.Context, runID string, entry []byte) error

	// SaveArtifact saves an artifact file for the run (reports, summaries).
	SaveArtifact(ctx context.Context, runID, filename string, data []byte) error

	// SaveVersionedArtifact saves an artifact with version suffix (e.g., report.1.md).
	// Returns the actual filename used.
	SaveVersionedArtifact(ctx context.Context, runID, baseName string, data []byte) (string, error)

	// GetArtifact retrieves an artifact file.
	GetArtifact(ctx context.Context, runID, filename string) ([]byte, error)

	// ListArtifacts lists all artifact files for a run.
	ListArtifacts(ctx context.Context, runID string) ([]string, error)
}

// FileStore implements Store using the local filesystem.
type FileStore struct {
	gantryHome string // Usually ~/.gantry
}

// NewFileStore creates a new FileStore with the given gantry home directory.
// If gantryHome is empty, uses the default ~/.gantry directory.
func NewFileStore(gantryHome string) (*FileStore, error) {
	if gantryHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		gantryHome = filepath.Join(home, constants.GantryHome)
	}
	return &FileStore{gantryHome: gantryHome}, nil
}

// Create creates a new run record.
func (s *FileStore) Create(ctx context.Context, run *domain.Run) error {
	// Check for cancellation at entry
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Validate inputs
	if run == nil {
		return fmt.Errorf("failed to create run: run %w", gantryerrors.ErrEmptyValue)
	}
	if run.ID == "" {
		return fmt.Errorf("failed to create run: run ID %w", gantryerrors.ErrEmptyValue)
	}

	runDir := s.runDir(run.ID)

	// Check if run already exists
	if _, err := os.Stat(runDir); err == nil {
		return fmt.Errorf("failed to create run '%s': %w", run.ID, gantryerrors.ErrRunExists)
	}

	// Create run directory
	if err := os.MkdirAll(runDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	// Set schema version before saving
	run.SchemaVersion = constants.RunSchemaVersion

	// Acquire lock for write operation
	lockFile, err := s.acquireLock(ctx, run.ID)
	if err != nil {
		// Clean up directory on lock failure
		_ = os.RemoveAll(runDir)
		return fmt.Errorf("failed to create run '%s': %w", run.ID, err)
	}
	defer func() { _ = s.releaseLock(lockFile) }()

	// Marshal run to JSON
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		_ = os.RemoveAll(runDir)
		return fmt.Errorf("failed to create run '%s': %w", run.ID, err)
	}

	// Write run file atomically
	runFile := s.runFilePath(run.ID)
	if err := atomicWrite(runFile, data); err != nil {
		_ = os.RemoveAll(runDir)
		return fmt.Errorf("failed to create run '%s': %w", run.ID, err)
	}

	return nil
}

// Get retrieves a run by ID.
func (s *FileStore) Get(ctx context.Context, runID string) (*domain.Run, error) {
	// Check for cancellation at entry
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// Validate inputs
	if runID == "" {
		return nil, fmt.Errorf("failed to get run: run ID %w", gantryerrors.ErrEmptyValue)
	}

	runDir := s.runDir(runID)

	// Check if run directory exists
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to get run '%s': %w", runID, gantryerrors.ErrRunNotFound)
	}

	// Acquire lock for read operation
	lockFile, err := s.acquireLock(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run '%s': %w", runID, err)
	}
	defer func() { _ = s.releaseLock(lockFile) }()

	// Read run file
	runFile := s.runFilePath(runID)
	data, err := os.ReadFile(runFile) //#nosec G304 -- path is validated and constructed from trusted base
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to get run '%s': %w", runID, gantryerrors.ErrRunNotFound)
		}
		return nil, fmt.Errorf("failed to read run '%s': %w", runID, err)
	}

	// Parse JSON
	var run domain.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to parse run '%s': corrupted state file: %w", runID, err)
	}

	return &run, nil
}

// Update saves the current run state (atomic write).
func (s *FileStore) Update(ctx context.Context, run *domain.Run) error {
	// Check for cancellation at entry
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Validate inputs
	if run == nil {
		return fmt.Errorf("failed to update run: run %w", gantryerrors.ErrEmptyValue)
	}
	if run.ID == "" {
		return fmt.Errorf("failed to update run: run ID %w", gantryerrors.ErrEmptyValue)
	}

	runDir := s.runDir(run.ID)

	// Check if run exists
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return fmt.Errorf("failed to update run '%s': %w", run.ID, gantryerrors.ErrRunNotFound)
	}

	// Acquire lock for write operation
	lockFile, err := s.acquireLock(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run '%s': %w", run.ID, err)
	}
	defer func() { _ = s.releaseLock(lockFile) }()

	// Update timestamp
	run.UpdatedAt = time.Now().UTC()

	// Marshal run to JSON
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to update run '%s': %w", run.ID, err)
	}

	// Write run file atomically
	runFile := s.runFilePath(run.ID)
	if err := atomicWrite(runFile, data); err != nil {
		return fmt.Errorf("failed to update run '%s': %w", run.ID, err)
	}

	return nil
}

// List returns all runs, sorted by creation time (newest first).
func (s *FileStore) List(ctx context.Context) ([]*domain.Run, error) {
	// Check for cancellation at entry
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	runsDir := s.runsDir()

	// Return empty slice if runs directory doesn't exist
	if _, err := os.Stat(runsDir); os.IsNotExist(err) {
		return []*domain.Run{}, nil
	}

	// Read directory entries
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*domain.Run, 0, len(entries))

	for _, entry := range entries {
		// Skip non-directories
		if !entry.IsDir() {
			continue
		}

		// Skip invalid run IDs
		if !validRunIDRegex.MatchString(entry.Name()) {
			continue
		}

		// Check for cancellation during iteration
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Try to read run
		run, err := s.Get(ctx, entry.Name())
		if err != nil {
			// Skip directories without valid run.json
			continue
		}

		runs = append(runs, run)
	}

	// Sort by creation time (newest first)
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs, nil
}

// Latest returns the most recently created run.
func (s *FileStore) Latest(ctx context.Context) (*domain.Run, error) {
	runs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, gantryerrors.ErrRunNotFound
	}
	return runs[0], nil
}

// Delete removes a run and all its artifacts.
func (s *FileStore) Delete(ctx context.Context, runID string) error {
	// Check for cancellation at entry
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Validate inputs
	if runID == "" {
		return fmt.Errorf("failed to delete run: run ID %w", gantryerrors.ErrEmptyValue)
	}

	runDir := s.runDir(runID)

	// Check if run exists
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return fmt.Errorf("failed to delete run '%s': %w", runID, gantryerrors.ErrRunNotFound)
	}

	// Acquire lock to prevent concurrent access during deletion
	lockFile, err := s.acquireLock(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run '%s': %w", runID, err)
	}
	// Release lock before removal since lock file is inside run directory
	_ = s.releaseLock(lockFile)

	// Remove entire run directory
	if err := os.RemoveAll(runDir); err != nil {
		return fmt.Errorf("failed to delete run '%s': %w", runID, err)
	}

	return nil
}

// AppendLog appends a log entry to the run's log file (JSON-lines format).
func (s *FileStore) AppendLog(ctx context.Context, runID string, entry []byte) error {
	// Check for cancellation at entry
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Validate inputs
	if runID == "" {
		return fmt.Errorf("failed to append log: run ID %w", gantryerrors.ErrEmptyValue)
	}

	runDir := s.runDir(runID)

	// Check if run exists
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return fmt.Errorf("failed to append log: run '%s' %w", runID, gantryerrors.ErrRunNotFound)
	}

	// Acquire lock to prevent concurrent log writes
	lockFile, err := s.acquireLock(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	defer func() { _ = s.releaseLock(lockFile) }()

	logPath := s.logFilePath(runID)

	// Open file for append (create if not exists)
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Ensure entry ends with newline for JSON-lines format
	if len(entry) > 0 && entry[len(entry)-1] != '\n' {
		entry = append(entry, '\n')
	}

	// Write log entry
	if _, err := f.Write(entry); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}

	// Sync to disk
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync log: %w", err)
	}

	return nil
}

// SaveArtifact saves an artifact file for the run.
func (s *FileStore) SaveArtifact(ctx context.Context, runID, filename string, data []byte) error {
	// Check for cancellation at entry
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Validate inputs
	if runID == "" {
		return fmt.Errorf("failed to save artifact: run ID %w", gantryerrors.ErrEmptyValue)
	}
	if filename == "" {
		return fmt.Errorf("failed to save artifact: filename %w", gantryerrors.ErrEmptyValue)
	}

	// Prevent path traversal
	if strings.Contains(filename, "..") || strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		return fmt.Errorf("failed to save artifact: %w", gantryerrors.ErrPathTraversal)
	}

	runDir := s.runDir(runID)

	// Check if run exists
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return fmt.Errorf("failed to save artifact: run '%s' %w", runID, gantryerrors.ErrRunNotFound)
	}

	// Ensure artifacts directory exists
	artifactDir := s.artifactsDir(runID)
	if err := os.MkdirAll(artifactDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	// Write artifact file atomically to prevent partial writes on crash
	artifactPath := filepath.Join(artifactDir, filename)
	if err := atomicWrite(artifactPath, data); err != nil {
		return fmt.Errorf("failed to save artifact '%s': %w", filename, err)
	}

	return nil
}

// SaveVersionedArtifact saves an artifact with automatic version numbering.
// For example, if "report.md" exists, saves as "report.1.md",
// then "report.2.md", etc.
func (s *FileStore) SaveVersionedArtifact(ctx context.Context, runID, baseName string, data []byte) (string, error) {
	// Check for cancellation at entry
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	// Validate inputs
	if runID == "" {
		return "", fmt.Errorf("failed to save versioned artifact: run ID %w", gantryerrors.ErrEmptyValue)
	}
	if baseName == "" {
		return "", fmt.Errorf("failed to save versioned artifact: base name %w", gantryerrors.ErrEmptyValue)
	}

	// Prevent path traversal
	if strings.Contains(baseName, "..") || strings.Contains(baseName, "/") || strings.Contains(baseName, "\\") {
		return "", fmt.Errorf("failed to save versioned artifact: %w", gantryerrors.ErrPathTraversal)
	}

	runDir := s.runDir(runID)

	// Check if run exists
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return "", fmt.Errorf("failed to save versioned artifact: run '%s' %w", runID, gantryerrors.ErrRunNotFound)
	}

	// Ensure artifacts directory exists
	artifactDir := s.artifactsDir(runID)
	if err := os.MkdirAll(artifactDir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	// Find next version number
	ext := filepath.Ext(baseName)
	nameWithoutExt := strings.TrimSuffix(baseName, ext)

	version := 1
	for {
		filename := fmt.Sprintf("%s.%d%s", nameWithoutExt, version, ext)
		fullPath := filepath.Join(artifactDir, filename)
		if _, err := os.Stat(fullPath); os.IsNotExist(err) {
			// This version doesn't exist, use it
			// Write atomically to prevent partial writes on crash
			if err := atomicWrite(fullPath, data); err != nil {
				return "", fmt.Errorf("failed to save versioned artifact: %w", err)
			}
			return filename, nil
		}
		version++

		// Safety limit to prevent infinite loop
		if version > 10000 {
			return "", fmt.Errorf("failed to save versioned artifact: %w", gantryerrors.ErrTooManyVersions)
		}
	}
}

// GetArtifact retrieves an artifact file.
func (s *FileStore) GetArtifact(ctx context.Context, runID, filename string) ([]byte, error) {
	// Check for cancellation at entry
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// Validate inputs
	if runID == "" {
		return nil, fmt.Errorf("failed to get artifact: run ID %w", gantryerrors.ErrEmptyValue)
	}
	if filename == "" {
		return nil, fmt.Errorf("failed to get artifact: filename %w", gantryerrors.ErrEmptyValue)
	}

	// Prevent path traversal
	if strings.Contains(filename, "..") || strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		return nil, fmt.Errorf("failed to get artifact: %w", gantryerrors.ErrPathTraversal)
	}

	artifactPath := filepath.Join(s.artifactsDir(runID), filename)

	data, err := os.ReadFile(artifactPath) //#nosec G304 -- path is validated and constructed from trusted base
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact '%s': %w", filename, gantryerrors.ErrArtifactMissing)
		}
		return nil, fmt.Errorf("failed to read artifact '%s': %w", filename, err)
	}

	return data, nil
}

// ListArtifacts lists all artifact files for a run.
func (s *FileStore) ListArtifacts(ctx context.Context, runID string) ([]string, error) {
	// Check for cancellation at entry
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// Validate inputs
	if runID == "" {
		return nil, fmt.Errorf("failed to list artifacts: run ID %w", gantryerrors.ErrEmptyValue)
	}

	artifactDir := s.artifactsDir(runID)

	// Return empty slice if artifacts directory doesn't exist
	if _, err := os.Stat(artifactDir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(artifactDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	filenames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			filenames = append(filenames, entry.Name())
		}
	}

	// Sort for consistent ordering
	sort.Strings(filenames)

	return filenames, nil
}

// Helper methods for path construction

// runsDir returns the path to the runs directory.
func (s *FileStore) runsDir() string {
	return filepath.Join(s.gantryHome, constants.RunsDir)
}

// runDir returns the path to a specific run's directory.
func (s *FileStore) runDir(runID string) string {
	return filepath.Join(s.runsDir(), runID)
}

// runFilePath returns the path to a run's JSON file.
func (s *FileStore) runFilePath(runID string) string {
	return filepath.Join(s.runDir(runID), constants.RunFileName)
}

// logFilePath returns the path to a run's log file.
func (s *FileStore) logFilePath(runID string) string {
	return filepath.Join(s.runDir(runID), constants.RunLogFileName)
}

// artifactsDir returns the path to a run's artifacts directory.
func (s *FileStore) artifactsDir(runID string) string {
	return filepath.Join(s.runDir(runID), constants.ArtifactsDir)
}

// lockFilePath returns the path to a run's lock file.
func (s *FileStore) lockFilePath(runID string) string {
	return filepath.Join(s.runDir(runID), constants.RunFileName+".lock")
}

// acquireLock acquires an exclusive file lock for the run.
// It respects context cancellation during the lock acquisition retry loop.
func (s *FileStore) acquireLock(ctx context.Context, runID string) (*os.File, error) {
	lockPath := s.lockFilePath(runID)

	// Ensure run directory exists for lock file
	runDir := s.runDir(runID)
	if err := os.MkdirAll(runDir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, filePerm) //#nosec G302,G304 -- lock file needs write access, path is constructed from validated name
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	// Try to acquire lock with timeout
	deadline := time.Now().Add(LockTimeout)
	for {
		// Check for context cancellation
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		default:
		}

		// Attempt to acquire exclusive non-blocking lock
		err := flock.Exclusive(f.Fd())
		if err == nil {
			return f, nil
		}

		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("failed to acquire lock: %w", gantryerrors.ErrLockTimeout)
		}

		// Wait a bit before retrying
		time.Sleep(50 * time.Millisecond)
	}
}

// releaseLock releases a file lock.
func (s *FileStore) releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}

	// Release the lock
	if err := flock.Unlock(f.Fd()); err != nil {
		// Still try to close the file
		_ = f.Close()
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return f.Close()
}

// atomicWrite writes data to a file atomically using write-then-rename.
// Uses filePerm (0o600) for secure file permissions.
func atomicWrite(path string, data []byte) error {
	// Write to temp file
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	// Write data
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}

	// Sync to disk (ensure data is persisted before rename)
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	// Close file before rename
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// GenerateRunID generates a run ID with format run-YYYYMMDD-HHMMSS.
// IDs generated within the same second will be identical.
// Use GenerateRunIDUnique for scenarios requiring uniqueness checks.
func GenerateRunID() string {
	now := time.Now().UTC()
	return fmt.Sprintf("run-%s-%s",
		now.Format("20060102"),
		now.Format("150405"))
}

// GenerateRunIDUnique generates a run ID, adding milliseconds if needed for uniqueness.
// It checks against the provided map of existing IDs.
//
// IMPORTANT: This function provides best-effort uniqueness based on a snapshot of IDs.
// It does NOT guarantee uniqueness in concurrent scenarios. The recommended pattern is:
//
//	id := GenerateRunIDUnique(existingIDs)
//	err := store.Create(ctx, run)
//	if errors.Is(err, ErrRunExists) {
//	    // Regenerate and retry
//	}
//
// The Create method handles the actual uniqueness guarantee via filesystem checks.
func GenerateRunIDUnique(existingIDs map[string]bool) string {
	id := GenerateRunID()
	if !existingIDs[id] {
		return id
	}
	// Add milliseconds for uniqueness
	now := time.Now().UTC()
	return fmt.Sprintf("run-%s-%s-%03d",
		now.Format("20060102"),
		now.Format("150405"),
		now.Nanosecond()/1000000)
}
