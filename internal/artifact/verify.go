// Package artifact verifies that expected build outputs exist after the
// assemble steps of a pipeline run.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// Info describes one expected build output.
type Info struct {
	// Path is the artifact path relative to the project directory.
	Path string `json:"path"`

	// Exists reports whether a regular file was found at the path.
	Exists bool `json:"exists"`

	// Size is the file size in bytes.
	Size int64 `json:"size,omitempty"`

	// SHA256 is the hex-encoded checksum of the file contents.
	SHA256 string `json:"sha256,omitempty"`

	// ModTime is when the file was last written.
	ModTime time.Time `json:"mod_time,omitempty"`
}

// Verifier checks that expected build outputs exist on disk.
type Verifier struct {
	projectDir string
}

// NewVerifier creates a verifier rooted at the given project directory.
func NewVerifier(projectDir string) *Verifier {
	return &Verifier{projectDir: projectDir}
}

// Verify inspects all paths concurrently and returns one Info per path,
// in input order. A missing artifact is reported in its Info, not as an
// error; the returned error is non-nil only for unexpected I/O failures
// or context cancellation.
func (v *Verifier) Verify(ctx context.Context, paths []string) ([]Info, error) {
	results := make([]Info, len(paths))

	g, gCtx := errgroup.WithContext(ctx)

	for i, p := range paths {
		g.Go(func() error {
			info, err := v.inspect(gCtx, p)
			if err != nil {
				return err
			}
			results[i] = info
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to verify artifacts: %w", err)
	}

	return results, nil
}

// inspect checks a single artifact path and computes its checksum.
func (v *Verifier) inspect(ctx context.Context, relPath string) (Info, error) {
	select {
	case <-ctx.Done():
		return Info{}, ctx.Err()
	default:
	}

	info := Info{Path: relPath}

	abs := relPath
	if !filepath.IsAbs(relPath) {
		abs = filepath.Join(v.projectDir, relPath)
	}

	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return info, nil
		}
		return info, fmt.Errorf("stat %s: %w", relPath, err)
	}

	// A directory where a file is expected counts as missing.
	if fi.IsDir() {
		return info, nil
	}

	sum, err := fileSHA256(abs)
	if err != nil {
		return info, fmt.Errorf("checksum %s: %w", relPath, err)
	}

	info.Exists = true
	info.Size = fi.Size()
	info.SHA256 = sum
	info.ModTime = fi.ModTime()

	return info, nil
}

// fileSHA256 computes the hex-encoded SHA-256 checksum of a file.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // Path comes from pipeline definition
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Missing returns the paths of artifacts that were not found.
func Missing(results []Info) []string {
	var missing []string
	for _, r := range results {
		if !r.Exists {
			missing = append(missing, r.Path)
		}
	}
	return missing
}

// MissingError returns an ErrArtifactMissing error naming every missing
// artifact, or nil when all artifacts exist.
func MissingError(results []Info) error {
	missing := Missing(results)
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", gantryerrors.ErrArtifactMissing, strings.Join(missing, ", "))
}

// FormatMissing creates a formatted message listing missing artifacts.
// Returns the empty string when nothing is missing.
func FormatMissing(results []Info) string {
	missing := Missing(results)
	if len(missing) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Missing build artifacts:\n\n")

	for _, path := range missing {
		sb.WriteString(fmt.Sprintf("  • %s\n", path))
	}

	return sb.String()
}
