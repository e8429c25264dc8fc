//go:build unix

package flock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExclusive_AcquireAndRelease(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.lock")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	require.NoError(t, Exclusive(f.Fd()))
	assert.NoError(t, Unlock(f.Fd()))
}

func TestExclusive_SecondHolderFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.lock")

	first, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	defer func() { _ = first.Close() }()
	require.NoError(t, Exclusive(first.Fd()))

	second, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	// Non-blocking acquisition against a held lock must fail immediately.
	assert.Error(t, Exclusive(second.Fd()))

	// After release the second descriptor can take the lock.
	require.NoError(t, Unlock(first.Fd()))
	assert.NoError(t, Exclusive(second.Fd()))
	assert.NoError(t, Unlock(second.Fd()))
}
