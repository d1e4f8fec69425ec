package main

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRunLock_WritesPID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.lock")

	release, err := acquireRunLock(path)
	require.NoError(t, err)
	defer release()

	pid, err := readLockPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireRunLock_SecondAcquisitionFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.lock")

	release, err := acquireRunLock(path)
	require.NoError(t, err)
	defer release()

	release2, err := acquireRunLock(path)
	require.Error(t, err)
	assert.Nil(t, release2)
	assert.Contains(t, err.Error(), "already running")
}

func TestAcquireRunLock_ReleaseAllowsReacquire(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.lock")

	release, err := acquireRunLock(path)
	require.NoError(t, err)
	release()

	assert.FileExists(t, path)

	release, err = acquireRunLock(path)
	require.NoError(t, err)
	release()
}

func TestAcquireRunLock_WaiterOnReleasedFileExcludesNewcomer(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.lock")

	releaseA, err := acquireRunLock(path)
	require.NoError(t, err)

	// B has the file open before A lets go.
	b, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer b.Close()

	releaseA()

	require.NoError(t, syscall.Flock(int(b.Fd()), syscall.LOCK_EX|syscall.LOCK_NB))

	releaseC, err := acquireRunLock(path)
	require.Error(t, err, "two runs would hold the lock at once")
	assert.Nil(t, releaseC)
	assert.Contains(t, err.Error(), "already running")
}

func TestAcquireRunLock_RewritesStalePID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.lock")
	require.NoError(t, os.WriteFile(path, []byte("999999999\n"), 0o600))

	release, err := acquireRunLock(path)
	require.NoError(t, err)
	defer release()

	pid, err := readLockPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireRunLock_EmptyPath(t *testing.T) {
	t.Parallel()

	release, err := acquireRunLock("")
	require.Error(t, err)
	assert.Nil(t, release)
	assert.Contains(t, err.Error(), "empty")
}

func TestAcquireRunLock_CreatesParentDirectories(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "run.lock")

	release, err := acquireRunLock(path)
	require.NoError(t, err)
	defer release()

	assert.FileExists(t, path)
}

func TestReadLockPID_Invalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.lock")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid\n"), 0o600))

	_, err := readLockPID(path)
	assert.Error(t, err)
}
