package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	lockFilePermissions = 0o600
	lockDirPermissions  = 0o700
)

// acquireRunLock takes an exclusive flock on path and writes the current
// PID into it. Only one migration runs per data directory at a time. The
// returned release function closes the file, which drops the lock. The
// file is left in place so every run locks the same inode.
func acquireRunLock(path string) (release func(), err error) {
	if path == "" {
		return nil, errors.New("run lock path is empty, cannot determine data directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), lockDirPermissions); err != nil {
		return nil, fmt.Errorf("creating run lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening run lock: %w", err)
	}

	// Non-blocking: fail immediately if another run holds it.
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		if pid, readErr := readLockPID(path); readErr == nil {
			return nil, fmt.Errorf("another migration is already running (PID %d holds %s)", pid, path)
		}

		return nil, fmt.Errorf("another migration is already running (could not lock %s)", path)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncating run lock: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing run lock: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("syncing run lock: %w", err)
	}

	return func() {
		f.Close()
	}, nil
}

// readLockPID reads the PID recorded in a run lock file.
func readLockPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading run lock: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}
