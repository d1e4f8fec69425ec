// Package testutil provides shared environment helpers for the E2E tests,
// which drive the built binary against real Google Drive and Preservica
// accounts.
package testutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables read by the E2E suite.
const (
	EnvAllowedFolders = "GDRIVE2PRESERVICA_ALLOWED_TEST_FOLDERS"
	EnvTestFolder     = "GDRIVE2PRESERVICA_FOLDER"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly). Existing env
// vars take precedence over .env values.
func LoadDotEnv(envPath string) error {
	err := godotenv.Load(envPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envPath, err)
	}

	return nil
}

// ValidateAllowlist crashes the process unless the folder named by
// EnvTestFolder is listed in EnvAllowedFolders. Ingest into a production
// folder cannot be undone.
func ValidateAllowlist() {
	allowlist := os.Getenv(EnvAllowedFolders)
	if allowlist == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", EnvAllowedFolders)
		fmt.Fprintln(os.Stderr, "Set it in .env or as an environment variable.")
		fmt.Fprintf(os.Stderr, "Example: %s=5f0e8c1d-test-folder-ref\n", EnvAllowedFolders)
		os.Exit(1)
	}

	folder := os.Getenv(EnvTestFolder)
	if folder == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", EnvTestFolder)
		os.Exit(1)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimSpace(a) == folder {
			return
		}
	}

	fmt.Fprintf(os.Stderr, "FATAL: %s=%q is not in %s=%q\n",
		EnvTestFolder, folder, EnvAllowedFolders, allowlist)
	os.Exit(1)
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// FindTestCredentialDir locates .testdata/ relative to the module root.
// Crashes if the directory does not exist.
func FindTestCredentialDir(moduleRoot string) string {
	dir := filepath.Join(moduleRoot, ".testdata")

	if _, err := os.Stat(dir); err != nil {
		fmt.Fprintln(os.Stderr, "FATAL: .testdata/ directory not found at "+dir)
		fmt.Fprintln(os.Stderr, "Run `gdrive2preservica login` with state.data_dir pointing at it.")
		os.Exit(1)
	}

	return dir
}

// CopyFile copies a file from src to dst with the given permissions.
// Crashes on failure because tests cannot proceed without the file.
func CopyFile(src, dst string, perm os.FileMode) {
	data, err := os.ReadFile(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot read %s: %v\n", src, err)
		os.Exit(1)
	}

	if writeErr := os.WriteFile(dst, data, perm); writeErr != nil {
		fmt.Fprintf(os.Stderr, "FATAL: writing %s: %v\n", dst, writeErr)
		os.Exit(1)
	}
}
