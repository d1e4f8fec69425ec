// Package credstore persists the OAuth2 credential used against Google
// Drive. The cache is a small JSON file written atomically with owner-only
// permissions. It is a leaf package: gdrive/ consumes it through the Store
// interface and the CLI wires in the file-backed implementation.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts credential files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credential directory.
const DirPerms = 0o700

// Store loads and persists a cached OAuth2 token.
// Load returns (nil, nil) when nothing has been cached yet.
type Store interface {
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
	Clear() error
}

// file is the on-disk format. SavedAt records when the token was last
// written, which helps when diagnosing stale caches.
type file struct {
	Token   *oauth2.Token `json:"token"`
	SavedAt time.Time     `json:"saved_at"`
}

// FileStore is a Store backed by a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a Store that reads and writes path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the cached token. A missing file is not an error.
func (s *FileStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not cached"
	}

	if err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", s.path, err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("credstore: decoding %s: %w", s.path, err)
	}

	if f.Token == nil {
		return nil, fmt.Errorf("credstore: %s missing token field (run login again)", s.path)
	}

	return f.Token, nil
}

// Save writes the token atomically (write-to-temp + rename) with 0600
// permissions. Never logs token values.
func (s *FileStore) Save(tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("credstore: refusing to save nil token")
	}

	data, err := json.MarshalIndent(file{Token: tok, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: encoding: %w", err)
	}

	dir := filepath.Dir(s.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credstore: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".credential-*.tmp")
	if err != nil {
		return fmt.Errorf("credstore: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: closing: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("credstore: renaming: %w", err)
	}

	success = true

	return nil
}

// Clear removes the cached token. A missing file is not an error.
func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credstore: removing %s: %w", s.path, err)
	}

	return nil
}
