package credstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestLoad_FileNotFound(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))

	tok, err := s.Load()
	assert.NoError(t, err)
	assert.Nil(t, tok)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	s := NewFileStore(path)

	expiry := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(&oauth2.Token{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}))

	tok, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "access-123", tok.AccessToken)
	assert.Equal(t, "refresh-456", tok.RefreshToken)
	assert.True(t, tok.Expiry.Equal(expiry))
}

func TestSave_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, NewFileStore(path).Save(&oauth2.Token{AccessToken: "a"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "token.json"))

	require.NoError(t, s.Save(&oauth2.Token{AccessToken: "a"}))
	require.NoError(t, s.Save(&oauth2.Token{AccessToken: "b"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	tok, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "b", tok.AccessToken)
}

func TestSave_NilToken(t *testing.T) {
	err := NewFileStore(filepath.Join(t.TempDir(), "token.json")).Save(nil)
	assert.Error(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json}`), 0o600))

	tok, err := NewFileStore(path).Load()
	assert.Nil(t, tok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestLoad_MissingTokenField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"bare"}`), 0o600))

	_, err := NewFileStore(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token field")
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save(&oauth2.Token{AccessToken: "a"}))
	require.NoError(t, s.Clear())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing twice is fine.
	assert.NoError(t, s.Clear())
}
