package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/gdrive2preservica/internal/config"
	"github.com/tonimelisma/gdrive2preservica/internal/credstore"
	"github.com/tonimelisma/gdrive2preservica/internal/gdrive"
)

type staticTokenSource string

func (s staticTokenSource) Token() (string, error) { return string(s), nil }

// recordingLogin stands in for the browser consent flow.
type recordingLogin struct {
	calls int
}

func (l *recordingLogin) login(
	_ context.Context, _ *oauth2.Config, _ credstore.Store, _ *slog.Logger,
) (gdrive.TokenSource, error) {
	l.calls++
	return staticTokenSource("fresh-token"), nil
}

// authConfig writes installed-app client secrets pointing at tokenURL and
// returns a config whose token cache lives in a temp dir.
func authConfig(t *testing.T, tokenURL string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	secrets := filepath.Join(dir, "client_secrets.json")
	body := fmt.Sprintf(`{"installed":{"client_id":"cid","client_secret":"csecret",`+
		`"auth_uri":"https://accounts.example.com/auth","token_uri":%q,"redirect_uris":["http://localhost"]}}`,
		tokenURL)
	require.NoError(t, os.WriteFile(secrets, []byte(body), 0o600))

	cfg := config.DefaultConfig()
	cfg.Source.ClientSecrets = secrets
	cfg.State.DataDir = dir

	return cfg
}

func cacheExpiredToken(t *testing.T, cfg *config.Config) {
	t.Helper()

	require.NoError(t, credstore.NewFileStore(cfg.TokenPath()).Save(&oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	}))
}

func TestDriveTokenSource_NoCacheStartsConsent(t *testing.T) {
	t.Parallel()

	cfg := authConfig(t, "http://127.0.0.1:1/token")
	login := &recordingLogin{}

	ts, err := driveTokenSource(context.Background(), cfg, login.login, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, login.calls)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", tok)
}

func TestDriveTokenSource_ValidCacheSkipsConsent(t *testing.T) {
	t.Parallel()

	cfg := authConfig(t, "http://127.0.0.1:1/token")
	require.NoError(t, credstore.NewFileStore(cfg.TokenPath()).Save(&oauth2.Token{
		AccessToken:  "cached",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}))

	login := &recordingLogin{}

	ts, err := driveTokenSource(context.Background(), cfg, login.login, discardLogger())
	require.NoError(t, err)
	assert.Zero(t, login.calls)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "cached", tok)
}

func TestDriveTokenSource_RefreshRejectedStartsConsent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	}))
	defer srv.Close()

	cfg := authConfig(t, srv.URL+"/token")
	cacheExpiredToken(t, cfg)

	login := &recordingLogin{}

	ts, err := driveTokenSource(context.Background(), cfg, login.login, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, login.calls)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", tok)
}

func TestDriveTokenSource_TransportErrorIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	tokenURL := srv.URL + "/token"
	srv.Close()

	cfg := authConfig(t, tokenURL)
	cacheExpiredToken(t, cfg)

	login := &recordingLogin{}

	_, err := driveTokenSource(context.Background(), cfg, login.login, discardLogger())
	require.Error(t, err)
	assert.Zero(t, login.calls, "a network failure must not start the consent flow")

	var re *oauth2.RetrieveError
	assert.False(t, errors.As(err, &re))
}

func TestDriveTokenSource_LoginErrorPropagates(t *testing.T) {
	t.Parallel()

	cfg := authConfig(t, "http://127.0.0.1:1/token")
	wantErr := errors.New("consent window closed")

	_, err := driveTokenSource(context.Background(), cfg,
		func(context.Context, *oauth2.Config, credstore.Store, *slog.Logger) (gdrive.TokenSource, error) {
			return nil, wantErr
		}, discardLogger())
	assert.ErrorIs(t, err, wantErr)
}
