package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/gdrive2preservica/internal/config"
	"github.com/tonimelisma/gdrive2preservica/internal/credstore"
	"github.com/tonimelisma/gdrive2preservica/internal/gdrive"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize access to Google Drive in the browser",
		Long: `Open the Google consent page, wait for the redirect on a loopback port
and cache the resulting token. Migrations reuse the cached token and refresh
it silently.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the cached Google Drive token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	oauthCfg, err := gdrive.LoadOAuthConfig(cc.Cfg.Source.ClientSecrets)
	if err != nil {
		return err
	}

	store := credstore.NewFileStore(cc.Cfg.TokenPath())

	if _, err := browserLogin(cmd.Context(), oauthCfg, store, cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Login successful. Token saved to %s\n", store.Path())

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := gdrive.Logout(credstore.NewFileStore(cc.Cfg.TokenPath()), cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Logged out.\n")

	return nil
}

// loginFunc runs the interactive consent flow and caches the token.
type loginFunc func(
	ctx context.Context, cfg *oauth2.Config, store credstore.Store, logger *slog.Logger,
) (gdrive.TokenSource, error)

// browserLogin is the consent flow used by the CLI: it opens the system
// browser on the consent page.
func browserLogin(
	ctx context.Context, cfg *oauth2.Config, store credstore.Store, logger *slog.Logger,
) (gdrive.TokenSource, error) {
	return gdrive.Login(ctx, cfg, store, openBrowser, logger)
}

// driveTokenSource returns a token source for the Drive API. The cached
// token is used when it exists and can still be refreshed. When nothing is
// cached, or the token endpoint rejects the refresh, login runs. Any other
// failure is returned.
func driveTokenSource(
	ctx context.Context, cfg *config.Config, login loginFunc, logger *slog.Logger,
) (gdrive.TokenSource, error) {
	oauthCfg, err := gdrive.LoadOAuthConfig(cfg.Source.ClientSecrets)
	if err != nil {
		return nil, err
	}

	store := credstore.NewFileStore(cfg.TokenPath())

	ts, err := gdrive.TokenSourceFromStore(ctx, oauthCfg, store, logger)

	switch {
	case errors.Is(err, gdrive.ErrNotLoggedIn):
		logger.Info("no cached credential, starting consent flow")
	case err != nil:
		return nil, err
	default:
		_, tokErr := ts.Token()
		if tokErr == nil {
			return ts, nil
		}

		var re *oauth2.RetrieveError
		if !errors.As(tokErr, &re) {
			return nil, tokErr
		}

		logger.Warn("cached credential cannot be refreshed, starting consent flow",
			slog.String("error", tokErr.Error()),
		)
	}

	return login(ctx, oauthCfg, store, logger)
}

// openBrowser opens url with the platform's default handler.
func openBrowser(url string) error {
	var name string

	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		name = "xdg-open"
	}

	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("no browser launcher: %w", err)
	}

	cmd := exec.Command(name, url)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	return cmd.Start()
}
