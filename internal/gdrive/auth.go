package gdrive

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tonimelisma/gdrive2preservica/internal/credstore"
)

// Scopes requested during consent.
var Scopes = []string{
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/drive.file",
}

// LoadOAuthConfig reads an installed-application client secrets file as
// downloaded from the Google Cloud console.
func LoadOAuthConfig(clientSecretsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(clientSecretsPath)
	if err != nil {
		return nil, fmt.Errorf("gdrive: reading client secrets: %w", err)
	}

	cfg, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("gdrive: parsing client secrets %s: %w", clientSecretsPath, err)
	}

	return cfg, nil
}

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// callbackPath is the HTTP path the loopback redirect hits.
const callbackPath = "/"

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// Login runs the interactive consent flow (authorization code + PKCE with a
// loopback redirect):
//  1. Binds a localhost HTTP server on a random port
//  2. Calls openURL with the consent URL (the CLI launches a browser)
//  3. Receives the callback with the authorization code
//  4. Exchanges the code and persists the token through store
//
// If openURL fails, the URL is printed to stderr so the user can open it.
// The returned TokenSource binds ctx; ctx must outlive it.
func Login(
	ctx context.Context,
	cfg *oauth2.Config,
	store credstore.Store,
	openURL func(string) error,
	logger *slog.Logger,
) (TokenSource, error) {
	logger.Info("starting browser consent flow")

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, logger)
	if err != nil {
		return nil, err
	}

	defer shutdownCallbackServer(srv, logger)

	// Work on a copy so the caller's config keeps its redirect.
	flowCfg := *cfg
	flowCfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d", port)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("gdrive: generating state token: %w", err)
	}

	registerCallbackHandler(mux, state, resultCh)

	authURL := flowCfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	launchBrowser(authURL, openURL, logger)

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return nil, err
	}

	logger.Info("received authorization code, exchanging for token")

	tok, err := flowCfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("gdrive: token exchange failed: %w", err)
	}

	if saveErr := store.Save(tok); saveErr != nil {
		return nil, fmt.Errorf("gdrive: saving token: %w", saveErr)
	}

	logger.Info("login successful", slog.Time("expiry", tok.Expiry))

	return newPersistingSource(ctx, &flowCfg, tok, store, logger), nil
}

// startCallbackServer binds to 127.0.0.1:0 and serves mux.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("gdrive: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, errors.New("gdrive: listener address is not TCP")
	}

	port := tcpAddr.Port
	logger.Info("callback server listening", slog.Int("port", port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("gdrive: callback server error: %w", serveErr)}:
			default:
			}
		}
	}()

	return srv, port, nil
}

func registerCallbackHandler(mux *http.ServeMux, state string, resultCh chan<- callbackResult) {
	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})
}

// handleOAuthCallback validates the state, extracts the code, and sends the result.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	var result callbackResult

	q := r.URL.Query()

	switch {
	case q.Get("state") != state:
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		result.err = errors.New("gdrive: OAuth2 state mismatch (possible CSRF)")
	case q.Get("error") != "":
		http.Error(w, "Authorization failed: "+q.Get("error"), http.StatusBadRequest)
		result.err = fmt.Errorf("gdrive: authorization failed: %s", q.Get("error"))
	case q.Get("code") == "":
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		result.err = errors.New("gdrive: callback missing authorization code")
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
			"<p>You can close this window and return to the terminal.</p></body></html>")

		result.code = q.Get("code")
	}

	// Only the first callback counts; later hits (favicon, reloads) are dropped.
	select {
	case resultCh <- result:
	default:
	}
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// launchBrowser attempts to open the consent URL, printing it as a fallback.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) {
	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
}

func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("gdrive: browser auth canceled: %w", ctx.Err())
	}
}

func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// TokenSourceFromStore returns a TokenSource seeded from the cached token.
// Refreshed tokens are written back through store. Returns ErrNotLoggedIn
// when nothing is cached.
func TokenSourceFromStore(
	ctx context.Context,
	cfg *oauth2.Config,
	store credstore.Store,
	logger *slog.Logger,
) (TokenSource, error) {
	tok, err := store.Load()
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	logger.Info("loaded cached credential",
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())),
	)

	return newPersistingSource(ctx, cfg, tok, store, logger), nil
}

// Logout removes the cached credential.
func Logout(store credstore.Store, logger *slog.Logger) error {
	if err := store.Clear(); err != nil {
		return err
	}

	logger.Info("logout: cached credential removed")

	return nil
}

// persistingSource adapts oauth2.TokenSource to TokenSource and writes the
// token back to the store whenever the oauth2 library refreshes it.
type persistingSource struct {
	src    oauth2.TokenSource
	store  credstore.Store
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func newPersistingSource(
	ctx context.Context,
	cfg *oauth2.Config,
	tok *oauth2.Token,
	store credstore.Store,
	logger *slog.Logger,
) *persistingSource {
	return &persistingSource{
		src:    cfg.TokenSource(ctx, tok),
		store:  store,
		logger: logger,
		last:   tok.AccessToken,
	}
}

func (p *persistingSource) Token() (string, error) {
	t, err := p.src.Token()
	if err != nil {
		p.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("gdrive: refreshing token: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if t.AccessToken != p.last {
		p.last = t.AccessToken

		if saveErr := p.store.Save(t); saveErr != nil {
			// The in-memory token is still good for this run.
			p.logger.Warn("failed to persist refreshed token", slog.String("error", saveErr.Error()))
		} else {
			p.logger.Info("persisted refreshed token", slog.Time("new_expiry", t.Expiry))
		}
	}

	return t.AccessToken, nil
}
