package preservica

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	userAgent    = "gdrive2preservica/0.1"
	tokenHeader  = "Preservica-Access-Token"
	maxErrorBody = 4096

	// tokenSkew renews the access token slightly before it lapses.
	tokenSkew = time.Minute
)

// Credentials identify a Preservica user.
type Credentials struct {
	Username string
	Password string
	Tenant   string
}

// Client is an HTTP client for the Preservica REST APIs. It logs in lazily
// and logs in again once the access token is about to expire.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	logger     *slog.Logger
	nowFunc    func() time.Time

	token  string
	expiry time.Time
}

// NewClient creates a Preservica client. baseURL is the server root,
// e.g. "https://eu.preservica.com".
func NewClient(baseURL string, httpClient *http.Client, creds Credentials, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		creds:      creds,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// loginResponse mirrors the /api/accesstoken/login JSON body.
type loginResponse struct {
	Success  bool   `json:"success"`
	Token    string `json:"token"`
	ValidFor int    `json:"validFor"` // minutes
}

// Login obtains a fresh access token.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.creds.Username)
	form.Set("password", c.creds.Password)

	if c.creds.Tenant != "" {
		form.Set("tenant", c.creds.Tenant)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/accesstoken/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("preservica: creating login request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("preservica: login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("preservica: decoding login response: %w", err)
	}

	if !lr.Success || lr.Token == "" {
		return fmt.Errorf("%w for user %s", ErrLoginRejected, c.creds.Username)
	}

	c.token = lr.Token
	c.expiry = c.nowFunc().Add(time.Duration(lr.ValidFor) * time.Minute)

	c.logger.Info("preservica login successful",
		slog.String("user", c.creds.Username),
		slog.String("tenant", c.creds.Tenant),
		slog.Time("expiry", c.expiry),
	)

	return nil
}

// Token returns the current access token, logging in if there is none or
// it is about to expire.
func (c *Client) Token(ctx context.Context) (string, error) {
	if c.token == "" || !c.nowFunc().Add(tokenSkew).Before(c.expiry) {
		if err := c.Login(ctx); err != nil {
			return "", err
		}
	}

	return c.token, nil
}

// Do executes one authenticated GET against the given path (with query).
// Non-2xx responses are returned as *APIError; there is no retry.
func (c *Client) Do(ctx context.Context, path string) (*http.Response, error) {
	tok, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("preservica: creating request: %w", err)
	}

	req.Header.Set(tokenHeader, tok)
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("preservica: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("preservica: GET %s: %w", path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	defer resp.Body.Close()

	return nil, c.apiError(resp)
}

func (c *Client) apiError(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		body = []byte("(failed to read response body)")
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
		Err:        classifyStatus(resp.StatusCode),
	}
}
