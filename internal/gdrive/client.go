package gdrive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// DefaultBaseURL is the Drive v3 REST root.
const DefaultBaseURL = "https://www.googleapis.com/drive/v3"

const userAgent = "gdrive2preservica/0.1"

// maxErrorBody caps how much of an error response is kept for diagnostics.
const maxErrorBody = 4096

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer per
// "accept interfaces, return structs"; auth.go provides the real one.
type TokenSource interface {
	Token() (string, error)
}

// Client is an HTTP client for the Drive v3 API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
}

// NewClient creates a Drive API client. baseURL is normally DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
	}
}

// Do executes a single authenticated request. The path (including any query
// string) is appended to the base URL. Non-2xx responses are returned as
// *APIError. The caller closes the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("gdrive: creating request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("gdrive: obtaining token: %w", err)
	}

	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("gdrive: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("gdrive: %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	c.logger.Debug("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(errBody),
		Err:        classifyStatus(resp.StatusCode),
	}
}
