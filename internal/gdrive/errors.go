// Package gdrive provides a minimal HTTP client for the Google Drive v3 API:
// paginated file listing, verbatim and export downloads, and the installed-app
// OAuth2 consent flow. Requests are never retried; the caller decides what a
// failure means.
package gdrive

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, gdrive.ErrNotFound) to check.
var (
	ErrBadRequest      = errors.New("gdrive: bad request")
	ErrUnauthorized    = errors.New("gdrive: unauthorized")
	ErrForbidden       = errors.New("gdrive: forbidden")
	ErrNotFound        = errors.New("gdrive: not found")
	ErrRangeNotAllowed = errors.New("gdrive: requested range not satisfiable")
	ErrThrottled       = errors.New("gdrive: throttled")
	ErrServerError     = errors.New("gdrive: server error")
)

// ErrNotLoggedIn is returned when no cached credential exists.
var ErrNotLoggedIn = errors.New("gdrive: not logged in")

// APIError wraps a sentinel error with the HTTP status code and the API
// error body for debugging.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gdrive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusRequestedRangeNotSatisfiable:
		return ErrRangeNotAllowed
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
