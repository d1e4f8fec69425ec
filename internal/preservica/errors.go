// Package preservica talks to a Preservica repository: access-token login,
// entity lookups by external identifier, structural-object (folder)
// resolution, and package upload to the S3 ingest bucket the repository's
// workflow watches.
package preservica

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
var (
	ErrBadRequest   = errors.New("preservica: bad request")
	ErrUnauthorized = errors.New("preservica: unauthorized")
	ErrForbidden    = errors.New("preservica: forbidden")
	ErrNotFound     = errors.New("preservica: not found")
	ErrServerError  = errors.New("preservica: server error")
)

// ErrLoginRejected is returned when the access-token endpoint answers but
// does not issue a token.
var ErrLoginRejected = errors.New("preservica: login rejected")

// APIError wraps a sentinel error with the HTTP status code and body.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("preservica: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

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
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
