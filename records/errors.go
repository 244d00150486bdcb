package records

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingBaseURL = errors.New("records: base URL is required")
	ErrEmptyID        = errors.New("records: empty id")
)

// Business codes the API uses for throttling.
const (
	CodeTooManyRequests = 1254290
	CodeDataNotReady    = 1254607
)

// APIError is a failed API call, either a non-2xx status or a non-zero code
// in the response envelope.
type APIError struct {
	Op         string
	StatusCode int
	Code       int
	Msg        string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("records %s: status %d, code %d: %s", e.Op, e.StatusCode, e.Code, e.Msg)
	}
	return fmt.Sprintf("records %s: status %d: %s", e.Op, e.StatusCode, e.Msg)
}

// Temporary reports whether retrying the call may succeed.
func (e *APIError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return true
	case e.Code == CodeTooManyRequests, e.Code == CodeDataNotReady:
		return true
	}
	return false
}

// IsTemporary reports whether err wraps a temporary *APIError.
// It fits pool.RetryPolicy.RetryIf.
func IsTemporary(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Temporary()
}

// IsNotFound reports whether err wraps a 404 *APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
