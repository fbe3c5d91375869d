package transport

import (
	"chat-client/errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from the remote service.
// It unwraps to ErrAuthentication for 401/403, ErrInvalidRequest for other 4xx
// and ErrTransport for everything else, so callers can branch with errors.Is.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("remote: status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote: status %d: %s", e.StatusCode, e.Detail)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return errors.ErrAuthentication
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return errors.ErrInvalidRequest
	default:
		return errors.ErrTransport
	}
}
