package cloud

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/mysa-core/internal/auth"
)

var (
	// ErrTransient marks failures worth retrying later: network errors,
	// timeouts, 5xx and 429 responses.
	ErrTransient = errors.New("cloud: transient failure")

	// ErrProtocol marks responses that could not be understood.
	ErrProtocol = errors.New("cloud: unexpected response")
)

// StatusError is a non-2xx response. It matches auth.ErrAuthentication for
// 401 and 403, ErrTransient for 5xx and 429, and ErrProtocol otherwise.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cloud: %s %s returned status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("cloud: %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap returns the sentinel for the status class.
func (e *StatusError) Unwrap() error {
	switch {
	case isAuthStatus(e.StatusCode):
		return auth.ErrAuthentication
	case e.StatusCode >= http.StatusInternalServerError, e.StatusCode == http.StatusTooManyRequests:
		return ErrTransient
	default:
		return ErrProtocol
	}
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
