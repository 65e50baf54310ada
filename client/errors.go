package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRegistryUnavailable is returned when the circuit breaker for a
// registry host is open.
var ErrRegistryUnavailable = errors.New("registry unavailable")

// HTTPError represents a failed request: a non-2xx/3xx status, a transport
// failure or a timeout. StatusCode is 0 when no response was received.
type HTTPError struct {
	Method     string
	StatusCode int
	URL        string
	Body       string
	Err        error
}

func (e *HTTPError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Kind is the prefix printed for HTTP failures.
func (e *HTTPError) Kind() string {
	return "http error"
}

// IsNotFound returns true if the error represents a 404 response.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is an HTTPError with status 404.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.IsNotFound()
}
