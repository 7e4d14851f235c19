package client

import (
	"errors"
	"fmt"
)

// ErrInvalidBaseURL is returned by NewClient for an unusable base URL.
var ErrInvalidBaseURL = errors.New("invalid base URL")

// StatusError is returned when the server answers with a non-2xx status.
// Body holds the start of the response body.
type StatusError struct {
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// TransportError wraps a network failure. Op names the failed step
// ("request", "read", "decode").
type TransportError struct {
	Cause error
	Op    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}
