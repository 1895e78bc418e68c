package address

import (
	"errors"
	"fmt"
)

// ErrInvalidURL is the sentinel wrapped by every ParseError.
var ErrInvalidURL = errors.New("invalid replication URL")

// ParseError describes why a replication URL was rejected.
type ParseError struct {
	// URL is the rejected input.
	URL string

	// Reason is a short human-readable explanation.
	Reason string
}

func newParseError(url, reason string) *ParseError {
	return &ParseError{URL: url, Reason: reason}
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid replication URL %q: %s", e.URL, e.Reason)
}

// Unwrap returns ErrInvalidURL so callers can use errors.Is.
func (e *ParseError) Unwrap() error {
	return ErrInvalidURL
}
