package source

import (
	"errors"
	"fmt"
)

// ErrNoSession is returned when a token is requested before login or after
// logout.
var ErrNoSession = errors.New("no active bluesky session")

// AuthError reports a failed login or session refresh.
type AuthError struct {
	Op         string // "login" or "refresh"
	StatusCode int    // zero when no response was received
	Err        error
}

func (e *AuthError) Error() string {
	return describe("bluesky "+e.Op, e.StatusCode, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransportError reports a search page that could not be fetched or decoded.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	return describe("bluesky "+e.Op, e.StatusCode, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError reports a single post that could not be parsed.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse post: %s: %v", e.Reason, e.Err)
	}
	return "parse post: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func describe(op string, status int, err error) string {
	switch {
	case status != 0 && err != nil:
		return fmt.Sprintf("%s: response code %d: %v", op, status, err)
	case status != 0:
		return fmt.Sprintf("%s: response code %d", op, status)
	case err != nil:
		return fmt.Sprintf("%s: %v", op, err)
	default:
		return op + " failed"
	}
}
