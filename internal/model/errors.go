package model

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned when an upstream answers with a success status
// but the payload says the caller is being throttled.
var ErrRateLimited = errors.New("rate limited by upstream")

// NetworkError is a transport or HTTP failure that survived every retry.
type NetworkError struct {
	URL      string
	Status   int // 0 when no response was received
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("network: %s: status %d after %d attempt(s)", e.URL, e.Status, e.Attempts)
	}
	return fmt.Sprintf("network: %s: %v after %d attempt(s)", e.URL, e.Err, e.Attempts)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError reports a page or payload that could not be understood.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError creates a ParseError.
func NewParseError(what string, err error) *ParseError {
	return &ParseError{What: what, Err: err}
}

// ConfigError reports a missing or invalid setting. It is raised before any
// network activity.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
