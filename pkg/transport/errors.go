package transport

import (
	"errors"
	"fmt"
)

// Error reports a failure to talk to the server: dialing, DNS, timeouts,
// reading the body or a non-2xx status. Stream decoders pass it through to the
// caller unmodified.
type Error struct {
	Op  string // "send", "read", ...
	URL string
	Err error
}

func (e *Error) Error() string {
	if e.URL == "" {
		return "transport " + e.Op + ": " + e.Err.Error()
	}
	return fmt.Sprintf("transport %s %s: %s", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError is wrapped in an Error when the server answers with a non-2xx
// status. Message is the server's {"error": ...} text when it sent one.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsTransport reports whether err is, or wraps, a transport Error.
func IsTransport(err error) bool {
	var te *Error
	return errors.As(err, &te)
}
