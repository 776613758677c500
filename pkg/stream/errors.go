package stream

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("stream closed")

// ErrNotObject is wrapped in a DecodeError for a record that is valid JSON but
// not an object.
var ErrNotObject = errors.New("record is not a JSON object")

// DecodeError reports a record that could not be decoded. It is fatal: the
// decoder stops at the first one.
type DecodeError struct {
	Line      int    // 1-based line number of the record in the stream
	Record    string // The offending bytes, truncated for display
	Truncated bool   // The stream ended in the middle of this record
	TooLarge  bool   // The record exceeded the configured size limit
	Err       error
}

func (e *DecodeError) Error() string {
	switch {
	case e.TooLarge:
		return fmt.Sprintf("decode line %d: record exceeds size limit: %s", e.Line, e.Err)
	case e.Truncated:
		return fmt.Sprintf("decode line %d: stream ended mid-record %q: %s", e.Line, e.Record, e.Err)
	default:
		return fmt.Sprintf("decode line %d: %q: %s", e.Line, e.Record, e.Err)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
