package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/ollama-go/pkg/transport"
)

// previewLen caps how much of an offending record is kept in a DecodeError.
const previewLen = 256

// Decoder turns an NDJSON byte stream into events. It is not safe for
// concurrent use; each streaming call gets its own Decoder.
type Decoder[R Record] struct {
	src     io.ReadCloser
	scanner *bufio.Scanner
	framer  framer
	logger  *zap.Logger

	line    int
	content strings.Builder
	state   State
	err     error

	release  sync.Once
	closeErr error
}

// NewDecoder returns a Decoder reading records of type R from src. The
// Decoder takes ownership of src and closes it exactly once: when the stream
// terminates, when it fails, or on Close.
func NewDecoder[R Record](src io.ReadCloser, opts ...Option) *Decoder[R] {
	o := options{
		maxRecordSize: DefaultMaxRecordSize,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Decoder[R]{
		src:    src,
		logger: o.logger,
	}

	// One extra byte for the newline that ends a maximum-size record.
	limit := o.maxRecordSize + 1
	d.scanner = bufio.NewScanner(src)
	d.scanner.Buffer(make([]byte, 0, min(4096, limit)), limit)
	d.scanner.Split(d.framer.split)

	return d
}

// Next returns the next event. After a Done or ErrorEvent, or when the body
// ends, it returns io.EOF. A decode or transport failure is returned as the
// error and repeated on every later call. After Close it returns ErrClosed.
func (d *Decoder[R]) Next() (Event, error) {
	switch d.state {
	case StateComplete:
		return nil, io.EOF
	case StateFailed:
		return nil, d.err
	case StateClosed:
		return nil, ErrClosed
	}

	for d.scanner.Scan() {
		d.line++
		raw := bytes.TrimSpace(d.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		if !d.framer.terminated {
			// The body ended, or broke, before this record's newline arrived.
			if err := d.scanner.Err(); err != nil {
				return nil, d.fail(readError(err))
			}
			if !json.Valid(raw) {
				return nil, d.fail(&DecodeError{
					Line:      d.line,
					Record:    preview(raw),
					Truncated: true,
					Err:       io.ErrUnexpectedEOF,
				})
			}
		}

		return d.decode(raw)
	}

	if err := d.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, d.fail(&DecodeError{Line: d.line + 1, TooLarge: true, Err: err})
		}
		return nil, d.fail(readError(err))
	}

	d.logger.Debug("stream ended without a terminal record", zap.Int("lines", d.line))
	d.complete()
	return nil, io.EOF
}

// All returns an iterator over the remaining events. Iteration stops after the
// first error. Breaking out of the loop closes the Decoder.
func (d *Decoder[R]) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		defer d.Close()
		for {
			ev, err := d.Next()
			if err == io.EOF {
				return
			}
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}

// Close stops the stream and releases the body. It is safe to call more than
// once and after the stream has terminated.
func (d *Decoder[R]) Close() error {
	if !d.state.Terminal() {
		d.logger.Debug("stream closed by caller", zap.Int("lines", d.line))
		d.state = StateClosed
	}
	d.releaseSource()
	return d.closeErr
}

// State returns the current lifecycle state.
func (d *Decoder[R]) State() State {
	return d.state
}

// Content returns the fragments received so far, concatenated.
func (d *Decoder[R]) Content() string {
	return d.content.String()
}

func (d *Decoder[R]) decode(raw []byte) (Event, error) {
	if raw[0] != '{' {
		return nil, d.fail(&DecodeError{Line: d.line, Record: preview(raw), Err: ErrNotObject})
	}

	// Keys are matched exactly; encoding/json would also accept "Done" or "ERROR".
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, d.fail(&DecodeError{Line: d.line, Record: preview(raw), Err: err})
	}

	if e, ok := fields["error"]; ok && !bytes.Equal(e, []byte("null")) {
		msg := errorText(e)
		d.logger.Debug("stream error record", zap.Int("line", d.line), zap.String("error", msg))
		d.complete()
		return ErrorEvent{Message: msg}, nil
	}

	var done bool
	if v, ok := fields["done"]; ok {
		if err := json.Unmarshal(v, &done); err != nil {
			return nil, d.fail(&DecodeError{Line: d.line, Record: preview(raw), Err: err})
		}
	}

	var rec R
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, d.fail(&DecodeError{Line: d.line, Record: preview(raw), Err: err})
	}

	text := rec.Fragment()
	d.content.WriteString(text)

	if done {
		d.logger.Debug("stream done",
			zap.Int("line", d.line),
			zap.Int("content_length", d.content.Len()),
		)
		d.complete()
		return Done[R]{Record: rec, Content: d.content.String()}, nil
	}

	d.logger.Debug("stream chunk",
		zap.Int("line", d.line),
		zap.String("text", truncate(text, 50)),
	)
	d.state = StateStreaming
	return Chunk[R]{Text: text, Record: rec}, nil
}

func (d *Decoder[R]) complete() {
	d.state = StateComplete
	d.releaseSource()
}

func (d *Decoder[R]) fail(err error) error {
	d.logger.Warn("stream failed", zap.Int("line", d.line), zap.Error(err))
	d.state = StateFailed
	d.err = err
	d.releaseSource()
	return err
}

func (d *Decoder[R]) releaseSource() {
	d.release.Do(func() {
		d.closeErr = d.src.Close()
	})
}

// framer splits on '\n' and remembers whether the last token was terminated
// by one. At end of input the remaining bytes become a final, unterminated token.
type framer struct {
	terminated bool
}

func (f *framer) split(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		f.terminated = true
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		f.terminated = false
		return len(data), data, nil
	}
	return 0, nil, nil
}

// readError returns err as a transport error, leaving ones the transport
// already produced untouched.
func readError(err error) error {
	if transport.IsTransport(err) {
		return err
	}
	return &transport.Error{Op: "read", Err: err}
}

// errorText extracts a message from an "error" field, which is normally a
// string but is occasionally an object with a "message".
func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

func preview(raw []byte) string {
	if len(raw) <= previewLen {
		return string(raw)
	}
	return string(raw[:previewLen]) + "..."
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
