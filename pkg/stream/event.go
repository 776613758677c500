// Package stream decodes the newline-delimited JSON (NDJSON) bodies the Ollama
// API streams back into a lazy, ordered sequence of typed events.
//
// A Decoder is created per streaming call and owns the response body for the
// lifetime of that call. Consumption is pull-based: bytes are only read from
// the body inside Next, so a caller that stops pulling (Close, or breaking out
// of a range over All) leaves no background work behind.
//
// Three outcomes end a stream and are kept distinct:
//   - the server finished or reported a failure in-band: a Done or ErrorEvent
//     value, the last event of the sequence;
//   - the bytes could not be decoded: a *DecodeError from Next;
//   - the connection failed: a *transport.Error from Next.
package stream

// Record is implemented by the per-line payload types a Decoder produces.
type Record interface {
	// Fragment returns the text this record contributes to the response.
	Fragment() string
}

// Event is a sealed interface over the values a Decoder yields: Chunk, Done
// and ErrorEvent. The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// Chunk is a content record. Text is the fragment it carries and Record the
// full, partially-populated record (thinking, tool calls, ...).
type Chunk[R Record] struct {
	Text   string
	Record R
}

func (Chunk[R]) event() {}

// Done is the terminal record of a successful stream. Record carries the
// usage and timing metadata and may itself hold a final fragment; Content is
// every fragment of the stream concatenated, that one included.
type Done[R Record] struct {
	Record  R
	Content string
}

func (Done[R]) event() {}

// ErrorEvent is an error the server reported as a normally framed record. It
// terminates the stream.
type ErrorEvent struct {
	Message string
}

func (ErrorEvent) event() {}

// State indicates where a Decoder is in its lifecycle.
type State int

const (
	StateNew       State = iota // Before Next() is ever called.
	StateStreaming              // Mid-stream, content chunks delivered.
	StateComplete               // Done, ErrorEvent or end of stream reached.
	StateFailed                 // Next() returned a decode or transport error.
	StateClosed                 // Close() called before a terminal state.
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether no further events can be produced.
func (s State) Terminal() bool {
	return s >= StateComplete
}
