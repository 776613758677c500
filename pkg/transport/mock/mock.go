// Package mock provides test doubles for transport interfaces using function fields.
package mock

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/papercomputeco/ollama-go/pkg/transport"
)

// Interface compliance check.
var _ transport.Transport = (*Transport)(nil)

// Transport is a test double for transport.Transport.
// Set SendFn and StreamFn for the calls the test makes. Every request is
// recorded in Requests.
type Transport struct {
	SendFn   func(ctx context.Context, req *transport.Request) (*transport.Response, error)
	StreamFn func(ctx context.Context, req *transport.Request) (io.ReadCloser, error)

	mu       sync.Mutex
	Requests []*transport.Request
}

// Send delegates to SendFn.
func (t *Transport) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	t.record(req)
	return t.SendFn(ctx, req)
}

// Stream delegates to StreamFn.
func (t *Transport) Stream(ctx context.Context, req *transport.Request) (io.ReadCloser, error) {
	t.record(req)
	return t.StreamFn(ctx, req)
}

// LastRequest returns the most recent request, or nil.
func (t *Transport) LastRequest() *transport.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Requests) == 0 {
		return nil
	}
	return t.Requests[len(t.Requests)-1]
}

func (t *Transport) record(req *transport.Request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Requests = append(t.Requests, req)
}

// ErrReadAfterClose is returned by Body.Read once the body is closed.
var ErrReadAfterClose = errors.New("mock: read after close")

// Body is an io.ReadCloser that hands out Chunks one Read at a time, the way a
// network body delivers bytes in arbitrary pieces. When the chunks run out it
// returns Err, or io.EOF when Err is nil. It counts reads and closes so tests
// can assert the body was released exactly once and never read afterwards.
type Body struct {
	Chunks [][]byte
	Err    error

	mu              sync.Mutex
	next            int
	pending         []byte
	reads           int
	readsAfterClose int
	closes          int
}

// NewBody returns a Body delivering chunks in order.
func NewBody(chunks ...string) *Body {
	b := &Body{}
	for _, c := range chunks {
		b.Chunks = append(b.Chunks, []byte(c))
	}
	return b
}

// Split returns a Body delivering data in pieces of at most size bytes.
func Split(data string, size int) *Body {
	b := &Body{}
	for len(data) > 0 {
		n := min(size, len(data))
		b.Chunks = append(b.Chunks, []byte(data[:n]))
		data = data[n:]
	}
	return b
}

// Read implements io.Reader. A chunk larger than p is delivered over several reads.
func (b *Body) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reads++
	if b.closes > 0 {
		b.readsAfterClose++
		return 0, ErrReadAfterClose
	}

	for len(b.pending) == 0 {
		if b.next >= len(b.Chunks) {
			if b.Err != nil {
				return 0, b.Err
			}
			return 0, io.EOF
		}
		b.pending = b.Chunks[b.next]
		b.next++
	}

	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

// Close implements io.Closer.
func (b *Body) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

// Reads returns the number of Read calls.
func (b *Body) Reads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads
}

// ReadsAfterClose returns the number of Read calls made after Close.
func (b *Body) ReadsAfterClose() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readsAfterClose
}

// Closes returns the number of Close calls.
func (b *Body) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// Consumed reports whether every chunk has been handed out.
func (b *Body) Consumed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next >= len(b.Chunks) && len(b.pending) == 0
}
