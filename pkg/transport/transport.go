// Package transport defines how the client talks to an Ollama server. The
// Transport interface is the seam between request building and the network:
// the client hands it a Request and gets back either a whole response body or
// a byte stream that a stream.Decoder consumes.
package transport

import (
	"context"
	"io"
	"net/http"
)

// Transport sends requests to an Ollama server.
type Transport interface {
	// Send performs a request and returns the complete response body.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Stream performs a request and returns the response body unread. The
	// caller owns the returned body and must close it.
	Stream(ctx context.Context, req *Request) (io.ReadCloser, error)
}

// Request is a transport-neutral description of an API call. Body is
// encoded as JSON when non-nil.
type Request struct {
	Method string
	Path   string
	Body   any
}

// Get returns a GET request for path.
func Get(path string) *Request {
	return &Request{Method: http.MethodGet, Path: path}
}

// Post returns a POST request for path carrying body as JSON.
func Post(path string, body any) *Request {
	return &Request{Method: http.MethodPost, Path: path, Body: body}
}

// Response is a buffered response.
type Response struct {
	StatusCode int
	Body       []byte
}
