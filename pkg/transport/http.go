package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/ollama-go/pkg/llm"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 4096

// HTTP is the default Transport, backed by net/http.
type HTTP struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) HTTPOption {
	return func(t *HTTP) { t.apiKey = key }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(t *HTTP) { t.httpClient = client }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.Logger) HTTPOption {
	return func(t *HTTP) { t.logger = logger }
}

// defaultRoundTripper is a copy of http.DefaultTransport, so proxy settings
// from the environment and its dial timeouts apply.
func defaultRoundTripper() *http.Transport {
	return http.DefaultTransport.(*http.Transport).Clone()
}

// NewHTTP creates an HTTP transport for the server at baseURL.
func NewHTTP(baseURL string, opts ...HTTPOption) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	t := &HTTP{
		baseURL: u,
		httpClient: &http.Client{
			Transport: defaultRoundTripper(),
			// Streams can run for minutes; deadlines come from the request context.
			Timeout: 0,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// BaseURL returns the server address requests are sent to.
func (t *HTTP) BaseURL() string {
	return t.baseURL.String()
}

// Send implements Transport.
func (t *HTTP) Send(ctx context.Context, req *Request) (*Response, error) {
	httpResp, endpoint, err := t.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{Op: "read", URL: endpoint, Err: err}
	}

	t.logger.Debug("received response",
		zap.String("url", endpoint),
		zap.Int("status", httpResp.StatusCode),
		zap.Int("body_size", len(body)),
	)

	return &Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}

// Stream implements Transport. Read errors from the returned body are
// reported as *Error.
func (t *HTTP) Stream(ctx context.Context, req *Request) (io.ReadCloser, error) {
	httpResp, endpoint, err := t.do(ctx, req, true)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("stream opened",
		zap.String("url", endpoint),
		zap.String("content_type", httpResp.Header.Get("Content-Type")),
	)

	return &body{rc: httpResp.Body, url: endpoint}, nil
}

func (t *HTTP) do(ctx context.Context, req *Request, streaming bool) (*http.Response, string, error) {
	endpoint := t.baseURL.JoinPath(req.Path).String()

	var reader io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, endpoint, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, endpoint, fmt.Errorf("create request: %w", err)
	}
	if reader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if streaming {
		httpReq.Header.Set("Accept", "application/x-ndjson")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	if t.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	t.logger.Debug("sending request",
		zap.String("method", method),
		zap.String("url", endpoint),
		zap.Bool("stream", streaming),
	)

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, endpoint, &Error{Op: "send", URL: endpoint, Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		defer httpResp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: httpResp.StatusCode, Message: errorMessage(data)}
		t.logger.Warn("server returned error status",
			zap.String("url", endpoint),
			zap.Int("status", httpResp.StatusCode),
			zap.String("message", statusErr.Message),
		)
		return nil, endpoint, &Error{Op: "send", URL: endpoint, Err: statusErr}
	}

	return httpResp, endpoint, nil
}

// errorMessage extracts the server's error text from a failed response body.
func errorMessage(data []byte) string {
	var apiErr llm.ErrorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	return strings.TrimSpace(string(data))
}

// body tags read failures on a streamed response as transport errors.
type body struct {
	rc  io.ReadCloser
	url string
}

func (b *body) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, &Error{Op: "read", URL: b.url, Err: err}
	}
	return n, err
}

func (b *body) Close() error {
	return b.rc.Close()
}
