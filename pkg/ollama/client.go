// Package ollama is a client for the Ollama REST API. It sends generate and
// chat requests in buffered or streaming mode, lists models, and keeps a
// registry of tools the model may call.
//
// Streaming calls return a *stream.Decoder that the caller pulls events from
// and must Close (or drain) to release the connection:
//
//	dec, err := client.ChatStream(ctx, llm.NewChatRequest("llama3.2", llm.NewMessage(llm.RoleUser, "hi")))
//	if err != nil {
//		return err
//	}
//	defer dec.Close()
//	for ev, err := range dec.All() {
//		...
//	}
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/ollama-go/pkg/config"
	"github.com/papercomputeco/ollama-go/pkg/stream"
	"github.com/papercomputeco/ollama-go/pkg/tools"
	"github.com/papercomputeco/ollama-go/pkg/transport"
)

// API paths.
const (
	pathChat     = "/api/chat"
	pathGenerate = "/api/generate"
	pathTags     = "/api/tags"
	pathPs       = "/api/ps"
	pathVersion  = "/api/version"
)

// ErrEmptyResponse is returned when a buffered call gets a body with no record.
var ErrEmptyResponse = errors.New("empty response body")

// ServerError is an error the server reported inside a successful response:
// the "error" field of a record rather than an HTTP status.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "ollama: " + e.Message
}

// Client talks to one Ollama server. It is safe for concurrent use; every
// streaming call gets its own decoder.
type Client struct {
	transport     transport.Transport
	tools         *tools.Registry
	logger        *zap.Logger
	baseURL       string
	timeout       time.Duration
	maxRecordSize int
}

type settings struct {
	transport     transport.Transport
	baseURL       string
	apiKey        *string
	httpClient    *http.Client
	logger        *zap.Logger
	registry      *tools.Registry
	timeout       time.Duration
	maxRecordSize int
}

// Option configures a Client.
type Option func(*settings)

// WithTransport replaces the HTTP transport. WithBaseURL, WithAPIKey and
// WithHTTPClient are ignored when it is set.
func WithTransport(t transport.Transport) Option {
	return func(s *settings) { s.transport = t }
}

// WithBaseURL sets the server address. Without it OLLAMA_HOST is used, then
// http://127.0.0.1:11434.
func WithBaseURL(baseURL string) Option {
	return func(s *settings) { s.baseURL = baseURL }
}

// WithAPIKey sets the bearer token. Without it OLLAMA_API_KEY is used.
func WithAPIKey(key string) Option {
	return func(s *settings) { s.apiKey = &key }
}

// WithHTTPClient replaces the *http.Client used by the default transport.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) { s.httpClient = client }
}

// WithLogger sets the logger for the client, its transport and its decoders.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithToolRegistry starts the client with a pre-filled registry.
func WithToolRegistry(r *tools.Registry) Option {
	return func(s *settings) { s.registry = r }
}

// WithTimeout bounds each buffered call. Streaming calls are bounded by their
// context only.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithMaxRecordSize sets the largest NDJSON record a stream accepts.
func WithMaxRecordSize(n int) Option {
	return func(s *settings) { s.maxRecordSize = n }
}

// WithConfig applies a loaded configuration file.
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) {
		if cfg.Host != "" {
			s.baseURL = cfg.Host
		}
		if cfg.APIKey != "" {
			key := cfg.APIKey
			s.apiKey = &key
		}
		if cfg.Timeout.Duration > 0 {
			s.timeout = cfg.Timeout.Duration
		}
		if cfg.MaxRecordSize > 0 {
			s.maxRecordSize = cfg.MaxRecordSize
		}
	}
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.registry == nil {
		s.registry = tools.NewRegistry(s.logger)
	}

	c := &Client{
		transport:     s.transport,
		tools:         s.registry,
		logger:        s.logger,
		timeout:       s.timeout,
		maxRecordSize: s.maxRecordSize,
	}

	if c.transport == nil {
		baseURL := s.baseURL
		if baseURL == "" {
			baseURL = os.Getenv(config.EnvHost)
		}
		baseURL, err := config.NormalizeHost(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}

		apiKey := os.Getenv(config.EnvAPIKey)
		if s.apiKey != nil {
			apiKey = *s.apiKey
		}

		httpOpts := []transport.HTTPOption{
			transport.WithAPIKey(apiKey),
			transport.WithLogger(s.logger),
		}
		if s.httpClient != nil {
			httpOpts = append(httpOpts, transport.WithHTTPClient(s.httpClient))
		}

		t, err := transport.NewHTTP(baseURL, httpOpts...)
		if err != nil {
			return nil, err
		}
		c.transport = t
		c.baseURL = t.BaseURL()
	}

	return c, nil
}

// BaseURL returns the server address, or "" for a custom transport.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Tools returns the client's tool registry.
func (c *Client) Tools() *tools.Registry {
	return c.tools
}

// RegisterTool adds a tool to the client's registry.
func (c *Client) RegisterTool(t tools.Tool) error {
	return c.tools.Register(t)
}

// UnregisterTool removes a tool from the client's registry.
func (c *Client) UnregisterTool(name string) error {
	return c.tools.Unregister(name)
}

func (c *Client) streamOptions() []stream.Option {
	return []stream.Option{
		stream.WithLogger(c.logger),
		stream.WithMaxRecordSize(c.maxRecordSize),
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
