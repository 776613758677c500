// Package proxy provides an Ollama proxy that records conversations in a Merkle DAG.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/ollama-go/pkg/llm"
	"github.com/papercomputeco/ollama-go/pkg/merkle"
	"github.com/papercomputeco/ollama-go/pkg/ollama"
	"github.com/papercomputeco/ollama-go/pkg/stream"
	"github.com/papercomputeco/ollama-go/pkg/transport"
)

// Proxy sits between Ollama clients and an Ollama server. It forwards
// /api/chat and /api/generate through an ollama.Client, re-emits streamed
// replies record by record, and stores every completed turn in a
// content-addressed merkle.Storer.
type Proxy struct {
	config Config
	storer merkle.Storer
	client *ollama.Client
	logger *zap.Logger
	server *fiber.App
}

// New creates a new Proxy. Extra client options are applied after the ones
// derived from config.
func New(config Config, logger *zap.Logger, opts ...ollama.Option) (*Proxy, error) {
	var storer merkle.Storer
	var err error

	if config.DBPath != "" {
		storer, err = merkle.NewSQLiteStorer(config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		logger.Info("using SQLite storage", zap.String("path", config.DBPath))
	} else {
		storer = merkle.NewMemoryStorer()
		logger.Info("using in-memory storage")
	}

	clientOpts := []ollama.Option{
		ollama.WithBaseURL(config.UpstreamURL),
		ollama.WithLogger(logger.Named("upstream")),
		ollama.WithMaxRecordSize(config.MaxRecordSize),
	}
	if config.APIKey != "" {
		clientOpts = append(clientOpts, ollama.WithAPIKey(config.APIKey))
	}
	client, err := ollama.New(append(clientOpts, opts...)...)
	if err != nil {
		storer.Close()
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	return newProxy(config, storer, client, logger), nil
}

func newProxy(config Config, storer merkle.Storer, client *ollama.Client, logger *zap.Logger) *Proxy {
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	p := &Proxy{
		config: config,
		storer: storer,
		client: client,
		logger: logger,
		server: app,
	}

	app.Post("/api/chat", p.handleChat)
	app.Post("/api/generate", p.handleGenerate)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	// DAG inspection endpoints
	app.Get("/dag/stats", p.handleDAGStats)
	app.Get("/dag/node/:hash", p.handleGetNode)
	app.Get("/dag/history", p.handleListHistories)
	app.Get("/dag/history/:hash", p.handleGetHistory)
	app.Post("/dag/nodes", p.handlePutNodes)

	return p
}

// Run serves on the configured listening address until ctx is canceled, then
// shuts down gracefully.
func (p *Proxy) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", p.config.ListenAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.RunWithListener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		p.logger.Info("shutting down proxy server")
		if err := p.Shutdown(); err != nil {
			return fmt.Errorf("could not shut down proxy: %w", err)
		}
		return <-errCh
	}
}

// RunWithListener serves on an existing listener.
func (p *Proxy) RunWithListener(ln net.Listener) error {
	p.logger.Info("starting proxy server",
		zap.String("listen", ln.Addr().String()),
		zap.String("upstream", p.client.BaseURL()),
	)
	return p.server.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (p *Proxy) Shutdown() error {
	return p.server.Shutdown()
}

// Close shuts down the proxy and releases resources.
func (p *Proxy) Close() error {
	return p.storer.Close()
}

// handleChat forwards a chat request upstream and stores the turn.
// Content-addressability means identical histories deduplicate and different
// replies branch from their common ancestor, without session IDs.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()

	var req llm.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		p.logger.Error("failed to parse request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	p.logger.Debug("received chat request",
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
		zap.Bool("stream", req.Streaming()),
	)

	if !req.Streaming() {
		resp, err := p.client.Chat(c.UserContext(), &req)
		if err != nil {
			return p.upstreamError(c, err)
		}

		p.logger.Debug("received response from upstream",
			zap.String("model", resp.Model),
			zap.String("content_preview", truncate(resp.Message.Content, 100)),
			zap.Duration("duration", time.Since(startTime)),
		)

		p.storeTurn(c.UserContext(), &llm.ConversationTurn{Request: &req, Response: resp})
		return c.JSON(resp)
	}

	ctx, cancel := context.WithCancel(context.Background())
	dec, err := p.client.ChatStream(ctx, &req)
	if err != nil {
		cancel()
		return p.upstreamError(c, err)
	}

	var reply chatReply
	return p.streamResponse(c, func(w lineWriter) {
		defer cancel()

		done, err := relay(w, dec, reply.observe)
		if err != nil {
			p.logger.Warn("chat stream ended early", zap.Error(err))
			return
		}
		if done == nil {
			p.logger.Warn("chat stream ended without a final record")
			return
		}

		resp := done.Record
		resp.Message = reply.message(done.Content)
		p.logger.Debug("streaming complete",
			zap.String("full_content_preview", truncate(done.Content, 200)),
			zap.Duration("duration", time.Since(startTime)),
		)
		p.storeTurn(context.Background(), &llm.ConversationTurn{Request: &req, Response: &resp})
	})
}

// handleGenerate forwards a completion request upstream. The prompt (and
// system prompt, when set) are stored as a one-turn conversation.
func (p *Proxy) handleGenerate(c *fiber.Ctx) error {
	startTime := time.Now()

	var req llm.GenerateRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		p.logger.Error("failed to parse request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	p.logger.Debug("received generate request",
		zap.String("model", req.Model),
		zap.String("prompt_preview", truncate(req.Prompt, 50)),
		zap.Bool("stream", req.Streaming()),
	)

	if !req.Streaming() {
		resp, err := p.client.Generate(c.UserContext(), &req)
		if err != nil {
			return p.upstreamError(c, err)
		}
		p.storeTurn(c.UserContext(), generateTurn(&req, resp))
		return c.JSON(resp)
	}

	ctx, cancel := context.WithCancel(context.Background())
	dec, err := p.client.GenerateStream(ctx, &req)
	if err != nil {
		cancel()
		return p.upstreamError(c, err)
	}

	var thinking strings.Builder
	return p.streamResponse(c, func(w lineWriter) {
		defer cancel()

		done, err := relay(w, dec, func(r llm.GenerateResponse) { thinking.WriteString(r.Thinking) })
		if err != nil || done == nil {
			p.logger.Warn("generate stream ended early", zap.Error(err))
			return
		}

		resp := done.Record
		resp.Response = done.Content
		resp.Thinking = thinking.String()
		p.logger.Debug("streaming complete",
			zap.Int("response_length", len(done.Content)),
			zap.Duration("duration", time.Since(startTime)),
		)
		p.storeTurn(context.Background(), generateTurn(&req, &resp))
	})
}

// upstreamError maps a client error onto the response sent downstream. An
// upstream HTTP status is passed through with its message.
func (p *Proxy) upstreamError(c *fiber.Ctx, err error) error {
	var (
		statusErr *transport.StatusError
		serverErr *ollama.ServerError
		decodeErr *stream.DecodeError
	)

	switch {
	case errors.As(err, &statusErr):
		msg := statusErr.Message
		if msg == "" {
			msg = http.StatusText(statusErr.StatusCode)
		}
		p.logger.Warn("upstream returned error", zap.Int("status", statusErr.StatusCode), zap.String("error", msg))
		return c.Status(statusErr.StatusCode).JSON(llm.ErrorResponse{Error: msg})

	case errors.As(err, &serverErr):
		p.logger.Warn("upstream reported error", zap.String("error", serverErr.Message))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: serverErr.Message})

	case transport.IsTransport(err):
		p.logger.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})

	case errors.As(err, &decodeErr), errors.Is(err, ollama.ErrEmptyResponse):
		p.logger.Error("invalid upstream response", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "invalid upstream response"})

	default:
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}
}

// storeTurn records a completed turn. Storage failures are logged, not
// returned: the client already has its answer.
func (p *Proxy) storeTurn(ctx context.Context, turn *llm.ConversationTurn) {
	headHash, err := merkle.RecordTurn(ctx, p.storer, turn)
	if err != nil {
		p.logger.Error("failed to store conversation", zap.Error(err))
		return
	}
	p.logger.Info("conversation stored", zap.String("head_hash", truncate(headHash, 16)))
}

// generateTurn expresses a completion as a chat turn so it can be stored
// alongside chats.
func generateTurn(req *llm.GenerateRequest, resp *llm.GenerateResponse) *llm.ConversationTurn {
	var messages []llm.Message
	if req.System != "" {
		messages = append(messages, llm.NewMessage(llm.RoleSystem, req.System))
	}
	messages = append(messages, llm.NewMessage(llm.RoleUser, req.Prompt))

	return &llm.ConversationTurn{
		Request: llm.NewChatRequest(req.Model, messages...),
		Response: &llm.ChatResponse{
			Model:     resp.Model,
			CreatedAt: resp.CreatedAt,
			Message: llm.Message{
				Role:     llm.RoleAssistant,
				Content:  resp.Response,
				Thinking: resp.Thinking,
			},
			Done:       resp.Done,
			DoneReason: resp.DoneReason,
			Metrics:    resp.Metrics,
		},
	}
}

// chatReply accumulates the parts of a streamed chat reply the decoder does
// not aggregate itself.
type chatReply struct {
	role      llm.Role
	thinking  strings.Builder
	toolCalls []llm.ToolCall
}

func (r *chatReply) observe(rec llm.ChatResponse) {
	if rec.Message.Role != "" {
		r.role = rec.Message.Role
	}
	r.thinking.WriteString(rec.Message.Thinking)
	r.toolCalls = append(r.toolCalls, rec.Message.ToolCalls...)
}

func (r *chatReply) message(content string) llm.Message {
	role := r.role
	if role == "" {
		role = llm.RoleAssistant
	}
	return llm.Message{
		Role:      role,
		Content:   content,
		Thinking:  r.thinking.String(),
		ToolCalls: r.toolCalls,
	}
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
