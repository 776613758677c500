package ollama

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/ollama-go/pkg/llm"
	"github.com/papercomputeco/ollama-go/pkg/stream"
	"github.com/papercomputeco/ollama-go/pkg/transport"
)

// Chat sends a chat request and waits for the complete reply. The request's
// Stream field is ignored.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body, err := chatBody(req, false)
	if err != nil {
		return nil, err
	}
	return send[llm.ChatResponse](ctx, c, transport.Post(pathChat, body))
}

// ChatStream sends a chat request and returns a decoder over the reply as it
// is generated. The caller must Close the decoder, or read it to the end.
func (c *Client) ChatStream(ctx context.Context, req *llm.ChatRequest) (*stream.Decoder[llm.ChatResponse], error) {
	body, err := chatBody(req, true)
	if err != nil {
		return nil, err
	}
	return open[llm.ChatResponse](ctx, c, transport.Post(pathChat, body))
}

// RunTools dispatches every tool call in msg through the client's registry and
// returns the resulting "tool" messages in call order. Tool failures are
// reported to the model in the message content; only a canceled context
// stops the loop early.
func (c *Client) RunTools(ctx context.Context, msg llm.Message) ([]llm.Message, error) {
	results := make([]llm.Message, 0, len(msg.ToolCalls))
	var errs []error
	for _, call := range msg.ToolCalls {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := c.tools.Dispatch(ctx, call)
		if err != nil {
			errs = append(errs, err)
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

func chatBody(req *llm.ChatRequest, streaming bool) (*llm.ChatRequest, error) {
	if req == nil {
		return nil, errors.New("chat request is nil")
	}
	if req.Model == "" {
		return nil, errors.New("chat request: model is required")
	}
	for i, m := range req.Messages {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("chat request: message %d has invalid role %q", i, m.Role)
		}
	}

	body := *req
	body.Stream = llm.Ptr(streaming)
	return &body, nil
}
