package ollama

import (
	"context"
	"errors"

	"github.com/papercomputeco/ollama-go/pkg/llm"
	"github.com/papercomputeco/ollama-go/pkg/stream"
	"github.com/papercomputeco/ollama-go/pkg/transport"
)

// Generate sends a completion request and waits for the complete response.
// The request's Stream field is ignored.
func (c *Client) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	body, err := generateBody(req, false)
	if err != nil {
		return nil, err
	}
	return send[llm.GenerateResponse](ctx, c, transport.Post(pathGenerate, body))
}

// GenerateStream sends a completion request and returns a decoder over the
// response as it is generated. The caller must Close the decoder, or read it
// to the end.
func (c *Client) GenerateStream(ctx context.Context, req *llm.GenerateRequest) (*stream.Decoder[llm.GenerateResponse], error) {
	body, err := generateBody(req, true)
	if err != nil {
		return nil, err
	}
	return open[llm.GenerateResponse](ctx, c, transport.Post(pathGenerate, body))
}

func generateBody(req *llm.GenerateRequest, streaming bool) (*llm.GenerateRequest, error) {
	if req == nil {
		return nil, errors.New("generate request is nil")
	}
	if req.Model == "" {
		return nil, errors.New("generate request: model is required")
	}

	body := *req
	body.Stream = llm.Ptr(streaming)
	return &body, nil
}
