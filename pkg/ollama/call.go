package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/ollama-go/pkg/stream"
	"github.com/papercomputeco/ollama-go/pkg/transport"
)

// send performs a buffered call and decodes the single record it returns. The
// body goes through the same classification as a stream, so an in-band error
// field surfaces as a *ServerError.
func send[R stream.Record](ctx context.Context, c *Client, req *transport.Request) (*R, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		c.logger.Error("request failed", zap.String("path", req.Path), zap.Error(err))
		return nil, err
	}

	c.logger.Debug("request complete",
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	// A buffered body is one JSON value, possibly pretty-printed.
	data := bytes.TrimSpace(resp.Body)
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err == nil {
		data = compact.Bytes()
	}

	dec := stream.NewDecoder[R](io.NopCloser(bytes.NewReader(data)), c.streamOptions()...)
	defer dec.Close()

	ev, err := dec.Next()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyResponse
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", req.Path, err)
	}

	switch e := ev.(type) {
	case stream.Done[R]:
		return &e.Record, nil
	case stream.Chunk[R]:
		return &e.Record, nil
	case stream.ErrorEvent:
		return nil, &ServerError{Message: e.Message}
	}
	return nil, fmt.Errorf("decode %s response: unexpected event %T", req.Path, ev)
}

// get performs a buffered GET and decodes the JSON body into T.
func get[T any](ctx context.Context, c *Client, path string) (*T, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.transport.Send(ctx, transport.Get(path))
	if err != nil {
		c.logger.Error("request failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, ErrEmptyResponse
	}

	var out T
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return &out, nil
}

// open starts a streaming call and wraps the body in a decoder.
func open[R stream.Record](ctx context.Context, c *Client, req *transport.Request) (*stream.Decoder[R], error) {
	body, err := c.transport.Stream(ctx, req)
	if err != nil {
		c.logger.Error("stream request failed", zap.String("path", req.Path), zap.Error(err))
		return nil, err
	}
	return stream.NewDecoder[R](body, c.streamOptions()...), nil
}
