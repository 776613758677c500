package ollama

import (
	"context"

	"github.com/papercomputeco/ollama-go/pkg/llm"
)

// ListModels returns the models available on the server.
func (c *Client) ListModels(ctx context.Context) (*llm.ListModelsResponse, error) {
	return get[llm.ListModelsResponse](ctx, c, pathTags)
}

// ListRunningModels returns the models currently loaded in memory.
func (c *Client) ListRunningModels(ctx context.Context) (*llm.ListRunningModelsResponse, error) {
	return get[llm.ListRunningModelsResponse](ctx, c, pathPs)
}

// Version returns the server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := get[llm.VersionResponse](ctx, c, pathVersion)
	if err != nil {
		return "", err
	}
	return resp.Version, nil
}
