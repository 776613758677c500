package proxy

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/ollama-go/pkg/llm"
	"github.com/papercomputeco/ollama-go/pkg/merkle"
)

// handleDAGStats returns statistics about the DAG.
func (p *Proxy) handleDAGStats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	nodes, err := p.storer.List(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to list nodes"})
	}

	roots, err := p.storer.Roots(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get roots"})
	}

	leaves, err := p.storer.Leaves(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get leaves"})
	}

	stats := map[string]any{
		"total_nodes": len(nodes),
		"root_count":  len(roots),
		"leaf_count":  len(leaves),
	}

	return c.JSON(stats)
}

// handleGetNode returns a single node by its hash.
func (p *Proxy) handleGetNode(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "hash parameter required"})
	}

	node, err := p.storer.Get(c.UserContext(), hash)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}

	return c.JSON(node)
}

// PushResponse reports the outcome of POST /dag/nodes.
type PushResponse struct {
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
	Errors    int `json:"errors"`
}

// handlePutNodes stores a batch of nodes pushed from another store. Nodes
// whose hash does not match their content are counted as errors and skipped.
func (p *Proxy) handlePutNodes(c *fiber.Ctx) error {
	var nodes []*merkle.Node
	if err := json.Unmarshal(c.Body(), &nodes); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid node list"})
	}

	var result PushResponse
	for _, n := range nodes {
		if n == nil || !n.Verify() {
			result.Errors++
			continue
		}

		isNew, err := p.storer.Put(c.UserContext(), n)
		if err != nil {
			p.logger.Warn("failed to store pushed node", zap.String("hash", n.Hash), zap.Error(err))
			result.Errors++
			continue
		}
		if isNew {
			result.New++
		} else {
			result.Duplicate++
		}
	}

	p.logger.Info("received pushed nodes",
		zap.Int("new", result.New),
		zap.Int("duplicate", result.Duplicate),
		zap.Int("errors", result.Errors),
	)
	return c.JSON(result)
}

// HistoryResponse contains the conversation history for a given node.
type HistoryResponse struct {
	// Messages in chronological order (oldest first, up to and including the requested node)
	Messages []HistoryMessage `json:"messages"`
	// HeadHash is the hash of the node that was requested
	HeadHash string `json:"head_hash"`
	// Depth is the number of messages in the history
	Depth int `json:"depth"`
}

// HistoryMessage represents a message in the conversation history.
type HistoryMessage struct {
	Hash       string         `json:"hash"`
	ParentHash *string        `json:"parent_hash,omitempty"`
	Role       llm.Role       `json:"role"`
	Content    string         `json:"content"`
	Thinking   string         `json:"thinking,omitempty"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	Model      string         `json:"model,omitempty"`
	DoneReason string         `json:"done_reason,omitempty"`
	Metrics    *llm.Metrics   `json:"metrics,omitempty"`
}

// handleListHistories returns all conversation histories (one per leaf node).
func (p *Proxy) handleListHistories(c *fiber.Ctx) error {
	ctx := c.UserContext()

	leaves, err := p.storer.Leaves(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get leaves"})
	}

	histories := make([]HistoryResponse, 0, len(leaves))
	for _, leaf := range leaves {
		history, err := p.buildHistory(ctx, leaf.Hash)
		if err != nil {
			p.logger.Warn("failed to build history for leaf", zap.String("hash", leaf.Hash), zap.Error(err))
			continue
		}
		histories = append(histories, *history)
	}

	return c.JSON(map[string]any{
		"count":     len(histories),
		"histories": histories,
	})
}

// handleGetHistory returns the full conversation history leading up to a given node.
func (p *Proxy) handleGetHistory(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "hash parameter required"})
	}

	history, err := p.buildHistory(c.UserContext(), hash)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}

	return c.JSON(history)
}

func (p *Proxy) buildHistory(ctx context.Context, hash string) (*HistoryResponse, error) {
	path, err := p.storer.Descendants(ctx, hash)
	if err != nil {
		return nil, err
	}

	messages := make([]HistoryMessage, len(path))
	for i, node := range path {
		b := node.Content
		messages[i] = HistoryMessage{
			Hash:       node.Hash,
			ParentHash: node.ParentHash,
			Role:       b.Role,
			Content:    b.Content,
			Thinking:   b.Thinking,
			ToolCalls:  b.ToolCalls,
			Model:      b.Model,
			DoneReason: b.DoneReason,
			Metrics:    b.Metrics,
		}
	}

	return &HistoryResponse{
		Messages: messages,
		HeadHash: hash,
		Depth:    len(messages),
	}, nil
}
