package merkle

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/ollama-go/pkg/llm"
)

// RecordTurn stores a request-response pair and returns the hash of the
// response node. Each request message becomes a node chained to the previous
// one, and the response hangs off the last. A history stored before maps onto
// the same nodes, so only what is new is written; a different reply to the
// same history becomes a branch.
func RecordTurn(ctx context.Context, s Storer, turn *llm.ConversationTurn) (string, error) {
	if turn == nil || turn.Request == nil || turn.Response == nil {
		return "", errors.New("record turn: request and response are required")
	}

	var parent *Node
	for _, msg := range turn.Request.Messages {
		node := NewNode(NewBucket(msg, turn.Request.Model), parent)
		if _, err := s.Put(ctx, node); err != nil {
			return "", fmt.Errorf("storing message node: %w", err)
		}
		parent = node
	}

	resp := turn.Response
	bucket := NewBucket(resp.Message, resp.Model)
	bucket.DoneReason = resp.DoneReason
	if resp.Metrics != (llm.Metrics{}) {
		metrics := resp.Metrics
		bucket.Metrics = &metrics
	}

	node := NewNode(bucket, parent)
	if _, err := s.Put(ctx, node); err != nil {
		return "", fmt.Errorf("storing response node: %w", err)
	}
	return node.Hash, nil
}

// Conversation returns the messages leading up to and including the node
// hash, oldest first.
func Conversation(ctx context.Context, s Storer, hash string) ([]llm.Message, error) {
	path, err := s.Descendants(ctx, hash)
	if err != nil {
		return nil, err
	}
	messages := make([]llm.Message, len(path))
	for i, node := range path {
		messages[i] = node.Content.Message()
	}
	return messages, nil
}
