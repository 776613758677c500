package merkle

import "github.com/papercomputeco/ollama-go/pkg/llm"

// Bucket is the content of a node: one chat message plus the model that
// produced or received it. Response nodes also carry the generation metrics.
type Bucket struct {
	Type       string         `json:"type"` // always "message"
	Role       llm.Role       `json:"role"`
	Content    string         `json:"content"`
	Thinking   string         `json:"thinking,omitempty"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Model      string         `json:"model,omitempty"`
	DoneReason string         `json:"done_reason,omitempty"`
	Metrics    *llm.Metrics   `json:"metrics,omitempty"`
}

// NewBucket records msg as sent to or received from model.
func NewBucket(msg llm.Message, model string) Bucket {
	return Bucket{
		Type:      "message",
		Role:      msg.Role,
		Content:   msg.Content,
		Thinking:  msg.Thinking,
		ToolCalls: msg.ToolCalls,
		ToolName:  msg.ToolName,
		Model:     model,
	}
}

// Message rebuilds the chat message, e.g. to resume a stored conversation.
func (b Bucket) Message() llm.Message {
	return llm.Message{
		Role:      b.Role,
		Content:   b.Content,
		Thinking:  b.Thinking,
		ToolCalls: b.ToolCalls,
		ToolName:  b.ToolName,
	}
}
