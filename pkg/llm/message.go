package llm

import "encoding/json"

// Role identifies who produced a message in a chat exchange.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the roles the chat API accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message represents a single message in a conversation.
type Message struct {
	Role      Role       `json:"role"`                 // "system", "user", "assistant", "tool"
	Content   string     `json:"content"`              // The message content
	Thinking  string     `json:"thinking,omitempty"`   // Reasoning trace from thinking models
	Images    []string   `json:"images,omitempty"`     // Optional base64-encoded images (for multimodal)
	ToolCalls []ToolCall `json:"tool_calls,omitempty"` // Tool invocations requested by the assistant
	ToolName  string     `json:"tool_name,omitempty"`  // Name of the tool a "tool" message answers
}

// NewMessage returns a plain text message for the given role.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// NewToolResult returns the "tool" message that feeds a tool's output back
// into the conversation.
func NewToolResult(toolName, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolName: toolName}
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID       string           `json:"id,omitempty"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction names the function to call and carries its arguments as
// the raw JSON object the model produced.
type ToolCallFunction struct {
	Index     *int            `json:"index,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
