package llm

import (
	"encoding/json"
	"fmt"
)

// ChatRequest represents a chat completion request (Ollama-compatible).
type ChatRequest struct {
	Model    string          `json:"model"`            // Model name (e.g., "llama3.2", "mistral")
	Messages []Message       `json:"messages"`         // Conversation history
	Tools    []Tool          `json:"tools,omitempty"`  // Functions the model may call
	Format   json.RawMessage `json:"format,omitempty"` // "json" or a JSON Schema object
	Stream   *bool           `json:"stream,omitempty"` // Whether to stream responses (default: true in Ollama)
	Think    *Think          `json:"think,omitempty"`  // Thinking mode for reasoning models

	// Generation options
	Options *Options `json:"options,omitempty"`

	// Keep model loaded
	KeepAlive string `json:"keep_alive,omitempty"` // How long to keep model in memory
}

// NewChatRequest returns a chat request for model with the given history.
func NewChatRequest(model string, messages ...Message) *ChatRequest {
	return &ChatRequest{Model: model, Messages: messages}
}

// Streaming reports whether the request asks for a streamed response. Ollama
// streams unless told otherwise.
func (r *ChatRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// GenerateRequest represents a completion request for the /api/generate endpoint.
type GenerateRequest struct {
	Model    string          `json:"model"`
	Prompt   string          `json:"prompt,omitempty"`
	Suffix   string          `json:"suffix,omitempty"`   // Text after the insertion point (fill-in-the-middle)
	System   string          `json:"system,omitempty"`   // Overrides the model's system prompt
	Template string          `json:"template,omitempty"` // Overrides the model's prompt template
	Images   []string        `json:"images,omitempty"`   // Optional base64-encoded images
	Context  []int           `json:"context,omitempty"`  // Token context from a previous response
	Format   json.RawMessage `json:"format,omitempty"`
	Stream   *bool           `json:"stream,omitempty"`
	Raw      *bool           `json:"raw,omitempty"` // Skip prompt templating
	Think    *Think          `json:"think,omitempty"`

	Options *Options `json:"options,omitempty"`

	KeepAlive string `json:"keep_alive,omitempty"`
}

// NewGenerateRequest returns a generate request for model and prompt.
func NewGenerateRequest(model, prompt string) *GenerateRequest {
	return &GenerateRequest{Model: model, Prompt: prompt}
}

// Streaming reports whether the request asks for a streamed response.
func (r *GenerateRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// JSONFormat asks the model to answer with a JSON value.
var JSONFormat = json.RawMessage(`"json"`)

// ThinkLevel is the effort requested from models that accept graded thinking.
type ThinkLevel string

const (
	ThinkLow    ThinkLevel = "low"
	ThinkMedium ThinkLevel = "medium"
	ThinkHigh   ThinkLevel = "high"
)

// Think is the "think" request field. The API accepts either a boolean or one
// of the ThinkLevel strings; a non-empty Level wins over Enabled.
type Think struct {
	Enabled bool
	Level   ThinkLevel
}

// ThinkOn enables thinking.
func ThinkOn() *Think { return &Think{Enabled: true} }

// ThinkOff disables thinking.
func ThinkOff() *Think { return &Think{} }

// ThinkAt enables thinking at the given level.
func ThinkAt(level ThinkLevel) *Think { return &Think{Enabled: true, Level: level} }

func (t Think) MarshalJSON() ([]byte, error) {
	if t.Level != "" {
		return json.Marshal(string(t.Level))
	}
	return json.Marshal(t.Enabled)
}

func (t *Think) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*t = Think{Enabled: b}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("think must be a boolean or a level string: %w", err)
	}
	switch level := ThinkLevel(s); level {
	case ThinkLow, ThinkMedium, ThinkHigh:
		*t = Think{Enabled: true, Level: level}
		return nil
	default:
		return fmt.Errorf("unknown think level %q", s)
	}
}
