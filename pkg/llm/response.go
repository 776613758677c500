package llm

import "time"

// Metrics are the timing and token counters the server attaches to the final
// record of a response. Durations are sent as nanoseconds.
type Metrics struct {
	TotalDuration      time.Duration `json:"total_duration,omitempty"`       // Total time
	LoadDuration       time.Duration `json:"load_duration,omitempty"`        // Model load time
	PromptEvalCount    int           `json:"prompt_eval_count,omitempty"`    // Tokens in prompt
	PromptEvalDuration time.Duration `json:"prompt_eval_duration,omitempty"` // Prompt processing time
	EvalCount          int           `json:"eval_count,omitempty"`           // Generated tokens
	EvalDuration       time.Duration `json:"eval_duration,omitempty"`        // Generation time
}

// TokensPerSecond is the generation throughput, or 0 when unknown.
func (m Metrics) TokensPerSecond() float64 {
	if m.EvalDuration <= 0 {
		return 0
	}
	return float64(m.EvalCount) / m.EvalDuration.Seconds()
}

// ChatResponse represents a chat completion response (Ollama-compatible).
// In streaming mode every NDJSON record has this shape.
type ChatResponse struct {
	Model      string    `json:"model"`                 // Model that generated the response
	CreatedAt  time.Time `json:"created_at"`            // Response timestamp
	Message    Message   `json:"message"`               // The assistant's response
	Done       bool      `json:"done"`                  // Whether generation is complete
	DoneReason string    `json:"done_reason,omitempty"` // "stop", "length", "load", ...

	// Metrics (only present when done=true)
	Metrics
}

// GenerateResponse represents a response from /api/generate. In streaming mode
// every NDJSON record has this shape.
type GenerateResponse struct {
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
	Response   string    `json:"response"`
	Thinking   string    `json:"thinking,omitempty"`
	Done       bool      `json:"done"`
	DoneReason string    `json:"done_reason,omitempty"`

	// Context for continuation (Ollama-specific)
	Context []int `json:"context,omitempty"` // Token context for follow-up requests

	Metrics
}
