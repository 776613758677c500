// Package tools holds the functions a chat model may call and dispatches the
// model's tool calls to them.
package tools

import (
	"context"
	"encoding/json"

	"github.com/papercomputeco/ollama-go/pkg/llm"
)

// Tool is a function the model can invoke.
type Tool interface {
	// Spec returns the schema advertised to the model. Spec().Function.Name
	// must be unique within a Registry.
	Spec() llm.Tool

	// Call runs the tool with the arguments object the model produced. The
	// result is sent back to the model: strings as-is, anything else as JSON.
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// Func adapts a plain function to the Tool interface.
type Func struct {
	Definition llm.Tool
	Fn         func(ctx context.Context, args json.RawMessage) (any, error)
}

// NewFunc returns a Tool named name backed by fn. parameters is a JSON Schema
// object describing the arguments.
func NewFunc(name, description string, parameters json.RawMessage, fn func(ctx context.Context, args json.RawMessage) (any, error)) *Func {
	return &Func{
		Definition: llm.NewFunctionTool(name, description, parameters),
		Fn:         fn,
	}
}

// Spec implements Tool.
func (f *Func) Spec() llm.Tool {
	return f.Definition
}

// Call implements Tool.
func (f *Func) Call(ctx context.Context, args json.RawMessage) (any, error) {
	return f.Fn(ctx, args)
}
