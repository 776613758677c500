package chatcmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/papercomputeco/ollama-go/pkg/tools"
)

// builtinTools are offered to the model with --tools.
func builtinTools(now func() time.Time) []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("current_time", "Returns the current local date and time in RFC 3339 format.",
			json.RawMessage(`{"type":"object","properties":{}}`),
			func(context.Context, json.RawMessage) (any, error) {
				return now().Format(time.RFC3339), nil
			},
		),
		tools.NewFunc("add", "Adds two numbers.",
			json.RawMessage(`{"type":"object","properties":{"a":{"type":"number"},"b":{"type":"number"}},"required":["a","b"]}`),
			func(_ context.Context, args json.RawMessage) (any, error) {
				var in struct {
					A *float64 `json:"a"`
					B *float64 `json:"b"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
				if in.A == nil || in.B == nil {
					return nil, errors.New("both a and b are required")
				}
				return map[string]float64{"sum": *in.A + *in.B}, nil
			},
		),
	}
}
