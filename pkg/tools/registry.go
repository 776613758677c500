package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/ollama-go/pkg/llm"
)

var (
	// ErrDuplicate is returned when registering a name that is already taken.
	ErrDuplicate = errors.New("tool already registered")

	// ErrNotFound is returned for a tool name that is not registered.
	ErrNotFound = errors.New("tool not found")
)

// Registry is a set of tools keyed by name. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *zap.Logger
}

// NewRegistry returns an empty Registry. A nil logger disables logging.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds t. Registering a name twice fails with ErrDuplicate and leaves
// the first tool in place.
func (r *Registry) Register(t Tool) error {
	name := t.Spec().Function.Name
	if name == "" {
		return errors.New("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	r.tools[name] = t
	r.logger.Debug("registered tool", zap.String("name", name))
	return nil
}

// Unregister removes the tool called name, failing with ErrNotFound if there
// is none.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(r.tools, name)
	r.logger.Debug("unregistered tool", zap.String("name", name))
	return nil
}

// Get returns the tool called name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Specs returns the schemas of every registered tool, sorted by name, ready to
// be sent as ChatRequest.Tools.
func (r *Registry) Specs() []llm.Tool {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			specs = append(specs, t.Spec())
		}
	}
	return specs
}

// Dispatch runs the tool a model asked for and returns the "tool" message
// carrying its result. When the tool is unknown or fails, the message carries
// the error text, so it can still be sent back to the model, and the error is
// returned as well.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall) (llm.Message, error) {
	name := call.Function.Name

	t, ok := r.Get(name)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrNotFound, name)
		return llm.NewToolResult(name, "error: "+err.Error()), err
	}

	args := call.Function.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	r.logger.Debug("calling tool",
		zap.String("name", name),
		zap.String("arguments", string(args)),
	)

	result, err := t.Call(ctx, args)
	if err != nil {
		r.logger.Warn("tool failed", zap.String("name", name), zap.Error(err))
		return llm.NewToolResult(name, "error: "+err.Error()), fmt.Errorf("call tool %q: %w", name, err)
	}

	content, err := resultText(result)
	if err != nil {
		return llm.NewToolResult(name, "error: "+err.Error()), fmt.Errorf("encode result of tool %q: %w", name, err)
	}
	return llm.NewToolResult(name, content), nil
}

func resultText(result any) (string, error) {
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
