package tools

import (
	"context"
	"encoding/json"
	"sync"
)

// GenericAcknowledgement is spoken when a tool fails and has no fallback of its own.
const GenericAcknowledgement = "I wasn't able to do that just now, but I've made a note of it."

// FallbackFunc defines the signature for fallback handlers.
// It receives the context, the failed tool, the arguments it ran with, and the error.
// It returns a graceful degradation result.
type FallbackFunc func(ctx context.Context, tool Tool, args json.RawMessage, err error) *Result

// StaticFallback returns a fallback that always acknowledges with text.
func StaticFallback(text string) FallbackFunc {
	return func(context.Context, Tool, json.RawMessage, error) *Result {
		return &Result{Output: text, Success: false}
	}
}

// GenericFallback acknowledges any failure with GenericAcknowledgement.
func GenericFallback(context.Context, Tool, json.RawMessage, error) *Result {
	return &Result{Output: GenericAcknowledgement, Success: false}
}

// fallbackProvider is implemented by tools that carry their own fallback.
type fallbackProvider interface {
	Fallback() FallbackFunc
}

// FallbackRegistry allows dynamic registration of fallback handlers.
type FallbackRegistry struct {
	mu       sync.RWMutex
	handlers map[string]FallbackFunc
}

// NewFallbackRegistry creates an empty FallbackRegistry.
func NewFallbackRegistry() *FallbackRegistry {
	return &FallbackRegistry{
		handlers: make(map[string]FallbackFunc),
	}
}

// Register sets the fallback handler for a tool name, overriding the tool's own.
func (r *FallbackRegistry) Register(toolName string, fn FallbackFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[toolName] = fn
}

// Resolve returns the fallback for tool: a registered handler, then the tool's own,
// then GenericFallback.
func (r *FallbackRegistry) Resolve(tool Tool) FallbackFunc {
	if r != nil {
		r.mu.RLock()
		fn, ok := r.handlers[tool.Name()]
		r.mu.RUnlock()
		if ok {
			return fn
		}
	}
	if p, ok := tool.(fallbackProvider); ok {
		if fn := p.Fallback(); fn != nil {
			return fn
		}
	}
	return GenericFallback
}
