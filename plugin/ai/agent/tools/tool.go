// Package tools declares the side-effecting operations the model may invoke during a call
// and executes them with argument validation, timeouts and degraded acknowledgements.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/officialmortgage/livbridge/plugin/ai/session"
)

// Env carries the call context a tool runs in.
type Env struct {
	SessionID string
	Channel   session.Channel
	// Caller is the remote party's number; Callee is ours.
	Caller string
	Callee string
}

// Result represents the output of a tool execution.
type Result struct {
	// Output is the short acknowledgement folded back into the conversation.
	Output  string `json:"output"`
	Success bool   `json:"success"`
	// EndCall asks for the call to be terminated after the reply.
	EndCall bool `json:"end_call,omitempty"`
}

// Tool is a callable side-effecting operation.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string
	// Description tells the model when to use the tool.
	Description() string
	// Schema is the JSON Schema of the arguments object.
	Schema() map[string]any
	// Run executes the tool with arguments already validated against Schema.
	Run(ctx context.Context, env Env, args json.RawMessage) (*Result, error)
}

// TypedTool decodes its validated arguments into T before running.
type TypedTool[T any] struct {
	name        string
	description string
	schema      map[string]any
	run         func(ctx context.Context, env Env, args T) (*Result, error)
	fallback    FallbackFunc
	timeout     time.Duration
}

// ToolOption configures a TypedTool.
type ToolOption func(*toolOptions)

type toolOptions struct {
	fallback FallbackFunc
	timeout  time.Duration
}

// WithFallback sets the acknowledgement used when the tool fails.
func WithFallback(text string) ToolOption {
	return func(o *toolOptions) {
		o.fallback = StaticFallback(text)
	}
}

// WithFallbackFunc sets a custom fallback handler.
func WithFallbackFunc(fn FallbackFunc) ToolOption {
	return func(o *toolOptions) {
		o.fallback = fn
	}
}

// WithTimeout overrides the executor timeout for this tool.
func WithTimeout(d time.Duration) ToolOption {
	return func(o *toolOptions) {
		o.timeout = d
	}
}

// NewTool creates a tool with a strongly-typed argument record.
func NewTool[T any](
	name string,
	description string,
	schema map[string]any,
	run func(ctx context.Context, env Env, args T) (*Result, error),
	opts ...ToolOption,
) *TypedTool[T] {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &TypedTool[T]{
		name:        name,
		description: description,
		schema:      schema,
		run:         run,
		fallback:    o.fallback,
		timeout:     o.timeout,
	}
}

func (t *TypedTool[T]) Name() string           { return t.name }
func (t *TypedTool[T]) Description() string    { return t.description }
func (t *TypedTool[T]) Schema() map[string]any { return t.schema }

// Fallback returns the tool's own fallback handler, if any.
func (t *TypedTool[T]) Fallback() FallbackFunc { return t.fallback }

// Timeout returns the tool's own timeout, zero when unset.
func (t *TypedTool[T]) Timeout() time.Duration { return t.timeout }

func (t *TypedTool[T]) Run(ctx context.Context, env Env, args json.RawMessage) (*Result, error) {
	var typed T
	if len(args) > 0 {
		if err := json.Unmarshal(args, &typed); err != nil {
			return nil, fmt.Errorf("decode %s arguments: %w", t.name, err)
		}
	}
	return t.run(ctx, env, typed)
}
