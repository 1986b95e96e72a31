package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/officialmortgage/livbridge/plugin/ai"
	"github.com/officialmortgage/livbridge/plugin/ai/session"
)

// ToolResult is the outcome of one invocation, ready to become a tool-result turn.
type ToolResult struct {
	InvocationID string
	ToolName     string
	Output       string
	EndCall      bool

	// ArgumentErr is set when the arguments were rejected and the tool ran without them.
	ArgumentErr error
	// Err is set when the tool failed and Output is a degraded acknowledgement.
	Err error
}

type registeredTool struct {
	tool       Tool
	schema     *jsonschema.Schema
	descriptor ai.ToolDescriptor
}

// Registry holds the tools offered to the model. It is read-only once the server starts.
type Registry struct {
	tools    []*registeredTool
	byName   map[string]*registeredTool
	executor *ResilientToolExecutor
}

// NewRegistry creates an empty registry executing tools with executor.
func NewRegistry(executor *ResilientToolExecutor) *Registry {
	if executor == nil {
		executor = NewResilientToolExecutor()
	}
	return &Registry{
		byName:   make(map[string]*registeredTool),
		executor: executor,
	}
}

// Register compiles the tool's schema and adds it. Registration order is the order
// tools are offered to the model.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("tool %s already registered", name)
	}

	raw, err := json.Marshal(schemaOrEmpty(t.Schema()))
	if err != nil {
		return fmt.Errorf("tool %s schema: %w", name, err)
	}
	schema, err := compileSchema(name, raw)
	if err != nil {
		return fmt.Errorf("tool %s schema: %w", name, err)
	}

	rt := &registeredTool{
		tool:   t,
		schema: schema,
		descriptor: ai.ToolDescriptor{
			Name:        name,
			Description: t.Description(),
			Parameters:  string(raw),
		},
	}
	r.tools = append(r.tools, rt)
	r.byName[name] = rt
	return nil
}

// Descriptors returns the tool schemas offered to the model.
func (r *Registry) Descriptors() []ai.ToolDescriptor {
	out := make([]ai.ToolDescriptor, 0, len(r.tools))
	for _, rt := range r.tools {
		out = append(out, rt.descriptor)
	}
	return out
}

// Names returns the registered tool names in order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for _, rt := range r.tools {
		out = append(out, rt.tool.Name())
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Execute validates and runs one invocation. It never fails: argument problems run the
// tool with an empty argument set, execution problems yield a degraded acknowledgement.
func (r *Registry) Execute(ctx context.Context, env Env, req session.ToolInvocationRequest) ToolResult {
	res := ToolResult{
		InvocationID: req.InvocationID,
		ToolName:     req.ToolName,
	}

	rt, ok := r.byName[req.ToolName]
	if !ok {
		res.Err = &ToolExecutionError{Tool: req.ToolName, Err: ErrUnknownTool}
		res.Output = GenericAcknowledgement
		slog.Warn("model requested unknown tool",
			slog.String("tool", req.ToolName),
			slog.String("session_id", env.SessionID))
		return res
	}

	args, argErr := rt.validate(req.RawArguments)
	if argErr != nil {
		res.ArgumentErr = argErr
		slog.Warn("tool arguments rejected, running with empty arguments",
			slog.String("tool", req.ToolName),
			slog.String("session_id", env.SessionID),
			slog.String("error", argErr.Error()))
	}

	result, err := r.executor.Execute(ctx, rt.tool, env, args)
	res.Output = result.Output
	res.EndCall = result.EndCall
	if err != nil {
		res.Err = err
	}
	return res
}

func (rt *registeredTool) validate(raw string) (json.RawMessage, error) {
	empty := json.RawMessage(`{}`)
	name := rt.tool.Name()

	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return empty, &ToolArgumentError{Tool: name, Err: err}
	}
	if _, ok := v.(map[string]any); !ok {
		return empty, &ToolArgumentError{Tool: name, Err: fmt.Errorf("arguments must be a JSON object")}
	}
	if err := rt.schema.Validate(v); err != nil {
		return empty, &ToolArgumentError{Tool: name, Err: err}
	}
	return json.RawMessage(raw), nil
}

func schemaOrEmpty(schema map[string]any) map[string]any {
	if schema == nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return schema
}

func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	url := name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return c.Compile(url)
}
