package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/officialmortgage/livbridge/plugin/ai"
	"github.com/officialmortgage/livbridge/plugin/ai/timeout"
)

// Recorder receives tool execution metrics.
type Recorder interface {
	RecordToolCall(toolName string, latency time.Duration, success bool)
}

// ResilientToolExecutor provides timeout, retry and fallback for tool execution.
type ResilientToolExecutor struct {
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	recorder   Recorder
	fallbacks  *FallbackRegistry
}

// ExecutorOption configures a ResilientToolExecutor.
type ExecutorOption func(*ResilientToolExecutor)

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) ExecutorOption {
	return func(e *ResilientToolExecutor) {
		e.maxRetries = n
	}
}

// WithRetryDelay sets the delay between retry attempts.
func WithRetryDelay(d time.Duration) ExecutorOption {
	return func(e *ResilientToolExecutor) {
		e.retryDelay = d
	}
}

// WithExecutionTimeout sets the timeout for each execution attempt.
func WithExecutionTimeout(d time.Duration) ExecutorOption {
	return func(e *ResilientToolExecutor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithFallbacks sets fallback overrides.
func WithFallbacks(r *FallbackRegistry) ExecutorOption {
	return func(e *ResilientToolExecutor) {
		e.fallbacks = r
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ExecutorOption {
	return func(e *ResilientToolExecutor) {
		e.recorder = r
	}
}

// NewResilientToolExecutor creates a new ResilientToolExecutor with the given options.
func NewResilientToolExecutor(opts ...ExecutorOption) *ResilientToolExecutor {
	e := &ResilientToolExecutor{
		maxRetries: 1,
		retryDelay: 200 * time.Millisecond,
		timeout:    timeout.ToolExecutionTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

type timeoutProvider interface {
	Timeout() time.Duration
}

// Execute runs the tool, retrying transient failures within the tool's time budget.
// When every attempt fails it returns the fallback acknowledgement together with a
// *ToolExecutionError; the result is never nil.
func (e *ResilientToolExecutor) Execute(ctx context.Context, tool Tool, env Env, args json.RawMessage) (*Result, error) {
	start := time.Now()
	toolName := tool.Name()

	budget := e.timeout
	if p, ok := tool.(timeoutProvider); ok && p.Timeout() > 0 {
		budget = p.Timeout()
	}
	execCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var lastErr error
attemptsLoop:
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if execCtx.Err() != nil {
			lastErr = execCtx.Err()
			break attemptsLoop
		}

		result, err := runSafely(execCtx, tool, env, args)
		if err == nil && result != nil {
			e.record(toolName, time.Since(start), true)
			slog.Debug("tool execution succeeded",
				slog.String("tool", toolName),
				slog.String("session_id", env.SessionID),
				slog.Int("attempt", attempt+1),
				slog.Duration("duration", time.Since(start)))
			return result, nil
		}
		if err == nil {
			err = errEmptyResult
		}

		lastErr = err
		slog.Warn("tool execution failed",
			slog.String("tool", toolName),
			slog.String("session_id", env.SessionID),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))

		if !ai.ShouldRetry(err) {
			break attemptsLoop
		}

		if attempt < e.maxRetries {
			select {
			case <-execCtx.Done():
				lastErr = execCtx.Err()
				break attemptsLoop
			case <-time.After(e.retryDelay):
			}
		}
	}

	e.record(toolName, time.Since(start), false)

	fallback := e.fallbacks.Resolve(tool)
	result := fallback(ctx, tool, args, lastErr)
	if result == nil {
		result = GenericFallback(ctx, tool, args, lastErr)
	}
	return result, &ToolExecutionError{Tool: toolName, Err: lastErr}
}

func runSafely(ctx context.Context, tool Tool, env Env, args json.RawMessage) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("tool %s panicked: %v", tool.Name(), r)
		}
	}()
	return tool.Run(ctx, env, args)
}

func (e *ResilientToolExecutor) record(toolName string, latency time.Duration, success bool) {
	if e.recorder != nil {
		e.recorder.RecordToolCall(toolName, latency, success)
	}
}
