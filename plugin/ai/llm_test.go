package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const toolCallResponse = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "",
      "tool_calls": [
        {"id": "call_abc", "type": "function", "function": {"name": "send_link", "arguments": "{\"link\":\"marketplace\"}"}},
        {"id": "", "type": "function", "function": {"name": "log_lead", "arguments": "{}"}}
      ]
    }
  }]
}`

const textResponse = `{
  "id": "chatcmpl-2",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Sure, happy to help."}}]
}`

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role       string `json:"role"`
		Content    string `json:"content"`
		ToolCallID string `json:"tool_call_id"`
		ToolCalls  []struct {
			ID string `json:"id"`
		} `json:"tool_calls"`
	} `json:"messages"`
	Tools []struct {
		Type     string `json:"type"`
		Function struct {
			Name       string          `json:"name"`
			Parameters json.RawMessage `json:"parameters"`
		} `json:"function"`
	} `json:"tools"`
}

func newTestChatService(t *testing.T, handler http.HandlerFunc) ChatService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewChatService(&LLMConfig{
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		APIKey:       "test-key",
		BaseURL:      server.URL + "/v1",
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return svc
}

// TestNewChatService tests service creation.
func TestNewChatService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *LLMConfig
		expectError bool
	}{
		{"DeepSeek config", &LLMConfig{Provider: "deepseek", Model: "deepseek-chat", APIKey: "k", BaseURL: "https://api.deepseek.com"}, false},
		{"OpenAI config", &LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "k"}, false},
		{"Ollama config", &LLMConfig{Provider: "ollama", Model: "llama3.1", BaseURL: "http://localhost:11434/v1"}, false},
		{"Unsupported provider", &LLMConfig{Provider: "unsupported"}, true},
		{"Nil config", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChatService(tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChatWithTools_ToolCalls(t *testing.T) {
	var captured capturedRequest
	svc := newTestChatService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolCallResponse)
	})

	messages := []Message{
		{Role: RoleSystem, Content: "You are Liv."},
		{Role: RoleUser, Content: "text me the link"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_old", Type: "function", Function: FunctionCall{Name: "log_lead", Arguments: "{}"}}}},
		{Role: RoleTool, ToolCallID: "call_old", Name: "log_lead", Content: "Saved."},
	}
	tools := []ToolDescriptor{{Name: "send_link", Description: "Text a link", Parameters: `{"type":"object"}`}}

	resp, err := svc.ChatWithTools(context.Background(), messages, tools)
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "call_abc", resp.ToolCalls[0].ID)
	assert.Equal(t, "send_link", resp.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"link":"marketplace"}`, resp.ToolCalls[0].Function.Arguments)
	assert.NotEmpty(t, resp.ToolCalls[1].ID, "missing call ids are synthesized")
	assert.Equal(t, "tool_calls", resp.FinishReason)

	assert.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "function", captured.Tools[0].Type)
	assert.Equal(t, "send_link", captured.Tools[0].Function.Name)
	require.Len(t, captured.Messages, 4)
	assert.Equal(t, "call_old", captured.Messages[2].ToolCalls[0].ID)
	assert.Equal(t, "tool", captured.Messages[3].Role)
	assert.Equal(t, "call_old", captured.Messages[3].ToolCallID)
}

func TestChatWithTools_NoToolsMode(t *testing.T) {
	var captured capturedRequest
	svc := newTestChatService(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, textResponse)
	})

	resp, err := svc.ChatWithTools(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Sure, happy to help.", resp.Content)
	assert.Empty(t, resp.ToolCalls)
	assert.Empty(t, captured.Tools)
}

func TestChatWithTools_Retry(t *testing.T) {
	t.Run("transient failure is retried", func(t *testing.T) {
		var calls atomic.Int32
		svc := newTestChatService(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
				return
			}
			_, _ = io.WriteString(w, textResponse)
		})

		resp, err := svc.ChatWithTools(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, "Sure, happy to help.", resp.Content)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("permanent failure is not retried", func(t *testing.T) {
		var calls atomic.Int32
		svc := newTestChatService(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
		})

		_, err := svc.ChatWithTools(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("no choices", func(t *testing.T) {
		svc := newTestChatService(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[]}`)
		})

		_, err := svc.ChatWithTools(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
		assert.ErrorIs(t, err, errEmptyResponse)
	})
}
