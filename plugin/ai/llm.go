package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sashabaranov/go-openai"
)

// Message roles understood by ChatService.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message.
type Message struct {
	Role       string // system, user, assistant, tool
	Content    string
	ToolCalls  []ToolCall // assistant messages that requested tools
	ToolCallID string     // tool messages: the call being answered
	Name       string     // tool messages: the tool name
}

// ToolDescriptor describes a tool offered to the model.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  string // JSON Schema document
}

// FunctionCall is the function part of a tool call.
type FunctionCall struct {
	Name      string
	Arguments string
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID       string
	Type     string
	Function FunctionCall
}

// ChatResponse is the result of one chat round.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// ChatService is the chat-completion collaborator.
type ChatService interface {
	// ChatWithTools performs one round. A nil or empty tools slice means the model
	// must answer in plain text.
	ChatWithTools(ctx context.Context, messages []Message, tools []ToolDescriptor) (*ChatResponse, error)
}

var errEmptyResponse = errors.New("empty response")

// NewToolCallID returns an id for a tool call the model sent without one.
func NewToolCallID() string {
	return "call_" + ulid.Make().String()
}

type chatService struct {
	client *openai.Client
	config LLMConfig
}

// NewChatService creates a ChatService talking to an OpenAI-compatible endpoint.
func NewChatService(cfg *LLMConfig) (ChatService, error) {
	if cfg == nil {
		return nil, errors.New("llm config is required")
	}

	switch cfg.Provider {
	case "deepseek", "openai", "ollama":
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	c := *cfg
	if c.MaxRetries <= 0 {
		c.MaxRetries = 1
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}

	apiKey := c.APIKey
	if c.Provider == "ollama" && apiKey == "" {
		apiKey = "ollama"
	}
	clientConfig := openai.DefaultConfig(apiKey)
	if c.BaseURL != "" {
		clientConfig.BaseURL = c.BaseURL
	}

	return &chatService{
		client: openai.NewClientWithConfig(clientConfig),
		config: c,
	}, nil
}

func (s *chatService) ChatWithTools(ctx context.Context, messages []Message, tools []ToolDescriptor) (*ChatResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    convertMessages(messages),
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
	}
	if len(tools) > 0 {
		req.Tools = convertTools(tools)
	}

	var result *ChatResponse
	err := s.doWithRetry(ctx, func() error {
		resp, err := s.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errEmptyResponse
		}
		result = convertResponse(resp.Choices[0])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// doWithRetry executes a function with exponential backoff retry.
// Only transient failures are retried; the caller's context bounds the whole sequence.
func (s *chatService) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < s.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == s.config.MaxRetries-1 || !ShouldRetry(err) {
			break
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * s.config.RetryBackoff
		slog.Debug("chat request failed, retrying",
			"attempt", attempt+1,
			"wait_time", waitTime,
			"error", err)
		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
		switch m.Role {
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
		case RoleTool:
			msg.ToolCallID = m.ToolCallID
			msg.Name = m.Name
		}
		out = append(out, msg)
	}
	return out
}

func convertTools(tools []ToolDescriptor) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params := json.RawMessage(t.Parameters)
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func convertResponse(choice openai.ChatCompletionChoice) *ChatResponse {
	resp := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = NewToolCallID()
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:   id,
			Type: string(tc.Type),
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return resp
}
