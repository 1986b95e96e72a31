package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/officialmortgage/livbridge/plugin/ai"
	"github.com/officialmortgage/livbridge/plugin/ai/agent/tools"
	"github.com/officialmortgage/livbridge/plugin/ai/persona"
)

// KeywordResponder is a rule-based ChatService used when no LLM is configured.
// A caller message matching an intent asks for send_link once per intent link;
// anything else gets the default reply.
type KeywordResponder struct {
	cfg persona.Config
}

var _ ai.ChatService = (*KeywordResponder)(nil)

// NewKeywordResponder creates a responder over the brain configuration.
func NewKeywordResponder(cfg persona.Config) *KeywordResponder {
	return &KeywordResponder{cfg: cfg}
}

// ChatWithTools implements ai.ChatService.
func (k *KeywordResponder) ChatWithTools(ctx context.Context, messages []ai.Message, descriptors []ai.ToolDescriptor) (*ai.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	utterance := lastUserMessage(messages)
	intent := k.cfg.MatchIntent(utterance)
	if intent == nil {
		return &ai.ChatResponse{Content: k.cfg.DefaultReply, FinishReason: "stop"}, nil
	}

	// Resumption round: the send_link results are in.
	if len(messages) > 0 && messages[len(messages)-1].Role == ai.RoleTool {
		return &ai.ChatResponse{Content: k.resumeReply(intent, messages), FinishReason: "stop"}, nil
	}

	if len(intent.Links) > 0 && offers(descriptors, tools.ToolSendLink) {
		resp := &ai.ChatResponse{FinishReason: "tool_calls"}
		for _, key := range intent.Links {
			args, _ := json.Marshal(map[string]string{"link": key})
			resp.ToolCalls = append(resp.ToolCalls, ai.ToolCall{
				ID:       ai.NewToolCallID(),
				Type:     "function",
				Function: ai.FunctionCall{Name: tools.ToolSendLink, Arguments: string(args)},
			})
		}
		return resp, nil
	}

	// No way to send the links: put them in the reply itself.
	lines := []string{intent.Reply}
	for _, key := range intent.Links {
		if url := k.cfg.Links[key]; url != "" {
			lines = append(lines, url)
		}
	}
	return &ai.ChatResponse{Content: strings.TrimSpace(strings.Join(lines, "\n")), FinishReason: "stop"}, nil
}

func (k *KeywordResponder) resumeReply(intent *persona.Intent, messages []ai.Message) string {
	start := len(messages)
	for start > 0 && messages[start-1].Role == ai.RoleTool {
		start--
	}
	results := messages[start:]

	reply := intent.Reply
	if reply == "" {
		outputs := make([]string, 0, len(results))
		for _, m := range results {
			outputs = append(outputs, m.Content)
		}
		reply = strings.Join(outputs, " ")
	}

	// Links that did not go out are given in the reply instead.
	lines := []string{reply}
	for _, key := range undeliveredLinks(messages[:start], results) {
		if url := k.cfg.Links[key]; url != "" {
			lines = append(lines, url)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// undeliveredLinks returns the link keys of send_link calls whose result is not a
// delivery confirmation, in call order.
func undeliveredLinks(history []ai.Message, results []ai.Message) []string {
	failed := make(map[string]bool)
	for _, m := range results {
		if m.Name == tools.ToolSendLink && !tools.LinkDelivered(m.Content) {
			failed[m.ToolCallID] = true
		}
	}
	if len(failed) == 0 || len(history) == 0 {
		return nil
	}

	var keys []string
	seen := make(map[string]bool)
	for _, call := range history[len(history)-1].ToolCalls {
		if !failed[call.ID] {
			continue
		}
		var args tools.SendLinkArgs
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil || args.Link == "" || seen[args.Link] {
			continue
		}
		seen[args.Link] = true
		keys = append(keys, args.Link)
	}
	return keys
}

func lastUserMessage(messages []ai.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == ai.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func offers(descriptors []ai.ToolDescriptor, name string) bool {
	for _, d := range descriptors {
		if d.Name == name {
			return true
		}
	}
	return false
}
