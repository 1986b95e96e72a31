// Package agent runs conversation turns: it sends the session to the model,
// executes the tools the model asks for and produces a channel-neutral outcome.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/officialmortgage/livbridge/plugin/ai"
	"github.com/officialmortgage/livbridge/plugin/ai/agent/tools"
	"github.com/officialmortgage/livbridge/plugin/ai/session"
	"github.com/officialmortgage/livbridge/plugin/ai/timeout"
)

// State is the position of a turn in its lifecycle.
type State int

const (
	StateAwaitingInput State = iota
	StateModelRound
	StateExecutingTools
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateModelRound:
		return "model_round"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Observer receives turn metrics.
type Observer interface {
	RecordTurn(channel string, kind OutcomeKind, duration time.Duration, rounds int)
	RecordChatFailure(err error)
}

// Orchestrator drives turns against a chat service and a tool registry.
// It holds no per-conversation state; all of it lives in the session.
type Orchestrator struct {
	chat        ai.ChatService
	tools       *tools.Registry
	chatTimeout time.Duration
	observer    Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithChatTimeout bounds each model round.
func WithChatTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.chatTimeout = d
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// NewOrchestrator creates an orchestrator. A nil registry offers no tools.
func NewOrchestrator(chat ai.ChatService, registry *tools.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		chat:        chat,
		tools:       registry,
		chatTimeout: timeout.ChatTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Greet appends a fixed assistant line without consulting the model.
// The caller must hold the session lock.
func (o *Orchestrator) Greet(sess *session.Session, text string) Outcome {
	sess.Append(session.Turn{Role: session.RoleAssistant, Content: text})
	return Outcome{Kind: OutcomeContinue, Text: text}
}

// RunTurn processes one caller utterance. The caller must hold the session lock.
//
// The first model round is offered every registered tool. When it asks for tools
// they run in request order and the model gets one more round without tools to
// phrase the reply. Whatever happens, the session is left with every tool request
// answered by a result.
func (o *Orchestrator) RunTurn(ctx context.Context, sess *session.Session, env tools.Env, utterance string) Outcome {
	start := time.Now()
	state := StateAwaitingInput
	rounds := 0

	logger := slog.With(
		slog.String("session_id", sess.ID()),
		slog.String("channel", string(sess.Channel())))

	finish := func(out Outcome) Outcome {
		state = StateDone
		if o.observer != nil {
			o.observer.RecordTurn(string(sess.Channel()), out.Kind, time.Since(start), rounds)
		}
		logger.Info("turn finished",
			slog.String("outcome", string(out.Kind)),
			slog.String("state", state.String()),
			slog.Int("rounds", rounds),
			slog.Int("tool_calls", len(out.ToolResults)),
			slog.Duration("duration", time.Since(start)))
		return out
	}

	text := strings.TrimSpace(utterance)
	if text == "" {
		return finish(Outcome{Kind: OutcomeReprompt, Text: RepromptText, Err: ErrInputEmpty})
	}
	sess.Append(session.Turn{Role: session.RoleUser, Content: text})

	var descriptors []ai.ToolDescriptor
	if o.tools != nil {
		descriptors = o.tools.Descriptors()
	}

	state = StateModelRound
	resp, err := o.chatRound(ctx, sess, descriptors, rounds)
	rounds++
	if err != nil {
		return finish(o.failure(logger, err, nil))
	}

	var summaries []ToolResultSummary
	endCall := false
	for len(resp.ToolCalls) > 0 {
		if rounds > timeout.MaxResumptionRounds {
			logger.Warn("ignoring tool requests from resumption round",
				slog.Int("count", len(resp.ToolCalls)))
			break
		}

		state = StateExecutingTools
		requests := toRequests(resp.ToolCalls)
		sess.Append(session.Turn{
			Role:        session.RoleAssistant,
			Content:     resp.Content,
			Invocations: requests,
		})
		for _, req := range requests {
			res := o.execute(ctx, sess, env, req)
			sess.Append(session.Turn{
				Role:         session.RoleToolResult,
				Content:      res.Output,
				InvocationID: res.InvocationID,
				ToolName:     res.ToolName,
			})
			endCall = endCall || res.EndCall
			summaries = append(summaries, ToolResultSummary{
				InvocationID: res.InvocationID,
				ToolName:     res.ToolName,
				Failed:       res.Err != nil,
			})
		}

		state = StateModelRound
		resp, err = o.chatRound(ctx, sess, nil, rounds)
		rounds++
		if err != nil {
			return finish(o.failure(logger, err, summaries))
		}
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		reply = FallbackReply
	}
	sess.Append(session.Turn{Role: session.RoleAssistant, Content: reply})

	kind := OutcomeContinue
	if endCall {
		kind = OutcomeEnd
	}
	return finish(Outcome{Kind: kind, Text: reply, ToolResults: summaries})
}

func (o *Orchestrator) chatRound(ctx context.Context, sess *session.Session, descriptors []ai.ToolDescriptor, round int) (*ai.ChatResponse, error) {
	roundCtx, cancel := context.WithTimeout(ctx, o.chatTimeout)
	defer cancel()

	resp, err := o.chat.ChatWithTools(roundCtx, toMessages(sess.Turns()), descriptors)
	if err == nil && resp == nil {
		err = errNilResponse
	}
	if err != nil {
		return nil, &ChatCompletionError{Round: round, Err: err}
	}
	return resp, nil
}

func (o *Orchestrator) execute(ctx context.Context, sess *session.Session, env tools.Env, req session.ToolInvocationRequest) tools.ToolResult {
	if env.SessionID == "" {
		env.SessionID = sess.ID()
	}
	if env.Channel == "" {
		env.Channel = sess.Channel()
	}
	if o.tools == nil {
		return tools.NewRegistry(nil).Execute(ctx, env, req)
	}
	return o.tools.Execute(ctx, env, req)
}

func (o *Orchestrator) failure(logger *slog.Logger, err error, summaries []ToolResultSummary) Outcome {
	if o.observer != nil {
		o.observer.RecordChatFailure(err)
	}
	logger.Error("chat round failed", slog.String("error", err.Error()))
	return Outcome{Kind: OutcomeError, Text: ApologyText, Err: err, ToolResults: summaries}
}

func toRequests(calls []ai.ToolCall) []session.ToolInvocationRequest {
	out := make([]session.ToolInvocationRequest, 0, len(calls))
	for _, c := range calls {
		id := c.ID
		if id == "" {
			id = ai.NewToolCallID()
		}
		out = append(out, session.ToolInvocationRequest{
			InvocationID: id,
			ToolName:     c.Function.Name,
			RawArguments: c.Function.Arguments,
		})
	}
	return out
}

// toMessages converts the turn sequence into the chat wire format.
func toMessages(turns []session.Turn) []ai.Message {
	out := make([]ai.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case session.RoleSystem:
			out = append(out, ai.Message{Role: ai.RoleSystem, Content: t.Content})
		case session.RoleUser:
			out = append(out, ai.Message{Role: ai.RoleUser, Content: t.Content})
		case session.RoleAssistant:
			msg := ai.Message{Role: ai.RoleAssistant, Content: t.Content}
			for _, inv := range t.Invocations {
				msg.ToolCalls = append(msg.ToolCalls, ai.ToolCall{
					ID:       inv.InvocationID,
					Type:     "function",
					Function: ai.FunctionCall{Name: inv.ToolName, Arguments: inv.RawArguments},
				})
			}
			out = append(out, msg)
		case session.RoleToolResult:
			out = append(out, ai.Message{
				Role:       ai.RoleTool,
				Content:    t.Content,
				ToolCallID: t.InvocationID,
				Name:       t.ToolName,
			})
		}
	}
	return out
}
