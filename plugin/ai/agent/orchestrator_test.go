package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/officialmortgage/livbridge/plugin/ai"
	"github.com/officialmortgage/livbridge/plugin/ai/agent/tools"
	"github.com/officialmortgage/livbridge/plugin/ai/session"
)

// MockChat is a mock implementation of ai.ChatService.
type MockChat struct {
	mock.Mock
}

func (m *MockChat) ChatWithTools(ctx context.Context, messages []ai.Message, descriptors []ai.ToolDescriptor) (*ai.ChatResponse, error) {
	args := m.Called(ctx, messages, descriptors)
	resp, _ := args.Get(0).(*ai.ChatResponse)
	return resp, args.Error(1)
}

type chatFunc func(ctx context.Context, messages []ai.Message, descriptors []ai.ToolDescriptor) (*ai.ChatResponse, error)

func (f chatFunc) ChatWithTools(ctx context.Context, messages []ai.Message, descriptors []ai.ToolDescriptor) (*ai.ChatResponse, error) {
	return f(ctx, messages, descriptors)
}

var (
	withTools    = mock.MatchedBy(func(d []ai.ToolDescriptor) bool { return len(d) > 0 })
	withoutTools = mock.MatchedBy(func(d []ai.ToolDescriptor) bool { return len(d) == 0 })
)

func newSession(t *testing.T, id string, ch session.Channel) *session.Session {
	t.Helper()
	store := session.NewStore(func(session.Channel) string { return "You are Liv." })
	sess, created := store.GetOrCreate(id, ch)
	require.True(t, created)
	return sess
}

func toolCall(id, name, args string) ai.ToolCall {
	return ai.ToolCall{ID: id, Type: "function", Function: ai.FunctionCall{Name: name, Arguments: args}}
}

type noteArgs struct {
	Text string `json:"text"`
}

func newTestRegistry(t *testing.T, extra ...tools.Tool) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry(tools.NewResilientToolExecutor(tools.WithRetryDelay(time.Millisecond)))
	note := tools.NewTool("note", "Take a note.", map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
	}, func(_ context.Context, _ tools.Env, args noteArgs) (*tools.Result, error) {
		return &tools.Result{Output: "noted " + args.Text, Success: true}, nil
	})
	require.NoError(t, r.Register(note))
	for _, tool := range extra {
		require.NoError(t, r.Register(tool))
	}
	return r
}

func roles(turns []session.Turn) []session.Role {
	out := make([]session.Role, len(turns))
	for i, t := range turns {
		out[i] = t.Role
	}
	return out
}

func TestRunTurn_CA123(t *testing.T) {
	chat := &MockChat{}
	o := NewOrchestrator(chat, newTestRegistry(t))
	sess := newSession(t, "CA123", session.ChannelVoice)
	sess.Lock()
	defer sess.Unlock()

	out := o.RunTurn(context.Background(), sess, tools.Env{}, "")
	assert.Equal(t, OutcomeReprompt, out.Kind)
	assert.Equal(t, "I didn't catch that. Could you repeat that?", out.Text)
	assert.ErrorIs(t, out.Err, ErrInputEmpty)
	assert.Equal(t, 1, sess.Len())
	chat.AssertNotCalled(t, "ChatWithTools", mock.Anything, mock.Anything, mock.Anything)

	chat.On("ChatWithTools", mock.Anything, mock.Anything, withTools).
		Return(&ai.ChatResponse{Content: "Great, let's start with your zip code."}, nil).Once()

	out = o.RunTurn(context.Background(), sess, tools.Env{}, "I want to refinance")
	assert.Equal(t, OutcomeContinue, out.Kind)
	assert.Equal(t, "Great, let's start with your zip code.", out.Text)

	turns := sess.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, session.Turn{Role: session.RoleUser, Content: "I want to refinance"}, turns[1])
	assert.Equal(t, session.Turn{Role: session.RoleAssistant, Content: "Great, let's start with your zip code."}, turns[2])
	chat.AssertExpectations(t)
}

func TestRunTurn_WhitespaceInput(t *testing.T) {
	chat := &MockChat{}
	o := NewOrchestrator(chat, nil)
	sess := newSession(t, "CA1", session.ChannelSMS)

	out := o.RunTurn(context.Background(), sess, tools.Env{}, " \n\t ")
	assert.Equal(t, OutcomeReprompt, out.Kind)
	assert.Equal(t, 1, sess.Len())
	chat.AssertNotCalled(t, "ChatWithTools", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunTurn_MultipleToolCalls(t *testing.T) {
	chat := &MockChat{}
	chat.On("ChatWithTools", mock.Anything, mock.Anything, withTools).
		Return(&ai.ChatResponse{
			Content: "One moment.",
			ToolCalls: []ai.ToolCall{
				toolCall("call_a", "note", `{"text":"zip 94110"}`),
				toolCall("call_b", "note", `{"text":"refinance"}`),
				toolCall("", "teleport", `{}`),
			},
		}, nil).Once()
	chat.On("ChatWithTools", mock.Anything, mock.MatchedBy(func(msgs []ai.Message) bool {
		n := len(msgs)
		return n == 6 && msgs[n-3].ToolCallID == "call_a" && msgs[n-2].ToolCallID == "call_b" && msgs[n-1].Role == ai.RoleTool
	}), withoutTools).
		Return(&ai.ChatResponse{Content: "All set."}, nil).Once()

	o := NewOrchestrator(chat, newTestRegistry(t))
	sess := newSession(t, "CA2", session.ChannelVoice)

	out := o.RunTurn(context.Background(), sess, tools.Env{Caller: "+15551230000"}, "save my zip")
	assert.Equal(t, OutcomeContinue, out.Kind)
	assert.Equal(t, "All set.", out.Text)
	require.Len(t, out.ToolResults, 3)
	assert.True(t, out.ToolResults[2].Failed)

	turns := sess.Turns()
	require.NoError(t, session.ValidateTurns(turns))
	assert.Equal(t, []session.Role{
		session.RoleSystem,
		session.RoleUser,
		session.RoleAssistant,
		session.RoleToolResult,
		session.RoleToolResult,
		session.RoleToolResult,
		session.RoleAssistant,
	}, roles(turns))

	assert.Equal(t, "One moment.", turns[2].Content)
	require.Len(t, turns[2].Invocations, 3)
	assert.Equal(t, "noted zip 94110", turns[3].Content)
	assert.Equal(t, "call_a", turns[3].InvocationID)
	assert.Equal(t, "noted refinance", turns[4].Content)
	assert.Equal(t, tools.GenericAcknowledgement, turns[5].Content)
	assert.NotEmpty(t, turns[5].InvocationID, "missing call ids are synthesized")
	assert.Equal(t, turns[2].Invocations[2].InvocationID, turns[5].InvocationID)
	chat.AssertExpectations(t)
}

func TestRunTurn_AtMostOneResumptionRound(t *testing.T) {
	chat := &MockChat{}
	chat.On("ChatWithTools", mock.Anything, mock.Anything, mock.Anything).
		Return(&ai.ChatResponse{ToolCalls: []ai.ToolCall{toolCall("", "note", `{"text":"again"}`)}}, nil)

	o := NewOrchestrator(chat, newTestRegistry(t))
	sess := newSession(t, "CA3", session.ChannelVoice)

	out := o.RunTurn(context.Background(), sess, tools.Env{}, "hello")
	assert.Equal(t, OutcomeContinue, out.Kind)
	assert.Equal(t, FallbackReply, out.Text)
	chat.AssertNumberOfCalls(t, "ChatWithTools", 2)
	assert.Len(t, out.ToolResults, 1)
	assert.NoError(t, session.ValidateTurns(sess.Turns()))
}

func TestRunTurn_EmptyReplyUsesFallback(t *testing.T) {
	chat := &MockChat{}
	chat.On("ChatWithTools", mock.Anything, mock.Anything, mock.Anything).
		Return(&ai.ChatResponse{Content: "   "}, nil)

	o := NewOrchestrator(chat, nil)
	sess := newSession(t, "CA4", session.ChannelVoice)

	out := o.RunTurn(context.Background(), sess, tools.Env{}, "hi")
	assert.Equal(t, "I'm here and ready to help. What would you like to do next?", out.Text)
	turns := sess.Turns()
	assert.Equal(t, FallbackReply, turns[len(turns)-1].Content)
}

func TestRunTurn_ToolFailureIsolation(t *testing.T) {
	broken := tools.NewTool("crm", "", nil, func(context.Context, tools.Env, struct{}) (*tools.Result, error) {
		return nil, errors.New("crm rejected record")
	}, tools.WithFallback("I had trouble saving that, but I've noted it."))

	chat := &MockChat{}
	chat.On("ChatWithTools", mock.Anything, mock.Anything, withTools).
		Return(&ai.ChatResponse{ToolCalls: []ai.ToolCall{toolCall("call_1", "crm", `{}`)}}, nil).Once()
	chat.On("ChatWithTools", mock.Anything, mock.Anything, withoutTools).
		Return(&ai.ChatResponse{Content: "I've noted that."}, nil).Once()
	chat.On("ChatWithTools", mock.Anything, mock.Anything, withTools).
		Return(&ai.ChatResponse{Content: "Sure, what else?"}, nil).Once()

	o := NewOrchestrator(chat, newTestRegistry(t, broken))
	sess := newSession(t, "CA5", session.ChannelVoice)

	out := o.RunTurn(context.Background(), sess, tools.Env{}, "save me")
	assert.Equal(t, OutcomeContinue, out.Kind)
	assert.NotEmpty(t, out.Text)
	require.Len(t, out.ToolResults, 1)
	assert.True(t, out.ToolResults[0].Failed)
	assert.Equal(t, "I had trouble saving that, but I've noted it.", sess.Turns()[3].Content)

	out = o.RunTurn(context.Background(), sess, tools.Env{}, "one more thing")
	assert.Equal(t, OutcomeContinue, out.Kind)
	assert.Equal(t, "Sure, what else?", out.Text)
	assert.NoError(t, session.ValidateTurns(sess.Turns()))
	chat.AssertExpectations(t)
}

func TestRunTurn_EndCall(t *testing.T) {
	hangup := tools.NewTool("wrap_up", "", nil, func(context.Context, tools.Env, struct{}) (*tools.Result, error) {
		return &tools.Result{Output: "Outcome recorded.", Success: true, EndCall: true}, nil
	})
	chat := &MockChat{}
	chat.On("ChatWithTools", mock.Anything, mock.Anything, withTools).
		Return(&ai.ChatResponse{ToolCalls: []ai.ToolCall{toolCall("call_1", "wrap_up", `{}`)}}, nil).Once()
	chat.On("ChatWithTools", mock.Anything, mock.Anything, withoutTools).
		Return(&ai.ChatResponse{Content: "Thanks for calling, goodbye."}, nil).Once()

	o := NewOrchestrator(chat, newTestRegistry(t, hangup))
	out := o.RunTurn(context.Background(), newSession(t, "CA6", session.ChannelVoice), tools.Env{}, "that's all")

	assert.Equal(t, OutcomeEnd, out.Kind)
	assert.True(t, out.Terminal())
	assert.Equal(t, "Thanks for calling, goodbye.", out.Text)
}

func TestRunTurn_ChatFailure(t *testing.T) {
	t.Run("first round", func(t *testing.T) {
		chat := &MockChat{}
		chat.On("ChatWithTools", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, context.DeadlineExceeded)
		metrics := NewTurnMetrics()

		o := NewOrchestrator(chat, newTestRegistry(t), WithObserver(metrics))
		sess := newSession(t, "CA7", session.ChannelVoice)

		out := o.RunTurn(context.Background(), sess, tools.Env{}, "hello")
		assert.Equal(t, OutcomeError, out.Kind)
		assert.Equal(t, ApologyText, out.Text)
		assert.True(t, out.Terminal())

		var chatErr *ChatCompletionError
		require.ErrorAs(t, out.Err, &chatErr)
		assert.Equal(t, 0, chatErr.Round)
		assert.ErrorIs(t, out.Err, context.DeadlineExceeded)

		assert.Equal(t, []session.Role{session.RoleSystem, session.RoleUser}, roles(sess.Turns()))
		assert.NoError(t, session.ValidateTurns(sess.Turns()))

		summary := metrics.GetSummary()
		assert.Equal(t, int64(1), summary.TurnsByOutcome["error"])
		assert.Equal(t, int64(1), summary.PermanentErrors)
	})

	t.Run("resumption round keeps results", func(t *testing.T) {
		chat := &MockChat{}
		chat.On("ChatWithTools", mock.Anything, mock.Anything, withTools).
			Return(&ai.ChatResponse{ToolCalls: []ai.ToolCall{
				toolCall("call_1", "note", `{"text":"a"}`),
				toolCall("call_2", "note", `{"text":"b"}`),
			}}, nil).Once()
		chat.On("ChatWithTools", mock.Anything, mock.Anything, withoutTools).
			Return(nil, errors.New("insufficient_quota")).Once()

		o := NewOrchestrator(chat, newTestRegistry(t))
		sess := newSession(t, "SMS1", session.ChannelSMS)

		out := o.RunTurn(context.Background(), sess, tools.Env{}, "note these")
		assert.Equal(t, OutcomeError, out.Kind)
		assert.Len(t, out.ToolResults, 2)

		turns := sess.Turns()
		require.NoError(t, session.ValidateTurns(turns))
		assert.Equal(t, session.RoleToolResult, turns[len(turns)-1].Role)
	})

	t.Run("nil response", func(t *testing.T) {
		chat := &MockChat{}
		chat.On("ChatWithTools", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

		out := NewOrchestrator(chat, nil).RunTurn(context.Background(), newSession(t, "CA8", session.ChannelVoice), tools.Env{}, "hi")
		assert.Equal(t, OutcomeError, out.Kind)
		assert.ErrorIs(t, out.Err, errNilResponse)
	})

	t.Run("round is bounded by the chat timeout", func(t *testing.T) {
		slow := chatFunc(func(ctx context.Context, _ []ai.Message, _ []ai.ToolDescriptor) (*ai.ChatResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		o := NewOrchestrator(slow, nil, WithChatTimeout(20*time.Millisecond))

		start := time.Now()
		out := o.RunTurn(context.Background(), newSession(t, "CA9", session.ChannelVoice), tools.Env{}, "hi")
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, OutcomeError, out.Kind)
		assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	})
}

func TestRunTurn_MessagesCarryToolResults(t *testing.T) {
	var seen [][]ai.Message
	chat := chatFunc(func(_ context.Context, messages []ai.Message, descriptors []ai.ToolDescriptor) (*ai.ChatResponse, error) {
		seen = append(seen, messages)
		if len(descriptors) > 0 {
			return &ai.ChatResponse{ToolCalls: []ai.ToolCall{toolCall("call_9", "note", `{"text":"x"}`)}}, nil
		}
		return &ai.ChatResponse{Content: "done"}, nil
	})

	o := NewOrchestrator(chat, newTestRegistry(t))
	o.RunTurn(context.Background(), newSession(t, "CA10", session.ChannelVoice), tools.Env{}, "go")

	require.Len(t, seen, 2)
	second := seen[1]
	require.Len(t, second, 4)
	assert.Equal(t, ai.RoleSystem, second[0].Role)
	assert.Equal(t, ai.RoleAssistant, second[2].Role)
	require.Len(t, second[2].ToolCalls, 1)
	assert.Equal(t, "call_9", second[2].ToolCalls[0].ID)
	assert.Equal(t, ai.Message{Role: ai.RoleTool, Content: "noted x", ToolCallID: "call_9", Name: "note"}, second[3])
}

func TestGreet(t *testing.T) {
	o := NewOrchestrator(&MockChat{}, nil)
	sess := newSession(t, "CA11", session.ChannelVoice)

	out := o.Greet(sess, "Hi, this is Liv.")
	assert.Equal(t, Outcome{Kind: OutcomeContinue, Text: "Hi, this is Liv."}, out)
	assert.Equal(t, []session.Role{session.RoleSystem, session.RoleAssistant}, roles(sess.Turns()))
}
