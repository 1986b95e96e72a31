// Package session holds the in-memory conversation state of active calls and SMS threads.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Channel is the medium a session runs on.
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelSMS   Channel = "sms"
)

// Role of a conversation turn.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool-result"
)

// ToolInvocationRequest is one tool call requested by the model.
type ToolInvocationRequest struct {
	InvocationID string
	ToolName     string
	RawArguments string
}

// Turn is one exchange unit of a conversation.
type Turn struct {
	Role    Role
	Content string
	// Invocations is set on assistant turns that requested tools.
	Invocations []ToolInvocationRequest
	// InvocationID and ToolName are set on tool-result turns.
	InvocationID string
	ToolName     string
}

func (t Turn) clone() Turn {
	if t.Invocations != nil {
		t.Invocations = append([]ToolInvocationRequest(nil), t.Invocations...)
	}
	return t
}

// Session is the conversation state of one call or SMS thread.
//
// The turn sequence is guarded by the session lock: Lock must be held for
// Turns, Append, Touch, LastActive and SetCaller.
type Session struct {
	id        string
	channel   Channel
	createdAt time.Time

	mu         sync.Mutex
	turns      []Turn
	lastActive time.Time
	caller     string

	closed atomic.Bool
}

func newSession(id string, channel Channel, systemPrompt string, now time.Time) *Session {
	return &Session{
		id:         id,
		channel:    channel,
		createdAt:  now,
		lastActive: now,
		turns:      []Turn{{Role: RoleSystem, Content: systemPrompt}},
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Channel() Channel     { return s.channel }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) Lock()         { s.mu.Lock() }
func (s *Session) Unlock()       { s.mu.Unlock() }
func (s *Session) TryLock() bool { return s.mu.TryLock() }

// Closed reports whether the session was evicted from its store.
// A request that acquired the lock of a closed session must re-resolve the id.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Turns returns a copy of the turn sequence.
func (s *Session) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		out[i] = t.clone()
	}
	return out
}

// Len returns the number of turns.
func (s *Session) Len() int {
	return len(s.turns)
}

// Append adds turns to the end of the sequence.
func (s *Session) Append(turns ...Turn) {
	for _, t := range turns {
		s.turns = append(s.turns, t.clone())
	}
}

// Touch marks the session as active.
func (s *Session) Touch(now time.Time) {
	s.lastActive = now
}

func (s *Session) LastActive() time.Time {
	return s.lastActive
}

// Caller is the remote party's phone number, when known.
func (s *Session) Caller() string {
	return s.caller
}

func (s *Session) SetCaller(caller string) {
	if caller != "" {
		s.caller = caller
	}
}

// ValidateTurns checks the structural invariants of a turn sequence: exactly one
// leading system turn, and every assistant turn with N invocations immediately
// followed by N tool-result turns answering them in request order.
func ValidateTurns(turns []Turn) error {
	if len(turns) == 0 || turns[0].Role != RoleSystem {
		return fmt.Errorf("sequence must start with a system turn")
	}
	for i := 1; i < len(turns); i++ {
		t := turns[i]
		switch t.Role {
		case RoleSystem:
			return fmt.Errorf("turn %d: unexpected system turn", i)
		case RoleToolResult:
			return fmt.Errorf("turn %d: tool result without a pending request", i)
		case RoleAssistant:
			for j, inv := range t.Invocations {
				k := i + 1 + j
				if k >= len(turns) {
					return fmt.Errorf("turn %d: missing result for %s", i, inv.InvocationID)
				}
				res := turns[k]
				if res.Role != RoleToolResult || res.InvocationID != inv.InvocationID {
					return fmt.Errorf("turn %d: expected result for %s", k, inv.InvocationID)
				}
			}
			i += len(t.Invocations)
		}
	}
	return nil
}
