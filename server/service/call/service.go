// Package call binds webhook requests to sessions: it resolves and locks the session,
// runs the turn, renders the reply and evicts sessions whose call is over.
package call

import (
	"context"
	"log/slog"
	"time"

	"github.com/officialmortgage/livbridge/plugin/ai/agent"
	"github.com/officialmortgage/livbridge/plugin/ai/agent/tools"
	"github.com/officialmortgage/livbridge/plugin/ai/session"
	"github.com/officialmortgage/livbridge/server/render"
)

// Inbound is one webhook request reduced to what a turn needs.
type Inbound struct {
	SessionID string
	Channel   session.Channel
	Utterance string
	// Caller is the remote number (From), Callee ours (To).
	Caller string
	Callee string
}

// Renderer renders outcomes into replies.
type Renderer interface {
	Render(ctx context.Context, channel session.Channel, out agent.Outcome) (*render.Reply, error)
}

// Service runs webhook turns.
type Service struct {
	sessions     *session.Store
	orchestrator *agent.Orchestrator
	renderer     Renderer
	greeting     string
}

// NewService creates a call service.
func NewService(sessions *session.Store, orchestrator *agent.Orchestrator, renderer Renderer, greeting string) *Service {
	return &Service{
		sessions:     sessions,
		orchestrator: orchestrator,
		renderer:     renderer,
		greeting:     greeting,
	}
}

// Greet answers a new call with the configured greeting and starts gathering speech.
// A repeated call webhook for a known session replays the greeting without adding
// it to the conversation again.
func (s *Service) Greet(ctx context.Context, in Inbound) (*render.Reply, agent.Outcome) {
	sess, created := s.sessions.Acquire(in.SessionID, in.Channel)
	defer sess.Unlock()
	sess.SetCaller(in.Caller)

	if !created {
		slog.Info("greeting replayed for existing session", slog.String("session_id", in.SessionID))
		out := agent.Outcome{Kind: agent.OutcomeContinue, Text: s.greeting}
		return s.render(ctx, sess, out), out
	}
	out := s.orchestrator.Greet(sess, s.greeting)
	return s.render(ctx, sess, out), out
}

// HandleTurn runs one caller utterance through the orchestrator and renders the reply.
// The session lock is held from before the first mutation until the reply is rendered.
func (s *Service) HandleTurn(ctx context.Context, in Inbound) (*render.Reply, agent.Outcome) {
	sess, created := s.sessions.Acquire(in.SessionID, in.Channel)
	defer sess.Unlock()
	sess.SetCaller(in.Caller)
	if created {
		slog.Info("session started mid-conversation",
			slog.String("session_id", in.SessionID),
			slog.String("channel", string(in.Channel)))
	}

	env := tools.Env{
		SessionID: sess.ID(),
		Channel:   sess.Channel(),
		Caller:    sess.Caller(),
		Callee:    in.Callee,
	}
	out := s.orchestrator.RunTurn(ctx, sess, env, in.Utterance)
	return s.render(ctx, sess, out), out
}

// render renders the outcome and evicts a voice session whose reply hangs up.
// The caller must hold the session lock.
func (s *Service) render(ctx context.Context, sess *session.Session, out agent.Outcome) *render.Reply {
	reply, err := s.renderer.Render(ctx, sess.Channel(), out)
	if err != nil {
		slog.Error("failed to render reply",
			slog.String("session_id", sess.ID()),
			slog.String("outcome", string(out.Kind)),
			slog.String("error", err.Error()))
		reply = render.Fallback(sess.Channel())
	}
	if sess.Channel() == session.ChannelVoice && reply.Hangup {
		s.sessions.Delete(sess.ID())
	}
	return reply
}

// EndCall evicts the session of a finished call. It reports whether one existed.
func (s *Service) EndCall(sessionID, status string) bool {
	ok := s.sessions.Delete(sessionID)
	slog.Info("call ended",
		slog.String("session_id", sessionID),
		slog.String("status", status),
		slog.Bool("evicted", ok))
	return ok
}

// Sweep evicts idle sessions. It satisfies session.Sweeper for the cleanup job.
func (s *Service) Sweep(idleTTL time.Duration) int {
	return s.sessions.Sweep(idleTTL)
}

// ActiveSessions returns the number of live sessions.
func (s *Service) ActiveSessions() int {
	return s.sessions.Len()
}
