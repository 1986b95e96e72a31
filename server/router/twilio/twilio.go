// Package twilio serves the Twilio voice and SMS webhooks.
package twilio

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/officialmortgage/livbridge/plugin/ai/cache"
	"github.com/officialmortgage/livbridge/plugin/ai/session"
	twiliopkg "github.com/officialmortgage/livbridge/plugin/twilio"
	"github.com/officialmortgage/livbridge/server/internal/observability"
	"github.com/officialmortgage/livbridge/server/render"
	"github.com/officialmortgage/livbridge/server/service/call"
)

// ClipSource serves synthesized audio clips by id.
type ClipSource interface {
	Clip(id string) (cache.Clip, bool)
}

// WebhookService handles the Twilio webhooks.
type WebhookService struct {
	Calls *call.Service
	Clips ClipSource
}

// NewWebhookService creates the webhook handlers.
func NewWebhookService(calls *call.Service, clips ClipSource) *WebhookService {
	return &WebhookService{
		Calls: calls,
		Clips: clips,
	}
}

// RegisterRoutes registers the webhook routes. middlewares apply to the Twilio posts only;
// /audio and /health stay open since Twilio fetches audio without a signature.
func (s *WebhookService) RegisterRoutes(e *echo.Echo, middlewares ...echo.MiddlewareFunc) {
	e.GET("/health", s.Health)
	e.GET("/audio/:id", s.Audio)

	e.POST("/voice", s.Voice, middlewares...)
	e.POST("/voice/gather", s.Gather, middlewares...)
	e.POST("/voice/status", s.Status, middlewares...)
	e.POST("/sms", s.SMS, middlewares...)
}

// Health reports liveness.
// GET /health
func (s *WebhookService) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Voice answers a new call with the greeting.
// POST /voice
func (s *WebhookService) Voice(c echo.Context) error {
	in, ok := s.voiceInbound(c)
	if !ok {
		return writeReply(c, render.Fallback(session.ChannelVoice))
	}
	reply, _ := s.Calls.Greet(c.Request().Context(), in)
	return writeReply(c, reply)
}

// Gather runs one turn with the caller's transcribed speech.
// POST /voice/gather
func (s *WebhookService) Gather(c echo.Context) error {
	in, ok := s.voiceInbound(c)
	if !ok {
		return writeReply(c, render.Fallback(session.ChannelVoice))
	}
	in.Utterance = c.FormValue("SpeechResult")
	reply, out := s.Calls.HandleTurn(c.Request().Context(), in)
	logOutcome(c, string(out.Kind))
	return writeReply(c, reply)
}

// Status receives call progress callbacks and evicts finished calls.
// POST /voice/status
func (s *WebhookService) Status(c echo.Context) error {
	callSid := c.FormValue("CallSid")
	status := c.FormValue("CallStatus")
	tagSession(c, callSid, session.ChannelVoice)
	if callSid != "" && twiliopkg.IsTerminalCallStatus(status) {
		s.Calls.EndCall(callSid, status)
	}
	return c.NoContent(http.StatusNoContent)
}

// SMS runs one turn of a text thread. The thread is keyed by the sender's number.
// POST /sms
func (s *WebhookService) SMS(c echo.Context) error {
	from := c.FormValue("From")
	if from == "" {
		slog.Warn("sms webhook without sender", slog.String("message_sid", c.FormValue("MessageSid")))
		return writeReply(c, render.Fallback(session.ChannelSMS))
	}
	tagSession(c, from, session.ChannelSMS)

	reply, out := s.Calls.HandleTurn(c.Request().Context(), call.Inbound{
		SessionID: from,
		Channel:   session.ChannelSMS,
		Utterance: c.FormValue("Body"),
		Caller:    from,
		Callee:    c.FormValue("To"),
	})
	logOutcome(c, string(out.Kind))
	return writeReply(c, reply)
}

// Audio serves a synthesized clip referenced by a <Play> verb.
// GET /audio/:id
func (s *WebhookService) Audio(c echo.Context) error {
	if s.Clips == nil {
		return c.NoContent(http.StatusNotFound)
	}
	clip, ok := s.Clips.Clip(c.Param("id"))
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, clip.ContentType, clip.Data)
}

func (s *WebhookService) voiceInbound(c echo.Context) (call.Inbound, bool) {
	callSid := c.FormValue("CallSid")
	if callSid == "" {
		slog.Warn("voice webhook without CallSid", slog.String("path", c.Path()))
		return call.Inbound{}, false
	}
	tagSession(c, callSid, session.ChannelVoice)
	return call.Inbound{
		SessionID: callSid,
		Channel:   session.ChannelVoice,
		Caller:    c.FormValue("From"),
		Callee:    c.FormValue("To"),
	}, true
}

func tagSession(c echo.Context, sessionID string, channel session.Channel) {
	if reqCtx, ok := observability.FromContext(c.Request().Context()); ok {
		reqCtx.SetSession(sessionID, string(channel))
	}
}

func logOutcome(c echo.Context, outcome string) {
	if reqCtx, ok := observability.FromContext(c.Request().Context()); ok {
		reqCtx.Info("turn rendered", slog.String(observability.LogFieldOutcome, outcome))
	}
}

func writeReply(c echo.Context, reply *render.Reply) error {
	return c.Blob(http.StatusOK, reply.ContentType, reply.Body)
}
