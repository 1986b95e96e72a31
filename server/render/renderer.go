// Package render turns turn outcomes into TwiML replies for the voice and SMS channels.
package render

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/officialmortgage/livbridge/plugin/ai"
	"github.com/officialmortgage/livbridge/plugin/ai/agent"
	"github.com/officialmortgage/livbridge/plugin/ai/cache"
	"github.com/officialmortgage/livbridge/plugin/ai/session"
	"github.com/officialmortgage/livbridge/plugin/ai/timeout"
	"github.com/officialmortgage/livbridge/plugin/twilio"
)

// Reply is a rendered webhook response.
type Reply struct {
	ContentType string
	Body        []byte
	// Hangup is set when the reply ends the call.
	Hangup bool
}

// Recorder receives speech rendering metrics.
type Recorder interface {
	RecordClip(synthesized bool)
	RecordSayFallback()
}

// Config configures a Renderer.
type Config struct {
	// GatherAction is where Twilio posts speech results.
	GatherAction string
	// AudioBaseURL prefixes clip ids, e.g. "https://liv.example.com/audio/".
	AudioBaseURL string

	SayVoice    string
	SayLanguage string
	// SpeechTimeout is the Gather speechTimeout attribute ("auto" by default).
	SpeechTimeout string
	// GatherTimeout is the number of seconds Twilio waits for speech to start.
	GatherTimeout int

	TTSTimeout time.Duration
	ClipTTL    time.Duration
}

// Renderer renders outcomes. It is safe for concurrent use.
type Renderer struct {
	cfg      Config
	speech   ai.SpeechService
	clips    *cache.ClipCache
	recorder Recorder
	newID    func() string
}

// New creates a renderer. With a nil speech service or clip cache every voice reply
// uses <Say>. recorder may be nil.
func New(cfg Config, speech ai.SpeechService, clips *cache.ClipCache, recorder Recorder) *Renderer {
	if cfg.GatherAction == "" {
		cfg.GatherAction = "/voice/gather"
	}
	if cfg.AudioBaseURL == "" {
		cfg.AudioBaseURL = "/audio/"
	}
	if !strings.HasSuffix(cfg.AudioBaseURL, "/") {
		cfg.AudioBaseURL += "/"
	}
	if cfg.SpeechTimeout == "" {
		cfg.SpeechTimeout = "auto"
	}
	if cfg.TTSTimeout <= 0 {
		cfg.TTSTimeout = timeout.SpeechTimeout
	}
	if cfg.ClipTTL <= 0 {
		cfg.ClipTTL = 10 * time.Minute
	}
	return &Renderer{
		cfg:      cfg,
		speech:   speech,
		clips:    clips,
		recorder: recorder,
		newID:    shortuuid.New,
	}
}

// Clip returns a synthesized clip by id.
func (r *Renderer) Clip(id string) (cache.Clip, bool) {
	if r.clips == nil {
		return cache.Clip{}, false
	}
	return r.clips.Get(id)
}

// Render renders the outcome for the channel.
func (r *Renderer) Render(ctx context.Context, channel session.Channel, out agent.Outcome) (*Reply, error) {
	if channel == session.ChannelSMS {
		return r.renderSMS(out)
	}
	return r.renderVoice(ctx, out)
}

// renderSMS replies with the text only. SMS threads never hang up.
func (r *Renderer) renderSMS(out agent.Outcome) (*Reply, error) {
	doc := twilio.NewResponse()
	if text := strings.TrimSpace(out.Text); text != "" {
		doc.Append(twilio.MessageVerb{Body: text})
	}
	return marshal(doc, false)
}

func (r *Renderer) renderVoice(ctx context.Context, out agent.Outcome) (*Reply, error) {
	switch out.Kind {
	case agent.OutcomeEnd:
		return marshal(twilio.NewResponse(r.speak(ctx, out.Text), twilio.Hangup{}), true)
	case agent.OutcomeError:
		return marshal(twilio.NewResponse(r.say(out.Text), twilio.Hangup{}), true)
	case agent.OutcomeReprompt:
		return marshal(r.gather(r.say(out.Text)), false)
	default:
		return marshal(r.gather(r.speak(ctx, out.Text)), false)
	}
}

// gather wraps the prompt in a speech Gather and redirects back to the action
// when the caller stays silent.
func (r *Renderer) gather(prompt any) *twilio.Response {
	return twilio.NewResponse(
		twilio.Gather{
			Input:         "speech",
			Action:        r.cfg.GatherAction,
			Method:        http.MethodPost,
			Language:      r.cfg.SayLanguage,
			SpeechTimeout: r.cfg.SpeechTimeout,
			Timeout:       r.cfg.GatherTimeout,
			Verbs:         []any{prompt},
		},
		twilio.Redirect{Method: http.MethodPost, URL: r.cfg.GatherAction},
	)
}

// speak returns a <Play> of synthesized audio, or <Say> when synthesis is off or fails.
func (r *Renderer) speak(ctx context.Context, text string) any {
	if r.speech == nil || r.clips == nil || strings.TrimSpace(text) == "" {
		return r.say(text)
	}

	ttsCtx, cancel := context.WithTimeout(ctx, r.cfg.TTSTimeout)
	defer cancel()

	speech, err := r.speech.Synthesize(ttsCtx, text)
	if err != nil || speech == nil || len(speech.Audio) == 0 {
		attrs := []any{slog.Int("text_length", len(text))}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		slog.Warn("speech synthesis failed, falling back to say", attrs...)
		return r.sayInstead(text)
	}

	id := r.newID()
	if !r.clips.Put(id, cache.Clip{Data: speech.Audio, ContentType: speech.ContentType}, r.cfg.ClipTTL) {
		slog.Warn("speech clip rejected by cache", slog.Int("bytes", len(speech.Audio)))
		return r.sayInstead(text)
	}
	r.recordClip(true)
	return twilio.Play{URL: r.cfg.AudioBaseURL + id}
}

// sayInstead renders text with the built-in voice after synthesis did not produce a clip.
func (r *Renderer) sayInstead(text string) twilio.Say {
	r.recordClip(false)
	if r.recorder != nil {
		r.recorder.RecordSayFallback()
	}
	return r.say(text)
}

func (r *Renderer) say(text string) twilio.Say {
	return twilio.Say{Voice: r.cfg.SayVoice, Language: r.cfg.SayLanguage, Text: text}
}

func (r *Renderer) recordClip(synthesized bool) {
	if r.recorder != nil {
		r.recorder.RecordClip(synthesized)
	}
}

func marshal(doc *twilio.Response, hangup bool) (*Reply, error) {
	body, err := doc.Marshal()
	if err != nil {
		return nil, err
	}
	return &Reply{ContentType: twilio.ContentType, Body: body, Hangup: hangup}, nil
}

// Fallback is the reply used when rendering itself fails: the apology and, on
// voice, a hang-up. It never fails.
func Fallback(channel session.Channel) *Reply {
	var doc *twilio.Response
	if channel == session.ChannelSMS {
		doc = twilio.NewResponse(twilio.MessageVerb{Body: agent.ApologyText})
	} else {
		doc = twilio.NewResponse(twilio.Say{Text: agent.ApologyText}, twilio.Hangup{})
	}
	return &Reply{ContentType: twilio.ContentType, Body: []byte(doc.String()), Hangup: channel != session.ChannelSMS}
}
