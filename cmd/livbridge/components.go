package main

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/officialmortgage/livbridge/internal/profile"
	"github.com/officialmortgage/livbridge/plugin/ai"
	"github.com/officialmortgage/livbridge/plugin/ai/agent"
	"github.com/officialmortgage/livbridge/plugin/ai/agent/tools"
	"github.com/officialmortgage/livbridge/plugin/ai/cache"
	"github.com/officialmortgage/livbridge/plugin/ai/persona"
	"github.com/officialmortgage/livbridge/plugin/ai/session"
	"github.com/officialmortgage/livbridge/plugin/notify"
	"github.com/officialmortgage/livbridge/plugin/twilio"
	"github.com/officialmortgage/livbridge/server"
	"github.com/officialmortgage/livbridge/server/render"
	"github.com/officialmortgage/livbridge/server/service/call"
	"github.com/officialmortgage/livbridge/server/service/lead"
	"github.com/officialmortgage/livbridge/store"
)

const (
	clipCapacity = 256
	clipMaxBytes = 64 << 20
	clipTTL      = 10 * time.Minute
)

// newComponents builds the services behind the HTTP routes from the profile.
func newComponents(p *profile.Profile, st *store.Store) (server.Components, error) {
	brain, err := persona.Load(p.BrainDir)
	if err != nil {
		return server.Components{}, errors.Wrap(err, "failed to load brain")
	}
	slog.Info("brain loaded", slog.String("dir", p.BrainDir), slog.Any("modules", brain.Modules), slog.Int("intents", len(brain.Config.Intents)))

	aiConfig := ai.NewConfigFromProfile(p)
	if err := aiConfig.Validate(); err != nil {
		return server.Components{}, errors.Wrap(err, "invalid AI configuration")
	}

	turnMetrics := agent.NewTurnMetrics()

	var chat ai.ChatService
	if aiConfig.Enabled {
		chat, err = ai.NewChatService(&aiConfig.LLM)
		if err != nil {
			return server.Components{}, errors.Wrap(err, "failed to create chat service")
		}
		slog.Info("chat model enabled", slog.String("provider", aiConfig.LLM.Provider), slog.String("model", aiConfig.LLM.Model))
	} else {
		chat = agent.NewKeywordResponder(brain.Config)
		slog.Warn("no chat model configured, answering with keyword intents")
	}

	speech, err := ai.NewSpeechService(&aiConfig.Speech, nil)
	if err != nil {
		return server.Components{}, errors.Wrap(err, "failed to create speech service")
	}
	if speech == nil {
		slog.Info("speech synthesis disabled, replies use <Say>")
	}

	notifier := newNotifier(p)

	var messenger tools.Messenger
	if p.IsTwilioEnabled() {
		client, err := twilio.New(&twilio.Config{
			AccountSID: p.TwilioAccountSID,
			AuthToken:  p.TwilioAuthToken,
			FromNumber: p.TwilioFromNumber,
		})
		if err != nil {
			return server.Components{}, errors.Wrap(err, "failed to create twilio client")
		}
		messenger = client
	} else {
		slog.Warn("twilio credentials missing, outbound SMS disabled")
	}

	var mailer tools.Mailer
	if mailConfig := emailConfig(p); mailConfig.Enabled() {
		mailer = notify.NewEmailSender(mailConfig)
	}

	rule, err := lead.CompileHotRule(brain.Config.HotLeadRule, brain.Config.Flags)
	if err != nil {
		return server.Components{}, errors.Wrap(err, "failed to compile hot lead rule")
	}
	leads := lead.NewService(st, notifier, rule, brain.Config.Flags)

	executor := tools.NewResilientToolExecutor(
		tools.WithExecutionTimeout(p.ToolTimeout),
		tools.WithRecorder(turnMetrics),
	)
	registry := tools.NewRegistry(executor)
	if err := tools.RegisterBuiltins(registry, tools.Deps{
		Leads:        leads,
		Messenger:    messenger,
		Mailer:       mailer,
		Notifier:     notifier,
		Links:        brain.Config.Links,
		OnCallNumber: p.OnCallNumber,
	}, brain.Config.Tools); err != nil {
		return server.Components{}, errors.Wrap(err, "failed to register tools")
	}
	slog.Info("tools registered", slog.Any("tools", registry.Names()))

	orchestrator := agent.NewOrchestrator(chat, registry,
		agent.WithChatTimeout(p.ChatTimeout),
		agent.WithObserver(turnMetrics),
	)

	clips := cache.NewClipCache(clipCapacity, clipMaxBytes, clipTTL)
	renderer := render.New(render.Config{
		GatherAction: p.InstanceURL + "/voice/gather",
		AudioBaseURL: p.InstanceURL + "/audio/",
		SayVoice:     p.SayVoice,
		SayLanguage:  p.SayLanguage,
		TTSTimeout:   p.TTSTimeout,
		ClipTTL:      clipTTL,
	}, speech, clips, turnMetrics)

	sessions := session.NewStore(brain.SystemPrompt)

	return server.Components{
		Calls:       call.NewService(sessions, orchestrator, renderer, brain.Config.Greeting),
		Renderer:    renderer,
		Clips:       clips,
		Leads:       leads,
		TurnMetrics: turnMetrics,
	}, nil
}

// newNotifier fans hand-off notifications out to the configured webhook and mailbox.
// It returns nil when neither is configured.
func newNotifier(p *profile.Profile) tools.Notifier {
	dispatcher := notify.NewDispatcher()
	if p.NotifyURL != "" {
		dispatcher.Register(notify.NewWebhookSender(notify.WebhookConfig{URL: p.NotifyURL}))
	}
	if cfg := emailConfig(p); cfg.Enabled() && p.NotifyEmail != "" {
		dispatcher.Register(notify.NewEmailNotifier(notify.NewEmailSender(cfg), p.NotifyEmail))
	}
	if dispatcher.Len() == 0 {
		slog.Warn("no notification channel configured, hand-offs are only logged")
		return nil
	}
	return dispatcher
}

func emailConfig(p *profile.Profile) notify.EmailConfig {
	return notify.EmailConfig{
		SMTPHost:    p.SMTPHost,
		SMTPPort:    p.SMTPPort,
		Username:    p.SMTPUsername,
		Password:    p.SMTPPassword,
		FromAddress: p.SMTPFrom,
		FromName:    "Liv",
	}
}
