package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ScheduleCallbackArgs are the arguments of schedule_callback.
type ScheduleCallbackArgs struct {
	Time  string `json:"time"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

// EscalateArgs are the arguments of escalate_to_human.
type EscalateArgs struct {
	Reason  string `json:"reason"`
	Urgency string `json:"urgency"`
}

func newScheduleCallbackTool(deps Deps) Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"time": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "When the caller wants to be called back, as they said it (e.g. \"tomorrow after 3pm\").",
			},
			"phone": map[string]any{
				"type":        "string",
				"description": "Callback number if different from the number they are calling from.",
			},
			"notes": map[string]any{"type": "string"},
		},
		"required":             []string{"time"},
		"additionalProperties": false,
	}

	return NewTool(ToolScheduleCallback,
		"Schedule a callback from a loan officer.",
		schema,
		func(ctx context.Context, env Env, args ScheduleCallbackArgs) (*Result, error) {
			if deps.Leads == nil && deps.Notifier == nil {
				return nil, errors.New("no callback route configured")
			}
			phone := args.Phone
			if phone == "" {
				phone = env.Caller
			}
			data := map[string]any{"time": args.Time, "phone": phone, "notes": args.Notes}

			if err := recordEvent(ctx, deps, env, "callback_requested", data); err != nil {
				return nil, err
			}
			if deps.Notifier != nil {
				payload := map[string]any{
					"type":        "callback_requested",
					"sessionId":   env.SessionID,
					"phone":       phone,
					"time":        args.Time,
					"notes":       args.Notes,
					"requestedAt": deps.now().UTC().Format(time.RFC3339),
				}
				if err := deps.Notifier.Notify(ctx, payload); err != nil {
					return nil, err
				}
			}
			return &Result{Output: fmt.Sprintf("You're set for a callback %s.", args.Time), Success: true}, nil
		},
		WithFallback("I've noted that you'd like a callback, and someone will reach out."),
	)
}

func newEscalateTool(deps Deps) Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Why a human is needed.",
			},
			"urgency": map[string]any{
				"type": "string",
				"enum": []string{"normal", "urgent"},
			},
		},
		"required":             []string{"reason"},
		"additionalProperties": false,
	}

	return NewTool(ToolEscalateToHuman,
		"Hand the caller off to a human loan officer.",
		schema,
		func(ctx context.Context, env Env, args EscalateArgs) (*Result, error) {
			if deps.Notifier == nil && (deps.Messenger == nil || deps.OnCallNumber == "") {
				return nil, errors.New("no escalation route configured")
			}
			urgency := args.Urgency
			if urgency == "" {
				urgency = "normal"
			}

			var errs []error
			delivered := false
			if deps.Notifier != nil {
				payload := map[string]any{
					"type":      "escalation",
					"sessionId": env.SessionID,
					"channel":   string(env.Channel),
					"caller":    env.Caller,
					"reason":    args.Reason,
					"urgency":   urgency,
				}
				if err := deps.Notifier.Notify(ctx, payload); err != nil {
					errs = append(errs, err)
				} else {
					delivered = true
				}
			}
			if deps.Messenger != nil && deps.OnCallNumber != "" {
				body := fmt.Sprintf("Liv escalation (%s): caller %s needs a loan officer. Reason: %s", urgency, env.Caller, args.Reason)
				if err := deps.Messenger.SendSMS(ctx, deps.OnCallNumber, body); err != nil {
					errs = append(errs, err)
				} else {
					delivered = true
				}
			}
			if !delivered {
				return nil, errors.Join(errs...)
			}
			if len(errs) > 0 {
				slog.Warn("escalation partially delivered", slog.String("session_id", env.SessionID), slog.String("error", errors.Join(errs...).Error()))
			}

			if err := recordEvent(ctx, deps, env, "escalated", map[string]any{"reason": args.Reason, "urgency": urgency}); err != nil {
				slog.Warn("failed to record escalation event", slog.String("session_id", env.SessionID), slog.String("error", err.Error()))
			}
			return &Result{Output: "I've let a loan officer know, and someone will reach out shortly.", Success: true}, nil
		},
		WithFallback("I'll have a loan officer follow up with you."),
	)
}
