package tools

import (
	"context"
	"fmt"
	"time"
)

// Built-in tool names.
const (
	ToolSendLink         = "send_link"
	ToolLogLead          = "log_lead"
	ToolScheduleCallback = "schedule_callback"
	ToolTagOutcome       = "tag_outcome"
	ToolEscalateToHuman  = "escalate_to_human"
)

// LeadUpdate carries the lead fields a tool may set. Empty fields are left untouched.
type LeadUpdate struct {
	Phone    string
	Name     string
	Email    string
	LoanGoal string
	ZipCode  string
	Notes    string
	Outcome  string
}

// LeadRecorder is the CRM log collaborator.
type LeadRecorder interface {
	UpdateLead(ctx context.Context, sessionID string, update LeadUpdate) error
	RecordEvent(ctx context.Context, sessionID, eventType string, data map[string]any) error
}

// Messenger sends outbound SMS.
type Messenger interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Mailer sends outbound email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Notifier forwards a JSON payload to the human hand-off webhook.
type Notifier interface {
	Notify(ctx context.Context, payload any) error
}

// Deps are the collaborators of the built-in tools. Nil collaborators disable the
// paths that need them; a tool whose only path is disabled fails and falls back.
type Deps struct {
	Leads     LeadRecorder
	Messenger Messenger
	Mailer    Mailer
	Notifier  Notifier

	// Links maps a link key (marketplace, refi, dscr, ...) to its url.
	Links map[string]string
	// OnCallNumber receives an SMS on escalation when set.
	OnCallNumber string

	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Builtins returns the built-in tools in their default offering order.
func Builtins(deps Deps) []Tool {
	return []Tool{
		newSendLinkTool(deps),
		newLogLeadTool(deps),
		newScheduleCallbackTool(deps),
		newTagOutcomeTool(deps),
		newEscalateTool(deps),
	}
}

// RegisterBuiltins registers the built-in tools named in enabled, in that order.
// An empty enabled list registers all of them.
func RegisterBuiltins(r *Registry, deps Deps, enabled []string) error {
	all := Builtins(deps)
	if len(enabled) == 0 {
		for _, t := range all {
			if err := r.Register(t); err != nil {
				return err
			}
		}
		return nil
	}

	byName := make(map[string]Tool, len(all))
	for _, t := range all {
		byName[t.Name()] = t
	}
	for _, name := range enabled {
		t, ok := byName[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// recordEvent writes a lead event; failures are logged by the recorder's caller only.
func recordEvent(ctx context.Context, deps Deps, env Env, eventType string, data map[string]any) error {
	if deps.Leads == nil {
		return nil
	}
	return deps.Leads.RecordEvent(ctx, env.SessionID, eventType, data)
}
