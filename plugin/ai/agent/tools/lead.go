package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
)

// LogLeadArgs are the arguments of log_lead.
type LogLeadArgs struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	LoanGoal string `json:"loan_goal"`
	ZipCode  string `json:"zip_code"`
	Notes    string `json:"notes"`
}

// TagOutcomeArgs are the arguments of tag_outcome.
type TagOutcomeArgs struct {
	Outcome string `json:"outcome"`
	EndCall bool   `json:"end_call"`
}

// Outcome tags accepted by tag_outcome.
var OutcomeTags = []string{
	"qualified",
	"follow_up",
	"not_interested",
	"wrong_number",
	"do_not_contact",
	"completed",
}

var errNoLeadStore = errors.New("lead store is not configured")

func newLogLeadTool(deps Deps) Tool {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":      str("Caller's full name."),
			"email":     str("Caller's email address."),
			"loan_goal": str("What the caller wants: purchase, refinance, cash-out, equity, investor (DSCR), jumbo, non-QM."),
			"zip_code":  map[string]any{"type": "string", "pattern": "^[0-9]{5}$", "description": "Property or home zip code."},
			"notes":     str("Anything else worth keeping for the loan officer."),
		},
		"minProperties":        1,
		"additionalProperties": false,
	}

	return NewTool(ToolLogLead,
		"Save or update the caller's details in the CRM.",
		schema,
		func(ctx context.Context, env Env, args LogLeadArgs) (*Result, error) {
			if deps.Leads == nil {
				return nil, errNoLeadStore
			}
			update := LeadUpdate{
				Phone:    env.Caller,
				Name:     args.Name,
				Email:    args.Email,
				LoanGoal: args.LoanGoal,
				ZipCode:  args.ZipCode,
				Notes:    args.Notes,
			}
			if err := deps.Leads.UpdateLead(ctx, env.SessionID, update); err != nil {
				return nil, err
			}
			return &Result{Output: "Got it, I've saved your details.", Success: true}, nil
		},
		WithFallback("I've noted your details."),
	)
}

func newTagOutcomeTool(deps Deps) Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"outcome": map[string]any{
				"type":        "string",
				"enum":        OutcomeTags,
				"description": "How the conversation ended up.",
			},
			"end_call": map[string]any{
				"type":        "boolean",
				"description": "True when the conversation is over and the call should end after your reply.",
			},
		},
		"required":             []string{"outcome"},
		"additionalProperties": false,
	}

	return NewTool(ToolTagOutcome,
		"Record the outcome of the conversation, optionally ending the call.",
		schema,
		func(ctx context.Context, env Env, args TagOutcomeArgs) (*Result, error) {
			if deps.Leads == nil {
				return nil, errNoLeadStore
			}
			if err := deps.Leads.UpdateLead(ctx, env.SessionID, LeadUpdate{Phone: env.Caller, Outcome: args.Outcome}); err != nil {
				return nil, err
			}
			if err := recordEvent(ctx, deps, env, "outcome_tagged", map[string]any{"outcome": args.Outcome, "end_call": args.EndCall}); err != nil {
				slog.Warn("failed to record outcome event", slog.String("session_id", env.SessionID), slog.String("error", err.Error()))
			}
			return &Result{Output: "Outcome recorded.", Success: true, EndCall: args.EndCall}, nil
		},
		// The call still ends when asked to, even if the tag could not be stored.
		WithFallbackFunc(func(_ context.Context, _ Tool, raw json.RawMessage, _ error) *Result {
			var args TagOutcomeArgs
			_ = json.Unmarshal(raw, &args)
			return &Result{Output: "Noted.", Success: false, EndCall: args.EndCall}
		}),
	)
}
