package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

const (
	linkTextedPrefix  = "I just texted you the "
	linkEmailedPrefix = "I just emailed you the "
)

// LinkDelivered reports whether a send_link output confirms the link went out,
// as opposed to a degraded acknowledgement.
func LinkDelivered(output string) bool {
	return strings.HasPrefix(output, linkTextedPrefix) || strings.HasPrefix(output, linkEmailedPrefix)
}

// SendLinkArgs are the arguments of send_link.
type SendLinkArgs struct {
	Link    string `json:"link"`
	Channel string `json:"channel"`
	Email   string `json:"email"`
}

func newSendLinkTool(deps Deps) Tool {
	keys := make([]string, 0, len(deps.Links))
	for k := range deps.Links {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	link := map[string]any{
		"type":        "string",
		"description": "Which link to send.",
	}
	if len(keys) > 0 {
		link["enum"] = keys
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"link": link,
			"channel": map[string]any{
				"type":        "string",
				"enum":        []string{"sms", "email"},
				"description": "How to deliver the link. Defaults to sms.",
			},
			"email": map[string]any{
				"type":        "string",
				"description": "Recipient address when channel is email.",
			},
		},
		"required":             []string{"link"},
		"additionalProperties": false,
	}

	return NewTool(ToolSendLink,
		"Send the caller one of our links by text message or email.",
		schema,
		func(ctx context.Context, env Env, args SendLinkArgs) (*Result, error) {
			url, ok := deps.Links[args.Link]
			if !ok {
				return nil, fmt.Errorf("no link configured for %q", args.Link)
			}
			label := strings.ReplaceAll(args.Link, "_", " ")

			switch args.Channel {
			case "email":
				if deps.Mailer == nil {
					return nil, errors.New("email delivery is not configured")
				}
				if args.Email == "" {
					return nil, errors.New("email address is required")
				}
				body := fmt.Sprintf("Here is the %s link you asked for:\n\n%s\n\nOfficial Mortgage", label, url)
				if err := deps.Mailer.Send(ctx, args.Email, "Your Official Mortgage link", body); err != nil {
					return nil, err
				}
			default:
				if deps.Messenger == nil {
					return nil, errors.New("sms delivery is not configured")
				}
				if env.Caller == "" {
					return nil, errors.New("caller number is unknown")
				}
				body := fmt.Sprintf("Official Mortgage: here is your %s link %s", label, url)
				if err := deps.Messenger.SendSMS(ctx, env.Caller, body); err != nil {
					return nil, err
				}
			}

			if err := recordEvent(ctx, deps, env, "link_sent", map[string]any{"link": args.Link, "channel": channelOrSMS(args.Channel)}); err != nil {
				slog.Warn("failed to record link event", slog.String("session_id", env.SessionID), slog.String("error", err.Error()))
			}

			if args.Channel == "email" {
				return &Result{Output: linkEmailedPrefix + label + " link.", Success: true}, nil
			}
			return &Result{Output: linkTextedPrefix + label + " link.", Success: true}, nil
		},
		WithFallback("I'll make sure that link gets to you right after this call."),
	)
}

func channelOrSMS(ch string) string {
	if ch == "" {
		return "sms"
	}
	return ch
}
