// Package lead keeps the CRM side of a conversation: caller details written by the
// tools, marketplace progress flags, valuation results and the hot-lead hand-off.
package lead

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/officialmortgage/livbridge/plugin/ai/agent/tools"
	"github.com/officialmortgage/livbridge/store"
)

// ErrUnknownSession is returned when no lead exists for a session.
var ErrUnknownSession = errors.New("unknown session")

// Event types written to the lead event log.
const (
	EventMarketplace = "marketplace_event"
	EventValuation   = "valuation_received"
	EventMarkedHot   = "marked_hot"
)

// Service implements tools.LeadRecorder and the marketplace/valuation callbacks.
type Service struct {
	store    *store.Store
	notifier tools.Notifier
	rule     *HotRule
	flags    []string
}

var _ tools.LeadRecorder = (*Service)(nil)

// NewService creates a lead service. flags are the marketplace event types that set a
// flag of the same name. notifier may be nil.
func NewService(st *store.Store, notifier tools.Notifier, rule *HotRule, flags []string) *Service {
	return &Service{
		store:    st,
		notifier: notifier,
		rule:     rule,
		flags:    flags,
	}
}

// UpdateLead merges the non-empty fields of update into the session's lead.
func (s *Service) UpdateLead(ctx context.Context, sessionID string, update tools.LeadUpdate) error {
	_, err := s.store.MutateLead(ctx, sessionID, func(l *store.Lead) error {
		merge(&l.Phone, update.Phone)
		merge(&l.Name, update.Name)
		merge(&l.Email, update.Email)
		merge(&l.LoanGoal, update.LoanGoal)
		merge(&l.ZipCode, update.ZipCode)
		merge(&l.Notes, update.Notes)
		merge(&l.Outcome, update.Outcome)
		return nil
	})
	return err
}

func merge(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// RecordEvent appends an event to the session's lead log.
func (s *Service) RecordEvent(ctx context.Context, sessionID, eventType string, data map[string]any) error {
	_, err := s.store.CreateLeadEvent(ctx, sessionID, eventType, data)
	return err
}

// ApplyMarketplaceEvent sets the flag named by eventType and re-evaluates the hot-lead
// rule. Event types outside the configured flags are logged and set nothing.
// It reports whether this event made the lead hot.
func (s *Service) ApplyMarketplaceEvent(ctx context.Context, sessionID, eventType string) (*store.Lead, bool, error) {
	known := slices.Contains(s.flags, eventType)
	if !known {
		slog.Warn("ignoring unknown marketplace event type", slog.String("session_id", sessionID), slog.String("event_type", eventType))
	}

	var becameHot bool
	lead, err := s.store.MutateLead(ctx, sessionID, func(l *store.Lead) error {
		if known {
			l.Flags[eventType] = true
		}
		var err error
		becameHot, err = s.promote(l)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if err := s.RecordEvent(ctx, sessionID, EventMarketplace, map[string]any{"event_type": eventType}); err != nil {
		slog.Warn("failed to record marketplace event", slog.String("session_id", sessionID), slog.String("error", err.Error()))
	}
	if becameHot {
		s.announceHot(ctx, lead)
	}
	return lead, becameHot, nil
}

// ApplyValuation stores the valuation on the lead and sets VALUATION_COMPLETE.
func (s *Service) ApplyValuation(ctx context.Context, sessionID string, v store.Valuation) (*store.Lead, error) {
	var becameHot bool
	lead, err := s.store.MutateLead(ctx, sessionID, func(l *store.Lead) error {
		l.Valuation = &v
		l.Flags[store.FlagValuationComplete] = true
		var err error
		becameHot, err = s.promote(l)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.RecordEvent(ctx, sessionID, EventValuation, map[string]any{"valuation": v}); err != nil {
		slog.Warn("failed to record valuation event", slog.String("session_id", sessionID), slog.String("error", err.Error()))
	}
	if becameHot {
		s.announceHot(ctx, lead)
	}
	return lead, nil
}

// promote marks the lead hot when the rule first holds.
func (s *Service) promote(l *store.Lead) (bool, error) {
	if s.rule == nil || l.Status == store.LeadStatusHot {
		return false, nil
	}
	hot, err := s.rule.Eval(l)
	if err != nil || !hot {
		return false, err
	}
	l.Status = store.LeadStatusHot
	return true, nil
}

// announceHot records the promotion and notifies a human. Notify failures are logged only.
func (s *Service) announceHot(ctx context.Context, l *store.Lead) {
	slog.Info("lead is hot", slog.String("session_id", l.SessionID), slog.String("rule", s.rule.String()))
	if err := s.RecordEvent(ctx, l.SessionID, EventMarkedHot, map[string]any{"rule": s.rule.String()}); err != nil {
		slog.Warn("failed to record hot lead event", slog.String("session_id", l.SessionID), slog.String("error", err.Error()))
	}
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, HotLeadPayload(l)); err != nil {
		slog.Error("notify-human failed", slog.String("session_id", l.SessionID), slog.String("error", err.Error()))
	}
}

// HotLeadPayload is the notification body sent when a lead turns hot.
func HotLeadPayload(l *store.Lead) map[string]any {
	return map[string]any{
		"lead_status": string(store.LeadStatusHot),
		"sessionId":   l.SessionID,
		"state":       View(l),
	}
}

// GetLead returns the lead of a session and its event log.
func (s *Service) GetLead(ctx context.Context, sessionID string) (*store.Lead, []*store.LeadEvent, error) {
	lead, err := s.store.GetLead(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if lead == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	events, err := s.store.ListLeadEvents(ctx, &store.FindLeadEvent{SessionID: &sessionID})
	if err != nil {
		return nil, nil, err
	}
	return lead, events, nil
}
