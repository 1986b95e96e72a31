package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/officialmortgage/livbridge/internal/profile"
)

// Store provides database access to leads and their events.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// leadMu serializes read-modify-write of lead records.
	leadMu sync.Mutex
	now    func() time.Time
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
		now:     time.Now,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// GetLead returns the lead of a session, or nil when none was recorded yet.
func (s *Store) GetLead(ctx context.Context, sessionID string) (*Lead, error) {
	limit := 1
	list, err := s.driver.ListLeads(ctx, &FindLead{SessionID: &sessionID, Limit: &limit})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) ListLeads(ctx context.Context, find *FindLead) ([]*Lead, error) {
	return s.driver.ListLeads(ctx, find)
}

// MutateLead loads the lead of a session (a fresh NEW lead when absent), applies fn and
// writes the result back. Concurrent mutations of the same store are serialized.
// When fn returns an error nothing is written.
func (s *Store) MutateLead(ctx context.Context, sessionID string, fn func(lead *Lead) error) (*Lead, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	s.leadMu.Lock()
	defer s.leadMu.Unlock()

	lead, err := s.GetLead(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.now().Unix()
	if lead == nil {
		lead = &Lead{
			SessionID: sessionID,
			Status:    LeadStatusNew,
			CreatedTs: now,
		}
	}
	if lead.Flags == nil {
		lead.Flags = map[string]bool{}
	}

	if err := fn(lead); err != nil {
		return nil, err
	}
	lead.UpdatedTs = now
	return s.driver.UpsertLead(ctx, lead)
}

// CreateLeadEvent appends an event to the lead's log. data is stored as JSON.
func (s *Store) CreateLeadEvent(ctx context.Context, sessionID, eventType string, data any) (*LeadEvent, error) {
	payload := []byte("{}")
	if data != nil {
		var err error
		if payload, err = json.Marshal(data); err != nil {
			return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
		}
	}
	// Version 7 ids sort by creation time.
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return s.driver.CreateLeadEvent(ctx, &LeadEvent{
		ID:        id.String(),
		SessionID: sessionID,
		Type:      eventType,
		Payload:   string(payload),
		CreatedTs: s.now().Unix(),
	})
}

func (s *Store) ListLeadEvents(ctx context.Context, find *FindLeadEvent) ([]*LeadEvent, error) {
	return s.driver.ListLeadEvents(ctx, find)
}
