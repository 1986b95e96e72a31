package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/officialmortgage/livbridge/store"
)

func (d *DB) CreateLeadEvent(ctx context.Context, create *store.LeadEvent) (*store.LeadEvent, error) {
	payload := create.Payload
	if payload == "" {
		payload = "{}"
	}
	stmt := `INSERT INTO lead_event (id, session_id, type, payload, created_ts) VALUES (` + placeholders(5) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, create.ID, create.SessionID, create.Type, payload, create.CreatedTs); err != nil {
		return nil, fmt.Errorf("failed to create lead_event: %w", err)
	}
	event := *create
	event.Payload = payload
	return &event, nil
}

func (d *DB) ListLeadEvents(ctx context.Context, find *store.FindLeadEvent) ([]*store.LeadEvent, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.SessionID; v != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Type; v != nil {
		where, args = append(where, "type = "+placeholder(len(args)+1)), append(args, *v)
	}

	// rowid keeps insertion order for events written within the same second.
	query := `SELECT id, session_id, type, payload, created_ts FROM lead_event WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts ASC, rowid ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list lead_events: %w", err)
	}
	defer rows.Close()

	list := []*store.LeadEvent{}
	for rows.Next() {
		event := &store.LeadEvent{}
		if err := rows.Scan(&event.ID, &event.SessionID, &event.Type, &event.Payload, &event.CreatedTs); err != nil {
			return nil, err
		}
		list = append(list, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
