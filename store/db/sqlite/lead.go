package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/officialmortgage/livbridge/store"
)

const leadColumns = "session_id, phone, name, email, loan_goal, zip_code, notes, outcome, status, flags, valuation, created_ts, updated_ts"

func (d *DB) UpsertLead(ctx context.Context, upsert *store.Lead) (*store.Lead, error) {
	flags, err := marshalFlags(upsert.Flags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lead flags: %w", err)
	}
	valuation, err := marshalValuation(upsert.Valuation)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lead valuation: %w", err)
	}

	stmt := `INSERT INTO lead (` + leadColumns + `)
		VALUES (` + placeholders(13) + `)
		ON CONFLICT (session_id) DO UPDATE SET
			phone = excluded.phone,
			name = excluded.name,
			email = excluded.email,
			loan_goal = excluded.loan_goal,
			zip_code = excluded.zip_code,
			notes = excluded.notes,
			outcome = excluded.outcome,
			status = excluded.status,
			flags = excluded.flags,
			valuation = excluded.valuation,
			updated_ts = excluded.updated_ts
		RETURNING ` + leadColumns

	row := d.db.QueryRowContext(ctx, stmt,
		upsert.SessionID, upsert.Phone, upsert.Name, upsert.Email, upsert.LoanGoal, upsert.ZipCode,
		upsert.Notes, upsert.Outcome, string(upsert.Status), flags, valuation, upsert.CreatedTs, upsert.UpdatedTs,
	)
	lead, err := scanLead(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert lead: %w", err)
	}
	return lead, nil
}

func (d *DB) ListLeads(ctx context.Context, find *store.FindLead) ([]*store.Lead, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.SessionID; v != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Status; v != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, string(*v))
	}

	query := `SELECT ` + leadColumns + ` FROM lead WHERE ` + strings.Join(where, " AND ") + ` ORDER BY updated_ts DESC, session_id`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	list := []*store.Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(row scanner) (*store.Lead, error) {
	var (
		lead      store.Lead
		status    string
		flags     string
		valuation string
	)
	if err := row.Scan(
		&lead.SessionID,
		&lead.Phone,
		&lead.Name,
		&lead.Email,
		&lead.LoanGoal,
		&lead.ZipCode,
		&lead.Notes,
		&lead.Outcome,
		&status,
		&flags,
		&valuation,
		&lead.CreatedTs,
		&lead.UpdatedTs,
	); err != nil {
		return nil, err
	}
	lead.Status = store.LeadStatus(status)

	var err error
	if lead.Flags, err = unmarshalFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flags of lead %s: %w", lead.SessionID, err)
	}
	if lead.Valuation, err = unmarshalValuation(valuation); err != nil {
		return nil, fmt.Errorf("failed to unmarshal valuation of lead %s: %w", lead.SessionID, err)
	}
	return &lead, nil
}
