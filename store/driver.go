package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Lead model related methods.
	UpsertLead(ctx context.Context, upsert *Lead) (*Lead, error)
	ListLeads(ctx context.Context, find *FindLead) ([]*Lead, error)

	// LeadEvent model related methods.
	CreateLeadEvent(ctx context.Context, create *LeadEvent) (*LeadEvent, error)
	ListLeadEvents(ctx context.Context, find *FindLeadEvent) ([]*LeadEvent, error)
}
