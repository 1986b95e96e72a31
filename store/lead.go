package store

// LeadStatus is the qualification state of a lead.
type LeadStatus string

const (
	LeadStatusNew LeadStatus = "NEW"
	LeadStatusHot LeadStatus = "HOT"
)

// Lead flags set by marketplace and valuation callbacks.
const (
	FlagAccountCreated    = "ACCOUNT_CREATED"
	FlagAppCompleted      = "APP_COMPLETED"
	FlagCreditAuthorized  = "CREDIT_AUTHORIZED"
	FlagDocUploadStarted  = "DOC_UPLOAD_STARTED"
	FlagDocUploadComplete = "DOC_UPLOAD_COMPLETE"
	FlagValuationComplete = "VALUATION_COMPLETE"
)

// Lead is the CRM record of one conversation, keyed by session id.
type Lead struct {
	SessionID string
	Phone     string
	Name      string
	Email     string
	LoanGoal  string
	ZipCode   string
	Notes     string
	Outcome   string
	Status    LeadStatus
	Flags     map[string]bool // JSON
	Valuation *Valuation      // JSON, nil until the valuation callback arrives
	CreatedTs int64
	UpdatedTs int64
}

// HasFlag reports whether flag is set on the lead.
func (l *Lead) HasFlag(flag string) bool {
	return l != nil && l.Flags[flag]
}

// Valuation is the property estimate delivered by the valuation service.
type Valuation struct {
	ValueEstimate  float64 `json:"value_estimate"`
	RangeLow       float64 `json:"range_low"`
	RangeHigh      float64 `json:"range_high"`
	RentalEstimate float64 `json:"rental_estimate"`
	Equity         float64 `json:"equity"`
	LTV            float64 `json:"ltv"`
}

type FindLead struct {
	SessionID *string
	Status    *LeadStatus
	Limit     *int
}

// LeadEvent is an append-only log entry attached to a lead.
type LeadEvent struct {
	ID        string
	SessionID string
	Type      string
	Payload   string // JSON string
	CreatedTs int64
}

type FindLeadEvent struct {
	SessionID *string
	Type      *string
}
