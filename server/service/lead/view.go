package lead

import "github.com/officialmortgage/livbridge/store"

// LeadView is the JSON representation of a lead.
type LeadView struct {
	SessionID string           `json:"sessionId"`
	Phone     string           `json:"phone,omitempty"`
	Name      string           `json:"name,omitempty"`
	Email     string           `json:"email,omitempty"`
	LoanGoal  string           `json:"loan_goal,omitempty"`
	ZipCode   string           `json:"zip_code,omitempty"`
	Notes     string           `json:"notes,omitempty"`
	Outcome   string           `json:"outcome,omitempty"`
	Status    string           `json:"status"`
	HotLead   bool             `json:"HOT_LEAD"`
	Flags     map[string]bool  `json:"flags"`
	Valuation *store.Valuation `json:"valuation,omitempty"`
	CreatedTs int64            `json:"created_ts"`
	UpdatedTs int64            `json:"updated_ts"`
}

// View converts a lead to its JSON representation.
func View(l *store.Lead) LeadView {
	flags := l.Flags
	if flags == nil {
		flags = map[string]bool{}
	}
	return LeadView{
		SessionID: l.SessionID,
		Phone:     l.Phone,
		Name:      l.Name,
		Email:     l.Email,
		LoanGoal:  l.LoanGoal,
		ZipCode:   l.ZipCode,
		Notes:     l.Notes,
		Outcome:   l.Outcome,
		Status:    string(l.Status),
		HotLead:   l.Status == store.LeadStatusHot,
		Flags:     flags,
		Valuation: l.Valuation,
		CreatedTs: l.CreatedTs,
		UpdatedTs: l.UpdatedTs,
	}
}
