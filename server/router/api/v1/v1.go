package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/officialmortgage/livbridge/internal/profile"
	"github.com/officialmortgage/livbridge/plugin/ai/agent"
	"github.com/officialmortgage/livbridge/server/internal/observability"
	"github.com/officialmortgage/livbridge/server/middleware"
	"github.com/officialmortgage/livbridge/server/service/lead"
)

// SessionCounter reports the number of live call and SMS sessions.
type SessionCounter interface {
	ActiveSessions() int
}

type APIV1Service struct {
	Profile     *profile.Profile
	LeadService *lead.Service
	Sessions    SessionCounter
	TurnMetrics *agent.TurnMetrics
	Metrics     *observability.Metrics
}

func NewAPIV1Service(profile *profile.Profile, leadService *lead.Service, sessions SessionCounter, turnMetrics *agent.TurnMetrics, metrics *observability.Metrics) *APIV1Service {
	return &APIV1Service{
		Profile:     profile,
		LeadService: leadService,
		Sessions:    sessions,
		TurnMetrics: turnMetrics,
		Metrics:     metrics,
	}
}

// RegisterRoutes registers the JSON API under /api/v1. The marketplace callbacks and
// lead lookups require a bearer token when a marketplace secret is configured.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	auth := middleware.BearerAuth(s.Profile.MarketplaceSecret)

	e.POST("/api/v1/marketplace/events", s.MarketplaceEvent, auth)
	e.POST("/api/v1/valuation/callback", s.ValuationCallback, auth)
	e.GET("/api/v1/leads/:sessionId", s.GetLead, auth)
	e.GET("/api/v1/metrics", s.GetMetrics)
}
