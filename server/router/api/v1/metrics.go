package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/officialmortgage/livbridge/plugin/ai/agent"
	"github.com/officialmortgage/livbridge/server/internal/observability"
)

// MetricsResponse is the metrics overview.
type MetricsResponse struct {
	ActiveSessions int                            `json:"active_sessions"`
	Turns          *agent.MetricsSummary          `json:"turns,omitempty"`
	HTTP           *observability.MetricsSnapshot `json:"http,omitempty"`
}

// GetMetrics returns turn and request metrics.
// GET /api/v1/metrics
func (s *APIV1Service) GetMetrics(c echo.Context) error {
	var resp MetricsResponse
	if s.Sessions != nil {
		resp.ActiveSessions = s.Sessions.ActiveSessions()
	}
	if s.TurnMetrics != nil {
		summary := s.TurnMetrics.GetSummary()
		resp.Turns = &summary
	}
	if s.Metrics != nil {
		resp.HTTP = s.Metrics.Snapshot()
	}
	return c.JSON(http.StatusOK, resp)
}
