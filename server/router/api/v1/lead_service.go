package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	apierrors "github.com/officialmortgage/livbridge/server/internal/errors"
	"github.com/officialmortgage/livbridge/server/internal/observability"
	"github.com/officialmortgage/livbridge/server/service/lead"
	"github.com/officialmortgage/livbridge/store"
)

// MarketplaceEventRequest is posted by the marketplace when a borrower reaches a milestone.
type MarketplaceEventRequest struct {
	SessionID string `json:"sessionId"`
	EventType string `json:"eventType"`
}

// ValuationCallbackRequest carries the property estimate for a session.
type ValuationCallbackRequest struct {
	SessionID      string  `json:"sessionId"`
	ValueEstimate  float64 `json:"value_estimate"`
	RangeLow       float64 `json:"range_low"`
	RangeHigh      float64 `json:"range_high"`
	RentalEstimate float64 `json:"rental_estimate"`
	Equity         float64 `json:"equity"`
	LTV            float64 `json:"ltv"`
}

// OKResponse acknowledges a callback.
type OKResponse struct {
	OK bool `json:"ok"`
}

// LeadResponse is a lead with its event log.
type LeadResponse struct {
	Lead   lead.LeadView `json:"lead"`
	Events []EventView   `json:"events"`
}

// EventView is the JSON representation of a lead event.
type EventView struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Payload   string `json:"payload"`
	CreatedTs int64  `json:"created_ts"`
}

// MarketplaceEvent sets a lead flag and promotes the lead when the hot-lead rule holds.
// POST /api/v1/marketplace/events
func (s *APIV1Service) MarketplaceEvent(c echo.Context) error {
	var req MarketplaceEventRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("Invalid request body"))
	}
	if req.SessionID == "" || req.EventType == "" {
		return writeError(c, apierrors.InvalidArgument("Missing sessionId or eventType"))
	}
	tagSession(c, req.SessionID)

	l, becameHot, err := s.LeadService.ApplyMarketplaceEvent(c.Request().Context(), req.SessionID, req.EventType)
	if err != nil {
		return writeError(c, apierrors.Wrap(err, apierrors.ErrCodeInternal, "failed to apply marketplace event"))
	}
	slog.Info("marketplace event applied",
		slog.String(observability.LogFieldSessionID, req.SessionID),
		slog.String(observability.LogFieldEventType, req.EventType),
		slog.String("status", string(l.Status)),
		slog.Bool("became_hot", becameHot))
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// ValuationCallback stores the property valuation of a session's lead.
// POST /api/v1/valuation/callback
func (s *APIV1Service) ValuationCallback(c echo.Context) error {
	var req ValuationCallbackRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("Invalid request body"))
	}
	if req.SessionID == "" {
		return writeError(c, apierrors.InvalidArgument("Missing sessionId"))
	}
	tagSession(c, req.SessionID)

	_, err := s.LeadService.ApplyValuation(c.Request().Context(), req.SessionID, store.Valuation{
		ValueEstimate:  req.ValueEstimate,
		RangeLow:       req.RangeLow,
		RangeHigh:      req.RangeHigh,
		RentalEstimate: req.RentalEstimate,
		Equity:         req.Equity,
		LTV:            req.LTV,
	})
	if err != nil {
		return writeError(c, apierrors.Wrap(err, apierrors.ErrCodeInternal, "failed to store valuation"))
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// GetLead returns the lead of a session and its events.
// GET /api/v1/leads/:sessionId
func (s *APIV1Service) GetLead(c echo.Context) error {
	sessionID := c.Param("sessionId")
	l, events, err := s.LeadService.GetLead(c.Request().Context(), sessionID)
	if err != nil {
		if errors.Is(err, lead.ErrUnknownSession) {
			return writeError(c, apierrors.NotFound("lead not found").WithContext("sessionId", sessionID))
		}
		return writeError(c, apierrors.Wrap(err, apierrors.ErrCodeInternal, "failed to load lead"))
	}

	resp := LeadResponse{Lead: lead.View(l), Events: make([]EventView, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, EventView{
			ID:        e.ID,
			Type:      e.Type,
			Payload:   e.Payload,
			CreatedTs: e.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func writeError(c echo.Context, apiErr *apierrors.APIError) error {
	if apiErr.HTTPStatus() >= http.StatusInternalServerError {
		slog.Error("api request failed",
			slog.String(observability.LogFieldRoute, c.Path()),
			slog.String("error", apiErr.Error()))
	}
	return c.JSON(apiErr.HTTPStatus(), apiErr.Body())
}

func tagSession(c echo.Context, sessionID string) {
	if reqCtx, ok := observability.FromContext(c.Request().Context()); ok {
		reqCtx.SetSession(sessionID, "")
	}
}
