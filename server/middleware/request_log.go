package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/officialmortgage/livbridge/server/internal/observability"
)

// RequestLog attaches an observability.RequestContext to every request, echoes the
// request id back in X-Request-ID, and records the request in metrics when it finishes.
func RequestLog(logger *slog.Logger, metrics *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}

			var reqCtx *observability.RequestContext
			if id := req.Header.Get(echo.HeaderXRequestID); id != "" {
				reqCtx = observability.NewRequestContextWithID(logger, id, route)
			} else {
				reqCtx = observability.NewRequestContext(logger, route)
			}
			c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))
			c.Response().Header().Set(echo.HeaderXRequestID, reqCtx.RequestID)

			err := next(c)
			if err != nil {
				// Let echo's error handler write the response so the status is final.
				c.Error(err)
			}

			status := c.Response().Status
			if metrics != nil {
				metrics.RecordRequest(route, status, reqCtx.Duration())
			}
			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.Int(observability.LogFieldStatus, status),
				slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
			}
			if err != nil {
				reqCtx.Error("request failed", err, attrs...)
			} else {
				reqCtx.Debug("request handled", attrs...)
			}
			return nil
		}
	}
}
