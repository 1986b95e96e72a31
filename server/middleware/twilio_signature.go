package middleware

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/officialmortgage/livbridge/plugin/twilio"
)

// TwilioSignature rejects webhook requests whose X-Twilio-Signature does not match.
// The signed url is the public instance url followed by the request uri, since the
// server usually sits behind a proxy that rewrites the host.
func TwilioSignature(authToken, instanceURL string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if err := req.ParseForm(); err != nil {
				return c.NoContent(http.StatusBadRequest)
			}
			// Query parameters are signed as part of the url, so only the body counts here.
			params := req.PostForm

			fullURL := instanceURL + req.URL.RequestURI()
			if !twilio.ValidateSignature(authToken, fullURL, params, req.Header.Get(twilio.SignatureHeader)) {
				slog.Warn("rejected webhook with invalid signature",
					slog.String("path", req.URL.Path),
					slog.String("remote", c.RealIP()),
				)
				return c.NoContent(http.StatusForbidden)
			}
			return next(c)
		}
	}
}
