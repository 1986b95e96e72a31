package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/officialmortgage/livbridge/plugin/twilio"
	"github.com/officialmortgage/livbridge/server/internal/observability"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func TestRateLimiter(t *testing.T) {
	t.Run("burst then reject per key", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 2)
		assert.True(t, rl.Allow("+15551230000"))
		assert.True(t, rl.Allow("+15551230000"))
		assert.False(t, rl.Allow("+15551230000"))
		assert.True(t, rl.Allow("+15559990000"))
	})

	t.Run("prune drops idle keys", func(t *testing.T) {
		rl := NewRateLimiter(10, 20)
		now := time.Now()
		rl.now = func() time.Time { return now }
		rl.Allow("a")
		now = now.Add(time.Hour)
		rl.Allow("b")

		assert.Equal(t, 1, rl.Prune(30*time.Minute))
		assert.Equal(t, 1, rl.Len())
	})

	t.Run("middleware answers 429", func(t *testing.T) {
		e := echo.New()
		metrics := observability.NewMetrics(10)
		e.POST("/sms", okHandler, RateLimit(NewRateLimiter(0.001, 1), nil, metrics))

		form := url.Values{"From": {"+15551230000"}, "Body": {"hi"}}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, postForm("/sms", form))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, postForm("/sms", form))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, int64(1), metrics.Snapshot().RateLimited)
	})
}

func TestTwilioSignature(t *testing.T) {
	const token = "secret-token"
	const base = "https://liv.example.com"

	e := echo.New()
	e.POST("/voice/gather", okHandler, TwilioSignature(token, base))

	form := url.Values{"CallSid": {"CA123"}, "SpeechResult": {"hello"}}

	t.Run("valid signature passes", func(t *testing.T) {
		req := postForm("/voice/gather", form)
		req.Header.Set(twilio.SignatureHeader, twilio.Signature(token, base+"/voice/gather", form))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("query string is part of the signed url", func(t *testing.T) {
		req := postForm("/voice/gather?attempt=2", form)
		req.Header.Set(twilio.SignatureHeader, twilio.Signature(token, base+"/voice/gather?attempt=2", form))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing or wrong signature is forbidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, postForm("/voice/gather", form))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		req := postForm("/voice/gather", form)
		req.Header.Set(twilio.SignatureHeader, twilio.Signature("other", base+"/voice/gather", form))
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestBearerAuth(t *testing.T) {
	const secret = "marketplace-secret"
	sign := func(t *testing.T, method jwt.SigningMethod, key any) string {
		t.Helper()
		token := jwt.NewWithClaims(method, jwt.MapClaims{
			"sub": "marketplace",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		s, err := token.SignedString(key)
		require.NoError(t, err)
		return s
	}

	e := echo.New()
	e.POST("/events", func(c echo.Context) error {
		claims, ok := c.Get(ClaimsContextKey).(jwt.MapClaims)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.String(http.StatusOK, claims["sub"].(string))
	}, BearerAuth(secret))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret)), http.StatusOK},
		{"lowercase scheme", "bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret)), http.StatusOK},
		{"wrong secret", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("nope")), http.StatusUnauthorized},
		{"wrong algorithm", "Bearer " + sign(t, jwt.SigningMethodHS512, []byte(secret)), http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"not a bearer", "Basic abc", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/events", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "marketplace", rec.Body.String())
			}
		})
	}

	t.Run("empty secret disables the check", func(t *testing.T) {
		e := echo.New()
		e.POST("/events", okHandler, BearerAuth(""))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequestLog(t *testing.T) {
	metrics := observability.NewMetrics(10)
	e := echo.New()
	e.Use(RequestLog(nil, metrics))
	e.GET("/health", func(c echo.Context) error {
		reqCtx, ok := observability.FromContext(c.Request().Context())
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.String(http.StatusOK, reqCtx.RequestID)
	})
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream")
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-42")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Body.String())
	assert.Equal(t, "req-42", rec.Header().Get(echo.HeaderXRequestID))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(2), snap.RequestTotal)
	assert.Equal(t, int64(1), snap.RequestFailed)
	assert.Equal(t, int64(1), snap.Routes["/health"].RequestCount)
}
