package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError(t *testing.T) {
	t.Run("status mapping", func(t *testing.T) {
		tests := []struct {
			err  *APIError
			want int
		}{
			{Unauthorized("no token"), http.StatusUnauthorized},
			{RateLimitExceeded("slow down"), http.StatusTooManyRequests},
			{InvalidArgument("sessionId is required"), http.StatusBadRequest},
			{NotFound("lead not found"), http.StatusNotFound},
			{ServiceUnavailable("store down"), http.StatusServiceUnavailable},
			{Wrap(assert.AnError, ErrCodeInternal, "boom"), http.StatusInternalServerError},
		}
		for _, tt := range tests {
			t.Run(string(tt.err.Code), func(t *testing.T) {
				assert.Equal(t, tt.want, tt.err.HTTPStatus())
			})
		}
	})

	t.Run("wrapped errors keep their code", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", InvalidArgument("bad"))
		assert.True(t, IsCode(err, ErrCodeInvalidArgument))
		assert.Equal(t, ErrCodeInvalidArgument, GetCodeFromError(err, ErrCodeInternal))
		assert.Equal(t, ErrCodeInternal, GetCodeFromError(assert.AnError, ErrCodeInternal))
	})

	t.Run("body hides the cause", func(t *testing.T) {
		err := From(assert.AnError)
		body := err.Body()
		assert.False(t, body.OK)
		assert.Equal(t, "internal error", body.Error)
		assert.ErrorIs(t, err, assert.AnError)
	})
}
