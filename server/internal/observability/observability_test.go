package observability

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics(10)
	m.RecordRequest("/voice/gather", http.StatusOK, 100*time.Millisecond)
	m.RecordRequest("/voice/gather", http.StatusOK, 300*time.Millisecond)
	m.RecordRequest("/sms", http.StatusInternalServerError, 50*time.Millisecond)
	m.RecordRateLimited()

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.RequestTotal)
	assert.Equal(t, int64(1), snap.RequestFailed)
	assert.Equal(t, int64(1), snap.RateLimited)
	require.Contains(t, snap.Routes, "/voice/gather")
	assert.Equal(t, int64(2), snap.Routes["/voice/gather"].RequestCount)
	assert.Equal(t, int64(200), snap.Routes["/voice/gather"].AverageDuration)
	assert.Equal(t, int64(1), snap.Routes["/sms"].ErrorCount)
	assert.Equal(t, int64(100), snap.P95Ms)

	m.Reset()
	assert.Zero(t, m.Snapshot().RequestTotal)
}

func TestMetrics_DurationWindow(t *testing.T) {
	m := NewMetrics(2)
	for i := 1; i <= 5; i++ {
		m.RecordRequest("/sms", http.StatusOK, time.Duration(i)*time.Second)
	}
	assert.Equal(t, int64(4000), m.Snapshot().P95Ms)
}

func TestRequestContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	reqCtx := NewRequestContextWithID(logger, "req-1", "/voice/gather")
	reqCtx.SetSession("CA123", "voice")
	ctx := WithRequestContext(context.Background(), reqCtx)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	got.Info("turn finished", slog.String(LogFieldOutcome, "continue"))

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"session_id":"CA123"`)
	assert.Contains(t, out, `"channel":"voice"`)
	assert.Contains(t, out, `"outcome":"continue"`)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
	assert.NotNil(t, LoggerFrom(context.Background()))
}
