package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/planbot/pkg/metrics"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth_AlwaysOK(t *testing.T) {
	s := NewServer("127.0.0.1", 0, nil)
	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestReady_FollowsFlagAndChecks(t *testing.T) {
	s := NewServer("127.0.0.1", 0, nil)
	channelsUp := false
	s.AddCheck("channels", func(context.Context) error {
		if !channelsUp {
			return errors.New("no channel running")
		}
		return nil
	})

	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/ready").Code)

	s.SetReady(true)
	rec := get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no channel running")

	channelsUp = true
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/ready").Code)
}

func TestMetrics_ServesCollectorRegistry(t *testing.T) {
	m := metrics.New()
	m.InboundMessages.WithLabelValues("cli").Inc()

	s := NewServer("127.0.0.1", 0, m.Registry())
	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `planbot_inbound_messages_total{channel="cli"} 1`))
}

func TestMetrics_NotMountedWithoutGatherer(t *testing.T) {
	s := NewServer("127.0.0.1", 0, nil)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/metrics").Code)
}
