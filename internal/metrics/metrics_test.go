package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Counters(t *testing.T) {
	m := New()

	m.SubjectScored("health", "fallback", 58)
	m.SubjectScored("health", "fallback", 72)
	m.SubjectScored("lead", "enriched", 81)
	m.SubjectFailed("collection")
	m.AIUnavailable("timeout")
	m.AlertRaised("health")
	m.FollowUpFailed()
	m.BatchStarted()
	m.WriteBackFailed(3)
	m.WriteBackFailed(0)
	m.ObservePipeline(150 * time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.subjectsScored.WithLabelValues("health", "fallback")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.subjectsScored.WithLabelValues("lead", "enriched")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.subjectErrors.WithLabelValues("collection")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.aiUnavailable.WithLabelValues("timeout")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.alerts.WithLabelValues("health")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.followUpFailures), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.batchRuns), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.writeBackFailures), 0)
}

func TestManager_Handler(t *testing.T) {
	m := New()
	m.AlertRaised("lead")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `crm_scoring_alerts_total{profile="lead"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestManager_NilSafe(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() {
		m.SubjectScored("lead", "fallback", 10)
		m.SubjectFailed("invalid")
		m.AIUnavailable("disabled")
		m.AlertRaised("lead")
		m.FollowUpFailed()
		m.ObservePipeline(time.Second)
		m.BatchStarted()
		m.WriteBackFailed(1)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
