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

func TestMiddleware_CountsRequests(t *testing.T) {
	m := New("profile-service")
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, id := range []string{"a1", "b2"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/v1/session/documents/"+id, nil))
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues(http.MethodDelete, "/api/v1/session/documents/{documentId}", "204"))
	assert.Equal(t, float64(2), got)
}

func TestRecordStage(t *testing.T) {
	m := New("profile-service")

	m.RecordStage("generate", "", time.Second)
	m.RecordStage("generate", "UPSTREAM_ERROR", time.Second)
	m.RecordStage("generate", "UPSTREAM_ERROR", time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.stageTotal.WithLabelValues("generate", OutcomeSuccess, "")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.stageTotal.WithLabelValues("generate", OutcomeError, "UPSTREAM_ERROR")))
}

func TestSessionGauge(t *testing.T) {
	m := New("profile-service")

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded("expired")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessionsEnded.WithLabelValues("expired")))
}

func TestRecordTokenUsage(t *testing.T) {
	m := New("profile-service")

	m.RecordTokenUsage("profile", "", 1200, 800)
	m.RecordTokenUsage("profile", "", 0, 0)

	assert.Equal(t, float64(1200), testutil.ToFloat64(m.llmTokensTotal.WithLabelValues("profile", "in", "unknown")))
	assert.Equal(t, float64(800), testutil.ToFloat64(m.llmTokensTotal.WithLabelValues("profile", "out", "unknown")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New("profile-service")
	m.SessionStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "psyprofile_session_active")
}
