package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/moldesc/internal/testutil"
)

func statusHandler(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(code) }
}

func TestRequestLogging_Levels(t *testing.T) {
	cases := []struct {
		code  int
		level string
	}{
		{http.StatusOK, "info"},
		{http.StatusBadRequest, "warn"},
		{http.StatusInternalServerError, "error"},
	}
	for _, tc := range cases {
		log := testutil.NewMockLogger()
		h := RequestLogging(log, DefaultLoggingConfig())(statusHandler(tc.code))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/descriptors", nil))
		assert.Equal(t, 1, log.CountLevel(tc.level), tc.code)
	}
}

func TestRequestLogging_SkipAndSlow(t *testing.T) {
	log := testutil.NewMockLogger()
	cfg := LoggingConfig{SkipPaths: []string{"/healthz"}, SlowThreshold: time.Nanosecond}
	h := RequestLogging(log, cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, log.Messages())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.True(t, log.HasMessage("HTTP request completed (slow)"))
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "mw"}, nil)
	require.NoError(t, err)
	m := prometheus.NewAppMetrics(c)

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/runs/{id}", statusHandler(http.StatusNotFound))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/runs/abc", nil))

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `mw_http_requests_total{method="GET",path="/runs/{id}",status_code="404"} 1`)
}
