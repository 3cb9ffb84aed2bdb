package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/moldesc/internal/application/calculation"
	"github.com/turtacn/moldesc/internal/config"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/moldesc/internal/interfaces/http/handlers"
	"github.com/turtacn/moldesc/internal/interfaces/http/middleware"
)

func newTestRouter(t *testing.T) (http.Handler, prometheus.MetricsCollector) {
	t.Helper()
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "api"}, nil)
	require.NoError(t, err)
	m := prometheus.NewAppMetrics(c)
	svc := calculation.NewService(config.CalculatorConfig{NProc: 1, ConfID: -1, Quiet: true}, nil, calculation.WithMetrics(m))

	return NewRouter(RouterConfig{
		DescriptorHandler:  handlers.NewDescriptorHandler(1<<20, nil),
		CalculationHandler: handlers.NewCalculationHandler(svc, 1<<20, nil),
		HealthHandler:      handlers.NewHealthHandler("test"),
		Logger:             logging.NewNopLogger(),
		Metrics:            m,
		MetricsCollector:   c,
	}), c
}

func TestRouter_Routes(t *testing.T) {
	r, _ := newTestRouter(t)
	cases := []struct {
		method, path, body string
		code               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/v1/descriptors", "", http.StatusOK},
		{http.MethodPost, "/api/v1/descriptors/decode", `{"descriptors":[{"name":"RingCount"}]}`, http.StatusOK},
		{http.MethodPost, "/api/v1/calculate", `{"inputs":["CCO"],"descriptors":[{"name":"RingCount"}]}`, http.StatusOK},
		// No store configured.
		{http.MethodGet, "/api/v1/runs", "", http.StatusServiceUnavailable},
		{http.MethodDelete, "/api/v1/runs/0b9f4c55-6d1e-4c5e-9c53-2a3a7c1e9f01", "", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/nope", "", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/calculate", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		var body io.Reader
		if tc.body != "" {
			body = strings.NewReader(tc.body)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, body))
		assert.Equal(t, tc.code, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRouter_CalculateEndToEnd(t *testing.T) {
	r, c := newTestRouter(t)
	w := httptest.NewRecorder()
	body := `{"inputs":["c1ccccc1","C1CC"],"descriptors":[{"name":"RingCount"},{"name":"AtomCount","args":{"type":"Aromatic"}}]}`
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/calculate", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"descriptors":["nRing","nAromAtom"]`)
	assert.Contains(t, w.Body.String(), `"values":[1,6]`)
	assert.Contains(t, w.Body.String(), `"parse_error":`)

	mw := httptest.NewRecorder()
	c.Handler().ServeHTTP(mw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, mw.Body.String(), `api_http_requests_total{method="POST",path="/api/v1/calculate",status_code="200"} 1`)
	assert.Contains(t, mw.Body.String(), `api_runs_total{status="success"} 1`)
}

func TestRouter_CalculateRateLimit(t *testing.T) {
	svc := calculation.NewService(config.CalculatorConfig{NProc: 1, ConfID: -1, Quiet: true}, nil)
	r := NewRouter(RouterConfig{
		DescriptorHandler:  handlers.NewDescriptorHandler(1<<20, nil),
		CalculationHandler: handlers.NewCalculationHandler(svc, 1<<20, nil),
		CalculateRateLimit: &middleware.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 1},
		CORSOrigins:        []string{"https://lab.example.org"},
	})
	send := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.RemoteAddr = "198.51.100.4:4000"
		req.Header.Set("Origin", "https://lab.example.org")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	body := `{"inputs":["C"],"descriptors":[{"name":"RingCount"}]}`

	assert.Equal(t, http.StatusOK, send(http.MethodPost, "/api/v1/calculate", body).Code)
	w := send(http.MethodPost, "/api/v1/calculate", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "https://lab.example.org", w.Header().Get("Access-Control-Allow-Origin"))

	// Only calculation is throttled.
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, send(http.MethodGet, "/api/v1/descriptors", "").Code)
	}
}

func TestRouter_NilHandlers(t *testing.T) {
	r := NewRouter(RouterConfig{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	r, _ := newTestRouter(t)
	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0, ShutdownTimeout: time.Second}, r, nil)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}
