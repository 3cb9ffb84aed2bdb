package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/moldesc/internal/application/calculation"
	"github.com/turtacn/moldesc/internal/config"
	httpserver "github.com/turtacn/moldesc/internal/interfaces/http"
	"github.com/turtacn/moldesc/internal/interfaces/http/handlers"
	"github.com/turtacn/moldesc/pkg/errors"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := calculation.NewService(config.CalculatorConfig{NProc: 1, ConfID: -1, Quiet: true}, nil)
	srv := httptest.NewServer(httpserver.NewRouter(httpserver.RouterConfig{
		DescriptorHandler:  handlers.NewDescriptorHandler(1<<20, nil),
		CalculationHandler: handlers.NewCalculationHandler(svc, 1<<20, nil),
		HealthHandler:      handlers.NewHealthHandler("test"),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fastClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithRetryWait(time.Millisecond, 2*time.Millisecond)}, opts...)
	c, err := NewClient(url, opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	for _, u := range []string{"", "ftp://host", "://bad"} {
		_, err := NewClient(u)
		assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest), u)
	}
	c, err := NewClient("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.baseURL)
	assert.Same(t, c.Descriptors(), c.Descriptors())
	assert.Same(t, c.Calculations(), c.Calculations())
}

func TestClient_AgainstServer(t *testing.T) {
	srv := newAPIServer(t)
	c := fastClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	ds, err := c.Descriptors().List(ctx, "ringcount")
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "nRing", ds[0].Name)

	decoded, err := c.Descriptors().Decode(ctx, []map[string]any{{"name": "AtomCount", "args": map[string]any{"type": "C"}}})
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, "nC", decoded[0].Name)

	r, err := c.Calculations().Calculate(ctx, &CalculateRequest{
		Inputs:      []string{"CCO ethanol", "c1ccccc1"},
		Descriptors: []map[string]any{{"name": "RingCount"}},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.Equal(t, "ethanol", r.Rows[0].Name)
	assert.EqualValues(t, 1, r.Value(1, "nRing"))
	assert.Nil(t, r.Value(1, "missing"))
	assert.Nil(t, r.Value(5, "nRing"))

	_, err = c.Descriptors().Decode(ctx, []map[string]any{{"name": "NoSuch"}})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Code)
	assert.NotEmpty(t, apiErr.RequestID)

	// No run store behind this server.
	_, err = c.Calculations().ListRuns(ctx, 10, 0)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestCalculations_DeleteRun(t *testing.T) {
	id := uuid.New()
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, fastClient(t, srv.URL).Calculations().DeleteRun(context.Background(), id))
	assert.Equal(t, "DELETE /api/v1/runs/"+id.String(), got)
}

func TestCalculate_EmptyInput(t *testing.T) {
	c := fastClient(t, "http://localhost:1")
	_, err := c.Calculations().Calculate(context.Background(), &CalculateRequest{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeEmptyInput))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := fastClient(t, srv.URL, WithToken("secret"))
	require.NoError(t, c.Health(context.Background()))
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_GivesUpAfterRetryMax(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"COMMON_001","message":"internal error"}`))
	}))
	defer srv.Close()

	c := fastClient(t, srv.URL, WithRetryMax(1))
	err := c.Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, "COMMON_001", apiErr.Code)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	err := fastClient(t, srv.URL).Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "gone", apiErr.Message)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_RateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, fastClient(t, srv.URL).Health(context.Background()))
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fastClient(t, srv.URL).Health(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptions(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	c, err := NewClient("https://example.com",
		WithHTTPClient(hc),
		WithRetryMax(-1),
		WithRetryWait(time.Second, time.Millisecond),
		WithUserAgent("custom"),
		WithLogger(nil),
	)
	require.NoError(t, err)
	assert.Same(t, hc, c.httpClient)
	assert.Equal(t, 3, c.retryMax)
	assert.Equal(t, time.Second, c.retryWaitMin)
	assert.Equal(t, 5*time.Second, c.retryWaitMax)
	assert.Equal(t, "custom", c.userAgent)
	assert.NotNil(t, c.logger)
}

func TestAPIError_Error(t *testing.T) {
	e := &APIError{StatusCode: 404, Code: "CALC_001", Message: "run not found", Detail: "abc", RequestID: "r1"}
	assert.Equal(t, "moldesc: CALC_001 (HTTP 404): run not found: abc [request_id=r1]", e.Error())
	assert.False(t, e.IsRateLimited())
}
