package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	l := NewLimiter(2, 3, time.Minute)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		ok, _ := l.Reserve("a")
		require.True(t, ok, i)
	}
	ok, wait := l.Reserve("a")
	assert.False(t, ok)
	assert.Equal(t, 500*time.Millisecond, wait)

	// A rejected request does not consume the next token.
	clock = clock.Add(500 * time.Millisecond)
	ok, _ = l.Reserve("a")
	assert.True(t, ok)

	ok, _ = l.Reserve("b")
	assert.True(t, ok, "keys have separate buckets")
}

func TestLimiter_DropsIdleBuckets(t *testing.T) {
	l := NewLimiter(1, 1, time.Minute)
	clock := time.Now()
	l.now = func() time.Time { return clock }

	l.Reserve("a")
	l.Reserve("b")
	assert.Equal(t, 2, l.Len())

	clock = clock.Add(2 * time.Minute)
	l.Reserve("c")
	assert.Equal(t, 1, l.Len())
}

func TestRateLimit_Rejects(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 0.5, Burst: 1})(statusHandler(http.StatusOK))
	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/calculate", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1111").Code)
	w := send("10.0.0.1:2222")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":"COMMON_007","message":"rate limit exceeded"}`, w.Body.String())

	assert.Equal(t, http.StatusOK, send("10.0.0.2:1111").Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", ClientIP(req))
	req.RemoteAddr = "192.0.2.7"
	assert.Equal(t, "192.0.2.7", ClientIP(req))
}
