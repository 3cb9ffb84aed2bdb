package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(method, origin string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/calculate", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS(DefaultCORSConfig("https://lab.example.org"))(statusHandler(http.StatusMethodNotAllowed))

	req := corsRequest(http.MethodOptions, "https://LAB.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://LAB.example.org", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_SimpleRequests(t *testing.T) {
	h := CORS(DefaultCORSConfig("https://lab.example.org"))(statusHandler(http.StatusOK))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, corsRequest(http.MethodPost, "https://lab.example.org"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://lab.example.org", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Retry-After")

	for _, origin := range []string{"https://evil.example.org", ""} {
		w = httptest.NewRecorder()
		h.ServeHTTP(w, corsRequest(http.MethodPost, origin))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"), origin)
	}
}

func TestCORS_Wildcard(t *testing.T) {
	h := CORS(DefaultCORSConfig("*"))(statusHandler(http.StatusOK))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, corsRequest(http.MethodGet, "https://anywhere.test"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
