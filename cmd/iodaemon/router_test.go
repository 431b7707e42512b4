package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstorrent/iobridge/internal/reload"
	"github.com/jstorrent/iobridge/internal/roots"
	"github.com/jstorrent/iobridge/internal/statsapi"
)

func newTestRouter(t *testing.T, token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	table := roots.NewTable()
	reloadHandlers := reload.New(table, "install-id", t.TempDir()+"/rpc-info.json")
	stats := statsapi.New(statsapi.NewCounters(), func() {})
	return buildRouter(token, table, reloadHandlers, stats)
}

func TestHealthBypassesAuth(t *testing.T) {
	router := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	router := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRouteAcceptsXJSTAuthHeader(t *testing.T) {
	router := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-JST-Auth", "secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRouteAcceptsBearerAuthHeader(t *testing.T) {
	router := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSReflectsAllowedOriginOnly(t *testing.T) {
	allowed := corsMiddleware([]string{"https://allowed.example"})
	router := gin.New()
	router.Use(allowed)
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://allowed.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "https://allowed.example", w.Header().Get("Access-Control-Allow-Origin"))

	req2 := httptest.NewRequest(http.MethodGet, "/x", nil)
	req2.Header.Set("Origin", "https://evil.example")
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)
	assert.Empty(t, w2.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightReturnsNoContent(t *testing.T) {
	router := gin.New()
	router.Use(corsMiddleware([]string{"https://allowed.example"}))
	router.OPTIONS("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCorsOriginsParsesEnvList(t *testing.T) {
	t.Setenv("JSTORRENT_DEV_ORIGINS", "http://a,http://b")
	origins := corsOrigins()
	require.Len(t, origins, 2)
	assert.Contains(t, origins, "http://a")
	assert.Contains(t, origins, "http://b")
}
