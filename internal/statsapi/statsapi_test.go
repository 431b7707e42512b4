package statsapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsReportsCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counters := NewCounters()
	counters.TCPSockets.Store(3)
	counters.UDPSockets.Store(1)
	counters.BytesSent.Store(1024)

	h := New(counters, nil)
	r := gin.New()
	r.GET("/stats", h.Stats)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tcp_sockets":3`)
	assert.Contains(t, w.Body.String(), `"udp_sockets":1`)
	assert.Contains(t, w.Body.String(), `"bytes_sent":1024`)
}

func TestPing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(NewCounters(), nil)
	r := gin.New()
	r.POST("/control/ping", h.Ping)

	req := httptest.NewRequest(http.MethodPost, "/control/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestControlShutdownInvokesHook(t *testing.T) {
	gin.SetMode(gin.TestMode)
	called := make(chan struct{}, 1)
	h := New(NewCounters(), func() { called <- struct{}{} })

	r := gin.New()
	r.POST("/control/shutdown", h.ControlShutdown)

	req := httptest.NewRequest(http.MethodPost, "/control/shutdown", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	select {
	case <-called:
	default:
		t.Fatal("expected shutdown hook to be invoked")
	}
}

func TestHealthIsUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", Health)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
