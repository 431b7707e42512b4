// Package statsapi implements the stats and control HTTP surface of spec
// §4.12, grounded on the atomic inFlight/lastHit counter pattern of
// server/cmd/root.go.
package statsapi

import (
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Counters holds the process-wide atomic counters exposed by GET /stats.
// Every field is updated by the component that owns the corresponding
// resource (registry, wsproto) rather than by this package.
type Counters struct {
	TCPSockets     atomic.Int64
	PendingConnect atomic.Int64
	UDPSockets     atomic.Int64
	TCPServers     atomic.Int64
	WSConnections  atomic.Int64
	BytesSent      atomic.Int64
	BytesReceived  atomic.Int64

	startedAt time.Time
}

func NewCounters() *Counters {
	return &Counters{startedAt: time.Now()}
}

type statsResponse struct {
	TCPSockets     int64 `json:"tcp_sockets"`
	PendingConnect int64 `json:"pending_connects"`
	UDPSockets     int64 `json:"udp_sockets"`
	TCPServers     int64 `json:"tcp_servers"`
	WSConnections  int64 `json:"ws_connections"`
	BytesSent      int64 `json:"bytes_sent"`
	BytesReceived  int64 `json:"bytes_received"`
	UptimeSeconds  int64 `json:"uptime_seconds"`
}

// Handlers wires the counters and shutdown hook into the endpoints.
type Handlers struct {
	Counters *Counters
	Shutdown func()
}

func New(counters *Counters, shutdown func()) *Handlers {
	return &Handlers{Counters: counters, Shutdown: shutdown}
}

// Stats handles GET /stats.
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, statsResponse{
		TCPSockets:     h.Counters.TCPSockets.Load(),
		PendingConnect: h.Counters.PendingConnect.Load(),
		UDPSockets:     h.Counters.UDPSockets.Load(),
		TCPServers:     h.Counters.TCPServers.Load(),
		WSConnections:  h.Counters.WSConnections.Load(),
		BytesSent:      h.Counters.BytesSent.Load(),
		BytesReceived:  h.Counters.BytesReceived.Load(),
		UptimeSeconds:  int64(time.Since(h.Counters.startedAt).Seconds()),
	})
}

// Ping handles POST /control/ping.
func (h *Handlers) Ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

// ControlShutdown handles POST /control/shutdown: immediate exit per spec §4.12.
func (h *Handlers) ControlShutdown(c *gin.Context) {
	c.Status(http.StatusOK)
	if h.Shutdown != nil {
		h.Shutdown()
		return
	}
	os.Exit(0)
}

// Health handles GET /health, unauthenticated per spec §6.
func Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
