// Package fileapi implements the file HTTP surface of spec §4.9: range
// read/write, stat, list, delete, truncate, ensure-dir, all authorized
// through internal/roots. Grounded on the thin-handler-over-service-
// function layering of server/filebrowser/handlers.go, adapted away from
// that package's users/sharing model to the flatter root+path surface of
// original_source/native-host/io-daemon/src/files.rs.
package fileapi

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jstorrent/iobridge/internal/roots"
)

// MaxBodySize is the 64 MiB body limit of spec §4.9.
const MaxBodySize = 64 * 1024 * 1024

// Handlers wires the roots table into each endpoint.
type Handlers struct {
	Roots *roots.Table
}

func New(table *roots.Table) *Handlers {
	return &Handlers{Roots: table}
}

func (h *Handlers) resolve(c *gin.Context, rootKey string) (string, bool) {
	pathB64 := c.GetHeader("X-Path-Base64")
	raw, err := base64.StdEncoding.DecodeString(pathB64)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid X-Path-Base64 header")
		return "", false
	}
	abs, err := h.Roots.Resolve(rootKey, string(raw))
	if err != nil {
		switch {
		case errors.Is(err, roots.ErrUnknownRoot):
			c.Status(http.StatusForbidden)
		default:
			c.String(http.StatusBadRequest, err.Error())
		}
		return "", false
	}
	return abs, true
}

// Read handles GET /read/{rootKey}.
func (h *Handlers) Read(c *gin.Context) {
	abs, ok := h.resolve(c, c.Param("rootKey"))
	if !ok {
		return
	}

	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			c.Status(http.StatusNotFound)
			return
		}
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	offset := int64(0)
	if v := c.GetHeader("X-Offset"); v != "" {
		offset, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.String(http.StatusBadRequest, "invalid X-Offset")
			return
		}
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/octet-stream")

	if v := c.GetHeader("X-Length"); v != "" {
		length, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.String(http.StatusBadRequest, "invalid X-Length")
			return
		}
		_, _ = io.CopyN(c.Writer, f, length)
		return
	}
	_, _ = io.Copy(c.Writer, f)
}

// Write handles POST /write/{rootKey}.
func (h *Handlers) Write(c *gin.Context) {
	abs, ok := h.resolve(c, c.Param("rootKey"))
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodySize)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		c.String(http.StatusInsufficientStorage, err.Error())
		return
	}

	f, err := os.OpenFile(abs, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		c.String(http.StatusInsufficientStorage, err.Error())
		return
	}
	defer f.Close()

	offset := int64(0)
	if v := c.GetHeader("X-Offset"); v != "" {
		offset, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.String(http.StatusBadRequest, "invalid X-Offset")
			return
		}
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := f.Write(body); err != nil {
		c.String(http.StatusInsufficientStorage, err.Error())
		return
	}

	// The write above always lands; X-Expected-SHA1 only selects the
	// response status, it never gates the write itself.
	if expected := c.GetHeader("X-Expected-SHA1"); expected != "" {
		sum := sha1.Sum(body)
		if hexString(sum[:]) != expected {
			c.Status(http.StatusConflict)
			return
		}
	}

	c.Status(http.StatusOK)
}

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

type ensureDirRequest struct {
	RootKey string `json:"rootKey"`
	Path    string `json:"path"`
}

// EnsureDir handles POST /files/ensure_dir.
func (h *Handlers) EnsureDir(c *gin.Context) {
	var req ensureDirRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	abs, err := h.Roots.Resolve(req.RootKey, req.Path)
	if err != nil {
		respondRootErr(c, err)
		return
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		c.String(http.StatusInsufficientStorage, err.Error())
		return
	}
	c.Status(http.StatusOK)
}

type statResponse struct {
	Size        int64 `json:"size"`
	MtimeMs     int64 `json:"mtime"`
	IsDirectory bool  `json:"is_directory"`
	IsFile      bool  `json:"is_file"`
}

// Stat handles GET /ops/stat.
func (h *Handlers) Stat(c *gin.Context) {
	abs, ok := h.resolveQuery(c)
	if !ok {
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			c.Status(http.StatusNotFound)
			return
		}
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, statResponse{
		Size:        info.Size(),
		MtimeMs:     info.ModTime().UnixMilli(),
		IsDirectory: info.IsDir(),
		IsFile:      !info.IsDir(),
	})
}

// List handles GET /ops/list.
func (h *Handlers) List(c *gin.Context) {
	abs, ok := h.resolveQuery(c)
	if !ok {
		return
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			c.Status(http.StatusNotFound)
			return
		}
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	c.JSON(http.StatusOK, names)
}

// Delete handles POST /ops/delete.
func (h *Handlers) Delete(c *gin.Context) {
	var req ensureDirRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	abs, err := h.Roots.Resolve(req.RootKey, req.Path)
	if err != nil {
		respondRootErr(c, err)
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			c.Status(http.StatusNotFound)
			return
		}
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	if info.IsDir() {
		err = os.RemoveAll(abs)
	} else {
		err = os.Remove(abs)
	}
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Status(http.StatusOK)
}

type truncateRequest struct {
	RootKey string `json:"rootKey"`
	Path    string `json:"path"`
	Length  int64  `json:"length"`
}

// Truncate handles POST /ops/truncate.
func (h *Handlers) Truncate(c *gin.Context) {
	var req truncateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	abs, err := h.Roots.Resolve(req.RootKey, req.Path)
	if err != nil {
		respondRootErr(c, err)
		return
	}
	if err := os.Truncate(abs, req.Length); err != nil {
		if os.IsNotExist(err) {
			c.Status(http.StatusNotFound)
			return
		}
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) resolveQuery(c *gin.Context) (string, bool) {
	rootKey := c.Query("rootKey")
	path := c.Query("path")
	abs, err := h.Roots.Resolve(rootKey, path)
	if err != nil {
		respondRootErr(c, err)
		return "", false
	}
	return abs, true
}

func respondRootErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, roots.ErrUnknownRoot):
		c.Status(http.StatusForbidden)
	default:
		c.String(http.StatusBadRequest, err.Error())
	}
}
