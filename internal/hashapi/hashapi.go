// Package hashapi implements the hashing HTTP surface of spec §4.10:
// SHA-1/SHA-256 over a request body or over a byte range of a rooted
// file. Grounded on the chunked-read-while-remaining loop of
// original_source/native-host/io-daemon/src/hashing.rs.
package hashapi

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jstorrent/iobridge/internal/fileapi"
	"github.com/jstorrent/iobridge/internal/roots"
)

// chunkSize matches the 8 KiB chunked-read loop of the original daemon.
const chunkSize = 8192

// Handlers wires the roots table into each endpoint.
type Handlers struct {
	Roots *roots.Table
}

func New(table *roots.Table) *Handlers {
	return &Handlers{Roots: table}
}

// BodySHA1 handles POST /hash/sha1: raw digest of the request body.
func (h *Handlers) BodySHA1(c *gin.Context) {
	bodyDigest(c, sha1.New())
}

// BodySHA256 handles POST /hash/sha256: raw digest of the request body.
func (h *Handlers) BodySHA256(c *gin.Context) {
	bodyDigest(c, sha256.New())
}

func bodyDigest(c *gin.Context, sum hash.Hash) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, fileapi.MaxBodySize)
	if _, err := io.Copy(sum, c.Request.Body); err != nil {
		c.String(http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", sum.Sum(nil))
}

// FileSHA1 handles GET /hash/sha1/{*path}: hex digest of a rooted file range.
func (h *Handlers) FileSHA1(c *gin.Context) {
	h.fileDigest(c, sha1.New())
}

// FileSHA256 handles GET /hash/sha256/{*path}: hex digest of a rooted file range.
func (h *Handlers) FileSHA256(c *gin.Context) {
	h.fileDigest(c, sha256.New())
}

func (h *Handlers) fileDigest(c *gin.Context, sum hash.Hash) {
	rootKey := c.Query("rootKey")
	path := c.Param("path")
	abs, err := h.Roots.Resolve(rootKey, path)
	if err != nil {
		if errors.Is(err, roots.ErrUnknownRoot) {
			c.Status(http.StatusForbidden)
		} else {
			c.String(http.StatusBadRequest, err.Error())
		}
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

	if v := c.Query("offset"); v != "" {
		offset, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.String(http.StatusBadRequest, "invalid offset")
			return
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
	}

	remaining := int64(-1) // -1 means read to EOF
	if v := c.Query("length"); v != "" {
		length, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.String(http.StatusBadRequest, "invalid length")
			return
		}
		remaining = length
	}

	buf := make([]byte, chunkSize)
	for remaining != 0 {
		readSize := chunkSize
		if remaining > 0 && remaining < int64(readSize) {
			readSize = int(remaining)
		}
		n, err := f.Read(buf[:readSize])
		if n > 0 {
			sum.Write(buf[:n])
			if remaining > 0 {
				remaining -= int64(n)
			}
		}
		if err != nil {
			break
		}
	}

	c.String(http.StatusOK, hex.EncodeToString(sum.Sum(nil)))
}
