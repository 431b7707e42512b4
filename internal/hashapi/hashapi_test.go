package hashapi

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstorrent/iobridge/internal/roots"
)

func newTestRouter(t *testing.T) (*gin.Engine, string) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	table := roots.NewTable()
	table.Replace([]roots.Root{{Token: "root1", Path: dir}})

	h := New(table)
	r := gin.New()
	r.POST("/hash/sha1", h.BodySHA1)
	r.POST("/hash/sha256", h.BodySHA256)
	r.GET("/hash/sha1/*path", h.FileSHA1)
	r.GET("/hash/sha256/*path", h.FileSHA256)
	return r, dir
}

func TestBodySHA1(t *testing.T) {
	r, _ := newTestRouter(t)
	body := []byte("the quick brown fox")
	want := sha1.Sum(body)

	req := httptest.NewRequest(http.MethodPost, "/hash/sha1", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, want[:], w.Body.Bytes())
}

func TestBodySHA256(t *testing.T) {
	r, _ := newTestRouter(t)
	body := []byte("the quick brown fox")
	want := sha256.Sum256(body)

	req := httptest.NewRequest(http.MethodPost, "/hash/sha256", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, want[:], w.Body.Bytes())
}

func TestFileSHA1OverFullFile(t *testing.T) {
	r, dir := newTestRouter(t)
	content := bytes.Repeat([]byte("a"), 20000) // spans several 8KiB chunks
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.bin"), content, 0o644))
	want := sha1.Sum(content)

	req := httptest.NewRequest(http.MethodGet, "/hash/sha1/big.bin?rootKey=root1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, hexString(want[:]), w.Body.String())
}

func TestFileSHA256OverRange(t *testing.T) {
	r, dir := newTestRouter(t)
	content := []byte("0123456789abcdef")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "range.bin"), content, 0o644))
	want := sha256.Sum256(content[4:12])

	req := httptest.NewRequest(http.MethodGet, "/hash/sha256/range.bin?rootKey=root1&offset=4&length=8", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, hexString(want[:]), w.Body.String())
}

func TestFileHashMissingFile(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/hash/sha1/missing.bin?rootKey=root1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
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
