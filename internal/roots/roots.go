// Package roots implements the root-token authorization scheme of spec
// §4.8: possession of a root token is itself the authorization to operate
// under that root's filesystem path. Grounded on
// original_source/native-host/io-daemon/src/files.rs's validate_path,
// deliberately simpler than bridge/handlers/filebrowser/fsroot's
// os.Root/symlink-canonicalizing approach: no further canonicalization is
// performed beyond the lexical checks below.
package roots

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Root is one authorized filesystem root: a bearer token mapped to an
// absolute base path.
type Root struct {
	Token string
	Path  string
}

// Table holds the current set of authorized roots, swapped atomically by
// internal/reload on each rpc-info.json reload.
type Table struct {
	mu    sync.RWMutex
	roots map[string]string // token -> base path
}

// NewTable returns an empty root table.
func NewTable() *Table {
	return &Table{roots: make(map[string]string)}
}

// Replace atomically swaps the entire root set, used by internal/reload.
func (t *Table) Replace(roots []Root) {
	next := make(map[string]string, len(roots))
	for _, r := range roots {
		next[r.Token] = r.Path
	}
	t.mu.Lock()
	t.roots = next
	t.mu.Unlock()
}

// ErrUnknownRoot is returned when a token matches no configured root.
var ErrUnknownRoot = fmt.Errorf("roots: unknown root token")

// ErrPathTraversal is returned when the requested path contains a ".."
// segment, regardless of where it appears.
var ErrPathTraversal = fmt.Errorf("roots: path traversal rejected")

// Resolve looks up token and, if found, returns the absolute filesystem
// path for the caller-supplied relative path under that root. Possession
// of a valid token is the entire authorization check; there is no
// per-path allow list beyond the lexical traversal rejection below.
//
// The algorithm, in order: reject any path containing a ".." segment;
// replace backslashes with forward slashes (Windows-originated paths sent
// by the browser extension); trim a single leading slash; filepath.Join
// against the root's base path. No symlink resolution is performed: a
// root's contents are trusted once the token is known.
func (t *Table) Resolve(token, path string) (string, error) {
	t.mu.RLock()
	base, ok := t.roots[token]
	t.mu.RUnlock()
	if !ok {
		return "", ErrUnknownRoot
	}

	if containsDotDot(path) {
		return "", ErrPathTraversal
	}

	normalized := strings.ReplaceAll(path, "\\", "/")
	normalized = strings.TrimPrefix(normalized, "/")

	return filepath.Join(base, normalized), nil
}

func containsDotDot(path string) bool {
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}
