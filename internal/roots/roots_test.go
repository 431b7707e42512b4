package roots

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable() *Table {
	t := NewTable()
	t.Replace([]Root{{Token: "downloads", Path: "/home/user/Downloads"}})
	return t
}

func TestResolveSuccess(t *testing.T) {
	table := newTestTable()
	got, err := table.Resolve("downloads", "movie/part1.mkv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/user/Downloads", "movie/part1.mkv"), got)
}

func TestResolveUnknownToken(t *testing.T) {
	table := newTestTable()
	_, err := table.Resolve("nope", "file.txt")
	assert.ErrorIs(t, err, ErrUnknownRoot)
}

func TestResolveRejectsDotDot(t *testing.T) {
	table := newTestTable()
	cases := []string{
		"../etc/passwd",
		"a/../../b",
		"a/b/..",
		"..",
	}
	for _, p := range cases {
		_, err := table.Resolve("downloads", p)
		assert.ErrorIsf(t, err, ErrPathTraversal, "path %q should be rejected", p)
	}
}

func TestResolveNormalizesBackslashes(t *testing.T) {
	table := newTestTable()
	got, err := table.Resolve("downloads", `sub\dir\file.txt`)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/user/Downloads", "sub/dir/file.txt"), got)
}

func TestResolveTrimsLeadingSlash(t *testing.T) {
	table := newTestTable()
	got, err := table.Resolve("downloads", "/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/user/Downloads", "file.txt"), got)
}

func TestReplaceSwapsAtomically(t *testing.T) {
	table := NewTable()
	table.Replace([]Root{{Token: "a", Path: "/a"}})
	_, err := table.Resolve("a", "x")
	require.NoError(t, err)

	table.Replace([]Root{{Token: "b", Path: "/b"}})
	_, err = table.Resolve("a", "x")
	assert.ErrorIs(t, err, ErrUnknownRoot)

	got, err := table.Resolve("b", "x")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/b", "x"), got)
}
