package replica

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

func exerciseFS(t *testing.T, r FS) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, r.Write(ctx, "doc/a.xml", []byte("<a/>")))
	require.NoError(t, r.Write(ctx, "doc/deep/b.xml.deleted", MarkerContent(time.Now())))
	require.NoError(t, r.Write(ctx, "top.txt", []byte("t")))

	entries, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc/a.xml", "doc/deep/b.xml.deleted", "top.txt"}, names(entries))

	data, err := r.Read(ctx, "doc/a.xml")
	require.NoError(t, err)
	assert.Equal(t, "<a/>", string(data))

	require.NoError(t, r.Write(ctx, "doc/a.xml", []byte("<b/>")))
	entry, err := r.Stat(ctx, "doc/a.xml")
	require.NoError(t, err)
	assert.Equal(t, int64(4), entry.Size)
	assert.Equal(t, "doc/a.xml", entry.Name)

	require.NoError(t, r.Remove(ctx, "doc/a.xml"))
	_, err = r.Stat(ctx, "doc/a.xml")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = r.Read(ctx, "doc/a.xml")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorIs(t, r.Remove(ctx, "doc/a.xml"), fs.ErrNotExist)
}

func TestBillyMemFS(t *testing.T) {
	r := NewBillyFS(memfs.New())
	exerciseFS(t, r)

	err := r.SetModTime(context.Background(), "top.txt", time.Now())
	assert.ErrorIs(t, err, ErrModTimeUnsupported)
}

func TestBillyOSFS(t *testing.T) {
	dir := t.TempDir()
	r, err := NewOSFS(dir)
	require.NoError(t, err)
	exerciseFS(t, r)

	ctx := context.Background()
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.SetModTime(ctx, "top.txt", when))

	entry, err := r.Stat(ctx, "top.txt")
	require.NoError(t, err)
	assert.True(t, entry.ModTime.Equal(when), "got %v", entry.ModTime)

	info, err := os.Stat(filepath.Join(dir, "top.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(when))
}

func TestBillyOSFSStaysInsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "replica")
	r, err := NewOSFS(root)
	require.NoError(t, err)

	require.NoError(t, r.Write(context.Background(), "../escape.txt", []byte("x")))
	_, err = os.Stat(filepath.Join(parent, "escape.txt"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = os.Stat(filepath.Join(root, "escape.txt"))
	assert.NoError(t, err)
}

func TestSplitMarker(t *testing.T) {
	logical, deleted := SplitMarker("doc/a.xml.deleted")
	assert.Equal(t, "doc/a.xml", logical)
	assert.True(t, deleted)

	logical, deleted = SplitMarker("doc/a.xml")
	assert.Equal(t, "doc/a.xml", logical)
	assert.False(t, deleted)

	logical, deleted = SplitMarker(".deleted")
	assert.Equal(t, ".deleted", logical)
	assert.False(t, deleted)

	rec := Record(Entry{Name: "v.txt.deleted", Size: 3})
	assert.Equal(t, "v.txt", rec.Path)
	assert.True(t, rec.Deleted)
	assert.Equal(t, "v.txt.deleted", FileName(rec))
}
