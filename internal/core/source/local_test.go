package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"book.pdf":            "%PDF-",
		"notes.txt":           "notes",
		"readme.md":           "# readme",
		"novel.epub":          "zip",
		"report.docx":         "docx",
		"ignored.jpg":         "jpeg",
		"ignored.csv":         "a,b",
		"sub/dir/deep.txt":    "deep",
		".hidden/secret.txt":  "secret",
		"sub/.cache/tmp.txt":  "cache",
		"sub/UPPER.TXT":       "upper",
	}
	for rel, body := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

func TestLocalSourceListsSupportedFiles(t *testing.T) {
	src := NewLocalSource(seedTree(t))
	refs, err := src.List(context.Background())
	require.NoError(t, err)

	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	sort.Strings(names)

	assert.Equal(t, []string{
		"UPPER.TXT", "book.pdf", "deep.txt", "notes.txt", "novel.epub", "readme.md", "report.docx",
	}, names)

	for _, r := range refs {
		_, err := os.Stat(r.Path)
		assert.NoError(t, err, "every ref must point at a readable local path")
	}
	require.NoError(t, src.Close())
}

func TestLocalSourceEmptyDir(t *testing.T) {
	src := NewLocalSource(t.TempDir())
	refs, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestLocalSourceMissingDir(t *testing.T) {
	src := NewLocalSource(filepath.Join(t.TempDir(), "missing"))
	_, err := src.List(context.Background())
	require.Error(t, err)
}

func TestLocalSourceCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewLocalSource(seedTree(t))
	_, err := src.List(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
