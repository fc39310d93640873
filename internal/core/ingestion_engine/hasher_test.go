package ingestion_engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileHashSameContentSameID(t *testing.T) {
	a := writeTemp(t, "a.txt", "identical content")
	b := writeTemp(t, "b.txt", "identical content")
	c := writeTemp(t, "c.txt", "different content")

	ha, err := FileHash(a)
	require.NoError(t, err)
	hb, err := FileHash(b)
	require.NoError(t, err)
	hc, err := FileHash(c)
	require.NoError(t, err)

	assert.Equal(t, ha, hb, "same bytes must hash to the same doc_id regardless of filename")
	assert.NotEqual(t, ha, hc)
	assert.Len(t, ha, 64)
}

func TestFileHashMissingFile(t *testing.T) {
	_, err := FileHash(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
}

func TestContentHashNormalizes(t *testing.T) {
	base := ContentHash("Hello World, this is content.")

	assert.Equal(t, base, ContentHash("hello   world,\nthis is  content."))
	assert.Equal(t, base, ContentHash("  HELLO WORLD, THIS IS CONTENT.\t"))
	assert.NotEqual(t, base, ContentHash("hello world, this is other content."))
}

func TestChunkIDDeterministic(t *testing.T) {
	id1 := ChunkID("doc", 0, "some chunk text")
	id2 := ChunkID("doc", 0, "Some  chunk\ttext")
	assert.Equal(t, id1, id2, "normalization makes whitespace and case irrelevant")

	assert.NotEqual(t, id1, ChunkID("doc", 1, "some chunk text"), "position is part of the identity")
	assert.NotEqual(t, id1, ChunkID("other", 0, "some chunk text"), "owning document is part of the identity")
}
