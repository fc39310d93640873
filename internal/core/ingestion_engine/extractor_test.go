package ingestion_engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexrag/ingesta/internal/core"
)

func TestExtractPlainText(t *testing.T) {
	path := writeTemp(t, "note.txt", "plain text body")
	text, err := NewDocconvExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "plain text body", text)
}

func TestExtractMarkdown(t *testing.T) {
	path := writeTemp(t, "doc.md", "# Title\n\nSome prose.")
	text, err := NewDocconvExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, "Some prose.")
}

func TestExtractMissingFileIsExtractionError(t *testing.T) {
	_, err := NewDocconvExtractor().Extract(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	require.Error(t, err)
	assert.Equal(t, core.ClassExtraction, core.Classify(err))
}

func TestExtractEmptyFileIsExtractionError(t *testing.T) {
	path := writeTemp(t, "empty.txt", "   \n\t\n")
	_, err := NewDocconvExtractor().Extract(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, core.ClassExtraction, core.Classify(err))
}

func TestExtractCorruptEPUBIsExtractionError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.epub")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a zip"), 0o644))

	_, err := NewDocconvExtractor().Extract(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, core.ClassExtraction, core.Classify(err))
}

func TestExtractHonorsCancelledContext(t *testing.T) {
	path := writeTemp(t, "note.txt", "body")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDocconvExtractor().Extract(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
}
