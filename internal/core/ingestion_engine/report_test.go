package ingestion_engine

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexrag/ingesta/internal/core"
)

func sampleStats(t *testing.T) MonitorStats {
	t.Helper()
	m := NewMonitor(5, time.Minute, func() (int, int) { return 12, 3400 })

	m.OnFileStarted("big.pdf", "/corpus/big.pdf")
	m.OnFileCompleted("big.pdf", 120, false)

	m.OnFileStarted("tiny.txt", "/corpus/tiny.txt")
	m.OnFileCompleted("tiny.txt", 2, true)

	m.OnFileDuplicated("copy.pdf", "abcdef0123456789abcdef")

	m.OnFileStarted("reread.pdf", "/corpus/reread.pdf")
	m.OnFileReindexed("reread.pdf", "fedcba9876543210fedcba", 40)
	m.OnFileCompleted("reread.pdf", 42, false)

	m.OnFileStarted("broken.pdf", "/corpus/broken.pdf")
	m.OnFileError("broken.pdf", errors.New("pdf parse failed"), core.ClassExtraction)

	m.OnChunkBatchProcessed(30, 7500)
	m.OnChunkBatchProcessed(30, 7500)

	m.OnRetry(core.ClassRateLimit)
	m.OnRetry(core.ClassNetwork)

	return m.Snapshot()
}

func TestReportRenderMarkdown(t *testing.T) {
	r := NewReport(sampleStats(t), 3500, 3_500_000)

	var buf bytes.Buffer
	require.NoError(t, r.RenderMarkdown(&buf))
	out := buf.String()

	assert.Contains(t, out, "# Ingestion Report")
	assert.Contains(t, out, "| Total files | 5 |")
	assert.Contains(t, out, "| Processed | 3 |")
	assert.Contains(t, out, "| Failed | 1 |")
	assert.Contains(t, out, "| Duplicates skipped | 1 |")
	assert.Contains(t, out, "| Reindexed | 1 |")
	assert.Contains(t, out, "| Suspicious (few chunks) | 1 |")

	assert.Contains(t, out, "`copy.pdf`")
	assert.Contains(t, out, "40 stale chunks removed")
	assert.Contains(t, out, "`tiny.txt` (2 chunks)")
	assert.Contains(t, out, "`broken.pdf`")
	assert.Contains(t, out, "class: extraction")

	assert.Contains(t, out, "| Tokens sent (estimated) | 15000 |")

	assert.Contains(t, out, "Rate-limit retries: 1")
	assert.Contains(t, out, "Network retries: 1")

	// Distribution: 2 chunks -> 0-5, 42 -> 20-50, 120 -> 100-200.
	assert.Contains(t, out, "| 0-5 (suspicious) | 1 |")
	assert.Contains(t, out, "| 20-50 | 1 |")
	assert.Contains(t, out, "| 100-200 | 1 |")
	assert.Contains(t, out, "| 200+ | 0 |")

	assert.Contains(t, out, "with 1 failure(s)")
}

func TestReportConclusionVariants(t *testing.T) {
	clean := NewReport(MonitorStats{FilesProcessed: 3}, 100, 1000)
	assert.Equal(t, "Ingestion completed with no failures.", clean.conclusion())

	susp := NewReport(MonitorStats{FilesProcessed: 3, FilesSuspicious: 2}, 100, 1000)
	assert.Contains(t, susp.conclusion(), "2 suspicious file(s)")
}

func TestReportDetailListsTruncated(t *testing.T) {
	m := NewMonitor(50, time.Minute, nil)
	for i := 0; i < 30; i++ {
		m.OnFileDuplicated(filepath.Join("d", "dup.txt"), "doc")
	}
	r := NewReport(m.Snapshot(), 100, 1000)

	var buf bytes.Buffer
	require.NoError(t, r.RenderMarkdown(&buf))
	assert.Contains(t, buf.String(), "...and 10 more")
}

func TestReportWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "report.md")

	r := NewReport(sampleStats(t), 3500, 3_500_000)
	got, err := r.WriteFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Ingestion Report")
}

func TestReportPrintSummary(t *testing.T) {
	r := NewReport(sampleStats(t), 3500, 3_500_000)
	var buf bytes.Buffer
	r.PrintSummary(&buf)

	out := buf.String()
	assert.Contains(t, out, "processed:  3/5")
	assert.Contains(t, out, "failed:     1")
	assert.Contains(t, out, "chunks:     164")
}
