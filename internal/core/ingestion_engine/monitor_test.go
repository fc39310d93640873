package ingestion_engine

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexrag/ingesta/internal/core"
)

func TestMonitorCountsTerminalStates(t *testing.T) {
	m := NewMonitor(4, time.Minute, nil)

	m.OnFileStarted("a.pdf", "/tmp/a.pdf")
	m.OnFileCompleted("a.pdf", 30, false)

	m.OnFileStarted("b.pdf", "/tmp/b.pdf")
	m.OnFileError("b.pdf", errors.New("boom"), core.ClassNetwork)

	m.OnFileDuplicated("c.pdf", "deadbeef")

	m.OnFileStarted("d.pdf", "/tmp/d.pdf")
	m.OnFileCompleted("d.pdf", 3, true)

	s := m.Snapshot()
	assert.Equal(t, 2, s.FilesProcessed)
	assert.Equal(t, 1, s.FilesFailed)
	assert.Equal(t, 1, s.FilesDuplicated)
	assert.Equal(t, 1, s.FilesSuspicious)
	assert.Equal(t, 33, s.TotalChunks)
	assert.Equal(t, s.TotalFiles, s.done())

	assert.Equal(t, 3, s.MinChunksPerFile)
	assert.Equal(t, 30, s.MaxChunksPerFile)
	assert.InDelta(t, 16.5, s.AvgChunksPerFile, 0.001)

	require.Len(t, s.FailedFiles, 1)
	assert.Equal(t, core.ClassNetwork, s.FailedFiles[0].Class)
	assert.Equal(t, []string{"d.pdf"}, s.SuspiciousFiles)
}

func TestMonitorRetriesByClass(t *testing.T) {
	m := NewMonitor(1, time.Minute, nil)
	m.OnRetry(core.ClassRateLimit)
	m.OnRetry(core.ClassRateLimit)
	m.OnRetry(core.ClassNetwork)

	s := m.Snapshot()
	assert.Equal(t, 2, s.RetriesByClass[core.ClassRateLimit])
	assert.Equal(t, 1, s.RetriesByClass[core.ClassNetwork])
	assert.Equal(t, 0, s.FilesFailed, "retries are not failures")
}

func TestMonitorReindexStillCountsProcessed(t *testing.T) {
	m := NewMonitor(1, time.Minute, nil)
	m.OnFileStarted("a.pdf", "/tmp/a.pdf")
	m.OnFileReindexed("a.pdf", "doc1", 12)
	m.OnFileCompleted("a.pdf", 14, false)

	s := m.Snapshot()
	assert.Equal(t, 1, s.FilesReindexed)
	assert.Equal(t, 1, s.FilesProcessed)
	require.Len(t, s.ReindexedFiles, 1)
	assert.Equal(t, 12, s.ReindexedFiles[0].DeletedChunks)
}

func TestMonitorAccumulatesTokenEstimates(t *testing.T) {
	m := NewMonitor(1, time.Minute, nil)
	m.OnChunkBatchProcessed(4, 1200)
	m.OnChunkBatchProcessed(2, 800)

	s := m.Snapshot()
	assert.Equal(t, 2000, s.TotalTokens)
}

func TestMonitorUsageFeedsRateEstimates(t *testing.T) {
	m := NewMonitor(1, time.Minute, func() (int, int) { return 42, 9000 })
	m.OnFileStarted("a.txt", "a.txt")
	m.OnFileCompleted("a.txt", 10, false)

	s := m.Snapshot()
	assert.Equal(t, 42.0, s.EstimatedRPM)
	assert.Equal(t, 9000.0, s.EstimatedTPM)
}

func TestMonitorSnapshotIsDeepCopy(t *testing.T) {
	m := NewMonitor(2, time.Minute, nil)
	m.OnFileStarted("a.txt", "a.txt")
	m.OnFileCompleted("a.txt", 10, false)

	s := m.Snapshot()
	s.FileStats["a.txt"].Chunks = 999
	s.RetriesByClass[core.ClassNetwork] = 7
	s.SuspiciousFiles = append(s.SuspiciousFiles, "ghost")

	fresh := m.Snapshot()
	assert.Equal(t, 10, fresh.FileStats["a.txt"].Chunks)
	assert.Equal(t, 0, fresh.RetriesByClass[core.ClassNetwork])
	assert.Empty(t, fresh.SuspiciousFiles)
}

// Hooks fire from every worker at once; counters must add up exactly and the
// terminal-state total must never exceed the file count.
func TestMonitorConcurrentHooks(t *testing.T) {
	const n = 300
	m := NewMonitor(n, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("f%03d.txt", i)
			m.OnFileStarted(name, name)
			switch i % 3 {
			case 0:
				m.OnFileCompleted(name, 10, false)
			case 1:
				m.OnFileError(name, errors.New("x"), core.ClassOther)
			default:
				m.OnFileDuplicated(name, "doc")
			}
			m.OnRetry(core.ClassRateLimit)
		}(i)
	}
	wg.Wait()

	s := m.Snapshot()
	assert.Equal(t, n, s.done())
	assert.Equal(t, n/3, s.FilesProcessed)
	assert.Equal(t, n, s.RetriesByClass[core.ClassRateLimit])
	assert.LessOrEqual(t, s.done(), s.TotalFiles)
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	m := NewMonitor(1, 10*time.Millisecond, nil)
	m.Start()
	time.Sleep(25 * time.Millisecond)
	m.Stop()
	m.Stop()
}
