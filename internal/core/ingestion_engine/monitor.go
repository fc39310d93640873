package ingestion_engine

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/schollz/progressbar/v3"

	"github.com/codexrag/ingesta/internal/core"
)

// FileRecord tracks one file's journey through the pipeline.
type FileRecord struct {
	FileName string    `json:"file_name"`
	Path     string    `json:"path"`
	Status   string    `json:"status"` // processing | completed | failed
	Chunks   int       `json:"chunks"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started,omitempty"`
	Ended    time.Time `json:"ended,omitempty"`
}

// FailedFile is one terminally failed file, with the reason the operator
// needs to act on it.
type FailedFile struct {
	FileName string          `json:"file_name"`
	Error    string          `json:"error"`
	Class    core.ErrorClass `json:"class"`
	At       time.Time       `json:"at"`
}

// DuplicateFile is a file skipped because its content already lives in the
// registry under another (or the same) name.
type DuplicateFile struct {
	FileName string `json:"file_name"`
	DocID    string `json:"doc_id"`
}

// ReindexedFile is a file reprocessed under force-reindex, with how many
// stale chunks were removed first.
type ReindexedFile struct {
	FileName      string `json:"file_name"`
	DocID         string `json:"doc_id"`
	DeletedChunks int    `json:"deleted_chunks"`
}

// MonitorStats is the run-scoped aggregate every worker feeds. All mutation
// happens inside the Monitor's lock; callers only ever see copies.
type MonitorStats struct {
	TotalFiles      int `json:"total_files"`
	FilesProcessed  int `json:"files_processed"`
	FilesFailed     int `json:"files_failed"`
	FilesDuplicated int `json:"files_duplicated"`
	FilesReindexed  int `json:"files_reindexed"`
	FilesSuspicious int `json:"files_suspicious"`
	TotalChunks     int `json:"total_chunks"`
	TotalTokens     int `json:"total_tokens"` // estimated tokens sent to the provider

	RetriesByClass map[core.ErrorClass]int `json:"retries_by_class"`
	ErrorsByClass  map[core.ErrorClass]int `json:"errors_by_class"`

	FilesPerMinute  float64 `json:"files_per_minute"`
	ChunksPerMinute float64 `json:"chunks_per_minute"`
	EstimatedRPM    float64 `json:"estimated_rpm"`
	EstimatedTPM    float64 `json:"estimated_tpm"`

	MinChunksPerFile int     `json:"min_chunks_per_file"`
	MaxChunksPerFile int     `json:"max_chunks_per_file"`
	AvgChunksPerFile float64 `json:"avg_chunks_per_file"`

	SuspiciousFiles []string        `json:"suspicious_files"`
	FailedFiles     []FailedFile    `json:"failed_files"`
	DuplicatedFiles []DuplicateFile `json:"duplicated_files"`
	ReindexedFiles  []ReindexedFile `json:"reindexed_files"`

	FileStats map[string]*FileRecord `json:"file_stats"`

	StartTime time.Time `json:"start_time"`
}

// done counts files that reached a terminal state. Never exceeds TotalFiles;
// equals it once the run drains.
func (s *MonitorStats) done() int {
	return s.FilesProcessed + s.FilesFailed + s.FilesDuplicated
}

// Monitor is the thread-safe aggregator workers report into. Hook methods may
// be called concurrently; a single mutex serializes every counter update.
// Derived rates are read-only snapshots and never feed back into scheduling;
// the limiter keeps its own books.
type Monitor struct {
	mu    sync.Mutex
	stats MonitorStats

	interval time.Duration
	usage    func() (requests, tokens int) // limiter window snapshot, may be nil

	registry *prometheus.Registry
	metrics  *promMetrics

	stop chan struct{}
	wg   sync.WaitGroup
}

type promMetrics struct {
	filesProcessed prometheus.Counter
	filesFailed    prometheus.Counter
	filesDuplicate prometheus.Counter
	filesReindexed prometheus.Counter
	chunksTotal    prometheus.Counter
	retries        *prometheus.CounterVec
	estimatedRPM   prometheus.Gauge
	estimatedTPM   prometheus.Gauge
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	factory := promauto.With(reg)
	return &promMetrics{
		filesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingesta_files_processed_total",
			Help: "Files fully processed and persisted.",
		}),
		filesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingesta_files_failed_total",
			Help: "Files abandoned after exhausting retries.",
		}),
		filesDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingesta_files_duplicated_total",
			Help: "Files skipped because their content hash was already registered.",
		}),
		filesReindexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingesta_files_reindexed_total",
			Help: "Files reprocessed under force-reindex.",
		}),
		chunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingesta_chunks_total",
			Help: "Chunks embedded and written to the vector store.",
		}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingesta_retries_total",
			Help: "Retried provider/registry calls by error class.",
		}, []string{"class"}),
		estimatedRPM: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ingesta_estimated_rpm",
			Help: "Embedding requests issued in the trailing minute.",
		}),
		estimatedTPM: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ingesta_estimated_tpm",
			Help: "Embedding tokens consumed in the trailing minute.",
		}),
	}
}

// NewMonitor builds a monitor for a run over totalFiles candidates. usage, if
// non-nil, supplies the limiter's trailing-window request/token counts for
// the live RPM/TPM estimate.
func NewMonitor(totalFiles int, interval time.Duration, usage func() (int, int)) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	registry := prometheus.NewRegistry()
	return &Monitor{
		stats: MonitorStats{
			TotalFiles:       totalFiles,
			RetriesByClass:   make(map[core.ErrorClass]int),
			ErrorsByClass:    make(map[core.ErrorClass]int),
			FileStats:        make(map[string]*FileRecord),
			MinChunksPerFile: -1,
			StartTime:        time.Now(),
		},
		interval: interval,
		usage:    usage,
		registry: registry,
		metrics:  newPromMetrics(registry),
		stop:     make(chan struct{}),
	}
}

// Registry exposes the monitor's Prometheus registry for an optional
// /metrics listener.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Start launches the periodic live display. Safe to skip entirely in tests.
func (m *Monitor) Start() {
	bar := progressbar.NewOptions(m.totalFiles(),
		progressbar.OptionSetDescription("ingesting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.refresh(bar)
			}
		}
	}()
}

// Stop halts the live display. Counters remain readable afterwards.
func (m *Monitor) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	m.wg.Wait()
}

func (m *Monitor) totalFiles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats.TotalFiles
}

func (m *Monitor) refresh(bar *progressbar.ProgressBar) {
	s := m.Snapshot()
	_ = bar.Set(s.done())
	bar.Describe(fmt.Sprintf("ingesting | %.1f files/min | %.0f chunks/min | RPM %.0f TPM %.0f | ETA %s",
		s.FilesPerMinute, s.ChunksPerMinute, s.EstimatedRPM, s.EstimatedTPM, s.eta()))
}

// eta estimates remaining wall time from current throughput.
func (s *MonitorStats) eta() string {
	remaining := s.TotalFiles - s.done()
	if remaining <= 0 {
		return "0s"
	}
	if s.FilesPerMinute <= 0 {
		return "calculating"
	}
	d := time.Duration(float64(remaining)/s.FilesPerMinute*60) * time.Second
	return d.Round(time.Second).String()
}

// OnFileStarted records that a worker picked up a file.
func (m *Monitor) OnFileStarted(fileName, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.FileStats[fileName] = &FileRecord{
		FileName: fileName,
		Path:     path,
		Status:   "processing",
		Started:  time.Now(),
	}
}

// OnFileCompleted records a fully persisted file and folds its chunk count
// into the quality metrics.
func (m *Monitor) OnFileCompleted(fileName string, chunks int, suspicious bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.stats.FileStats[fileName]
	if rec == nil {
		rec = &FileRecord{FileName: fileName, Path: fileName}
		m.stats.FileStats[fileName] = rec
	}
	rec.Status = "completed"
	rec.Chunks = chunks
	rec.Ended = time.Now()

	m.stats.FilesProcessed++
	m.stats.TotalChunks += chunks
	m.metrics.filesProcessed.Inc()

	if suspicious {
		m.stats.FilesSuspicious++
		m.stats.SuspiciousFiles = append(m.stats.SuspiciousFiles, fileName)
	}

	if m.stats.MinChunksPerFile < 0 || chunks < m.stats.MinChunksPerFile {
		m.stats.MinChunksPerFile = chunks
	}
	if chunks > m.stats.MaxChunksPerFile {
		m.stats.MaxChunksPerFile = chunks
	}
	m.stats.AvgChunksPerFile = float64(m.stats.TotalChunks) / float64(m.stats.FilesProcessed)

	m.recalcRates()
}

// OnFileError records a terminal per-file failure. Retried-but-successful
// calls never land here; only exhausted retries do.
func (m *Monitor) OnFileError(fileName string, err error, class core.ErrorClass) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.stats.FileStats[fileName]
	if rec == nil {
		rec = &FileRecord{FileName: fileName, Path: fileName}
		m.stats.FileStats[fileName] = rec
	}
	rec.Status = "failed"
	rec.Error = err.Error()
	rec.Ended = time.Now()

	m.stats.FilesFailed++
	m.stats.ErrorsByClass[class]++
	m.stats.FailedFiles = append(m.stats.FailedFiles, FailedFile{
		FileName: fileName,
		Error:    err.Error(),
		Class:    class,
		At:       time.Now(),
	})
	m.metrics.filesFailed.Inc()

	m.recalcRates()
}

// OnFileDuplicated records an intentional skip: same content hash already
// registered. Not an error.
func (m *Monitor) OnFileDuplicated(fileName, docID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.FilesDuplicated++
	m.stats.DuplicatedFiles = append(m.stats.DuplicatedFiles, DuplicateFile{
		FileName: fileName,
		DocID:    docID,
	})
	m.metrics.filesDuplicate.Inc()
}

// OnFileReindexed records a force-reindex pass; the file still counts as
// processed when it completes.
func (m *Monitor) OnFileReindexed(fileName, docID string, deletedChunks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.FilesReindexed++
	m.stats.ReindexedFiles = append(m.stats.ReindexedFiles, ReindexedFile{
		FileName:      fileName,
		DocID:         docID,
		DeletedChunks: deletedChunks,
	})
	m.metrics.filesReindexed.Inc()
}

// OnChunkBatchProcessed records one embedded-and-persisted batch and its
// estimated token cost.
func (m *Monitor) OnChunkBatchProcessed(chunks, estimatedTokens int) {
	m.metrics.chunksTotal.Add(float64(chunks))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalTokens += estimatedTokens
	m.recalcRates()
}

// OnRetry counts one backoff sleep by error class.
func (m *Monitor) OnRetry(class core.ErrorClass) {
	m.mu.Lock()
	m.stats.RetriesByClass[class]++
	m.mu.Unlock()
	m.metrics.retries.WithLabelValues(string(class)).Inc()
}

// recalcRates refreshes derived throughput numbers. Caller holds m.mu.
func (m *Monitor) recalcRates() {
	elapsed := time.Since(m.stats.StartTime).Minutes()
	if elapsed > 0 {
		m.stats.FilesPerMinute = float64(m.stats.FilesProcessed) / elapsed
		m.stats.ChunksPerMinute = float64(m.stats.TotalChunks) / elapsed
	}
	if m.usage != nil {
		requests, tokens := m.usage()
		m.stats.EstimatedRPM = float64(requests)
		m.stats.EstimatedTPM = float64(tokens)
		m.metrics.estimatedRPM.Set(m.stats.EstimatedRPM)
		m.metrics.estimatedTPM.Set(m.stats.EstimatedTPM)
	}
}

// Snapshot returns a deep copy of the current stats, safe to read while
// workers keep reporting.
func (m *Monitor) Snapshot() MonitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recalcRates()

	out := m.stats

	out.RetriesByClass = make(map[core.ErrorClass]int, len(m.stats.RetriesByClass))
	for k, v := range m.stats.RetriesByClass {
		out.RetriesByClass[k] = v
	}
	out.ErrorsByClass = make(map[core.ErrorClass]int, len(m.stats.ErrorsByClass))
	for k, v := range m.stats.ErrorsByClass {
		out.ErrorsByClass[k] = v
	}
	out.SuspiciousFiles = append([]string(nil), m.stats.SuspiciousFiles...)
	out.FailedFiles = append([]FailedFile(nil), m.stats.FailedFiles...)
	out.DuplicatedFiles = append([]DuplicateFile(nil), m.stats.DuplicatedFiles...)
	out.ReindexedFiles = append([]ReindexedFile(nil), m.stats.ReindexedFiles...)
	out.FileStats = make(map[string]*FileRecord, len(m.stats.FileStats))
	for k, v := range m.stats.FileStats {
		cp := *v
		out.FileStats[k] = &cp
	}
	return out
}
