package ingestion_engine

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/codexrag/ingesta/internal/core"
	"github.com/codexrag/ingesta/internal/models"
)

// IngestConfig tunes the pipeline.
//
// ChunkSize/ChunkOverlap: character window parameters for the splitter.
// BatchSize:              chunks per embedding request.
// MinChunks:              documents splitting into fewer are flagged suspicious.
// Workers:                fixed pool size.
// CallTimeout:            per network call; expiry counts as a transient
//                         network error and goes through the retry policy.
type IngestConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	BatchSize        int
	MinChunks        int
	Workers          int
	CallTimeout      time.Duration
	ForceReindex     bool
	DocIDFromContent bool
}

// Ingestor drives the whole run: a fixed worker pool drains the candidate
// file list, and each worker runs one file at a time through
// hash -> dedup decision -> extract/split -> embed (rate limited) -> persist.
// The only state workers share is the limiter, the registry and the monitor,
// each internally synchronized.
type Ingestor struct {
	db        core.DbClient
	embedder  core.EmbeddingProvider
	extractor core.Extractor
	limiter   *RateLimiter
	retry     RetryPolicy
	monitor   *Monitor
	cfg       *IngestConfig
}

func NewIngestor(
	db core.DbClient,
	embedder core.EmbeddingProvider,
	extractor core.Extractor,
	limiter *RateLimiter,
	retry RetryPolicy,
	monitor *Monitor,
	cfg *IngestConfig,
) *Ingestor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1024
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 30
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 15
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	return &Ingestor{
		db:        db,
		embedder:  embedder,
		extractor: extractor,
		limiter:   limiter,
		retry:     retry,
		monitor:   monitor,
		cfg:       cfg,
	}
}

// Run processes the pre-enumerated file list to completion. Per-file failures
// are contained, counted and never abort the run; the single exception is a
// provider auth failure, which cancels further dequeues (in-flight files
// finish) and is returned. Cancelling ctx likewise only stops new dequeues.
func (i *Ingestor) Run(ctx context.Context, files []core.FileRef) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Only the dequeue loop watches runCtx. A file already handed to a
	// worker runs on a context detached from the stop signal, so a drain
	// lets it embed and persist to completion instead of recording a
	// spurious failure.
	procCtx := context.WithoutCancel(ctx)

	pool, err := ants.NewPool(i.cfg.Workers)
	if err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)

	for _, f := range files {
		// Graceful drain: a stop signal or a fatal error prevents new
		// dequeues but never aborts a file already in flight.
		if runCtx.Err() != nil {
			break
		}

		f := f
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("panic processing %s: %v", f.Name, r)
					log.Printf("Ingestor: %v", err)
					i.monitor.OnFileError(f.Name, err, core.ClassOther)
				}
			}()

			if err := i.processOne(procCtx, f); err != nil {
				if core.Classify(err) == core.ClassAuth {
					fatalMu.Lock()
					if fatalErr == nil {
						fatalErr = err
					}
					fatalMu.Unlock()
					cancel()
				}
			}
		}

		if err := pool.Submit(task); err != nil {
			// Pool released under us; run the file on the caller instead
			// of dropping it.
			task()
		}
	}

	wg.Wait()

	fatalMu.Lock()
	defer fatalMu.Unlock()
	return fatalErr
}

// processOne runs the full per-file pipeline. Every failure is recorded on
// the monitor exactly once, here, before the error is returned to Run.
func (i *Ingestor) processOne(ctx context.Context, f core.FileRef) error {
	i.monitor.OnFileStarted(f.Name, f.Path)

	// Resolve the document identifier. Content mode needs the extracted text
	// first; byte mode can hash without touching the extractor, which keeps
	// duplicate skips cheap.
	var (
		docID      string
		hashMethod string
		text       string
		extracted  bool
	)
	if i.cfg.DocIDFromContent {
		t, err := i.extractor.Extract(ctx, f.Path)
		if err != nil {
			return i.fail(f.Name, err)
		}
		text, extracted = t, true
		docID, hashMethod = ContentHash(t), HashMethodContent
	} else {
		h, err := FileHash(f.Path)
		if err != nil {
			return i.fail(f.Name, fmt.Errorf("%w: %v", core.ErrExtraction, err))
		}
		docID, hashMethod = h, HashMethodFile
	}

	// Dedup decision. A registry lookup that fails after retries marks the
	// file failed; it is never silently treated as new or as a duplicate.
	var existing *models.Document
	err := i.retry.Do(ctx, func() error {
		tctx, cancel := context.WithTimeout(ctx, i.cfg.CallTimeout)
		defer cancel()
		var lookupErr error
		existing, lookupErr = i.db.GetDocumentByID(tctx, docID)
		return lookupErr
	}, i.monitor.OnRetry)
	if err != nil {
		return i.fail(f.Name, fmt.Errorf("registry lookup: %w", err))
	}

	decision := models.DecisionProcess
	if existing != nil {
		if i.cfg.ForceReindex {
			decision = models.DecisionReindex
		} else {
			decision = models.DecisionSkip
		}
	}

	if decision == models.DecisionSkip {
		log.Printf("Ingestor: duplicate %s (doc_id %.12s...)", f.Name, docID)
		i.monitor.OnFileDuplicated(f.Name, docID)
		return nil
	}

	if decision == models.DecisionReindex {
		// Stale chunks must be gone before any new write for this doc_id,
		// otherwise a changed split would leave orphans behind.
		var deleted int
		err := i.retry.Do(ctx, func() error {
			tctx, cancel := context.WithTimeout(ctx, i.cfg.CallTimeout)
			defer cancel()
			var delErr error
			deleted, delErr = i.db.DeleteChunksByDocument(tctx, docID)
			return delErr
		}, i.monitor.OnRetry)
		if err != nil {
			return i.fail(f.Name, fmt.Errorf("reindex cleanup: %w", err))
		}
		log.Printf("Ingestor: reindexing %s (%d stale chunks removed)", f.Name, deleted)
		i.monitor.OnFileReindexed(f.Name, docID, deleted)
	}

	if !extracted {
		t, err := i.extractor.Extract(ctx, f.Path)
		if err != nil {
			return i.fail(f.Name, err)
		}
		text = t
	}

	chunks := SplitText(text, i.cfg.ChunkSize, i.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return i.fail(f.Name, fmt.Errorf("%w: no text extracted from %s", core.ErrExtraction, f.Name))
	}
	suspicious := len(chunks) < i.cfg.MinChunks

	rows := make([]models.DocumentChunk, len(chunks))
	for idx, c := range chunks {
		rows[idx] = models.DocumentChunk{
			ChunkID:    ChunkID(docID, c.Pos, c.Text),
			DocID:      docID,
			Position:   c.Pos,
			Text:       c.Text,
			CharStart:  c.Start,
			CharEnd:    c.End,
			TokenCount: c.TokenCnt,
			Metadata: map[string]string{
				"file_name":    f.Name,
				"total_chunks": fmt.Sprintf("%d", len(chunks)),
			},
		}
	}

	for start := 0; start < len(rows); start += i.cfg.BatchSize {
		end := start + i.cfg.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := i.embedAndPersist(ctx, rows[start:end]); err != nil {
			return i.fail(f.Name, err)
		}
	}

	// The document row, and with it chunk_count, is only finalized after
	// every chunk is durably written.
	doc := &models.Document{
		DocID:      docID,
		FileName:   f.Name,
		SourcePath: f.Path,
		Title:      strings.TrimSuffix(f.Name, filepath.Ext(f.Name)),
		HashMethod: hashMethod,
		ChunkCount: len(chunks),
	}
	err = i.retry.Do(ctx, func() error {
		tctx, cancel := context.WithTimeout(ctx, i.cfg.CallTimeout)
		defer cancel()
		return i.db.UpsertDocument(tctx, doc)
	}, i.monitor.OnRetry)
	if err != nil {
		return i.fail(f.Name, fmt.Errorf("register document: %w", err))
	}

	i.monitor.OnFileCompleted(f.Name, len(chunks), suspicious)
	return nil
}

// embedAndPersist takes one batch of chunk rows through the rate gate, the
// embedding provider and the store. Chunks a prior partial run already wrote
// are skipped individually, so a crashed run resumes without re-embedding a
// whole document.
func (i *Ingestor) embedAndPersist(ctx context.Context, batch []models.DocumentChunk) error {
	ids := make([]string, len(batch))
	for idx := range batch {
		ids[idx] = batch[idx].ChunkID
	}

	var existing map[string]bool
	err := i.retry.Do(ctx, func() error {
		tctx, cancel := context.WithTimeout(ctx, i.cfg.CallTimeout)
		defer cancel()
		var filterErr error
		existing, filterErr = i.db.FilterExistingChunks(tctx, ids)
		return filterErr
	}, i.monitor.OnRetry)
	if err != nil {
		return fmt.Errorf("filter existing chunks: %w", err)
	}

	pending := batch[:0:0]
	for _, row := range batch {
		if !existing[row.ChunkID] {
			pending = append(pending, row)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	texts := make([]string, len(pending))
	tokens := 0
	for idx := range pending {
		texts[idx] = pending[idx].Text
		tokens += pending[idx].TokenCount
	}

	// Reserve budget before the request; the gate blocks, it never rejects.
	if err := i.limiter.Acquire(ctx, tokens); err != nil {
		return err
	}

	var vecs [][]float32
	err = i.retry.Do(ctx, func() error {
		tctx, cancel := context.WithTimeout(ctx, i.cfg.CallTimeout)
		defer cancel()
		var embedErr error
		vecs, embedErr = i.embedder.EmbedTexts(tctx, texts)
		return embedErr
	}, i.monitor.OnRetry)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(pending) {
		return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(pending))
	}
	for idx := range pending {
		pending[idx].Embedding = vecs[idx]
	}

	err = i.retry.Do(ctx, func() error {
		tctx, cancel := context.WithTimeout(ctx, i.cfg.CallTimeout)
		defer cancel()
		return i.db.UpsertChunks(tctx, pending)
	}, i.monitor.OnRetry)
	if err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}

	i.monitor.OnChunkBatchProcessed(len(pending), tokens)
	return nil
}

// fail records a terminal per-file failure once and passes the error up so
// Run can check for the fatal auth class.
func (i *Ingestor) fail(fileName string, err error) error {
	class := core.Classify(err)
	log.Printf("Ingestor: %s failed (%s): %v", fileName, class, err)
	i.monitor.OnFileError(fileName, err, class)
	return err
}
