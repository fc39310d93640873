package core

import (
	"context"

	"github.com/codexrag/ingesta/internal/models"
)

// DbClient defines all persistence operations the pipeline needs.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	GetDocumentByID(ctx context.Context, docID string) (*models.Document, error)

	// UpsertDocument registers a document (or refreshes total_chunks and
	// updated_at on reindex). The pipeline only calls it after every chunk
	// is durably written, so an existing row always means a complete
	// document.
	UpsertDocument(ctx context.Context, doc *models.Document) error

	// DeleteChunksByDocument removes every chunk owned by docID and reports
	// how many rows went away. Used before a reindex.
	DeleteChunksByDocument(ctx context.Context, docID string) (int, error)

	// FilterExistingChunks returns the subset of chunkIDs already present in
	// the store, so a resumed run can skip chunks a prior partial run wrote.
	FilterExistingChunks(ctx context.Context, chunkIDs []string) (map[string]bool, error)

	// UpsertChunks writes chunk rows idempotently: a chunk_id that already
	// exists is left untouched.
	UpsertChunks(ctx context.Context, chunks []models.DocumentChunk) error

	// SearchChunks is the similarity query consumed by the retrieval service.
	SearchChunks(ctx context.Context, queryVec []float32, limit int) ([]models.DocumentChunk, error)

	Close() error
}

// EmbeddingProvider turns a batch of texts into one vector per text.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Extractor reads a source file into plain text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// FileRef is one candidate file from a corpus source. Path is always a local
// filesystem path by the time the pipeline sees it (remote sources download
// first).
type FileRef struct {
	Name string
	Path string
}

// Source enumerates the corpus once at run start into a static file list.
type Source interface {
	List(ctx context.Context) ([]FileRef, error)
	Close() error
}
