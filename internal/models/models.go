package models

import (
	"time"
)

// Document represents one ingested source file, keyed by its content hash.
// Two files with identical content share a doc_id regardless of filename.
type Document struct {
	DocID      string    `db:"doc_id" json:"doc_id"`
	FileName   string    `db:"filename" json:"filename"`
	SourcePath string    `db:"source_path" json:"source_path"`
	Title      string    `db:"title" json:"title,omitempty"`
	HashMethod string    `db:"hash_method" json:"hash_method"` // "sha256" | "sha256-content"
	ChunkCount int       `db:"total_chunks" json:"total_chunks"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentChunk represents one text chunk from a document.
// ChunkID is derived from (doc_id, position, content), so rewriting the same
// chunk is a no-op upsert.
type DocumentChunk struct {
	ChunkID    string            `db:"chunk_id" json:"chunk_id"`
	DocID      string            `db:"doc_id" json:"doc_id"`
	Position   int               `db:"position" json:"position"`
	Text       string            `db:"content" json:"content"`
	CharStart  int               `db:"char_start" json:"char_start"`
	CharEnd    int               `db:"char_end" json:"char_end"`
	Embedding  []float32         `db:"embedding" json:"embedding"` // pgvector column
	TokenCount int               `db:"token_count" json:"token_count"`
	Metadata   map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
}

// Decision is the dedup verdict for a candidate file.
type Decision string

const (
	DecisionSkip    Decision = "skip"    // registry row exists, reindex not forced
	DecisionReindex Decision = "reindex" // registry row exists, reindex forced
	DecisionProcess Decision = "process" // new content
)
