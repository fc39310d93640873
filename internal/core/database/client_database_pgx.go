package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/codexrag/ingesta/internal/config"
	"github.com/codexrag/ingesta/internal/core"
	"github.com/codexrag/ingesta/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Every worker talks to the registry; size the pool past the worker count.
	db.SetMaxOpenConns(cfg.Workers + 5)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, docID string) (*models.Document, error) {
	const q = `
		SELECT doc_id, filename, COALESCE(source_path, ''), COALESCE(title, ''),
		       COALESCE(hash_method, 'sha256'), total_chunks, created_at, updated_at
		FROM documents
		WHERE doc_id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, docID).Scan(
		&d.DocID, &d.FileName, &d.SourcePath, &d.Title, &d.HashMethod,
		&d.ChunkCount, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) UpsertDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents (doc_id, filename, source_path, title, hash_method, total_chunks, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, now(), now())
		ON CONFLICT (doc_id) DO UPDATE SET
			total_chunks = EXCLUDED.total_chunks,
			title        = COALESCE(NULLIF(EXCLUDED.title, ''), documents.title),
			updated_at   = now()
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.DocID, doc.FileName, doc.SourcePath, doc.Title, doc.HashMethod, doc.ChunkCount)
	return err
}

// DeleteChunksByDocument removes every chunk owned by docID ahead of a
// reindex and reports how many rows were removed.
func (c *DatabaseClient) DeleteChunksByDocument(ctx context.Context, docID string) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (c *DatabaseClient) FilterExistingChunks(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT chunk_id FROM document_chunks WHERE chunk_id = ANY($1)`, chunkIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// UpsertChunks inserts chunk rows in a single transaction. A chunk_id that
// already exists is left alone, which makes concurrent and repeated writes
// of the same chunk harmless.
func (c *DatabaseClient) UpsertChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(chunk_id, doc_id, position, content, char_start, char_end, embedding, token_count, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (chunk_id) DO NOTHING
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		meta, err := json.Marshal(ch.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		vec := pgvector.NewVector(ch.Embedding)

		if _, err := stmt.ExecContext(ctx,
			ch.ChunkID, ch.DocID, ch.Position, ch.Text, ch.CharStart, ch.CharEnd,
			vec, ch.TokenCount, meta,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SearchChunks finds the top-k chunks nearest to a query embedding. The
// retrieval service is the consumer; the pipeline never calls this.
func (c *DatabaseClient) SearchChunks(ctx context.Context, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	const q = `
		SELECT chunk_id, doc_id, position, content, char_start, char_end, embedding, token_count, metadata
		FROM document_chunks
		ORDER BY embedding <-> $1
		LIMIT $2
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch   models.DocumentChunk
			emb  pgvector.Vector
			meta []byte
		)
		if err := rows.Scan(&ch.ChunkID, &ch.DocID, &ch.Position, &ch.Text,
			&ch.CharStart, &ch.CharEnd, &emb, &ch.TokenCount, &meta); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ch.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
			}
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
