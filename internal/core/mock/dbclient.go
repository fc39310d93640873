package mock

import (
	"context"
	"sync"

	"github.com/codexrag/ingesta/internal/core"
	"github.com/codexrag/ingesta/internal/models"
)

// DbClient is an in-memory core.DbClient for tests. All methods are safe for
// concurrent use. Each method can be overridden with its *Func field; the
// default implementations keep documents and chunks in maps so a full
// pipeline run can be asserted end to end.
type DbClient struct {
	mu     sync.Mutex
	docs   map[string]models.Document
	chunks map[string]models.DocumentChunk

	GetDocumentByIDFunc        func(ctx context.Context, docID string) (*models.Document, error)
	UpsertDocumentFunc         func(ctx context.Context, doc *models.Document) error
	DeleteChunksByDocumentFunc func(ctx context.Context, docID string) (int, error)
	FilterExistingChunksFunc   func(ctx context.Context, chunkIDs []string) (map[string]bool, error)
	UpsertChunksFunc           func(ctx context.Context, chunks []models.DocumentChunk) error
}

var _ core.DbClient = (*DbClient)(nil)

func NewDbClient() *DbClient {
	return &DbClient{
		docs:   make(map[string]models.Document),
		chunks: make(map[string]models.DocumentChunk),
	}
}

func (m *DbClient) GetDocumentByID(ctx context.Context, docID string) (*models.Document, error) {
	if m.GetDocumentByIDFunc != nil {
		return m.GetDocumentByIDFunc(ctx, docID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *DbClient) UpsertDocument(ctx context.Context, doc *models.Document) error {
	if m.UpsertDocumentFunc != nil {
		return m.UpsertDocumentFunc(ctx, doc)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.DocID] = *doc
	return nil
}

func (m *DbClient) DeleteChunksByDocument(ctx context.Context, docID string) (int, error) {
	if m.DeleteChunksByDocumentFunc != nil {
		return m.DeleteChunksByDocumentFunc(ctx, docID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, ch := range m.chunks {
		if ch.DocID == docID {
			delete(m.chunks, id)
			n++
		}
	}
	return n, nil
}

func (m *DbClient) FilterExistingChunks(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	if m.FilterExistingChunksFunc != nil {
		return m.FilterExistingChunksFunc(ctx, chunkIDs)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		if _, ok := m.chunks[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (m *DbClient) UpsertChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if m.UpsertChunksFunc != nil {
		return m.UpsertChunksFunc(ctx, chunks)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range chunks {
		if _, ok := m.chunks[ch.ChunkID]; !ok {
			m.chunks[ch.ChunkID] = ch
		}
	}
	return nil
}

func (m *DbClient) SearchChunks(ctx context.Context, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.DocumentChunk, 0, limit)
	for _, ch := range m.chunks {
		if len(out) == limit {
			break
		}
		out = append(out, ch)
	}
	return out, nil
}

func (m *DbClient) Close() error { return nil }

// Document returns a copy of a stored document, or nil when absent.
func (m *DbClient) Document(docID string) *models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		return nil
	}
	return &d
}

// ChunkCount reports how many chunk rows are stored, optionally scoped to
// one document ("" counts everything).
func (m *DbClient) ChunkCount(docID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if docID == "" {
		return len(m.chunks)
	}
	n := 0
	for _, ch := range m.chunks {
		if ch.DocID == docID {
			n++
		}
	}
	return n
}
