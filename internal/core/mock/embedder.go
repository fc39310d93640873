package mock

import (
	"context"
	"sync/atomic"

	"github.com/codexrag/ingesta/internal/core"
)

// Embedder is a test double for core.EmbeddingProvider. Set EmbedTextsFunc
// to script failures; by default it returns small deterministic vectors
// derived from the text so assertions can match embeddings to inputs.
type Embedder struct {
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	calls atomic.Int64
}

var _ core.EmbeddingProvider = (*Embedder)(nil)

func (m *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = DeterministicVector(t, 4)
	}
	return out, nil
}

// Calls reports how many times EmbedTexts was invoked.
func (m *Embedder) Calls() int {
	return int(m.calls.Load())
}

// DeterministicVector builds a stable vector of the given dimension from a
// string, good enough for equality checks in tests.
func DeterministicVector(s string, dim int) []float32 {
	v := make([]float32, dim)
	var h uint32 = 2166136261
	for _, b := range []byte(s) {
		h ^= uint32(b)
		h *= 16777619
	}
	for i := range v {
		h = h*1664525 + 1013904223
		v[i] = float32(h%1000) / 1000.0
	}
	return v
}
