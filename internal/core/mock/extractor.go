package mock

import (
	"context"
	"os"

	"github.com/codexrag/ingesta/internal/core"
)

// Extractor is a test double for core.Extractor. By default it just reads
// the file as plain text.
type Extractor struct {
	ExtractFunc func(ctx context.Context, path string) (string, error)
}

var _ core.Extractor = (*Extractor)(nil)

func (m *Extractor) Extract(ctx context.Context, path string) (string, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
