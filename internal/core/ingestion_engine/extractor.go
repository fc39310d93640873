package ingestion_engine

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"

	"github.com/codexrag/ingesta/internal/core"
)

var _ core.Extractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.Extractor using sajari/docconv for the
// binary formats. Plain text and markdown are read directly; EPUB archives
// are walked and each HTML item converted individually, since docconv has no
// native EPUB handler.
type DocconvExtractor struct{}

func NewDocconvExtractor() *DocconvExtractor {
	return &DocconvExtractor{}
}

// Extract reads the file at path into plain text. Every failure is an
// extraction error: not retried, the file is marked failed and the run
// moves on.
func (e *DocconvExtractor) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		var raw []byte
		raw, err = os.ReadFile(path)
		text = string(raw)
	case ".epub":
		text, err = extractEPUB(path)
	default:
		var res *docconv.Response
		res, err = docconv.ConvertPath(path)
		if err == nil {
			text = res.Body
		}
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", core.ErrExtraction, filepath.Base(path), err)
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s: no text content", core.ErrExtraction, filepath.Base(path))
	}
	return text, nil
}

// extractEPUB treats the archive as what it is, a zip of HTML documents, and
// concatenates the converted body of each content item in archive order.
func extractEPUB(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open epub: %v", err)
	}
	defer r.Close()

	var parts []string
	for _, item := range r.File {
		name := strings.ToLower(item.Name)
		if !strings.HasSuffix(name, ".xhtml") && !strings.HasSuffix(name, ".html") &&
			!strings.HasSuffix(name, ".htm") {
			continue
		}

		rc, err := item.Open()
		if err != nil {
			return "", fmt.Errorf("open epub item %s: %v", item.Name, err)
		}
		res, err := docconv.Convert(rc, "text/html", true)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("convert epub item %s: %v", item.Name, err)
		}
		if body := strings.TrimSpace(res.Body); body != "" {
			parts = append(parts, body)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
