package source

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/codexrag/ingesta/internal/core"
)

// supportedExt is the set of file extensions the pipeline can extract text
// from. Anything else found while walking is silently ignored.
var supportedExt = map[string]bool{
	".pdf":  true,
	".epub": true,
	".txt":  true,
	".md":   true,
	".docx": true,
	".doc":  true,
}

// LocalSource walks a directory tree and yields every supported file under it.
type LocalSource struct {
	root string
}

var _ core.Source = (*LocalSource)(nil)

func NewLocalSource(root string) *LocalSource {
	return &LocalSource{root: root}
}

func (s *LocalSource) List(ctx context.Context) ([]core.FileRef, error) {
	var refs []core.FileRef
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			// Skip hidden directories such as .git.
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if supportedExt[strings.ToLower(filepath.Ext(path))] {
			refs = append(refs, core.FileRef{Name: d.Name(), Path: path})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	return refs, nil
}

func (s *LocalSource) Close() error { return nil }
