package ingestion_engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// HashMethodFile hashes raw file bytes; HashMethodContent hashes the
// extracted, whitespace-normalized text instead, so the same book in two
// formats dedups to one document.
const (
	HashMethodFile    = "sha256"
	HashMethodContent = "sha256-content"
)

// FileHash computes the SHA-256 of the file's raw bytes, streaming so large
// PDFs don't land in memory whole.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentHash computes the SHA-256 of normalized text: whitespace collapsed,
// lowercased. Byte-level differences that don't change content (BOM, line
// endings, extraction artifacts) hash identically.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(normalize(content)))
	return hex.EncodeToString(sum[:])
}

// ChunkID derives the deterministic identifier for a chunk from its owning
// document, position and normalized content. Identical inputs always yield
// the same ID, which is what makes chunk writes idempotent.
func ChunkID(docID string, index int, content string) string {
	combined := fmt.Sprintf("%s:%d:%s", docID, index, normalize(content))
	sum := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
