package ingestion_engine

// chunk is the internal representation passed through the pipeline.
//
// Pos:        stable, zero-based position of the chunk inside the document.
// Text:       chunk content.
// Start, End: rune offsets of the span within the extracted text.
// TokenCnt:   approximate token count (used for TPM budgeting).
type chunk struct {
	Pos      int
	Text     string
	Start    int
	End      int
	TokenCnt int
}

// SplitText divides text into fixed windows of size runes, each sharing
// overlap runes with its predecessor. Splitting is a pure function of the
// input and the two parameters: identical input always yields the identical
// chunk sequence, which is what makes ChunkID determinism meaningful.
//
// The trailing remainder is kept even when it is much shorter than size;
// whether a document with very few chunks is suspicious is the caller's call.
func SplitText(text string, size, overlap int) []chunk {
	if size <= 0 {
		size = 1024
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	chunks := make([]chunk, 0, (len(runes)+step-1)/step)
	for start, pos := 0, 0; start < len(runes); start, pos = start+step, pos+1 {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		body := string(runes[start:end])
		chunks = append(chunks, chunk{
			Pos:      pos,
			Text:     body,
			Start:    start,
			End:      end,
			TokenCnt: estimateTokens(body),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
