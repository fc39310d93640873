package ingestion_engine

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// estimateTokens counts tokens with the cl100k_base encoding. Loading the
// encoding can fail offline; in that case fall back to the ~4 chars per
// token heuristic, which overestimates slightly and therefore stays on the
// safe side of the TPM budget.
func estimateTokens(s string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err == nil {
			encoding = enc
		}
	})

	if encoding != nil {
		return len(encoding.Encode(s, nil, nil))
	}

	n := len([]rune(s))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
