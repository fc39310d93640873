package ingestion_engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextEmpty(t *testing.T) {
	assert.Nil(t, SplitText("", 1024, 200))
	assert.Len(t, SplitText("   ", 1024, 200), 1, "whitespace is still text; emptiness is decided before splitting")
}

func TestSplitTextShorterThanWindow(t *testing.T) {
	chunks := SplitText("short", 1024, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Pos)
	assert.Equal(t, "short", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 5, chunks[0].End)
}

func TestSplitTextWindowAndOverlap(t *testing.T) {
	text := strings.Repeat("a", 2500)
	chunks := SplitText(text, 1000, 200)

	// step 800: [0,1000) [800,1800) [1600,2500)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Pos)
	}
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 1000, chunks[0].End)
	assert.Equal(t, 800, chunks[1].Start)
	assert.Equal(t, 1800, chunks[1].End)
	assert.Equal(t, 1600, chunks[2].Start)
	assert.Equal(t, 2500, chunks[2].End)

	// Consecutive chunks share exactly the overlap.
	assert.Equal(t, chunks[0].Text[800:], chunks[1].Text[:200])
}

func TestSplitTextKeepsRemainder(t *testing.T) {
	text := strings.Repeat("x", 1001)
	chunks := SplitText(text, 1000, 0)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, len([]rune(chunks[1].Text)))
}

func TestSplitTextDeterministic(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 200)
	a := SplitText(text, 256, 64)
	b := SplitText(text, 256, 64)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Text, b[i].Text)
		assert.Equal(t, a[i].Start, b[i].Start)
	}
}

func TestSplitTextRuneSafety(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 300)
	for _, c := range SplitText(text, 100, 20) {
		assert.True(t, strings.ToValidUTF8(c.Text, "") == c.Text, "window boundaries must not cut runes")
	}
}

func TestSplitTextBadOverlapIgnored(t *testing.T) {
	text := strings.Repeat("y", 250)
	chunks := SplitText(text, 100, 100) // overlap >= size falls back to 0
	require.Len(t, chunks, 3)
	assert.Equal(t, 100, chunks[1].Start)
}

func TestSplitTextTokenEstimatePositive(t *testing.T) {
	chunks := SplitText("some reasonable amount of english text for counting", 1024, 0)
	require.Len(t, chunks, 1)
	assert.Greater(t, chunks[0].TokenCnt, 0)
}
