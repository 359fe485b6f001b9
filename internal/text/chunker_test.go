package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// wordEncoding tokenizes on whitespace. Deterministic and offline, so
// the windowing math can be pinned down exactly.
type wordEncoding struct {
	words map[int]string
	ids   map[string]int
}

func newWordEncoding() *wordEncoding {
	return &wordEncoding{words: map[int]string{}, ids: map[string]int{}}
}

func (e *wordEncoding) Encode(text string) []int {
	fields := strings.Fields(text)
	tokens := make([]int, 0, len(fields))
	for _, f := range fields {
		id, ok := e.ids[f]
		if !ok {
			id = len(e.ids)
			e.ids[f] = id
			e.words[id] = f
		}
		tokens = append(tokens, id)
	}
	return tokens
}

func (e *wordEncoding) Decode(tokens []int) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		parts = append(parts, e.words[t])
	}
	return strings.Join(parts, " ")
}

func sentence(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "w" + strings.Repeat("x", i%7)
	}
	return strings.Join(words, " ")
}

func TestChunker_Chunk(t *testing.T) {
	t.Run("Empty Input", func(t *testing.T) {
		c := NewChunker(newWordEncoding(), 500, 100)
		assert.Nil(t, c.Chunk(""))
		assert.Nil(t, c.Chunk("   \n\t  "))
	})

	t.Run("Fits In Single Chunk", func(t *testing.T) {
		c := NewChunker(newWordEncoding(), 10, 2)
		in := "one two three four"
		chunks := c.Chunk(in)
		assert.Len(t, chunks, 1)
		assert.Equal(t, in, chunks[0].Text)
		assert.Equal(t, 4, chunks[0].TokenCount)
	})

	t.Run("Sliding Window With Overlap", func(t *testing.T) {
		enc := newWordEncoding()
		c := NewChunker(enc, 10, 4)
		chunks := c.Chunk(sentence(25))

		// Stride 6: windows start at 0, 6, 12, 18, 24.
		assert.Len(t, chunks, 5)
		for i, ch := range chunks[:len(chunks)-1] {
			assert.Equal(t, 10, ch.TokenCount, "chunk %d", i)
		}

		// Consecutive chunks share exactly the configured overlap.
		for i := 1; i < len(chunks)-1; i++ {
			prev := strings.Fields(chunks[i-1].Text)
			cur := strings.Fields(chunks[i].Text)
			assert.Equal(t, prev[len(prev)-4:], cur[:4], "overlap between %d and %d", i-1, i)
		}
	})

	t.Run("No Token Lost", func(t *testing.T) {
		enc := newWordEncoding()
		c := NewChunker(enc, 8, 3)
		in := sentence(30)
		chunks := c.Chunk(in)

		last := strings.Fields(chunks[len(chunks)-1].Text)
		all := strings.Fields(in)
		assert.Equal(t, all[len(all)-1], last[len(last)-1])
	})

	t.Run("Degenerate Overlap Still Terminates", func(t *testing.T) {
		enc := newWordEncoding()
		for _, overlap := range []int{10, 15, 100} {
			c := NewChunker(enc, 10, overlap)
			chunks := c.Chunk(sentence(35))
			// Stride forced to chunk size: plain partitioning.
			assert.Len(t, chunks, 4, "overlap=%d", overlap)
			assert.Equal(t, 5, chunks[3].TokenCount)
		}
	})

	t.Run("Defaults Applied", func(t *testing.T) {
		c := NewChunker(newWordEncoding(), 0, -1)
		assert.Equal(t, DefaultChunkSize, c.chunkSize)
		assert.Equal(t, DefaultChunkOverlap, c.overlap)
	})
}

func TestChunker_CountTokens(t *testing.T) {
	c := NewChunker(newWordEncoding(), 500, 100)
	assert.Equal(t, 0, c.CountTokens(""))
	assert.Equal(t, 5, c.CountTokens("a b c d e"))
}
