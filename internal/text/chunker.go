package text

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenization matches the embedding model's sub-word scheme so chunk
// boundaries respect its input limit.
const EncodingName = "cl100k_base"

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// Chunk is a bounded slice of document text sized for embedding.
type Chunk struct {
	Text       string
	TokenCount int
}

// Encoding is the tokenizer contract the chunker runs on. The
// production implementation wraps tiktoken; tests substitute a fixed
// word-level encoding.
type Encoding interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenEncoding struct {
	enc *tiktoken.Tiktoken
}

// NewEncoding loads the cl100k_base byte-pair encoding. Construct once
// at startup and share; the handle is read-only after creation.
func NewEncoding() (Encoding, error) {
	enc, err := tiktoken.GetEncoding(EncodingName)
	if err != nil {
		return nil, err
	}
	return &tiktokenEncoding{enc: enc}, nil
}

func (t *tiktokenEncoding) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *tiktokenEncoding) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Chunker splits text into overlapping token windows.
type Chunker struct {
	enc       Encoding
	chunkSize int
	overlap   int
}

func NewChunker(enc Encoding, chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	return &Chunker{enc: enc, chunkSize: chunkSize, overlap: overlap}
}

// Chunk splits text into overlapping chunks of at most chunkSize
// tokens. Consecutive chunks share overlap tokens for context
// continuity across boundaries.
func (c *Chunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokens := c.enc.Encode(text)

	if len(tokens) <= c.chunkSize {
		// Text fits in a single chunk; return the input verbatim so
		// short documents survive tokenizer round-trips untouched.
		return []Chunk{{Text: text, TokenCount: len(tokens)}}
	}

	stride := c.chunkSize - c.overlap
	if stride <= 0 {
		// Degenerate config (overlap >= chunk size) must still make
		// forward progress.
		stride = c.chunkSize
	}

	var chunks []Chunk
	for start := 0; start < len(tokens); start += stride {
		end := start + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		chunks = append(chunks, Chunk{
			Text:       c.enc.Decode(window),
			TokenCount: len(window),
		})
	}

	return chunks
}

// CountTokens reports the token length of text under the same encoding
// the chunker splits with.
func (c *Chunker) CountTokens(text string) int {
	return len(c.enc.Encode(text))
}
