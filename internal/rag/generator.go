package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrGeneration marks oracle failures during answer generation.
var ErrGeneration = errors.New("generation failed")

const (
	generationTemperature = 0.7
	generationMaxTokens   = 1024

	maxSources    = 3
	excerptLength = 100
)

// SourceSnippet points the user at where an answer came from.
type SourceSnippet struct {
	AssetID string `json:"asset_id"`
	Excerpt string `json:"excerpt"`
}

// GeneratedAnswer is the batch-mode result. Sources is non-nil only
// when UsedContext is true.
type GeneratedAnswer struct {
	Answer      string          `json:"answer"`
	UsedContext bool            `json:"used_context"`
	Sources     []SourceSnippet `json:"sources,omitempty"`
}

type EventType string

const (
	EventToken EventType = "token"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one element of a generation stream: zero or more token
// events followed by exactly one done or error event.
type Event struct {
	Type        EventType       `json:"type"`
	Content     string          `json:"content,omitempty"`
	UsedContext bool            `json:"used_context,omitempty"`
	Sources     []SourceSnippet `json:"sources,omitempty"`
	Err         error           `json:"-"`
}

// Generator produces answers, grounding them in retrieved context when
// any is available and relevant.
type Generator struct {
	oracle Oracle
}

func NewGenerator(o Oracle) *Generator {
	return &Generator{oracle: o}
}

// Generate answers the question with one oracle call. chunks may be
// nil for general questions; the prompt then states explicitly that no
// context exists.
func (g *Generator) Generate(ctx context.Context, question string, chunks []RetrievedChunk) (*GeneratedAnswer, error) {
	useContext := HasRelevantContext(chunks)

	userMessage := formatUserMessage(question, contextBlock(useContext, chunks))

	answer, err := g.oracle.Complete(ctx, advisorSystemPrompt, userMessage, generationTemperature, generationMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	result := &GeneratedAnswer{
		Answer:      strings.TrimSpace(answer),
		UsedContext: useContext,
	}
	if useContext {
		result.Sources = deriveSources(chunks)
	}

	return result, nil
}

// StreamGenerate answers the question token by token. Tokens are
// forwarded in arrival order with no buffering; the terminal done
// event carries the context metadata. If the caller's context is
// cancelled the producer stops emitting and closes the channel without
// a terminal event.
func (g *Generator) StreamGenerate(ctx context.Context, question string, chunks []RetrievedChunk) (<-chan Event, error) {
	useContext := HasRelevantContext(chunks)

	userMessage := formatUserMessage(question, contextBlock(useContext, chunks))

	tokens, err := g.oracle.StreamComplete(ctx, advisorSystemPrompt, userMessage, generationTemperature, generationMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)

		for tok := range tokens {
			if tok.Err != nil {
				emit(ctx, out, Event{Type: EventError, Content: tok.Err.Error(), Err: fmt.Errorf("%w: %v", ErrGeneration, tok.Err)})
				return
			}
			if !emit(ctx, out, Event{Type: EventToken, Content: tok.Text}) {
				return
			}
		}

		done := Event{Type: EventDone, UsedContext: useContext}
		if useContext {
			done.Sources = deriveSources(chunks)
		}
		emit(ctx, out, done)
	}()

	return out, nil
}

func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func contextBlock(useContext bool, chunks []RetrievedChunk) string {
	if !useContext {
		return ""
	}
	return FormatContext(chunks)
}

// deriveSources builds snippets from the top chunks. Chunks arrive
// already similarity-sorted, so the first three are the best three.
// Sources are derived here, never asked of the oracle.
func deriveSources(chunks []RetrievedChunk) []SourceSnippet {
	n := len(chunks)
	if n > maxSources {
		n = maxSources
	}

	sources := make([]SourceSnippet, 0, n)
	for _, chunk := range chunks[:n] {
		assetID := chunk.AssetID
		if assetID == "" {
			assetID = "unknown"
		}
		// cut on rune boundaries, excerpts must stay valid UTF-8
		excerpt := chunk.Content
		if runes := []rune(excerpt); len(runes) > excerptLength {
			excerpt = string(runes[:excerptLength])
		}
		sources = append(sources, SourceSnippet{AssetID: assetID, Excerpt: excerpt})
	}

	return sources
}
