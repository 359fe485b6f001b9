package rag

import "context"

// Token is one fragment of a streamed completion. A non-nil Err is
// terminal; the channel is closed right after it.
type Token struct {
	Text string
	Err  error
}

// Oracle is the narrow contract to the language model. Implementations
// are stateless per call: no conversation memory is carried between
// invocations.
type Oracle interface {
	Complete(ctx context.Context, systemPrompt, userMessage string, temperature float32, maxTokens int32) (string, error)
	// CompleteJSON runs at temperature 0 with structured output mode
	// and returns the raw JSON bytes for the caller to validate.
	CompleteJSON(ctx context.Context, systemPrompt, userMessage string, maxTokens int32) ([]byte, error)
	// StreamComplete emits fragments in arrival order. The returned
	// channel closes when the upstream stream is exhausted or the
	// context is cancelled.
	StreamComplete(ctx context.Context, systemPrompt, userMessage string, temperature float32, maxTokens int32) (<-chan Token, error)
}
