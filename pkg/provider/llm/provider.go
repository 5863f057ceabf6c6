// Package llm defines the Provider interface for text-generation backends.
//
// A provider wraps one remote model API (Groq, Cerebras, OpenAI, a local
// Ollama instance, ...) and exposes exactly two capabilities: a stable name
// used in logs and metrics, and a streaming chat completion. The failover
// layer in internal/resilience is written against this interface only.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import "context"

// Provider is the abstraction over any text-generation backend.
type Provider interface {
	// Name returns a short human-readable identifier such as "groq" or
	// "cerebras". It must be constant for the lifetime of the Provider.
	Name() string

	// StreamCompletion sends req to the model and returns a read-only channel
	// that emits Chunk values as they arrive. The channel is closed when
	// generation finishes or when ctx is cancelled.
	//
	// The initial error return is non-nil only for failures that prevent the
	// stream from starting. Errors after the channel is opened are surfaced as
	// a Chunk with FinishReason [FinishReasonError] and the message in Text.
	//
	// The returned channel must never be nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}
