package llm

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FinishReasonError marks a chunk that carries a mid-stream failure. The error
// message is stored in Chunk.Text.
const FinishReasonError = "error"

// Message is a single entry in the prompt sent to a provider.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// CompletionRequest carries everything a provider needs to produce a response.
type CompletionRequest struct {
	// Messages is the ordered prompt. Must be non-empty.
	Messages []Message

	// Temperature controls output randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content, or the error message when
	// FinishReason is [FinishReasonError].
	Text string

	// FinishReason is set on the final chunk ("stop", "length", "error").
	FinishReason string
}
