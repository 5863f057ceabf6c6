// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to feed controlled token streams into the
// failover gateway and the phrase synthesizer without a live backend.
// All fields are safe to set before calling any method; mutating them during a
// concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    ProviderName: "groq",
//	    StreamChunks: []llm.Chunk{{Text: `{"gameplay":[]}`}},
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/chatsim/pkg/provider/llm"
)

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	// Ctx is the context passed to StreamCompletion.
	Ctx context.Context
	// Req is the CompletionRequest passed to StreamCompletion.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values cause StreamCompletion to return an immediately closed channel.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// StreamChunks is the sequence of Chunk values emitted on the channel
	// returned by StreamCompletion. All chunks are sent before the channel is
	// closed.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned as the error from StreamCompletion
	// instead of starting a channel.
	StreamErr error

	// OpenDelay is slept (respecting ctx) before StreamCompletion returns.
	OpenDelay time.Duration

	// ChunkDelay is slept (respecting ctx) before each chunk is sent.
	ChunkDelay time.Duration

	// Hang keeps the channel open after all chunks were sent until ctx is
	// cancelled. Used to simulate a stalled upstream.
	Hang bool

	// --- Call records (read after test) ---

	// StreamCalls records every invocation of StreamCompletion in order.
	StreamCalls []StreamCall
}

// Name returns ProviderName or "mock".
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// StreamCompletion records the call and returns a channel that emits
// StreamChunks. If StreamErr is set, it returns nil, StreamErr.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})
	streamErr := p.StreamErr
	openDelay, chunkDelay, hang := p.OpenDelay, p.ChunkDelay, p.Hang
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	p.mu.Unlock()

	if openDelay > 0 {
		if !sleep(ctx, openDelay) {
			return nil, ctx.Err()
		}
	}
	if streamErr != nil {
		return nil, streamErr
	}

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			if chunkDelay > 0 && !sleep(ctx, chunkDelay) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
		if hang {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

// CallCount returns the number of StreamCompletion invocations. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StreamCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StreamCalls = nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
