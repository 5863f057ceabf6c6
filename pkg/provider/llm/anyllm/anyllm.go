// Package anyllm adapts github.com/mozilla-ai/any-llm-go to [llm.Provider].
// One adapter covers every hosted and local backend the library ships, so
// the phrase gateway can rotate across Groq, OpenAI, Anthropic and friends
// through a single code path.
//
//	p, err := anyllm.New("groq", "openai/gpt-oss-120b", anyllmlib.WithAPIKey(key))
package anyllm

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/chatsim/pkg/provider/llm"
)

// Phrase sets are long JSON documents; these apply when a request leaves
// sampling unset.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4096
)

type constructor func(...anyllmlib.Option) (anyllmlib.Provider, error)

var backends = map[string]constructor{
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
}

// SupportedProviders lists the backend names accepted by [New], sorted.
var SupportedProviders = slices.Sorted(maps.Keys(backends))

// Provider streams completions from one any-llm-go backend and model.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New returns a Provider for backend name (case-insensitive) and model.
// Without [anyllmlib.WithAPIKey] the backend reads its usual environment
// variable, e.g. GROQ_API_KEY.
func New(name, model string, opts ...anyllmlib.Option) (*Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if model == "" {
		return nil, fmt.Errorf("anyllm: %q: model must not be empty", name)
	}
	mk, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported provider %q; supported: %s",
			name, strings.Join(SupportedProviders, ", "))
	}
	backend, err := mk(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", name, err)
	}
	return &Provider{backend: backend, name: name, model: model}, nil
}

// Name returns the lower-cased backend name.
func (p *Provider) Name() string { return p.name }

// String identifies the provider in logs as backend/model.
func (p *Provider) String() string { return p.name + "/" + p.model }

// StreamCompletion starts a streaming completion. Backend failures after the
// stream opened arrive as a final chunk with [llm.FinishReasonError].
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("anyllm: %s: request has no messages", p.name)
	}
	chunks, errs := p.backend.CompletionStream(ctx, p.params(req))

	out := make(chan llm.Chunk, 32)
	go func() {
		defer close(out)
		send := func(c llm.Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// Role-only and empty deltas carry nothing the gateway can use.
		for chunk := range chunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content == "" && choice.FinishReason == "" {
				continue
			}
			if !send(llm.Chunk{Text: choice.Delta.Content, FinishReason: choice.FinishReason}) {
				return
			}
		}
		if err := <-errs; err != nil {
			send(llm.Chunk{Text: err.Error(), FinishReason: llm.FinishReasonError})
		}
	}()
	return out, nil
}

func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = anyllmlib.Message{Role: m.Role, Content: m.Content}
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return anyllmlib.CompletionParams{
		Model:       p.model,
		Messages:    msgs,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}
}
