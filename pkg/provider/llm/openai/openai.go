// Package openai provides an LLM provider backed by the official openai-go
// SDK. It targets any OpenAI-compatible chat completions endpoint; Cerebras
// is the default deployment (https://api.cerebras.ai/v1).
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/chatsim/pkg/provider/llm"
)

// CerebrasBaseURL is the OpenAI-compatible endpoint of Cerebras Cloud.
const CerebrasBaseURL = "https://api.cerebras.ai/v1"

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4096
	defaultTopP        = 0.95
)

// Provider implements llm.Provider using an OpenAI-compatible API.
type Provider struct {
	client oai.Client
	name   string
	model  string
	topP   float64
	json   bool
}

var _ llm.Provider = (*Provider)(nil)

type config struct {
	name       string
	baseURL    string
	timeout    time.Duration
	topP       float64
	maxRetries int
	json       bool
}

// Option is a functional option for Provider.
type Option func(*config)

// WithName overrides the provider name reported to logs and metrics.
// Defaults to "openai".
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithTopP sets nucleus sampling. Defaults to 0.95.
func WithTopP(p float64) Option {
	return func(c *config) {
		c.topP = p
	}
}

// WithMaxRetries sets how often the SDK itself retries a failed request.
// The failover gateway already moves on to the next provider, so the
// default is 0.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithJSONMode asks the endpoint for a JSON object response. Phrase sets
// and rejections are both JSON, so this only removes stray prose.
func WithJSONMode(on bool) Option {
	return func(c *config) {
		c.json = on
	}
}

// New constructs a new OpenAI-compatible Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{name: "openai", topP: defaultTopP}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, name: cfg.name, model: model, topP: cfg.topP, json: cfg.json}, nil
}

// NewCerebras constructs a Provider pointed at Cerebras Cloud.
func NewCerebras(apiKey string, model string, opts ...Option) (*Provider, error) {
	opts = append([]Option{WithName("cerebras"), WithBaseURL(CerebrasBaseURL)}, opts...)
	return New(apiKey, model, opts...)
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return p.name }

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: %s: build params: %w", p.name, err)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("openai: %s: start stream: %w", p.name, err)
	}

	out := make(chan llm.Chunk, 32)
	go func() {
		defer close(out)
		defer stream.Close()
		send := func(c llm.Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for stream.Next() {
			chunk := stream.Current()
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
		if err := stream.Err(); err != nil {
			send(llm.Chunk{Text: err.Error(), FinishReason: llm.FinishReasonError})
		}
	}()
	return out, nil
}

func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return oai.ChatCompletionNewParams{}, fmt.Errorf("request has no messages")
	}

	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(p.model),
		Messages:            messages,
		Temperature:         param.NewOpt(temperature),
		MaxCompletionTokens: param.NewOpt(int64(maxTokens)),
	}
	if p.topP > 0 {
		params.TopP = param.NewOpt(p.topP)
	}
	if p.json {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params, nil
}

func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil
	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
}
