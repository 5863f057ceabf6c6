// Package resilience spreads AI completions over several interchangeable
// providers. A [Gateway] rotates its starting provider between calls, bounds
// every attempt with a timeout and fails over until each provider has been
// tried once.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/chatsim/internal/observe"
	"github.com/MrWong99/chatsim/pkg/provider/llm"
)

// DefaultTimeout bounds one provider attempt, stream open and consumption
// together.
const DefaultTimeout = 30 * time.Second

var (
	// ErrAllFailed is returned when every provider of a [Gateway] failed for
	// one call. The concrete error is an [*AllFailedError].
	ErrAllFailed = errors.New("all providers failed")

	// ErrEmptyResponse marks an attempt whose concatenated output was blank.
	ErrEmptyResponse = errors.New("empty response")

	// ErrNoProviders is returned by [NewGateway] for an empty provider list.
	ErrNoProviders = errors.New("no providers configured")
)

// Failure records one failed provider attempt.
type Failure struct {
	Provider string
	Err      error
	Duration time.Duration
}

// AllFailedError carries the failure log of a call in which every provider
// failed. It matches [ErrAllFailed] with errors.Is and its message ends with
// the last provider's error.
type AllFailedError struct {
	Failures []Failure
}

func (e *AllFailedError) Error() string {
	if len(e.Failures) == 0 {
		return ErrAllFailed.Error()
	}
	return fmt.Sprintf("%v: %v", ErrAllFailed, e.Failures[len(e.Failures)-1].Err)
}

// Is reports whether target is [ErrAllFailed].
func (e *AllFailedError) Is(target error) bool {
	return target == ErrAllFailed
}

// Completion is the successful result of [Gateway.Complete].
type Completion struct {
	// Text is the full concatenated response of the winning provider.
	Text string

	// Provider is the name of the provider that produced Text.
	Provider string

	// Failures lists the attempts that failed before Provider succeeded.
	Failures []Failure
}

// Option configures a [Gateway].
type Option func(*Gateway)

// WithTimeout sets the per-attempt deadline. Non-positive values keep
// [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithRequestDefaults sets the sampling temperature and token limit sent
// with every completion.
func WithRequestDefaults(temperature float64, maxTokens int) Option {
	return func(g *Gateway) {
		g.temperature = temperature
		g.maxTokens = maxTokens
	}
}

// Gateway produces one complete text response per call from a fixed,
// ordered list of providers. It is safe for concurrent use.
type Gateway struct {
	providers   []llm.Provider
	timeout     time.Duration
	temperature float64
	maxTokens   int
	metrics     *observe.Metrics

	mu   sync.Mutex
	next int
}

// NewGateway returns a Gateway over providers. The slice is copied.
func NewGateway(providers []llm.Provider, opts ...Option) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	g := &Gateway{
		providers: append([]llm.Provider(nil), providers...),
		timeout:   DefaultTimeout,
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g, nil
}

// Providers returns the provider names in rotation order.
func (g *Gateway) Providers() []string {
	names := make([]string, len(g.providers))
	for i, p := range g.providers {
		names[i] = p.Name()
	}
	return names
}

// Timeout returns the per-attempt deadline.
func (g *Gateway) Timeout() time.Duration { return g.timeout }

// pick returns the provider at the rotation offset and advances it.
func (g *Gateway) pick() llm.Provider {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.providers[g.next]
	g.next = (g.next + 1) % len(g.providers)
	return p
}

// Complete sends messages to the providers, starting at the rotation offset,
// until one returns a non-blank response. Each provider is tried at most
// once. When all fail the error is an [*AllFailedError]; when ctx ends first
// the context error is returned and no further provider is tried.
func (g *Gateway) Complete(ctx context.Context, messages []llm.Message) (*Completion, error) {
	ctx, span := observe.StartSpan(ctx, "resilience.Complete",
		trace.WithAttributes(attribute.Int("providers", len(g.providers))))
	defer span.End()

	req := llm.CompletionRequest{
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
	log := observe.Logger(ctx)

	var failures []Failure
	for range len(g.providers) {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("resilience: complete: %w", err)
		}

		p := g.pick()
		start := time.Now()
		text, err := g.attempt(ctx, p, req)
		if err == nil {
			span.SetAttributes(attribute.String("provider", p.Name()))
			log.Debug("completion succeeded", "provider", p.Name(), "duration", time.Since(start), "failed_before", len(failures))
			return &Completion{Text: text, Provider: p.Name(), Failures: failures}, nil
		}

		failures = append(failures, Failure{Provider: p.Name(), Err: err, Duration: time.Since(start)})
		log.Warn("provider failed, trying next", "provider", p.Name(), "err", err)
	}

	err := &AllFailedError{Failures: failures}
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

// attempt runs one bounded provider call and classifies its outcome for
// metrics.
func (g *Gateway) attempt(ctx context.Context, p llm.Provider, req llm.CompletionRequest) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	attemptCtx, span := observe.StartSpan(attemptCtx, "provider.attempt",
		trace.WithAttributes(attribute.String("provider", p.Name())))
	defer span.End()

	start := time.Now()
	text, err := consume(attemptCtx, p, req)
	g.metrics.ProviderDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", p.Name())))

	status := observe.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, ErrEmptyResponse):
		status = observe.StatusEmpty
		err = fmt.Errorf("%s: %w", p.Name(), err)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		status = observe.StatusTimeout
		err = fmt.Errorf("%s: timed out after %s: %w", p.Name(), g.timeout, err)
	default:
		status = observe.StatusError
		err = fmt.Errorf("%s: %w", p.Name(), err)
	}
	g.metrics.RecordProviderRequest(ctx, p.Name(), status)
	if err != nil {
		g.metrics.RecordProviderError(ctx, p.Name(), status)
		span.SetStatus(codes.Error, err.Error())
	}
	return text, err
}

// consume opens the stream and concatenates it. Partial output is dropped
// as soon as ctx ends.
func consume(ctx context.Context, p llm.Provider, req llm.CompletionRequest) (string, error) {
	ch, err := p.StreamCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("open stream: %w", err)
	}

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case c, ok := <-ch:
			if !ok {
				if err := ctx.Err(); err != nil {
					return "", err
				}
				if strings.TrimSpace(sb.String()) == "" {
					return "", ErrEmptyResponse
				}
				return sb.String(), nil
			}
			if c.FinishReason == llm.FinishReasonError {
				return "", fmt.Errorf("stream: %s", c.Text)
			}
			sb.WriteString(c.Text)
		}
	}
}
