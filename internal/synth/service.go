// Package synth builds phrase sets for new topics: it validates the topic,
// prompts the AI gateway, parses the answer and records the result in the
// phrase store and the caller's quota.
package synth

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/chatsim/internal/observe"
	"github.com/MrWong99/chatsim/internal/phrase"
	"github.com/MrWong99/chatsim/internal/resilience"
	"github.com/MrWong99/chatsim/pkg/provider/llm"
)

// Completer produces one full completion. [*resilience.Gateway] is the
// production implementation.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (*resilience.Completion, error)
}

// Generation results recorded in metrics.
const (
	resultGenerated = "generated"
	resultCached    = "cached"
	resultQuota     = "quota"
	resultRejected  = "rejected"
	resultInvalid   = "invalid"
	resultFailed    = "failed"
	resultMalformed = "malformed"
)

// Result is a successful generate-phrases outcome.
type Result struct {
	// GameName is the normalized topic.
	GameName     string
	Phrases      phrase.Set
	CurrentGames []string
	Mode         phrase.Mode

	// Cached is true when no provider was called.
	Cached bool

	// Provider names the provider that generated the set. Empty when Cached.
	Provider string
}

// Option configures a [Service].
type Option func(*Service)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service runs the generate-phrases flow. It is safe for concurrent use.
type Service struct {
	store   phrase.Store
	gen     Completer
	metrics *observe.Metrics
	flight  singleflight.Group
}

// NewService returns a Service writing to store and generating through gen.
func NewService(store phrase.Store, gen Completer, opts ...Option) *Service {
	s := &Service{store: store, gen: gen}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Generate returns the phrase set for topic on behalf of userID.
//
// A cached topic only costs the user a quota slot. An uncached topic is
// checked against the quota first, then generated, stored and added to the
// user's topics. Concurrent generations of the same topic share one
// provider call; a caller that gives up does not abort it for the others.
//
// The cache is keyed by topic alone. A hit returns the stored set and its
// stored mode even when mode differs; the message generator remaps
// categories between the two modes.
func (s *Service) Generate(ctx context.Context, userID, topic string, mode phrase.Mode) (*Result, error) {
	ctx, span := observe.StartSpan(ctx, "synth.Generate")
	defer span.End()

	start := time.Now()
	res, err := s.generate(ctx, userID, topic, mode)
	result := classify(res, err)
	s.metrics.RecordGeneration(ctx, result)
	s.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("result", result)))
	span.SetAttributes(attribute.String("result", result))
	return res, err
}

func (s *Service) generate(ctx context.Context, userID, topic string, mode phrase.Mode) (*Result, error) {
	if err := ValidateTopic(topic, mode); err != nil {
		return nil, err
	}
	key := phrase.Normalize(topic)
	log := observe.Logger(ctx).With("topic", key, "mode", mode)

	if e, ok := s.store.Entry(key); ok {
		if !s.store.AddTopic(userID, key) {
			return nil, &QuotaError{CurrentGames: s.store.Topics(userID)}
		}
		if e.Mode != mode {
			log.Debug("phrase set served from cache in its stored mode", "cached_mode", e.Mode)
		} else {
			log.Debug("phrase set served from cache")
		}
		return &Result{
			GameName:     key,
			Phrases:      e.Phrases,
			CurrentGames: s.store.Topics(userID),
			Mode:         e.Mode,
			Cached:       true,
		}, nil
	}

	if !s.store.HasTopic(userID, key) && s.store.RemainingSlots(userID) == 0 {
		return nil, &QuotaError{CurrentGames: s.store.Topics(userID)}
	}

	log.Info("generating phrase set")
	flightKey := string(mode) + "\x00" + key
	ch := s.flight.DoChan(flightKey, func() (any, error) {
		return s.synthesize(context.WithoutCancel(ctx), userID, key, topic, mode)
	})

	var out *synthesized
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		out = r.Val.(*synthesized)
	}

	if !s.store.AddTopic(userID, key) {
		return nil, &QuotaError{CurrentGames: s.store.Topics(userID)}
	}
	return &Result{
		GameName:     key,
		Phrases:      out.set,
		CurrentGames: s.store.Topics(userID),
		Mode:         mode,
		Provider:     out.provider,
	}, nil
}

type synthesized struct {
	set      phrase.Set
	provider string
}

// synthesize calls the gateway, parses the answer and caches it.
func (s *Service) synthesize(ctx context.Context, userID, key, topic string, mode phrase.Mode) (*synthesized, error) {
	log := observe.Logger(ctx).With("topic", key, "mode", mode)

	// A flight that finished just before this one started already cached it.
	if e, ok := s.store.Entry(key); ok {
		return &synthesized{set: e.Phrases}, nil
	}

	c, err := s.gen.Complete(ctx, Prompts(topic, mode))
	if err != nil {
		log.Error("phrase generation failed", "err", err)
		return nil, err
	}

	set, err := Parse(c.Text, mode)
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			log.Info("topic rejected by model", "provider", c.Provider, "code", rej.Code, "reason", rej.Reason)
			return nil, err
		}
		log.Error("model returned malformed phrase set", "provider", c.Provider, "err", err, "response_bytes", len(c.Text))
		log.Debug("malformed model response", "raw", c.Text)
		return nil, err
	}

	s.store.Put(key, set, userID, mode)
	log.Info("phrase set generated", "provider", c.Provider, "failed_providers", len(c.Failures))
	return &synthesized{set: set, provider: c.Provider}, nil
}

func classify(res *Result, err error) string {
	switch {
	case err == nil && res.Cached:
		return resultCached
	case err == nil:
		return resultGenerated
	case errors.Is(err, ErrQuotaExceeded):
		return resultQuota
	case errors.Is(err, ErrInvalidInput):
		return resultInvalid
	case errors.Is(err, ErrInvalidGame), errors.Is(err, ErrInvalidTopic):
		return resultRejected
	case errors.Is(err, ErrMalformedResponse):
		return resultMalformed
	default:
		return resultFailed
	}
}
