// Package stream paces synthetic chat messages over a long-lived client
// connection.
//
// A [Session] draws a random delay, emits one message, and draws again, so
// gaps are independent and uniformly distributed rather than periodic. A
// keep-alive runs on its own fixed cadence. Every teardown trigger (client
// disconnect, write failure, Stop, Pause) goes through one path that stops
// both timers and closes the transport exactly once.
package stream

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/chatsim/internal/chatgen"
	"github.com/MrWong99/chatsim/internal/observe"
	"github.com/MrWong99/chatsim/internal/phrase"
)

// DefaultKeepAlive is the keep-alive cadence.
const DefaultKeepAlive = 30 * time.Second

// Source produces the next chat message. [*chatgen.Generator] implements it.
type Source interface {
	Generate(ctx context.Context, topic string, mode phrase.Mode) chatgen.Message
}

// Config describes one stream.
type Config struct {
	Topic  string
	Mode   phrase.Mode
	Pacing Pacing

	// KeepAlive is the keep-alive cadence. Zero means [DefaultKeepAlive].
	KeepAlive time.Duration
}

// Option configures a [Session].
type Option func(*Session)

// WithRand sets the random source for delays.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) {
		s.rng = r
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithDelayHook registers fn to observe every drawn message delay.
func WithDelayHook(fn func(time.Duration)) Option {
	return func(s *Session) {
		s.onDelay = fn
	}
}

// Session is the pacing controller of one client connection. Run drives it;
// Stop and Pause may be called from any goroutine.
type Session struct {
	cfg     Config
	src     Source
	rng     *rand.Rand
	metrics *observe.Metrics
	onDelay func(time.Duration)

	mu        sync.Mutex
	state     State
	run       uint64 // id of the current Run or Resume
	cancel    context.CancelFunc
	closeOnce *sync.Once
	transport Transport
	emitted   int
}

// NewSession returns an idle session. Pacing in cfg is clamped.
func NewSession(src Source, cfg Config, opts ...Option) *Session {
	cfg.Pacing = cfg.Pacing.Clamp()
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.Mode == "" {
		cfg.Mode = phrase.ModeGame
	}
	s := &Session{cfg: cfg, src: src, state: StateIdle}
	for _, o := range opts {
		o(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Emitted returns the number of messages delivered so far.
func (s *Session) Emitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted
}

// Config returns the effective configuration.
func (s *Session) Config() Config { return s.cfg }

// Run starts streaming over t and blocks until the stream ends. It is legal
// from Idle. A client disconnect (ctx done), Stop and Pause end the stream
// with a nil error; a failed write returns an error matching
// [ErrTransportClosed]. After Run returns the transport is closed and the
// session is Stopped, unless it was paused.
func (s *Session) Run(ctx context.Context, t Transport) error {
	return s.start(ctx, t, StateIdle)
}

// Resume restarts a paused session on a fresh transport. Scheduling starts
// over with a new first delay.
func (s *Session) Resume(ctx context.Context, t Transport) error {
	return s.start(ctx, t, StatePaused)
}

// Stop ends the session for good.
func (s *Session) Stop() error {
	return s.halt(StateStopped)
}

// Pause ends the current stream but allows [Session.Resume].
func (s *Session) Pause() error {
	return s.halt(StatePaused)
}

func (s *Session) start(ctx context.Context, t Transport, from State) error {
	s.mu.Lock()
	if s.state != from {
		err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, StateStreaming)
		s.mu.Unlock()
		return err
	}
	s.state = StateStreaming
	s.run++
	run := s.run
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.transport = t
	s.closeOnce = &sync.Once{}
	closeOnce := s.closeOnce
	s.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("transport", t.Name()))
	s.metrics.ActiveSessions.Add(ctx, 1, attrs)
	defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1, attrs)

	log := observe.Logger(ctx).With("topic", s.cfg.Topic, "mode", s.cfg.Mode, "transport", t.Name())
	log.Info("chat stream started", "pacing", s.cfg.Pacing.String())

	err := s.loop(ctx, t)

	cancel()
	closeOnce.Do(func() { _ = t.Close() })

	// A paused run may finish after Resume started the next one; only the
	// current run owns the state.
	s.mu.Lock()
	if s.run == run && s.state == StateStreaming {
		s.state = StateStopped
	}
	state, emitted := s.state, s.emitted
	s.mu.Unlock()

	if err != nil {
		log.Debug("chat stream transport failed", "err", err)
	}
	log.Info("chat stream ended", "state", state.String(), "messages", emitted)
	return err
}

// halt moves a streaming or paused session to target and tears the current
// stream down.
func (s *Session) halt(target State) error {
	s.mu.Lock()
	if err := checkTransition(s.state, target); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = target
	cancel, t, closeOnce := s.cancel, s.transport, s.closeOnce
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closeOnce != nil && t != nil {
		closeOnce.Do(func() { _ = t.Close() })
	}
	return nil
}

// loop is the self-rescheduling emission timer plus the keep-alive ticker.
// ctx is checked before every side effect so nothing is sent after
// cancellation.
func (s *Session) loop(ctx context.Context, t Transport) error {
	timer := time.NewTimer(s.nextDelay())
	defer timer.Stop()
	keepAlive := time.NewTicker(s.cfg.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if ctx.Err() != nil {
				return nil
			}
			msg := s.src.Generate(ctx, s.cfg.Topic, s.cfg.Mode)
			if ctx.Err() != nil {
				return nil
			}
			if err := t.Send(ctx, msg); err != nil {
				return s.writeErr(ctx, err)
			}
			s.mu.Lock()
			s.emitted++
			s.mu.Unlock()
			s.metrics.RecordMessage(ctx, t.Name(), string(s.cfg.Mode))
			timer.Reset(s.nextDelay())
		case <-keepAlive.C:
			if ctx.Err() != nil {
				return nil
			}
			if err := t.Ping(ctx); err != nil {
				return s.writeErr(ctx, err)
			}
		}
	}
}

// writeErr hides failures caused by our own teardown.
func (s *Session) writeErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	if errors.Is(err, ErrTransportClosed) {
		return err
	}
	return errors.Join(ErrTransportClosed, err)
}

func (s *Session) nextDelay() time.Duration {
	s.mu.Lock()
	d := s.cfg.Pacing.Next(s.rng)
	s.mu.Unlock()
	if s.onDelay != nil {
		s.onDelay(d)
	}
	return d
}
