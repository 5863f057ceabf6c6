package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/chatsim/internal/observe"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ErrGaveUp is returned by [Reconnector.Run] after too many consecutive
// failed attempts.
var ErrGaveUp = errors.New("client: gave up reconnecting")

// ConnState is the connection state of a [Reconnector].
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateWaiting
	StateStopped
)

// String returns the lower-case state name.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateWaiting:
		return "waiting"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("connstate(%d)", int(s))
	}
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Client opens the streams.
	Client *Client

	// MaxRetries is the number of consecutive failed attempts after which
	// the reconnector gives up. Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the delay before the first retry. Doubles each attempt up
	// to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the delay. Defaults to 30s if zero.
	MaxBackoff time.Duration

	// OnOpen is called each time a stream is opened, with the number of
	// failed attempts that preceded it. May be nil.
	OnOpen func(failures int)
}

// Reconnector keeps a chat stream open across transport failures.
//
// An unexpected end of stream or a failed open is retried after an
// exponential delay. A successful open resets the failure count. A
// cancelled context is a user stop and is never retried. Permanent failures
// (rejected requests, handler errors) end Run immediately.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	client     *Client
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	onOpen     func(int)

	mu       sync.Mutex
	state    ConnState
	done     chan struct{}
	stopOnce sync.Once
}

// NewReconnector creates a new [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Reconnector{
		client:     cfg.Client,
		maxRetries: maxRetries,
		backoff:    backoff,
		maxBackoff: maxBackoff,
		onOpen:     cfg.OnOpen,
		done:       make(chan struct{}),
	}
}

// Delay returns the wait before retry n, counting from zero: the base
// backoff doubled n times, capped at the maximum.
func (r *Reconnector) Delay(n int) time.Duration {
	d := r.backoff
	for range n {
		d *= 2
		if d >= r.maxBackoff {
			return r.maxBackoff
		}
	}
	return min(d, r.maxBackoff)
}

// State returns the current connection state.
func (r *Reconnector) State() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stop ends Run as if its context had been cancelled. Safe to call multiple
// times.
func (r *Reconnector) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

// Run streams req into h, reconnecting as needed. It returns nil on a user
// stop, an error matching [ErrGaveUp] after MaxRetries consecutive failures,
// and other errors when retrying cannot help. The reconnector is Stopped
// when Run returns.
func (r *Reconnector) Run(ctx context.Context, req Request, h Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer r.setState(StateStopped)

	log := observe.Logger(ctx).With("topic", req.Topic)
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		r.setState(StateConnecting)

		conn, err := r.client.Open(ctx, req)
		if err == nil {
			if failures > 0 {
				log.Info("reconnection successful", "attempts", failures+1)
			}
			if r.onOpen != nil {
				r.onOpen(failures)
			}
			failures = 0
			r.setState(StateOpen)
			err = consume(ctx, conn, h)
		} else {
			failures++
		}

		if ctx.Err() != nil {
			return nil
		}
		if permanent(err) {
			log.Warn("chat stream failed permanently", "err", err)
			return err
		}
		if failures >= r.maxRetries {
			log.Error("reconnection failed after max retries", "max_retries", r.maxRetries, "err", err)
			return fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, failures, err)
		}

		wait := r.Delay(max(failures-1, 0))
		log.Info("attempting reconnection",
			"attempt", failures+1,
			"max_retries", r.maxRetries,
			"backoff", wait,
			"err", err,
		)
		r.setState(StateWaiting)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (r *Reconnector) setState(s ConnState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// permanent reports whether err cannot be cured by reconnecting.
func permanent(err error) bool {
	var he *HandlerError
	if errors.As(err, &he) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Temporary()
	}
	return false
}
