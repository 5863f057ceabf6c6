package api

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultIdle is how long a user's bucket survives without requests.
const defaultIdle = 10 * time.Minute

// Limiter is a per-user token bucket guarding phrase generation.
type Limiter struct {
	mu     sync.Mutex
	limit  rate.Limit
	burst  int
	idle   time.Duration
	now    func() time.Time
	bucket map[string]*userBucket
}

type userBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// LimiterOption configures a [Limiter].
type LimiterOption func(*Limiter)

// WithLimiterClock sets the time source. Used by tests.
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithIdleTimeout sets how long an unused bucket is kept.
func WithIdleTimeout(d time.Duration) LimiterOption {
	return func(l *Limiter) {
		l.idle = d
	}
}

// NewLimiter allows perMinute requests per user with bursts of up to burst.
// A non-positive perMinute disables limiting.
func NewLimiter(perMinute, burst int, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		idle:   defaultIdle,
		now:    time.Now,
		bucket: make(map[string]*userBucket),
	}
	l.limit, l.burst = limitFor(perMinute, burst)
	for _, o := range opts {
		o(l)
	}
	return l
}

func limitFor(perMinute, burst int) (rate.Limit, int) {
	if perMinute <= 0 {
		return rate.Inf, 0
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.Every(time.Minute / time.Duration(perMinute)), burst
}

// Allow consumes one token for userID. When the bucket is empty it returns
// false and the wait until the next token.
func (l *Limiter) Allow(userID string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit == rate.Inf {
		return true, 0
	}

	now := l.now()
	b, ok := l.bucket[userID]
	if !ok {
		b = &userBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.bucket[userID] = b
	}
	b.lastSeen = now

	res := b.lim.ReserveN(now, 1)
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d
	}
	return true, 0
}

// SetRate changes the limit. Existing buckets start over full.
func (l *Limiter) SetRate(perMinute, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit, l.burst = limitFor(perMinute, burst)
	clear(l.bucket)
}

// Sweep drops buckets idle for longer than the idle timeout and returns how
// many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for id, b := range l.bucket {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.bucket, id)
			n++
		}
	}
	return n
}

// Run sweeps idle buckets every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
